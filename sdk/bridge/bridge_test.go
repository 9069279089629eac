package bridge

import (
	"context"
	"testing"
	"time"

	"github.com/leandrodaf/mpe/sdk/contracts"
	"github.com/leandrodaf/mpe/sdk/packet"
)

type capture struct {
	headers []packet.Header
	records [][]packet.Record
}

func (c *capture) onPacket(buf []byte) {
	h, records, err := packet.Decode(buf)
	if err != nil {
		panic(err)
	}
	c.headers = append(c.headers, h)
	c.records = append(c.records, records)
}

func newTestBridge(t *testing.T, opts ...contracts.Option) (*Bridge, *capture) {
	t.Helper()
	c := &capture{}
	b := New(c.onPacket, opts...)
	b.now = func() time.Time { return time.UnixMicro(999) }
	return b, c
}

func raw(ts uint64, data ...byte) contracts.RawMessage {
	return contracts.NewRawMessage(ts, data)
}

func TestFlushSkipsEmptyTicks(t *testing.T) {
	b, c := newTestBridge(t)
	if b.Flush(time.UnixMicro(10)) {
		t.Fatal("empty tick dispatched")
	}
	if len(c.headers) != 0 {
		t.Fatalf("got %d packets", len(c.headers))
	}
}

func TestContinuousValuesKeepLatest(t *testing.T) {
	b, c := newTestBridge(t)
	b.Deliver(raw(1, 0xB1, 74, 10))
	b.Deliver(raw(2, 0xB1, 74, 20))
	b.Deliver(raw(3, 0xB1, 74, 30))
	b.Deliver(raw(4, 0xE1, 0x00, 0x50)) // (0x50<<7) - 8192 = 2048
	b.Deliver(raw(5, 0xD1, 90))

	if !b.Flush(time.UnixMicro(100)) {
		t.Fatal("expected a packet")
	}
	records := c.records[0]
	want := []packet.Record{
		{TsUs: 3, Kind: packet.KindControlChange, Channel: 1, A: 74, B: 30},
		{TsUs: 4, Kind: packet.KindPitchBend, Channel: 1, V16: 2048},
		{TsUs: 5, Kind: packet.KindChannelPressure, Channel: 1, B: 90},
	}
	if len(records) != len(want) {
		t.Fatalf("got %+v", records)
	}
	for i := range want {
		if records[i] != want[i] {
			t.Errorf("record %d: got %+v, want %+v", i, records[i], want[i])
		}
	}
	if c.headers[0].DispatchTsUs != 100 {
		t.Errorf("dispatch ts %d", c.headers[0].DispatchTsUs)
	}
}

func TestUnchangedValueIsNotReported(t *testing.T) {
	b, c := newTestBridge(t)
	b.Deliver(raw(1, 0xB0, 1, 64))
	b.Flush(time.UnixMicro(10))
	b.Deliver(raw(2, 0xB0, 1, 64))
	if b.Flush(time.UnixMicro(20)) {
		t.Fatalf("unchanged value dispatched: %+v", c.records[len(c.records)-1])
	}
}

func TestNotesAreKeptInOrderAndSortedWithValues(t *testing.T) {
	b, c := newTestBridge(t)
	b.Deliver(raw(10, 0x92, 60, 100))
	b.Deliver(raw(5, 0xB2, 74, 7))
	b.Deliver(raw(20, 0x82, 60, 33))
	b.Deliver(raw(30, 0x92, 62, 0)) // note-on with zero velocity ends the note

	b.Flush(time.UnixMicro(40))
	records := c.records[0]
	if len(records) != 4 {
		t.Fatalf("got %+v", records)
	}
	if records[0].Kind != packet.KindControlChange || records[0].TsUs != 5 {
		t.Errorf("first record %+v", records[0])
	}
	if r := records[1]; r.Kind != packet.KindNote || !r.NoteOn() || r.A != 60 || r.B != 100 {
		t.Errorf("note on %+v", r)
	}
	if r := records[2]; r.NoteOn() || r.A != 60 || r.B != 33 {
		t.Errorf("note off %+v", r)
	}
	if r := records[3]; r.NoteOn() || r.A != 62 || r.B != 0 {
		t.Errorf("note end %+v", r)
	}
}

func TestNoteQueueDropsOldest(t *testing.T) {
	b, c := newTestBridge(t, contracts.WithQueueSizes(16, 2))
	b.Deliver(raw(1, 0x90, 60, 1))
	b.Deliver(raw(2, 0x90, 61, 1))
	b.Deliver(raw(3, 0x90, 62, 1))

	b.Flush(time.UnixMicro(10))
	if c.headers[0].DroppedNote != 1 {
		t.Fatalf("dropped notes %d", c.headers[0].DroppedNote)
	}
	records := c.records[0]
	if len(records) != 2 || records[0].A != 61 || records[1].A != 62 {
		t.Fatalf("got %+v", records)
	}

	b.Deliver(raw(4, 0x80, 61, 0))
	b.Flush(time.UnixMicro(20))
	if c.headers[1].DroppedNote != 0 {
		t.Fatalf("drop counter not reset: %d", c.headers[1].DroppedNote)
	}
}

func TestRawQueueOverflowIsReportedEvenWithoutRecords(t *testing.T) {
	b, c := newTestBridge(t, contracts.WithQueueSizes(1, 16))
	b.Deliver(raw(1, 0xB0, 1, 1))
	b.Deliver(raw(2, 0xB0, 1, 2))
	b.Deliver(raw(3, 0xB0, 1, 3))

	b.Flush(time.UnixMicro(10))
	if c.headers[0].DroppedRaw != 2 {
		t.Fatalf("dropped raw %d", c.headers[0].DroppedRaw)
	}

	b.droppedRaw.Store(5)
	if !b.Flush(time.UnixMicro(20)) {
		t.Fatal("tick with drops must be dispatched")
	}
	if len(c.records[1]) != 0 || c.headers[1].DroppedRaw != 5 {
		t.Fatalf("got %+v %+v", c.headers[1], c.records[1])
	}
}

func TestMalformedAndSystemMessagesAreIgnored(t *testing.T) {
	b, _ := newTestBridge(t)
	b.Deliver(raw(1, 0xF8))
	b.Deliver(raw(2, 0x90, 60))
	b.Deliver(raw(3, 0x40, 1, 2))
	b.Deliver(raw(4))
	if b.Flush(time.UnixMicro(10)) {
		t.Fatal("ignored messages produced a packet")
	}
}

func TestFilterDropsCommands(t *testing.T) {
	b, c := newTestBridge(t, contracts.WithMIDIEventFilter(contracts.MIDIEventFilter{
		Commands: []contracts.MIDICommand{contracts.NoteOn},
	}))
	b.Deliver(raw(1, 0xB0, 1, 1))
	b.Deliver(raw(2, 0x90, 60, 1))
	b.Flush(time.UnixMicro(10))
	if len(c.records[0]) != 1 || c.records[0][0].Kind != packet.KindNote {
		t.Fatalf("got %+v", c.records[0])
	}
}

func TestZeroTimestampIsStamped(t *testing.T) {
	b, c := newTestBridge(t)
	b.Deliver(raw(0, 0xC3, 12))
	b.Flush(time.UnixMicro(1000))
	if r := c.records[0][0]; r.TsUs != 999 || r.Kind != packet.KindProgramChange || r.B != 12 {
		t.Fatalf("got %+v", r)
	}
}

func TestPolyPressureIsReportedPerKey(t *testing.T) {
	b, c := newTestBridge(t)
	b.Deliver(raw(1, 0xA4, 64, 10))
	b.Deliver(raw(2, 0xA4, 60, 11))
	b.Deliver(raw(3, 0xA4, 64, 12))
	b.Flush(time.UnixMicro(10))
	records := c.records[0]
	if len(records) != 2 {
		t.Fatalf("got %+v", records)
	}
	if records[0].A != 60 || records[0].B != 11 || records[1].A != 64 || records[1].B != 12 {
		t.Fatalf("got %+v", records)
	}
}

func TestSaturatingIncrementStops(t *testing.T) {
	b, _ := newTestBridge(t)
	b.droppedRaw.Store(^uint32(0))
	saturatingInc(&b.droppedRaw)
	if b.droppedRaw.Load() != ^uint32(0) {
		t.Fatal("counter wrapped")
	}
}

func TestRunDispatchesUntilCancelled(t *testing.T) {
	got := make(chan packet.Header, 1)
	b := New(func(buf []byte) {
		h, err := packet.DecodeHeader(buf)
		if err != nil {
			t.Error(err)
			return
		}
		select {
		case got <- h:
		default:
		}
	}, contracts.WithDispatchRate(1000))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()

	b.Deliver(raw(1, 0x90, 60, 100))
	select {
	case h := <-got:
		if h.RecordCount != 1 {
			t.Errorf("record count %d", h.RecordCount)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no packet dispatched")
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run returned %v", err)
	}
}
