// Package bridge is the producer side of the packet protocol. It collects
// raw channel-voice messages from a capture client, keeps only the latest
// value of each continuous parameter, queues note edges, and emits one packet
// per dispatch tick.
package bridge

import (
	"cmp"
	"context"
	"math"
	"math/bits"
	"slices"
	"sync/atomic"
	"time"

	"github.com/leandrodaf/mpe/internal/logger"
	"github.com/leandrodaf/mpe/internal/midi/splitter"
	"github.com/leandrodaf/mpe/sdk/contracts"
	"github.com/leandrodaf/mpe/sdk/packet"
	gomidi "gitlab.com/gomidi/midi/v2"
)

const (
	DefaultRawQueueSize  = 4096
	DefaultNoteQueueSize = 4096
	DefaultDispatchRate  = time.Second / 250
)

type channelState struct {
	cc      [128]uint8
	ccTs    [128]uint64
	ccDirty [2]uint64

	poly      [128]uint8
	polyTs    [128]uint64
	polyDirty [2]uint64

	bend      int16
	bendTs    uint64
	bendDirty bool

	pressure      uint8
	pressureTs    uint64
	pressureDirty bool

	program      uint8
	programTs    uint64
	programDirty bool
}

// Bridge turns raw messages into packets. Deliver may be called from any
// goroutine; everything else runs on the goroutine that calls Run (or Flush),
// and so does the packet callback.
type Bridge struct {
	logger   contracts.Logger
	filter   *contracts.MIDIEventFilter
	rate     time.Duration
	onPacket func([]byte)
	now      func() time.Time

	queue      chan contracts.RawMessage
	droppedRaw atomic.Uint32

	notes       []packet.Record // ring buffer of pending note edges
	noteHead    int
	noteLen     int
	droppedNote uint32

	channels [16]channelState
	records  []packet.Record
	buf      []byte
}

// New creates a Bridge that hands each packet to onPacket. The packet buffer
// is reused; onPacket must copy it if it keeps it past the call.
func New(onPacket func([]byte), opts ...contracts.Option) *Bridge {
	options := &contracts.ClientOptions{}
	for _, opt := range opts {
		opt(options)
	}
	if options.Logger == nil {
		options.Logger = logger.NewNopLogger()
	}
	if options.DispatchRate <= 0 {
		options.DispatchRate = DefaultDispatchRate
	}
	if options.RawQueueSize <= 0 {
		options.RawQueueSize = DefaultRawQueueSize
	}
	if options.NoteQueueSize <= 0 {
		options.NoteQueueSize = DefaultNoteQueueSize
	}

	return &Bridge{
		logger:   options.Logger,
		filter:   options.MIDIEventFilter,
		rate:     options.DispatchRate,
		onPacket: onPacket,
		now:      time.Now,
		queue:    make(chan contracts.RawMessage, options.RawQueueSize),
		notes:    make([]packet.Record, options.NoteQueueSize),
	}
}

// Deliver enqueues msg without blocking. When the queue is full the message
// is dropped and counted in the next packet's header.
func (b *Bridge) Deliver(msg contracts.RawMessage) {
	select {
	case b.queue <- msg:
	default:
		saturatingInc(&b.droppedRaw)
	}
}

// Run drains the queue and dispatches packets until ctx is done.
func (b *Bridge) Run(ctx context.Context) error {
	ticker := time.NewTicker(b.rate)
	defer ticker.Stop()

	b.logger.Info("Bridge dispatch started", b.logger.Field().Int64("periodUs", b.rate.Microseconds()))
	for {
		select {
		case <-ctx.Done():
			b.logger.Info("Bridge dispatch stopped")
			return nil
		case msg := <-b.queue:
			b.handle(msg)
		case now := <-ticker.C:
			b.Flush(now)
		}
	}
}

// Flush handles every queued message and dispatches one packet stamped with
// now. Ticks with no records and no drops are skipped. It reports whether a
// packet was dispatched.
func (b *Bridge) Flush(now time.Time) bool {
	for drained := false; !drained; {
		select {
		case msg := <-b.queue:
			b.handle(msg)
		default:
			drained = true
		}
	}

	droppedRaw := b.droppedRaw.Swap(0)
	droppedNote := b.droppedNote
	b.droppedNote = 0

	records := b.records[:0]
	records = b.drainNotes(records)
	records = b.drainState(records)
	b.records = records

	if len(records) == 0 && droppedRaw == 0 && droppedNote == 0 {
		return false
	}
	if droppedRaw != 0 || droppedNote != 0 {
		b.logger.Debug("Bridge dropped input",
			b.logger.Field().Int64("raw", int64(droppedRaw)),
			b.logger.Field().Int64("notes", int64(droppedNote)))
	}

	slices.SortStableFunc(records, func(x, y packet.Record) int {
		return cmp.Compare(x.TsUs, y.TsUs)
	})
	b.buf = packet.AppendPacket(b.buf[:0], packet.Header{
		DispatchTsUs: uint64(now.UnixMicro()),
		DroppedRaw:   droppedRaw,
		DroppedNote:  droppedNote,
	}, records)
	b.onPacket(b.buf)
	return true
}

// handle folds one raw message into the pending state.
func (b *Bridge) handle(raw contracts.RawMessage) {
	status := raw.Status()
	if status < 0x80 || status >= 0xF0 || int(raw.Len) < splitter.Length(status) {
		return
	}
	if !b.filter.Allows(status) {
		return
	}
	ts := raw.Timestamp
	if ts == 0 {
		ts = uint64(b.now().UnixMicro())
	}

	msg := gomidi.Message(raw.Bytes())
	var ch, key, value uint8
	var bend int16
	var absolute uint16
	switch {
	case msg.GetNoteStart(&ch, &key, &value):
		b.pushNote(ts, ch, key, value, true)
	case msg.GetNoteOff(&ch, &key, &value):
		b.pushNote(ts, ch, key, value, false)
	case msg.GetNoteEnd(&ch, &key):
		b.pushNote(ts, ch, key, 0, false)
	case msg.GetControlChange(&ch, &key, &value):
		s := &b.channels[ch]
		if s.cc[key] != value {
			s.cc[key], s.ccTs[key] = value, ts
			setBit(&s.ccDirty, key)
		}
	case msg.GetPitchBend(&ch, &bend, &absolute):
		s := &b.channels[ch]
		if s.bend != bend {
			s.bend, s.bendTs, s.bendDirty = bend, ts, true
		}
	case msg.GetAfterTouch(&ch, &value):
		s := &b.channels[ch]
		if s.pressure != value {
			s.pressure, s.pressureTs, s.pressureDirty = value, ts, true
		}
	case msg.GetProgramChange(&ch, &value):
		s := &b.channels[ch]
		if s.program != value {
			s.program, s.programTs, s.programDirty = value, ts, true
		}
	case msg.GetPolyAfterTouch(&ch, &key, &value):
		s := &b.channels[ch]
		if s.poly[key] != value {
			s.poly[key], s.polyTs[key] = value, ts
			setBit(&s.polyDirty, key)
		}
	}
}

// pushNote appends a note edge, discarding the oldest one when full.
func (b *Bridge) pushNote(ts uint64, ch, key, velocity uint8, on bool) {
	r := packet.Record{TsUs: ts, Kind: packet.KindNote, Channel: ch, A: key, B: velocity}
	if on {
		r.Extra = packet.NoteOnFlag
	}
	if b.noteLen == len(b.notes) {
		b.noteHead = (b.noteHead + 1) % len(b.notes)
		b.noteLen--
		if b.droppedNote < math.MaxUint32 {
			b.droppedNote++
		}
	}
	b.notes[(b.noteHead+b.noteLen)%len(b.notes)] = r
	b.noteLen++
}

func (b *Bridge) drainNotes(records []packet.Record) []packet.Record {
	for ; b.noteLen > 0; b.noteLen-- {
		records = append(records, b.notes[b.noteHead])
		b.noteHead = (b.noteHead + 1) % len(b.notes)
	}
	b.noteHead = 0
	return records
}

func (b *Bridge) drainState(records []packet.Record) []packet.Record {
	for i := range b.channels {
		s := &b.channels[i]
		ch := uint8(i)
		for _, cc := range takeBits(&s.ccDirty) {
			records = append(records, packet.Record{TsUs: s.ccTs[cc], Kind: packet.KindControlChange, Channel: ch, A: cc, B: s.cc[cc]})
		}
		for _, key := range takeBits(&s.polyDirty) {
			records = append(records, packet.Record{TsUs: s.polyTs[key], Kind: packet.KindPolyPressure, Channel: ch, A: key, B: s.poly[key]})
		}
		if s.bendDirty {
			records = append(records, packet.Record{TsUs: s.bendTs, Kind: packet.KindPitchBend, Channel: ch, V16: s.bend})
			s.bendDirty = false
		}
		if s.pressureDirty {
			records = append(records, packet.Record{TsUs: s.pressureTs, Kind: packet.KindChannelPressure, Channel: ch, B: s.pressure})
			s.pressureDirty = false
		}
		if s.programDirty {
			records = append(records, packet.Record{TsUs: s.programTs, Kind: packet.KindProgramChange, Channel: ch, B: s.program})
			s.programDirty = false
		}
	}
	return records
}

func setBit(bitset *[2]uint64, i uint8) {
	bitset[i/64] |= 1 << (i % 64)
}

// takeBits returns the set indices in ascending order and clears the set.
func takeBits(bitset *[2]uint64) []uint8 {
	if bitset[0] == 0 && bitset[1] == 0 {
		return nil
	}
	var out []uint8
	for block := range bitset {
		for v := bitset[block]; v != 0; v &= v - 1 {
			out = append(out, uint8(block*64+bits.TrailingZeros64(v)))
		}
		bitset[block] = 0
	}
	return out
}

func saturatingInc(c *atomic.Uint32) {
	for {
		v := c.Load()
		if v == math.MaxUint32 || c.CompareAndSwap(v, v+1) {
			return
		}
	}
}
