package mpe

import (
	"errors"
	"reflect"
	"testing"

	"github.com/leandrodaf/mpe/sdk/contracts"
)

type allocMetrics struct {
	contracts.NopMetrics
	allocated, stolen, refused int
}

func (m *allocMetrics) VoiceAllocated()    { m.allocated++ }
func (m *allocMetrics) VoiceStolen()       { m.stolen++ }
func (m *allocMetrics) AllocationRefused() { m.refused++ }

func newTestDevice(t *testing.T, out *recordingOutput, opts ...Option) *Device {
	t.Helper()
	d, err := NewDevice(out, opts...)
	if err != nil {
		t.Fatalf("new device: %v", err)
	}
	return d
}

func TestOverflowNoneRefusesFifteenthNote(t *testing.T) {
	out := &recordingOutput{}
	m := &allocMetrics{}
	d := newTestDevice(t, out, WithMemberChannels(1, 14), WithOverflow(OverflowNone), WithMetrics(m))

	for i := 0; i < 14; i++ {
		if _, ok := d.NoteOn(uint8(60+i), 100); !ok {
			t.Fatalf("note %d refused", i)
		}
	}
	out.reset()
	h, ok := d.NoteOn(90, 100)
	if ok || h.Active() {
		t.Fatalf("expected refusal on 15th note")
	}
	if len(out.sent) != 0 {
		t.Fatalf("refused allocation sent messages: %v", out.sent)
	}
	if m.allocated != 14 || m.refused != 1 || m.stolen != 0 {
		t.Fatalf("metrics: %+v", m)
	}
}

func TestOverflowOldestStealsBeforeNewNoteSounds(t *testing.T) {
	out := &recordingOutput{}
	m := &allocMetrics{}
	d := newTestDevice(t, out, WithMemberChannels(1, 14), WithReleaseVelocity(20), WithMetrics(m))

	first, _ := d.NoteOn(60, 100)
	for i := 1; i < 14; i++ {
		d.NoteOn(uint8(60+i), 100)
	}
	out.reset()

	h, ok := d.NoteOn(90, 110)
	if !ok {
		t.Fatalf("15th note refused under oldest policy")
	}
	want := []string{"off ch=1 key=60 vel=20", "on ch=1 key=90 vel=110"}
	if !reflect.DeepEqual(out.sent, want) {
		t.Fatalf("sent: got=%v want=%v", out.sent, want)
	}
	if first.Active() || !h.Active() {
		t.Fatalf("first active=%v new active=%v", first.Active(), h.Active())
	}
	if first.PitchBend(10) {
		t.Fatalf("stolen handle accepted pitch bend")
	}
	if d.ActiveCount() != 14 || m.stolen != 1 {
		t.Fatalf("active=%d stolen=%d", d.ActiveCount(), m.stolen)
	}
}

func TestInitialExpressionPrecedesNoteOn(t *testing.T) {
	out := &recordingOutput{}
	d := newTestDevice(t, out, WithTimbreCC(71))

	d.NoteOn(64, 90, WithTimbre(30), WithBend(-200), WithPressure(12))

	want := []string{
		"bend ch=1 v=-200",
		"pressure ch=1 v=12",
		"cc ch=1 cc=71 v=30",
		"on ch=1 key=64 vel=90",
	}
	if !reflect.DeepEqual(out.sent, want) {
		t.Fatalf("sent: got=%v want=%v", out.sent, want)
	}
}

func TestNoteOffByPitchIsLastInFirstOut(t *testing.T) {
	out := &recordingOutput{}
	d := newTestDevice(t, out)

	older, _ := d.NoteOn(60, 100)
	newer, _ := d.NoteOn(60, 100)
	out.reset()

	if !d.NoteOff(60, 5) {
		t.Fatalf("note off returned false")
	}
	if newer.Active() || !older.Active() {
		t.Fatalf("older active=%v newer active=%v", older.Active(), newer.Active())
	}
	if want := []string{"off ch=2 key=60 vel=5"}; !reflect.DeepEqual(out.sent, want) {
		t.Fatalf("sent: got=%v want=%v", out.sent, want)
	}
	if !d.NoteOff(60) || d.NoteOff(60) {
		t.Fatalf("expected one more release then false")
	}
}

func TestHandleOperationsFollowAssignedChannel(t *testing.T) {
	out := &recordingOutput{}
	d := newTestDevice(t, out, WithMemberChannels(3, 5))

	d.NoteOn(40, 1)
	h, _ := d.NoteOn(41, 1)
	out.reset()

	if !h.PitchBend(100) || !h.Pressure(50) || !h.Timbre(20) {
		t.Fatalf("handle operations refused on active note")
	}
	if !h.NoteOff() {
		t.Fatalf("handle note off refused")
	}
	want := []string{
		"bend ch=4 v=100",
		"pressure ch=4 v=50",
		"cc ch=4 cc=74 v=20",
		"off ch=4 key=41 vel=64",
	}
	if !reflect.DeepEqual(out.sent, want) {
		t.Fatalf("sent: got=%v want=%v", out.sent, want)
	}
	if h.PitchBend(1) || h.Pressure(1) || h.Timbre(1) || h.NoteOff() {
		t.Fatalf("ended handle accepted an operation")
	}
	var zero NoteHandle
	if zero.Active() || zero.PitchBend(0) || zero.NoteOff() {
		t.Fatalf("zero handle accepted an operation")
	}
}

func TestIdsIncreaseAndFreedChannelsAreReused(t *testing.T) {
	out := &recordingOutput{}
	d := newTestDevice(t, out, WithMemberChannels(1, 2), WithOverflow(OverflowNone))

	a, _ := d.NoteOn(60, 1)
	b, _ := d.NoteOn(61, 1)
	if b.ID() <= a.ID() {
		t.Fatalf("ids not increasing: %d %d", a.ID(), b.ID())
	}
	a.NoteOff()
	out.reset()
	c, ok := d.NoteOn(62, 1)
	if !ok || c.ID() <= b.ID() {
		t.Fatalf("reallocation failed: ok=%v id=%d", ok, c.ID())
	}
	if want := []string{"on ch=1 key=62 vel=1"}; !reflect.DeepEqual(out.sent, want) {
		t.Fatalf("sent: got=%v want=%v", out.sent, want)
	}
}

func TestChannelInvariantHoldsUnderChurn(t *testing.T) {
	out := &recordingOutput{}
	d := newTestDevice(t, out, WithMemberChannels(1, 4))
	var handles []NoteHandle
	for i := 0; i < 50; i++ {
		h, _ := d.NoteOn(uint8(i%7+60), 100)
		handles = append(handles, h)
		if i%3 == 0 {
			d.NoteOff(uint8(i%5 + 60))
		}
		if i%4 == 0 {
			handles[i/2].NoteOff()
		}
		assertConsistent(t, d)
	}
	d.AllNotesOff()
	assertConsistent(t, d)
	if d.ActiveCount() != 0 || len(d.free) != 4 {
		t.Fatalf("after all notes off: active=%d free=%d", d.ActiveCount(), len(d.free))
	}
}

func assertConsistent(t *testing.T, d *Device) {
	t.Helper()
	held := map[uint8]int{}
	for _, n := range d.active {
		held[n.channel]++
	}
	for _, ch := range d.free {
		held[ch]++
	}
	for _, ch := range d.members {
		if held[ch] != 1 {
			t.Fatalf("channel %d appears %d times across free list and active notes", ch, held[ch])
		}
	}
	if len(d.order) != len(d.active) {
		t.Fatalf("order=%d active=%d", len(d.order), len(d.active))
	}
	for _, id := range d.order {
		if _, ok := d.active[id]; !ok {
			t.Fatalf("order holds inactive id %d", id)
		}
	}
	pitched := 0
	for _, stack := range d.byPitch {
		pitched += len(stack)
	}
	if pitched != len(d.active) {
		t.Fatalf("pitch stacks=%d active=%d", pitched, len(d.active))
	}
}

func TestSendFailureKeepsAllocatorConsistent(t *testing.T) {
	out := &recordingOutput{err: errSend}
	d := newTestDevice(t, out, WithMemberChannels(1, 2))
	h, ok := d.NoteOn(60, 1)
	if !ok || !h.Active() {
		t.Fatalf("allocation should succeed despite send error")
	}
	if !h.NoteOff() {
		t.Fatalf("release should succeed despite send error")
	}
	assertConsistent(t, d)
}

func TestConfigureZoneSendsConfigurationAndBendRange(t *testing.T) {
	out := &recordingOutput{}
	d := newTestDevice(t, out, WithZone(UpperZone), WithMemberChannels(13, 14), WithPitchBendRange(24))
	if err := d.ConfigureZone(); err != nil {
		t.Fatalf("configure zone: %v", err)
	}
	want := []string{
		"cc ch=15 cc=101 v=0", "cc ch=15 cc=100 v=6", "cc ch=15 cc=6 v=2", "cc ch=15 cc=38 v=0",
		"cc ch=15 cc=101 v=127", "cc ch=15 cc=100 v=127",
		"cc ch=13 cc=101 v=0", "cc ch=13 cc=100 v=0", "cc ch=13 cc=6 v=24", "cc ch=13 cc=38 v=0",
		"cc ch=13 cc=101 v=127", "cc ch=13 cc=100 v=127",
		"cc ch=14 cc=101 v=0", "cc ch=14 cc=100 v=0", "cc ch=14 cc=6 v=24", "cc ch=14 cc=38 v=0",
		"cc ch=14 cc=101 v=127", "cc ch=14 cc=100 v=127",
	}
	if !reflect.DeepEqual(out.sent, want) {
		t.Fatalf("sent: got=%v\nwant=%v", out.sent, want)
	}

	failing := newTestDevice(t, &recordingOutput{err: errSend})
	if err := failing.ConfigureZone(); !errors.Is(err, errSend) {
		t.Fatalf("expected send error, got %v", err)
	}
}

func TestLayoutExcludesMasterAndValidates(t *testing.T) {
	d := newTestDevice(t, &recordingOutput{}, WithChannels(func() []uint8 { return []uint8{0, 3, 3, 5, 16} }))
	if got := d.MemberChannels(); !reflect.DeepEqual(got, []uint8{3, 5}) {
		t.Fatalf("members: %v", got)
	}

	upper := newTestDevice(t, &recordingOutput{}, WithZone(UpperZone))
	if upper.MasterChannel() != 15 || len(upper.MemberChannels()) != 15 || upper.MemberChannels()[0] != 0 {
		t.Fatalf("upper zone layout: master=%d members=%v", upper.MasterChannel(), upper.MemberChannels())
	}

	for _, opts := range [][]Option{
		{WithMemberChannels(5, 2)},
		{WithMemberChannels(0, 0)},
		{WithMasterChannel(16)},
		{WithTimbreCC(200)},
	} {
		if _, err := NewDevice(&recordingOutput{}, opts...); !errors.Is(err, ErrInvalidConfig) {
			t.Fatalf("expected ErrInvalidConfig, got %v", err)
		}
	}
}

func TestParsePolicies(t *testing.T) {
	if o, err := ParseOverflow("NONE"); err != nil || o != OverflowNone {
		t.Fatalf("overflow none: %v %v", o, err)
	}
	if z, err := ParseZone("upper"); err != nil || z != UpperZone {
		t.Fatalf("zone upper: %v %v", z, err)
	}
	if _, err := ParseOverflow("newest"); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestZeroVelocityNoteOnStillSounds(t *testing.T) {
	out := &recordingOutput{}
	d := newTestDevice(t, out, WithMemberChannels(1, 2))

	h, ok := d.NoteOn(60, 0)
	if !ok || !h.Active() {
		t.Fatalf("allocation: ok=%v active=%v", ok, h.Active())
	}
	if want := []string{"on ch=1 key=60 vel=1"}; !reflect.DeepEqual(out.sent, want) {
		t.Fatalf("sent: got=%v want=%v", out.sent, want)
	}
	out.reset()
	d.NoteOn(61, 128)
	if want := []string{"on ch=2 key=61 vel=1"}; !reflect.DeepEqual(out.sent, want) {
		t.Fatalf("sent: got=%v want=%v", out.sent, want)
	}
}
