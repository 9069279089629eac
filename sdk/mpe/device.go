package mpe

import (
	"slices"

	"github.com/leandrodaf/mpe/sdk/contracts"
)

type activeNote struct {
	id      uint64
	channel uint8
	note    uint8
}

// Device allocates member channels of one output to logical notes. Callers
// address notes through NoteHandle values, never through channel numbers.
//
// A channel is either on the free list or held by exactly one active note,
// and the allocation-order queue always holds the same ids as the active map.
// Device is not safe for concurrent use; confine it to one goroutine.
type Device struct {
	out contracts.ChannelOutput
	cfg Config

	master  uint8
	members []uint8

	free    []uint8  // stack of unassigned channels
	order   []uint64 // ids, oldest first
	byPitch [128][]uint64
	active  map[uint64]activeNote
	nextID  uint64
}

// NewDevice creates a Device sending to out.
func NewDevice(out contracts.ChannelOutput, opts ...Option) (*Device, error) {
	cfg := applyDefaultOptions(opts...)
	master, members, err := cfg.layout()
	if err != nil {
		return nil, err
	}
	d := &Device{
		out:     out,
		cfg:     cfg,
		master:  master,
		members: members,
		active:  make(map[uint64]activeNote, len(members)),
	}
	// Reverse so the first allocation takes the first member.
	d.free = slices.Clone(members)
	slices.Reverse(d.free)
	return d, nil
}

// NoteOption sets an initial expression value for NoteOn.
type NoteOption func(*noteParams)

type noteParams struct {
	bend        int16
	pressure    uint8
	timbre      uint8
	hasBend     bool
	hasPressure bool
	hasTimbre   bool
}

// WithBend sends a pitch bend before the note-on.
func WithBend(v int16) NoteOption {
	return func(p *noteParams) {
		p.bend, p.hasBend = v, true
	}
}

// WithPressure sends channel pressure before the note-on.
func WithPressure(v uint8) NoteOption {
	return func(p *noteParams) {
		p.pressure, p.hasPressure = v, true
	}
}

// WithTimbre sends the timbre controller before the note-on.
func WithTimbre(v uint8) NoteOption {
	return func(p *noteParams) {
		p.timbre, p.hasTimbre = v, true
	}
}

// MasterChannel returns the zone's master channel.
func (d *Device) MasterChannel() uint8 {
	return d.master
}

// MemberChannels returns a copy of the member channels.
func (d *Device) MemberChannels() []uint8 {
	return slices.Clone(d.members)
}

// ActiveCount returns the number of sounding notes.
func (d *Device) ActiveCount() int {
	return len(d.active)
}

// NoteOn allocates a member channel and starts a note on it. Initial
// expression values are sent before the note-on. When every channel is busy
// the oldest note is ended first, unless the overflow policy is OverflowNone,
// in which case NoteOn returns false. A velocity of 0 is sent as 1.
func (d *Device) NoteOn(note, velocity uint8, opts ...NoteOption) (NoteHandle, bool) {
	var p noteParams
	for _, opt := range opts {
		opt(&p)
	}

	if len(d.free) == 0 {
		if d.cfg.Overflow == OverflowNone || len(d.order) == 0 {
			d.cfg.Metrics.AllocationRefused()
			d.cfg.Logger.Debug("No free MPE channel", d.cfg.Logger.Field().Uint8("note", note))
			return NoteHandle{}, false
		}
		oldest := d.active[d.order[0]]
		d.cfg.Logger.Debug("Stealing MPE voice",
			d.cfg.Logger.Field().Uint8("channel", oldest.channel),
			d.cfg.Logger.Field().Uint8("note", oldest.note))
		d.release(oldest.id, d.cfg.ReleaseVelocity)
		d.cfg.Metrics.VoiceStolen()
	}

	ch := d.free[len(d.free)-1]
	d.free = d.free[:len(d.free)-1]

	if p.hasBend {
		d.check(d.out.PitchBend(ch, p.bend), "pitch bend", ch)
	}
	if p.hasPressure {
		d.check(d.out.ChannelPressure(ch, p.pressure&0x7F), "channel pressure", ch)
	}
	if p.hasTimbre {
		d.check(d.out.ControlChange(ch, d.cfg.TimbreCC, p.timbre&0x7F), "timbre", ch)
	}
	// A zero velocity note-on is a note-off on the wire.
	velocity = max(velocity&0x7F, 1)
	d.check(d.out.NoteOn(ch, note&0x7F, velocity), "note on", ch)

	d.nextID++
	id := d.nextID
	d.active[id] = activeNote{id: id, channel: ch, note: note & 0x7F}
	d.order = append(d.order, id)
	d.byPitch[note&0x7F] = append(d.byPitch[note&0x7F], id)
	d.cfg.Metrics.VoiceAllocated()

	return NoteHandle{id: id, dev: d}, true
}

// NoteOff ends the most recently started active note of the given pitch.
// velocity defaults to the configured release velocity. It returns false when
// no note of that pitch is sounding.
func (d *Device) NoteOff(note uint8, velocity ...uint8) bool {
	stack := d.byPitch[note&0x7F]
	if len(stack) == 0 {
		return false
	}
	return d.release(stack[len(stack)-1], d.releaseVelocity(velocity))
}

// AllNotesOff ends every active note, oldest first.
func (d *Device) AllNotesOff() {
	for len(d.order) > 0 {
		d.release(d.order[0], d.cfg.ReleaseVelocity)
	}
}

// ConfigureZone announces the zone layout with the MPE Configuration Message
// on the master channel and sets the member pitch-bend range.
func (d *Device) ConfigureZone() error {
	if err := d.rpn(d.master, 6, uint8(len(d.members))); err != nil {
		return err
	}
	for _, ch := range d.members {
		if err := d.rpn(ch, 0, d.cfg.PitchBendRange); err != nil {
			return err
		}
	}
	return nil
}

// rpn writes a registered parameter (MSB 0) and closes it with the null RPN.
func (d *Device) rpn(ch, param, value uint8) error {
	steps := [][2]uint8{{101, 0}, {100, param}, {6, value}, {38, 0}, {101, 127}, {100, 127}}
	for _, s := range steps {
		if err := d.out.ControlChange(ch, s[0], s[1]); err != nil {
			return err
		}
	}
	return nil
}

func (d *Device) releaseVelocity(v []uint8) uint8 {
	if len(v) > 0 {
		return v[0] & 0x7F
	}
	return d.cfg.ReleaseVelocity
}

// release ends note id and returns its channel to the free list.
func (d *Device) release(id uint64, velocity uint8) bool {
	n, ok := d.active[id]
	if !ok {
		return false
	}
	d.check(d.out.NoteOff(n.channel, n.note, velocity), "note off", n.channel)

	delete(d.active, id)
	d.order = removeID(d.order, id)
	d.byPitch[n.note] = removeID(d.byPitch[n.note], id)
	d.free = append(d.free, n.channel)
	return true
}

func (d *Device) lookup(id uint64) (activeNote, bool) {
	n, ok := d.active[id]
	return n, ok
}

func (d *Device) check(err error, what string, ch uint8) {
	if err != nil {
		d.cfg.Logger.Warn("MPE output send failed",
			d.cfg.Logger.Field().String("message", what),
			d.cfg.Logger.Field().Uint8("channel", ch),
			d.cfg.Logger.Field().Error("error", err))
	}
}

func removeID(ids []uint64, id uint64) []uint64 {
	if i := slices.Index(ids, id); i >= 0 {
		return slices.Delete(ids, i, i+1)
	}
	return ids
}
