package mpe

import (
	"cmp"
	"slices"

	"github.com/leandrodaf/mpe/internal/listeners"
	"github.com/leandrodaf/mpe/sdk/contracts"
	"github.com/leandrodaf/mpe/sdk/input"
)

// voice is the state of one member channel.
type voice struct {
	active          bool
	note            uint8
	velocity        uint8
	releaseVelocity uint8
	bend            int16
	pressure        uint8
	timbre          uint8

	// per tick
	started bool
	dirty   bool
	ended   bool

	// A note that ended earlier in the tick on a channel that was then
	// retriggered; reported before the new start.
	pendingEnd    contracts.VoiceEvent
	hasPendingEnd bool
}

func (v *voice) snapshot(ch uint8, ts uint64) contracts.VoiceEvent {
	return contracts.VoiceEvent{
		Timestamp:       ts,
		Channel:         ch,
		Note:            v.note,
		Velocity:        v.velocity,
		ReleaseVelocity: v.releaseVelocity,
		PitchBend:       v.bend,
		Pressure:        v.pressure,
		Timbre:          v.timbre,
	}
}

type changeKind uint8

const (
	changePitchBend changeKind = iota
	changePressure
	changeTimbre
	changeNoteOn
	changeNoteOff
)

type change struct {
	ts      uint64
	kind    changeKind
	channel uint8
	note    uint8
	value   uint8
	bend    int16
}

// Coalescer turns one tick of member-channel messages into voice events:
// at most one start, one update and one end per channel per tick.
// It is confined to the goroutine that delivers ticks.
type Coalescer struct {
	master   uint8
	members  []uint8
	isMember [16]bool
	timbreCC uint8
	voices   [16]voice
	changes  []change

	noteStart  listeners.Registry[contracts.VoiceEvent]
	noteUpdate listeners.Registry[contracts.VoiceEvent]
	noteEnd    listeners.Registry[contracts.VoiceEvent]
}

// NewCoalescer creates a Coalescer for the configured zone.
func NewCoalescer(opts ...Option) (*Coalescer, error) {
	cfg := applyDefaultOptions(opts...)
	master, members, err := cfg.layout()
	if err != nil {
		return nil, err
	}
	c := &Coalescer{
		master:   master,
		members:  slices.Clone(members),
		timbreCC: cfg.TimbreCC,
	}
	slices.Sort(c.members)
	for _, ch := range members {
		c.isMember[ch] = true
	}
	return c, nil
}

func (c *Coalescer) member(ch uint8) bool {
	return ch < 16 && c.isMember[ch]
}

// MasterChannel returns the channel excluded from voice tracking.
func (c *Coalescer) MasterChannel() uint8 {
	return c.master
}

// OnNoteStart subscribes to voice starts. The returned function unsubscribes.
func (c *Coalescer) OnNoteStart(fn func(contracts.VoiceEvent)) func() {
	return c.noteStart.Add(fn)
}

// OnNoteUpdate subscribes to expression changes of sounding voices.
func (c *Coalescer) OnNoteUpdate(fn func(contracts.VoiceEvent)) func() {
	return c.noteUpdate.Add(fn)
}

// OnNoteEnd subscribes to voice ends.
func (c *Coalescer) OnNoteEnd(fn func(contracts.VoiceEvent)) func() {
	return c.noteEnd.Add(fn)
}

// Attach feeds the Coalescer from d's aggregated tick view and returns the
// function that detaches it.
func (c *Coalescer) Attach(d *input.Demux) func() {
	return d.OnTick(c.HandleTick)
}

// HandleTick processes one tick. Changes are applied in timestamp order, so
// expression sent just before a note-on is part of that note's start.
func (c *Coalescer) HandleTick(p *contracts.TickPayload) {
	c.collect(p)

	for _, ch := range c.members {
		v := &c.voices[ch]
		v.started, v.dirty, v.ended, v.hasPendingEnd = false, false, false, false
	}

	for _, ch := range c.changes {
		c.apply(ch, p.Timestamp)
	}

	for _, ch := range c.members {
		c.flush(ch, p.Timestamp)
	}
}

// collect gathers the tick's member-channel changes into c.changes, stably
// sorted by timestamp. Expression is collected before note edges, so on equal
// timestamps it is applied first.
func (c *Coalescer) collect(p *contracts.TickPayload) {
	changes := c.changes[:0]
	for _, e := range p.PitchBends {
		if c.member(e.Channel) {
			changes = append(changes, change{ts: e.Timestamp, kind: changePitchBend, channel: e.Channel, bend: e.Value})
		}
	}
	for _, e := range p.ChannelPressure {
		if c.member(e.Channel) {
			changes = append(changes, change{ts: e.Timestamp, kind: changePressure, channel: e.Channel, value: e.Pressure})
		}
	}
	for _, e := range p.ControlChanges {
		if e.Controller == c.timbreCC && c.member(e.Channel) {
			changes = append(changes, change{ts: e.Timestamp, kind: changeTimbre, channel: e.Channel, value: e.Value})
		}
	}
	for _, e := range p.Notes {
		if !c.member(e.Channel) {
			continue
		}
		kind := changeNoteOff
		if e.On {
			kind = changeNoteOn
		}
		changes = append(changes, change{ts: e.Timestamp, kind: kind, channel: e.Channel, note: e.Note, value: e.Velocity})
	}
	slices.SortStableFunc(changes, func(a, b change) int {
		return cmp.Compare(a.ts, b.ts)
	})
	c.changes = changes
}

func (c *Coalescer) apply(ch change, ts uint64) {
	v := &c.voices[ch.channel]
	switch ch.kind {
	case changeNoteOn:
		if v.active && v.ended && !v.started {
			v.pendingEnd = v.snapshot(ch.channel, ts)
			v.hasPendingEnd = true
		}
		// A second note-on without a note-off replaces the tracked note;
		// the replaced note's end is not reported.
		v.active = true
		v.note = ch.note
		v.velocity = ch.value
		v.releaseVelocity = 0
		v.started = true
		v.ended = false
	case changeNoteOff:
		if v.active && !v.ended && v.note == ch.note {
			v.ended = true
			v.releaseVelocity = ch.value
		}
	case changePitchBend:
		v.bend = ch.bend
		v.markDirty()
	case changePressure:
		v.pressure = ch.value
		v.markDirty()
	case changeTimbre:
		v.timbre = ch.value
		v.markDirty()
	}
}

func (v *voice) markDirty() {
	if v.active && !v.ended {
		v.dirty = true
	}
}

func (c *Coalescer) flush(ch uint8, ts uint64) {
	v := &c.voices[ch]
	if v.hasPendingEnd {
		c.noteEnd.Emit(v.pendingEnd)
		v.hasPendingEnd = false
	}
	if !v.active {
		return
	}
	if v.started {
		c.noteStart.Emit(v.snapshot(ch, ts))
	} else if v.dirty && !v.ended {
		c.noteUpdate.Emit(v.snapshot(ch, ts))
	}
	if v.ended {
		c.noteEnd.Emit(v.snapshot(ch, ts))
		v.active = false
		v.note = 0
		v.velocity = 0
	}
}
