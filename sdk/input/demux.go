// Package input turns decoded packets into typed events for subscribers.
package input

import (
	"errors"

	"github.com/leandrodaf/mpe/internal/listeners"
	"github.com/leandrodaf/mpe/internal/logger"
	"github.com/leandrodaf/mpe/sdk/contracts"
	"github.com/leandrodaf/mpe/sdk/packet"
)

// Demux owns the subscriber sets of one input connection and fans out each
// packet's records to them. A Demux is confined to the goroutine that calls
// HandlePacket; subscribe and unsubscribe from that goroutine as well.
type Demux struct {
	logger  contracts.Logger
	metrics contracts.Metrics

	controlChange   listeners.Registry[contracts.ControlChangeEvent]
	pitchBend       listeners.Registry[contracts.PitchBendEvent]
	channelPressure listeners.Registry[contracts.ChannelPressureEvent]
	polyPressure    listeners.Registry[contracts.PolyPressureEvent]
	programChange   listeners.Registry[contracts.ProgramChangeEvent]
	note            listeners.Registry[contracts.NoteEvent]
	noteOn          listeners.Registry[contracts.NoteOnEvent]
	noteOff         listeners.Registry[contracts.NoteOffEvent]
	tick            listeners.Registry[*contracts.TickPayload]

	buf        []byte
	lastReject string // reason of the previous packet's rejection, "" after a good packet
}

// Option configures a Demux.
type Option func(*Demux)

// WithLogger sets the logger used for dropped ticks.
func WithLogger(l contracts.Logger) Option {
	return func(d *Demux) {
		d.logger = l
	}
}

// WithMetrics sets the telemetry sink.
func WithMetrics(m contracts.Metrics) Option {
	return func(d *Demux) {
		d.metrics = m
	}
}

// New creates a Demux with no subscribers.
func New(opts ...Option) *Demux {
	d := &Demux{metrics: contracts.NopMetrics{}}
	for _, opt := range opts {
		opt(d)
	}
	if d.logger == nil {
		d.logger = logger.NewNopLogger()
	}
	return d
}

// OnControlChange subscribes to control-change events. The returned function unsubscribes.
func (d *Demux) OnControlChange(fn func(contracts.ControlChangeEvent)) func() {
	return d.controlChange.Add(fn)
}

// OnPitchBend subscribes to pitch-bend events.
func (d *Demux) OnPitchBend(fn func(contracts.PitchBendEvent)) func() {
	return d.pitchBend.Add(fn)
}

// OnChannelPressure subscribes to channel-pressure events.
func (d *Demux) OnChannelPressure(fn func(contracts.ChannelPressureEvent)) func() {
	return d.channelPressure.Add(fn)
}

// OnPolyPressure subscribes to polyphonic key-pressure events.
func (d *Demux) OnPolyPressure(fn func(contracts.PolyPressureEvent)) func() {
	return d.polyPressure.Add(fn)
}

// OnProgramChange subscribes to program-change events.
func (d *Demux) OnProgramChange(fn func(contracts.ProgramChangeEvent)) func() {
	return d.programChange.Add(fn)
}

// OnNote subscribes to every note edge, on and off.
func (d *Demux) OnNote(fn func(contracts.NoteEvent)) func() {
	return d.note.Add(fn)
}

// OnNoteOn subscribes to note-on edges only.
func (d *Demux) OnNoteOn(fn func(contracts.NoteOnEvent)) func() {
	return d.noteOn.Add(fn)
}

// OnNoteOff subscribes to note-off edges only.
func (d *Demux) OnNoteOff(fn func(contracts.NoteOffEvent)) func() {
	return d.noteOff.Add(fn)
}

// OnTick subscribes to the aggregated per-tick view. fn runs once per packet,
// after every per-kind listener, and owns the payload it receives.
func (d *Demux) OnTick(fn func(*contracts.TickPayload)) func() {
	return d.tick.Add(fn)
}

// HandlePacket copies buf, decodes it and dispatches its records. A packet
// that fails to decode is dropped as a whole; the producer regenerates
// state every tick, so a gap heals itself. Nothing is allocated for kinds
// without listeners, and the tick payload is only built when OnTick has a
// subscriber.
func (d *Demux) HandlePacket(buf []byte) {
	d.buf = append(d.buf[:0], buf...)
	buf = d.buf

	h, err := packet.ParseHeader(buf)
	if err != nil {
		reason := rejectReason(err)
		d.metrics.TickRejected(reason)
		if reason != d.lastReject {
			d.lastReject = reason
			d.logger.Debug("Dropping packets", d.logger.Field().Error("error", err),
				d.logger.Field().Int("bytes", len(buf)))
		}
		return
	}
	d.lastReject = ""

	n := packet.RecordsAvailable(h, len(buf))
	d.metrics.TickDecoded(n)
	if h.DroppedRaw != 0 || h.DroppedNote != 0 {
		d.metrics.UpstreamDrops(h.DroppedRaw, h.DroppedNote)
	}

	var payload *contracts.TickPayload
	if !d.tick.Empty() {
		payload = &contracts.TickPayload{
			Timestamp:   h.DispatchTsUs,
			DroppedRaw:  h.DroppedRaw,
			DroppedNote: h.DroppedNote,
		}
	}

	for i := 0; i < n; i++ {
		d.dispatch(packet.DecodeRecord(buf, i), payload)
	}

	if payload != nil {
		d.tick.Emit(payload)
	}
}

// dispatch fans out one record. Records addressed outside channels 0..15
// are ignored like unknown kinds.
func (d *Demux) dispatch(r packet.Record, payload *contracts.TickPayload) {
	if r.Channel > 15 {
		return
	}
	switch r.Kind {
	case packet.KindControlChange:
		if d.controlChange.Empty() && payload == nil {
			return
		}
		ev := contracts.ControlChangeEvent{Timestamp: r.TsUs, Channel: r.Channel, Controller: r.A, Value: r.B}
		d.controlChange.Emit(ev)
		if payload != nil {
			payload.ControlChanges = append(payload.ControlChanges, ev)
		}

	case packet.KindPitchBend:
		if d.pitchBend.Empty() && payload == nil {
			return
		}
		ev := contracts.PitchBendEvent{Timestamp: r.TsUs, Channel: r.Channel, Value: r.V16}
		d.pitchBend.Emit(ev)
		if payload != nil {
			payload.PitchBends = append(payload.PitchBends, ev)
		}

	case packet.KindChannelPressure:
		if d.channelPressure.Empty() && payload == nil {
			return
		}
		ev := contracts.ChannelPressureEvent{Timestamp: r.TsUs, Channel: r.Channel, Pressure: r.B}
		d.channelPressure.Emit(ev)
		if payload != nil {
			payload.ChannelPressure = append(payload.ChannelPressure, ev)
		}

	case packet.KindPolyPressure:
		if d.polyPressure.Empty() && payload == nil {
			return
		}
		ev := contracts.PolyPressureEvent{Timestamp: r.TsUs, Channel: r.Channel, Note: r.A, Pressure: r.B}
		d.polyPressure.Emit(ev)
		if payload != nil {
			payload.PolyPressure = append(payload.PolyPressure, ev)
		}

	case packet.KindProgramChange:
		if d.programChange.Empty() && payload == nil {
			return
		}
		ev := contracts.ProgramChangeEvent{Timestamp: r.TsUs, Channel: r.Channel, Program: r.B}
		d.programChange.Emit(ev)
		if payload != nil {
			payload.ProgramChanges = append(payload.ProgramChanges, ev)
		}

	case packet.KindNote:
		d.dispatchNote(r, payload)
	}
}

func (d *Demux) dispatchNote(r packet.Record, payload *contracts.TickPayload) {
	on := r.NoteOn()
	if !d.note.Empty() || payload != nil {
		ev := contracts.NoteEvent{Timestamp: r.TsUs, Channel: r.Channel, Note: r.A, Velocity: r.B, On: on}
		d.note.Emit(ev)
		if payload != nil {
			payload.Notes = append(payload.Notes, ev)
		}
	}
	if on {
		if !d.noteOn.Empty() {
			d.noteOn.Emit(contracts.NoteOnEvent{Timestamp: r.TsUs, Channel: r.Channel, Note: r.A, Velocity: r.B})
		}
		return
	}
	if !d.noteOff.Empty() {
		d.noteOff.Emit(contracts.NoteOffEvent{Timestamp: r.TsUs, Channel: r.Channel, Note: r.A, Velocity: r.B})
	}
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, packet.ErrTooSmall):
		return contracts.RejectTooSmall
	case errors.Is(err, packet.ErrBadMagic):
		return contracts.RejectBadMagic
	default:
		return contracts.RejectUnsupportedVersion
	}
}
