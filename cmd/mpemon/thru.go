package main

import (
	"github.com/leandrodaf/mpe/sdk/contracts"
	"github.com/leandrodaf/mpe/sdk/mpe"
)

// thru replays coalesced input voices on an MPE output device. All methods run
// on the bridge goroutine.
type thru struct {
	dev    *mpe.Device
	logger contracts.Logger
	voices [16]thruVoice // by input channel
}

type thruVoice struct {
	handle   mpe.NoteHandle
	bend     int16
	pressure uint8
	timbre   uint8
}

func newThru(dev *mpe.Device, log contracts.Logger) *thru {
	return &thru{dev: dev, logger: log}
}

// attach subscribes to c and returns the unsubscribe function.
func (t *thru) attach(c *mpe.Coalescer) func() {
	offs := []func(){
		c.OnNoteStart(t.start),
		c.OnNoteUpdate(t.update),
		c.OnNoteEnd(t.end),
	}
	return func() {
		for _, off := range offs {
			off()
		}
	}
}

// start sounds a new voice. A start on a channel whose previous voice never
// ended releases that voice first so it cannot hold an output channel.
func (t *thru) start(e contracts.VoiceEvent) {
	if prev := &t.voices[e.Channel&0x0F]; prev.handle.Active() {
		prev.handle.NoteOff()
		*prev = thruVoice{}
	}
	h, ok := t.dev.NoteOn(e.Note, e.Velocity,
		mpe.WithBend(e.PitchBend),
		mpe.WithPressure(e.Pressure),
		mpe.WithTimbre(e.Timbre))
	if !ok {
		t.logger.Debug("Thru voice refused",
			t.logger.Field().Uint8("channel", e.Channel),
			t.logger.Field().Uint8("note", e.Note))
		return
	}
	t.voices[e.Channel&0x0F] = thruVoice{handle: h, bend: e.PitchBend, pressure: e.Pressure, timbre: e.Timbre}
}

func (t *thru) update(e contracts.VoiceEvent) {
	v := &t.voices[e.Channel&0x0F]
	if !v.handle.Active() {
		return
	}
	if e.PitchBend != v.bend {
		v.handle.PitchBend(e.PitchBend)
		v.bend = e.PitchBend
	}
	if e.Pressure != v.pressure {
		v.handle.Pressure(e.Pressure)
		v.pressure = e.Pressure
	}
	if e.Timbre != v.timbre {
		v.handle.Timbre(e.Timbre)
		v.timbre = e.Timbre
	}
}

func (t *thru) end(e contracts.VoiceEvent) {
	v := &t.voices[e.Channel&0x0F]
	v.handle.NoteOff(e.ReleaseVelocity)
	*v = thruVoice{}
}
