package mpe

// NoteHandle identifies one note started by a Device. It stays valid after
// the note ends; operations on an ended note return false.
type NoteHandle struct {
	id  uint64
	dev *Device
}

// ID returns the note's process-local id. Ids increase monotonically.
func (h NoteHandle) ID() uint64 {
	return h.id
}

// Active reports whether the note is still sounding.
func (h NoteHandle) Active() bool {
	if h.dev == nil {
		return false
	}
	_, ok := h.dev.lookup(h.id)
	return ok
}

// PitchBend sends a bend (-8192..8191) to the note's channel.
func (h NoteHandle) PitchBend(v int16) bool {
	n, ok := h.note()
	if !ok {
		return false
	}
	h.dev.check(h.dev.out.PitchBend(n.channel, v), "pitch bend", n.channel)
	return true
}

// Pressure sends channel pressure to the note's channel.
func (h NoteHandle) Pressure(v uint8) bool {
	n, ok := h.note()
	if !ok {
		return false
	}
	h.dev.check(h.dev.out.ChannelPressure(n.channel, v&0x7F), "channel pressure", n.channel)
	return true
}

// Timbre sends the timbre controller to the note's channel.
func (h NoteHandle) Timbre(v uint8) bool {
	n, ok := h.note()
	if !ok {
		return false
	}
	h.dev.check(h.dev.out.ControlChange(n.channel, h.dev.cfg.TimbreCC, v&0x7F), "timbre", n.channel)
	return true
}

// NoteOff ends this note. velocity defaults to the configured release velocity.
func (h NoteHandle) NoteOff(velocity ...uint8) bool {
	if h.dev == nil {
		return false
	}
	return h.dev.release(h.id, h.dev.releaseVelocity(velocity))
}

func (h NoteHandle) note() (activeNote, bool) {
	if h.dev == nil {
		return activeNote{}, false
	}
	return h.dev.lookup(h.id)
}
