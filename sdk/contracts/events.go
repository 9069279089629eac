package contracts

// ControlChangeEvent is a decoded control-change record.
type ControlChangeEvent struct {
	Timestamp  uint64 // Microseconds.
	Channel    uint8
	Controller uint8
	Value      uint8
}

// PitchBendEvent is a decoded pitch-bend record. Value is centred on zero.
type PitchBendEvent struct {
	Timestamp uint64
	Channel   uint8
	Value     int16
}

// ChannelPressureEvent is a decoded channel-pressure record.
type ChannelPressureEvent struct {
	Timestamp uint64
	Channel   uint8
	Pressure  uint8
}

// PolyPressureEvent is a decoded polyphonic key-pressure record.
type PolyPressureEvent struct {
	Timestamp uint64
	Channel   uint8
	Note      uint8
	Pressure  uint8
}

// ProgramChangeEvent is a decoded program-change record.
type ProgramChangeEvent struct {
	Timestamp uint64
	Channel   uint8
	Program   uint8
}

// NoteEvent is a decoded note edge. Velocity is the off velocity when On is false.
type NoteEvent struct {
	Timestamp uint64
	Channel   uint8
	Note      uint8
	Velocity  uint8
	On        bool
}

// NoteOnEvent is the note-on half of NoteEvent.
type NoteOnEvent struct {
	Timestamp uint64
	Channel   uint8
	Note      uint8
	Velocity  uint8
}

// NoteOffEvent is the note-off half of NoteEvent.
type NoteOffEvent struct {
	Timestamp uint64
	Channel   uint8
	Note      uint8
	Velocity  uint8
}

// TickPayload aggregates every event of one packet, per kind, in record order.
type TickPayload struct {
	Timestamp       uint64 // Dispatch timestamp of the tick, microseconds.
	DroppedRaw      uint32
	DroppedNote     uint32
	ControlChanges  []ControlChangeEvent
	PitchBends      []PitchBendEvent
	ChannelPressure []ChannelPressureEvent
	PolyPressure    []PolyPressureEvent
	ProgramChanges  []ProgramChangeEvent
	Notes           []NoteEvent
}

// VoiceEvent is one MPE voice lifecycle event: a snapshot of the voice state on a member channel.
type VoiceEvent struct {
	Timestamp       uint64 // Dispatch timestamp of the tick that produced the event.
	Channel         uint8
	Note            uint8
	Velocity        uint8
	ReleaseVelocity uint8 // Set on note end only.
	PitchBend       int16
	Pressure        uint8
	Timbre          uint8
}
