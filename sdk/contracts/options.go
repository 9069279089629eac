package contracts

import "time"

// MIDICommand represents the status nibble of a channel-voice message, used for event filtering.
type MIDICommand byte

const (
	// NoteOff is the MIDI command for a Note Off event (0x80).
	NoteOff MIDICommand = 0x80
	// NoteOn is the MIDI command for a Note On event (0x90).
	NoteOn MIDICommand = 0x90
	// PolyPressure is the MIDI command for polyphonic key pressure (0xA0).
	PolyPressure MIDICommand = 0xA0
	// ControlChange is the MIDI command for a control change (0xB0).
	ControlChange MIDICommand = 0xB0
	// ProgramChange is the MIDI command for a program change (0xC0).
	ProgramChange MIDICommand = 0xC0
	// ChannelPressure is the MIDI command for channel pressure (0xD0).
	ChannelPressure MIDICommand = 0xD0
	// PitchBend is the MIDI command for pitch bend (0xE0).
	PitchBend MIDICommand = 0xE0
)

// MIDIEventFilter allows users to specify which MIDI commands to capture.
type MIDIEventFilter struct {
	Commands []MIDICommand // List of MIDI commands to keep.
}

// Allows reports whether a status byte passes the filter. A nil filter allows everything.
func (f *MIDIEventFilter) Allows(status byte) bool {
	if f == nil {
		return true
	}
	command := MIDICommand(status & 0xF0)
	for _, allowed := range f.Commands {
		if command == allowed {
			return true
		}
	}
	return false
}

// CoreMIDIConfig holds configuration for CoreMIDI.
type CoreMIDIConfig struct {
	ClientName string // Name of the MIDI client.
}

// ClientOptions defines the configuration options for capture clients and the bridge they feed.
type ClientOptions struct {
	Logger          Logger           // Logger for logging events and errors.
	LogLevel        LogLevel         // Level of logging to use.
	LogFilePath     string           // File path for logging if file logging is enabled.
	Metrics         Metrics          // Telemetry sink.
	MIDIEventFilter *MIDIEventFilter // Optional filter for MIDI events to capture.
	CoreMIDIConfig  *CoreMIDIConfig  // Configuration specific to CoreMIDI.
	DispatchRate    time.Duration    // Interval between packets.
	RawQueueSize    int              // Capacity of the raw message queue.
	NoteQueueSize   int              // Capacity of the pending note-edge queue.
}

// Option is a function that modifies ClientOptions.
type Option func(*ClientOptions)

// WithLogger sets the logger for the MIDI client.
func WithLogger(l Logger) Option {
	return func(opts *ClientOptions) {
		opts.Logger = l
	}
}

// WithLogLevel sets the logging level for the MIDI client.
func WithLogLevel(level LogLevel) Option {
	return func(opts *ClientOptions) {
		opts.LogLevel = level
	}
}

// WithLogFile directs the client's logger to a file.
func WithLogFile(path string) Option {
	return func(opts *ClientOptions) {
		opts.LogFilePath = path
	}
}

// WithMetrics sets the telemetry sink.
func WithMetrics(m Metrics) Option {
	return func(opts *ClientOptions) {
		opts.Metrics = m
	}
}

// WithMIDIEventFilter sets the MIDI event filter for the MIDI client.
func WithMIDIEventFilter(filter MIDIEventFilter) Option {
	return func(opts *ClientOptions) {
		opts.MIDIEventFilter = &filter
	}
}

// WithCoreMIDIConfig sets the CoreMIDI configuration for the MIDI client.
func WithCoreMIDIConfig(config CoreMIDIConfig) Option {
	return func(opts *ClientOptions) {
		opts.CoreMIDIConfig = &config
	}
}

// WithDispatchRate sets the packet rate in ticks per second.
func WithDispatchRate(hz int) Option {
	return func(opts *ClientOptions) {
		if hz > 0 {
			opts.DispatchRate = time.Second / time.Duration(hz)
		}
	}
}

// WithQueueSizes sets the raw message and note-edge queue capacities.
func WithQueueSizes(raw, notes int) Option {
	return func(opts *ClientOptions) {
		opts.RawQueueSize = raw
		opts.NoteQueueSize = notes
	}
}
