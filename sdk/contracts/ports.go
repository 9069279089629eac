package contracts

// PortInfo describes a MIDI port as reported by a driver.
type PortInfo struct {
	Index        int    // Position in the driver's port list.
	Name         string // Port name.
	Manufacturer string // Device manufacturer, when the driver reports one.
	EntityName   string // Name of the entity to which the port belongs.
}

// RawMessage is one channel-voice MIDI message as captured from a port.
// Data holds up to three bytes; Len is the number of valid bytes.
type RawMessage struct {
	Timestamp uint64 // Capture time in microseconds.
	Data      [3]byte
	Len       uint8
}

// Status returns the status byte, or 0 for an empty message.
func (m RawMessage) Status() byte {
	if m.Len == 0 {
		return 0
	}
	return m.Data[0]
}

// Bytes returns the valid portion of Data.
func (m RawMessage) Bytes() []byte {
	n := int(m.Len)
	if n > len(m.Data) {
		n = len(m.Data)
	}
	return m.Data[:n]
}

// NewRawMessage copies up to three bytes of b into a RawMessage.
func NewRawMessage(ts uint64, b []byte) RawMessage {
	msg := RawMessage{Timestamp: ts}
	msg.Len = uint8(copy(msg.Data[:], b))
	return msg
}

// RawSink receives raw messages from a capture client. Deliver must not block;
// implementations are safe to call from driver threads.
type RawSink interface {
	Deliver(msg RawMessage)
}

// ClientMIDI defines an interface for MIDI capture client operations.
type ClientMIDI interface {
	Stop() error                      // Stops the client and releases resources.
	ListDevices() ([]PortInfo, error) // Lists all available input ports.
	SelectDevice(deviceID int) error  // Selects an input port by index.
	StartCapture(sink RawSink) error  // Starts delivering captured messages to sink.
}

// ChannelOutput sends channel-voice messages to one output port.
// Pitch bend values are signed, centred on zero (-8192..8191).
type ChannelOutput interface {
	NoteOn(channel, key, velocity uint8) error
	NoteOff(channel, key, velocity uint8) error
	PitchBend(channel uint8, value int16) error
	ChannelPressure(channel, pressure uint8) error
	ControlChange(channel, controller, value uint8) error
}
