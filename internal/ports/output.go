package ports

import (
	"fmt"

	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"

	"github.com/leandrodaf/mpe/sdk/contracts"
)

// Output sends channel-voice messages to one port. It implements
// contracts.ChannelOutput.
type Output struct {
	port drivers.Out
	send func(gomidi.Message) error
}

var _ contracts.ChannelOutput = (*Output)(nil)

// OpenOutput opens the output port matching name.
func OpenOutput(name string) (*Output, error) {
	out, err := findOutput(name)
	if err != nil {
		return nil, err
	}
	send, err := gomidi.SendTo(out)
	if err != nil {
		return nil, fmt.Errorf("ports: open output %q: %w", out.String(), err)
	}
	return &Output{port: out, send: send}, nil
}

// NewOutput wraps a send function, such as one returned by gomidi.SendTo.
func NewOutput(send func(gomidi.Message) error) *Output {
	return &Output{send: send}
}

// Name returns the port name, or "" when the Output wraps a bare send function.
func (o *Output) Name() string {
	if o.port == nil {
		return ""
	}
	return o.port.String()
}

func (o *Output) NoteOn(channel, key, velocity uint8) error {
	return o.send(gomidi.NoteOn(channel, key, velocity))
}

func (o *Output) NoteOff(channel, key, velocity uint8) error {
	return o.send(gomidi.NoteOffVelocity(channel, key, velocity))
}

// PitchBend sends a signed bend; values outside -8192..8191 are clamped.
func (o *Output) PitchBend(channel uint8, value int16) error {
	value = max(min(value, 8191), -8192)
	return o.send(gomidi.Pitchbend(channel, value))
}

func (o *Output) ChannelPressure(channel, pressure uint8) error {
	return o.send(gomidi.AfterTouch(channel, pressure))
}

func (o *Output) ControlChange(channel, controller, value uint8) error {
	return o.send(gomidi.ControlChange(channel, controller, value))
}

// Close closes the port.
func (o *Output) Close() error {
	if o.port == nil {
		return nil
	}
	return o.port.Close()
}
