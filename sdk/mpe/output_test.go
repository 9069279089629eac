package mpe

import (
	"errors"
	"fmt"
)

// recordingOutput captures every message sent by a Device.
type recordingOutput struct {
	sent []string
	err  error
}

func (r *recordingOutput) add(format string, args ...any) error {
	r.sent = append(r.sent, fmt.Sprintf(format, args...))
	return r.err
}

func (r *recordingOutput) NoteOn(ch, key, vel uint8) error {
	return r.add("on ch=%d key=%d vel=%d", ch, key, vel)
}

func (r *recordingOutput) NoteOff(ch, key, vel uint8) error {
	return r.add("off ch=%d key=%d vel=%d", ch, key, vel)
}

func (r *recordingOutput) PitchBend(ch uint8, v int16) error {
	return r.add("bend ch=%d v=%d", ch, v)
}

func (r *recordingOutput) ChannelPressure(ch, p uint8) error {
	return r.add("pressure ch=%d v=%d", ch, p)
}

func (r *recordingOutput) ControlChange(ch, cc, v uint8) error {
	return r.add("cc ch=%d cc=%d v=%d", ch, cc, v)
}

func (r *recordingOutput) reset() {
	r.sent = nil
}

var errSend = errors.New("port gone")
