// Package splitter cuts driver byte streams into single channel-voice
// messages.
package splitter

import "github.com/leandrodaf/mpe/sdk/contracts"

// Splitter tracks running status across calls. A Splitter belongs to one
// input port and is not safe for concurrent use.
type Splitter struct {
	running byte
	pending [3]byte
	n       int
}

// Split feeds data to the splitter and calls emit for each complete
// channel-voice message. System exclusive payloads and other system messages
// are skipped; real-time bytes never disturb a message in progress.
func (s *Splitter) Split(ts uint64, data []byte, emit func(contracts.RawMessage)) {
	for _, b := range data {
		switch {
		case b >= 0xF8:
			// real-time
		case b >= 0xF0:
			s.running, s.n = 0, 0
		case b&0x80 != 0:
			s.running = b
			s.pending[0], s.n = b, 1
		default:
			if s.running == 0 {
				continue
			}
			if s.n == 0 {
				s.pending[0], s.n = s.running, 1
			}
			s.pending[s.n] = b
			s.n++
			if s.n == Length(s.running) {
				emit(contracts.NewRawMessage(ts, s.pending[:s.n]))
				s.n = 0
			}
		}
	}
}

// Reset forgets running status and any partial message.
func (s *Splitter) Reset() {
	s.running, s.n = 0, 0
}

// Length is the byte length of a channel-voice message with this status.
func Length(status byte) int {
	switch status & 0xF0 {
	case 0xC0, 0xD0:
		return 2
	default:
		return 3
	}
}

// ShortMessage unpacks a message packed into the low three bytes of a
// word, status first. It reports false for system and malformed words.
func ShortMessage(ts uint64, word uint32) (contracts.RawMessage, bool) {
	status := byte(word)
	if status < 0x80 || status >= 0xF0 {
		return contracts.RawMessage{}, false
	}
	data := [3]byte{status, byte(word >> 8), byte(word >> 16)}
	return contracts.NewRawMessage(ts, data[:Length(status)]), true
}
