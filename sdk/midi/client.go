// Package midi opens a platform capture client and runs it into a bridge.
package midi

import (
	"github.com/leandrodaf/mpe/sdk/contracts"
)

// NewMIDIClient creates a new MIDI client with the specified options.
// It applies default options and initializes the client for the current platform.
func NewMIDIClient(opts ...contracts.Option) (contracts.ClientMIDI, error) {
	options := applyDefaultOptions(opts...)

	client, err := NewClient(&options)
	if err != nil {
		return nil, err
	}

	return client, nil
}
