package midi

import (
	"runtime"

	"github.com/leandrodaf/mpe/internal/midi/mididarwin"
	"github.com/leandrodaf/mpe/internal/midi/midiwindows"
	"github.com/leandrodaf/mpe/internal/ports"
	"github.com/leandrodaf/mpe/sdk/contracts"
)

type clientInitializer func(*contracts.ClientOptions) (contracts.ClientMIDI, error)

// clientInitializers maps OS names to native MIDI client initializers.
var clientInitializers = map[string]clientInitializer{
	"darwin":  mididarwin.NewMIDIClient,  // macOS (Darwin) MIDI client initializer.
	"windows": midiwindows.NewMIDIClient, // Windows MIDI client initializer.
}

// fallbackInitializer serves every other OS through the gomidi driver registry.
var fallbackInitializer clientInitializer = ports.NewClient

// NewClient initializes a MIDI client for the current operating system:
// CoreMIDI on macOS, winmm on Windows and the registered gomidi driver elsewhere.
func NewClient(opts *contracts.ClientOptions) (contracts.ClientMIDI, error) {
	return initializerFor(runtime.GOOS)(opts)
}

func initializerFor(goos string) clientInitializer {
	if initializer, exists := clientInitializers[goos]; exists {
		return initializer
	}
	return fallbackInitializer
}
