package midi

import (
	"github.com/leandrodaf/mpe/internal/logger"
	"github.com/leandrodaf/mpe/sdk/bridge"
	"github.com/leandrodaf/mpe/sdk/contracts"
)

// applyDefaultOptions sets default values for ClientOptions if not explicitly provided.
func applyDefaultOptions(opts ...contracts.Option) contracts.ClientOptions {
	options := &contracts.ClientOptions{}
	for _, opt := range opts {
		opt(options)
	}

	if options.Logger == nil {
		options.Logger = logger.NewZapLogger()
		options.Logger.SetLevel(options.LogLevel)
		if options.LogFilePath != "" {
			options.Logger.SetDestination(contracts.FileLog, options.LogFilePath)
		}
	}
	if options.Metrics == nil {
		options.Metrics = contracts.NopMetrics{}
	}
	if options.CoreMIDIConfig == nil {
		options.CoreMIDIConfig = &contracts.CoreMIDIConfig{ClientName: "GO MPE Client"}
	}
	if options.DispatchRate <= 0 {
		options.DispatchRate = bridge.DefaultDispatchRate
	}
	if options.RawQueueSize <= 0 {
		options.RawQueueSize = bridge.DefaultRawQueueSize
	}
	if options.NoteQueueSize <= 0 {
		options.NoteQueueSize = bridge.DefaultNoteQueueSize
	}
	return *options
}

// asOptions replays resolved options onto another Option consumer.
func asOptions(o contracts.ClientOptions) []contracts.Option {
	return []contracts.Option{func(dst *contracts.ClientOptions) { *dst = o }}
}
