// Package config loads the mpemon TOML configuration.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/leandrodaf/mpe/internal/logger"
	"github.com/leandrodaf/mpe/sdk/contracts"
	"github.com/leandrodaf/mpe/sdk/mpe"
)

var ErrInvalid = errors.New("config: invalid")

// Config mirrors the TOML file. Keys left out keep their defaults.
type Config struct {
	Input   Input   `toml:"input"`
	MPE     MPE     `toml:"mpe"`
	Output  Output  `toml:"output"`
	Log     Log     `toml:"log"`
	Metrics Metrics `toml:"metrics"`
}

type Input struct {
	Device    int      `toml:"device"`
	RateHz    int      `toml:"rate_hz"`
	RawQueue  int      `toml:"raw_queue"`
	NoteQueue int      `toml:"note_queue"`
	Commands  []string `toml:"commands"` // Empty keeps every channel-voice command.
}

type MPE struct {
	Zone            string  `toml:"zone"`
	Members         []uint8 `toml:"members"` // Optional [low, high] member range.
	TimbreCC        uint8   `toml:"timbre_cc"`
	Overflow        string  `toml:"overflow"`
	ReleaseVelocity uint8   `toml:"release_velocity"`
	PitchBendRange  uint8   `toml:"pitch_bend_range"`
}

// Output configures MPE thru. An empty Port disables it.
type Output struct {
	Port          string `toml:"port"`
	ConfigureZone bool   `toml:"configure_zone"`
}

type Log struct {
	Level string `toml:"level"`
	File  string `toml:"file"`
}

// Metrics enables the Prometheus endpoint when Addr is set.
type Metrics struct {
	Addr string `toml:"addr"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Input: Input{
			RateHz:    250,
			RawQueue:  4096,
			NoteQueue: 4096,
		},
		MPE: MPE{
			Zone:            mpe.LowerZone.String(),
			TimbreCC:        mpe.DefaultTimbreCC,
			Overflow:        mpe.OverflowOldest.String(),
			ReleaseVelocity: mpe.DefaultReleaseVelocity,
			PitchBendRange:  mpe.DefaultPitchBendRange,
		},
		Output: Output{ConfigureZone: true},
		Log:    Log{Level: "info"},
	}
}

// Load reads path over the defaults and validates the result. An empty path
// returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("load config %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return Config{}, fmt.Errorf("%w: unknown keys %s", ErrInvalid, strings.Join(keys, ", "))
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks ranges and enumerations.
func (c Config) Validate() error {
	if c.Input.Device < 0 {
		return fmt.Errorf("%w: input.device %d", ErrInvalid, c.Input.Device)
	}
	if c.Input.RateHz <= 0 || c.Input.RateHz > 10000 {
		return fmt.Errorf("%w: input.rate_hz %d", ErrInvalid, c.Input.RateHz)
	}
	if c.Input.RawQueue <= 0 || c.Input.NoteQueue <= 0 {
		return fmt.Errorf("%w: queue sizes must be positive", ErrInvalid)
	}
	if _, err := c.Filter(); err != nil {
		return err
	}
	if _, err := mpe.ParseZone(c.MPE.Zone); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if _, err := mpe.ParseOverflow(c.MPE.Overflow); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if n := len(c.MPE.Members); n != 0 && (n != 2 || c.MPE.Members[0] > c.MPE.Members[1] || c.MPE.Members[1] > 15) {
		return fmt.Errorf("%w: mpe.members %v", ErrInvalid, c.MPE.Members)
	}
	if c.MPE.TimbreCC > 127 || c.MPE.ReleaseVelocity > 127 || c.MPE.PitchBendRange > 96 {
		return fmt.Errorf("%w: mpe values out of range", ErrInvalid)
	}
	if _, err := logger.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}

var commandNames = map[string]contracts.MIDICommand{
	"note_off":         contracts.NoteOff,
	"note_on":          contracts.NoteOn,
	"poly_pressure":    contracts.PolyPressure,
	"control_change":   contracts.ControlChange,
	"program_change":   contracts.ProgramChange,
	"channel_pressure": contracts.ChannelPressure,
	"pitch_bend":       contracts.PitchBend,
}

// Filter returns the input command filter, or nil when every command is kept.
func (c Config) Filter() (*contracts.MIDIEventFilter, error) {
	if len(c.Input.Commands) == 0 {
		return nil, nil
	}
	filter := &contracts.MIDIEventFilter{}
	for _, name := range c.Input.Commands {
		cmd, ok := commandNames[strings.ToLower(strings.TrimSpace(name))]
		if !ok {
			return nil, fmt.Errorf("%w: input.commands %q", ErrInvalid, name)
		}
		filter.Commands = append(filter.Commands, cmd)
	}
	return filter, nil
}

// ClientOptions converts the input and log tables to capture options.
func (c Config) ClientOptions() ([]contracts.Option, error) {
	level, err := logger.ParseLevel(c.Log.Level)
	if err != nil {
		return nil, err
	}
	opts := []contracts.Option{
		contracts.WithLogLevel(level),
		contracts.WithDispatchRate(c.Input.RateHz),
		contracts.WithQueueSizes(c.Input.RawQueue, c.Input.NoteQueue),
	}
	if c.Log.File != "" {
		opts = append(opts, contracts.WithLogFile(c.Log.File))
	}
	filter, err := c.Filter()
	if err != nil {
		return nil, err
	}
	if filter != nil {
		opts = append(opts, contracts.WithMIDIEventFilter(*filter))
	}
	return opts, nil
}

// MPEOptions converts the mpe table to coalescer and device options.
func (c Config) MPEOptions() ([]mpe.Option, error) {
	zone, err := mpe.ParseZone(c.MPE.Zone)
	if err != nil {
		return nil, err
	}
	overflow, err := mpe.ParseOverflow(c.MPE.Overflow)
	if err != nil {
		return nil, err
	}
	opts := []mpe.Option{
		mpe.WithZone(zone),
		mpe.WithTimbreCC(c.MPE.TimbreCC),
		mpe.WithOverflow(overflow),
		mpe.WithReleaseVelocity(c.MPE.ReleaseVelocity),
		mpe.WithPitchBendRange(c.MPE.PitchBendRange),
	}
	if len(c.MPE.Members) == 2 {
		opts = append(opts, mpe.WithMemberChannels(c.MPE.Members[0], c.MPE.Members[1]))
	}
	return opts, nil
}
