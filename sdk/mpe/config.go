// Package mpe maps between per-channel MIDI messages and MPE voices: the
// Coalescer turns one tick of input into voice start/update/end events, and
// the Device allocates member channels to logical notes on output.
package mpe

import (
	"errors"
	"fmt"
	"strings"

	"github.com/leandrodaf/mpe/internal/logger"
	"github.com/leandrodaf/mpe/sdk/contracts"
)

// Zone selects the master channel and the default member range.
type Zone int

const (
	// LowerZone uses channel 0 as master and 1..15 as members.
	LowerZone Zone = iota
	// UpperZone uses channel 15 as master and 0..14 as members.
	UpperZone
)

// MasterChannel returns the zone's default master channel.
func (z Zone) MasterChannel() uint8 {
	if z == UpperZone {
		return 15
	}
	return 0
}

func (z Zone) String() string {
	if z == UpperZone {
		return "upper"
	}
	return "lower"
}

// ParseZone accepts "lower" or "upper".
func ParseZone(raw string) (Zone, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "lower":
		return LowerZone, nil
	case "upper":
		return UpperZone, nil
	default:
		return LowerZone, fmt.Errorf("%w: zone %q", ErrInvalidConfig, raw)
	}
}

// Overflow decides what NoteOn does when no member channel is free.
type Overflow int

const (
	// OverflowOldest ends the oldest active note and reuses its channel.
	OverflowOldest Overflow = iota
	// OverflowNone refuses the allocation.
	OverflowNone
)

func (o Overflow) String() string {
	if o == OverflowNone {
		return "none"
	}
	return "oldest"
}

// ParseOverflow accepts "oldest" or "none".
func ParseOverflow(raw string) (Overflow, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "oldest":
		return OverflowOldest, nil
	case "none":
		return OverflowNone, nil
	default:
		return OverflowOldest, fmt.Errorf("%w: overflow %q", ErrInvalidConfig, raw)
	}
}

const (
	DefaultTimbreCC        uint8 = 74
	DefaultReleaseVelocity uint8 = 64
	DefaultPitchBendRange  uint8 = 48
)

// ErrInvalidConfig is returned for channel layouts or values outside the MIDI ranges.
var ErrInvalidConfig = errors.New("mpe: invalid configuration")

// Config holds the settings shared by the Coalescer and the Device. Fields
// that only apply to output are ignored by the Coalescer.
type Config struct {
	Zone            Zone
	MasterChannel   int // -1 selects the zone default.
	MemberLow       int // -1 selects the zone default range.
	MemberHigh      int
	Channels        func() []uint8 // Overrides the member range when set.
	TimbreCC        uint8
	Overflow        Overflow
	ReleaseVelocity uint8
	PitchBendRange  uint8 // Semitones, sent by Device.ConfigureZone.
	Logger          contracts.Logger
	Metrics         contracts.Metrics
}

// Option modifies a Config.
type Option func(*Config)

// WithZone selects the lower or upper zone.
func WithZone(z Zone) Option {
	return func(c *Config) {
		c.Zone = z
	}
}

// WithMasterChannel overrides the zone's master channel.
func WithMasterChannel(ch uint8) Option {
	return func(c *Config) {
		c.MasterChannel = int(ch)
	}
}

// WithMemberChannels overrides the member range, inclusive. The master
// channel is excluded even when it falls inside the range.
func WithMemberChannels(low, high uint8) Option {
	return func(c *Config) {
		c.MemberLow = int(low)
		c.MemberHigh = int(high)
	}
}

// WithChannels supplies the member channels from an external source, such as
// the list of channels an output port exposes.
func WithChannels(fn func() []uint8) Option {
	return func(c *Config) {
		c.Channels = fn
	}
}

// WithTimbreCC sets the controller number carrying timbre.
func WithTimbreCC(cc uint8) Option {
	return func(c *Config) {
		c.TimbreCC = cc
	}
}

// WithOverflow sets the allocation policy when every member channel is busy.
func WithOverflow(o Overflow) Option {
	return func(c *Config) {
		c.Overflow = o
	}
}

// WithReleaseVelocity sets the note-off velocity used for stolen notes and
// for note-offs that do not specify one.
func WithReleaseVelocity(v uint8) Option {
	return func(c *Config) {
		c.ReleaseVelocity = v
	}
}

// WithPitchBendRange sets the member pitch-bend range in semitones.
func WithPitchBendRange(semitones uint8) Option {
	return func(c *Config) {
		c.PitchBendRange = semitones
	}
}

// WithLogger sets the logger.
func WithLogger(l contracts.Logger) Option {
	return func(c *Config) {
		c.Logger = l
	}
}

// WithMetrics sets the telemetry sink.
func WithMetrics(m contracts.Metrics) Option {
	return func(c *Config) {
		c.Metrics = m
	}
}

func applyDefaultOptions(opts ...Option) Config {
	cfg := Config{
		MasterChannel:   -1,
		MemberLow:       -1,
		MemberHigh:      -1,
		TimbreCC:        DefaultTimbreCC,
		ReleaseVelocity: DefaultReleaseVelocity,
		PitchBendRange:  DefaultPitchBendRange,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.NewNopLogger()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = contracts.NopMetrics{}
	}
	return cfg
}

// layout resolves the master channel and the ordered, de-duplicated member list.
func (c Config) layout() (uint8, []uint8, error) {
	master := int(c.Zone.MasterChannel())
	if c.MasterChannel >= 0 {
		master = c.MasterChannel
	}
	if master > 15 {
		return 0, nil, fmt.Errorf("%w: master channel %d", ErrInvalidConfig, master)
	}
	if c.TimbreCC > 127 || c.ReleaseVelocity > 127 || c.PitchBendRange > 127 {
		return 0, nil, fmt.Errorf("%w: data byte above 127", ErrInvalidConfig)
	}

	var candidates []uint8
	switch {
	case c.Channels != nil:
		candidates = c.Channels()
	case c.MemberLow >= 0 || c.MemberHigh >= 0:
		if c.MemberLow < 0 || c.MemberHigh > 15 || c.MemberLow > c.MemberHigh {
			return 0, nil, fmt.Errorf("%w: member range %d..%d", ErrInvalidConfig, c.MemberLow, c.MemberHigh)
		}
		for ch := c.MemberLow; ch <= c.MemberHigh; ch++ {
			candidates = append(candidates, uint8(ch))
		}
	default:
		for ch := 0; ch < 16; ch++ {
			candidates = append(candidates, uint8(ch))
		}
	}

	var seen [16]bool
	members := make([]uint8, 0, len(candidates))
	for _, ch := range candidates {
		if ch > 15 || int(ch) == master || seen[ch] {
			continue
		}
		seen[ch] = true
		members = append(members, ch)
	}
	if len(members) == 0 {
		return 0, nil, fmt.Errorf("%w: no member channels", ErrInvalidConfig)
	}
	return uint8(master), members, nil
}
