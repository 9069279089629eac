package contracts

// Reasons passed to Metrics.TickRejected.
const (
	RejectTooSmall           = "too_small"
	RejectBadMagic           = "bad_magic"
	RejectUnsupportedVersion = "unsupported_version"
)

// Metrics receives counters from the packet pipeline and the voice allocator.
// Implementations must be cheap; they are called once per tick or per allocation.
type Metrics interface {
	TickDecoded(records int)
	TickRejected(reason string)
	UpstreamDrops(raw, note uint32)
	VoiceAllocated()
	VoiceStolen()
	AllocationRefused()
}

// NopMetrics discards everything.
type NopMetrics struct{}

func (NopMetrics) TickDecoded(int)              {}
func (NopMetrics) TickRejected(string)          {}
func (NopMetrics) UpstreamDrops(uint32, uint32) {}
func (NopMetrics) VoiceAllocated()              {}
func (NopMetrics) VoiceStolen()                 {}
func (NopMetrics) AllocationRefused()           {}
