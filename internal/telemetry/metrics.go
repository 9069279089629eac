// Package telemetry exports pipeline counters to Prometheus.
package telemetry

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/leandrodaf/mpe/sdk/contracts"
)

const resultDecoded = "decoded"

var (
	registerOnce sync.Once

	ticks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mpe",
			Subsystem: "input",
			Name:      "ticks_total",
			Help:      "Packets received, by decode result.",
		},
		[]string{"result"},
	)
	records = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "mpe",
			Subsystem: "input",
			Name:      "records_total",
			Help:      "Records announced by decoded packets.",
		},
	)
	upstreamDrops = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mpe",
			Subsystem: "input",
			Name:      "upstream_drops_total",
			Help:      "Messages the producer dropped before dispatch, by queue.",
		},
		[]string{"queue"},
	)
	voices = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mpe",
			Subsystem: "output",
			Name:      "voices_total",
			Help:      "Output voice allocations, by outcome.",
		},
		[]string{"outcome"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(ticks, records, upstreamDrops, voices)
	})
}

// Handler serves the default registry.
func Handler() http.Handler {
	RegisterMetrics()
	return promhttp.Handler()
}

// Metrics implements contracts.Metrics on the package collectors.
type Metrics struct{}

var _ contracts.Metrics = Metrics{}

// New registers the collectors and returns a recorder.
func New() Metrics {
	RegisterMetrics()
	return Metrics{}
}

func (Metrics) TickDecoded(n int) {
	ticks.WithLabelValues(resultDecoded).Inc()
	records.Add(float64(n))
}

func (Metrics) TickRejected(reason string) {
	ticks.WithLabelValues(reason).Inc()
}

func (Metrics) UpstreamDrops(raw, note uint32) {
	if raw > 0 {
		upstreamDrops.WithLabelValues("raw").Add(float64(raw))
	}
	if note > 0 {
		upstreamDrops.WithLabelValues("note").Add(float64(note))
	}
}

func (Metrics) VoiceAllocated()    { voices.WithLabelValues("allocated").Inc() }
func (Metrics) VoiceStolen()       { voices.WithLabelValues("stolen").Inc() }
func (Metrics) AllocationRefused() { voices.WithLabelValues("refused").Inc() }
