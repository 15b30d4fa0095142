package materialize

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the prometheus instrumentation for prime passes.
type Metrics struct {
	primeDuration *prometheus.HistogramVec
	primeTotal    *prometheus.CounterVec
	primeEntries  *prometheus.GaugeVec
}

// NewMetrics creates and registers the prime metrics on the given
// registerer. Pass prometheus.DefaultRegisterer in production wiring.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		primeDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "strata",
				Subsystem: "prime",
				Name:      "duration_seconds",
				Help:      "Duration of one scope prime pass.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"scope"},
		),
		primeTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "strata",
				Subsystem: "prime",
				Name:      "total",
				Help:      "Prime passes by scope and outcome.",
			},
			[]string{"scope", "outcome"},
		),
		primeEntries: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "strata",
				Subsystem: "prime",
				Name:      "entries",
				Help:      "Resolved entries written by the last prime of a scope.",
			},
			[]string{"scope"},
		),
	}

	if reg != nil {
		reg.MustRegister(m.primeDuration, m.primeTotal, m.primeEntries)
	}

	return m
}

func (m *Metrics) observe(scope string, seconds float64, entries int, err error) {
	if m == nil {
		return
	}

	outcome := "success"
	if err != nil {
		outcome = "failure"
	}

	m.primeDuration.WithLabelValues(scope).Observe(seconds)
	m.primeTotal.WithLabelValues(scope, outcome).Inc()
	if err == nil {
		m.primeEntries.WithLabelValues(scope).Set(float64(entries))
	}
}
