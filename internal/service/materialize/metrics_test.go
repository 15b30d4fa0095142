package materialize

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetricsObserve(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewMetrics(registry)

	m.observe("system", 0.25, 12, nil)
	m.observe("workspace", 1.5, 0, errors.New("prime failed"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.primeTotal.WithLabelValues("system", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.primeTotal.WithLabelValues("workspace", "failure")))
	assert.Equal(t, 12.0, testutil.ToFloat64(m.primeEntries.WithLabelValues("system")))

	// Failed passes never update the entries gauge.
	assert.Equal(t, 0.0, testutil.ToFloat64(m.primeEntries.WithLabelValues("workspace")))
}

func TestMetricsObserve_NilReceiver(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.observe("system", 0.1, 1, nil)
	})
}

func TestNewMetrics_NilRegisterer(t *testing.T) {
	assert.NotPanics(t, func() {
		m := NewMetrics(nil)
		m.observe("system", 0.1, 1, nil)
	})
}
