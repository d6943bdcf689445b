package metric

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterAndUnregister(t *testing.T) {
	registry := NewMetricsRegistry()

	counter := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "streamcore",
		Subsystem: "test",
		Name:      "events_total",
	})
	require.NoError(t, registry.RegisterCounter("pipeline", "events", counter))

	// Duplicate key is rejected
	err := registry.RegisterCounter("pipeline", "events", counter)
	assert.Error(t, err)

	assert.True(t, registry.Unregister("pipeline", "events"))
	assert.False(t, registry.Unregister("pipeline", "events"))

	// Re-registration succeeds after unregister
	require.NoError(t, registry.RegisterCounter("pipeline", "events", counter))
}

func TestRegisterAllKinds(t *testing.T) {
	registry := NewMetricsRegistry()

	require.NoError(t, registry.RegisterGauge("scheduler", "engines", prometheus.NewGauge(
		prometheus.GaugeOpts{Namespace: "streamcore", Subsystem: "scheduler", Name: "engines"})))
	require.NoError(t, registry.RegisterHistogram("scheduler", "cycle", prometheus.NewHistogram(
		prometheus.HistogramOpts{Namespace: "streamcore", Subsystem: "scheduler", Name: "cycle_seconds"})))
	require.NoError(t, registry.RegisterCounterVec("pipeline", "frames", prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "streamcore", Subsystem: "pipeline", Name: "frames_total"},
		[]string{"kind"})))
	require.NoError(t, registry.RegisterGaugeVec("worker", "state", prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Namespace: "streamcore", Subsystem: "worker", Name: "state"},
		[]string{"worker"})))
}

func TestHandlerServesMetrics(t *testing.T) {
	registry := NewMetricsRegistry()
	assert.NotNil(t, registry.Handler())
	assert.NotNil(t, registry.PrometheusRegistry())
}
