package scheduler

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/streamcore/metric"
)

// Metrics holds Prometheus metrics for the scheduler
type Metrics struct {
	engines       prometheus.Gauge
	cycles        prometheus.Counter
	cycleDuration prometheus.Histogram
}

// newMetrics creates and registers scheduler metrics
func newMetrics(registry *metric.MetricsRegistry) (*Metrics, error) {
	m := &Metrics{
		engines: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "streamcore",
			Subsystem: "scheduler",
			Name:      "engines",
			Help:      "Registered tick sources",
		}),
		cycles: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "streamcore",
			Subsystem: "scheduler",
			Name:      "cycles_total",
			Help:      "Completed scheduling cycles",
		}),
		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "streamcore",
			Subsystem: "scheduler",
			Name:      "cycle_duration_seconds",
			Help:      "Wall time of one scheduling cycle",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 12),
		}),
	}

	if err := registry.RegisterGauge("scheduler", "engines", m.engines); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter("scheduler", "cycles", m.cycles); err != nil {
		return nil, err
	}
	if err := registry.RegisterHistogram("scheduler", "cycle_duration", m.cycleDuration); err != nil {
		return nil, err
	}

	return m, nil
}

// WithMetrics enables Prometheus metrics using the provided registry
func WithMetrics(registry *metric.MetricsRegistry) Option {
	return func(s *Scheduler) error {
		if registry == nil {
			return nil
		}
		metrics, err := newMetrics(registry)
		if err != nil {
			return err
		}
		s.metrics = metrics
		return nil
	}
}
