package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/streamcore/metric"
)

// Metrics holds Prometheus metrics for the pipeline
type Metrics struct {
	state       prometheus.Gauge
	connects    prometheus.Counter
	reconnects  prometheus.Counter
	heartbeats  prometheus.Counter
	messages    *prometheus.CounterVec
	errorsTotal *prometheus.CounterVec
}

// newMetrics creates and registers pipeline metrics
func newMetrics(registry *metric.MetricsRegistry) (*Metrics, error) {
	m := &Metrics{
		state: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "streamcore",
			Subsystem: "pipeline",
			Name:      "state",
			Help:      "Current connection state (0=disconnected 1=connecting 2=connected 3=reconnecting)",
		}),
		connects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "streamcore",
			Subsystem: "pipeline",
			Name:      "connects_total",
			Help:      "Total successful transport opens",
		}),
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "streamcore",
			Subsystem: "pipeline",
			Name:      "reconnects_total",
			Help:      "Total scheduled reconnect attempts",
		}),
		heartbeats: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "streamcore",
			Subsystem: "pipeline",
			Name:      "heartbeats_total",
			Help:      "Total keepalive payloads sent",
		}),
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "streamcore",
			Subsystem: "pipeline",
			Name:      "messages_received_total",
			Help:      "Total inbound messages by kind",
		}, []string{"kind"}),
		errorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "streamcore",
			Subsystem: "pipeline",
			Name:      "errors_total",
			Help:      "Total structured connection errors by type",
		}, []string{"type"}),
	}

	if err := registry.RegisterGauge("pipeline", "state", m.state); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter("pipeline", "connects", m.connects); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter("pipeline", "reconnects", m.reconnects); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter("pipeline", "heartbeats", m.heartbeats); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounterVec("pipeline", "messages_received", m.messages); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounterVec("pipeline", "errors", m.errorsTotal); err != nil {
		return nil, err
	}

	return m, nil
}
