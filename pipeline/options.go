package pipeline

import (
	"log"

	"github.com/gorilla/websocket"

	"github.com/c360/streamcore/metric"
)

// Logger interface for injecting custom loggers
type Logger interface {
	Printf(format string, v ...any)
	Errorf(format string, v ...any)
	Debugf(format string, v ...any)
}

// defaultLogger implements Logger using the standard log package
type defaultLogger struct{}

func (l *defaultLogger) Printf(format string, v ...any) {
	log.Printf("[PIPELINE] "+format, v...)
}

func (l *defaultLogger) Errorf(format string, v ...any) {
	log.Printf("[PIPELINE ERROR] "+format, v...)
}

func (l *defaultLogger) Debugf(_ string, _ ...any) {
	// Silent by default
}

// Option is a functional option for configuring the Pipeline
type Option func(*Pipeline) error

// WithLogger sets a custom logger for the pipeline
func WithLogger(logger Logger) Option {
	return func(p *Pipeline) error {
		if logger == nil {
			logger = &defaultLogger{}
		}
		p.logger = logger
		return nil
	}
}

// WithDialer sets a custom websocket dialer (TLS config, handshake timeout)
func WithDialer(dialer *websocket.Dialer) Option {
	return func(p *Pipeline) error {
		if dialer != nil {
			p.dialer = dialer
		}
		return nil
	}
}

// WithMetrics enables Prometheus metrics using the provided registry
func WithMetrics(registry *metric.MetricsRegistry) Option {
	return func(p *Pipeline) error {
		if registry == nil {
			return nil // No metrics
		}
		metrics, err := newMetrics(registry)
		if err != nil {
			return err
		}
		p.metrics = metrics
		return nil
	}
}
