// Package worker runs one compute engine on a background goroutine and
// coordinates it from the main side: a two-phase init handshake, one-off
// correlated calls, fire-and-forget event posts, and a persistent tick loop
// that publishes frames into a shared memory segment.
package worker

import "log"

// Logger interface for injecting custom loggers
type Logger interface {
	Printf(format string, v ...any)
	Errorf(format string, v ...any)
	Debugf(format string, v ...any)
}

type defaultLogger struct{}

func (l *defaultLogger) Printf(format string, v ...any) {
	log.Printf("[WORKER] "+format, v...)
}

func (l *defaultLogger) Errorf(format string, v ...any) {
	log.Printf("[WORKER ERROR] "+format, v...)
}

func (l *defaultLogger) Debugf(_ string, _ ...any) {
	// Silent by default
}

// Control messages, coordinator to runner. One struct per message kind; the
// runner switches exhaustively over these.
type (
	ctrlInit struct {
		ModuleRef  string
		EngineName string
	}

	ctrlStart struct{}

	ctrlStop struct{}

	ctrlCall struct {
		ID     uint64
		Method string
		Args   []any
	}

	ctrlInput struct {
		Action string
		Params map[string]any
	}

	ctrlData struct {
		Payload []byte
	}

	ctrlBinary struct {
		Payload []byte
	}

	ctrlConfigure struct {
		Key   string
		Value any
	}
)

// Replies, runner to coordinator. Engine failures cross this boundary as
// plain string messages, never as live error values.
type (
	replyReady struct{}

	replyInitError struct {
		Message string
	}

	replyStarted struct{}

	replyStopped struct{}

	replyResult struct {
		ID    uint64
		Value any
	}

	replyError struct {
		ID      uint64
		Message string
	}
)
