// Package scheduler drives every registered compute engine off one shared
// ticker. Each cycle carries one timestamp, engines tick in registration
// order, and each engine's result is dispatched to its consumers in
// ascending priority order.
package scheduler

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/c360/streamcore/config"
	"github.com/c360/streamcore/engine"
	"github.com/c360/streamcore/errors"
)

// Logger interface for injecting custom loggers
type Logger interface {
	Printf(format string, v ...any)
	Errorf(format string, v ...any)
	Debugf(format string, v ...any)
}

type defaultLogger struct{}

func (l *defaultLogger) Printf(format string, v ...any) {
	log.Printf("[SCHEDULER] "+format, v...)
}

func (l *defaultLogger) Errorf(format string, v ...any) {
	log.Printf("[SCHEDULER ERROR] "+format, v...)
}

func (l *defaultLogger) Debugf(_ string, _ ...any) {
	// Silent by default
}

// Consumer receives one engine's tick result.
type Consumer func(value any)

type consumerEntry struct {
	id       uint64
	priority int
	fn       Consumer
}

// Scheduler multiplexes periodic ticks across registered engines. One ticker
// serves all of them; there is never a per-engine timer.
type Scheduler struct {
	cfg     config.SchedulerConfig
	logger  Logger
	metrics *Metrics

	mu      sync.Mutex
	engines []*Handle
	nextID  uint64
	running bool
	stop    chan struct{}
	done    chan struct{}
}

// Option configures a Scheduler
type Option func(*Scheduler) error

// WithLogger sets a custom logger for the scheduler
func WithLogger(logger Logger) Option {
	return func(s *Scheduler) error {
		if logger != nil {
			s.logger = logger
		}
		return nil
	}
}

// New creates a stopped scheduler with the configured cadence.
func New(cfg config.SchedulerConfig, opts ...Option) (*Scheduler, error) {
	if cfg.TickIntervalMs <= 0 {
		return nil, errors.WrapInvalid(
			fmt.Errorf("tick interval must be positive, got %dms", cfg.TickIntervalMs),
			"Scheduler", "New", "validate config")
	}

	s := &Scheduler{
		cfg:    cfg,
		logger: &defaultLogger{},
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, errors.WrapInvalid(err, "Scheduler", "New", "apply option")
		}
	}
	return s, nil
}

// Handle identifies one registered engine and carries its consumer list.
type Handle struct {
	s        *Scheduler
	tickable engine.Tickable

	// guarded by s.mu
	consumers []consumerEntry
	removed   bool
}

// AddEngine registers a tick source. Engines tick in registration order each
// cycle; registering the same source twice ticks it twice.
func (s *Scheduler) AddEngine(t engine.Tickable) *Handle {
	h := &Handle{s: s, tickable: t}
	s.mu.Lock()
	s.engines = append(s.engines, h)
	n := len(s.engines)
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.engines.Set(float64(n))
	}
	return h
}

// EngineCount returns the number of registered engines
func (s *Scheduler) EngineCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.engines)
}

// AddConsumer subscribes fn to this engine's tick results. Consumers run in
// ascending priority order; equal priorities keep their insertion order.
// The returned id removes the consumer.
func (h *Handle) AddConsumer(priority int, fn Consumer) uint64 {
	s := h.s
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	id := s.nextID

	// Stable insert: after every consumer with priority <= the new one.
	pos := len(h.consumers)
	for i, c := range h.consumers {
		if c.priority > priority {
			pos = i
			break
		}
	}
	h.consumers = append(h.consumers, consumerEntry{})
	copy(h.consumers[pos+1:], h.consumers[pos:])
	h.consumers[pos] = consumerEntry{id: id, priority: priority, fn: fn}
	return id
}

// RemoveConsumer unsubscribes a consumer by id. Unknown ids are no-ops.
func (h *Handle) RemoveConsumer(id uint64) {
	s := h.s
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, c := range h.consumers {
		if c.id == id {
			h.consumers = append(h.consumers[:i], h.consumers[i+1:]...)
			return
		}
	}
}

// Remove unregisters the engine. Safe to call mid-cycle: the current cycle's
// snapshot may still tick it once, later cycles will not.
func (h *Handle) Remove() {
	s := h.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if h.removed {
		return
	}
	h.removed = true
	for i, e := range s.engines {
		if e == h {
			s.engines = append(s.engines[:i], s.engines[i+1:]...)
			break
		}
	}
	if s.metrics != nil {
		s.metrics.engines.Set(float64(len(s.engines)))
	}
}

// Start begins the tick loop. No-op when already running.
func (s *Scheduler) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	stop, done := s.stop, s.done
	s.mu.Unlock()

	s.logger.Printf("started, cadence %v", s.cfg.TickInterval())
	go s.loop(stop, done)
}

// Stop halts the tick loop and waits for the in-flight cycle to finish.
// No-op when already stopped.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	stop, done := s.stop, s.done
	s.stop, s.done = nil, nil
	s.mu.Unlock()

	close(stop)
	<-done
	s.logger.Printf("stopped")
}

// Running reports whether the tick loop is active
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Scheduler) loop(stop chan struct{}, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.cfg.TickInterval())
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.cycle(time.Now())
		}
	}
}

// cycle runs one scheduling pass: a single timestamp, every engine in
// registration order, each result fanned out to that engine's consumers.
func (s *Scheduler) cycle(now time.Time) {
	s.mu.Lock()
	handles := make([]*Handle, len(s.engines))
	copy(handles, s.engines)
	s.mu.Unlock()

	for _, h := range handles {
		value := h.tickable.Tick(now)

		s.mu.Lock()
		consumers := make([]consumerEntry, len(h.consumers))
		copy(consumers, h.consumers)
		s.mu.Unlock()

		for _, c := range consumers {
			c.fn(value)
		}
	}

	if s.metrics != nil {
		s.metrics.cycles.Inc()
		s.metrics.cycleDuration.Observe(time.Since(now).Seconds())
	}
}
