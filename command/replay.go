package command

import (
	"sync"

	"github.com/c360/streamcore/pipeline"
)

// ConnectNotifier is the slice of the transport the replay store needs: a
// way to run a callback after every successful open.
type ConnectNotifier interface {
	OnConnect(fn func()) pipeline.Unsubscribe
}

// Replay stores subscription commands keyed by name and re-issues them in
// insertion order after every reconnect, so a recovered transport carries
// the same subscriptions as the one that dropped.
type Replay struct {
	mu     sync.Mutex
	order  []string
	fns    map[string]func()
	logger Logger
}

// ReplayOption configures a Replay store
type ReplayOption func(*Replay)

// WithReplayLogger sets a custom logger for the replay store
func WithReplayLogger(logger Logger) ReplayOption {
	return func(s *Replay) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewReplay creates an empty replay store
func NewReplay(opts ...ReplayOption) *Replay {
	s := &Replay{
		fns:    make(map[string]func()),
		logger: &defaultLogger{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Add stores fn under key and invokes it immediately, so the subscription
// takes effect now and again after each reconnect. Re-adding an existing key
// replaces the stored fn but keeps its original replay position.
func (s *Replay) Add(key string, fn func()) {
	s.mu.Lock()
	if _, exists := s.fns[key]; !exists {
		s.order = append(s.order, key)
	}
	s.fns[key] = fn
	s.mu.Unlock()

	fn()
}

// Remove drops the subscription stored under key
func (s *Replay) Remove(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.fns[key]; !exists {
		return
	}
	delete(s.fns, key)
	for i, k := range s.order {
		if k == key {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

// Clear drops every stored subscription
func (s *Replay) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fns = make(map[string]func())
	s.order = nil
}

// Len returns the number of stored subscriptions
func (s *Replay) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.order)
}

// ReplayAll invokes every stored subscription in insertion order
func (s *Replay) ReplayAll() {
	s.mu.Lock()
	fns := make([]func(), 0, len(s.order))
	for _, key := range s.order {
		fns = append(fns, s.fns[key])
	}
	n := len(fns)
	s.mu.Unlock()

	if n > 0 {
		s.logger.Printf("replaying %d subscriptions", n)
	}
	for _, fn := range fns {
		fn()
	}
}

// Attach wires the store to a transport: stored subscriptions replay after
// every successful open. The returned function detaches.
func (s *Replay) Attach(notifier ConnectNotifier) pipeline.Unsubscribe {
	return notifier.OnConnect(s.ReplayAll)
}
