// Package latest provides a generic single-slot holder with latest-wins
// semantics: storing a new value overwrites an unconsumed one. It is the
// coalescing primitive behind pipeline binary-frame backpressure.
package latest

import (
	"errors"
	"sync"
)

// ErrClosed indicates the slot has been closed
var ErrClosed = errors.New("latest: slot closed")

// Stats tracks slot activity
type Stats struct {
	Stored      uint64 // total successful stores
	Overwritten uint64 // stores that replaced an unconsumed value
	Taken       uint64 // successful takes
}

// Slot holds at most one value of type T. Concurrent producers may Store;
// consumers Take. A Take empties the slot, so two Takes without an
// intervening Store observe the value exactly once.
type Slot[T any] struct {
	mu     sync.Mutex
	value  T
	filled bool
	closed bool
	stats  Stats
}

// NewSlot creates an empty slot
func NewSlot[T any]() *Slot[T] {
	return &Slot[T]{}
}

// Store places v in the slot, overwriting any unconsumed value.
func (s *Slot[T]) Store(v T) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if s.filled {
		s.stats.Overwritten++
	}
	s.value = v
	s.filled = true
	s.stats.Stored++
	return nil
}

// Take removes and returns the current value. The second return is false
// when the slot is empty or closed.
func (s *Slot[T]) Take() (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var zero T
	if s.closed || !s.filled {
		return zero, false
	}
	v := s.value
	s.value = zero
	s.filled = false
	s.stats.Taken++
	return v, true
}

// Peek returns the current value without consuming it
func (s *Slot[T]) Peek() (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var zero T
	if s.closed || !s.filled {
		return zero, false
	}
	return s.value, true
}

// Stats returns a snapshot of slot activity
func (s *Slot[T]) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// Close empties the slot and rejects further stores. Idempotent.
func (s *Slot[T]) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	var zero T
	s.value = zero
	s.filled = false
	s.closed = true
}
