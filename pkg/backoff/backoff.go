// Package backoff provides exponential backoff delay calculation with
// symmetric jitter for reconnection scheduling.
package backoff

import (
	"errors"
	"math/rand"
	"sync"
	"time"
)

var (
	// Thread-safe random source for jitter
	randMu     sync.Mutex
	randSource = rand.New(rand.NewSource(time.Now().UnixNano()))
)

// Config provides backoff configuration
type Config struct {
	Base   time.Duration // Delay for attempt 0
	Max    time.Duration // Cap applied before jitter
	Jitter float64       // Symmetric jitter fraction (0.25 = ±25%)
}

// DefaultConfig returns the reconnection defaults used by the pipeline
func DefaultConfig() Config {
	return Config{
		Base:   time.Second,
		Max:    30 * time.Second,
		Jitter: 0.25,
	}
}

// Validate checks the configuration for consistency
func (c Config) Validate() error {
	if c.Base <= 0 {
		return errors.New("backoff: Base must be positive")
	}
	if c.Max < c.Base {
		return errors.New("backoff: Max must be >= Base")
	}
	if c.Jitter < 0 || c.Jitter > 1 {
		return errors.New("backoff: Jitter must be in [0, 1]")
	}
	return nil
}

// Delay returns the delay for a 0-indexed attempt:
// min(Base * 2^attempt, Max) with symmetric jitter of ±Jitter applied,
// so the result lies within [1-Jitter, 1+Jitter] * min(Base*2^attempt, Max).
func (c Config) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}

	delay := c.Base
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay >= c.Max || delay <= 0 { // <= 0 guards duration overflow
			delay = c.Max
			break
		}
	}
	if delay > c.Max {
		delay = c.Max
	}

	if c.Jitter <= 0 {
		return delay
	}

	randMu.Lock()
	r := randSource.Float64()
	randMu.Unlock()

	// delay * (1 + jitter*(2r-1)), r uniform in [0,1)
	factor := 1 + c.Jitter*(2*r-1)
	return time.Duration(float64(delay) * factor)
}
