package scheduler

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/streamcore/config"
	"github.com/c360/streamcore/metric"
)

type recordingEngine struct {
	name   string
	mu     sync.Mutex
	ticks  []time.Time
	result any
}

func (e *recordingEngine) Tick(now time.Time) any {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ticks = append(e.ticks, now)
	if e.result != nil {
		return e.result
	}
	return e.name
}

func (e *recordingEngine) tickCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.ticks)
}

func newTestScheduler(t *testing.T) *Scheduler {
	t.Helper()
	s, err := New(config.SchedulerConfig{TickIntervalMs: 5})
	require.NoError(t, err)
	t.Cleanup(s.Stop)
	return s
}

func TestNewValidation(t *testing.T) {
	_, err := New(config.SchedulerConfig{})
	assert.Error(t, err, "zero cadence rejected")

	_, err = New(config.SchedulerConfig{TickIntervalMs: -1})
	assert.Error(t, err)
}

func TestCycleTicksInRegistrationOrder(t *testing.T) {
	s := newTestScheduler(t)

	var order []string
	var mu sync.Mutex
	record := func(name string) Consumer {
		return func(any) {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
		}
	}

	e1 := &recordingEngine{name: "first"}
	e2 := &recordingEngine{name: "second"}
	e3 := &recordingEngine{name: "third"}

	s.AddEngine(e1).AddConsumer(0, record("first"))
	s.AddEngine(e2).AddConsumer(0, record("second"))
	s.AddEngine(e3).AddConsumer(0, record("third"))
	assert.Equal(t, 3, s.EngineCount())

	now := time.Now()
	s.cycle(now)

	assert.Equal(t, []string{"first", "second", "third"}, order)

	// One timestamp per cycle, shared by every engine
	for _, e := range []*recordingEngine{e1, e2, e3} {
		require.Len(t, e.ticks, 1)
		assert.Equal(t, now, e.ticks[0])
	}
}

func TestConsumerPriorityOrder(t *testing.T) {
	s := newTestScheduler(t)

	var order []string
	record := func(name string) Consumer {
		return func(any) { order = append(order, name) }
	}

	h := s.AddEngine(&recordingEngine{name: "e"})
	h.AddConsumer(5, record("render"))
	h.AddConsumer(1, record("store"))
	h.AddConsumer(5, record("overlay"))
	h.AddConsumer(3, record("log"))

	s.cycle(time.Now())

	// Ascending priority; equal priorities keep insertion order
	assert.Equal(t, []string{"store", "log", "render", "overlay"}, order)
}

func TestConsumerReceivesTickResult(t *testing.T) {
	s := newTestScheduler(t)

	e := &recordingEngine{name: "e", result: map[string]int{"depth": 7}}
	var got any
	s.AddEngine(e).AddConsumer(0, func(v any) { got = v })

	s.cycle(time.Now())
	assert.Equal(t, map[string]int{"depth": 7}, got)
}

func TestRemoveConsumer(t *testing.T) {
	s := newTestScheduler(t)

	var calls int
	h := s.AddEngine(&recordingEngine{name: "e"})
	id := h.AddConsumer(0, func(any) { calls++ })

	s.cycle(time.Now())
	assert.Equal(t, 1, calls)

	h.RemoveConsumer(id)
	h.RemoveConsumer(id) // unknown id is a no-op
	s.cycle(time.Now())
	assert.Equal(t, 1, calls)
}

func TestRemoveEngine(t *testing.T) {
	s := newTestScheduler(t)

	e1 := &recordingEngine{name: "keep"}
	e2 := &recordingEngine{name: "drop"}
	s.AddEngine(e1)
	h2 := s.AddEngine(e2)

	s.cycle(time.Now())
	h2.Remove()
	h2.Remove() // idempotent
	s.cycle(time.Now())

	assert.Equal(t, 2, e1.tickCount())
	assert.Equal(t, 1, e2.tickCount())
	assert.Equal(t, 1, s.EngineCount())
}

func TestConsumerMayRemoveOwnEngineMidCycle(t *testing.T) {
	s := newTestScheduler(t)

	e := &recordingEngine{name: "e"}
	h := s.AddEngine(e)
	h.AddConsumer(0, func(any) { h.Remove() })

	s.cycle(time.Now())
	s.cycle(time.Now())

	assert.Equal(t, 1, e.tickCount(), "removal during dispatch takes effect next cycle")
	assert.Equal(t, 0, s.EngineCount())
}

func TestStartStopLifecycle(t *testing.T) {
	s := newTestScheduler(t)

	e := &recordingEngine{name: "e"}
	s.AddEngine(e)

	assert.False(t, s.Running())
	s.Start()
	s.Start() // idempotent
	assert.True(t, s.Running())

	deadline := time.Now().Add(2 * time.Second)
	for e.tickCount() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	require.GreaterOrEqual(t, e.tickCount(), 3, "ticker never drove cycles")

	s.Stop()
	s.Stop() // idempotent
	assert.False(t, s.Running())

	n := e.tickCount()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, n, e.tickCount(), "no ticks after stop")

	// Restart resumes ticking
	s.Start()
	deadline = time.Now().Add(2 * time.Second)
	for e.tickCount() == n && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	assert.Greater(t, e.tickCount(), n)
}

func TestWithMetrics(t *testing.T) {
	registry := metric.NewMetricsRegistry()
	s, err := New(config.SchedulerConfig{TickIntervalMs: 5}, WithMetrics(registry))
	require.NoError(t, err)
	require.NotNil(t, s.metrics)

	s.AddEngine(&recordingEngine{name: "e"})
	s.cycle(time.Now())

	// Same registry collides on metric names
	_, err = New(config.SchedulerConfig{TickIntervalMs: 5}, WithMetrics(registry))
	assert.Error(t, err)
}
