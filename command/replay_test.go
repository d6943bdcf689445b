package command

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/streamcore/pipeline"
)

func TestAddInvokesImmediately(t *testing.T) {
	s := NewReplay()

	calls := 0
	s.Add("orderbook", func() { calls++ })
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, s.Len())
}

func TestReplayAllInsertionOrder(t *testing.T) {
	s := NewReplay()

	var order []string
	s.Add("a", func() { order = append(order, "a") })
	s.Add("b", func() { order = append(order, "b") })
	s.Add("c", func() { order = append(order, "c") })
	order = nil

	s.ReplayAll()
	assert.Equal(t, []string{"a", "b", "c"}, order)
}

func TestReAddKeepsPosition(t *testing.T) {
	s := NewReplay()

	var order []string
	s.Add("a", func() { order = append(order, "a") })
	s.Add("b", func() { order = append(order, "b") })
	s.Add("a", func() { order = append(order, "a2") })
	order = nil

	s.ReplayAll()
	assert.Equal(t, []string{"a2", "b"}, order)
	assert.Equal(t, 2, s.Len())
}

func TestRemoveAndClear(t *testing.T) {
	s := NewReplay()

	var order []string
	s.Add("a", func() { order = append(order, "a") })
	s.Add("b", func() { order = append(order, "b") })
	s.Add("c", func() { order = append(order, "c") })

	s.Remove("b")
	s.Remove("b") // idempotent
	order = nil

	s.ReplayAll()
	assert.Equal(t, []string{"a", "c"}, order)

	s.Clear()
	assert.Equal(t, 0, s.Len())
	order = nil
	s.ReplayAll()
	assert.Empty(t, order)
}

type fakeNotifier struct {
	fns []func()
}

func (f *fakeNotifier) OnConnect(fn func()) pipeline.Unsubscribe {
	f.fns = append(f.fns, fn)
	return func() { f.fns = nil }
}

func (f *fakeNotifier) fire() {
	for _, fn := range f.fns {
		fn()
	}
}

func TestAttachReplaysOnReconnect(t *testing.T) {
	s := NewReplay()
	n := &fakeNotifier{}

	calls := 0
	s.Add("sub", func() { calls++ })
	require.Equal(t, 1, calls)

	detach := s.Attach(n)
	n.fire()
	assert.Equal(t, 2, calls, "reconnect replays the stored subscription")

	detach()
	n.fire()
	assert.Equal(t, 2, calls, "detached store no longer replays")
}
