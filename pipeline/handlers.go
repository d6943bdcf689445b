package pipeline

import (
	"sync"

	"github.com/c360/streamcore/errors"
)

// BinaryMiddleware intercepts binary frames before the terminal handler.
// A middleware that does not call next swallows the frame and stops
// propagation.
type BinaryMiddleware func(frame []byte, next func())

// Unsubscribe removes a previously registered handler. Safe to call more
// than once.
type Unsubscribe func()

type handlerEntry[T any] struct {
	id int
	fn T
}

// handlerRegistry holds the pipeline's event subscribers. Every registration
// point accepts multiple subscribers except the binary terminal handler,
// which is single-slot: one consumer owns final binary dispatch, earlier
// interception happens via middleware.
type handlerRegistry struct {
	mu     sync.Mutex
	nextID int

	connect    []handlerEntry[func()]
	disconnect []handlerEntry[func()]
	text       []handlerEntry[func(string)]
	errs       []handlerEntry[func(*errors.ConnectionError)]
	middleware []handlerEntry[BinaryMiddleware]
	terminal   func([]byte)
}

// OnConnect registers a handler fired after every successful open
func (p *Pipeline) OnConnect(fn func()) Unsubscribe {
	return addHandler(&p.handlers, &p.handlers.connect, fn)
}

// OnDisconnect registers a handler fired when an open transport closes
// without an intentional Disconnect
func (p *Pipeline) OnDisconnect(fn func()) Unsubscribe {
	return addHandler(&p.handlers, &p.handlers.disconnect, fn)
}

// OnText registers a handler for inbound text messages, dispatched
// synchronously in arrival order
func (p *Pipeline) OnText(fn func(string)) Unsubscribe {
	return addHandler(&p.handlers, &p.handlers.text, fn)
}

// OnError registers a handler for structured connection errors
func (p *Pipeline) OnError(fn func(*errors.ConnectionError)) Unsubscribe {
	return addHandler(&p.handlers, &p.handlers.errs, fn)
}

// UseBinary appends a middleware to the binary interception chain
func (p *Pipeline) UseBinary(mw BinaryMiddleware) Unsubscribe {
	return addHandler(&p.handlers, &p.handlers.middleware, mw)
}

// SetBinaryHandler installs the single terminal consumer of binary frames.
// It runs only when every middleware called next. Passing nil clears it.
func (p *Pipeline) SetBinaryHandler(fn func([]byte)) {
	p.handlers.mu.Lock()
	defer p.handlers.mu.Unlock()
	p.handlers.terminal = fn
}

// addHandler appends fn to the given list and returns its unsubscribe handle
func addHandler[T any](r *handlerRegistry, list *[]handlerEntry[T], fn T) Unsubscribe {
	r.mu.Lock()
	r.nextID++
	id := r.nextID
	*list = append(*list, handlerEntry[T]{id: id, fn: fn})
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		for i, e := range *list {
			if e.id == id {
				*list = append((*list)[:i], (*list)[i+1:]...)
				return
			}
		}
	}
}

func snapshot[T any](r *handlerRegistry, list *[]handlerEntry[T]) []T {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]T, len(*list))
	for i, e := range *list {
		out[i] = e.fn
	}
	return out
}

func (r *handlerRegistry) fireConnect() {
	for _, fn := range snapshot(r, &r.connect) {
		fn()
	}
}

func (r *handlerRegistry) fireDisconnect() {
	for _, fn := range snapshot(r, &r.disconnect) {
		fn()
	}
}

func (r *handlerRegistry) fireText(msg string) {
	for _, fn := range snapshot(r, &r.text) {
		fn(msg)
	}
}

func (r *handlerRegistry) fireError(ce *errors.ConnectionError) {
	for _, fn := range snapshot(r, &r.errs) {
		fn(ce)
	}
}

// dispatchBinary runs the middleware chain over one frame; the terminal
// handler runs only after every middleware has called next.
func (r *handlerRegistry) dispatchBinary(frame []byte) {
	mws := snapshot(r, &r.middleware)
	r.mu.Lock()
	terminal := r.terminal
	r.mu.Unlock()

	var run func(i int)
	run = func(i int) {
		if i < len(mws) {
			mws[i](frame, func() { run(i + 1) })
			return
		}
		if terminal != nil {
			terminal(frame)
		}
	}
	run(0)
}
