package command

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/c360/streamcore/errors"
	"github.com/c360/streamcore/pipeline"
)

// DefaultTimeout is applied to registered pendings when no override is given.
const DefaultTimeout = 5000 * time.Millisecond

// Pending is a deferred result for one correlated command. It settles exactly
// once: by a matching response frame, by timeout, by RejectAll, or by an
// explicit Resolve/Reject.
type Pending struct {
	id    uint64
	done  chan struct{}
	once  sync.Once
	timer *time.Timer

	value any
	err   error
}

// ID returns the correlation id this pending is registered under
func (p *Pending) ID() uint64 { return p.id }

// Done returns a channel closed when the pending settles
func (p *Pending) Done() <-chan struct{} { return p.done }

// Result returns the settled value and error. Only valid after Done is
// closed; before settlement both returns are zero.
func (p *Pending) Result() (any, error) {
	select {
	case <-p.done:
		return p.value, p.err
	default:
		return nil, nil
	}
}

// Wait blocks until the pending settles or ctx is done.
func (p *Pending) Wait(ctx context.Context) (any, error) {
	select {
	case <-p.done:
		return p.value, p.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *Pending) settle(value any, err error) bool {
	settled := false
	p.once.Do(func() {
		p.value = value
		p.err = err
		if p.timer != nil {
			p.timer.Stop()
		}
		close(p.done)
		settled = true
	})
	return settled
}

// Extractor pulls the correlation id out of an inbound frame. ok is false
// when the frame is not a correlated response at all.
type Extractor func(frame []byte) (id uint64, ok bool)

// Deserializer decodes a response frame body into the value a Pending
// resolves with. When nil, pendings resolve with a copy of the raw frame.
type Deserializer func(frame []byte) (any, error)

// Registry tracks in-flight commands awaiting correlated responses. Frames
// whose id matches a registration settle it; frames with unknown ids are
// left for other consumers.
type Registry struct {
	mu      sync.Mutex
	pending map[uint64]*Pending

	timeout     time.Duration
	extract     Extractor
	deserialize Deserializer
	logger      Logger
}

// RegistryOption configures a Registry
type RegistryOption func(*Registry)

// WithTimeout overrides the default settlement timeout for registered
// pendings. Zero disables the timeout.
func WithTimeout(d time.Duration) RegistryOption {
	return func(r *Registry) { r.timeout = d }
}

// WithDeserializer sets the decoder applied to matched response frames
func WithDeserializer(fn Deserializer) RegistryOption {
	return func(r *Registry) { r.deserialize = fn }
}

// WithRegistryLogger sets a custom logger for the registry
func WithRegistryLogger(logger Logger) RegistryOption {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewRegistry creates a response registry. extract is required: it decides
// which inbound frames belong to this registry.
func NewRegistry(extract Extractor, opts ...RegistryOption) (*Registry, error) {
	if extract == nil {
		return nil, errors.WrapInvalid(
			fmt.Errorf("extractor is required"),
			"Registry", "NewRegistry", "validate config")
	}

	r := &Registry{
		pending: make(map[uint64]*Pending),
		timeout: DefaultTimeout,
		extract: extract,
		logger:  &defaultLogger{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Register creates a pending result for the given correlation id. The
// pending times out with ErrResponseTimeout if no response settles it in
// time. Registering an id that is already in flight fails.
func (r *Registry) Register(id uint64) (*Pending, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.pending[id]; exists {
		return nil, errors.WrapInvalid(
			errors.ErrDuplicatePending, "Registry", "Register",
			fmt.Sprintf("id %d already in flight", id))
	}

	p := &Pending{
		id:   id,
		done: make(chan struct{}),
	}
	if r.timeout > 0 {
		p.timer = time.AfterFunc(r.timeout, func() {
			if r.remove(id) != nil {
				r.logger.Debugf("command id=%d timed out", id)
				p.settle(nil, errors.ErrResponseTimeout)
			}
		})
	}
	r.pending[id] = p
	return p, nil
}

// HandleFrame routes one inbound frame. It returns true when the frame was
// a correlated response that settled a registered pending; false means the
// frame belongs to someone else.
func (r *Registry) HandleFrame(frame []byte) bool {
	id, ok := r.extract(frame)
	if !ok {
		return false
	}

	p := r.remove(id)
	if p == nil {
		r.logger.Debugf("response for unknown id=%d dropped", id)
		return false
	}

	if r.deserialize != nil {
		value, err := r.deserialize(frame)
		if err != nil {
			p.settle(nil, errors.WrapInvalid(err, "Registry", "HandleFrame", "decode response"))
			return true
		}
		p.settle(value, nil)
		return true
	}

	// The transport may reuse the frame buffer; hand the pending its own copy.
	raw := make([]byte, len(frame))
	copy(raw, frame)
	p.settle(raw, nil)
	return true
}

// Resolve settles the pending registered under id with value. Returns false
// when no such pending exists.
func (r *Registry) Resolve(id uint64, value any) bool {
	p := r.remove(id)
	if p == nil {
		return false
	}
	return p.settle(value, nil)
}

// Reject settles the pending registered under id with err. Returns false
// when no such pending exists.
func (r *Registry) Reject(id uint64, err error) bool {
	p := r.remove(id)
	if p == nil {
		return false
	}
	return p.settle(nil, err)
}

// RejectAll settles every outstanding pending with reason and empties the
// registry. Used when the transport drops or the owning component shuts
// down.
func (r *Registry) RejectAll(reason error) {
	r.mu.Lock()
	outstanding := make([]*Pending, 0, len(r.pending))
	for _, p := range r.pending {
		outstanding = append(outstanding, p)
	}
	r.pending = make(map[uint64]*Pending)
	r.mu.Unlock()

	if len(outstanding) > 0 {
		r.logger.Printf("rejecting %d outstanding commands: %v", len(outstanding), reason)
	}
	for _, p := range outstanding {
		p.settle(nil, reason)
	}
}

// PendingCount returns the number of in-flight registrations
func (r *Registry) PendingCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// Middleware adapts the registry into a binary frame middleware: correlated
// response frames are swallowed, everything else flows on to the next stage.
func (r *Registry) Middleware() pipeline.BinaryMiddleware {
	return func(frame []byte, next func()) {
		if !r.HandleFrame(frame) {
			next()
		}
	}
}

func (r *Registry) remove(id uint64) *Pending {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.pending[id]
	if !ok {
		return nil
	}
	delete(r.pending, id)
	return p
}
