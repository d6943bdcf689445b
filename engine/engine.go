// Package engine defines the interface boundary to opaque compute engines.
// Engines are state machines owned by the worker; this core never interprets
// their payloads, it only moves bytes and invokes the method surface below.
package engine

import (
	"fmt"
	"sync"
	"time"

	"github.com/c360/streamcore/errors"
)

// Engine is the opaque compute engine surface driven by the worker.
type Engine interface {
	// Call invokes a named method with opaque arguments. Used for one-off
	// correlated calls; failures are normalized to string messages at the
	// worker boundary.
	Call(method string, args []any) (any, error)

	// HandleInput forwards a user action event into the engine.
	HandleInput(action string, params map[string]any)

	// HandleData ingests an opaque structured payload.
	HandleData(payload []byte)

	// HandleBinary ingests an opaque binary frame. The slice is transferred:
	// the caller must not reuse it after the call.
	HandleBinary(payload []byte)

	// Configure sets a configuration key on the engine.
	Configure(key string, value any)

	// TickFrame runs one compute cycle and writes the resulting frame payload
	// into dst, returning the byte count. ok is false when the engine state is
	// unchanged and no frame should be published this cycle.
	TickFrame(now time.Time, dst []byte) (n int, ok bool, err error)
}

// Tickable is a periodic compute source driven by the scheduler. The returned
// value is dispatched to the source's registered consumers.
type Tickable interface {
	Tick(now time.Time) any
}

// Factory constructs a fresh engine instance.
type Factory func() (Engine, error)

// Module groups the constructors exported by one compute module.
type Module interface {
	// Init runs the module's one-time initialization, if any.
	Init() error
	// Constructor resolves a named engine factory.
	Constructor(name string) (Factory, error)
}

// Loader resolves a module reference to a loadable module. The worker's init
// handshake goes through a Loader so module resolution stays injectable.
type Loader interface {
	Load(moduleRef string) (Module, error)
}

// Registry is an in-process Loader backed by a map of registered modules.
type Registry struct {
	mu      sync.RWMutex
	modules map[string]Module
}

var _ Loader = (*Registry)(nil)

// NewRegistry creates an empty module registry
func NewRegistry() *Registry {
	return &Registry{modules: make(map[string]Module)}
}

// Register adds a module under the given reference, replacing any previous one
func (r *Registry) Register(moduleRef string, m Module) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.modules[moduleRef] = m
}

// Load implements Loader
func (r *Registry) Load(moduleRef string) (Module, error) {
	r.mu.RLock()
	m, ok := r.modules[moduleRef]
	r.mu.RUnlock()

	if !ok {
		return nil, errors.WrapFatal(
			fmt.Errorf("module %q not registered", moduleRef),
			"Registry", "Load", "resolve module")
	}
	return m, nil
}

// StaticModule is a Module built from a constructor map and an optional init
// hook. Most in-process engines register through this.
type StaticModule struct {
	InitFunc     func() error
	Constructors map[string]Factory
}

// Init implements Module
func (m *StaticModule) Init() error {
	if m.InitFunc == nil {
		return nil
	}
	return m.InitFunc()
}

// Constructor implements Module
func (m *StaticModule) Constructor(name string) (Factory, error) {
	f, ok := m.Constructors[name]
	if !ok {
		return nil, errors.WrapFatal(
			fmt.Errorf("constructor %q not exported", name),
			"StaticModule", "Constructor", "resolve constructor")
	}
	return f, nil
}
