package worker

import (
	"context"
	"fmt"
	"sync"

	"github.com/c360/streamcore/config"
	"github.com/c360/streamcore/engine"
	"github.com/c360/streamcore/errors"
	"github.com/c360/streamcore/sharedframe"
)

const ctrlBuffer = 256

// Coordinator is the main-side handle to one background worker. It owns the
// control channel, correlates one-off calls against their results, and
// exposes the shared frame segment the worker publishes into.
//
// Lifecycle: NewCoordinator → Init (two-phase handshake) → Start/Stop as
// needed → Dispose. A disposed coordinator is dead; build a new one.
type Coordinator struct {
	cfg    config.WorkerConfig
	loader engine.Loader
	logger Logger

	seg  *sharedframe.Segment
	ctrl chan any

	cancel context.CancelFunc

	mu         sync.Mutex
	ready      bool
	disposed   bool
	nextCallID uint64
	calls      map[uint64]chan callOutcome

	initCh   chan error
	startAck chan struct{}
	stopAck  chan struct{}

	disposeOnce sync.Once
}

type callOutcome struct {
	value any
	err   error
}

// Option configures a Coordinator
type Option func(*Coordinator)

// WithLogger sets a custom logger for the coordinator and its runner
func WithLogger(logger Logger) Option {
	return func(c *Coordinator) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewCoordinator allocates the shared segment and the control plumbing. The
// background runner is not spawned until Init.
func NewCoordinator(cfg config.WorkerConfig, loader engine.Loader, mode sharedframe.Mode, opts ...Option) (*Coordinator, error) {
	if loader == nil {
		return nil, errors.WrapInvalid(
			fmt.Errorf("module loader is required"),
			"Coordinator", "NewCoordinator", "validate config")
	}

	seg, err := sharedframe.NewSegment(mode, cfg.MaxPayloadBytes)
	if err != nil {
		return nil, errors.WrapInvalid(err, "Coordinator", "NewCoordinator", "allocate segment")
	}

	c := &Coordinator{
		cfg:      cfg,
		loader:   loader,
		logger:   &defaultLogger{},
		seg:      seg,
		ctrl:     make(chan any, ctrlBuffer),
		calls:    make(map[uint64]chan callOutcome),
		initCh:   make(chan error, 1),
		startAck: make(chan struct{}, 1),
		stopAck:  make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Segment returns the shared frame segment the worker publishes into
func (c *Coordinator) Segment() *sharedframe.Segment { return c.seg }

// Cursor returns a fresh consumer cursor over the shared segment
func (c *Coordinator) Cursor() *sharedframe.Cursor {
	return sharedframe.NewCursor(c.seg)
}

// Ready reports whether the init handshake has completed
func (c *Coordinator) Ready() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ready
}

// Init spawns the background runner and performs the two-phase handshake:
// the runner loads the module, runs its init hook, constructs the named
// engine, and acknowledges with ready. Init fails if the runner reports an
// init error or ctx expires first.
func (c *Coordinator) Init(ctx context.Context, moduleRef, engineName string) error {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return errors.ErrWorkerDisposed
	}
	if c.ready || c.cancel != nil {
		c.mu.Unlock()
		return errors.WrapInvalid(
			fmt.Errorf("already initialized"),
			"Coordinator", "Init", "check state")
	}

	runCtx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel

	replies := make(chan any, ctrlBuffer)
	r := &runner{
		ctrl:         c.ctrl,
		replies:      replies,
		loader:       c.loader,
		writer:       c.seg.Writer(),
		tickInterval: c.cfg.TickInterval(),
		logger:       c.logger,
	}
	go r.run(runCtx)
	go c.dispatch(runCtx, replies)
	c.mu.Unlock()

	c.ctrl <- ctrlInit{ModuleRef: moduleRef, EngineName: engineName}

	select {
	case err := <-c.initCh:
		if err != nil {
			return err
		}
		c.mu.Lock()
		c.ready = true
		c.mu.Unlock()
		c.logger.Printf("worker ready: module=%s engine=%s", moduleRef, engineName)
		return nil
	case <-ctx.Done():
		return errors.WrapTransient(ctx.Err(), "Coordinator", "Init", "await handshake")
	}
}

// dispatch routes runner replies: handshake and lifecycle acks to their
// waiters, call results to their pending entries. Results for unknown ids
// are dropped silently; the call already timed out or was rejected.
func (c *Coordinator) dispatch(ctx context.Context, replies <-chan any) {
	for {
		select {
		case <-ctx.Done():
			return
		case reply := <-replies:
			switch m := reply.(type) {
			case replyReady:
				c.initCh <- nil
			case replyInitError:
				c.initCh <- errors.WrapFatal(
					fmt.Errorf("%w: %s", errors.ErrWorkerInit, m.Message),
					"Coordinator", "Init", "handshake")
			case replyStarted:
				select {
				case c.startAck <- struct{}{}:
				default:
				}
			case replyStopped:
				select {
				case c.stopAck <- struct{}{}:
				default:
				}
			case replyResult:
				c.settleCall(m.ID, callOutcome{value: m.Value})
			case replyError:
				c.settleCall(m.ID, callOutcome{err: fmt.Errorf("engine call failed: %s", m.Message)})
			default:
				c.logger.Debugf("unknown reply %T dropped", reply)
			}
		}
	}
}

func (c *Coordinator) settleCall(id uint64, outcome callOutcome) {
	c.mu.Lock()
	ch, ok := c.calls[id]
	if ok {
		delete(c.calls, id)
	}
	c.mu.Unlock()

	if !ok {
		c.logger.Debugf("result for unknown call id=%d dropped", id)
		return
	}
	ch <- outcome
}

// Start begins the worker's tick loop and waits for acknowledgment. Fails
// with ErrWorkerNotReady before the init handshake has completed.
func (c *Coordinator) Start(ctx context.Context) error {
	if err := c.checkReady(); err != nil {
		return err
	}
	if err := c.post(ctrlStart{}); err != nil {
		return err
	}
	select {
	case <-c.startAck:
		return nil
	case <-ctx.Done():
		return errors.WrapTransient(ctx.Err(), "Coordinator", "Start", "await ack")
	}
}

// Stop halts the worker's tick loop and waits for acknowledgment. The engine
// keeps its state; Start resumes ticking.
func (c *Coordinator) Stop(ctx context.Context) error {
	if err := c.checkReady(); err != nil {
		return err
	}
	if err := c.post(ctrlStop{}); err != nil {
		return err
	}
	select {
	case <-c.stopAck:
		return nil
	case <-ctx.Done():
		return errors.WrapTransient(ctx.Err(), "Coordinator", "Stop", "await ack")
	}
}

// Call invokes a named engine method and waits for its correlated result.
// Each call gets the next monotonic id; the configured call timeout bounds
// the wait unless ctx expires first.
func (c *Coordinator) Call(ctx context.Context, method string, args []any) (any, error) {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return nil, errors.ErrWorkerDisposed
	}
	if !c.ready {
		c.mu.Unlock()
		return nil, errors.ErrWorkerNotReady
	}
	id := c.nextCallID
	c.nextCallID++
	ch := make(chan callOutcome, 1)
	c.calls[id] = ch
	c.mu.Unlock()

	if timeout := c.cfg.CallTimeout(); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	if err := c.post(ctrlCall{ID: id, Method: method, Args: args}); err != nil {
		c.dropCall(id)
		return nil, err
	}

	select {
	case outcome := <-ch:
		return outcome.value, outcome.err
	case <-ctx.Done():
		c.dropCall(id)
		return nil, errors.WrapTransient(ctx.Err(), "Coordinator", "Call", "await result")
	}
}

// checkReady gates lifecycle operations on a completed handshake, so they
// never enqueue onto a control channel no runner consumes.
func (c *Coordinator) checkReady() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disposed {
		return errors.ErrWorkerDisposed
	}
	if !c.ready {
		return errors.ErrWorkerNotReady
	}
	return nil
}

func (c *Coordinator) dropCall(id uint64) {
	c.mu.Lock()
	delete(c.calls, id)
	c.mu.Unlock()
}

// PostInput forwards a user action event. Fire-and-forget.
func (c *Coordinator) PostInput(action string, params map[string]any) {
	_ = c.post(ctrlInput{Action: action, Params: params})
}

// PostData forwards an opaque structured payload. Fire-and-forget.
func (c *Coordinator) PostData(payload []byte) {
	_ = c.post(ctrlData{Payload: payload})
}

// PostBinary forwards an opaque binary frame. The slice is transferred; the
// caller must not reuse it.
func (c *Coordinator) PostBinary(payload []byte) {
	_ = c.post(ctrlBinary{Payload: payload})
}

// PostConfigure sets a configuration key on the engine. Fire-and-forget.
func (c *Coordinator) PostConfigure(key string, value any) {
	_ = c.post(ctrlConfigure{Key: key, Value: value})
}

// post enqueues a control message. A full control channel drops the message
// rather than blocking main-side callers.
func (c *Coordinator) post(msg any) error {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return errors.ErrWorkerDisposed
	}
	c.mu.Unlock()

	select {
	case c.ctrl <- msg:
		return nil
	default:
		c.logger.Errorf("control channel full, dropping %T", msg)
		return errors.WrapTransient(
			fmt.Errorf("control channel full"),
			"Coordinator", "post", "enqueue message")
	}
}

// Dispose terminates the background runner and rejects every outstanding
// call with ErrWorkerDisposed. Idempotent; the coordinator is unusable
// afterwards.
func (c *Coordinator) Dispose() {
	c.disposeOnce.Do(func() {
		c.mu.Lock()
		c.disposed = true
		c.ready = false
		outstanding := c.calls
		c.calls = make(map[uint64]chan callOutcome)
		cancel := c.cancel
		c.mu.Unlock()

		if cancel != nil {
			cancel()
		}
		for _, ch := range outstanding {
			ch <- callOutcome{err: errors.ErrWorkerDisposed}
		}
		c.logger.Printf("worker disposed, rejected %d outstanding calls", len(outstanding))
	})
}
