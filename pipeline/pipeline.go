// Package pipeline owns one logical WebSocket connection to a remote frame
// source: connect/reconnect lifecycle, staleness tracking, optional keepalive,
// optional latest-wins coalescing of binary frames, and a middleware chain for
// binary frame interception.
package pipeline

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/c360/streamcore/config"
	"github.com/c360/streamcore/errors"
	"github.com/c360/streamcore/pkg/backoff"
	"github.com/c360/streamcore/pkg/latest"
)

// State represents the connection state of the pipeline
type State int32

// Possible pipeline states
const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
)

// String returns the string representation of State
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

// Pipeline manages one resilient connection to a remote endpoint. All inbound
// dispatch (text handlers, binary middleware, flush deliveries) runs on the
// pipeline's own goroutines; public methods are safe from any goroutine.
type Pipeline struct {
	cfg     config.PipelineConfig
	backoff backoff.Config
	logger  Logger
	dialer  *websocket.Dialer
	metrics *Metrics

	state atomic.Int32

	mu                 sync.Mutex
	conn               *websocket.Conn
	connID             string // ownership token; late events from a replaced conn are ignored
	dialGen            uint64 // bumped by Connect/Disconnect/reconnect; stale dials are discarded
	intentionalClose   bool
	attempts           int
	reconnectTimer     *time.Timer
	loopStop           chan struct{}
	heartbeatPayload   []byte
	lastMessageAtNanos atomic.Int64

	writeMu sync.Mutex

	handlers handlerRegistry

	coalesced *latest.Slot[[]byte]
}

// New creates a pipeline for the configured endpoint. The pipeline starts
// Disconnected; call Connect to open the transport.
func New(cfg config.PipelineConfig, opts ...Option) (*Pipeline, error) {
	if cfg.URL == "" {
		return nil, errors.WrapInvalid(
			fmt.Errorf("endpoint url is required"),
			"Pipeline", "New", "validate config")
	}

	bo := backoff.Config{
		Base:   cfg.ReconnectDelay(),
		Max:    cfg.MaxReconnectDelay(),
		Jitter: 0.25,
	}
	if err := bo.Validate(); err != nil {
		return nil, errors.WrapInvalid(err, "Pipeline", "New", "validate backoff")
	}

	heartbeat := []byte(cfg.HeartbeatMessage)
	if len(heartbeat) == 0 {
		heartbeat = []byte{0}
	}

	p := &Pipeline{
		cfg:              cfg,
		backoff:          bo,
		logger:           &defaultLogger{},
		dialer:           &websocket.Dialer{HandshakeTimeout: 45 * time.Second},
		heartbeatPayload: heartbeat,
		coalesced:        latest.NewSlot[[]byte](),
	}

	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, errors.WrapInvalid(err, "Pipeline", "New", "apply option")
		}
	}

	return p, nil
}

// State returns the current connection state
func (p *Pipeline) State() State {
	return State(p.state.Load())
}

func (p *Pipeline) setState(s State) {
	p.state.Store(int32(s))
	if p.metrics != nil {
		p.metrics.state.Set(float64(s))
	}
}

// Stale reports whether no message has been received within the configured
// staleness window. Purely a read-time computation; a pipeline that has never
// received a message is not stale.
func (p *Pipeline) Stale() bool {
	last := p.lastMessageAtNanos.Load()
	if last == 0 {
		return false
	}
	return time.Since(time.Unix(0, last)) > p.cfg.StaleThreshold()
}

// LastMessageAt returns the receive time of the most recent message, or the
// zero time when nothing has been received.
func (p *Pipeline) LastMessageAt() time.Time {
	last := p.lastMessageAtNanos.Load()
	if last == 0 {
		return time.Time{}
	}
	return time.Unix(0, last)
}

// Connect opens the transport. No-op when already open or opening. A fresh
// Connect after exhausted retries restarts the retry budget.
func (p *Pipeline) Connect() {
	p.mu.Lock()
	st := p.State()
	if st == StateConnected || st == StateConnecting {
		p.mu.Unlock()
		return
	}
	if p.reconnectTimer != nil {
		p.reconnectTimer.Stop()
		p.reconnectTimer = nil
	}
	p.intentionalClose = false
	p.attempts = 0
	p.dialGen++
	gen := p.dialGen
	p.setState(StateConnecting)
	p.mu.Unlock()

	go p.dial(gen)
}

// Disconnect marks the pipeline intentionally closed, cancels any pending
// reconnect, stops the heartbeat and flush loops, closes the transport, and
// forces Disconnected. Idempotent.
func (p *Pipeline) Disconnect() {
	p.mu.Lock()
	p.intentionalClose = true
	p.dialGen++ // any dial still in flight must not install its conn
	if p.reconnectTimer != nil {
		p.reconnectTimer.Stop()
		p.reconnectTimer = nil
	}
	p.stopLoopsLocked()
	conn := p.conn
	p.conn = nil
	p.connID = ""
	p.setState(StateDisconnected)
	p.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
}

// Send transmits a binary message through the open transport.
func (p *Pipeline) Send(data []byte) error {
	p.mu.Lock()
	conn := p.conn
	p.mu.Unlock()

	if conn == nil {
		return errors.ErrNotConnected
	}

	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	return conn.WriteMessage(websocket.BinaryMessage, data)
}

// SendText transmits a text message through the open transport.
func (p *Pipeline) SendText(data string) error {
	p.mu.Lock()
	conn := p.conn
	p.mu.Unlock()

	if conn == nil {
		return errors.ErrNotConnected
	}

	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	return conn.WriteMessage(websocket.TextMessage, []byte(data))
}

// dial opens the transport once. Runs on its own goroutine. gen is the dial
// generation taken when this attempt was scheduled; if the pipeline has been
// disconnected or re-connected since, the result belongs to a stale attempt
// and is discarded, so at most one transport is ever installed.
func (p *Pipeline) dial(gen uint64) {
	conn, resp, err := p.dialer.Dial(p.cfg.URL, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		p.mu.Lock()
		stale := gen != p.dialGen
		p.mu.Unlock()
		if stale {
			p.logger.Debugf("discarding failure of superseded dial attempt")
			return
		}
		p.logger.Debugf("dial %s failed: %v", p.cfg.URL, err)
		p.handleClosed("", errors.ConnectFailed, err)
		return
	}

	p.mu.Lock()
	if p.intentionalClose || gen != p.dialGen {
		p.mu.Unlock()
		p.logger.Debugf("discarding superseded dial attempt")
		_ = conn.Close()
		return
	}

	id := uuid.NewString()
	p.stopLoopsLocked()
	p.conn = conn
	p.connID = id
	p.attempts = 0
	p.setState(StateConnected)

	stop := make(chan struct{})
	p.loopStop = stop
	p.mu.Unlock()

	p.logger.Printf("Connected to %s", p.cfg.URL)
	if p.metrics != nil {
		p.metrics.connects.Inc()
	}

	p.handlers.fireConnect()

	if p.cfg.HeartbeatInterval() > 0 {
		go p.heartbeatLoop(conn, stop)
	}
	if p.cfg.Backpressure {
		go p.flushLoop(stop)
	}
	go p.readLoop(id, conn)
}

// readLoop consumes inbound messages until the transport closes.
func (p *Pipeline) readLoop(id string, conn *websocket.Conn) {
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			p.handleClosed(id, errors.ConnectionLost, err)
			return
		}

		p.lastMessageAtNanos.Store(time.Now().UnixNano())

		switch msgType {
		case websocket.TextMessage:
			if p.metrics != nil {
				p.metrics.messages.WithLabelValues("text").Inc()
			}
			p.handlers.fireText(string(data))
		case websocket.BinaryMessage:
			if p.metrics != nil {
				p.metrics.messages.WithLabelValues("binary").Inc()
			}
			if p.cfg.Backpressure {
				_ = p.coalesced.Store(data)
			} else {
				p.dispatchBinary(data)
			}
		}
	}
}

// flushLoop delivers at most one coalesced binary frame per flush interval.
func (p *Pipeline) flushLoop(stop chan struct{}) {
	ticker := time.NewTicker(p.cfg.FlushInterval())
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if frame, ok := p.coalesced.Take(); ok {
				p.dispatchBinary(frame)
			}
		}
	}
}

// heartbeatLoop sends the keepalive payload on the configured interval.
func (p *Pipeline) heartbeatLoop(conn *websocket.Conn, stop chan struct{}) {
	ticker := time.NewTicker(p.cfg.HeartbeatInterval())
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			p.writeMu.Lock()
			err := conn.WriteMessage(websocket.BinaryMessage, p.heartbeatPayload)
			p.writeMu.Unlock()
			if err != nil {
				p.logger.Debugf("heartbeat write failed: %v", err)
				return
			}
			if p.metrics != nil {
				p.metrics.heartbeats.Inc()
			}
		}
	}
}

// dispatchBinary runs a frame through the middleware chain; the terminal
// handler runs only if every middleware called next.
func (p *Pipeline) dispatchBinary(frame []byte) {
	p.handlers.dispatchBinary(frame)
}

// handleClosed is the single close-event path: dial failures arrive with an
// empty id and type connect_failed, established connections that drop arrive
// with their ownership id and type connection_lost. Late events from a conn
// that has already been replaced are ignored.
func (p *Pipeline) handleClosed(id string, typ errors.ConnectionErrorType, cause error) {
	p.mu.Lock()

	if id != "" && id != p.connID {
		p.mu.Unlock()
		p.logger.Debugf("ignoring close event from stale transport handle")
		return
	}

	hadConn := p.conn != nil
	p.conn = nil
	p.connID = ""
	p.stopLoopsLocked()

	if p.intentionalClose {
		p.setState(StateDisconnected)
		p.mu.Unlock()
		return
	}

	p.attempts++
	attempt := p.attempts

	exhausted := p.cfg.MaxReconnectAttempts > 0 && p.attempts >= p.cfg.MaxReconnectAttempts

	if exhausted {
		p.setState(StateDisconnected)
	} else {
		p.setState(StateReconnecting)
		delay := p.backoff.Delay(attempt - 1)
		p.reconnectTimer = time.AfterFunc(delay, p.reconnect)
		p.logger.Printf("Reconnecting in %v (attempt %d)", delay, attempt)
		if p.metrics != nil {
			p.metrics.reconnects.Inc()
		}
	}
	p.mu.Unlock()

	if hadConn {
		p.handlers.fireDisconnect()
	}

	connErr := errors.NewConnectionError(typ, "transport closed", attempt, cause)
	p.emitError(connErr)

	if exhausted {
		p.logger.Errorf("Reconnect attempts exhausted after %d attempts", attempt)
		p.emitError(errors.NewConnectionError(
			errors.MaxRetriesExhausted, "reconnect attempts exhausted", attempt, cause))
	}
}

// reconnect fires from the backoff timer.
func (p *Pipeline) reconnect() {
	p.mu.Lock()
	if p.intentionalClose {
		p.mu.Unlock()
		return
	}
	p.reconnectTimer = nil
	p.dialGen++
	gen := p.dialGen
	p.setState(StateConnecting)
	p.mu.Unlock()

	p.dial(gen)
}

func (p *Pipeline) emitError(ce *errors.ConnectionError) {
	if p.metrics != nil {
		p.metrics.errorsTotal.WithLabelValues(string(ce.Type)).Inc()
	}
	p.handlers.fireError(ce)
}

// stopLoopsLocked stops the heartbeat and flush loops and drains any frame
// still coalesced from the closing transport, so it is not delivered as
// fresh after a reconnect. Caller holds p.mu.
func (p *Pipeline) stopLoopsLocked() {
	if p.loopStop != nil {
		close(p.loopStop)
		p.loopStop = nil
	}
	_, _ = p.coalesced.Take()
}
