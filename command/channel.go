// Package command implements the outbound command path and its response
// correlation: a send channel with a reusable encode buffer and monotonic
// correlation ids, a registry of deferred results settled by correlated
// response frames, and a replay store that re-issues subscriptions after
// reconnect.
package command

import (
	"bytes"
	"log"
	"sync"

	"github.com/c360/streamcore/errors"
)

// Logger interface for injecting custom loggers
type Logger interface {
	Printf(format string, v ...any)
	Errorf(format string, v ...any)
	Debugf(format string, v ...any)
}

type defaultLogger struct{}

func (l *defaultLogger) Printf(format string, v ...any) {
	log.Printf("[COMMAND] "+format, v...)
}

func (l *defaultLogger) Errorf(format string, v ...any) {
	log.Printf("[COMMAND ERROR] "+format, v...)
}

func (l *defaultLogger) Debugf(_ string, _ ...any) {
	// Silent by default
}

// Transmitter sends one encoded command frame to the transport.
type Transmitter func(data []byte) error

// BuildFunc writes the wire form of a command into buf. The correlation id
// assigned to this send is passed in so the encoder can embed it.
type BuildFunc func(id uint64, buf *bytes.Buffer) error

// Channel serializes commands onto a transport. The encode buffer is reused
// across sends and correlation ids are monotonic, starting at zero; an id is
// consumed even when the build or transmit fails, so ids are never reused.
type Channel struct {
	mu       sync.Mutex
	buf      bytes.Buffer
	nextID   uint64
	transmit Transmitter
	logger   Logger
}

// ChannelOption configures a Channel
type ChannelOption func(*Channel)

// WithChannelLogger sets a custom logger for the channel
func WithChannelLogger(logger Logger) ChannelOption {
	return func(c *Channel) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewChannel creates a command channel that encodes into a reusable buffer
// and hands finished frames to transmit.
func NewChannel(transmit Transmitter, opts ...ChannelOption) (*Channel, error) {
	if transmit == nil {
		return nil, errors.WrapInvalid(
			errors.ErrNotConnected, "Channel", "NewChannel", "transmitter is required")
	}

	c := &Channel{
		transmit: transmit,
		logger:   &defaultLogger{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Send allocates the next correlation id, encodes the command through build,
// and transmits the frame. The returned id identifies the response; pair it
// with a Registry registration before calling Send when a reply is expected.
//
// The buffer contents are only valid during the build call. Sends are
// serialized; the transport sees frames in id order.
func (c *Channel) Send(build BuildFunc) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.nextID
	c.nextID++

	c.buf.Reset()
	if err := build(id, &c.buf); err != nil {
		return id, errors.WrapInvalid(err, "Channel", "Send", "encode command")
	}

	if err := c.transmit(c.buf.Bytes()); err != nil {
		return id, errors.WrapTransient(err, "Channel", "Send", "transmit command")
	}

	c.logger.Debugf("sent command id=%d bytes=%d", id, c.buf.Len())
	return id, nil
}

// NextID returns the id the next Send will use. Intended for tests and
// diagnostics.
func (c *Channel) NextID() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nextID
}
