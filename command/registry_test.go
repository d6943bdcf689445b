package command

import (
	"context"
	"encoding/binary"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/streamcore/errors"
)

// uint64Extractor treats the first 8 bytes of a frame as the correlation id.
// Frames shorter than 8 bytes are not responses.
func uint64Extractor(frame []byte) (uint64, bool) {
	if len(frame) < 8 {
		return 0, false
	}
	return binary.LittleEndian.Uint64(frame), true
}

func responseFrame(id uint64, body ...byte) []byte {
	frame := make([]byte, 8+len(body))
	binary.LittleEndian.PutUint64(frame, id)
	copy(frame[8:], body)
	return frame
}

func TestNewRegistryRequiresExtractor(t *testing.T) {
	_, err := NewRegistry(nil)
	assert.Error(t, err)
}

func TestRegisterAndSettleByFrame(t *testing.T) {
	r, err := NewRegistry(uint64Extractor)
	require.NoError(t, err)

	p, err := r.Register(7)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), p.ID())
	assert.Equal(t, 1, r.PendingCount())

	value, perr := p.Result()
	assert.Nil(t, value)
	assert.NoError(t, perr, "unsettled pending has zero result")

	assert.True(t, r.HandleFrame(responseFrame(7, 0xAA, 0xBB)))

	select {
	case <-p.Done():
	case <-time.After(time.Second):
		t.Fatal("pending never settled")
	}

	value, perr = p.Result()
	require.NoError(t, perr)
	assert.Equal(t, []byte(responseFrame(7, 0xAA, 0xBB)), value)
	assert.Equal(t, 0, r.PendingCount())

	// A second frame for the same id has no registration to settle
	assert.False(t, r.HandleFrame(responseFrame(7)))
}

func TestDuplicateRegistration(t *testing.T) {
	r, err := NewRegistry(uint64Extractor)
	require.NoError(t, err)

	_, err = r.Register(1)
	require.NoError(t, err)

	_, err = r.Register(1)
	assert.ErrorIs(t, err, errors.ErrDuplicatePending)
}

func TestUncorrelatedFramesPassThrough(t *testing.T) {
	r, err := NewRegistry(uint64Extractor)
	require.NoError(t, err)

	_, err = r.Register(1)
	require.NoError(t, err)

	assert.False(t, r.HandleFrame([]byte{1, 2, 3}), "short frame is not a response")
	assert.False(t, r.HandleFrame(responseFrame(99)), "unknown id is left alone")
	assert.Equal(t, 1, r.PendingCount())
}

func TestTimeout(t *testing.T) {
	r, err := NewRegistry(uint64Extractor, WithTimeout(30*time.Millisecond))
	require.NoError(t, err)

	p, err := r.Register(1)
	require.NoError(t, err)

	_, perr := p.Wait(context.Background())
	assert.ErrorIs(t, perr, errors.ErrResponseTimeout)
	assert.Equal(t, 0, r.PendingCount())

	// The late response finds nothing to settle
	assert.False(t, r.HandleFrame(responseFrame(1)))
}

func TestResponseBeatsTimeout(t *testing.T) {
	r, err := NewRegistry(uint64Extractor, WithTimeout(200*time.Millisecond))
	require.NoError(t, err)

	p, err := r.Register(1)
	require.NoError(t, err)

	require.True(t, r.HandleFrame(responseFrame(1, 0x01)))

	value, perr := p.Wait(context.Background())
	require.NoError(t, perr)
	assert.Equal(t, []byte(responseFrame(1, 0x01)), value)

	// Timer firing later must not flip a settled pending
	time.Sleep(250 * time.Millisecond)
	value, perr = p.Result()
	require.NoError(t, perr)
	assert.NotNil(t, value)
}

func TestDeserializer(t *testing.T) {
	r, err := NewRegistry(uint64Extractor,
		WithDeserializer(func(frame []byte) (any, error) {
			if len(frame) < 9 {
				return nil, fmt.Errorf("truncated body")
			}
			return int(frame[8]), nil
		}))
	require.NoError(t, err)

	p, err := r.Register(1)
	require.NoError(t, err)
	require.True(t, r.HandleFrame(responseFrame(1, 42)))

	value, perr := p.Wait(context.Background())
	require.NoError(t, perr)
	assert.Equal(t, 42, value)

	// Decode failure rejects the pending but still consumes the frame
	p2, err := r.Register(2)
	require.NoError(t, err)
	require.True(t, r.HandleFrame(responseFrame(2)))
	_, perr = p2.Wait(context.Background())
	assert.Error(t, perr)
}

func TestResolveAndReject(t *testing.T) {
	r, err := NewRegistry(uint64Extractor)
	require.NoError(t, err)

	p1, err := r.Register(1)
	require.NoError(t, err)
	p2, err := r.Register(2)
	require.NoError(t, err)

	assert.True(t, r.Resolve(1, "ok"))
	assert.False(t, r.Resolve(1, "again"))

	value, perr := p1.Wait(context.Background())
	require.NoError(t, perr)
	assert.Equal(t, "ok", value)

	cause := fmt.Errorf("engine gone")
	assert.True(t, r.Reject(2, cause))
	_, perr = p2.Wait(context.Background())
	assert.ErrorIs(t, perr, cause)

	assert.False(t, r.Reject(99, cause))
}

func TestRejectAll(t *testing.T) {
	r, err := NewRegistry(uint64Extractor)
	require.NoError(t, err)

	var pendings []*Pending
	for id := uint64(0); id < 4; id++ {
		p, err := r.Register(id)
		require.NoError(t, err)
		pendings = append(pendings, p)
	}

	reason := fmt.Errorf("connection dropped")
	r.RejectAll(reason)

	assert.Equal(t, 0, r.PendingCount())
	for _, p := range pendings {
		_, perr := p.Wait(context.Background())
		assert.ErrorIs(t, perr, reason)
	}

	// Safe on an empty registry
	r.RejectAll(reason)
}

func TestWaitHonorsContext(t *testing.T) {
	r, err := NewRegistry(uint64Extractor, WithTimeout(0))
	require.NoError(t, err)

	p, err := r.Register(1)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, perr := p.Wait(ctx)
	assert.ErrorIs(t, perr, context.DeadlineExceeded)
	assert.Equal(t, 1, r.PendingCount(), "context cancellation does not unregister")
}

func TestMiddlewareSwallowsCorrelatedFrames(t *testing.T) {
	r, err := NewRegistry(uint64Extractor)
	require.NoError(t, err)

	mw := r.Middleware()

	p, err := r.Register(5)
	require.NoError(t, err)

	nextCalled := false
	mw(responseFrame(5), func() { nextCalled = true })
	assert.False(t, nextCalled, "correlated response stops at the registry")

	_, perr := p.Wait(context.Background())
	require.NoError(t, perr)

	mw([]byte{0xFE}, func() { nextCalled = true })
	assert.True(t, nextCalled, "uncorrelated frame flows on")
}
