// Package sharedframe implements the shared memory segment used to move
// periodic engine frames from the background worker to main-side consumers.
//
// Segment layout (byte-exact, little-endian):
//
//	bytes 0-7:   sequence number (8-byte float, atomic)
//	bytes 8-15:  producer timestamp (8-byte float, atomic)
//	bytes 16-19: payload length in bytes (4-byte unsigned int, atomic)
//	bytes 20+:   payload region
//
// Fixed-width numeric mode aligns the payload region to the next 8-byte
// boundary after the header (byte 24) for direct float64 slot access;
// variable-length mode starts the payload region at byte 20.
//
// Contract: exactly one writer (the worker goroutine), any number of readers.
// This is enforced by convention, not by the runtime. No locks are used; the
// sequence and length header fields are accessed atomically, and an
// in-process write epoch (odd while a publish is in progress, not part of
// the byte layout above) lets copying readers detect overlap with a write.
// Readers of variable-length payloads must copy through Reader.CopyPayload,
// because the region may be overwritten between a byte read and later
// deserialization.
// Header fields written by the producer are never cleared by readers;
// freshness is carried exclusively by the sequence counter (see Cursor).
package sharedframe

import (
	"encoding/binary"
	"fmt"
	"math"
	"runtime"
	"sync/atomic"
	"unsafe"

	"github.com/c360/streamcore/errors"
)

// Header field offsets and sizes
const (
	SequenceOffset  = 0
	TimestampOffset = 8
	LengthOffset    = 16
	HeaderSize      = 20

	// AlignedPayloadOffset is where fixed-width numeric payloads start:
	// the next 8-byte boundary after the header.
	AlignedPayloadOffset = 24
)

// Mode selects the payload discipline of a segment
type Mode int

const (
	// VariableLength carries one encoded record per frame; readers copy it out.
	VariableLength Mode = iota
	// FixedWidth carries float64 slots read in place without copying.
	FixedWidth
)

// String returns the string representation of Mode
func (m Mode) String() string {
	switch m {
	case VariableLength:
		return "variable"
	case FixedWidth:
		return "fixed"
	default:
		return "unknown"
	}
}

// Segment is one shared frame buffer. Create with NewSegment; capacity is
// fixed for the segment's lifetime, so reader views never dangle. A larger
// segment is a new Segment exchanged through the worker handshake.
type Segment struct {
	mode       Mode
	buf        []byte // full region including header, 8-byte aligned backing
	seq        *atomic.Uint64
	ts         *atomic.Uint64
	length     *atomic.Uint32
	epoch      atomic.Uint64 // odd while a publish is in progress
	payloadOff int
	payloadCap int
}

// NewSegment allocates a segment able to hold payloads up to payloadCap bytes.
// For FixedWidth mode, payloadCap must be a multiple of 8.
func NewSegment(mode Mode, payloadCap int) (*Segment, error) {
	if payloadCap <= 0 {
		return nil, errors.WrapInvalid(
			fmt.Errorf("payload capacity must be positive, got %d", payloadCap),
			"Segment", "NewSegment", "validate capacity")
	}
	if mode == FixedWidth && payloadCap%8 != 0 {
		return nil, errors.WrapInvalid(
			fmt.Errorf("fixed-width payload capacity must be a multiple of 8, got %d", payloadCap),
			"Segment", "NewSegment", "validate capacity")
	}

	payloadOff := HeaderSize
	if mode == FixedWidth {
		payloadOff = AlignedPayloadOffset
	}

	total := payloadOff + payloadCap

	// Back the region with a []uint64 so byte 0 is 8-byte aligned and the
	// header words can be addressed atomically in place.
	words := make([]uint64, (total+7)/8)
	base := unsafe.Pointer(&words[0])
	buf := unsafe.Slice((*byte)(base), total)

	return &Segment{
		mode:       mode,
		buf:        buf,
		seq:        (*atomic.Uint64)(base),
		ts:         (*atomic.Uint64)(unsafe.Pointer(&words[1])),
		length:     (*atomic.Uint32)(unsafe.Pointer(&buf[LengthOffset])),
		payloadOff: payloadOff,
		payloadCap: payloadCap,
	}, nil
}

// Mode returns the segment's payload discipline
func (s *Segment) Mode() Mode { return s.mode }

// PayloadCapacity returns the maximum payload size in bytes
func (s *Segment) PayloadCapacity() int { return s.payloadCap }

// Size returns the total segment size including the header
func (s *Segment) Size() int { return len(s.buf) }

// Writer returns the producer view. Only one goroutine may use it.
func (s *Segment) Writer() *Writer { return &Writer{seg: s} }

// Reader returns a consumer view. Readers are cheap value holders; create
// them on demand.
func (s *Segment) Reader() *Reader { return &Reader{seg: s} }

// Writer is the single-producer view of a segment.
type Writer struct {
	seg  *Segment
	next uint64 // frames written so far; sequence of the next frame
}

// WriteFrame publishes one variable-length payload: copies it into the
// payload region, stores the byte length atomically, stamps the timestamp,
// then increments the sequence counter. The sequence store is last so a
// reader that observes the new sequence also observes the new length.
func (w *Writer) WriteFrame(timestamp float64, payload []byte) error {
	s := w.seg
	if len(payload) > s.payloadCap {
		return errors.WrapInvalid(
			fmt.Errorf("payload %d bytes exceeds capacity %d", len(payload), s.payloadCap),
			"Writer", "WriteFrame", "check payload size")
	}

	s.epoch.Add(1) // odd: publish in progress
	copy(s.buf[s.payloadOff:], payload)
	s.length.Store(uint32(len(payload)))
	s.ts.Store(math.Float64bits(timestamp))

	w.next++
	s.seq.Store(math.Float64bits(float64(w.next)))
	s.epoch.Add(1) // even: publish complete
	return nil
}

// WriteSlots publishes fixed-width float64 slots in place. Valid only for
// FixedWidth segments.
func (w *Writer) WriteSlots(timestamp float64, slots []float64) error {
	s := w.seg
	if s.mode != FixedWidth {
		return errors.WrapInvalid(
			fmt.Errorf("WriteSlots on %s segment", s.mode),
			"Writer", "WriteSlots", "check segment mode")
	}
	if len(slots)*8 > s.payloadCap {
		return errors.WrapInvalid(
			fmt.Errorf("%d slots exceed capacity %d bytes", len(slots), s.payloadCap),
			"Writer", "WriteSlots", "check payload size")
	}

	s.epoch.Add(1)
	for i, v := range slots {
		off := s.payloadOff + i*8
		binary.LittleEndian.PutUint64(s.buf[off:], math.Float64bits(v))
	}
	s.length.Store(uint32(len(slots) * 8))
	s.ts.Store(math.Float64bits(timestamp))

	w.next++
	s.seq.Store(math.Float64bits(float64(w.next)))
	s.epoch.Add(1)
	return nil
}

// Sequence returns the sequence of the most recently published frame
func (w *Writer) Sequence() float64 { return float64(w.next) }

// Capacity returns the maximum payload size in bytes
func (w *Writer) Capacity() int { return w.seg.payloadCap }

// Reader is a consumer view of a segment. It never writes.
type Reader struct {
	seg *Segment
}

// Sequence returns the current sequence counter
func (r *Reader) Sequence() float64 {
	return math.Float64frombits(r.seg.seq.Load())
}

// Timestamp returns the producer timestamp of the current frame
func (r *Reader) Timestamp() float64 {
	return math.Float64frombits(r.seg.ts.Load())
}

// Length returns the payload length of the current frame in bytes
func (r *Reader) Length() int {
	return int(r.seg.length.Load())
}

// Slot reads fixed-width float64 slot i directly from the shared region
// without copying. Valid only for FixedWidth segments; a torn read cannot
// occur for 8-byte aligned slots written whole. Indexes outside the payload
// region read as zero.
func (r *Reader) Slot(i int) float64 {
	s := r.seg
	if i < 0 || (i+1)*8 > s.payloadCap {
		return 0
	}
	off := s.payloadOff + i*8
	return math.Float64frombits(binary.LittleEndian.Uint64(s.buf[off:]))
}

// SlotCount returns the number of float64 slots in the current frame
func (r *Reader) SlotCount() int {
	return r.Length() / 8
}

// CopyPayload copies the current variable-length payload into dst and returns
// the byte count and the sequence it belongs to. The copy retries whenever it
// overlapped a publish (seqlock discipline on the write epoch), so the
// returned bytes are always one consistent frame attributed to its own
// sequence. dst must be at least PayloadCapacity bytes.
func (r *Reader) CopyPayload(dst []byte) (int, float64, error) {
	s := r.seg
	if len(dst) < s.payloadCap {
		return 0, 0, errors.WrapInvalid(
			fmt.Errorf("destination %d bytes below capacity %d", len(dst), s.payloadCap),
			"Reader", "CopyPayload", "check destination size")
	}

	for {
		before := s.epoch.Load()
		if before&1 == 1 {
			// Publish in progress
			runtime.Gosched()
			continue
		}
		n := int(s.length.Load())
		if n > s.payloadCap {
			n = s.payloadCap
		}
		copy(dst[:n], s.buf[s.payloadOff:s.payloadOff+n])
		seq := s.seq.Load()
		if s.epoch.Load() == before {
			return n, math.Float64frombits(seq), nil
		}
		// Producer raced us; take the newer frame instead.
	}
}
