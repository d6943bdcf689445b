package sharedframe

import "math"

// Cursor tracks the last-observed sequence of a segment so main-side samplers
// can tell whether a new frame arrived since their previous read, without a
// separate "new data" signal from the producer.
//
// Sequence comparison is the only freshness mechanism: the producer never
// clears header fields after a read, and cursors are idempotent against
// re-observation of the same frame.
type Cursor struct {
	reader  *Reader
	lastSeq uint64
}

// Sample holds one observation of a segment
type Sample struct {
	NewFrame  bool    // true when the sequence advanced since the prior Sample
	Sequence  float64 // sequence of the observed frame
	Timestamp float64 // producer timestamp of the observed frame
	Length    int     // payload length in bytes
}

// NewCursor creates a cursor over a fresh reader view of the segment.
func NewCursor(seg *Segment) *Cursor {
	return &Cursor{reader: seg.Reader()}
}

// Reader exposes the underlying reader view for payload access
func (c *Cursor) Reader() *Reader { return c.reader }

// Sample observes the segment once. Two samples without an intervening
// producer write report NewFrame=false on the second.
func (c *Cursor) Sample() Sample {
	bits := c.reader.seg.seq.Load()
	fresh := bits != c.lastSeq
	c.lastSeq = bits

	return Sample{
		NewFrame:  fresh,
		Sequence:  math.Float64frombits(bits),
		Timestamp: c.reader.Timestamp(),
		Length:    c.reader.Length(),
	}
}
