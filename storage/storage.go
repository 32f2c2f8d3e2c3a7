// Package storage defines the write/search surface the ingestion pipeline
// drives, and implements it on top of a memory-mapped volume of pages with a
// persistent series registry.
//
// A Store is single-writer by construction: only the pipeline worker calls
// Write and Search. SeriesToParamID and ParamIDToSeries are safe for
// concurrent use from many spouts.
package storage

import (
	"math"

	"github.com/arloliu/axon/endian"
)

var hostOrder = endian.Native()

// PayloadKind tags the payload union of a Sample.
type PayloadKind uint8

const (
	// PayloadFloat64 marks a sample carrying a single 64-bit float.
	PayloadFloat64 PayloadKind = iota + 1
	// PayloadBlob marks a sample carrying opaque bytes.
	PayloadBlob
)

// Sample is one timestamped measurement bound for storage.
type Sample struct {
	Param uint64
	Time  int64
	Kind  PayloadKind

	// Value is the payload when Kind is PayloadFloat64.
	Value float64
	// Blob is the payload when Kind is PayloadBlob. It must stay valid until
	// the pipeline worker has released the carrying slot.
	Blob []byte
}

// FloatSample builds a float sample.
func FloatSample(param uint64, ts int64, value float64) Sample {
	return Sample{Param: param, Time: ts, Kind: PayloadFloat64, Value: value}
}

// BlobSample builds a blob sample.
func BlobSample(param uint64, ts int64, blob []byte) Sample {
	return Sample{Param: param, Time: ts, Kind: PayloadBlob, Blob: blob}
}

// Float64 decodes an 8-byte blob payload as a host-order float. Samples read
// back from a page carry PayloadBlob; this recovers floats written with
// PayloadFloat64.
func (s Sample) Float64() (float64, bool) {
	if s.Kind == PayloadFloat64 {
		return s.Value, true
	}
	if len(s.Blob) != 8 {
		return 0, false
	}

	return math.Float64frombits(hostOrder.Uint64(s.Blob)), true
}

// payloadBytes renders the payload as the bytes stored on page. For floats
// the 8-byte host-order value is written into scratch to avoid allocating.
func (s Sample) payloadBytes(scratch *[8]byte) []byte {
	if s.Kind == PayloadFloat64 {
		hostOrder.PutUint64(scratch[:], math.Float64bits(s.Value))
		return scratch[:]
	}

	return s.Blob
}

// Connection is the capability set the pipeline worker and its spouts use:
// write, search, resolve and reverse-resolve. Implementations are selected at
// construction and passed by interface.
//
// Write and Search are called by the single worker only. SeriesToParamID and
// ParamIDToSeries must be safe for concurrent call from many spouts.
type Connection interface {
	// Write appends one sample. It returns nil on success or one of the
	// errs sentinels (ErrBusy, ErrOverflow, ErrCorruption, ErrIO).
	Write(sample Sample) error

	// Search runs a query and returns a cursor over the matching samples.
	Search(query string) (Cursor, error)

	// SeriesToParamID resolves a series name to a sample pre-filled with its
	// param id, registering the name on first use.
	SeriesToParamID(name []byte) (Sample, error)

	// ParamIDToSeries writes the series name for id into buf and returns the
	// number of bytes written, a negative length when buf is too small, or 0
	// when the id is unknown.
	ParamIDToSeries(id uint64, buf []byte) int
}

// Cursor streams query results in batches. Cursors are not safe for
// concurrent use.
type Cursor interface {
	// Read fills buf with up to len(buf) samples and returns how many were
	// written. A short (possibly zero) count with IsDone() true means the
	// stream is exhausted.
	Read(buf []Sample) (int, error)

	// IsDone reports whether the stream is exhausted.
	IsDone() bool

	// Err returns the deferred error, if any.
	Err() error

	// Close releases the cursor. Reads after Close return no samples.
	Close() error
}
