// Package errs defines the sentinel errors shared by all axon packages.
//
// The storage status taxonomy (busy, overflow, not-found, bad-arg, corruption,
// I/O, fatal) is expressed as plain error values so callers can classify
// failures with errors.Is across package boundaries. Packages wrap these
// sentinels with fmt.Errorf("...: %w", err) to add context without breaking
// classification.
package errs

import "errors"

// Storage status taxonomy. These are the only errors that cross the
// pipeline/storage boundary.
var (
	// ErrBusy indicates a transient condition; the operation may be retried.
	ErrBusy = errors.New("resource busy")

	// ErrOverflow indicates the target page has no room for the entry.
	ErrOverflow = errors.New("page overflow")

	// ErrNotFound indicates the requested series or entry does not exist.
	ErrNotFound = errors.New("not found")

	// ErrBadArg indicates a malformed argument (bad query, bad offsets).
	ErrBadArg = errors.New("bad argument")

	// ErrCorruption indicates an on-disk structure failed validation.
	ErrCorruption = errors.New("data corruption")

	// ErrIO indicates an unrecoverable error from the backing file.
	ErrIO = errors.New("i/o error")

	// ErrFatal indicates an unrecoverable internal failure; the pipeline
	// must be stopped.
	ErrFatal = errors.New("fatal error")
)

// Structural errors reported by the page and pipeline layers.
var (
	// ErrInvalidPageSize is returned when a page buffer is smaller than the
	// header or larger than the 2^32-byte format limit.
	ErrInvalidPageSize = errors.New("invalid page size")

	// ErrPageClosed is returned when an entry is appended to a page whose
	// write session has been closed.
	ErrPageClosed = errors.New("page closed for writes")

	// ErrPageReadOnly is returned when a write is attempted on a page that
	// failed validation on open.
	ErrPageReadOnly = errors.New("page is read-only")

	// ErrInvalidCapacity is returned when a queue capacity is not a power
	// of two.
	ErrInvalidCapacity = errors.New("capacity must be a positive power of two")

	// ErrPipelineStopped is returned when a spout is created on a pipeline
	// that has already been stopped.
	ErrPipelineStopped = errors.New("pipeline stopped")

	// ErrInvalidQuery is returned when a query string cannot be understood.
	ErrInvalidQuery = errors.New("invalid query")

	// ErrSeriesNameTooLong is returned when a series name exceeds the
	// registry limit.
	ErrSeriesNameTooLong = errors.New("series name too long")
)
