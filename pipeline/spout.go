package pipeline

import (
	"runtime"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/arloliu/axon/storage"
)

// BackoffPolicy selects how a spout reacts when its slot pool is saturated.
type BackoffPolicy uint8

const (
	// LinearBackoff yields the scheduling quantum and retries indefinitely.
	LinearBackoff BackoffPolicy = iota + 1
	// Throttle sleeps for one millisecond and then gives up the write; the
	// sample is dropped and counted, no error surfaces.
	Throttle
)

func (b BackoffPolicy) String() string {
	switch b {
	case LinearBackoff:
		return "LinearBackoff"
	case Throttle:
		return "Throttle"
	default:
		return "Unknown"
	}
}

// ErrorCallback receives storage failures for samples submitted through a
// spout, together with the spout's release count at the time of the failure
// so the caller can correlate with its own submission counter. Callbacks run
// on the worker goroutine and must be non-blocking and reentrancy-safe.
type ErrorCallback func(err error, released uint64)

// Slot is one pooled in-flight sample. A published slot is shared with the
// worker for exactly one round-trip: the worker writes the sample, increments
// the release counter, and the slot is again exclusively owned by its spout.
//
// The poison sentinel is a slot with a nil release counter, distinguishable
// from every real slot.
type Slot struct {
	sample  storage.Sample
	release *atomic.Uint64
	onError *ErrorCallback
}

// DefaultPoolSize is the per-spout slot pool size.
const DefaultPoolSize = 4096

// Spout is a producer handle bound to exactly one pipeline queue. Each spout
// owns a fixed pool of slots and two monotonic counters: created, the number
// of slots ever handed out, and released, incremented by the worker as slots
// complete. A slot is free iff created-released < pool size; the next free
// slot is created mod pool size.
//
// A spout serves a single producer goroutine. Only released crosses threads
// (worker to producer), which makes the free-check and the claim in Write a
// single-threaded read-modify-write on created — the pool cannot be
// double-claimed.
type Spout struct {
	created  atomic.Uint64
	released atomic.Uint64

	pool    []Slot
	queue   *Queue
	backoff BackoffPolicy
	onError ErrorCallback
	conn    storage.Connection
	clock   clock.Clock
	metrics *Metrics
}

func newSpout(q *Queue, backoff BackoffPolicy, conn storage.Connection, poolSize int, clk clock.Clock, metrics *Metrics) *Spout {
	return &Spout{
		pool:    make([]Slot, poolSize),
		queue:   q,
		backoff: backoff,
		conn:    conn,
		clock:   clk,
		metrics: metrics,
	}
}

// SetErrorCallback registers the callback invoked by the worker when writing
// one of this spout's samples fails. It must be set before the first Write.
func (s *Spout) SetErrorCallback(cb ErrorCallback) {
	s.onError = cb
}

// Write submits one sample. On return, either the sample has been enqueued
// and will eventually be written (or reported through the error callback), or
// — under Throttle with a saturated pool — it has been dropped and counted in
// the pipeline's dropped-samples metric.
//
// Under LinearBackoff, Write spins with scheduler yields until a slot frees
// up. Once a slot is claimed there is no drop path: the queue push also spins
// until it succeeds.
func (s *Spout) Write(sample storage.Sample) {
	ix := s.freeSlot()
	for ix < 0 {
		ix = s.freeSlot()
		if ix >= 0 {
			break
		}
		if s.backoff == LinearBackoff {
			runtime.Gosched()
			continue
		}
		// Throttle: wait one quantum, then give up this write.
		s.clock.Sleep(time.Millisecond)
		s.metrics.SamplesDropped.Inc()

		return
	}

	slot := &s.pool[ix]
	slot.sample = sample
	slot.release = &s.released
	slot.onError = &s.onError

	// The queue's sequence release-store publishes the fully written slot;
	// the worker's acquire-load pairs with it.
	for !s.queue.Push(slot) {
		runtime.Gosched()
	}
}

// freeSlot claims the next free slot index, or -1 when the pool is saturated.
// Only the producer goroutine advances created, so the free-check and the
// claim form one single-threaded decision; released is the only counter that
// crosses threads.
func (s *Spout) freeSlot() int {
	created := s.created.Load()
	if created-s.released.Load() < uint64(len(s.pool)) {
		ix := int(created % uint64(len(s.pool)))
		s.created.Store(created + 1)

		return ix
	}

	return -1
}

// SeriesToParamID resolves a series name through the storage connection.
// Safe to call concurrently from many spouts.
func (s *Spout) SeriesToParamID(name []byte) (storage.Sample, error) {
	return s.conn.SeriesToParamID(name)
}

// Created returns the number of slots this spout has ever handed out.
func (s *Spout) Created() uint64 {
	return s.created.Load()
}

// Released returns the number of slots the worker has acknowledged.
func (s *Spout) Released() uint64 {
	return s.released.Load()
}
