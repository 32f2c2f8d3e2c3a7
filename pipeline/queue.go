package pipeline

import (
	"fmt"
	"sync/atomic"

	"github.com/arloliu/axon/errs"
)

// Queue is a bounded multi-producer/single-consumer queue of slot pointers.
//
// Each cell carries a sequence counter: a producer claims a cell by CAS on
// the tail, writes the pointer, then release-stores the sequence; the
// consumer's acquire-load of the sequence makes the fully written slot (and
// everything it references) visible before the pointer is read. Capacity is
// a power of two so positions map to cells with a mask.
type Queue struct {
	mask uint64
	buf  []cell

	_    [48]byte // keep tail and head on separate cache lines
	tail atomic.Uint64
	_    [56]byte
	head atomic.Uint64
}

type cell struct {
	seq atomic.Uint64
	val *Slot
}

// NewQueue creates a queue with the given capacity, which must be a positive
// power of two.
func NewQueue(capacity int) (*Queue, error) {
	if capacity <= 0 || capacity&(capacity-1) != 0 {
		return nil, fmt.Errorf("queue capacity %d: %w", capacity, errs.ErrInvalidCapacity)
	}

	q := &Queue{
		mask: uint64(capacity - 1),
		buf:  make([]cell, capacity),
	}
	for i := range q.buf {
		q.buf[i].seq.Store(uint64(i))
	}

	return q, nil
}

// Cap returns the queue capacity.
func (q *Queue) Cap() int {
	return len(q.buf)
}

// Push enqueues v without blocking. It returns false when the queue is full.
// Safe for many concurrent producers.
func (q *Queue) Push(v *Slot) bool {
	for {
		t := q.tail.Load()
		c := &q.buf[t&q.mask]
		seq := c.seq.Load()
		diff := int64(seq) - int64(t)

		switch {
		case diff == 0:
			if q.tail.CompareAndSwap(t, t+1) {
				c.val = v
				c.seq.Store(t + 1)
				return true
			}
		case diff < 0:
			// The cell still holds an element from the previous lap.
			return false
		}
		// diff > 0: another producer claimed this cell; retry with a fresh tail.
	}
}

// Pop dequeues the next slot without blocking. It returns false when the
// queue is empty. Must be called from a single consumer goroutine.
func (q *Queue) Pop() (*Slot, bool) {
	h := q.head.Load()
	c := &q.buf[h&q.mask]
	seq := c.seq.Load()
	if int64(seq)-int64(h+1) < 0 {
		return nil, false
	}

	v := c.val
	c.val = nil
	c.seq.Store(h + q.mask + 1)
	q.head.Store(h + 1)

	return v, true
}

// Empty reports whether the queue currently holds no elements. Advisory:
// meaningful for drain checks once producers have ceased.
func (q *Queue) Empty() bool {
	return q.head.Load() == q.tail.Load()
}
