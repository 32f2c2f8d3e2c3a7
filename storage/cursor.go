package storage

import (
	"iter"

	"github.com/arloliu/axon/page"
)

// pageCursor streams query results across a sequence of pages, pulling from
// one page iterator at a time. Back-pressure comes from the caller: entries
// are decoded only as Read drains them.
type pageCursor struct {
	pages []*page.Page
	query page.Query

	idx    int
	next   func() (page.Entry, bool)
	stop   func()
	done   bool
	closed bool
}

func newPageCursor(pages []*page.Page, q page.Query) *pageCursor {
	return &pageCursor{pages: pages, query: q}
}

// Read fills buf with up to len(buf) samples. Payloads are copied out of the
// page so they stay valid across page reuse.
func (c *pageCursor) Read(buf []Sample) (int, error) {
	if c.closed || c.done {
		c.done = true
		return 0, nil
	}

	n := 0
	for n < len(buf) {
		if c.next == nil {
			if c.idx >= len(c.pages) {
				c.done = true
				break
			}
			c.next, c.stop = iter.Pull(c.pages[c.idx].Search(c.query))
			c.idx++
		}

		e, ok := c.next()
		if !ok {
			c.stop()
			c.next, c.stop = nil, nil
			continue
		}

		buf[n] = Sample{
			Param: e.Param,
			Time:  e.Time,
			Kind:  PayloadBlob,
			Blob:  append([]byte(nil), e.Payload...),
		}
		n++
	}

	return n, nil
}

// IsDone reports whether the stream is exhausted.
func (c *pageCursor) IsDone() bool {
	return c.done
}

// Err returns the deferred error. Page search cannot fail mid-stream, so
// this is always nil; the method exists to satisfy Cursor.
func (c *pageCursor) Err() error {
	return nil
}

// Close releases the in-flight page iterator, if any.
func (c *pageCursor) Close() error {
	if c.stop != nil {
		c.stop()
		c.next, c.stop = nil, nil
	}
	c.closed = true
	c.done = true

	return nil
}

var _ Cursor = (*pageCursor)(nil)

// CollectAll drains a cursor into a slice, closing it afterwards. Intended
// for tests and small result sets.
func CollectAll(c Cursor) ([]Sample, error) {
	defer func() { _ = c.Close() }()

	var out []Sample
	buf := make([]Sample, 64)
	for !c.IsDone() {
		n, err := c.Read(buf)
		if err != nil {
			return out, err
		}
		out = append(out, buf[:n]...)
	}

	return out, c.Err()
}
