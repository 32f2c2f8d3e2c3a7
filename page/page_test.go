package page

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/axon/errs"
	"github.com/arloliu/axon/format"
)

func newTestPage(t *testing.T, size int) *Page {
	t.Helper()
	p, err := New(make([]byte, size), format.PageIndex, 0)
	require.NoError(t, err)

	return p
}

// checkInvariants asserts the structural invariants that must hold after any
// successful operation: disjoint index/entry regions, in-bbox entries, and a
// sorted sync prefix.
func checkInvariants(t *testing.T, p *Page) {
	t.Helper()

	count := int(p.Count())
	last := uint64(p.LastOffset())

	require.GreaterOrEqual(t, last, uint64(HeaderSize+count*indexSlotSize))
	require.LessOrEqual(t, last, p.Length())
	require.LessOrEqual(t, int(p.SyncIndex()), count)
	require.GreaterOrEqual(t, p.OpenCount(), p.CloseCount())

	bbox := p.BBox()
	for i := 0; i < count; i++ {
		e, ok := p.ReadEntryAt(i)
		require.True(t, ok, "index slot %d must resolve to a valid entry", i)
		require.True(t, bbox.Contains(e.Param, e.Time),
			"entry %d (%d, %d) outside bbox %+v", i, e.Param, e.Time, bbox)
	}

	syncIdx := int(p.SyncIndex())
	for i := 1; i < syncIdx; i++ {
		a, _ := p.ReadEntryAt(i - 1)
		b, _ := p.ReadEntryAt(i)
		less := a.Param < b.Param || (a.Param == b.Param && a.Time <= b.Time)
		require.True(t, less, "sync prefix must be sorted at slot %d", i)
	}
}

func TestNewPage(t *testing.T) {
	p := newTestPage(t, 4096)

	require.Equal(t, format.PageIndex, p.Kind())
	require.Equal(t, uint32(0), p.Count())
	require.Equal(t, uint32(4096), p.LastOffset())
	require.Equal(t, uint64(4096), p.Length())
	require.Equal(t, uint32(1), p.OpenCount())
	require.Equal(t, uint32(0), p.CloseCount())
	require.True(t, p.BBox().IsEmpty())
}

func TestNewPage_BadBuffer(t *testing.T) {
	_, err := New(make([]byte, HeaderSize-1), format.PageIndex, 0)
	require.ErrorIs(t, err, errs.ErrInvalidPageSize)
}

func TestAddEntry(t *testing.T) {
	p := newTestPage(t, 4096)

	require.NoError(t, p.AddEntry(7, 100, []byte("hello")))
	require.Equal(t, uint32(1), p.Count())

	e, ok := p.ReadEntryAt(0)
	require.True(t, ok)
	require.Equal(t, uint64(7), e.Param)
	require.Equal(t, int64(100), e.Time)
	require.Equal(t, []byte("hello"), e.Payload)

	bbox := p.BBox()
	require.Equal(t, BoundingBox{MinID: 7, MaxID: 7, MinTime: 100, MaxTime: 100}, bbox)

	checkInvariants(t, p)
}

func TestAddEntry_WidensBBox(t *testing.T) {
	p := newTestPage(t, 4096)

	require.NoError(t, p.AddEntry(5, 10, []byte("a")))
	require.NoError(t, p.AddEntry(2, 30, []byte("b")))
	require.NoError(t, p.AddEntry(9, -4, []byte("c")))

	require.Equal(t, BoundingBox{MinID: 2, MaxID: 9, MinTime: -4, MaxTime: 30}, p.BBox())
	checkInvariants(t, p)
}

// Exact-fit boundary: an entry whose size plus index slot exactly consumes
// the free space succeeds; one payload byte more must overflow.
func TestAddEntry_ExactFit(t *testing.T) {
	p := newTestPage(t, 4096)

	free := p.FreeSpace()
	// Solve for a payload that lands exactly on free = EntrySize + slot.
	payloadLen := free - indexSlotSize - entryPrefixSize
	require.Equal(t, int(EntrySize(payloadLen))+indexSlotSize, free)

	t.Run("one byte larger overflows", func(t *testing.T) {
		err := p.AddEntry(1, 0, make([]byte, payloadLen+1))
		require.ErrorIs(t, err, errs.ErrOverflow)
		require.Equal(t, uint32(0), p.Count())
	})

	t.Run("exact fill succeeds", func(t *testing.T) {
		require.NoError(t, p.AddEntry(1, 0, make([]byte, payloadLen)))
		require.Equal(t, 0, p.FreeSpace())
		checkInvariants(t, p)
	})

	t.Run("page is full", func(t *testing.T) {
		err := p.AddEntry(1, 1, nil)
		require.ErrorIs(t, err, errs.ErrOverflow)
	})
}

func TestAddEntry_AfterClose(t *testing.T) {
	p := newTestPage(t, 4096)
	require.NoError(t, p.AddEntry(1, 0, []byte("x")))

	p.Close()
	require.ErrorIs(t, p.AddEntry(1, 1, []byte("y")), errs.ErrPageClosed)
	require.Equal(t, p.OpenCount(), p.CloseCount())

	p.Reuse()
	require.NoError(t, p.AddEntry(1, 1, []byte("y")))
	checkInvariants(t, p)
}

// Reuse leaves the page semantically empty: zero count, empty bbox, and any
// subsequent search yields nothing.
func TestReuse(t *testing.T) {
	p := newTestPage(t, 4096)
	for i := int64(0); i < 10; i++ {
		require.NoError(t, p.AddEntry(1, i, []byte("x")))
	}
	p.Sort()
	p.Close()

	open := p.OpenCount()
	p.Reuse()

	require.Equal(t, uint32(0), p.Count())
	require.Equal(t, uint32(0), p.SyncIndex())
	require.True(t, p.BBox().IsEmpty())
	require.Equal(t, open+1, p.OpenCount())

	for range p.Search(Query{Param: 1, Lo: 0, Hi: 100}) {
		t.Fatal("search on a reused page must yield nothing")
	}
	checkInvariants(t, p)
}

func TestSort(t *testing.T) {
	p := newTestPage(t, 4096)

	// Interleave series and times out of order.
	require.NoError(t, p.AddEntry(2, 5, []byte("a")))
	require.NoError(t, p.AddEntry(1, 9, []byte("b")))
	require.NoError(t, p.AddEntry(2, 1, []byte("c")))
	require.NoError(t, p.AddEntry(1, 3, []byte("d")))

	p.Sort()
	require.Equal(t, uint32(4), p.SyncIndex())
	checkInvariants(t, p)

	want := []struct {
		param uint64
		ts    int64
	}{{1, 3}, {1, 9}, {2, 1}, {2, 5}}
	for i, w := range want {
		e, ok := p.ReadEntryAt(i)
		require.True(t, ok)
		require.Equal(t, w.param, e.Param)
		require.Equal(t, w.ts, e.Time)
	}
}

// Sort is idempotent: a second sort leaves the index bit-identical, and
// duplicate keys retain insertion order both times.
func TestSort_Idempotent(t *testing.T) {
	p := newTestPage(t, 4096)
	require.NoError(t, p.AddEntry(1, 7, []byte("first")))
	require.NoError(t, p.AddEntry(1, 7, []byte("second")))
	require.NoError(t, p.AddEntry(1, 2, []byte("third")))

	p.Sort()
	first := make([]uint32, p.Count())
	for i := range first {
		first[i] = p.indexSlot(i)
	}

	p.Sort()
	for i := range first {
		require.Equal(t, first[i], p.indexSlot(i), "slot %d moved on second sort", i)
	}

	e0, _ := p.ReadEntryAt(1)
	e1, _ := p.ReadEntryAt(2)
	require.Equal(t, []byte("first"), e0.Payload)
	require.Equal(t, []byte("second"), e1.Payload)
}

func TestSyncIndexes(t *testing.T) {
	p := newTestPage(t, 4096)
	require.NoError(t, p.AddEntry(1, 30, []byte("a")))
	require.NoError(t, p.AddEntry(1, 10, []byte("b")))
	require.NoError(t, p.AddEntry(1, 20, []byte("c")))

	// Sort off-page, then install the permutation.
	offs := []uint32{p.indexSlot(1), p.indexSlot(2), p.indexSlot(0)}
	require.NoError(t, p.SyncIndexes(offs))
	require.Equal(t, uint32(3), p.SyncIndex())
	checkInvariants(t, p)

	t.Run("too many offsets", func(t *testing.T) {
		err := p.SyncIndexes(make([]uint32, 4))
		require.ErrorIs(t, err, errs.ErrBadArg)
	})

	t.Run("bogus offset", func(t *testing.T) {
		err := p.SyncIndexes([]uint32{12})
		require.ErrorIs(t, err, errs.ErrBadArg)
	})
}

func TestCopyEntryAt(t *testing.T) {
	p := newTestPage(t, 4096)
	require.NoError(t, p.AddEntry(1, 0, []byte("payload")))

	t.Run("success", func(t *testing.T) {
		buf := make([]byte, 16)
		n := p.CopyEntryAt(0, buf)
		require.Equal(t, 7, n)
		require.Equal(t, []byte("payload"), buf[:n])
	})

	t.Run("buffer too small reports needed size", func(t *testing.T) {
		n := p.CopyEntryAt(0, make([]byte, 3))
		require.Equal(t, -7, n)
	})

	t.Run("out of range", func(t *testing.T) {
		require.Equal(t, 0, p.CopyEntryAt(1, make([]byte, 16)))
		require.Equal(t, 0, p.CopyEntryAt(-1, make([]byte, 16)))
	})
}

func TestOpen_RoundTrip(t *testing.T) {
	buf := make([]byte, 4096)
	p, err := New(buf, format.PageIndex, 3)
	require.NoError(t, err)
	require.NoError(t, p.AddEntry(1, 42, []byte("x")))
	p.Sort()

	reopened, err := Open(buf)
	require.NoError(t, err)
	require.Equal(t, uint32(3), reopened.PageID())
	require.Equal(t, uint32(1), reopened.Count())

	e, ok := reopened.ReadEntryAt(0)
	require.True(t, ok)
	require.Equal(t, int64(42), e.Time)
}

// A corrupt header surfaces as ErrCorruption and the page comes back
// read-only but still usable for bounded reads.
func TestOpen_Corrupt(t *testing.T) {
	buf := make([]byte, 4096)
	p, err := New(buf, format.PageIndex, 0)
	require.NoError(t, err)
	require.NoError(t, p.AddEntry(1, 1, []byte("x")))

	// Pull lastOffset below the index region.
	hostOrder.PutUint32(buf[offLastOffset:], HeaderSize-8)

	corrupt, err := Open(buf)
	require.ErrorIs(t, err, errs.ErrCorruption)
	require.NotNil(t, corrupt)
	require.ErrorIs(t, corrupt.AddEntry(2, 2, []byte("y")), errs.ErrPageReadOnly)
}

func TestEntryLengthAt(t *testing.T) {
	p := newTestPage(t, 4096)
	require.NoError(t, p.AddEntry(1, 0, []byte("abc")))

	require.Equal(t, 3, p.EntryLengthAt(0))
	require.Equal(t, 0, p.EntryLengthAt(1))
}
