package page

import (
	"fmt"
	"sync/atomic"
	"unsafe"

	"github.com/arloliu/axon/endian"
	"github.com/arloliu/axon/errs"
	"github.com/arloliu/axon/format"
)

// Page format limits. All offsets fit in 32 bits, so a page can never exceed
// 2^32 bytes.
const (
	MaxPageSize   = int64(1) << 32
	MaxPageOffset = uint32(0xFFFFFFFF)
)

// On-page header layout, host byte order. The index of 4-byte entry offsets
// grows upward from HeaderSize; entries grow downward from the page end.
//
//	offset  0: kind        uint32
//	offset  4: count       uint32
//	offset  8: lastOffset  uint32
//	offset 12: syncIndex   uint32
//	offset 16: length      uint64
//	offset 24: openCount   uint32
//	offset 28: closeCount  uint32
//	offset 32: pageID      uint32
//	offset 36: (reserved)  uint32
//	offset 40: bbox.minID  uint64
//	offset 48: bbox.maxID  uint64
//	offset 56: bbox.minTS  int64
//	offset 64: bbox.maxTS  int64
const (
	HeaderSize = 72

	offKind       = 0
	offCount      = 4
	offLastOffset = 8
	offSyncIndex  = 12
	offLength     = 16
	offOpenCount  = 24
	offCloseCount = 28
	offPageID     = 32
	offBBoxMinID  = 40
	offBBoxMaxID  = 48
	offBBoxMinTS  = 56
	offBBoxMaxTS  = 64

	indexSlotSize = 4
)

var hostOrder = endian.Native()

// BoundingBox summarizes a page as the inclusive (series-id, timestamp)
// rectangle covering every indexed entry.
type BoundingBox struct {
	MinID   uint64
	MaxID   uint64
	MinTime int64
	MaxTime int64
}

// emptyBBox is the bbox of a page with no entries: inverted ranges that any
// first Extend collapses to a point.
func emptyBBox() BoundingBox {
	return BoundingBox{
		MinID:   ^uint64(0),
		MaxID:   0,
		MinTime: format.MaxTimestamp,
		MaxTime: format.MinTimestamp,
	}
}

// IsEmpty reports whether the box covers no entries.
func (b BoundingBox) IsEmpty() bool {
	return b.MinID > b.MaxID
}

// Extend widens the box to include (param, ts).
func (b *BoundingBox) Extend(param uint64, ts int64) {
	if param < b.MinID {
		b.MinID = param
	}
	if param > b.MaxID {
		b.MaxID = param
	}
	if ts < b.MinTime {
		b.MinTime = ts
	}
	if ts > b.MaxTime {
		b.MaxTime = ts
	}
}

// Contains reports whether (param, ts) lies inside the box. Ranges are
// inclusive on both ends, so a page may contain the queried range without
// containing the queried series; callers get an empty-but-scanned result in
// that case, not a rejection.
func (b BoundingBox) Contains(param uint64, ts int64) bool {
	return param >= b.MinID && param <= b.MaxID && ts >= b.MinTime && ts <= b.MaxTime
}

// Header field accessors. count and syncIndex are read and published with
// atomics so concurrent readers can snapshot a consistent prefix while the
// single writer appends; every other field is owned by the writer.

func (p *Page) u32(off int) uint32 {
	return hostOrder.Uint32(p.data[off : off+4])
}

func (p *Page) setU32(off int, v uint32) {
	hostOrder.PutUint32(p.data[off:off+4], v)
}

func (p *Page) u64(off int) uint64 {
	return hostOrder.Uint64(p.data[off : off+8])
}

func (p *Page) setU64(off int, v uint64) {
	hostOrder.PutUint64(p.data[off:off+8], v)
}

func (p *Page) i64(off int) int64 {
	v := p.u64(off)
	return *(*int64)(unsafe.Pointer(&v))
}

func (p *Page) setI64(off int, v int64) {
	p.setU64(off, *(*uint64)(unsafe.Pointer(&v)))
}

// Kind returns the page kind.
func (p *Page) Kind() format.PageKind {
	return format.PageKind(p.u32(offKind))
}

// Count returns the number of indexed entries. Safe for concurrent readers;
// the value only grows between Reuse calls.
func (p *Page) Count() uint32 {
	return atomic.LoadUint32((*uint32)(unsafe.Pointer(&p.data[offCount])))
}

func (p *Page) storeCount(v uint32) {
	atomic.StoreUint32((*uint32)(unsafe.Pointer(&p.data[offCount])), v)
}

// SyncIndex returns the length of the index prefix guaranteed to be sorted
// by (series, time). Safe for concurrent readers.
func (p *Page) SyncIndex() uint32 {
	return atomic.LoadUint32((*uint32)(unsafe.Pointer(&p.data[offSyncIndex])))
}

func (p *Page) storeSyncIndex(v uint32) {
	atomic.StoreUint32((*uint32)(unsafe.Pointer(&p.data[offSyncIndex])), v)
}

// LastOffset returns the byte offset of the most recently written entry.
func (p *Page) LastOffset() uint32 {
	return p.u32(offLastOffset)
}

// Length returns the total page size in bytes.
func (p *Page) Length() uint64 {
	return p.u64(offLength)
}

// OpenCount returns the number of write sessions ever opened on the page.
func (p *Page) OpenCount() uint32 {
	return p.u32(offOpenCount)
}

// CloseCount returns the number of write sessions closed on the page.
func (p *Page) CloseCount() uint32 {
	return p.u32(offCloseCount)
}

// PageID returns the page index within its volume.
func (p *Page) PageID() uint32 {
	return p.u32(offPageID)
}

// BBox returns the page bounding box. Concurrent readers may observe a box
// mid-widening; it is never narrower than the box covering their count
// snapshot.
func (p *Page) BBox() BoundingBox {
	return BoundingBox{
		MinID:   p.u64(offBBoxMinID),
		MaxID:   p.u64(offBBoxMaxID),
		MinTime: p.i64(offBBoxMinTS),
		MaxTime: p.i64(offBBoxMaxTS),
	}
}

func (p *Page) setBBox(b BoundingBox) {
	p.setU64(offBBoxMinID, b.MinID)
	p.setU64(offBBoxMaxID, b.MaxID)
	p.setI64(offBBoxMinTS, b.MinTime)
	p.setI64(offBBoxMaxTS, b.MaxTime)
}

// InsideBBox reports whether (param, ts) lies within the page bounding box.
func (p *Page) InsideBBox(param uint64, ts int64) bool {
	return p.BBox().Contains(param, ts)
}

// indexSlot returns the entry offset stored in index slot i. The caller must
// keep i below its count snapshot.
func (p *Page) indexSlot(i int) uint32 {
	return p.u32(HeaderSize + i*indexSlotSize)
}

func (p *Page) setIndexSlot(i int, off uint32) {
	p.setU32(HeaderSize+i*indexSlotSize, off)
}

// validateHeader checks the structural invariants of an existing header:
// the index and entry regions must not overlap, every region must lie within
// the buffer, and the session counters must be consistent.
func (p *Page) validateHeader() error {
	length := p.Length()
	if length != uint64(len(p.data)) {
		return fmt.Errorf("header length %d does not match buffer size %d: %w",
			length, len(p.data), errs.ErrCorruption)
	}
	if !p.Kind().Valid() {
		return fmt.Errorf("page kind %d: %w", p.u32(offKind), errs.ErrCorruption)
	}

	count := uint64(p.Count())
	last := uint64(p.LastOffset())
	if last > length || last < HeaderSize+count*indexSlotSize {
		return fmt.Errorf("entry region [%d, %d) overlaps index region: %w",
			last, length, errs.ErrCorruption)
	}
	if uint64(p.SyncIndex()) > count {
		return fmt.Errorf("sync index %d exceeds count %d: %w",
			p.SyncIndex(), count, errs.ErrCorruption)
	}
	if p.OpenCount() < p.CloseCount() {
		return fmt.Errorf("open count %d below close count %d: %w",
			p.OpenCount(), p.CloseCount(), errs.ErrCorruption)
	}

	return nil
}
