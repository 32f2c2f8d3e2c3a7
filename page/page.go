// Package page implements the fixed-size data page of the axon volume: a
// typed view over a raw byte buffer holding a header, a growing index of
// entry offsets, and entries packed upward from the page tail.
//
// A page supports exactly one writer at a time. Concurrent readers are
// permitted while the writer appends: they snapshot Count and SyncIndex at
// the start of a search and read only within that prefix.
//
// The backing buffer is owned by the volume manager; Page is a non-owning
// view whose lifetime is bound to the mapping.
package page

import (
	"fmt"
	"sort"
	"unsafe"

	"github.com/arloliu/axon/errs"
	"github.com/arloliu/axon/format"
)

// Page is a typed view over a fixed-length byte region.
type Page struct {
	data []byte

	// readOnly is set when the header failed validation on open. The page
	// can still be read within its claimed bounds; writes are rejected.
	readOnly bool
}

// New formats buf as an empty page of the given kind and returns a view over
// it. The buffer must be 8-byte aligned (mmap regions and Go heap slices
// always are) and between HeaderSize and 2^32 bytes long.
func New(buf []byte, kind format.PageKind, pageID uint32) (*Page, error) {
	if err := checkBuffer(buf); err != nil {
		return nil, err
	}

	p := &Page{data: buf}
	p.setU32(offKind, uint32(kind))
	p.setU32(offPageID, pageID)
	p.setU64(offLength, uint64(len(buf)))
	p.setU32(offOpenCount, 0)
	p.setU32(offCloseCount, 0)
	p.reset()
	p.setU32(offOpenCount, 1)

	return p, nil
}

// Open returns a view over buf, which must contain a previously formatted
// page. If the header fails validation the returned page is marked read-only
// and the error wraps errs.ErrCorruption; the page is still usable for
// bounded reads.
func Open(buf []byte) (*Page, error) {
	if err := checkBuffer(buf); err != nil {
		return nil, err
	}

	p := &Page{data: buf}
	if err := p.validateHeader(); err != nil {
		p.readOnly = true
		return p, err
	}

	return p, nil
}

func checkBuffer(buf []byte) error {
	if len(buf) < HeaderSize || int64(len(buf)) > MaxPageSize {
		return fmt.Errorf("page buffer of %d bytes: %w", len(buf), errs.ErrInvalidPageSize)
	}
	if uintptr(unsafe.Pointer(&buf[0]))%8 != 0 {
		return fmt.Errorf("page buffer is not 8-byte aligned: %w", errs.ErrBadArg)
	}

	return nil
}

// reset clears the logical content without touching entry bytes.
func (p *Page) reset() {
	p.storeCount(0)
	p.storeSyncIndex(0)
	p.setU32(offLastOffset, uint32(len(p.data)&0xFFFFFFFF))
	if uint64(len(p.data)) == uint64(MaxPageSize) {
		// A full 4 GiB page wraps lastOffset to 0; store the max offset and
		// lose the final stub bytes instead.
		p.setU32(offLastOffset, MaxPageOffset&^3)
	}
	p.setBBox(emptyBBox())
}

// writable reports whether a write session is open.
func (p *Page) writable() bool {
	return !p.readOnly && p.OpenCount() == p.CloseCount()+1
}

// FreeSpace returns the number of bytes between the end of the index and the
// start of the entry area.
func (p *Page) FreeSpace() int {
	return int(uint64(p.LastOffset()) - (HeaderSize + uint64(p.Count())*indexSlotSize))
}

// AddEntry appends an entry, updating the index, the count and the bounding
// box. It fails with errs.ErrOverflow when the entry plus its index slot do
// not fit in the remaining free space, with errs.ErrPageClosed when no write
// session is open, and with errs.ErrPageReadOnly on a corrupt page.
//
// The entry is published with an atomic count store, so a concurrent reader
// that observes the new count observes the complete entry.
func (p *Page) AddEntry(param uint64, ts int64, payload []byte) error {
	if p.readOnly {
		return errs.ErrPageReadOnly
	}
	if !p.writable() {
		return errs.ErrPageClosed
	}

	if len(payload) > len(p.data) {
		return errs.ErrOverflow
	}
	size := EntrySize(len(payload))
	if p.FreeSpace() < int(size)+indexSlotSize {
		return errs.ErrOverflow
	}

	count := p.Count()
	off := p.LastOffset() - size

	p.writeEntry(off, param, ts, payload)
	p.setIndexSlot(int(count), off)

	bbox := p.BBox()
	bbox.Extend(param, ts)
	p.setBBox(bbox)

	p.setU32(offLastOffset, off)
	p.storeCount(count + 1)

	return nil
}

// Reuse clears the page for a new write session: count, sync index and
// bounding box are reset and openCount is incremented. Stale entry bytes are
// not zeroed; they become unreachable once overwritten.
func (p *Page) Reuse() {
	if p.readOnly {
		return
	}
	p.reset()
	p.setU32(offOpenCount, p.OpenCount()+1)
}

// Close ends the current write session. No further writes are permitted
// until Reuse. Closing a quiescent page is a no-op.
func (p *Page) Close() {
	if p.OpenCount() > p.CloseCount() {
		p.setU32(offCloseCount, p.CloseCount()+1)
	}
}

// Sort stable-sorts the whole index by (series, time) and marks the entire
// index as synchronized. Entries with identical keys retain insertion order.
// Sorting an already sorted page is a no-op, so Sort is idempotent.
func (p *Page) Sort() {
	count := int(p.Count())
	offs := make([]uint32, count)
	for i := range offs {
		offs[i] = p.indexSlot(i)
	}

	sort.SliceStable(offs, func(i, j int) bool {
		a, _ := p.entryAt(offs[i])
		b, _ := p.entryAt(offs[j])
		if a.Param != b.Param {
			return a.Param < b.Param
		}

		return a.Time < b.Time
	})

	for i, off := range offs {
		p.setIndexSlot(i, off)
	}
	p.storeSyncIndex(uint32(count))
}

// SyncIndexes replaces the index prefix with a caller-supplied pre-sorted
// permutation and marks that prefix as synchronized. Used when sorting is
// performed off-page, e.g. during compaction.
//
// Every offset must resolve to a valid entry and the permutation cannot be
// longer than the current index; otherwise errs.ErrBadArg is returned and
// the page is unchanged.
func (p *Page) SyncIndexes(offsets []uint32) error {
	if len(offsets) > int(p.Count()) {
		return fmt.Errorf("%d offsets for %d entries: %w", len(offsets), p.Count(), errs.ErrBadArg)
	}
	for _, off := range offsets {
		if _, ok := p.entryAt(off); !ok {
			return fmt.Errorf("offset %d is not a valid entry: %w", off, errs.ErrBadArg)
		}
	}

	for i, off := range offsets {
		p.setIndexSlot(i, off)
	}
	p.storeSyncIndex(uint32(len(offsets)))

	return nil
}

// Data returns the raw backing bytes of the page. Intended for snapshotting;
// the caller must not write through the returned slice.
func (p *Page) Data() []byte {
	return p.data
}
