package page

import (
	"iter"
	"sort"

	"github.com/arloliu/axon/format"
)

// Query is a single-series time-range search over one page. Lo and Hi are
// inclusive; format.MinTimestamp and format.MaxTimestamp act as unbounded
// ends. A zero Dir scans forward.
type Query struct {
	Param uint64
	Lo    int64
	Hi    int64
	Dir   format.Direction
}

// Search returns a lazy iterator over the entries matching q.
//
// The search snapshots Count and SyncIndex once, so it is safe to run while
// the single writer keeps appending; entries published after the snapshot are
// not visited. The sorted index prefix is narrowed with an interpolation
// search (binary fallback), the unsorted tail is scanned linearly, and the
// two streams are merged in direction-correct order. Back-pressure comes from
// the consumer: entries are decoded only as the iterator is advanced.
func (p *Page) Search(q Query) iter.Seq[Entry] {
	return func(yield func(Entry) bool) {
		if q.Lo > q.Hi {
			return
		}

		count := int(p.Count())
		// A corrupt header may claim more slots than the buffer holds; clamp
		// so reads stay inside the mapping (entry decoding validates the rest).
		if maxSlots := (len(p.data) - HeaderSize) / indexSlotSize; count > maxSlots {
			count = maxSlots
		}
		syncIdx := int(p.SyncIndex())
		if syncIdx > count {
			syncIdx = count
		}

		// The bbox covers every indexed entry (sorted or not), so a miss
		// rejects the whole page without touching the index.
		bbox := p.BBox()
		if bbox.IsEmpty() || q.Param < bbox.MinID || q.Param > bbox.MaxID {
			return
		}
		if q.Hi < bbox.MinTime || q.Lo > bbox.MaxTime {
			return
		}

		tail := p.collectTail(q, syncIdx, count)

		// Narrow the sorted region to the queried series; within that window
		// entries are sorted by time alone.
		plo := sort.Search(syncIdx, func(i int) bool {
			e, _ := p.entryAt(p.indexSlot(i))
			return e.Param >= q.Param
		})
		phi := plo + sort.Search(syncIdx-plo, func(i int) bool {
			e, _ := p.entryAt(p.indexSlot(plo+i))
			return e.Param > q.Param
		})

		if q.Dir == format.Backward {
			p.mergeBackward(q, plo, phi, tail, yield)
		} else {
			p.mergeForward(q, plo, phi, tail, yield)
		}
	}
}

// collectTail scans the unsorted index tail [syncIdx, count) for matches and
// returns them sorted by time ascending, insertion order preserved on ties.
// The tail is expected to be small (the entries appended since the last
// Sort), so buffering it is the bounded part of the merge.
func (p *Page) collectTail(q Query, syncIdx, count int) []Entry {
	var tail []Entry
	for i := syncIdx; i < count; i++ {
		e, ok := p.entryAt(p.indexSlot(i))
		if !ok {
			continue
		}
		if e.Param == q.Param && e.Time >= q.Lo && e.Time <= q.Hi {
			tail = append(tail, e)
		}
	}
	sort.SliceStable(tail, func(i, j int) bool { return tail[i].Time < tail[j].Time })

	return tail
}

// mergeForward emits matches in ascending time order: the sorted region
// stream and the buffered tail are merged two-way, region entries first on
// equal timestamps.
func (p *Page) mergeForward(q Query, plo, phi int, tail []Entry, yield func(Entry) bool) {
	si := p.timeLowerBound(plo, phi, q.Lo)
	ti := 0

	for {
		var se Entry
		haveS := si < phi
		if haveS {
			se, _ = p.entryAt(p.indexSlot(si))
			if se.Time > q.Hi {
				haveS = false
			}
		}
		haveT := ti < len(tail)

		switch {
		case !haveS && !haveT:
			return
		case haveS && (!haveT || se.Time <= tail[ti].Time):
			if !yield(se) {
				return
			}
			si++
		default:
			if !yield(tail[ti]) {
				return
			}
			ti++
		}
	}
}

// mergeBackward emits matches in descending time order, scanning the sorted
// region downward from the last entry at or below q.Hi.
func (p *Page) mergeBackward(q Query, plo, phi int, tail []Entry, yield func(Entry) bool) {
	si := p.timeUpperBound(plo, phi, q.Hi) - 1
	ti := len(tail) - 1

	for {
		var se Entry
		haveS := si >= plo
		if haveS {
			se, _ = p.entryAt(p.indexSlot(si))
			if se.Time < q.Lo {
				haveS = false
			}
		}
		haveT := ti >= 0

		switch {
		case !haveS && !haveT:
			return
		case haveS && (!haveT || se.Time >= tail[ti].Time):
			if !yield(se) {
				return
			}
			si--
		default:
			if !yield(tail[ti]) {
				return
			}
			ti--
		}
	}
}

// Interpolation search tuning: probe only while the window is worth it and
// give up to binary search once the distribution proves non-linear.
const (
	interpMinWindow = 16
	interpMaxProbes = 8
)

func (p *Page) timeAt(i int) int64 {
	e, _ := p.entryAt(p.indexSlot(i))
	return e.Time
}

// timeLowerBound returns the first slot in [lo, hi) whose timestamp is at
// least target. The slots must be time-sorted.
//
// The interpolation model is computed in float64 so a span near the full
// int64 range cannot overflow; probe positions are clamped back into the
// window, which saturates the estimate instead of wrapping.
func (p *Page) timeLowerBound(lo, hi int, target int64) int {
	left, right := lo, hi
	for probes := 0; right-left > interpMinWindow && probes < interpMaxProbes; probes++ {
		tl := p.timeAt(left)
		tr := p.timeAt(right - 1)
		if target <= tl {
			return left
		}
		if target > tr {
			return right
		}
		if tl == tr {
			break
		}

		frac := (float64(target) - float64(tl)) / (float64(tr) - float64(tl))
		pos := left + int(frac*float64(right-1-left))
		if pos < left {
			pos = left
		}
		if pos >= right {
			pos = right - 1
		}

		if p.timeAt(pos) < target {
			left = pos + 1
		} else {
			right = pos + 1
		}
	}

	// Bounded binary search over whatever window remains.
	return left + sort.Search(right-left, func(i int) bool {
		return p.timeAt(left+i) >= target
	})
}

// timeUpperBound returns the first slot in [lo, hi) whose timestamp is
// strictly greater than target. The slots must be time-sorted.
func (p *Page) timeUpperBound(lo, hi int, target int64) int {
	left, right := lo, hi
	for probes := 0; right-left > interpMinWindow && probes < interpMaxProbes; probes++ {
		tl := p.timeAt(left)
		tr := p.timeAt(right - 1)
		if target < tl {
			return left
		}
		if target >= tr {
			return right
		}
		if tl == tr {
			break
		}

		frac := (float64(target) - float64(tl)) / (float64(tr) - float64(tl))
		pos := left + int(frac*float64(right-1-left))
		if pos < left {
			pos = left
		}
		if pos >= right {
			pos = right - 1
		}

		if p.timeAt(pos) <= target {
			left = pos + 1
		} else {
			right = pos + 1
		}
	}

	return left + sort.Search(right-left, func(i int) bool {
		return p.timeAt(left+i) > target
	})
}
