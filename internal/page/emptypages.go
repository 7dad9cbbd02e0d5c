package page

import (
	"unsafe"

	"github.com/devlights/gomy/guard"
	"github.com/pkg/errors"
)

// ErrOutOfMemory is returned by TakePages when no hole large enough
// exists in the empty-pages list.
var ErrOutOfMemory = errors.New("page: out of memory")

// TakePages removes a hole of at least n contiguous pages from the
// empty-pages list, splitting it if it is larger so the remainder stays
// on the list, and returns the index of the first page of the taken
// run. Held under the empty-pages lock for its whole duration, matching
// the original design's "holds the empty-pages lock for the duration".
func (p *Partition) TakePages(n int) (int, error) {
	if n <= 0 {
		return 0, errors.New("page: TakePages requires n > 0")
	}
	p.emptyMu.Lock()
	defer p.emptyMu.Unlock()

	var prev *hole
	cur := p.empty
	for cur != nil {
		if cur.pageCount >= n {
			firstIdx := p.PageIndex(uintptr(unsafe.Pointer(cur)))
			if cur.pageCount > n {
				remainder := (*hole)(unsafe.Pointer(p.PageIndexToAddr(firstIdx + n)))
				*remainder = hole{pageCount: cur.pageCount - n, next: cur.next}
				if prev == nil {
					p.empty = remainder
				} else {
					prev.next = remainder
				}
			} else {
				if prev == nil {
					p.empty = cur.next
				} else {
					prev.next = cur.next
				}
			}
			for i := 0; i < n; i++ {
				p.pages[firstIdx+i] = Info{Owner: OwnerEmpty}
			}
			return firstIdx, nil
		}
		prev = cur
		cur = cur.next
	}
	return 0, ErrOutOfMemory
}

// ReleasePages marks pages [first, first+n) as empty, writes a hole
// header into the first page, and splices the new hole onto the
// empty-pages list.
func (p *Partition) ReleasePages(first, n int) {
	if n <= 0 {
		return
	}
	p.emptyMu.Lock()
	defer p.emptyMu.Unlock()

	for i := 0; i < n; i++ {
		p.pages[first+i] = Info{Owner: OwnerEmpty}
	}
	h := (*hole)(unsafe.Pointer(p.PageIndexToAddr(first)))
	*h = hole{pageCount: n, next: p.empty}
	p.empty = h
}

// MergeAdjacentHoles makes one pass over the empty-pages list, merging
// any hole whose end abuts another EMPTY page into its neighbor.
// Merged holes are logically zeroed (page_count = 0) and then removed in
// a second walk, exactly as the original rtcoalesce.c two-step does it.
// Calling it twice in a row is a no-op (idempotent), since after the
// first pass no two holes are adjacent any more. The whole pass runs
// under the single empty-pages lock the coalesce step takes, via
// guard.L rather than a bare Lock/defer Unlock pair, matching how this
// repo's other cold, multi-step critical sections are written (see
// internal/group's coalesce helpers and Heap.RegisterGlobalRoot).
func (p *Partition) MergeAdjacentHoles() {
	guard.L(&p.emptyMu, func() {
		for cur := p.empty; cur != nil; cur = cur.next {
			if cur.pageCount == 0 {
				continue
			}
			for {
				startIdx := p.PageIndex(uintptr(unsafe.Pointer(cur)))
				endIdx := startIdx + cur.pageCount
				if endIdx >= p.pageCount || p.pages[endIdx].Owner != OwnerEmpty {
					break
				}
				adjacent := (*hole)(unsafe.Pointer(p.PageIndexToAddr(endIdx)))
				cur.pageCount += adjacent.pageCount
				adjacent.pageCount = 0
			}
		}

		var prev *hole
		cur := p.empty
		for cur != nil {
			if cur.pageCount == 0 {
				if prev == nil {
					p.empty = cur.next
				} else {
					prev.next = cur.next
				}
			} else {
				prev = cur
			}
			cur = cur.next
		}
	})
}

// EmptyPageTotal sums page_count across the empty-pages list, used by
// the invariant in spec.md §8 ("the union of page_counts on the
// empty-pages list equals the number of pages whose page_info.group ==
// EMPTY").
func (p *Partition) EmptyPageTotal() int {
	p.emptyMu.Lock()
	defer p.emptyMu.Unlock()
	total := 0
	for cur := p.empty; cur != nil; cur = cur.next {
		total += cur.pageCount
	}
	return total
}
