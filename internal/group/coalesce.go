package group

import (
	"github.com/devlights/gomy/guard"

	"github.com/rtgc-go/rtgc/internal/header"
	"github.com/rtgc-go/rtgc/internal/page"
)

// CoalesceAllFreePages is coalesce_all_free_pages (spec.md §4.7, following
// rtcoalesce.c's three-pass shape rather than rtgc.c's simpler one): after
// a sweep, walk every page looking for ones whose BytesUsed has dropped to
// zero — every object on that page is GREEN — strip those objects off
// their group's free list, hand the page(s) back to the Page/Segment
// Layer's empty-pages list, then merge newly-adjacent holes.
func (a *Allocator) CoalesceAllFreePages() {
	part := a.part
	n := part.PageCount()

	for i := 0; i < n; i++ {
		info := part.Page(i)
		if info.Owner.IsSentinel() {
			continue
		}
		if info.BytesUsed != 0 {
			continue
		}
		if int(info.Owner) == BigOwnerIndex {
			// A big object's pages are released directly by RecycleBig;
			// a lingering zero-usage big page here means it was already
			// reclaimed and is simply awaiting a later scan, so skip it.
			continue
		}

		g := a.Group(int(info.Owner))
		if g.Size <= page.BytesPerPage {
			a.identifySingleFreePage(g, i)
		} else {
			a.identifyMultiPageObject(g, i)
		}
	}

	part.MergeAdjacentHoles()
}

// identifySingleFreePage handles a fully-free single-page group page:
// every object carved from it sits on the free list (BytesUsed==0 means
// none were ever re-allocated since the last sweep retagged them GREEN),
// so each is unlinked and the page itself is released whole.
func (a *Allocator) identifySingleFreePage(g *Info, pageIdx int) {
	part := a.part
	pageAddr := part.PageIndexToAddr(pageIdx)
	objectCount := page.BytesPerPage / g.Size

	guard.L(&g.freeLock, func() {
		addr := pageAddr
		for i := 0; i < objectCount; i++ {
			if header.At(addr).Color() == header.Green {
				removeFromFreeList(g, addr)
			}
			addr += uintptr(g.Size)
		}
	})

	part.ReleasePages(pageIdx, 1)
}

// identifyMultiPageObject releases every page backing a multi-page
// object whose usage has dropped to zero, i.e. the object itself is
// GREEN.
func (a *Allocator) identifyMultiPageObject(g *Info, firstPageIdx int) {
	part := a.part
	objAddr := part.PageIndexToAddr(firstPageIdx)
	if header.At(objAddr).Color() != header.Green {
		return
	}

	pagesUsed := g.Size / page.BytesPerPage

	guard.L(&g.freeLock, func() { removeFromFreeList(g, objAddr) })

	part.ReleasePages(firstPageIdx, pagesUsed)
}
