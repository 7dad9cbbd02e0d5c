package group

import (
	"github.com/rtgc-go/rtgc/internal/header"
	"github.com/rtgc-go/rtgc/internal/page"
)

// initPagesForGroup replenishes g's free list ("init_pages_for_group" in
// the original design) by taking whole pages from the Page/Segment
// Layer: single-page groups get BYTES_PER_PAGE/size equally-sized
// objects carved and threaded onto the free list; multi-page groups get
// one object spanning every page taken, with every interior page's Base
// pointing back to the object's start so interior-pointer lookup can
// recover it.
func (a *Allocator) initPagesForGroup(g *Info) error {
	pagesNeeded := 1
	if g.Size > page.BytesPerPage {
		pagesNeeded = g.Size / page.BytesPerPage
	}

	firstPage, err := a.part.TakePages(pagesNeeded)
	if err != nil {
		return err
	}
	firstAddr := a.part.PageIndexToAddr(firstPage)

	if g.Size <= page.BytesPerPage {
		objectCount := page.BytesPerPage / g.Size
		a.carveSinglePageRun(g, firstPage, pagesNeeded, firstAddr, objectCount)
		return nil
	}

	a.carveMultiPageObject(g, firstPage, pagesNeeded, firstAddr)
	return nil
}

// carveSinglePageRun partitions pagesNeeded (almost always 1) freshly
// taken pages into objectCount-per-page equally sized GREEN objects,
// threads them prev/next, and splices the whole run onto the free list.
func (a *Allocator) carveSinglePageRun(g *Info, firstPage, pagesNeeded int, firstAddr uintptr, objectCount int) {
	var first, last uintptr
	count := 0

	for pg := 0; pg < pagesNeeded; pg++ {
		pageAddr := firstAddr + uintptr(pg)*page.BytesPerPage
		info := a.part.Page(firstPage + pg)
		info.Owner = page.Owner(g.Index)
		info.Base = pageAddr
		info.BytesUsed = 0

		next := pageAddr
		for i := 0; i < objectCount; i++ {
			h := header.At(next)
			h.Init(header.NoPointers)
			if last != 0 {
				header.At(last).SetNextPtr(next)
				h.SetPrevPtr(last)
			} else {
				first = next
			}
			last = next
			count++
			next += uintptr(g.Size)
		}
	}

	g.freeLock.Lock()
	appendGreenRun(g, first, last, count)
	g.freeLock.Unlock()
}

// carveMultiPageObject creates a single GREEN object spanning every page
// in [firstPage, firstPage+pagesNeeded), marking every covered page's
// Base so a conservative interior pointer anywhere in the run resolves
// back to the object's start.
func (a *Allocator) carveMultiPageObject(g *Info, firstPage, pagesNeeded int, firstAddr uintptr) {
	h := header.At(firstAddr)
	h.Init(header.NoPointers)

	for pg := 0; pg < pagesNeeded; pg++ {
		info := a.part.Page(firstPage + pg)
		info.Owner = page.Owner(g.Index)
		info.Base = firstAddr
		info.BytesUsed = 0
	}

	g.freeLock.Lock()
	appendGreenRun(g, firstAddr, firstAddr, 1)
	g.freeLock.Unlock()
}
