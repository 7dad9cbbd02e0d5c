package group

import "github.com/rtgc-go/rtgc/internal/header"

// RecycleGroup is recycle_group_garbage (spec.md §4.6): every object
// still on group index's white list survived the whole mark phase
// without being visited, so it's garbage. Each is retagged GREEN and
// spliced onto the tail of the free list; its page's BytesUsed is
// decremented so the coalesce pass can later notice a page has gone
// completely empty.
func (a *Allocator) RecycleGroup(index int) {
	g := a.Group(index)

	g.colorLock.Lock()
	next := g.white
	g.white = 0
	g.WhiteCount = 0
	g.colorLock.Unlock()

	if next == 0 {
		return
	}

	var first, last uintptr
	count := 0
	for next != 0 {
		h := header.At(next)
		following := h.NextPtr()

		idx := a.part.PageIndex(next)
		a.part.Page(idx).BytesUsed -= g.Size

		h.SetColor(header.Green)
		h.SetPrevPtr(last)
		h.SetNextPtr(0)
		if last != 0 {
			header.At(last).SetNextPtr(next)
		} else {
			first = next
		}
		last = next
		count++
		next = following
	}

	g.freeLock.Lock()
	appendGreenRun(g, first, last, count)
	g.freeLock.Unlock()
}

// RecycleAll sweeps every fixed group and the big-object list, the
// "sweep" phase of the collector loop (spec.md §4.1).
func (a *Allocator) RecycleAll() {
	for i := MinGroupIndex; i <= MaxGroupIndex; i++ {
		a.RecycleGroup(i)
	}
	a.RecycleBig()
}
