package group

import "github.com/rtgc-go/rtgc/internal/header"

// DrainGroupOnce drains group index's gray worklist to empty: pop the
// head of g.gray, scan it, then move it onto the front of g.black and
// recolor it to the allocator's current marked color. Scanning an
// object can gray more objects in the same group — they get pushed
// onto the same g.gray list makeGray always pushes to, so the pop loop
// below picks them up without needing a second pass. One call drains
// everything gray in this group at the moment it's called; the caller
// (internal/mark) still loops calls across every group, in index
// order, until a full sweep of all groups drains nothing, which is the
// gray-drain fixpoint spec.md §4.3 describes — a scan can always gray
// an object in a group already passed this round.
func (a *Allocator) DrainGroupOnce(index int, scan func(obj uintptr, sc header.StorageClass)) int {
	g := a.Group(index)
	markedColor := a.MarkedColor()
	count := 0

	for {
		g.colorLock.Lock()
		obj := g.gray
		if obj == 0 {
			g.colorLock.Unlock()
			break
		}
		h := header.At(obj)
		next := h.NextPtr()
		g.gray = next
		if next != 0 {
			header.At(next).SetPrevPtr(0)
		}
		sc := h.StorageClass()
		g.colorLock.Unlock()

		scan(obj, sc)

		g.colorLock.Lock()
		h.SetPrevPtr(0)
		h.SetNextPtr(g.black)
		if g.black != 0 {
			header.At(g.black).SetPrevPtr(obj)
		}
		g.black = obj
		h.SetColor(markedColor)
		g.GrayCount--
		g.BlackCount++
		g.colorLock.Unlock()

		count++
	}

	return count
}
