package group

import "github.com/rtgc-go/rtgc/internal/page"

// InteriorToGCPtr maps any in-partition address to the base address of
// the object covering it. For groups at or below one page, the mapping
// is a constant-time mask against the group's fixed size (objects are
// regularly spaced from the start of their page); for multi-page groups
// and big objects it follows page_info.Base, which every covered page
// was set to point at when the object was carved.
func (a *Allocator) InteriorToGCPtr(addr uintptr) (uintptr, bool) {
	if !a.part.InPartition(addr) {
		return 0, false
	}
	idx := a.part.PageIndex(addr)
	info := a.part.Page(idx)
	switch {
	case info.Owner.IsSentinel():
		return 0, false
	case int(info.Owner) == BigOwnerIndex:
		return info.Base, true
	default:
		g := a.Group(int(info.Owner))
		if g.Size <= page.BytesPerPage {
			pageStart := a.part.PageIndexToAddr(idx)
			offset := (addr - pageStart) / uintptr(g.Size) * uintptr(g.Size)
			return pageStart + offset, true
		}
		return info.Base, true
	}
}
