package group

import "github.com/rtgc-go/rtgc/internal/header"

// ObjectPayloadSize returns the number of scannable payload bytes
// following obj's header — the group's fixed size for a fixed-group
// object, or the exact requested total recorded on a big object's
// first page (BigAllocate is the only path that charges bytes_used
// with an object's precise size rather than a page-wide running
// total).
func (a *Allocator) ObjectPayloadSize(obj uintptr) int {
	idx := a.part.PageIndex(obj)
	info := a.part.Page(idx)
	if int(info.Owner) == BigOwnerIndex {
		return info.BytesUsed - int(header.SizeOf)
	}
	g := a.Group(int(info.Owner))
	return g.Size - int(header.SizeOf)
}
