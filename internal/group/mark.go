package group

import (
	"github.com/rtgc-go/rtgc/internal/header"
	"github.com/rtgc-go/rtgc/internal/page"
)

// InteriorPtrRetentionLimit is the largest object size for which ANY
// interior pointer (not just one matching the header's base address)
// is enough to retain the object. Above this limit a candidate pointer
// must match the object's base exactly, since the chance of a stray
// integer accidentally landing inside a multi-page object's body grows
// with its size; spec.md §5 calls this out as the reason conservative
// scanning needs the distinction at all.
const InteriorPtrRetentionLimit = page.BytesPerPage

// KnownBaseSentinel is the "-1" raw_ptr value spec.md §4.3 describes:
// a caller passes this instead of a real candidate address when it has
// already normalized the pointer to an object base itself (the
// write-vector drain, which only ever resolves slots to object bases
// via InteriorToGCPtr), exempting the call from the interior-pointer
// retention limit.
const KnownBaseSentinel = knownBaseSentinel

// MakeObjectGrayKnownBase promotes obj unconditionally (subject only
// to its current color), for callers that have already resolved obj
// from a trusted base address rather than an arbitrary candidate word.
func (a *Allocator) MakeObjectGrayKnownBase(obj uintptr) bool {
	return a.MakeObjectGray(obj, KnownBaseSentinel)
}

// MakeObjectGray is make_object_gray (spec.md §5): given a resolved
// object base and the raw candidate pointer that led to it, promote the
// object from WHITE to GRAY if it still qualifies for retention and is
// still WHITE. raw may equal obj's payload address (an exact pointer),
// an address strictly inside the object (an interior pointer, only
// honored up to InteriorPtrRetentionLimit), or knownBaseSentinel when
// the caller has already normalized the pointer itself (e.g. the
// write-vector drain, which only ever records object bases).
func (a *Allocator) MakeObjectGray(obj, raw uintptr) bool {
	idx := a.part.PageIndex(obj)
	owner := a.part.Page(idx).Owner
	if owner.IsSentinel() {
		return false
	}
	unmarked := a.UnmarkedColor()
	if int(owner) == BigOwnerIndex {
		return a.big.makeGray(obj, raw, unmarked)
	}
	g := a.Group(int(owner))
	return g.makeGray(obj, raw, unmarked)
}

// makeGray promotes obj from the color meaning "unmarked this cycle"
// to GRAY. unmarked is whichever physical color (White or Black)
// currently means "not yet visited" — the color-swap-by-constant flip
// trick (see flip.go) means that meaning alternates every cycle without
// ever rewriting an untouched object's header, so callers must always
// pass the allocator's current UnmarkedColor rather than comparing
// against a literal.
//
// obj is unlinked from the white list and pushed onto the front of its
// own gray worklist (g.gray), kept separate from g.black. Mixing the
// two into one chain (as an earlier version of this file did) loses
// every gray object except the one most recently pushed whenever more
// than one gets grayed in the same drain round without one being
// discovered while scanning another — DrainGroupOnce drains g.gray to
// empty precisely because it is the only reliable record of everything
// still waiting to be scanned.
func (g *Info) makeGray(obj, raw uintptr, unmarked header.Color) bool {
	payloadAddr := header.PayloadAddr(obj)
	retains := g.Size <= InteriorPtrRetentionLimit || raw == payloadAddr || raw == knownBaseSentinel
	if !retains {
		return false
	}

	g.colorLock.Lock()
	defer g.colorLock.Unlock()

	h := header.At(obj)
	if h.Color() != unmarked {
		return false
	}

	prev := h.PrevPtr()
	next := h.NextPtr()
	if obj == g.white {
		g.white = next
	}
	if prev != 0 {
		header.At(prev).SetNextPtr(next)
	}
	if next != 0 {
		header.At(next).SetPrevPtr(prev)
	}

	h.SetPrevPtr(0)
	h.SetNextPtr(g.gray)
	if g.gray != 0 {
		header.At(g.gray).SetPrevPtr(obj)
	}
	g.gray = obj
	h.SetColor(header.Gray)
	g.WhiteCount--
	g.GrayCount++
	return true
}
