package group

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/rtgc-go/rtgc/internal/header"
	"github.com/rtgc-go/rtgc/internal/page"
)

// BigObjects tracks allocations beyond MaxGroupSize: requests that don't
// fit any fixed 2^i group at all. Spec.md §6 names this path
// (big_allocate) without giving it a home in the group model, since
// every fixed group's objects must all share one size. Unlike a
// regular group there is no green/free list to recycle into — sizes
// vary per object, so a dead big object's pages go straight back to
// the empty-pages list instead of a same-size free list (see
// DESIGN.md's internal/group entry).
type BigObjects struct {
	part *page.Partition

	mu    sync.Mutex
	black uintptr
	gray  uintptr
	white uintptr

	blackCount int
	grayCount  int
	whiteCount int
}

func (b *BigObjects) init(part *page.Partition) { b.part = part }

// BigAllocate takes enough whole pages to hold size+header bytes, colors
// the resulting object BLACK (allocate-black), and links it onto the
// big-object black list.
func (a *Allocator) BigAllocate(size int, sc header.StorageClass) (uintptr, error) {
	b := &a.big
	total := size + int(header.SizeOf)
	pagesNeeded := (total + page.BytesPerPage - 1) / page.BytesPerPage

	firstPage, err := a.part.TakePages(pagesNeeded)
	if err != nil {
		return 0, errors.Wrapf(ErrOutOfMemory, "big allocation of %d bytes", size)
	}
	addr := a.part.PageIndexToAddr(firstPage)
	for pg := 0; pg < pagesNeeded; pg++ {
		info := a.part.Page(firstPage + pg)
		info.Owner = page.Owner(BigOwnerIndex)
		info.Base = addr
		info.BytesUsed = page.BytesPerPage
	}
	a.part.Page(firstPage).BytesUsed = total

	a.part.Zero(header.PayloadAddr(addr), total-int(header.SizeOf))

	h := header.At(addr)
	h.Init(sc)
	h.SetColor(a.MarkedColor())

	b.mu.Lock()
	h.SetPrevPtr(0)
	h.SetNextPtr(b.black)
	if b.black != 0 {
		header.At(b.black).SetPrevPtr(addr)
	}
	b.black = addr
	b.blackCount++
	b.mu.Unlock()

	return header.PayloadAddr(addr), nil
}

// makeGray is BigObjects' half of make_object_gray: big objects only
// ever retain via the header base address or the "already normalized"
// sentinel, never via an arbitrary interior pointer, since every big
// object is by definition larger than INTERIOR_PTR_RETENTION_LIMIT.
//
// obj is pushed onto the front of its own gray worklist (b.gray), kept
// separate from b.black for the same reason group.Info.makeGray keeps
// its gray list separate (see that function's comment): more than one
// big object grayed in the same drain round without nested discovery
// must not overwrite one another's place in line.
func (b *BigObjects) makeGray(obj, raw uintptr, unmarked header.Color) bool {
	payloadAddr := header.PayloadAddr(obj)
	if raw != payloadAddr && raw != knownBaseSentinel {
		return false
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	h := header.At(obj)
	if h.Color() != unmarked {
		return false
	}
	prev := h.PrevPtr()
	next := h.NextPtr()
	if obj == b.white {
		b.white = next
	}
	if prev != 0 {
		header.At(prev).SetNextPtr(next)
	}
	if next != 0 {
		header.At(next).SetPrevPtr(prev)
	}

	h.SetPrevPtr(0)
	h.SetNextPtr(b.gray)
	if b.gray != 0 {
		header.At(b.gray).SetPrevPtr(obj)
	}
	b.gray = obj
	h.SetColor(header.Gray)
	b.whiteCount--
	b.grayCount++
	return true
}

// DrainBigOnce drains the big-object gray worklist to empty, the same
// pop/scan/move-to-black pattern group.DrainGroupOnce uses. Returns the
// number of objects scanned this pass.
func (a *Allocator) DrainBigOnce(scan func(obj uintptr, sc header.StorageClass)) int {
	b := &a.big
	markedColor := a.MarkedColor()
	count := 0

	for {
		b.mu.Lock()
		obj := b.gray
		if obj == 0 {
			b.mu.Unlock()
			break
		}
		h := header.At(obj)
		next := h.NextPtr()
		b.gray = next
		if next != 0 {
			header.At(next).SetPrevPtr(0)
		}
		sc := h.StorageClass()
		b.mu.Unlock()

		scan(obj, sc)

		b.mu.Lock()
		h.SetPrevPtr(0)
		h.SetNextPtr(b.black)
		if b.black != 0 {
			header.At(b.black).SetPrevPtr(obj)
		}
		b.black = obj
		h.SetColor(markedColor)
		b.grayCount--
		b.blackCount++
		b.mu.Unlock()

		count++
	}

	return count
}

// Flip applies the flip transition (spec.md §4.5) to the big-object
// list: white becomes the old black chain unconditionally (big objects
// have no green state, so there is no "black is green" case to test
// for; an empty black list simply yields an empty white list), gray is
// cleared, black becomes empty (there is no free list to seed it from,
// unlike fixed groups).
func (b *BigObjects) Flip() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.gray = 0
	b.grayCount = 0
	b.white = b.black
	b.black = 0
	b.whiteCount = b.blackCount
	b.blackCount = 0
}

// RecycleBig sweeps the big-object white list: every surviving-as-garbage
// object's pages are released straight back to the partition (no
// per-size free list to rejoin), since big objects are never reused
// for a different size the way a fixed group's GREEN objects are.
func (a *Allocator) RecycleBig() {
	b := &a.big
	b.mu.Lock()
	next := b.white
	b.white = 0
	b.whiteCount = 0
	b.mu.Unlock()

	for next != 0 {
		h := header.At(next)
		following := h.NextPtr()

		idx := a.part.PageIndex(next)
		pagesUsed := 1
		// Walk forward while subsequent pages still claim this object
		// as their Base, to recover the exact page span.
		for idx+pagesUsed < a.part.PageCount() {
			ni := a.part.Page(idx + pagesUsed)
			if ni.Owner != page.Owner(BigOwnerIndex) || ni.Base != next {
				break
			}
			pagesUsed++
		}
		a.part.ReleasePages(idx, pagesUsed)

		next = following
	}
}

const knownBaseSentinel = ^uintptr(0)
