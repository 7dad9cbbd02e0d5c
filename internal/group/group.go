// Package group implements the Size-Group Allocator: one set of
// intrusive doubly-linked lists (free/black/gray/white) per power-of-two
// size class, serving allocation by popping the free list and grabbing
// whole pages from the Page/Segment Layer when a class runs dry.
package group

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/rtgc-go/rtgc/internal/header"
	"github.com/rtgc-go/rtgc/internal/page"
)

// Group-size bounds: group i manages objects of exactly 2^i bytes,
// from 16B (MinGroupIndex) to 4MiB (MaxGroupIndex).
const (
	MinGroupIndex = 4
	MaxGroupIndex = 22
	NumGroups     = MaxGroupIndex - MinGroupIndex + 1
	MinGroupSize  = 1 << MinGroupIndex
	MaxGroupSize  = 1 << MaxGroupIndex

	// BigOwnerIndex is the page.Owner value recorded for pages backing
	// an object too large for any fixed group (see bigobjects.go).
	BigOwnerIndex = MaxGroupIndex + 1
)

// ErrOutOfMemory mirrors spec.md §7: the allocator could not satisfy a
// request from either the free list or the empty-pages list.
var ErrOutOfMemory = errors.New("group: out of memory")

// Info is one size group's state: its four list heads, counters, and
// the locks protecting them. Held in an array inside Allocator rather
// than individually heap-allocated, matching the teacher's preference
// for flat pooled arrays (BufMgr.latchs, BufMgr.pagePool) over
// individually owned objects.
type Info struct {
	Index int // MinGroupIndex..MaxGroupIndex
	Size  int // 1 << Index

	free     uintptr // head of free/green chain
	freeLast uintptr // tail of free/green chain
	black    uintptr
	gray     uintptr
	white    uintptr

	TotalObjectCount int
	WhiteCount       int
	BlackCount       int
	GrayCount        int
	GreenCount       int

	freeLock     sync.Mutex
	freeLastLock sync.Mutex
	// colorLock protects black's and gray's head pointers: make_object_gray
	// unlinks from white and pushes onto the front of gray, and
	// DrainGroupOnce pops gray's head and pushes it onto the front of
	// black as each object finishes scanning.
	colorLock sync.Mutex
}

func (g *Info) hdr(addr uintptr) *header.Header { return header.At(addr) }

// Allocator owns every size group plus the big-object list and the
// marked/unmarked color assignment that the collector swaps at flip.
type Allocator struct {
	part   *page.Partition
	groups [NumGroups]Info
	big    BigObjects

	colorMu       sync.Mutex
	markedColor   header.Color
	unmarkedColor header.Color
}

// NewAllocator creates an allocator with all groups initially empty
// over the given partition.
func NewAllocator(part *page.Partition) *Allocator {
	a := &Allocator{part: part, markedColor: header.Black, unmarkedColor: header.White}
	for i := range a.groups {
		a.groups[i] = Info{Index: MinGroupIndex + i, Size: 1 << (MinGroupIndex + i)}
	}
	a.big.init(part)
	return a
}

// Partition returns the backing partition.
func (a *Allocator) Partition() *page.Partition { return a.part }

// Group returns the group managing objects of exactly 1<<index bytes.
func (a *Allocator) Group(index int) *Info { return &a.groups[index-MinGroupIndex] }

// Groups iterates every fixed-size group in index order, the order
// spec.md §4.3's gray-drain loop requires ("For each size-group in
// index order").
func (a *Allocator) Groups() []Info { return a.groups[:] }

// Big returns the big-object tracking structure.
func (a *Allocator) Big() *BigObjects { return &a.big }

// MarkedColor and UnmarkedColor are the colors that currently mean
// "scanned and reachable" and "not yet visited this cycle" respectively;
// SwapColors exchanges them at flip without touching a single object.
func (a *Allocator) MarkedColor() header.Color {
	a.colorMu.Lock()
	defer a.colorMu.Unlock()
	return a.markedColor
}

func (a *Allocator) UnmarkedColor() header.Color {
	a.colorMu.Lock()
	defer a.colorMu.Unlock()
	return a.unmarkedColor
}

func (a *Allocator) SwapColors() {
	a.colorMu.Lock()
	defer a.colorMu.Unlock()
	a.markedColor, a.unmarkedColor = a.unmarkedColor, a.markedColor
}

// groupIndexForSize returns the smallest group index whose fixed object
// size is >= totalSize, or -1 if totalSize exceeds MaxGroupSize (the
// caller must then fall back to the big-object path).
func groupIndexForSize(totalSize int) int {
	for i := MinGroupIndex; i <= MaxGroupIndex; i++ {
		if (1 << i) >= totalSize {
			return i
		}
	}
	return -1
}

// Allocate returns a zero-initialized payload pointer from the smallest
// group whose object size is >= size+header size, pre-colored BLACK
// (allocate-black, spec.md §4.2) and tagged with storageClass. size
// must not exceed MaxGroupSize - header.SizeOf; larger requests go
// through BigAllocate instead.
func (a *Allocator) Allocate(size int, sc header.StorageClass) (uintptr, error) {
	total := size + int(header.SizeOf)
	idx := groupIndexForSize(total)
	if idx < 0 {
		return 0, errors.Wrapf(ErrOutOfMemory, "size %d exceeds MaxGroupSize", size)
	}
	g := a.Group(idx)
	return a.allocateFromGroup(g, sc)
}

func (a *Allocator) allocateFromGroup(g *Info, sc header.StorageClass) (uintptr, error) {
	g.freeLock.Lock()
	if g.free == 0 {
		g.freeLock.Unlock()
		if err := a.initPagesForGroup(g); err != nil {
			return 0, err
		}
		g.freeLock.Lock()
	}
	if g.free == 0 {
		g.freeLock.Unlock()
		return 0, errors.Wrapf(ErrOutOfMemory, "group %d exhausted", g.Index)
	}

	obj := g.free
	h := g.hdr(obj)
	next := h.NextPtr()
	g.free = next
	if next != 0 {
		header.At(next).SetPrevPtr(0)
	}
	if obj == g.freeLast {
		g.freeLastLock.Lock()
		g.freeLast = 0
		g.freeLastLock.Unlock()
	}
	g.GreenCount--
	g.freeLock.Unlock()

	a.part.Zero(header.PayloadAddr(obj), g.Size-int(header.SizeOf))

	pageIdx := a.part.PageIndex(obj)
	a.part.Page(pageIdx).BytesUsed += g.Size

	h.SetStorageClass(sc)
	h.SetColor(a.MarkedColor())
	h.SetPrevPtr(0)

	g.colorLock.Lock()
	h.SetNextPtr(g.black)
	if g.black != 0 {
		g.hdr(g.black).SetPrevPtr(obj)
	}
	g.black = obj
	g.BlackCount++
	g.colorLock.Unlock()

	g.freeLock.Lock()
	g.TotalObjectCount++
	g.freeLock.Unlock()

	return header.PayloadAddr(obj), nil
}

// removeFromFreeList unlinks object from group g's free chain. Caller
// must hold g.freeLock. Mirrors the original's remove_object_from_free_list,
// used by coalesce when reclaiming a page of all-green objects.
func removeFromFreeList(g *Info, obj uintptr) {
	h := header.At(obj)
	prev := h.PrevPtr()
	next := h.NextPtr()

	if obj == g.free {
		g.free = next
	}
	if obj == g.freeLast {
		if next == 0 {
			g.freeLast = prev
		} else {
			g.freeLast = next
		}
	}
	if prev != 0 {
		header.At(prev).SetNextPtr(next)
	}
	if next != 0 {
		header.At(next).SetPrevPtr(prev)
	}
	g.GreenCount--
	g.TotalObjectCount--
}

// RemoveFromFreeList is the exported, self-locking form of
// removeFromFreeList: it takes g.freeLock itself. This package's own
// coalesce pass calls removeFromFreeList directly under the lock.
func (a *Allocator) RemoveFromFreeList(g *Info, obj uintptr) {
	g.freeLock.Lock()
	defer g.freeLock.Unlock()
	removeFromFreeList(g, obj)
}

// appendGreenRun links a freshly-carved or freshly-swept run of GREEN
// objects (already chained prev/next among themselves, first..last)
// onto the tail of g's free list. Caller must hold g.freeLock. GREEN
// objects are never part of the black chain — allocate-black only
// colors an object black at the moment it's actually popped off the
// free list (see allocateFromGroup) — so this never touches g.black.
func appendGreenRun(g *Info, first, last uintptr, count int) {
	if g.freeLast != 0 {
		header.At(g.freeLast).SetNextPtr(first)
		header.At(first).SetPrevPtr(g.freeLast)
	} else {
		g.free = first
	}
	g.freeLast = last
	g.GreenCount += count
}
