// Package safepoint is the default interfaces.MutatorController: a
// cooperative, polling-based stand-in for the signal-based
// stop-the-world mechanism spec.md §5 describes as the source's chosen
// approach. Spec.md §9 explicitly allows substituting polled safepoints
// "where supported, as long as the contract in §5 ... is met" — Go
// offers no portable way to reach into another goroutine's live
// register file the way a Unix signal handler can, so every registered
// mutator must call Handle.Poll from its own goroutine at a point where
// its stack is quiescent (a loop header, a request boundary) instead of
// being interrupted externally.
package safepoint

import (
	"io"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/dsnet/golib/memfile"

	"github.com/rtgc-go/rtgc/interfaces"
)

// Handle is one registered mutator's safepoint state and its saved
// stack snapshot. The snapshot is kept twice: buf, a plain []byte
// reused across cycles, whose raw address range SavedStack hands to
// the conservative scan; and stack, a *memfile.File mirror of the same
// bytes for a host that wants to read the snapshot with io.ReaderAt
// semantics.
type Handle struct {
	requested int32 // atomic; Poll only does work when this is set

	mu      sync.Mutex
	stack   *memfile.File // growable mirror, for a host reading the snapshot via io.ReaderAt
	buf     []byte        // plain backing array the conservative scan reads raw addresses from
	acked   chan struct{}
	resumed chan struct{}
}

func newHandle() *Handle {
	return &Handle{stack: &memfile.File{}}
}

// Registers always reports an empty range: Go gives no portable way to
// snapshot a goroutine's hardware registers from outside it, and by
// the time Poll runs, every live value the compiler would otherwise
// keep in a register has already been spilled to the stack at the call
// boundary — so the stack snapshot alone satisfies the conservative
// root-scanning contract spec.md §4.3 describes.
func (h *Handle) Registers() (lo, hi uintptr) { return 0, 0 }

// SavedStack returns the address range of buf, the plain backing array
// most recently filled by Poll. The range stays valid until the next
// Poll rewrites buf (a suspended mutator's own stack can't be trusted
// to stay put once it resumes, so the scan must work off this copy,
// not the mutator's live stack).
func (h *Handle) SavedStack() (lo, hi uintptr) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.buf) == 0 {
		return 0, 0
	}
	lo = uintptr(unsafe.Pointer(&h.buf[0]))
	return lo, lo + uintptr(len(h.buf))
}

// Snapshot exposes the memfile mirror of the saved stack bytes. The
// marker does not use it; it scans the SavedStack range instead.
func (h *Handle) Snapshot() *memfile.File {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stack
}

// Poll is called by mutator code at a cooperative safepoint, passing
// the address range of its currently live stack (e.g. a frame-pointer
// to stack-base span). If the collector has requested a suspend, Poll
// copies that range into the handle's snapshot buffer, acknowledges,
// and blocks until ResumeAll releases it — exactly the "copies the
// register file and live stack range... increments a completion
// counter" contract of spec.md §5, expressed as a rendezvous instead
// of a signal handler.
func (h *Handle) Poll(stackLo, stackHi uintptr) {
	if atomic.LoadInt32(&h.requested) == 0 {
		return
	}

	h.mu.Lock()
	acked, resumed := h.acked, h.resumed
	if stackHi > stackLo {
		n := int(stackHi - stackLo)
		raw := unsafe.Slice((*byte)(unsafe.Pointer(stackLo)), n)
		if cap(h.buf) < n {
			h.buf = make([]byte, n)
		} else {
			h.buf = h.buf[:n]
		}
		copy(h.buf, raw)

		h.stack.Truncate(0)
		h.stack.Seek(0, io.SeekStart)
		h.stack.Write(h.buf)
	} else {
		h.buf = h.buf[:0]
	}
	h.mu.Unlock()

	close(acked)
	<-resumed
}

func (h *Handle) arm() {
	h.mu.Lock()
	h.acked = make(chan struct{})
	h.resumed = make(chan struct{})
	h.mu.Unlock()
	atomic.StoreInt32(&h.requested, 1)
}

func (h *Handle) waitAcked() {
	h.mu.Lock()
	acked := h.acked
	h.mu.Unlock()
	<-acked
}

func (h *Handle) release() {
	atomic.StoreInt32(&h.requested, 0)
	h.mu.Lock()
	resumed := h.resumed
	h.mu.Unlock()
	close(resumed)
}

// Controller is the default MutatorController: a registry of polling
// Handles. A host registers each mutator goroutine once (typically at
// goroutine start) and unregisters it at exit; the goroutine itself
// calls Handle.Poll periodically.
type Controller struct {
	mu      sync.Mutex
	handles map[uint64]*Handle
	nextID  uint64
	active  []*Handle
}

// NewController creates an empty mutator registry.
func NewController() *Controller {
	return &Controller{handles: make(map[uint64]*Handle)}
}

// Register adds a new mutator thread and returns its id (for
// Unregister) and its Handle (for that thread to call Poll on).
func (c *Controller) Register() (id uint64, h *Handle) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	id = c.nextID
	h = newHandle()
	c.handles[id] = h
	return id, h
}

// Unregister removes a mutator thread that has exited.
func (c *Controller) Unregister(id uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.handles, id)
}

// Threads implements interfaces.MutatorController.
func (c *Controller) Threads() []interfaces.MutatorHandle {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]interfaces.MutatorHandle, 0, len(c.handles))
	for _, h := range c.handles {
		out = append(out, h)
	}
	return out
}

// SuspendAll implements interfaces.MutatorController: arms every
// registered handle, then blocks until each has polled and
// acknowledged. A mutator that never reaches a safepoint stalls the
// collector indefinitely — the cooperative-safepoint tradeoff spec.md
// §9 accepts in exchange for portability.
func (c *Controller) SuspendAll() {
	c.mu.Lock()
	hs := make([]*Handle, 0, len(c.handles))
	for _, h := range c.handles {
		hs = append(hs, h)
	}
	c.mu.Unlock()

	for _, h := range hs {
		h.arm()
	}
	for _, h := range hs {
		h.waitAcked()
	}

	c.mu.Lock()
	c.active = hs
	c.mu.Unlock()
}

// ResumeAll implements interfaces.MutatorController.
func (c *Controller) ResumeAll() {
	c.mu.Lock()
	hs := c.active
	c.active = nil
	c.mu.Unlock()

	for _, h := range hs {
		h.release()
	}
}
