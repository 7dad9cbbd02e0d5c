package rtgc

import (
	"sync"

	"github.com/rtgc-go/rtgc/interfaces"
)

// HandleDummy is a sample interfaces.MutatorHandle implementation for
// tests that don't need a real goroutine stopped mid-flight: the test
// itself plays the part the safepoint collaborator would, pointing
// SetStack at whatever byte range it wants treated as "this mutator's
// live stack" before triggering a cycle.
type HandleDummy struct {
	mu               sync.Mutex
	regLo, regHi     uintptr
	stackLo, stackHi uintptr
}

// SetRegisters sets the fake register-file range returned by Registers.
func (d *HandleDummy) SetRegisters(lo, hi uintptr) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.regLo, d.regHi = lo, hi
}

// SetStack sets the fake saved-stack range returned by SavedStack.
func (d *HandleDummy) SetStack(lo, hi uintptr) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stackLo, d.stackHi = lo, hi
}

func (d *HandleDummy) Registers() (lo, hi uintptr) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.regLo, d.regHi
}

func (d *HandleDummy) SavedStack() (lo, hi uintptr) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stackLo, d.stackHi
}

// MutatorControllerDummy is a sample interfaces.MutatorController
// implementation: "store data in memory only and don't manage
// [suspension] usage" the same way parent_buf_mgr_dummy.go's
// ParentBufMgrDummy played a sample ParentBufMgr for the teacher's
// BufMgr. SuspendAll/ResumeAll are no-ops because a test using this
// controls every HandleDummy's contents directly rather than relying
// on a real suspend rendezvous.
type MutatorControllerDummy struct {
	mu      sync.Mutex
	handles []*HandleDummy
}

// NewMutatorControllerDummy creates an empty dummy registry.
func NewMutatorControllerDummy() *MutatorControllerDummy {
	return &MutatorControllerDummy{}
}

// AddHandle registers and returns a new HandleDummy a test can point
// at fake root ranges.
func (c *MutatorControllerDummy) AddHandle() *HandleDummy {
	c.mu.Lock()
	defer c.mu.Unlock()
	h := &HandleDummy{}
	c.handles = append(c.handles, h)
	return h
}

func (c *MutatorControllerDummy) Threads() []interfaces.MutatorHandle {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]interfaces.MutatorHandle, len(c.handles))
	for i, h := range c.handles {
		out[i] = h
	}
	return out
}

func (c *MutatorControllerDummy) SuspendAll() {}
func (c *MutatorControllerDummy) ResumeAll()  {}
