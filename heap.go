// Package rtgc is the embedding API surface of a soft real-time,
// concurrent, conservative, incremental tri-color mark-sweep collector
// over a segregated-size heap (spec.md §1-2). A host constructs one
// Heap, registers its mutator threads and global roots, and routes
// every pointer store through WriteBarrier; the Heap runs a collector
// loop concurrently, suspending mutators only for the brief flip.
package rtgc

import (
	"sync"
	"unsafe"

	"github.com/ncw/directio"
	"github.com/pkg/errors"
	"github.com/prometheus/common/log"

	"github.com/rtgc-go/rtgc/internal/barrier"
	"github.com/rtgc-go/rtgc/internal/collector"
	"github.com/rtgc-go/rtgc/internal/group"
	"github.com/rtgc-go/rtgc/internal/header"
	"github.com/rtgc-go/rtgc/internal/page"
	"github.com/rtgc-go/rtgc/internal/safepoint"
	"github.com/rtgc-go/rtgc/interfaces"
)

// Heap wires the Page/Segment Layer, Size-Group Allocator, Marker,
// Write Barrier, and Collector Loop into the single instance spec.md
// §9 calls for ("package as a single heap-manager instance so the
// library can be instantiated multiple times for tests"). Build one
// with InitHeap, bring up its collector with InitRealtimeGC, then
// drive it through Allocate/BigAllocate/WriteBarrier/RegisterGlobalRoot.
type Heap struct {
	part   *page.Partition
	alloc  *group.Allocator
	vector *barrier.Vector

	static       []byte
	staticMu     sync.Mutex
	staticLo     uintptr
	staticHi     uintptr
	staticCursor uintptr

	rootsMu sync.Mutex
	roots   []uintptr

	mutators        interfaces.MutatorController
	defaultMutators *safepoint.Controller
	loop            *collector.Loop

	// DebugMode enables the WHITE_ESCAPE assertion (spec.md §7): a
	// mutator store that publishes a pointer to a WHITE object while
	// the barrier is enabled is a programmer/collaborator bug, not a
	// recoverable condition, so DebugMode makes it fatal instead of
	// silently letting the barrier protect it on the next cycle.
	DebugMode bool

	// inCollector guards the reentrancy rule of spec.md §5: "The write
	// barrier must not be reentered from within the collector." Set
	// around Cycle, checked by WriteBarrier.
	inCollector sync.Mutex
	collecting  bool
}

// InitHeap constructs the partition and static region (spec.md §6):
// a page-aligned, contiguous virtual address region of at least
// defaultHeapBytes, plus a separate page-aligned static region of
// staticSize bytes for permanent records. Mirrors the original
// `init_heap(default_heap_bytes, static_size)` entry point.
func InitHeap(defaultHeapBytes, staticSize int) (*Heap, error) {
	part, err := page.NewPartition(defaultHeapBytes)
	if err != nil {
		return nil, errors.Wrap(err, "rtgc: init heap partition")
	}
	if staticSize <= 0 {
		return nil, errors.New("rtgc: static_size must be positive")
	}

	staticPages := (staticSize + page.BytesPerPage - 1) / page.BytesPerPage
	static := directio.AlignedBlock(staticPages * page.BytesPerPage)
	staticLo := uintptr(unsafe.Pointer(&static[0]))

	h := &Heap{
		part:         part,
		alloc:        group.NewAllocator(part),
		vector:       barrier.New(part),
		static:       static,
		staticLo:     staticLo,
		staticHi:     staticLo + uintptr(len(static)),
		staticCursor: staticLo,
	}
	return h, nil
}

// InitRealtimeGC installs the collector thread (spec.md §6's
// `init_realtime_gc`): wires a mutator collaborator, a collector loop,
// and (if scanner is non-nil) the METADATA/INSTANCE precise-scan
// extension point. If mutators is nil, a default cooperative polling
// safepoint.Controller is installed (spec.md §9: signal-based stop is
// the source's choice, but "an implementation may substitute polled
// safepoints where supported"); RegisterMutatorThread is then
// available. Returns the Loop so the caller can choose RunOnce
// ("atomic GC", one cycle per call) or Run (continuous) — spec.md
// §4.5's two scheduling modes are both first-class here, neither is
// default.
func (h *Heap) InitRealtimeGC(mutators interfaces.MutatorController, scanner InstanceScanner) *collector.Loop {
	if mutators == nil {
		ctrl := safepoint.NewController()
		h.defaultMutators = ctrl
		mutators = ctrl
	}
	h.mutators = mutators
	h.loop = collector.NewLoop(h.alloc, h.vector, mutators, h, scanner)
	h.loop.Log = log.NewNopLogger()
	return h.loop
}

// RegisterMutatorThread registers a new mutator with the default
// safepoint controller (spec.md §6's `register_mutator_thread`
// contract) and returns its id (for Unregister) and its Handle, on
// which the mutator goroutine must call Poll at its own cooperative
// safepoints. Only valid when InitRealtimeGC was called with a nil
// MutatorController; returns an error if a custom controller is in use.
func (h *Heap) RegisterMutatorThread() (id uint64, handle *safepoint.Handle, err error) {
	if h.defaultMutators == nil {
		return 0, nil, errors.New("rtgc: no default mutator controller installed (custom MutatorController in use)")
	}
	id, handle = h.defaultMutators.Register()
	return id, handle, nil
}

// UnregisterMutatorThread removes a mutator thread registered via
// RegisterMutatorThread.
func (h *Heap) UnregisterMutatorThread(id uint64) {
	if h.defaultMutators != nil {
		h.defaultMutators.Unregister(id)
	}
}

// TriggerGC runs exactly one collector cycle and blocks until it
// completes: the "atomic GC" semaphore-gated mode of spec.md §4.5.
func (h *Heap) TriggerGC() {
	h.withCollectorFlag(h.loop.RunOnce)
}

// RunGC starts the continuous collector loop on its own goroutine —
// the non-semaphore-gated alternative spec.md §4.5 describes. Call
// StopGC to end it.
func (h *Heap) RunGC() {
	go h.withCollectorFlag(h.loop.Run)
}

// StopGC signals a RunGC loop to exit after its current cycle and
// blocks until it has.
func (h *Heap) StopGC() { h.loop.Stop() }

// GCCount returns the number of completed collector cycles.
func (h *Heap) GCCount() uint64 { return h.loop.GCCount() }

func (h *Heap) withCollectorFlag(f func()) {
	h.inCollector.Lock()
	h.collecting = true
	h.inCollector.Unlock()

	f()

	h.inCollector.Lock()
	h.collecting = false
	h.inCollector.Unlock()
}

// Allocate returns a pointer to a zero-initialized payload of at least
// size bytes, colored BLACK and tagged sc (spec.md §6 `allocate`). For
// size exceeding MaxObjectSize, use BigAllocate instead.
func (h *Heap) Allocate(size int, sc StorageClass) (uintptr, error) {
	p, err := h.alloc.Allocate(size, sc)
	if err != nil {
		return 0, translateAllocErr(err)
	}
	return p, nil
}

// MaxObjectSize is the largest request Allocate can satisfy from a
// fixed size group; larger requests must go through BigAllocate.
const MaxObjectSize = group.MaxGroupSize - int(header.SizeOf)

// BigAllocate satisfies requests larger than MaxObjectSize by taking a
// dedicated multi-page run from the Page/Segment Layer (spec.md §6
// `big_allocate`). The original's `big_allocate(size)` takes no
// storage-class parameter; this repo treats every big object as
// POINTERS, the conservative
// choice, since big allocations are rare enough that scanning a few
// extra words is not a cost the system needs to avoid the way it does
// for small, frequent objects.
func (h *Heap) BigAllocate(size int) (uintptr, error) {
	p, err := h.alloc.BigAllocate(size, header.Pointers)
	if err != nil {
		return 0, translateAllocErr(err)
	}
	return p, nil
}

func translateAllocErr(err error) error {
	return errors.Wrap(ErrOutOfMemory, err.Error())
}

// CheckInvariants runs the partition's empty-pages count check and the
// allocator's list-membership counter check (see page.Verify and
// group.Allocator.Verify): an opt-in
// assertion, not a diagnostic-dump feature. Intended for tests and
// host-side sanity checks at quiescent points between cycles.
func (h *Heap) CheckInvariants() error {
	if err := h.part.Verify(); err != nil {
		return errors.Wrap(ErrInvariantViolation, err.Error())
	}
	if err := h.alloc.Verify(); err != nil {
		return errors.Wrap(ErrInvariantViolation, err.Error())
	}
	return nil
}

// Partition exposes the backing partition's address range, useful for
// a host deciding whether a given address is heap-managed before
// calling WriteBarrier.
func (h *Heap) Partition() (lo, hi uintptr) { return h.part.Lo(), h.part.Hi() }
