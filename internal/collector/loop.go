// Package collector implements the Collector Loop (spec.md §4.5): the
// orchestration that drives a Heap through flip, root scan, gray/
// write-vector drain to fixpoint, sweep, and coalesce, repeatedly or
// one cycle at a time.
package collector

import (
	"sync"
	"sync/atomic"

	"github.com/prometheus/common/log"

	"github.com/rtgc-go/rtgc/internal/barrier"
	"github.com/rtgc-go/rtgc/internal/group"
	"github.com/rtgc-go/rtgc/internal/mark"
	"github.com/rtgc-go/rtgc/interfaces"
)

// RootSet supplies the Collector Loop with everything scan_root_set
// needs beyond the mutator controller: registered global roots and the
// static space region. Heap implements this.
type RootSet interface {
	GlobalRoots() []uintptr
	StaticSpace() (lo, hi uintptr)
}

// Loop is rtgc_loop / full_gc: one collector bound to one allocator,
// one write-vector, one mutator controller, and one root set. Also
// tracks gc_count (spec.md §4.5's "increment gc_count").
type Loop struct {
	alloc    *group.Allocator
	vector   *barrier.Vector
	mutators interfaces.MutatorController
	roots    RootSet
	scanner  mark.InstanceScanner
	Log      log.Logger

	gcCount uint64

	// sem gates RunOnce's "atomic GC" one-cycle-on-demand mode
	// (spec.md §4.5: "Optionally the loop waits on a semaphore between
	// cycles"); a single-buffered channel is the idiomatic Go
	// substitute for a counting semaphore here.
	sem chan struct{}

	stop    chan struct{}
	stopped chan struct{}
	once    sync.Once
}

// NewLoop wires a collector to its allocator, write-vector, and
// mutator controller. scanner may be nil (conservative scanning of
// every payload word, spec.md §4.3's default).
func NewLoop(alloc *group.Allocator, vector *barrier.Vector, mutators interfaces.MutatorController, roots RootSet, scanner mark.InstanceScanner) *Loop {
	return &Loop{
		alloc:    alloc,
		vector:   vector,
		mutators: mutators,
		roots:    roots,
		scanner:  scanner,
		Log:      log.NewNopLogger(),
		sem:      make(chan struct{}, 1),
	}
}

// GCCount returns the number of completed cycles.
func (l *Loop) GCCount() uint64 { return atomic.LoadUint64(&l.gcCount) }

// Cycle runs exactly one full collector cycle: flip → root scan →
// gray/write-vector drain to fixpoint → sweep → coalesce, then
// increments gc_count. This is the one primitive RunOnce and Run both
// call.
func (l *Loop) Cycle() {
	l.flip()
	l.rootScan()
	l.drainToFixpoint()
	l.sweep()
	l.coalesce()

	n := atomic.AddUint64(&l.gcCount, 1)
	l.Log.With("gc_count", n).Infoln("gc cycle complete")
}

// RunOnce triggers exactly one cycle and blocks until it completes —
// the "atomic GC" semaphore-gated mode of spec.md §4.5. Safe to call
// from multiple goroutines; calls serialize on sem.
func (l *Loop) RunOnce() {
	l.sem <- struct{}{}
	defer func() { <-l.sem }()
	l.Cycle()
}

// Run loops Cycle continuously until Stop is called, the
// non-semaphore-gated mode spec.md §4.5 describes as the alternative
// to "atomic GC". Intended to run on its own goroutine.
func (l *Loop) Run() {
	l.once.Do(func() {
		l.stop = make(chan struct{})
		l.stopped = make(chan struct{})
	})
	defer close(l.stopped)
	for {
		select {
		case <-l.stop:
			return
		default:
			l.Cycle()
		}
	}
}

// Stop signals a running Run loop to exit after its current cycle and
// blocks until it has. No-op if Run was never started.
func (l *Loop) Stop() {
	if l.stop == nil {
		return
	}
	close(l.stop)
	<-l.stopped
}
