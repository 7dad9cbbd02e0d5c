package collector

import "github.com/rtgc-go/rtgc/internal/mark"

// rootScan is scan_root_set (spec.md §4.3): every tracked thread's
// saved registers and stack, every registered global, then static
// space, in that order (order only matters for phase bookkeeping, not
// correctness).
func (l *Loop) rootScan() {
	mark.ScanThreads(l.alloc, l.mutators.Threads())
	mark.ScanGlobalRoots(l.alloc, l.roots.GlobalRoots())

	if lo, hi := l.roots.StaticSpace(); hi > lo {
		mark.ScanStaticSpace(l.alloc, l.scanner, lo, hi)
	}
}
