package collector

import "github.com/rtgc-go/rtgc/internal/mark"

// drainToFixpoint is the combined gray-drain/write-vector-drain loop
// spec.md §4.3 describes: drain the gray set to a fixpoint, then drain
// the write-vector once; if the write-vector drain grayed anything,
// the gray set is no longer settled, so repeat both until a full round
// leaves nothing newly grayed.
func (l *Loop) drainToFixpoint() {
	for {
		mark.DrainGraySet(l.alloc, l.scanner)

		n := l.vector.DrainOnce(l.alloc.InteriorToGCPtr, func(obj uintptr) {
			l.alloc.MakeObjectGrayKnownBase(obj)
		})
		if n == 0 {
			return
		}
	}
}
