package mark

import (
	"github.com/rtgc-go/rtgc/internal/group"
	"github.com/rtgc-go/rtgc/internal/header"
)

// DrainGraySet is the gray-drain loop of spec.md §4.3: repeatedly sweep
// every fixed group, in index order, plus the big-object list, until a
// complete pass scans zero objects. Scanning an object can gray
// objects in any group — including ones already passed this round —
// so a single pass is not enough; DrainGraySet loops to the fixpoint
// itself rather than leaving that to the caller.
func DrainGraySet(a *group.Allocator, scanner InstanceScanner) int {
	scan := func(obj uintptr, sc header.StorageClass) {
		ScanObject(a, scanner, obj, sc)
	}

	total := 0
	for {
		pass := 0
		for i := group.MinGroupIndex; i <= group.MaxGroupIndex; i++ {
			pass += a.DrainGroupOnce(i, scan)
		}
		pass += a.DrainBigOnce(scan)
		total += pass
		if pass == 0 {
			return total
		}
	}
}
