// Package mark implements the Marker (spec.md §4.3): conservative
// memory scanning, per-storage-class object scanning, root-set
// discovery, and the gray-drain/write-vector-drain loops the collector
// runs to a fixpoint each cycle.
package mark

import (
	"unsafe"

	"github.com/rtgc-go/rtgc/internal/group"
	"github.com/rtgc-go/rtgc/internal/header"
)

// PointerAlignment is GC_POINTER_ALIGNMENT: conservative scans only
// consider word-aligned candidate pointers.
const PointerAlignment = unsafe.Sizeof(uintptr(0))

// InstanceScanner is the extension point spec.md §9 leaves open for the
// INSTANCE (and METADATA) storage classes: a host may supply one to
// consult per-class layout metadata for a precise scan instead of the
// default conservative treatment (every aligned word in the payload is
// a pointer candidate, same as POINTERS).
type InstanceScanner interface {
	ScanInstance(payload uintptr, size int, gray func(candidate uintptr))
}

// ScanMemorySegment is scan_memory_segment: step by PointerAlignment
// over [lo, hi), treat each word as a candidate pointer, and resolve
// any that lands in the partition to its covering object, graying it
// if still unmarked.
func ScanMemorySegment(a *group.Allocator, lo, hi uintptr) {
	part := a.Partition()
	if hi < lo+PointerAlignment {
		return
	}
	for p := lo; p+PointerAlignment <= hi; p += PointerAlignment {
		candidate := *(*uintptr)(unsafe.Pointer(p))
		if !part.InPartition(candidate) {
			continue
		}
		obj, ok := a.InteriorToGCPtr(candidate)
		if !ok {
			continue
		}
		a.MakeObjectGray(obj, candidate)
	}
}

// ScanObject is scan_object: dispatch by storage class. NOPOINTERS
// objects are skipped entirely; POINTERS objects are scanned
// conservatively; METADATA and INSTANCE fall back to the same
// conservative scan unless the caller supplies an InstanceScanner.
func ScanObject(a *group.Allocator, scanner InstanceScanner, obj uintptr, sc header.StorageClass) {
	payload := header.PayloadAddr(obj)
	size := a.ObjectPayloadSize(obj)
	scanPayload(a, scanner, sc, payload, size)
}

// scanPayload is the storage-class dispatch shared by ScanObject
// (whose size comes from the owning group or big-object record) and
// ScanStaticSpace (whose size comes from each record's own size word).
func scanPayload(a *group.Allocator, scanner InstanceScanner, sc header.StorageClass, payload uintptr, size int) {
	if sc == header.NoPointers || size <= 0 {
		return
	}

	if (sc == header.Metadata || sc == header.Instance) && scanner != nil {
		scanner.ScanInstance(payload, size, func(candidate uintptr) {
			if !a.Partition().InPartition(candidate) {
				return
			}
			if resolved, ok := a.InteriorToGCPtr(candidate); ok {
				a.MakeObjectGray(resolved, candidate)
			}
		})
		return
	}

	ScanMemorySegment(a, payload, payload+uintptr(size))
}
