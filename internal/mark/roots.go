package mark

import (
	"unsafe"

	"github.com/rtgc-go/rtgc/internal/group"
	"github.com/rtgc-go/rtgc/internal/header"
	"github.com/rtgc-go/rtgc/interfaces"
)

// ScanThreads is root-scan step 1 (spec.md §4.3): every tracked
// mutator's saved register file and saved stack, each aligned down to
// pointer alignment before the conservative scan.
func ScanThreads(a *group.Allocator, threads []interfaces.MutatorHandle) {
	for _, t := range threads {
		if lo, hi := t.Registers(); hi > lo {
			ScanMemorySegment(a, alignDown(lo), hi)
		}
		if lo, hi := t.SavedStack(); hi > lo {
			ScanMemorySegment(a, alignDown(lo), hi)
		}
	}
}

func alignDown(p uintptr) uintptr {
	return p &^ (PointerAlignment - 1)
}

// ScanGlobalRoots is root-scan step 2: each entry is the address of a
// registered pointer-sized slot; dereference it and resolve the value
// it currently holds.
func ScanGlobalRoots(a *group.Allocator, roots []uintptr) {
	part := a.Partition()
	for _, addr := range roots {
		candidate := *(*uintptr)(unsafe.Pointer(addr))
		if !part.InPartition(candidate) {
			continue
		}
		if obj, ok := a.InteriorToGCPtr(candidate); ok {
			a.MakeObjectGray(obj, candidate)
		}
	}
}

// ScanStaticSpace is root-scan step 3: static is a contiguous region of
// self-describing records, each a GC_HEADER (carrying only a storage
// class — static records are permanently live and never colored or
// swept) immediately followed by a pointer-sized size word and then
// payload. Walk it record by record, invoking the same storage-class
// dispatch scan_object uses.
func ScanStaticSpace(a *group.Allocator, scanner InstanceScanner, lo, hi uintptr) {
	recordPrefix := header.SizeOf + PointerAlignment
	p := lo
	for p+recordPrefix <= hi {
		h := header.At(p)
		sizeWordAddr := p + header.SizeOf
		size := int(*(*uintptr)(unsafe.Pointer(sizeWordAddr)))
		payload := sizeWordAddr + PointerAlignment
		if size < 0 || payload+uintptr(size) > hi {
			break
		}

		scanPayload(a, scanner, h.StorageClass(), payload, size)

		p = payload + uintptr(size)
	}
}
