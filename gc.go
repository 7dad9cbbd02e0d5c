package rtgc

import (
	"unsafe"

	"github.com/pkg/errors"

	"github.com/rtgc-go/rtgc/internal/header"
)

// WriteBarrier is the mutator pointer-store hook of spec.md §4.4 and
// §6 (`write_barrier(lhs_address, rhs) → rhs`): before `*lhsAddr =
// rhs` takes effect, inspect the value currently at lhsAddr and, if it
// points at a still-WHITE object, record it in the write-vector so the
// snapshot-at-the-beginning invariant survives the cycle. A no-op
// (besides performing the store) when the barrier is disabled between
// cycles. Returns rhs so callers can write `x.field = h.WriteBarrier(&x.field, v)`.
func (h *Heap) WriteBarrier(lhsAddr, rhs uintptr) uintptr {
	h.inCollector.Lock()
	collecting := h.collecting
	h.inCollector.Unlock()
	if collecting {
		// spec.md §5 Reentrancy: the barrier must not be reentered
		// from within the collector. Outside DebugMode this is a
		// debug assertion only — refuse to record, still perform the
		// store, and move on.
		if h.DebugMode {
			panic(errors.Wrap(ErrInvariantViolation, "rtgc: write barrier reentered from collector"))
		}
		*(*uintptr)(unsafe.Pointer(lhsAddr)) = rhs
		return rhs
	}

	if h.vector.Enabled() {
		h.recordIfWhite(*(*uintptr)(unsafe.Pointer(lhsAddr)))
		if h.DebugMode {
			h.assertNotWhiteEscape(rhs)
		}
	}

	*(*uintptr)(unsafe.Pointer(lhsAddr)) = rhs
	return rhs
}

// recordIfWhite is the barrier's core test: does old resolve to an
// in-partition object that is still WHITE this cycle? If so its slot
// is marked in the write-vector so the next drain retains it.
func (h *Heap) recordIfWhite(old uintptr) {
	if !h.part.InPartition(old) {
		return
	}
	obj, ok := h.alloc.InteriorToGCPtr(old)
	if !ok {
		return
	}
	if header.At(obj).Color() == h.alloc.UnmarkedColor() {
		h.vector.Write(obj)
	}
}

// assertNotWhiteEscape is the WHITE_ESCAPE check of spec.md §7: rhs
// itself resolves to a still-WHITE object while the barrier is
// enabled. It runs only in DebugMode; outside it nothing is checked or
// recorded for rhs — the barrier records only the overwritten value.
func (h *Heap) assertNotWhiteEscape(rhs uintptr) {
	if !h.part.InPartition(rhs) {
		return
	}
	obj, ok := h.alloc.InteriorToGCPtr(rhs)
	if !ok {
		return
	}
	if header.At(obj).Color() == h.alloc.UnmarkedColor() {
		panic(errors.Wrap(ErrWhiteEscape, "rtgc: store published a white pointer while write barrier enabled"))
	}
}

// SafeWriteBarrier is `SXsafe_bash`: spec.md's Open Questions leave its
// semantics beyond "alias for the ordinary write barrier" unspecified,
// so that is exactly what this is.
func (h *Heap) SafeWriteBarrier(lhsAddr, rhs uintptr) uintptr {
	return h.WriteBarrier(lhsAddr, rhs)
}

// SafeSetFieldInit is `SXsafe_setfInit`, the same alias.
func (h *Heap) SafeSetFieldInit(lhsAddr, rhs uintptr) uintptr {
	return h.WriteBarrier(lhsAddr, rhs)
}

// bulkAlignment is the granularity BulkCopy/BulkSet step over the
// destination range at, matching mark.PointerAlignment (conservative
// scans only ever consider word-aligned candidates).
const bulkAlignment = unsafe.Sizeof(uintptr(0))

// bulkBarrier is the region-wide barrier spec.md §4.4 describes for
// memcpy/memset: scan the old contents of [dst, dst+n) for white
// referents, slot-marking each, before the bulk operation proceeds.
func (h *Heap) bulkBarrier(dst uintptr, n int) {
	if !h.vector.Enabled() {
		return
	}
	end := dst + uintptr(n)
	for p := dst; p+bulkAlignment <= end; p += bulkAlignment {
		h.recordIfWhite(*(*uintptr)(unsafe.Pointer(p)))
	}
}

// BulkCopy is `bulk_copy(dst, src, n)`: a barrier-aware block copy.
func (h *Heap) BulkCopy(dst, src uintptr, n int) {
	h.bulkBarrier(dst, n)
	d := unsafe.Slice((*byte)(unsafe.Pointer(dst)), n)
	s := unsafe.Slice((*byte)(unsafe.Pointer(src)), n)
	copy(d, s)
}

// BulkSet is `bulk_set(dst, byte, n)`: a barrier-aware block fill.
func (h *Heap) BulkSet(dst uintptr, b byte, n int) {
	h.bulkBarrier(dst, n)
	d := unsafe.Slice((*byte)(unsafe.Pointer(dst)), n)
	for i := range d {
		d[i] = b
	}
}
