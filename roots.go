package rtgc

import (
	"unsafe"

	"github.com/devlights/gomy/guard"

	"github.com/rtgc-go/rtgc/internal/header"
	"github.com/rtgc-go/rtgc/internal/mark"
)

// RegisterGlobalRoot adds addr — the address of a pointer-sized slot,
// e.g. a host's global or static variable holding a heap pointer — to
// the set scanned every cycle (spec.md §4.3 root-scan step 2,
// `register_global_root` in spec.md §6). Safe to call concurrently
// with collection: this append and GlobalRoots' snapshot copy both run
// under rootsMu, so root scan always works from a consistent copy.
func (h *Heap) RegisterGlobalRoot(addr uintptr) {
	guard.L(&h.rootsMu, func() {
		h.roots = append(h.roots, addr)
	})
}

// GlobalRoots implements collector.RootSet, returning a snapshot of
// every registered global root address.
func (h *Heap) GlobalRoots() []uintptr {
	h.rootsMu.Lock()
	defer h.rootsMu.Unlock()
	out := make([]uintptr, len(h.roots))
	copy(out, h.roots)
	return out
}

// StaticSpace implements collector.RootSet: the used portion of the
// static region, [staticLo, cursor), per spec.md §3's description of
// `static` as "a contiguous region... holding permanent records each
// prefixed by a size word and payload".
func (h *Heap) StaticSpace() (lo, hi uintptr) {
	h.staticMu.Lock()
	defer h.staticMu.Unlock()
	return h.staticLo, h.staticCursor
}

// WriteStaticRecord appends a permanent, never-collected record to
// static space: a self-describing record carrying a storage-class tag
// and its payload, exactly the shape mark.ScanStaticSpace walks.
// Static records are never colored or swept (spec.md §4.3's "static
// space, walking its self-describing size-prefixed records"); they
// exist purely as extra roots a host can populate ahead of time —
// interned constants, a class table, anything that must outlive every
// cycle without going through the root-set collaborator.
//
// The payload is copied in and zero-padded up to pointer alignment so
// the next record's header stays pointer-aligned; the returned address
// is where the (unpadded) payload begins.
func (h *Heap) WriteStaticRecord(sc StorageClass, payload []byte) (uintptr, error) {
	align := mark.PointerAlignment
	padded := (uintptr(len(payload)) + align - 1) &^ (align - 1)
	recordBytes := header.SizeOf + align + padded

	h.staticMu.Lock()
	defer h.staticMu.Unlock()

	if h.staticCursor+recordBytes > h.staticHi {
		return 0, ErrOutOfMemory
	}

	recAddr := h.staticCursor
	hdr := header.At(recAddr)
	hdr.Prev, hdr.Next = 0, 0
	hdr.SetStorageClass(sc)

	sizeWordAddr := recAddr + header.SizeOf
	*(*uintptr)(unsafe.Pointer(sizeWordAddr)) = padded

	payloadAddr := sizeWordAddr + align
	dst := unsafe.Slice((*byte)(unsafe.Pointer(payloadAddr)), padded)
	n := copy(dst, payload)
	for i := n; i < len(dst); i++ {
		dst[i] = 0
	}

	h.staticCursor = recAddr + recordBytes
	return payloadAddr, nil
}
