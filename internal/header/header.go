// Package header implements the GC_HEADER tagged-pointer layout every
// managed object carries: two link words (prev/next) whose low bits are
// stolen to record color and storage class, so a color transition never
// touches more than a handful of bits and the flip's color-swap-by-constant
// trick never has to walk the heap.
package header

import "unsafe"

// Color is the tri-color (plus GREEN) state of an object.
type Color uintptr

const (
	White Color = 0
	Gray  Color = 1
	Black Color = 2
	Green Color = 3
)

func (c Color) String() string {
	switch c {
	case White:
		return "WHITE"
	case Gray:
		return "GRAY"
	case Black:
		return "BLACK"
	case Green:
		return "GREEN"
	default:
		return "INVALID"
	}
}

// StorageClass tells the marker how to interpret an object's payload.
type StorageClass uintptr

const (
	NoPointers StorageClass = 0
	Pointers   StorageClass = 1
	Metadata   StorageClass = 2
	Instance   StorageClass = 3
)

func (c StorageClass) String() string {
	switch c {
	case NoPointers:
		return "NOPOINTERS"
	case Pointers:
		return "POINTERS"
	case Metadata:
		return "METADATA"
	case Instance:
		return "INSTANCE"
	default:
		return "INVALID"
	}
}

const (
	tagBits = 2
	tagMask = uintptr(1<<tagBits - 1)
)

// Header is the fixed-size prefix carried by every managed object. Prev
// carries the storage-class tag in its low bits, Next carries the color
// tag in its low bits; both are otherwise ordinary addresses of
// neighboring objects on whichever intrusive list the object currently
// lives on. This mirrors the original collector's rule that color and
// class live in the link words rather than as separate fields, so the
// header never grows past two pointer-sized words.
type Header struct {
	Prev uintptr
	Next uintptr
}

// SizeOf is the number of bytes occupied by a Header at the front of
// every object's memory.
const SizeOf = unsafe.Sizeof(Header{})

// At reinterprets the bytes at addr (a live address inside the partition)
// as a *Header. The caller is responsible for addr being valid and
// pointer-aligned; this is the one primitive that turns partition
// addresses into Go-visible structure, matching the conservative-GC
// domain's inherent reliance on unsafe.Pointer.
func At(addr uintptr) *Header {
	return (*Header)(unsafe.Pointer(addr))
}

// LinkPointer strips the tag bits from a Prev/Next field, returning the
// plain address of the neighboring object (0 if there is none).
func LinkPointer(v uintptr) uintptr {
	return v &^ tagMask
}

func (h *Header) PrevPtr() uintptr { return LinkPointer(h.Prev) }
func (h *Header) NextPtr() uintptr { return LinkPointer(h.Next) }

// SetPrevPtr replaces the pointer portion of Prev, preserving its class tag.
func (h *Header) SetPrevPtr(p uintptr) {
	h.Prev = LinkPointer(p) | (h.Prev & tagMask)
}

// SetNextPtr replaces the pointer portion of Next, preserving its color tag.
func (h *Header) SetNextPtr(p uintptr) {
	h.Next = LinkPointer(p) | (h.Next & tagMask)
}

// Color reads the object's current color from the Next tag.
func (h *Header) Color() Color {
	return Color(h.Next & tagMask)
}

// SetColor overwrites only the color tag, leaving the Next pointer intact.
func (h *Header) SetColor(c Color) {
	h.Next = LinkPointer(h.Next) | uintptr(c)
}

// StorageClass reads the object's storage class from the Prev tag.
func (h *Header) StorageClass() StorageClass {
	return StorageClass(h.Prev & tagMask)
}

// SetStorageClass overwrites only the class tag, leaving the Prev pointer intact.
func (h *Header) SetStorageClass(sc StorageClass) {
	h.Prev = LinkPointer(h.Prev) | uintptr(sc)
}

// Init sets up a freshly carved object's header: no neighbors yet, the
// requested storage class, and GREEN (it starts life on a free list).
func (h *Header) Init(sc StorageClass) {
	h.Prev = uintptr(sc)
	h.Next = uintptr(Green)
}

// PayloadAddr is the address of the first payload byte following the header.
func PayloadAddr(objAddr uintptr) uintptr {
	return objAddr + uintptr(SizeOf)
}

// ObjAddr recovers an object's base address from a payload address,
// i.e. the inverse of PayloadAddr (the original source's INSTANCE_TO_GCPTR).
func ObjAddr(payloadAddr uintptr) uintptr {
	return payloadAddr - uintptr(SizeOf)
}
