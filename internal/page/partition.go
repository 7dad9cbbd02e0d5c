// Package page implements the Page/Segment Layer: a contiguous,
// page-aligned byte partition, its per-page metadata, and the
// empty-pages hole list that the size-group allocator borrows whole
// pages from and the sweep/coalesce phase returns them to.
package page

import (
	"sync"
	"unsafe"

	"github.com/ncw/directio"
	"github.com/pkg/errors"
)

// PagePower and BytesPerPage are the partition's fixed page geometry.
// 64KiB pages keep the empty-pages list coarse enough that coalescing
// is cheap while still letting MIN_GROUP_SIZE-sized (16B) objects pack
// 4096 instances per page.
const (
	PagePower    = 16
	BytesPerPage = 1 << PagePower
)

// Owner identifies what a page currently belongs to. Negative values are
// the sentinels from the original design (EMPTY/SYSTEM/STATIC/EXTERNAL,
// all distinguishable from real owners by numeric ordering); values >= 0
// are group indices understood by the internal/group package.
type Owner int32

const (
	OwnerEmpty    Owner = -4
	OwnerSystem   Owner = -3
	OwnerStatic   Owner = -2
	OwnerExternal Owner = -1
)

// IsSentinel reports whether o is one of the four reserved values rather
// than a real group-owned page.
func (o Owner) IsSentinel() bool { return o < 0 }

// Info is the per-page metadata entry: which group (if any) owns the
// page, the address of the object whose storage covers this page (equal
// to the page's own start address for self-standing pages), and the
// number of live bytes currently charged against the page.
type Info struct {
	Owner     Owner
	Base      uintptr
	BytesUsed int
}

// Partition is one contiguous, page-aligned heap region together with
// its page_info array and empty-pages hole list.
type Partition struct {
	bytes     []byte // backing storage, page-aligned via directio.AlignedBlock
	lo        uintptr
	hi        uintptr
	pageCount int
	pages     []Info

	emptyMu sync.Mutex
	empty   *hole // head of the singly-linked empty-pages list
}

// hole is the header embedded in the first bytes of every empty page
// run, exactly as the original design describes it.
type hole struct {
	pageCount int
	next      *hole
}

// NewPartition allocates a page-aligned region of at least size bytes
// (rounded up to a whole number of pages) and initializes it as one
// single empty hole spanning the entire partition.
func NewPartition(size int) (*Partition, error) {
	if size <= 0 {
		return nil, errors.New("page: partition size must be positive")
	}
	pageCount := (size + BytesPerPage - 1) / BytesPerPage
	buf := directio.AlignedBlock(pageCount * BytesPerPage)
	p := &Partition{
		bytes:     buf,
		lo:        uintptr(unsafe.Pointer(&buf[0])),
		pageCount: pageCount,
		pages:     make([]Info, pageCount),
	}
	p.hi = p.lo + uintptr(len(buf))
	for i := range p.pages {
		p.pages[i] = Info{Owner: OwnerEmpty}
	}
	p.empty = (*hole)(unsafe.Pointer(p.lo))
	*p.empty = hole{pageCount: pageCount}
	return p, nil
}

// Lo and Hi are the half-open address range [Lo, Hi) of the partition.
func (p *Partition) Lo() uintptr { return p.lo }
func (p *Partition) Hi() uintptr { return p.hi }

// PageCount is the total number of fixed-size pages in the partition.
func (p *Partition) PageCount() int { return p.pageCount }

// InPartition reports whether addr falls within [Lo, Hi).
func (p *Partition) InPartition(addr uintptr) bool {
	return addr >= p.lo && addr < p.hi
}

// PageIndex maps an in-partition address to its page index. The caller
// must have already checked InPartition.
func (p *Partition) PageIndex(addr uintptr) int {
	return int((addr - p.lo) >> PagePower)
}

// PageIndexToAddr is the inverse of PageIndex.
func (p *Partition) PageIndexToAddr(idx int) uintptr {
	return p.lo + uintptr(idx)<<PagePower
}

// Page returns the metadata entry for page idx.
func (p *Partition) Page(idx int) *Info { return &p.pages[idx] }

// Owner returns the owner of the page containing addr, or OwnerExternal
// if addr does not fall inside the partition at all.
func (p *Partition) Owner(addr uintptr) Owner {
	if !p.InPartition(addr) {
		return OwnerExternal
	}
	return p.pages[p.PageIndex(addr)].Owner
}

// Zero clears n bytes starting at addr. Used when carving fresh pages
// for a group so newly allocated objects start zero-initialized.
func (p *Partition) Zero(addr uintptr, n int) {
	b := unsafe.Slice((*byte)(unsafe.Pointer(addr)), n)
	for i := range b {
		b[i] = 0
	}
}
