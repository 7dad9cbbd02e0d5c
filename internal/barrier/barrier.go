// Package barrier implements the snapshot-at-the-beginning write barrier
// as a bit-vector ("write-vector"): one bit per fixed-size slot of the
// partition, set with an atomic compare-and-swap OR for the slot of the
// WHITE object a mutator's pointer store is about to overwrite while a
// collection cycle is in flight. The collector loop drains the vector to
// a fixpoint between the root scan and the sweep, resolving every set
// bit back to its object and graying it, so an object that lost its
// incoming pointer mid-cycle is still retained.
package barrier

import (
	"math/bits"
	"sync/atomic"

	"github.com/rtgc-go/rtgc/internal/group"
	"github.com/rtgc-go/rtgc/internal/page"
)

// SlotSize is the granularity of one write-vector bit: MinGroupSize
// bytes, the smallest object the allocator ever hands out, so no two
// distinct objects can ever share a slot... except multi-page and big
// objects, which span many slots; referents pointing at different
// addresses inside one of those set different bits, which the drain
// handles by resolving every set bit's slot address back to its owning
// object before graying it (duplicate resolutions to the same object
// are skipped).
const SlotSize = group.MinGroupSize

var slotShift = uint(bits.TrailingZeros(uint(SlotSize)))

// Vector is the write-vector for one partition.
type Vector struct {
	part *page.Partition
	bits []uint64

	enabled int32 // atomic bool: barrier is a no-op outside a collection cycle
}

// New creates a write-vector sized to cover every slot of part.
func New(part *page.Partition) *Vector {
	slots := (int(part.Hi()-part.Lo()) + SlotSize - 1) / SlotSize
	words := (slots + 63) / 64
	return &Vector{part: part, bits: make([]uint64, words)}
}

// Enable and Disable toggle whether Write actually records anything;
// the barrier only needs to run while a cycle is between its flip and
// its sweep, so a free-running mutator between cycles pays nothing
// but the atomic load.
func (v *Vector) Enable()  { atomic.StoreInt32(&v.enabled, 1) }
func (v *Vector) Disable() { atomic.StoreInt32(&v.enabled, 0) }

// Enabled reports whether the barrier is currently recording writes.
func (v *Vector) Enabled() bool { return atomic.LoadInt32(&v.enabled) != 0 }

func (v *Vector) slotIndex(addr uintptr) int {
	return int((addr - v.part.Lo()) >> slotShift)
}

// Write records that referent — the value a pointer field held right
// before a mutator overwrote it — must be retained this cycle
// (snapshot-at-the-beginning, spec.md §4.4). Heap.WriteBarrier calls
// this only after confirming referent is in-partition and currently
// WHITE; Write itself just sets the bit for referent's slot so the
// drain can resolve it back to an object later, same as any other
// conservative candidate pointer.
func (v *Vector) Write(referent uintptr) {
	if atomic.LoadInt32(&v.enabled) == 0 {
		return
	}
	if !v.part.InPartition(referent) {
		return
	}
	idx := v.slotIndex(referent)
	word, bit := idx/64, uint(idx%64)
	for {
		old := atomic.LoadUint64(&v.bits[word])
		newVal := old | (1 << bit)
		if newVal == old {
			return
		}
		if atomic.CompareAndSwapUint64(&v.bits[word], old, newVal) {
			return
		}
	}
}

// DrainOnce scans every set bit, maps its slot back to an object base
// via resolve, invokes scan on each distinct object once, and clears
// the bits it processed. Returns the number of distinct objects
// rescanned, so the caller can loop DrainOnce to a fixpoint the same
// way group.DrainGroupOnce is looped.
func (v *Vector) DrainOnce(resolve func(addr uintptr) (uintptr, bool), scan func(obj uintptr)) int {
	seen := make(map[uintptr]struct{})
	count := 0
	for word := range v.bits {
		for {
			val := atomic.LoadUint64(&v.bits[word])
			if val == 0 {
				break
			}
			bit := uint(bits.TrailingZeros64(val))
			mask := ^(uint64(1) << bit)
			if !atomic.CompareAndSwapUint64(&v.bits[word], val, val&mask) {
				continue
			}

			slot := word*64 + int(bit)
			addr := v.part.Lo() + uintptr(slot)*SlotSize
			obj, ok := resolve(addr)
			if !ok {
				continue
			}
			if _, dup := seen[obj]; dup {
				continue
			}
			seen[obj] = struct{}{}
			scan(obj)
			count++
		}
	}
	return count
}

// Clear zeroes the whole vector; the collector's sweep calls it at the
// end of every cycle, right after disabling the barrier.
func (v *Vector) Clear() {
	for i := range v.bits {
		atomic.StoreUint64(&v.bits[i], 0)
	}
}
