package kernel

import (
	"unsafe"
)

// Allocator is spec.md §4.3: a single free-list over the byte arena
// [heapEnd, PHYSTOP). Both ends of every region are aligned to the list
// node's alignment; a node is written directly into the freed memory
// itself, exactly as original_source's LinkedListAllocator does (it is the
// direct ancestor of this file — see DESIGN.md).
//
// The arena stands in for physical RAM: a hosted process has no PHYSTOP to
// point into, so Allocator owns one big []byte and every "physical address"
// handed out elsewhere in this package is really (base + offset-into-arena).
type Allocator struct {
	lock *SpinLock

	arena []byte
	base  uint64 // the "physical address" arena[0] corresponds to

	headOffset uint64 // offset of the first free region, or noFree
}

const noFree = ^uint64(0)

type listNode struct {
	size uint64
	next uint64 // offset of next free region, or noFree
}

var nodeSize = uint64(unsafe.Sizeof(listNode{}))
var nodeAlign = uint64(unsafe.Alignof(listNode{}))

func NewAllocator(bootCpu *Cpu, size uint64) *Allocator {
	a := &Allocator{
		lock:       NewSpinLock("kmem"),
		arena:      make([]byte, size),
		headOffset: noFree,
	}
	a.addFreeRegion(bootCpu, 0, size)
	return a
}

func alignUp(v, align uint64) uint64 {
	return (v + align - 1) &^ (align - 1)
}

func (a *Allocator) nodeAt(off uint64) *listNode {
	return (*listNode)(unsafe.Pointer(&a.arena[off]))
}

// addFreeRegion prepends [offset, offset+size) to the free list, adjusting
// for alignment the way original_source's add_free_region does.
func (a *Allocator) addFreeRegion(c *Cpu, offset, size uint64) {
	aligned := alignUp(offset, nodeAlign)
	shrink := aligned - offset
	if size <= shrink || size-shrink < nodeSize {
		return // region too small to hold a node once aligned; silently dropped
	}
	adjusted := size - shrink
	n := a.nodeAt(aligned)
	n.size = adjusted
	n.next = a.headOffset
	a.headOffset = aligned
}

// Alloc returns the physical address of a freshly allocated region of at
// least size bytes aligned to align, or (0, false) on exhaustion. Leftover
// space large enough for another node is returned to the free list.
func (a *Allocator) Alloc(c *Cpu, size, align uint64) (uint64, bool) {
	a.lock.Acquire(c)
	defer a.lock.Release(c)

	size = alignUp(size, nodeAlign)
	if size < nodeSize {
		size = nodeSize
	}

	var prevOff uint64 = noFree
	cur := a.headOffset
	for cur != noFree {
		n := a.nodeAt(cur)
		allocStart := alignUp(cur, align)
		allocEnd := allocStart + size
		regionEnd := cur + n.size
		if allocEnd <= regionEnd {
			next := n.next
			excess := regionEnd - allocEnd
			// unlink this region first
			if prevOff == noFree {
				a.headOffset = next
			} else {
				a.nodeAt(prevOff).next = next
			}
			if excess > 0 {
				a.addFreeRegion(c, allocEnd, excess)
			}
			if lead := allocStart - cur; lead > 0 {
				a.addFreeRegion(c, cur, lead)
			}
			zero(a.arena[allocStart : allocStart+size])
			return a.base + allocStart, true
		}
		prevOff = cur
		cur = n.next
	}
	return 0, false
}

// Free prepends the region back onto the free list; no coalescing.
func (a *Allocator) Free(c *Cpu, pa, size uint64) {
	a.lock.Acquire(c)
	defer a.lock.Release(c)
	a.addFreeRegion(c, pa-a.base, size)
}

// AllocPage/FreePage/AllocQuad/AllocPTFrame back the three allocation sizes
// spec.md §4.3 names: single page, quad page (kernel stack), page-table
// frame (also a single page).
func (a *Allocator) AllocPage(c *Cpu) (uint64, bool) { return a.Alloc(c, PageSize, PageSize) }
func (a *Allocator) FreePage(c *Cpu, pa uint64)      { a.Free(c, pa, PageSize) }

func (a *Allocator) AllocQuad(c *Cpu) (uint64, bool) { return a.Alloc(c, 4*PageSize, PageSize) }
func (a *Allocator) FreeQuad(c *Cpu, pa uint64)      { a.Free(c, pa, 4*PageSize) }

// Bytes returns a slice view of n bytes of the arena at physical address
// pa, for code that reads/writes frame contents directly (page tables,
// buffer cache, DMA-ish device stand-ins).
func (a *Allocator) Bytes(pa uint64, n uint64) []byte {
	off := pa - a.base
	return a.arena[off : off+n]
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
