package kernel

import "unsafe"

// PTE bits, spec.md §3: bits 0-7 are flags, bits 10-53 the physical page
// number. Intermediate (non-leaf) entries carry only PteV.
type PTE uint64

const (
	PteV PTE = 1 << 0
	PteR PTE = 1 << 1
	PteW PTE = 1 << 2
	PteX PTE = 1 << 3
	PteU PTE = 1 << 4
	PteG PTE = 1 << 5
	PteA PTE = 1 << 6
	PteD PTE = 1 << 7

	pteFlagMask = PTE(0x3FF)
	pteShift    = 10
)

func mkPTE(pa uint64, flags PTE) PTE {
	return PTE((pa>>PgShift)<<pteShift) | (flags & pteFlagMask)
}

func (pte PTE) pa() uint64 {
	return (uint64(pte) >> pteShift) << PgShift
}

func (pte PTE) valid() bool { return pte&PteV != 0 }
func (pte PTE) leaf() bool  { return pte.valid() && (pte&(PteR|PteW|PteX)) != 0 }

// PageTable is a handle to the physical frame holding the root of a
// three-level SV39 table. Every PageTable in the system is backed by the
// same Allocator arena; "physical address" means an offset reachable
// through Allocator.Bytes.
type PageTable struct {
	alloc *Allocator
	root  uint64
}

func pteSliceAt(a *Allocator, framePA uint64) []PTE {
	b := a.Bytes(framePA, PageSize)
	return unsafe.Slice((*PTE)(unsafe.Pointer(&b[0])), 512)
}

func pxIndex(level int, va uint64) int {
	shift := PgShift + PxBits*level
	return int((va >> shift) & PxMask)
}

// NewPageTable allocates a fresh, zeroed root table.
func NewPageTable(c *Cpu, a *Allocator) (*PageTable, bool) {
	pa, ok := a.AllocPage(c)
	if !ok {
		return nil, false
	}
	return &PageTable{alloc: a, root: pa}, true
}

// walk finds (optionally creating) the leaf PTE slot for va, descending
// through two levels of intermediate tables exactly as spec.md §4.4
// describes.
func (pt *PageTable) walk(c *Cpu, va uint64, allocate bool) *PTE {
	frame := pt.root
	for level := 2; level > 0; level-- {
		ptes := pteSliceAt(pt.alloc, frame)
		idx := pxIndex(level, va)
		pte := &ptes[idx]
		if pte.valid() {
			frame = pte.pa()
			continue
		}
		if !allocate {
			return nil
		}
		childPA, ok := pt.alloc.AllocPage(c)
		if !ok {
			return nil
		}
		*pte = mkPTE(childPA, PteV)
		frame = childPA
	}
	ptes := pteSliceAt(pt.alloc, frame)
	return &ptes[pxIndex(0, va)]
}

// Map installs size/PageSize leaf PTEs covering [va, va+size) -> [pa,
// pa+size) with the given permission flags. Remapping an already-valid page
// is a programmer error, per spec.md §4.4.
func (pt *PageTable) Map(c *Cpu, va, pa, size uint64, perm PTE) bool {
	if size == 0 {
		panic("vm: Map of zero size")
	}
	a0 := va &^ (PageSize - 1)
	last := (va + size - 1) &^ (PageSize - 1)
	for a, p := a0, pa&^(PageSize-1); ; a, p = a+PageSize, p+PageSize {
		pte := pt.walk(c, a, true)
		if pte == nil {
			return false
		}
		if pte.valid() {
			panic("vm: Map: remap")
		}
		*pte = mkPTE(p, perm|PteV)
		if a == last {
			break
		}
	}
	return true
}

// Unmap clears n/PageSize PTEs starting at va, freeing the backing physical
// frames when free is true.
func (pt *PageTable) Unmap(c *Cpu, va, n uint64, free bool) {
	if va%PageSize != 0 {
		panic("vm: Unmap: unaligned va")
	}
	for off := uint64(0); off < n; off += PageSize {
		a := va + off
		pte := pt.walk(c, a, false)
		if pte == nil || !pte.valid() {
			continue
		}
		if !pte.leaf() {
			panic("vm: Unmap: not a leaf")
		}
		if free {
			pt.alloc.FreePage(c, pte.pa())
		}
		*pte = 0
	}
}

// Lookup returns the PTE mapping va, if any.
func (pt *PageTable) Lookup(c *Cpu, va uint64) (PTE, bool) {
	pte := pt.walk(c, va, false)
	if pte == nil || !pte.valid() {
		return 0, false
	}
	return *pte, true
}

// --- user page table lifecycle, spec.md §4.4 ---

func allocUserPageTable(c *Cpu, a *Allocator, trampolinePA, trapframePA uint64) *PageTable {
	pt, ok := NewPageTable(c, a)
	if !ok {
		return nil
	}
	if !pt.Map(c, Trampoline, trampolinePA, PageSize, PteR|PteX) {
		return nil
	}
	if !pt.Map(c, Trapframe, trapframePA, PageSize, PteR|PteW) {
		pt.Unmap(c, Trampoline, PageSize, false)
		return nil
	}
	return pt
}

// unmapUserPagetable drops the two fixed mappings, unmaps [0, sz) freeing
// frames, then unmaps every VMA region the same way (spec.md §4.4).
func unmapUserPagetable(c *Cpu, pt *PageTable, sz uint64, vmas []*Vma) {
	pt.Unmap(c, Trampoline, PageSize, false)
	pt.Unmap(c, Trapframe, PageSize, false)
	if sz > 0 {
		pt.Unmap(c, 0, alignUp(sz, PageSize), true)
	}
	for _, v := range vmas {
		pt.Unmap(c, v.Start, alignUp(v.Size, PageSize), true)
	}
}

// uvmAlloc grows the process from oldSz to newSz, wiring fresh user pages.
// On partial failure already-allocated pages are rolled back.
func uvmAlloc(c *Cpu, a *Allocator, pt *PageTable, oldSz, newSz uint64, perm PTE) (uint64, Errno) {
	if newSz < oldSz {
		return oldSz, EOK
	}
	oldSz = alignUp(oldSz, PageSize)
	for va := oldSz; va < newSz; va += PageSize {
		pa, ok := a.AllocPage(c)
		if !ok {
			uvmDealloc(c, a, pt, va, oldSz)
			return oldSz, ENOMEM
		}
		if !pt.Map(c, va, pa, PageSize, perm|PteR|PteU) {
			a.FreePage(c, pa)
			uvmDealloc(c, a, pt, va, oldSz)
			return oldSz, ENOMEM
		}
	}
	return newSz, EOK
}

// uvmDealloc frees and unmaps pages in [newSz, oldSz).
func uvmDealloc(c *Cpu, a *Allocator, pt *PageTable, oldSz, newSz uint64) uint64 {
	if newSz >= oldSz {
		return oldSz
	}
	lo := alignUp(newSz, PageSize)
	hi := alignUp(oldSz, PageSize)
	if hi > lo {
		pt.Unmap(c, lo, hi-lo, true)
	}
	return newSz
}

// uvmCopy implements fork's address-space duplication (spec.md §4.4): walk
// every page in src, copy its bytes into a fresh frame, map into dst with
// matching flags. Unwinds everything mapped so far on failure.
func uvmCopy(c *Cpu, a *Allocator, src, dst *PageTable, sz uint64) Errno {
	var mapped uint64
	for va := uint64(0); va < sz; va += PageSize {
		pte, ok := src.Lookup(c, va)
		if !ok {
			continue
		}
		newPA, ok := a.AllocPage(c)
		if !ok {
			dst.Unmap(c, 0, mapped, true)
			return ENOMEM
		}
		copy(a.Bytes(newPA, PageSize), a.Bytes(pte.pa(), PageSize))
		if !dst.Map(c, va, newPA, PageSize, pte&pteFlagMask) {
			a.FreePage(c, newPA)
			dst.Unmap(c, 0, mapped, true)
			return ENOMEM
		}
		mapped = va + PageSize
	}
	return EOK
}

// --- safe user<->kernel copies, spec.md §4.4 ---

func (pt *PageTable) translate(c *Cpu, va uint64, forWrite bool) ([]byte, Errno) {
	base := va &^ (PageSize - 1)
	pte, ok := pt.Lookup(c, base)
	if !ok || pte&PteU == 0 {
		return nil, EFAULT
	}
	if forWrite && pte&PteW == 0 {
		return nil, EFAULT
	}
	frame := pt.alloc.Bytes(pte.pa(), PageSize)
	return frame[va-base:], EOK
}

func (pt *PageTable) CopyOut(c *Cpu, dstVA uint64, src []byte) Errno {
	for len(src) > 0 {
		page, err := pt.translate(c, dstVA, true)
		if err != EOK {
			return err
		}
		n := len(page)
		if n > len(src) {
			n = len(src)
		}
		copy(page[:n], src[:n])
		src = src[n:]
		dstVA += uint64(n)
	}
	return EOK
}

func (pt *PageTable) CopyIn(c *Cpu, dst []byte, srcVA uint64) Errno {
	for len(dst) > 0 {
		page, err := pt.translate(c, srcVA, false)
		if err != EOK {
			return err
		}
		n := len(page)
		if n > len(dst) {
			n = len(dst)
		}
		copy(dst[:n], page[:n])
		dst = dst[n:]
		srcVA += uint64(n)
	}
	return EOK
}

// CopyInStr copies a NUL-terminated string from user space, up to max
// bytes, returning it without the terminator.
func (pt *PageTable) CopyInStr(c *Cpu, srcVA uint64, max int) (string, Errno) {
	out := make([]byte, 0, 64)
	for len(out) < max {
		page, err := pt.translate(c, srcVA, false)
		if err != EOK {
			return "", err
		}
		for _, b := range page {
			if b == 0 {
				return string(out), EOK
			}
			out = append(out, b)
			if len(out) >= max {
				return string(out), EOK
			}
		}
		srcVA += uint64(len(page))
	}
	return string(out), EOK
}
