package kernel

// Vma is spec.md §4.13's lazy memory-mapped region: recorded at mmap time,
// populated page-by-page on first fault rather than eagerly.
type Vma struct {
	Start uint64
	Size  uint64
	Prot  PTE
	Shared bool

	File   *File
	Offset uint32
}

const (
	MapShared    = 1
	MapPrivate   = 2
	ProtRead     = PteR
	ProtWrite    = PteW
	ProtExec     = PteX
)

// Mmap picks an unused region directly below the process's existing mapped
// range (below the trapframe page when nothing is mapped yet), records a
// Vma, and returns its base address. No page is mapped yet.
func Mmap(x *Ctx, length uint64, prot PTE, shared bool, f *File, offset uint32) (uint64, Errno) {
	if length == 0 {
		return 0, EINVAL
	}
	length = alignUp(length, PageSize)

	p := x.P
	top := uint64(Trapframe)
	for _, v := range p.vmas {
		if v.Start < top {
			top = v.Start
		}
	}
	if top < length || top-length < alignUp(p.sz, PageSize) {
		return 0, ENOMEM
	}

	v := &Vma{Start: top - length, Size: length, Prot: prot, Shared: shared, File: f, Offset: offset}
	if f != nil {
		f.Dup()
	}
	p.vmas = append(p.vmas, v)
	return v.Start, EOK
}

// findVma returns the Vma covering va, if any.
func findVma(p *Proc, va uint64) *Vma {
	for _, v := range p.vmas {
		if va >= v.Start && va < v.Start+alignUp(v.Size, PageSize) {
			return v
		}
	}
	return nil
}

// PageFault handles a hardware page fault at va that lands inside a Vma:
// allocate a physical frame, populate it from the backing file (if any),
// and map it with the Vma's permissions (spec.md §4.13/§4.6). A fault
// outside every Vma is not handled here and returns EFAULT; trap.go's Fault
// is how a program body turns that into its own exit.
func PageFault(x *Ctx, va uint64) Errno {
	p := x.P
	v := findVma(p, va)
	if v == nil {
		return EFAULT
	}
	x.K.metrics.PageFaults.Inc()

	pageVA := va &^ (PageSize - 1)
	pa, ok := x.K.alloc.AllocPage(x.C)
	if !ok {
		return ENOMEM
	}

	if v.File != nil {
		fileOff := v.Offset + uint32(pageVA-v.Start)
		buf := x.K.alloc.Bytes(pa, PageSize)
		if _, err := fileReadAt(x, v.File, buf, fileOff); err != EOK {
			x.K.alloc.FreePage(x.C, pa)
			return err
		}
	}

	perm := v.Prot | PteU
	if !p.pagetable.Map(x.C, pageVA, pa, PageSize, perm) {
		x.K.alloc.FreePage(x.C, pa)
		return ENOMEM
	}
	return EOK
}

// writeBackRange copies [addr, addr+length) of a MAP_SHARED file-backed
// region back to its backing inode before the pages are unmapped.
func writeBackRange(x *Ctx, v *Vma, addr, length uint64) {
	for off := uint64(0); off < length; off += PageSize {
		page, err := x.P.pagetable.translate(x.C, addr+off, false)
		if err != EOK {
			continue
		}
		fileOff := v.Offset + uint32(addr+off-v.Start)
		fileWriteAt(x, v.File, page[:PageSize], fileOff)
	}
}

// Munmap drops the mapped portion of a Vma starting at addr. Partial
// unmaps from either edge are supported; an unmap from the middle is not
// (spec.md §4.13 Non-goals), and returns EINVAL.
func Munmap(x *Ctx, addr, length uint64) Errno {
	p := x.P
	length = alignUp(length, PageSize)
	for i, v := range p.vmas {
		if addr != v.Start && addr != v.Start+alignUp(v.Size, PageSize)-length {
			continue
		}
		if addr < v.Start || addr+length > v.Start+alignUp(v.Size, PageSize) {
			continue
		}
		if v.Shared && v.File != nil {
			writeBackRange(x, v, addr, length)
		}
		p.pagetable.Unmap(x.C, addr, length, true)
		if length == alignUp(v.Size, PageSize) {
			if v.File != nil {
				closeFile(x, v.File)
			}
			p.vmas = append(p.vmas[:i], p.vmas[i+1:]...)
		} else if addr == v.Start {
			v.Start += length
			v.Offset += uint32(length)
			v.Size -= length
		} else {
			v.Size -= length
		}
		return EOK
	}
	return EINVAL
}
