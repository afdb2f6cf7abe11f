package kernel

// Sbrk grows or shrinks the calling process's heap by n bytes (positive or
// negative) and returns the address the heap used to end at, matching the
// classic sbrk(2) contract xv6's sys_sbrk wraps.
func Sbrk(x *Ctx, n int64) (uint64, Errno) {
	p := x.P
	old := p.sz

	if n == 0 {
		return old, EOK
	}
	if n > 0 {
		newSz, err := uvmAlloc(x.C, x.K.alloc, p.pagetable, old, old+uint64(n), PteW)
		if err != EOK {
			return 0, err
		}
		p.sz = newSz
		return old, EOK
	}

	shrink := uint64(-n)
	if shrink > old {
		return 0, EINVAL
	}
	p.sz = uvmDealloc(x.C, x.K.alloc, p.pagetable, old, old-shrink)
	return old, EOK
}
