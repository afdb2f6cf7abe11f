package kernel

// syscall_proc.go covers spec.md §6's process-management syscalls: fork,
// exit, wait, sbrk, dup, fstat, chdir. fork/exit/wait/sbrk are themselves
// implemented in proc_life.go/sbrk.go; this file is their fd-table and
// path-layer glue plus the ones with no file of their own.

// fdAlloc finds the lowest-numbered free descriptor in p's file table and
// installs f there, xv6's fdalloc.
func fdAlloc(p *Proc, f *File) (int, Errno) {
	for fd := 0; fd < NOFile; fd++ {
		if p.ofile[fd] == nil {
			p.ofile[fd] = f
			return fd, EOK
		}
	}
	return -1, EMFILE
}

// getFile returns the File installed at fd in the calling process's table.
func getFile(x *Ctx, fd int) (*File, Errno) {
	if fd < 0 || fd >= NOFile {
		return nil, EBADF
	}
	f := x.P.ofile[fd]
	if f == nil {
		return nil, EBADF
	}
	return f, EOK
}

func sysDup(x *Ctx, fd int) (int, Errno) {
	f, err := getFile(x, fd)
	if err != EOK {
		return -1, err
	}
	newFd, err := fdAlloc(x.P, f.Dup())
	if err != EOK {
		closeFile(x, f) // undo the Dup; no slot to hold it
		return -1, err
	}
	return newFd, EOK
}

func sysFstat(x *Ctx, fd int, dst []byte) Errno {
	f, err := getFile(x, fd)
	if err != EOK {
		return err
	}
	if f.typ != FdInode && f.typ != FdDevice {
		return EINVAL
	}
	if len(dst) < statSize {
		return EINVAL
	}
	x.K.itable.Lock(x, f.ip)
	st := Stat{Dev: f.ip.dev, Inum: f.ip.inum, Type: f.ip.disk.Type, Nlink: f.ip.disk.Nlink, Size: f.ip.disk.Size}
	x.K.itable.Unlock(x, f.ip)
	encodeStat(st, dst)
	return EOK
}

func sysChdir(x *Ctx, path string) Errno {
	it := x.K.itable
	ip, err := it.Namei(x, path)
	if err != EOK {
		return err
	}
	it.Lock(x, ip)
	if ip.disk.Type != TypeDirectory {
		it.Unlock(x, ip)
		it.Put(x, ip)
		return ENOTDIR
	}
	it.Unlock(x, ip)

	it.Put(x, x.P.cwd)
	x.P.cwd = ip
	return EOK
}
