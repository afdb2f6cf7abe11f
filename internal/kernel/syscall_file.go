package kernel

import (
	"net"
	"strconv"

	"github.com/kazukousen/xv6go/internal/netstack"
)

// parsePort extracts a numeric port from a bind(2) address, accepting
// either a bare port ("8080") or a "host:port" pair (the host is ignored;
// bind always binds every local interface, matching internal/netstack's
// net.ListenUDP(nil-host) behavior).
func parsePort(addr string) (int, Errno) {
	portStr := addr
	if _, p, err := net.SplitHostPort(addr); err == nil {
		portStr = p
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return 0, EINVAL
	}
	return port, EOK
}

// syscall_file.go covers spec.md §6's file-descriptor and socket syscalls:
// pipe, read, write, open, mknod, unlink, mkdir, close, socket, bind,
// connect, mmap, and the getenv/setenv/unsetenv/listenv family spec.md
// §4.13 groups with the address-space glue but which live at this layer
// because they are plain per-process state, not address-space state.

// open(2) flags, spec.md §6's documented set.
const (
	ORdOnly = 0x000
	OWrOnly = 0x001
	ORdWr   = 0x002
	OCreate = 0x200
	OTrunc  = 0x400
)

func sysPipe(x *Ctx) (int, int, Errno) {
	rf, wf, err := NewPipe(x)
	if err != EOK {
		return -1, -1, err
	}
	rfd, err := fdAlloc(x.P, rf)
	if err != EOK {
		closeFile(x, rf)
		closeFile(x, wf)
		return -1, -1, err
	}
	wfd, err := fdAlloc(x.P, wf)
	if err != EOK {
		x.P.ofile[rfd] = nil
		closeFile(x, rf)
		closeFile(x, wf)
		return -1, -1, err
	}
	return rfd, wfd, EOK
}

func sysRead(x *Ctx, fd int, dst []byte) (int, Errno) {
	f, err := getFile(x, fd)
	if err != EOK {
		return 0, err
	}
	return x.K.files.Read(x, f, dst)
}

func sysWrite(x *Ctx, fd int, src []byte) (int, Errno) {
	f, err := getFile(x, fd)
	if err != EOK {
		return 0, err
	}
	return x.K.files.Write(x, f, src)
}

func sysClose(x *Ctx, fd int) Errno {
	f, err := getFile(x, fd)
	if err != EOK {
		return err
	}
	x.P.ofile[fd] = nil
	closeFile(x, f)
	return EOK
}

// createInode is the shared engine behind open(O_CREATE), mknod, and
// mkdir: xv6's create(path, type, major, minor). It resolves path's
// parent, fails if the final component already exists as the wrong kind,
// allocates a fresh inode of typ, wires up "."/".." for directories, and
// links it into the parent. Caller must already be inside a transaction.
func createInode(x *Ctx, path string, typ InodeType, major, minor uint16) (*Inode, Errno) {
	it := x.K.itable

	dp, name, err := it.NameiParent(x, path)
	if err != EOK {
		return nil, ENOENT
	}
	it.Lock(x, dp)

	if existing, _, lookErr := it.Dirlookup(x, dp, name); lookErr == EOK {
		it.Unlock(x, dp)
		it.Put(x, dp)
		it.Lock(x, existing)
		if typ == TypeFile && (existing.disk.Type == TypeFile || existing.disk.Type == TypeDevice) {
			it.Unlock(x, existing)
			return existing, EOK
		}
		it.Unlock(x, existing)
		it.Put(x, existing)
		return nil, EEXIST
	}

	ip, err := it.Ialloc(x, typ)
	if err != EOK {
		it.Unlock(x, dp)
		it.Put(x, dp)
		return nil, err
	}
	it.Lock(x, ip)
	ip.disk.Major = major
	ip.disk.Minor = minor
	ip.disk.Nlink = 1
	it.Update(x, ip)

	if typ == TypeDirectory {
		dp.disk.Nlink++
		it.Update(x, dp)
		if err := it.InitDir(x, ip, dp.inum); err != EOK {
			it.Unlock(x, ip)
			it.Put(x, ip)
			it.Unlock(x, dp)
			it.Put(x, dp)
			return nil, err
		}
	}

	if err := it.Dirlink(x, dp, name, ip.inum); err != EOK {
		it.Unlock(x, ip)
		it.Put(x, ip)
		it.Unlock(x, dp)
		it.Put(x, dp)
		return nil, err
	}

	it.Unlock(x, ip)
	it.Unlock(x, dp)
	it.Put(x, dp)
	return ip, EOK
}

func sysOpen(x *Ctx, path string, flags int) (int, Errno) {
	it := x.K.itable
	var ip *Inode
	var oerr Errno

	if flags&OCreate != 0 {
		oerr = it.log.WithTx(x, func() Errno {
			var e Errno
			ip, e = createInode(x, path, TypeFile, 0, 0)
			return e
		})
		if oerr != EOK {
			return -1, oerr
		}
		it.Lock(x, ip)
	} else {
		var nerr Errno
		ip, nerr = it.Namei(x, path)
		if nerr != EOK {
			return -1, ENOENT
		}
		it.Lock(x, ip)
		if ip.disk.Type == TypeDirectory && (flags&OWrOnly != 0 || flags&ORdWr != 0) {
			it.Unlock(x, ip)
			it.Put(x, ip)
			return -1, EISDIR
		}
	}

	f := x.K.files.Alloc(x)
	if f == nil {
		it.Unlock(x, ip)
		it.Put(x, ip)
		return -1, ENFILE
	}

	if ip.disk.Type == TypeDevice {
		dev, ok := x.K.files.devices[ip.disk.Major]
		if !ok {
			closeFile(x, f)
			it.Unlock(x, ip)
			it.Put(x, ip)
			return -1, ENXIO
		}
		f.typ = FdDevice
		f.dev = dev
		f.major, f.minor = ip.disk.Major, ip.disk.Minor
	} else {
		f.typ = FdInode
	}
	f.ip = ip
	f.readable = flags&OWrOnly == 0
	f.writable = flags&OWrOnly != 0 || flags&ORdWr != 0
	f.off = 0

	if flags&OTrunc != 0 && ip.disk.Type == TypeFile {
		it.itrunc(x, ip)
	}
	it.Unlock(x, ip)

	fd, err := fdAlloc(x.P, f)
	if err != EOK {
		closeFile(x, f)
		return -1, err
	}
	return fd, EOK
}

func sysMknod(x *Ctx, path string, major, minor uint16) Errno {
	var err Errno
	x.K.itable.log.WithTx(x, func() Errno {
		ip, e := createInode(x, path, TypeDevice, major, minor)
		err = e
		if e == EOK {
			x.K.itable.Unlock(x, ip)
			x.K.itable.Put(x, ip)
		}
		return e
	})
	return err
}

func sysMkdir(x *Ctx, path string) Errno {
	var err Errno
	x.K.itable.log.WithTx(x, func() Errno {
		ip, e := createInode(x, path, TypeDirectory, 0, 0)
		err = e
		if e == EOK {
			x.K.itable.Unlock(x, ip)
			x.K.itable.Put(x, ip)
		}
		return e
	})
	return err
}

// sysUnlink is spec.md §6's unlink: remove a name from its parent
// directory, decrementing the target's link count. Fails on a non-empty
// directory and on the fixed "."/".." entries, matching xv6's sys_unlink.
func sysUnlink(x *Ctx, path string) Errno {
	it := x.K.itable
	var result Errno

	it.log.WithTx(x, func() Errno {
		dp, name, err := it.NameiParent(x, path)
		if err != EOK {
			result = ENOENT
			return EOK
		}
		it.Lock(x, dp)

		if name == "." || name == ".." {
			it.Unlock(x, dp)
			it.Put(x, dp)
			result = EPERM
			return EOK
		}

		ip, off, lookErr := it.Dirlookup(x, dp, name)
		if lookErr != EOK {
			it.Unlock(x, dp)
			it.Put(x, dp)
			result = ENOENT
			return EOK
		}
		it.Lock(x, ip)

		if ip.disk.Nlink < 1 {
			panic("fs: unlink: nlink < 1")
		}
		if ip.disk.Type == TypeDirectory && !it.IsDirEmpty(x, ip) {
			it.Unlock(x, ip)
			it.Put(x, ip)
			it.Unlock(x, dp)
			it.Put(x, dp)
			result = ENOTEMPTY
			return EOK
		}

		it.Unlink(x, dp, off)
		if ip.disk.Type == TypeDirectory {
			dp.disk.Nlink--
			it.Update(x, dp)
		}
		ip.disk.Nlink--
		it.Update(x, ip)

		it.Unlock(x, ip)
		it.Put(x, ip)
		it.Unlock(x, dp)
		it.Put(x, dp)
		result = EOK
		return EOK
	})

	return result
}

func sysSocket(x *Ctx) (int, Errno) {
	s, err := netstack.Socket()
	if err != nil {
		return -1, EIO
	}
	f, ferr := NewSocketFile(x, s)
	if ferr != EOK {
		s.Close()
		return -1, ferr
	}
	fd, aerr := fdAlloc(x.P, f)
	if aerr != EOK {
		closeFile(x, f)
		return -1, aerr
	}
	return fd, EOK
}

func sysBind(x *Ctx, fd int, addr string) Errno {
	f, err := getFile(x, fd)
	if err != EOK {
		return err
	}
	if f.typ != FdSocket {
		return ENOTSOCK
	}
	port, perr := parsePort(addr)
	if perr != EOK {
		return perr
	}
	s, berr := netstack.Bind(port)
	if berr != nil {
		return EIO
	}
	f.sock.Close()
	f.sock = s
	return EOK
}

func sysConnect(x *Ctx, fd int, addr string) Errno {
	f, err := getFile(x, fd)
	if err != EOK {
		return err
	}
	if f.typ != FdSocket {
		return ENOTSOCK
	}
	s, ok := f.sock.(*netstack.UDPSocket)
	if !ok {
		return EINVAL
	}
	if cerr := s.Connect(addr); cerr != nil {
		return EIO
	}
	return EOK
}

func sysMmap(x *Ctx, hint int64, size uint64, prot PTE, flags, fd int, offset uint32) (uint64, Errno) {
	_ = hint // placement is allocator-chosen, spec.md §4.13; hint is advisory only and ignored
	var f *File
	shared := flags&MapShared != 0
	if fd >= 0 {
		var err Errno
		f, err = getFile(x, fd)
		if err != EOK {
			return 0, err
		}
		f = f.Dup()
	}
	return Mmap(x, size, prot, shared, f, offset)
}

func sysGetenv(x *Ctx, name string, dst []byte) (int, Errno) {
	v, ok := x.P.env[name]
	if !ok {
		return -1, ENOENT
	}
	n := copy(dst, v)
	return n, EOK
}

func sysSetenv(x *Ctx, name, value string, overwrite bool) Errno {
	if _, exists := x.P.env[name]; exists && !overwrite {
		return EOK
	}
	x.P.env[name] = value
	return EOK
}

func sysUnsetenv(x *Ctx, name string) {
	delete(x.P.env, name)
}

func sysListenv(x *Ctx, dst []byte) int {
	var total int
	for k, v := range x.P.env {
		line := k + "=" + v + "\x00"
		if total+len(line) > len(dst) {
			break
		}
		copy(dst[total:], line)
		total += len(line)
	}
	return total
}
