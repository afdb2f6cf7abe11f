package kernel

// FileType tags which variant of the spec.md §4.12 File union a *File
// holds: file/dir inode, pipe endpoint, console device, or socket.
type FileType int

const (
	FdNone FileType = iota
	FdInode
	FdPipe
	FdDevice
	FdSocket
)

// File is spec.md §4.12's single tagged struct standing in for what a
// C union + switch would do: exactly one of ip/pipe/sock is meaningful,
// selected by typ.
type File struct {
	typ      FileType
	ref      int // guarded by FileTable.lock
	readable bool
	writable bool

	ip  *Inode
	off uint32 // guarded by offLock; inode files only

	pipe *Pipe

	major, minor uint16
	dev          Device // console or other character device, selected by major

	sock Socket

	offLock *SpinLock
}

// Device is the boundary a character-special File forwards Read/Write to;
// internal/console is the one implementation wired in at boot.
type Device interface {
	Read(x *Ctx, dst []byte) (int, Errno)
	Write(x *Ctx, src []byte) (int, Errno)
}

// FileTable is spec.md §4.12's system-wide open file table.
type FileTable struct {
	lock  *SpinLock
	files [NFile]*File

	it  *InodeTable
	log *Log

	devices map[uint16]Device // major number -> device
}

func NewFileTable(it *InodeTable, log *Log) *FileTable {
	ft := &FileTable{lock: NewSpinLock("filetable"), it: it, log: log, devices: map[uint16]Device{}}
	for i := range ft.files {
		ft.files[i] = &File{offLock: NewSpinLock("file.off")}
	}
	return ft
}

func (ft *FileTable) RegisterDevice(major uint16, dev Device) {
	ft.devices[major] = dev
}

// Alloc finds an unreferenced slot and marks it referenced; the caller
// fills in the rest before anyone else can see it (callers always do this
// before releasing the returned file to any fd table).
func (ft *FileTable) Alloc(x *Ctx) *File {
	ft.lock.Acquire(x.C)
	defer ft.lock.Release(x.C)
	for _, f := range ft.files {
		if f.ref == 0 {
			f.ref = 1
			return f
		}
	}
	return nil
}

// Dup increments a file's refcount, used by fork's fd-table copy and dup(2).
func (f *File) Dup() *File {
	f.ref++
	return f
}

// Close drops a reference, releasing the underlying resource once it
// reaches zero (spec.md §4.12).
func (ft *FileTable) Close(x *Ctx, f *File) {
	ft.lock.Acquire(x.C)
	f.ref--
	if f.ref > 0 {
		ft.lock.Release(x.C)
		return
	}
	typ, ip, pipe, writable := f.typ, f.ip, f.pipe, f.writable
	f.typ = FdNone
	ft.lock.Release(x.C)

	switch typ {
	case FdInode, FdDevice:
		if ip != nil {
			ft.it.Lock(x, ip)
			ft.it.Unlock(x, ip)
			ft.it.Put(x, ip)
		}
	case FdPipe:
		pipe.CloseEnd(x, writable)
	case FdSocket:
		f.sock.Close()
	}
}

func closeFile(x *Ctx, f *File) { x.K.files.Close(x, f) }

// Read dispatches on f's type (spec.md §4.12).
func (ft *FileTable) Read(x *Ctx, f *File, dst []byte) (int, Errno) {
	if !f.readable {
		return 0, EBADF
	}
	switch f.typ {
	case FdPipe:
		return f.pipe.Read(x, dst)
	case FdDevice:
		return f.dev.Read(x, dst)
	case FdSocket:
		return f.sock.Read(x, dst)
	case FdInode:
		ft.it.Lock(x, f.ip)
		f.offLock.Acquire(x.C)
		n, err := ft.it.Readi(x, f.ip, dst, f.off, uint32(len(dst)))
		if err == EOK {
			f.off += n
		}
		f.offLock.Release(x.C)
		ft.it.Unlock(x, f.ip)
		return int(n), err
	default:
		panic("file: Read: bad file type")
	}
}

// Write dispatches on f's type, wrapping inode writes in their own
// transaction per spec.md §4.12, chunked so a single write never exceeds
// what one transaction can log (the same reason xv6's filewrite loops).
func (ft *FileTable) Write(x *Ctx, f *File, src []byte) (int, Errno) {
	if !f.writable {
		return 0, EBADF
	}
	switch f.typ {
	case FdPipe:
		return f.pipe.Write(x, src)
	case FdDevice:
		return f.dev.Write(x, src)
	case FdSocket:
		return f.sock.Write(x, src)
	case FdInode:
		maxPerTx := ((MaxOpBlocks - 4) / 2) * BSIZE
		var total int
		for total < len(src) {
			n := len(src) - total
			if n > maxPerTx {
				n = maxPerTx
			}
			var written uint32
			var werr Errno
			ft.log.WithTx(x, func() Errno {
				ft.it.Lock(x, f.ip)
				f.offLock.Acquire(x.C)
				written, werr = ft.it.Writei(x, f.ip, src[total:total+n], f.off, uint32(n))
				if werr == EOK {
					f.off += written
				}
				f.offLock.Release(x.C)
				ft.it.Unlock(x, f.ip)
				return werr
			})
			if werr != EOK {
				return total, werr
			}
			total += int(written)
			if int(written) != n {
				break
			}
		}
		return total, EOK
	default:
		panic("file: Write: bad file type")
	}
}

func fileReadAt(x *Ctx, f *File, dst []byte, offset uint32) (uint32, Errno) {
	x.K.itable.Lock(x, f.ip)
	n, err := x.K.itable.Readi(x, f.ip, dst, offset, uint32(len(dst)))
	x.K.itable.Unlock(x, f.ip)
	return n, err
}

func fileWriteAt(x *Ctx, f *File, src []byte, offset uint32) {
	x.K.log.WithTx(x, func() Errno {
		x.K.itable.Lock(x, f.ip)
		_, err := x.K.itable.Writei(x, f.ip, src, offset, uint32(len(src)))
		x.K.itable.Unlock(x, f.ip)
		return err
	})
}
