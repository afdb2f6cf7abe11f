package kernel

// dir.go implements directory contents as a flat array of DirEnt within an
// inode of TypeDirectory, exactly spec.md §4.10's layout: a linear scan,
// nothing indexed. dp must already be locked by the caller in every
// function here.

// Dirlookup scans dp (which must be a directory) for name, returning the
// looked-up inode (Get'd but not locked) and its byte offset within dp.
func (it *InodeTable) Dirlookup(x *Ctx, dp *Inode, name string) (*Inode, uint32, Errno) {
	if dp.disk.Type != TypeDirectory {
		panic("dir: Dirlookup: not a directory")
	}
	var buf [DirEntSize]byte
	for off := uint32(0); off < dp.disk.Size; off += DirEntSize {
		n, err := it.Readi(x, dp, buf[:], off, DirEntSize)
		if err != EOK || n != DirEntSize {
			panic("dir: Dirlookup: short read")
		}
		de := decodeDirEnt(buf[:])
		if de.Inum == 0 {
			continue
		}
		if dirEntName(de) == name {
			return it.Get(x, dp.dev, uint32(de.Inum)), off, EOK
		}
	}
	return nil, 0, ENOENT
}

// Dirlink adds a (name, inum) entry to directory dp, reusing the first
// empty slot if one exists and otherwise appending. Fails with EEXIST if
// name is already present.
func (it *InodeTable) Dirlink(x *Ctx, dp *Inode, name string, inum uint32) Errno {
	if existing, _, err := it.Dirlookup(x, dp, name); err == EOK {
		it.Put(x, existing)
		return EEXIST
	}

	var buf [DirEntSize]byte
	off := uint32(0)
	for ; off < dp.disk.Size; off += DirEntSize {
		n, err := it.Readi(x, dp, buf[:], off, DirEntSize)
		if err != EOK || n != DirEntSize {
			panic("dir: Dirlink: short read")
		}
		if decodeDirEnt(buf[:]).Inum == 0 {
			break
		}
	}

	var de DirEnt
	de.Inum = uint16(inum)
	setDirEntName(&de, name)
	encodeDirEnt(de, buf[:])
	if n, err := it.Writei(x, dp, buf[:], off, DirEntSize); err != EOK || n != DirEntSize {
		panic("dir: Dirlink: short write")
	}
	return EOK
}

// Unlink clears the entry at off within dp, matching spec.md §4.10's
// directory removal (the freed slot becomes available to a later Dirlink).
func (it *InodeTable) Unlink(x *Ctx, dp *Inode, off uint32) {
	var zero [DirEntSize]byte
	if n, err := it.Writei(x, dp, zero[:], off, DirEntSize); err != EOK || n != DirEntSize {
		panic("dir: Unlink: short write")
	}
}

// IsDirEmpty reports whether dp (other than "." and "..") has no entries,
// spec.md §4.10's precondition for rmdir.
func (it *InodeTable) IsDirEmpty(x *Ctx, dp *Inode) bool {
	var buf [DirEntSize]byte
	for off := uint32(2 * DirEntSize); off < dp.disk.Size; off += DirEntSize {
		n, err := it.Readi(x, dp, buf[:], off, DirEntSize)
		if err != EOK || n != DirEntSize {
			panic("dir: IsDirEmpty: short read")
		}
		if decodeDirEnt(buf[:]).Inum != 0 {
			return false
		}
	}
	return true
}

// InitDir writes the "." and ".." entries a freshly allocated directory
// inode must start with, "." pointing at itself and ".." at parent.
func (it *InodeTable) InitDir(x *Ctx, dp *Inode, parentInum uint32) Errno {
	if err := it.Dirlink(x, dp, ".", dp.inum); err != EOK {
		return err
	}
	if err := it.Dirlink(x, dp, "..", parentInum); err != EOK {
		return err
	}
	return EOK
}
