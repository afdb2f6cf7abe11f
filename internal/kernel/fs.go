package kernel

const inodesPerBlock = BSIZE / diskInodeSize // IPB

// Inode is spec.md §3's in-memory inode: identity plus refcount under the
// table lock, cached DiskInode plus validity under a per-inode sleep lock.
type Inode struct {
	dev   uint32
	inum  uint32
	index int

	ref   int // guarded by InodeTable.lock
	lock  *SleepLock
	valid bool
	disk  DiskInode
}

// InodeTable is spec.md §4.10's fixed-size in-memory inode table.
type InodeTable struct {
	lock   *SpinLock
	inodes [NInode]*Inode

	dev uint32
	sb  Superblock

	bc  *BufferCache
	log *Log
	ba  *BlockAlloc
}

func NewInodeTable(dev uint32, sb Superblock, bc *BufferCache, log *Log, ba *BlockAlloc) *InodeTable {
	it := &InodeTable{lock: NewSpinLock("itable"), dev: dev, sb: sb, bc: bc, log: log, ba: ba}
	for i := range it.inodes {
		it.inodes[i] = &Inode{index: i, lock: newSleepLock("inode")}
	}
	return it
}

func inodeBlockFor(it *InodeTable, inum uint32) uint32 {
	return it.sb.InodeStart + inum/inodesPerBlock
}

// Get finds or recycles a table slot for (dev, inum) and bumps its
// refcount without touching disk (spec.md §4.10).
func (it *InodeTable) Get(x *Ctx, dev, inum uint32) *Inode {
	it.lock.Acquire(x.C)
	defer it.lock.Release(x.C)

	var free *Inode
	for _, ip := range it.inodes {
		if ip.ref > 0 && ip.dev == dev && ip.inum == inum {
			ip.ref++
			return ip
		}
		if free == nil && ip.ref == 0 {
			free = ip
		}
	}
	if free == nil {
		panic("fs: no free inodes")
	}
	free.dev = dev
	free.inum = inum
	free.ref = 1
	free.valid = false
	return free
}

// Lock acquires the per-inode sleep lock and, on first lock, reads the
// on-disk inode in.
func (it *InodeTable) Lock(x *Ctx, ip *Inode) {
	ip.lock.Lock(x)
	if !ip.valid {
		b := it.bc.Bread(x, ip.dev, inodeBlockFor(it, ip.inum))
		off := (ip.inum % inodesPerBlock) * diskInodeSize
		ip.disk = decodeDiskInode(b.data[off : off+diskInodeSize])
		it.bc.Brelse(x, b)
		ip.valid = true
		if ip.disk.Type == TypeEmpty {
			panic("fs: Lock: no such inode on disk")
		}
	}
}

func (it *InodeTable) Unlock(x *Ctx, ip *Inode) {
	ip.lock.Unlock(x)
}

// Update writes ip's cached DiskInode back, logged.
func (it *InodeTable) Update(x *Ctx, ip *Inode) {
	b := it.bc.Bread(x, ip.dev, inodeBlockFor(it, ip.inum))
	off := (ip.inum % inodesPerBlock) * diskInodeSize
	encodeDiskInode(ip.disk, b.data[off:off+diskInodeSize])
	it.log.Write(x, b)
	it.bc.Brelse(x, b)
}

// Put drops a reference; if it was the last one and the inode has no
// links, the file's contents are truncated and the disk inode marked Empty
// (spec.md §4.10, done inside its own transaction per spec.md §7).
func (it *InodeTable) Put(x *Ctx, ip *Inode) {
	it.lock.Acquire(x.C)
	if ip.ref == 1 && ip.valid && ip.disk.Nlink == 0 {
		it.lock.Release(x.C)

		it.log.WithTx(x, func() Errno {
			it.Lock(x, ip)
			it.itrunc(x, ip)
			ip.disk.Type = TypeEmpty
			it.Update(x, ip)
			ip.valid = false
			it.Unlock(x, ip)
			return EOK
		})

		it.lock.Acquire(x.C)
	}
	ip.ref--
	it.lock.Release(x.C)
}

// Dup increments ip's refcount (used when sharing an inode reference, e.g.
// dup'd fds or a second path component resolution).
func (it *InodeTable) Dup(x *Ctx, ip *Inode) *Inode {
	it.lock.Acquire(x.C)
	ip.ref++
	it.lock.Release(x.C)
	return ip
}

// Ialloc scans the on-disk inode table for a free (Empty) slot, marks it
// with the requested type (logged), and returns a fresh in-memory
// reference (spec.md §4.10).
func (it *InodeTable) Ialloc(x *Ctx, typ InodeType) (*Inode, Errno) {
	for inum := uint32(1); inum < it.sb.NInodes; inum++ {
		b := it.bc.Bread(x, it.dev, inodeBlockFor(it, inum))
		off := (inum % inodesPerBlock) * diskInodeSize
		d := decodeDiskInode(b.data[off : off+diskInodeSize])
		if d.Type == TypeEmpty {
			d = DiskInode{Type: typ}
			encodeDiskInode(d, b.data[off:off+diskInodeSize])
			it.log.Write(x, b)
			it.bc.Brelse(x, b)
			return it.Get(x, it.dev, inum), EOK
		}
		it.bc.Brelse(x, b)
	}
	return nil, ENOSPC
}

// --- block map ---

// bmap returns the data block number for logical block index bn within
// ip, lazily allocating indirect/doubly-indirect/data blocks as needed
// (each allocation is itself a logged write of the parent block, spec.md
// §4.10).
func (it *InodeTable) bmap(x *Ctx, ip *Inode, bn uint32) (uint32, Errno) {
	if bn < NDirect {
		if ip.disk.Addrs[bn] == 0 {
			a, err := it.ba.Alloc(x)
			if err != EOK {
				return 0, err
			}
			ip.disk.Addrs[bn] = a
		}
		return ip.disk.Addrs[bn], EOK
	}
	bn -= NDirect
	if bn < NIndirect {
		return it.bmapIndirect(x, &ip.disk.Addrs[NDirect], bn)
	}
	bn -= NIndirect
	if bn < NIndirect2 {
		outer := bn / NIndirect
		inner := bn % NIndirect
		outerBlk := &ip.disk.Addrs[NDirect+1]
		if *outerBlk == 0 {
			a, err := it.ba.Alloc(x)
			if err != EOK {
				return 0, err
			}
			*outerBlk = a
		}
		b := it.bc.Bread(x, ip.dev, *outerBlk)
		entries := decodeU32Slice(b.data[:], NIndirect)
		addr := entries[outer]
		if addr == 0 {
			a, err := it.ba.Alloc(x)
			if err != EOK {
				it.bc.Brelse(x, b)
				return 0, err
			}
			entries[outer] = a
			encodeU32(b.data[:], entries)
			it.log.Write(x, b)
			addr = a
		}
		it.bc.Brelse(x, b)
		return it.bmapIndirect(x, &addr, inner)
	}
	panic("fs: bmap: offset out of range")
}

// bmapIndirect resolves (allocating if needed) entry idx of the indirect
// block whose own block number lives at *indirectAddr.
func (it *InodeTable) bmapIndirect(x *Ctx, indirectAddr *uint32, idx uint32) (uint32, Errno) {
	if *indirectAddr == 0 {
		a, err := it.ba.Alloc(x)
		if err != EOK {
			return 0, err
		}
		*indirectAddr = a
	}
	b := it.bc.Bread(x, it.dev, *indirectAddr)
	entries := decodeU32Slice(b.data[:], NIndirect)
	addr := entries[idx]
	if addr == 0 {
		a, err := it.ba.Alloc(x)
		if err != EOK {
			it.bc.Brelse(x, b)
			return 0, err
		}
		entries[idx] = a
		encodeU32(b.data[:], entries)
		it.log.Write(x, b)
		addr = a
	}
	it.bc.Brelse(x, b)
	return addr, EOK
}

// itrunc frees every data block reachable from ip (direct, indirect,
// doubly-indirect), then the index blocks themselves, then zeros size.
func (it *InodeTable) itrunc(x *Ctx, ip *Inode) {
	for i := 0; i < NDirect; i++ {
		if ip.disk.Addrs[i] != 0 {
			it.ba.Free(x, ip.disk.Addrs[i])
			ip.disk.Addrs[i] = 0
		}
	}
	if ip.disk.Addrs[NDirect] != 0 {
		it.freeIndirect(x, ip.disk.Addrs[NDirect])
		ip.disk.Addrs[NDirect] = 0
	}
	if ip.disk.Addrs[NDirect+1] != 0 {
		outerAddr := ip.disk.Addrs[NDirect+1]
		b := it.bc.Bread(x, ip.dev, outerAddr)
		entries := decodeU32Slice(b.data[:], NIndirect)
		it.bc.Brelse(x, b)
		for _, e := range entries {
			if e != 0 {
				it.freeIndirect(x, e)
			}
		}
		it.ba.Free(x, outerAddr)
		ip.disk.Addrs[NDirect+1] = 0
	}
	ip.disk.Size = 0
	it.Update(x, ip)
}

func (it *InodeTable) freeIndirect(x *Ctx, addr uint32) {
	b := it.bc.Bread(x, it.dev, addr)
	entries := decodeU32Slice(b.data[:], NIndirect)
	it.bc.Brelse(x, b)
	for _, e := range entries {
		if e != 0 {
			it.ba.Free(x, e)
		}
	}
	it.ba.Free(x, addr)
}

// Readi reads n bytes starting at offset into dst (spec.md §4.10).
func (it *InodeTable) Readi(x *Ctx, ip *Inode, dst []byte, offset, n uint32) (uint32, Errno) {
	if offset > ip.disk.Size {
		return 0, EINVAL
	}
	if offset+n > ip.disk.Size {
		n = ip.disk.Size - offset
	}
	var total uint32
	for total < n {
		bn, err := it.bmap(x, ip, offset/BSIZE)
		if err != EOK {
			return total, err
		}
		b := it.bc.Bread(x, ip.dev, bn)
		m := min32(n-total, BSIZE-offset%BSIZE)
		copy(dst[total:total+m], b.data[offset%BSIZE:offset%BSIZE+m])
		it.bc.Brelse(x, b)
		total += m
		offset += m
	}
	return total, EOK
}

// Writei writes n bytes from src at offset (spec.md §4.10 / §9's resolved
// open question: extending writes are permitted, writes starting beyond
// current size are rejected).
func (it *InodeTable) Writei(x *Ctx, ip *Inode, src []byte, offset, n uint32) (uint32, Errno) {
	if offset > ip.disk.Size {
		return 0, EINVAL
	}
	if uint64(offset)+uint64(n) > uint64(MaxFile)*BSIZE {
		return 0, EFBIG
	}
	var total uint32
	for total < n {
		bn, err := it.bmap(x, ip, offset/BSIZE)
		if err != EOK {
			break
		}
		b := it.bc.Bread(x, ip.dev, bn)
		m := min32(n-total, BSIZE-offset%BSIZE)
		copy(b.data[offset%BSIZE:offset%BSIZE+m], src[total:total+m])
		it.log.Write(x, b)
		it.bc.Brelse(x, b)
		total += m
		offset += m
	}
	if offset > ip.disk.Size {
		ip.disk.Size = offset
	}
	it.Update(x, ip)
	return total, EOK
}

func min32(a, b uint32) uint32 {
	if a < b {
		return a
	}
	return b
}
