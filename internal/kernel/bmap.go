package kernel

// BlockAlloc is spec.md §4.9: a one-bit-per-block bitmap, BPB bits per
// bitmap block, mutated only inside a transaction (every bit flip and every
// zeroed data block goes through the log).
type BlockAlloc struct {
	dev       uint32
	bmapStart uint32
	size      uint32 // total blocks in the filesystem, bitmap covers [0,size)

	bc  *BufferCache
	log *Log
}

const bitsPerBlock = BSIZE * 8 // BPB, spec.md §4.9

func NewBlockAlloc(dev, bmapStart, size uint32, bc *BufferCache, log *Log) *BlockAlloc {
	return &BlockAlloc{dev: dev, bmapStart: bmapStart, size: size, bc: bc, log: log}
}

func bitBlockFor(ba *BlockAlloc, bn uint32) uint32 {
	return ba.bmapStart + bn/bitsPerBlock
}

// Alloc scans the bitmap for a zero bit, sets it (logged), zeros the data
// block (logged), and returns its block number. Returns (0, ENOSPC) if the
// device is full.
func (ba *BlockAlloc) Alloc(x *Ctx) (uint32, Errno) {
	for bn := uint32(0); bn < ba.size; bn += bitsPerBlock {
		buf := ba.bc.Bread(x, ba.dev, bitBlockFor(ba, bn))
		for bi := uint32(0); bi < bitsPerBlock && bn+bi < ba.size; bi++ {
			m := byte(1) << (bi % 8)
			idx := bi / 8
			if buf.data[idx]&m == 0 {
				buf.data[idx] |= m
				ba.log.Write(x, buf)
				ba.bc.Brelse(x, buf)

				dataBuf := ba.bc.Bread(x, ba.dev, bn+bi)
				for i := range dataBuf.data {
					dataBuf.data[i] = 0
				}
				ba.log.Write(x, dataBuf)
				ba.bc.Brelse(x, dataBuf)
				return bn + bi, EOK
			}
		}
		ba.bc.Brelse(x, buf)
	}
	return 0, ENOSPC
}

// Free clears bn's bit (logged). Freeing an already-free block is a
// programmer error (spec.md §7 tier 1) and panics.
func (ba *BlockAlloc) Free(x *Ctx, bn uint32) {
	buf := ba.bc.Bread(x, ba.dev, bitBlockFor(ba, bn))
	bi := bn % bitsPerBlock
	m := byte(1) << (bi % 8)
	idx := bi / 8
	if buf.data[idx]&m == 0 {
		panic("bmap: double free of block")
	}
	buf.data[idx] &^= m
	ba.log.Write(x, buf)
	ba.bc.Brelse(x, buf)
}
