// Command mkfs builds an empty xv6go filesystem image matching spec.md §6's
// on-disk layout exactly: a superblock at block 1, a log region, an inode
// region, a free-block bitmap, and a data region holding nothing but the
// root directory's "."/".." entries. Grounded on
// original_source/mkfs/src/main.rs, adapted to encoding/binary for the
// little-endian packed structures spec.md §6 specifies — but kept as a
// standalone tool (it does not import internal/kernel) the way the
// original mkfs is a separate host-side build step, not kernel code.
package main

import (
	"encoding/binary"
	"flag"
	"fmt"
	"log"
	"os"
)

const (
	bsize       = 4096
	diskInodeSz = 64 // Type(2) Major(2) Minor(2) Nlink(2) Size(4) + 13 addrs*4
	dirEntSz    = 32 // Inum(2) + Name(30)
	dirNameSz   = 30
	ndirect     = 11
	naddrs      = ndirect + 2
	ipb         = bsize / diskInodeSz
	bpb         = bsize * 8

	typeEmpty     = 0
	typeDirectory = 1

	rootInum = 1
)

type superblock struct {
	magic      uint32
	size       uint32
	nblocks    uint32
	ninodes    uint32
	nlog       uint32
	logStart   uint32
	inodeStart uint32
	bmapStart  uint32
}

func (sb superblock) encode() []byte {
	b := make([]byte, bsize)
	binary.LittleEndian.PutUint32(b[0:4], sb.magic)
	binary.LittleEndian.PutUint32(b[4:8], sb.size)
	binary.LittleEndian.PutUint32(b[8:12], sb.nblocks)
	binary.LittleEndian.PutUint32(b[12:16], sb.ninodes)
	binary.LittleEndian.PutUint32(b[16:20], sb.nlog)
	binary.LittleEndian.PutUint32(b[20:24], sb.logStart)
	binary.LittleEndian.PutUint32(b[24:28], sb.inodeStart)
	binary.LittleEndian.PutUint32(b[28:32], sb.bmapStart)
	return b
}

// fsImage is the host-side writer mkfs builds the image through: straight
// positioned writes to a regular file, one block at a time, exactly the
// wsect/rsect pair original_source/mkfs/src/main.rs uses.
type fsImage struct {
	f         *os.File
	sb        superblock
	freeInode uint32
	freeBlock uint32
}

func (fi *fsImage) wsect(bn uint32, buf []byte) {
	if len(buf) != bsize {
		panic("mkfs: wsect: short block")
	}
	if _, err := fi.f.WriteAt(buf, int64(bn)*bsize); err != nil {
		log.Fatalf("mkfs: wsect %d: %v", bn, err)
	}
}

func (fi *fsImage) rsect(bn uint32) []byte {
	buf := make([]byte, bsize)
	if _, err := fi.f.ReadAt(buf, int64(bn)*bsize); err != nil {
		log.Fatalf("mkfs: rsect %d: %v", bn, err)
	}
	return buf
}

func (fi *fsImage) inodeBlock(inum uint32) uint32 {
	return fi.sb.inodeStart + inum/ipb
}

type diskInode struct {
	typ        uint16
	major      uint16
	minor      uint16
	nlink      uint16
	size       uint32
	addrs      [naddrs]uint32
}

func (d diskInode) encode() []byte {
	b := make([]byte, diskInodeSz)
	binary.LittleEndian.PutUint16(b[0:2], d.typ)
	binary.LittleEndian.PutUint16(b[2:4], d.major)
	binary.LittleEndian.PutUint16(b[4:6], d.minor)
	binary.LittleEndian.PutUint16(b[6:8], d.nlink)
	binary.LittleEndian.PutUint32(b[8:12], d.size)
	off := 12
	for _, a := range d.addrs {
		binary.LittleEndian.PutUint32(b[off:off+4], a)
		off += 4
	}
	return b
}

func decodeInode(b []byte) diskInode {
	var d diskInode
	d.typ = binary.LittleEndian.Uint16(b[0:2])
	d.major = binary.LittleEndian.Uint16(b[2:4])
	d.minor = binary.LittleEndian.Uint16(b[4:6])
	d.nlink = binary.LittleEndian.Uint16(b[6:8])
	d.size = binary.LittleEndian.Uint32(b[8:12])
	off := 12
	for i := range d.addrs {
		d.addrs[i] = binary.LittleEndian.Uint32(b[off : off+4])
		off += 4
	}
	return d
}

func (fi *fsImage) winode(inum uint32, d diskInode) {
	bn := fi.inodeBlock(inum)
	buf := fi.rsect(bn)
	off := (inum % ipb) * diskInodeSz
	copy(buf[off:off+diskInodeSz], d.encode())
	fi.wsect(bn, buf)
}

func (fi *fsImage) rinode(inum uint32) diskInode {
	bn := fi.inodeBlock(inum)
	buf := fi.rsect(bn)
	off := (inum % ipb) * diskInodeSz
	return decodeInode(buf[off : off+diskInodeSz])
}

func (fi *fsImage) ialloc(typ uint16) uint32 {
	inum := fi.freeInode
	fi.freeInode++
	fi.winode(inum, diskInode{typ: typ, nlink: 1})
	return inum
}

// iappend appends src to inum's data, allocating direct blocks on demand.
// Indirect blocks are never needed for what mkfs writes (a few dir
// entries), so — unlike the kernel's bmap — this only handles NDIRECT.
func (fi *fsImage) iappend(inum uint32, src []byte) {
	d := fi.rinode(inum)
	off := d.size
	n := uint32(len(src))
	var srcOff uint32
	for n > 0 {
		fbn := off / bsize
		if fbn >= ndirect {
			log.Fatalf("mkfs: iappend: file grew past direct blocks (inum %d)", inum)
		}
		if d.addrs[fbn] == 0 {
			d.addrs[fbn] = fi.freeBlock
			fi.freeBlock++
		}
		bn := d.addrs[fbn]
		n1 := n
		if room := (fbn+1)*bsize - off; n1 > room {
			n1 = room
		}
		buf := fi.rsect(bn)
		copy(buf[off-fbn*bsize:], src[srcOff:srcOff+n1])
		fi.wsect(bn, buf)
		n -= n1
		off += n1
		srcOff += n1
	}
	d.size = off
	fi.winode(inum, d)
}

func encodeDirEnt(inum uint16, name string) []byte {
	b := make([]byte, dirEntSz)
	binary.LittleEndian.PutUint16(b[0:2], inum)
	copy(b[2:2+dirNameSz], name)
	return b
}

// balloc marks every block below used as allocated in the bitmap,
// spanning metadata, the bitmap itself, and the root directory's data
// blocks — nothing Alloc hands out later may overlap them.
func (fi *fsImage) balloc(used uint32) {
	buf := make([]byte, bsize)
	for i := uint32(0); i < used; i++ {
		buf[i/8] |= 1 << (i % 8)
	}
	fi.wsect(fi.sb.bmapStart, buf)
}

func main() {
	imgPath := flag.String("img", "xv6.img", "output filesystem image path")
	sizeBlocks := flag.Uint("size", 4096, "total image size, in blocks")
	ninodes := flag.Uint("ninodes", 200, "number of inodes")
	nlog := flag.Uint("nlog", 33, "log region size, in blocks (matches kconfig.Default().LogSizeBlocks)")
	flag.Parse()

	size := uint32(*sizeBlocks)
	nInodeBlocks := uint32(*ninodes)/ipb + 1
	nBitmapBlocks := size/bpb + 1
	nMeta := 2 + uint32(*nlog) + nInodeBlocks + nBitmapBlocks
	if nMeta >= size {
		log.Fatalf("mkfs: image too small: %d blocks, need > %d for metadata alone", size, nMeta)
	}

	sb := superblock{
		magic:      0x10203040,
		size:       size,
		nblocks:    size - nMeta,
		ninodes:    uint32(*ninodes),
		nlog:       uint32(*nlog),
		logStart:   2,
		inodeStart: 2 + uint32(*nlog),
		bmapStart:  2 + uint32(*nlog) + nInodeBlocks,
	}

	f, err := os.OpenFile(*imgPath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		log.Fatalf("mkfs: %v", err)
	}
	defer f.Close()
	if err := f.Truncate(int64(size) * bsize); err != nil {
		log.Fatalf("mkfs: truncate: %v", err)
	}

	fi := &fsImage{f: f, sb: sb, freeInode: 1, freeBlock: nMeta}

	fi.wsect(1, sb.encode())

	rootIno := fi.ialloc(typeDirectory)
	if rootIno != rootInum {
		log.Fatalf("mkfs: root inode allocated as %d, want %d", rootIno, rootInum)
	}
	fi.iappend(rootIno, encodeDirEnt(uint16(rootIno), "."))
	fi.iappend(rootIno, encodeDirEnt(uint16(rootIno), ".."))

	fi.balloc(fi.freeBlock)

	fmt.Printf("mkfs: wrote %s: %d blocks, %d inodes, log %d..%d, inodes %d..%d, bitmap at %d\n",
		*imgPath, sb.size, sb.ninodes, sb.logStart, sb.inodeStart-1, sb.inodeStart, sb.bmapStart-1, sb.bmapStart)
}
