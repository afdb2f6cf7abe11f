package kernel

import "encoding/binary"

// ondisk.go holds the little-endian, fixed-width codecs for every on-disk
// structure spec.md §6 names. Nothing here sleeps or touches the buffer
// cache; callers pass in exactly one block's worth of bytes.

const MagicSuperblock = uint32(0x10203040)

// Superblock is spec.md §6's fixed 32-byte header at block 1.
type Superblock struct {
	Magic      uint32
	Size       uint32 // total blocks in the filesystem image
	NBlocks    uint32 // data blocks
	NInodes    uint32
	NLog       uint32
	LogStart   uint32
	InodeStart uint32
	BmapStart  uint32
}

const superblockSize = 32

func decodeSuperblock(b []byte) Superblock {
	return Superblock{
		Magic:      binary.LittleEndian.Uint32(b[0:4]),
		Size:       binary.LittleEndian.Uint32(b[4:8]),
		NBlocks:    binary.LittleEndian.Uint32(b[8:12]),
		NInodes:    binary.LittleEndian.Uint32(b[12:16]),
		NLog:       binary.LittleEndian.Uint32(b[16:20]),
		LogStart:   binary.LittleEndian.Uint32(b[20:24]),
		InodeStart: binary.LittleEndian.Uint32(b[24:28]),
		BmapStart:  binary.LittleEndian.Uint32(b[28:32]),
	}
}

func encodeSuperblock(sb Superblock, b []byte) {
	binary.LittleEndian.PutUint32(b[0:4], sb.Magic)
	binary.LittleEndian.PutUint32(b[4:8], sb.Size)
	binary.LittleEndian.PutUint32(b[8:12], sb.NBlocks)
	binary.LittleEndian.PutUint32(b[12:16], sb.NInodes)
	binary.LittleEndian.PutUint32(b[16:20], sb.NLog)
	binary.LittleEndian.PutUint32(b[20:24], sb.LogStart)
	binary.LittleEndian.PutUint32(b[24:28], sb.InodeStart)
	binary.LittleEndian.PutUint32(b[28:32], sb.BmapStart)
}

func decodeLogHeader(b []byte) logHeader {
	var h logHeader
	h.n = int32(binary.LittleEndian.Uint32(b[0:4]))
	off := 4
	for i := 0; i < LogSize; i++ {
		h.blocknos[i] = int32(binary.LittleEndian.Uint32(b[off : off+4]))
		off += 4
	}
	return h
}

func encodeLogHeader(h logHeader, b []byte) {
	binary.LittleEndian.PutUint32(b[0:4], uint32(h.n))
	off := 4
	for i := 0; i < LogSize; i++ {
		binary.LittleEndian.PutUint32(b[off:off+4], uint32(h.blocknos[i]))
		off += 4
	}
}

// InodeType is spec.md §3's DiskInode.type.
type InodeType uint16

const (
	TypeEmpty InodeType = iota
	TypeDirectory
	TypeFile
	TypeDevice
)

// DiskInode is spec.md §3/§6's packed 64-byte on-disk inode: 11 direct
// block numbers, one indirect, one doubly-indirect.
type DiskInode struct {
	Type  InodeType
	Major uint16
	Minor uint16
	Nlink uint16
	Size  uint32
	Addrs [NDirect + 2]uint32
}

const diskInodeSize = 64

func decodeDiskInode(b []byte) DiskInode {
	var d DiskInode
	d.Type = InodeType(binary.LittleEndian.Uint16(b[0:2]))
	d.Major = binary.LittleEndian.Uint16(b[2:4])
	d.Minor = binary.LittleEndian.Uint16(b[4:6])
	d.Nlink = binary.LittleEndian.Uint16(b[6:8])
	d.Size = binary.LittleEndian.Uint32(b[8:12])
	off := 12
	for i := range d.Addrs {
		d.Addrs[i] = binary.LittleEndian.Uint32(b[off : off+4])
		off += 4
	}
	return d
}

func encodeDiskInode(d DiskInode, b []byte) {
	binary.LittleEndian.PutUint16(b[0:2], uint16(d.Type))
	binary.LittleEndian.PutUint16(b[2:4], d.Major)
	binary.LittleEndian.PutUint16(b[4:6], d.Minor)
	binary.LittleEndian.PutUint16(b[6:8], d.Nlink)
	binary.LittleEndian.PutUint32(b[8:12], d.Size)
	off := 12
	for i := range d.Addrs {
		binary.LittleEndian.PutUint32(b[off:off+4], d.Addrs[i])
		off += 4
	}
}

// DirEnt is spec.md §3/§6's 32-byte directory entry.
type DirEnt struct {
	Inum uint16
	Name [DirNameSize]byte
}

func decodeDirEnt(b []byte) DirEnt {
	var d DirEnt
	d.Inum = binary.LittleEndian.Uint16(b[0:2])
	copy(d.Name[:], b[2:2+DirNameSize])
	return d
}

func encodeDirEnt(d DirEnt, b []byte) {
	binary.LittleEndian.PutUint16(b[0:2], d.Inum)
	copy(b[2:2+DirNameSize], d.Name[:])
}

func dirEntName(d DirEnt) string {
	n := 0
	for n < DirNameSize && d.Name[n] != 0 {
		n++
	}
	return string(d.Name[:n])
}

func setDirEntName(d *DirEnt, name string) {
	for i := range d.Name {
		d.Name[i] = 0
	}
	copy(d.Name[:], name)
}

func encodeU32(b []byte, indirectEntries []uint32) {
	off := 0
	for _, v := range indirectEntries {
		binary.LittleEndian.PutUint32(b[off:off+4], v)
		off += 4
	}
}

func decodeU32Slice(b []byte, n int) []uint32 {
	out := make([]uint32, n)
	off := 0
	for i := 0; i < n; i++ {
		out[i] = binary.LittleEndian.Uint32(b[off : off+4])
		off += 4
	}
	return out
}
