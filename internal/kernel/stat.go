package kernel

// Stat is spec.md §6's fstat(2) result, the in-memory fields of a
// DiskInode a user process is allowed to see.
type Stat struct {
	Dev   uint32
	Inum  uint32
	Type  InodeType
	Nlink uint16
	Size  uint32
}

const statSize = 20

func encodeStat(s Stat, b []byte) {
	putU32(b[0:4], s.Dev)
	putU32(b[4:8], s.Inum)
	putU32(b[8:12], uint32(s.Type))
	putU32(b[12:16], uint32(s.Nlink))
	putU32(b[16:20], s.Size)
}

func putU32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}
