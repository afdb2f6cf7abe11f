// Package blockdev implements the VirtIO block boundary spec.md §1 calls
// out as an external collaborator: kernel.BlockDevice backed by a host
// file, read and written with positioned I/O so no shared file cursor is
// ever touched concurrently by two callers.
package blockdev

import (
	"context"
	"fmt"
	"os"

	"golang.org/x/sync/semaphore"
	"golang.org/x/sys/unix"
)

// File is a kernel.BlockDevice backed by a single regular host file,
// addressed by (dev, blockno). Only RootDev is ever backed by a real file
// in this kernel; other device numbers are rejected. sem bounds in-flight
// I/O to one operation, the same "single virtqueue" constraint spec.md
// §4.7 assumes of the buffer cache's caller.
type File struct {
	sem       *semaphore.Weighted
	f         *os.File
	fd        int
	blockSize int
	rootDev   uint32
}

// Open opens (creating if missing) path as the backing store for dev,
// sized to at least nblocks*blockSize bytes.
func Open(path string, dev uint32, nblocks, blockSize int) (*File, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("blockdev: open %s: %w", path, err)
	}
	want := int64(nblocks) * int64(blockSize)
	if st, err := f.Stat(); err == nil && st.Size() < want {
		if err := f.Truncate(want); err != nil {
			f.Close()
			return nil, fmt.Errorf("blockdev: truncate %s: %w", path, err)
		}
	}
	return &File{sem: semaphore.NewWeighted(1), f: f, fd: int(f.Fd()), blockSize: blockSize, rootDev: dev}, nil
}

func (b *File) Close() error {
	return b.f.Close()
}

func (b *File) offset(blockno uint32) int64 {
	return int64(blockno) * int64(b.blockSize)
}

// ReadBlock satisfies kernel.BlockDevice.
func (b *File) ReadBlock(dev, blockno uint32, buf []byte) error {
	if dev != b.rootDev {
		return fmt.Errorf("blockdev: unknown device %d", dev)
	}
	_ = b.sem.Acquire(context.Background(), 1)
	defer b.sem.Release(1)
	n, err := unix.Pread(b.fd, buf, b.offset(blockno))
	if err != nil {
		return fmt.Errorf("blockdev: pread block %d: %w", blockno, err)
	}
	for n < len(buf) {
		buf[n] = 0
		n++
	}
	return nil
}

// WriteBlock satisfies kernel.BlockDevice.
func (b *File) WriteBlock(dev, blockno uint32, buf []byte) error {
	if dev != b.rootDev {
		return fmt.Errorf("blockdev: unknown device %d", dev)
	}
	_ = b.sem.Acquire(context.Background(), 1)
	defer b.sem.Release(1)
	if _, err := unix.Pwrite(b.fd, buf, b.offset(blockno)); err != nil {
		return fmt.Errorf("blockdev: pwrite block %d: %w", blockno, err)
	}
	return nil
}
