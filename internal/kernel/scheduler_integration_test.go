package kernel

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestDisk builds the minimal on-disk image kernel.New needs to boot: a
// valid superblock at block 1 plus the root directory's inode, which doExit
// reads when it drops a process's cwd. No test exercising this image ever
// opens, reads or writes a file, so the bitmap and data regions are left
// zeroed.
func newTestDisk() *memBlockDevice {
	dev := newMemBlockDevice()
	sb := Superblock{
		Magic:      MagicSuperblock,
		Size:       64,
		NBlocks:    32,
		NInodes:    16,
		NLog:       uint32(LogSize),
		LogStart:   2,
		InodeStart: 2 + uint32(LogSize),
		BmapStart:  2 + uint32(LogSize) + 1,
	}
	var sbBuf [BSIZE]byte
	encodeSuperblock(sb, sbBuf[:])
	dev.blocks[1] = sbBuf

	var inodeBuf [BSIZE]byte
	off := RootInum * diskInodeSize
	encodeDiskInode(DiskInode{Type: TypeDirectory, Nlink: 1}, inodeBuf[off:off+diskInodeSize])
	dev.blocks[sb.InodeStart] = inodeBuf
	return dev
}

// forkExitWaitResult is everything the test goroutine needs to assert;
// nothing in the spawned process's own goroutine may call into *testing.T
// directly (only the goroutine running the Test function may call
// t.Fatal/require), so the program body reports raw values over a channel
// instead.
type forkExitWaitResult struct {
	forkPid  int64
	waitPid  int64
	waitStat int32
}

// TestForkExitWaitEndToEnd drives spec.md §8's concrete scenario 2 through
// real goroutine scheduling: Cpu.Scheduler dispatching a process, that
// process forking a child that calls exit(42), and the parent's wait
// returning the child's pid and exit status. This is the level at which the
// Scheduler/yield/sleep/doExit locking protocol actually has to hold up —
// package-level unit tests of individual locks can't exercise it.
func TestForkExitWaitEndToEnd(t *testing.T) {
	dev := newTestDisk()
	k, err := New(KernelConfig{NCPU: 2, BufferCacheSize: 64, RootDev: RootDev}, dev, nil, logr.Discard(), NewTestMetrics())
	require.NoError(t, err)

	resultCh := make(chan forkExitWaitResult, 1)

	prog := func(x *Ctx) {
		if x.P.IsForkChild() {
			Syscall(x, SysExit, Args{Int: [6]int64{42}})
			return // unreachable: doExit never returns
		}

		forkPid := Syscall(x, SysFork, Args{})

		buf := make([]byte, 4)
		waitPid := Syscall(x, SysWait, Args{Buf: buf})
		waitStat := int32(binary.LittleEndian.Uint32(buf))

		resultCh <- forkExitWaitResult{forkPid: forkPid, waitPid: waitPid, waitStat: waitStat}
		Syscall(x, SysExit, Args{Int: [6]int64{0}})
	}
	k.Programs().Register("forktest", prog)

	_, err = k.Spawn("forktest", []string{"forktest"})
	require.NoError(t, err)

	for _, c := range k.Cpus() {
		go c.Scheduler(k)
	}

	select {
	case r := <-resultCh:
		assert.NotEqual(t, int64(-1), r.forkPid, "fork must succeed")
		assert.Equal(t, r.forkPid, r.waitPid, "wait must report the forked child's own pid")
		assert.Equal(t, int32(42), r.waitStat, "wait must report the child's exit(42) status")
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for fork/exit/wait to complete: the scheduler's proc-lock protocol likely deadlocked or panicked")
	}
}
