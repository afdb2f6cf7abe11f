package kernel

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestFSCtx extends newTestFS with a real FileTable wired into the Ctx's
// Kernel, the minimum needed to drive sysOpen/sysRead/sysWrite/sysClose and
// friends the way Syscall's dispatch table does.
func newTestFSCtx(t *testing.T) (*InodeTable, *Ctx) {
	t.Helper()
	it, x, _ := newTestFS(t)
	x.K.itable = it
	x.K.files = NewFileTable(it, it.log)
	return it, x
}

func TestSysOpenCreateWriteReadClose(t *testing.T) {
	_, x := newTestFSCtx(t)

	fd, err := sysOpen(x, "/greeting.txt", OCreate|ORdWr)
	require.Equal(t, EOK, err)

	n, err := sysWrite(x, fd, []byte("hi there"))
	require.Equal(t, EOK, err)
	assert.Equal(t, 8, n)

	require.Equal(t, EOK, sysClose(x, fd))

	fd2, err := sysOpen(x, "/greeting.txt", ORdOnly)
	require.Equal(t, EOK, err)
	buf := make([]byte, 8)
	n, err = sysRead(x, fd2, buf)
	require.Equal(t, EOK, err)
	assert.Equal(t, 8, n)
	assert.Equal(t, "hi there", string(buf))
}

func TestSysOpenWithoutCreateOnMissingPathReturnsENOENT(t *testing.T) {
	_, x := newTestFSCtx(t)
	_, err := sysOpen(x, "/nope.txt", ORdOnly)
	assert.Equal(t, ENOENT, err)
}

func TestSysOpenDirectoryForWriteReturnsEISDIR(t *testing.T) {
	it, x := newTestFSCtx(t)
	dir := allocInode(t, it, x, TypeDirectory)
	it.Lock(x, x.P.cwd)
	require.Equal(t, EOK, it.log.WithTx(x, func() Errno {
		return it.Dirlink(x, x.P.cwd, "subdir", dir.inum)
	}))
	it.Unlock(x, x.P.cwd)

	_, err := sysOpen(x, "/subdir", ORdWr)
	assert.Equal(t, EISDIR, err)
}

func TestSysMkdirThenSysOpenResolvesNestedPath(t *testing.T) {
	_, x := newTestFSCtx(t)

	require.Equal(t, EOK, sysMkdir(x, "/sub"))
	fd, err := sysOpen(x, "/sub/leaf.txt", OCreate|ORdWr)
	require.Equal(t, EOK, err)
	_, err = sysWrite(x, fd, []byte("x"))
	require.Equal(t, EOK, err)
}

func TestSysUnlinkRemovesEntry(t *testing.T) {
	_, x := newTestFSCtx(t)

	fd, err := sysOpen(x, "/doomed.txt", OCreate|ORdWr)
	require.Equal(t, EOK, err)
	require.Equal(t, EOK, sysClose(x, fd))

	require.Equal(t, EOK, sysUnlink(x, "/doomed.txt"))
	_, err = sysOpen(x, "/doomed.txt", ORdOnly)
	assert.Equal(t, ENOENT, err)
}

func TestSysUnlinkNonEmptyDirReturnsENOTEMPTY(t *testing.T) {
	_, x := newTestFSCtx(t)

	require.Equal(t, EOK, sysMkdir(x, "/sub"))
	fd, err := sysOpen(x, "/sub/leaf.txt", OCreate|ORdWr)
	require.Equal(t, EOK, err)
	require.Equal(t, EOK, sysClose(x, fd))

	err = sysUnlink(x, "/sub")
	assert.Equal(t, ENOTEMPTY, err)
}

func TestSysUnlinkDotReturnsEPERM(t *testing.T) {
	_, x := newTestFSCtx(t)
	require.Equal(t, EOK, sysMkdir(x, "/sub"))

	err := sysUnlink(x, "/sub/.")
	assert.Equal(t, EPERM, err)
}

func TestSysPipeReadWrite(t *testing.T) {
	_, x := newTestFSCtx(t)

	rfd, wfd, err := sysPipe(x)
	require.Equal(t, EOK, err)

	n, err := sysWrite(x, wfd, []byte("pipe data"))
	require.Equal(t, EOK, err)
	assert.Equal(t, 9, n)

	buf := make([]byte, 9)
	n, err = sysRead(x, rfd, buf)
	require.Equal(t, EOK, err)
	assert.Equal(t, "pipe data", string(buf[:n]))
}

func TestSysDupSharesUnderlyingFile(t *testing.T) {
	_, x := newTestFSCtx(t)

	fd, err := sysOpen(x, "/f.txt", OCreate|ORdWr)
	require.Equal(t, EOK, err)

	dupFd, err := sysDup(x, fd)
	require.Equal(t, EOK, err)
	assert.NotEqual(t, fd, dupFd)
	assert.Same(t, x.P.ofile[fd], x.P.ofile[dupFd])
}

func TestSysFstatReportsInodeMetadata(t *testing.T) {
	_, x := newTestFSCtx(t)

	fd, err := sysOpen(x, "/f.txt", OCreate|ORdWr)
	require.Equal(t, EOK, err)

	buf := make([]byte, statSize)
	require.Equal(t, EOK, sysFstat(x, fd, buf))
	typ := InodeType(binary.LittleEndian.Uint32(buf[8:12]))
	nlink := uint16(binary.LittleEndian.Uint32(buf[12:16]))
	assert.Equal(t, TypeFile, typ)
	assert.Equal(t, uint16(1), nlink)
}
