package kernel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvGetSetUnsetListRoundTrip(t *testing.T) {
	x := newTestCtx()

	_, err := sysGetenv(x, "FOO", make([]byte, 16))
	assert.Equal(t, ENOENT, err, "unset variable reports ENOENT")

	require.Equal(t, EOK, sysSetenv(x, "FOO", "bar", true))
	buf := make([]byte, 16)
	n, err := sysGetenv(x, "FOO", buf)
	require.Equal(t, EOK, err)
	assert.Equal(t, "bar", string(buf[:n]))

	assert.Equal(t, EOK, sysSetenv(x, "FOO", "baz", false), "overwrite=false on an existing key still returns EOK")
	n, _ = sysGetenv(x, "FOO", buf)
	assert.Equal(t, "bar", string(buf[:n]), "overwrite=false must not replace the existing value")

	require.Equal(t, EOK, sysSetenv(x, "FOO", "baz", true))
	n, _ = sysGetenv(x, "FOO", buf)
	assert.Equal(t, "baz", string(buf[:n]))

	sysUnsetenv(x, "FOO")
	_, err = sysGetenv(x, "FOO", buf)
	assert.Equal(t, ENOENT, err)
}

func TestListenvStopsBeforeOverflowingDst(t *testing.T) {
	x := newTestCtx()
	require.Equal(t, EOK, sysSetenv(x, "A", "1", true))
	require.Equal(t, EOK, sysSetenv(x, "B", "2", true))

	n := sysListenv(x, make([]byte, 0))
	assert.Zero(t, n, "a zero-length destination gets nothing written")
}

func TestFdAllocReusesLowestFreeSlot(t *testing.T) {
	p := &Proc{}
	f1 := &File{}
	f2 := &File{}

	fd0, err := fdAlloc(p, f1)
	require.Equal(t, EOK, err)
	assert.Equal(t, 0, fd0)

	fd1, err := fdAlloc(p, f2)
	require.Equal(t, EOK, err)
	assert.Equal(t, 1, fd1)

	p.ofile[0] = nil
	fd2, err := fdAlloc(p, f1)
	require.Equal(t, EOK, err)
	assert.Equal(t, 0, fd2, "fdAlloc must reuse the lowest freed descriptor")
}

func TestFdAllocExhaustionReturnsEMFILE(t *testing.T) {
	p := &Proc{}
	for i := 0; i < NOFile; i++ {
		_, err := fdAlloc(p, &File{})
		require.Equal(t, EOK, err)
	}
	_, err := fdAlloc(p, &File{})
	assert.Equal(t, EMFILE, err)
}

func TestGetFileRejectsOutOfRangeAndEmptySlots(t *testing.T) {
	x := newTestCtx()
	x.P.ofile[2] = &File{}

	_, err := getFile(x, -1)
	assert.Equal(t, EBADF, err)
	_, err = getFile(x, NOFile)
	assert.Equal(t, EBADF, err)
	_, err = getFile(x, 0)
	assert.Equal(t, EBADF, err, "an unopened fd slot reports EBADF")

	f, err := getFile(x, 2)
	require.Equal(t, EOK, err)
	assert.Same(t, x.P.ofile[2], f)
}

func TestSysChdirToDirectoryUpdatesCwd(t *testing.T) {
	it, x, root := newTestFS(t)
	sub := allocInode(t, it, x, TypeDirectory)
	it.Lock(x, root)
	require.Equal(t, EOK, it.log.WithTx(x, func() Errno {
		return it.Dirlink(x, root, "sub", sub.inum)
	}))
	it.Unlock(x, root)

	x.K.itable = it
	require.Equal(t, EOK, sysChdir(x, "/sub"))
	assert.Equal(t, sub.inum, x.P.cwd.inum)
}

func TestSysChdirToFileReturnsENOTDIR(t *testing.T) {
	it, x, root := newTestFS(t)
	file := allocInode(t, it, x, TypeFile)
	it.Lock(x, root)
	require.Equal(t, EOK, it.log.WithTx(x, func() Errno {
		return it.Dirlink(x, root, "leaf", file.inum)
	}))
	it.Unlock(x, root)

	x.K.itable = it
	err := sysChdir(x, "/leaf")
	assert.Equal(t, ENOTDIR, err)
}
