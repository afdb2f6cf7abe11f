package kernel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestFS builds an InodeTable with a root directory at RootInum (the
// first inode Ialloc ever hands out), its "." and ".." both pointing at
// itself exactly like real xv6's root, ready for Namei/NameiParent tests.
func newTestFS(t *testing.T) (*InodeTable, *Ctx, *Inode) {
	t.Helper()
	it, x := newTestInodeTable(t)
	root := allocInode(t, it, x, TypeDirectory)
	require.Equal(t, RootInum, root.inum)
	it.Lock(x, root)
	require.Equal(t, EOK, it.log.WithTx(x, func() Errno {
		return it.InitDir(x, root, root.inum)
	}))
	it.Unlock(x, root)
	x.P.cwd = root
	return it, x, root
}

func TestNameiResolvesAbsoluteRoot(t *testing.T) {
	it, x, root := newTestFS(t)

	ip, err := it.Namei(x, "/")
	require.Equal(t, EOK, err)
	assert.Equal(t, root.inum, ip.inum)
	it.Put(x, ip)
}

func TestNameiResolvesNestedAbsolutePath(t *testing.T) {
	it, x, root := newTestFS(t)

	dir := allocInode(t, it, x, TypeDirectory)
	it.Lock(x, root)
	require.Equal(t, EOK, it.log.WithTx(x, func() Errno {
		return it.Dirlink(x, root, "sub", dir.inum)
	}))
	it.Unlock(x, root)
	it.Lock(x, dir)
	require.Equal(t, EOK, it.log.WithTx(x, func() Errno {
		return it.InitDir(x, dir, root.inum)
	}))
	it.Unlock(x, dir)

	file := allocInode(t, it, x, TypeFile)
	it.Lock(x, dir)
	require.Equal(t, EOK, it.log.WithTx(x, func() Errno {
		return it.Dirlink(x, dir, "leaf.txt", file.inum)
	}))
	it.Unlock(x, dir)

	ip, err := it.Namei(x, "/sub/leaf.txt")
	require.Equal(t, EOK, err)
	assert.Equal(t, file.inum, ip.inum)
	it.Put(x, ip)
}

func TestNameiMissingComponentReturnsENOENT(t *testing.T) {
	it, x, _ := newTestFS(t)

	_, err := it.Namei(x, "/nope")
	assert.Equal(t, ENOENT, err)
}

func TestNameiThroughNonDirectoryReturnsENOTDIR(t *testing.T) {
	it, x, root := newTestFS(t)

	file := allocInode(t, it, x, TypeFile)
	it.Lock(x, root)
	require.Equal(t, EOK, it.log.WithTx(x, func() Errno {
		return it.Dirlink(x, root, "leaf", file.inum)
	}))
	it.Unlock(x, root)

	_, err := it.Namei(x, "/leaf/sub")
	assert.Equal(t, ENOTDIR, err)
}

func TestNameiResolvesRelativeToCwd(t *testing.T) {
	it, x, root := newTestFS(t)

	file := allocInode(t, it, x, TypeFile)
	it.Lock(x, root)
	require.Equal(t, EOK, it.log.WithTx(x, func() Errno {
		return it.Dirlink(x, root, "relfile", file.inum)
	}))
	it.Unlock(x, root)

	ip, err := it.Namei(x, "relfile")
	require.Equal(t, EOK, err)
	assert.Equal(t, file.inum, ip.inum)
	it.Put(x, ip)
}

func TestNameiParentSplitsOffFinalComponent(t *testing.T) {
	it, x, root := newTestFS(t)

	dir := allocInode(t, it, x, TypeDirectory)
	it.Lock(x, root)
	require.Equal(t, EOK, it.log.WithTx(x, func() Errno {
		return it.Dirlink(x, root, "sub", dir.inum)
	}))
	it.Unlock(x, root)

	parent, lastElem, err := it.NameiParent(x, "/sub/newfile")
	require.Equal(t, EOK, err)
	assert.Equal(t, dir.inum, parent.inum, "NameiParent must stop at the directory holding the final component")
	assert.Equal(t, "newfile", lastElem)
	it.Put(x, parent)
}
