package kernel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPageTable(t *testing.T, c *Cpu, pages uint64) (*PageTable, *Allocator) {
	t.Helper()
	a := NewAllocator(c, (pages+4)*PageSize)
	pt, ok := NewPageTable(c, a)
	require.True(t, ok)
	return pt, a
}

func TestPageTableMapLookupUnmap(t *testing.T) {
	c := newCpu(0)
	pt, a := newTestPageTable(t, c, 2)

	pa, ok := a.AllocPage(c)
	require.True(t, ok)

	const va = uint64(0x1000)
	require.True(t, pt.Map(c, va, pa, PageSize, PteR|PteW|PteU))

	pte, ok := pt.Lookup(c, va)
	require.True(t, ok)
	assert.Equal(t, pa, pte.pa())
	assert.True(t, pte.valid())

	pt.Unmap(c, va, PageSize, false)
	_, ok = pt.Lookup(c, va)
	assert.False(t, ok, "unmapped page must no longer resolve")
}

func TestPageTableCopyOutCopyInRoundTrip(t *testing.T) {
	c := newCpu(0)
	pt, a := newTestPageTable(t, c, 2)

	pa, ok := a.AllocPage(c)
	require.True(t, ok)
	const va = uint64(0x2000)
	require.True(t, pt.Map(c, va, pa, PageSize, PteR|PteW|PteU))

	want := []byte("hello, xv6go")
	require.Equal(t, EOK, pt.CopyOut(c, va, want))

	got := make([]byte, len(want))
	require.Equal(t, EOK, pt.CopyIn(c, got, va))
	assert.Equal(t, want, got)
}

func TestPageTableCopyInStrStopsAtNUL(t *testing.T) {
	c := newCpu(0)
	pt, a := newTestPageTable(t, c, 2)

	pa, ok := a.AllocPage(c)
	require.True(t, ok)
	const va = uint64(0x3000)
	require.True(t, pt.Map(c, va, pa, PageSize, PteR|PteW|PteU))

	buf := make([]byte, 16)
	copy(buf, "hi\x00garbage")
	require.Equal(t, EOK, pt.CopyOut(c, va, buf))

	s, err := pt.CopyInStr(c, va, 32)
	require.Equal(t, EOK, err)
	assert.Equal(t, "hi", s)
}

func TestPageTableCopyOutUnmappedFaults(t *testing.T) {
	c := newCpu(0)
	pt, _ := newTestPageTable(t, c, 2)

	err := pt.CopyOut(c, 0x9000, []byte("x"))
	assert.Equal(t, EFAULT, err)
}

func TestUvmCopyDuplicatesContents(t *testing.T) {
	c := newCpu(0)
	a := NewAllocator(c, 8*PageSize)
	src, ok := NewPageTable(c, a)
	require.True(t, ok)
	dst, ok := NewPageTable(c, a)
	require.True(t, ok)

	sz, errno := uvmAlloc(c, a, src, 0, PageSize, PteW)
	require.Equal(t, EOK, errno)
	require.Equal(t, EOK, src.CopyOut(c, 0, []byte("parent data")))

	require.Equal(t, EOK, uvmCopy(c, a, src, dst, sz))

	got := make([]byte, len("parent data"))
	require.Equal(t, EOK, dst.CopyIn(c, got, 0))
	assert.Equal(t, "parent data", string(got))

	// Mutating the child must not affect the parent (separate physical pages).
	require.Equal(t, EOK, dst.CopyOut(c, 0, []byte("child write!")))
	require.Equal(t, EOK, src.CopyIn(c, got, 0))
	assert.Equal(t, "parent data", string(got))
}
