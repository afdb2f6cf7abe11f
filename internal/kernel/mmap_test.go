package kernel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMmapAnonymousThenPageFaultMaps(t *testing.T) {
	x := newTestProcCtx(t, 4)

	base, err := Mmap(x, PageSize, ProtRead|ProtWrite, false, nil, 0)
	require.Equal(t, EOK, err)
	assert.Equal(t, uint64(Trapframe)-PageSize, base, "first mapping in an empty address space sits directly below the trapframe page")

	_, ok := x.P.pagetable.Lookup(x.C, base)
	assert.False(t, ok, "mmap must not populate a page eagerly")

	require.Equal(t, EOK, PageFault(x, base))
	_, ok = x.P.pagetable.Lookup(x.C, base)
	assert.True(t, ok, "a fault inside the vma must map the page")
}

func TestMmapZeroLengthReturnsEINVAL(t *testing.T) {
	x := newTestProcCtx(t, 4)
	_, err := Mmap(x, 0, ProtRead, false, nil, 0)
	assert.Equal(t, EINVAL, err)
}

func TestMmapSecondRegionStartsBelowFirst(t *testing.T) {
	x := newTestProcCtx(t, 4)

	first, err := Mmap(x, PageSize, ProtRead, false, nil, 0)
	require.Equal(t, EOK, err)

	second, err := Mmap(x, PageSize, ProtRead, false, nil, 0)
	require.Equal(t, EOK, err)
	assert.Equal(t, first-PageSize, second)
}

func TestPageFaultOutsideAnyVmaReturnsEFAULT(t *testing.T) {
	x := newTestProcCtx(t, 4)
	err := PageFault(x, 0x9000)
	assert.Equal(t, EFAULT, err)
}

func TestMunmapWholeRegionUnmapsAndDropsVma(t *testing.T) {
	x := newTestProcCtx(t, 4)
	base, err := Mmap(x, PageSize, ProtRead|ProtWrite, false, nil, 0)
	require.Equal(t, EOK, err)
	require.Equal(t, EOK, PageFault(x, base))

	require.Equal(t, EOK, Munmap(x, base, PageSize))
	_, ok := x.P.pagetable.Lookup(x.C, base)
	assert.False(t, ok)
	assert.Empty(t, x.P.vmas)
}

func TestMunmapFromMiddleReturnsEINVAL(t *testing.T) {
	x := newTestProcCtx(t, 4)
	base, err := Mmap(x, PageSize*3, ProtRead, false, nil, 0)
	require.Equal(t, EOK, err)

	err = Munmap(x, base+PageSize, PageSize)
	assert.Equal(t, EINVAL, err)
}
