package kernel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllocatorAllocPageExhaustion(t *testing.T) {
	c := newCpu(0)
	a := NewAllocator(c, 4*PageSize)

	var pages []uint64
	for i := 0; i < 4; i++ {
		pa, ok := a.AllocPage(c)
		require.True(t, ok, "allocation %d should succeed", i)
		pages = append(pages, pa)
	}

	_, ok := a.AllocPage(c)
	assert.False(t, ok, "arena is exhausted after handing out every page")

	for _, pa := range pages[:len(pages)-1] {
		for _, other := range pages {
			if other == pa {
				continue
			}
			assert.NotEqual(t, pa, other, "two live allocations must never overlap")
		}
	}
}

func TestAllocatorFreeThenReallocate(t *testing.T) {
	c := newCpu(0)
	a := NewAllocator(c, PageSize)

	pa, ok := a.AllocPage(c)
	require.True(t, ok)
	a.FreePage(c, pa)

	pa2, ok := a.AllocPage(c)
	require.True(t, ok, "freed memory should become available again")
	assert.Equal(t, pa, pa2)
}

func TestAllocatorZeroesFreshMemory(t *testing.T) {
	c := newCpu(0)
	a := NewAllocator(c, PageSize)

	pa, ok := a.AllocPage(c)
	require.True(t, ok)
	buf := a.Bytes(pa, PageSize)
	for i := range buf {
		buf[i] = 0xff
	}
	a.FreePage(c, pa)

	pa2, ok := a.AllocPage(c)
	require.True(t, ok)
	require.Equal(t, pa, pa2)
	buf2 := a.Bytes(pa2, PageSize)
	for i, b := range buf2 {
		require.Zero(t, b, "byte %d should have been zeroed on reallocation", i)
	}
}

func TestAllocatorQuadAllocationIsFourPages(t *testing.T) {
	c := newCpu(0)
	a := NewAllocator(c, 8*PageSize)

	pa, ok := a.AllocQuad(c)
	require.True(t, ok)
	assert.Zero(t, pa%PageSize, "quad allocations stay page-aligned")

	// A single-page allocation right after must land outside the quad.
	next, ok := a.AllocPage(c)
	require.True(t, ok)
	assert.True(t, next < pa || next >= pa+4*PageSize)
}
