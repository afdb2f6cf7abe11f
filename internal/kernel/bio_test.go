package kernel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memBlockDevice is an in-memory BlockDevice double, standing in for
// internal/blockdev in tests that only care about the buffer cache's
// behavior, not real file I/O.
type memBlockDevice struct {
	reads, writes int
	blocks        map[uint32][BSIZE]byte
}

func newMemBlockDevice() *memBlockDevice {
	return &memBlockDevice{blocks: map[uint32][BSIZE]byte{}}
}

func (m *memBlockDevice) ReadBlock(dev uint32, blockno uint32, buf []byte) error {
	m.reads++
	b := m.blocks[blockno]
	copy(buf, b[:])
	return nil
}

func (m *memBlockDevice) WriteBlock(dev uint32, blockno uint32, buf []byte) error {
	m.writes++
	var b [BSIZE]byte
	copy(b[:], buf)
	m.blocks[blockno] = b
	return nil
}

func TestBreadCachesAcrossCalls(t *testing.T) {
	x := newTestCtx()
	dev := newMemBlockDevice()
	bc := NewBufferCache(dev, NewTestMetrics())

	b1 := bc.Bread(x, RootDev, 5)
	bc.Brelse(x, b1)
	b2 := bc.Bread(x, RootDev, 5)
	bc.Brelse(x, b2)

	assert.Same(t, b1, b2, "second Bread of the same block must hit the cache")
	assert.Equal(t, 1, dev.reads, "only the first Bread should touch the device")
}

func TestBwritePersistsToDevice(t *testing.T) {
	x := newTestCtx()
	dev := newMemBlockDevice()
	bc := NewBufferCache(dev, NewTestMetrics())

	b := bc.Bread(x, RootDev, 3)
	b.data[0] = 0x42
	bc.Bwrite(x, b)
	bc.Brelse(x, b)

	assert.Equal(t, 1, dev.writes)
	assert.Equal(t, byte(0x42), dev.blocks[3][0])
}

func TestBufferCacheEvictsOnlyUnreferencedBuffers(t *testing.T) {
	x := newTestCtx()
	dev := newMemBlockDevice()
	bc := NewBufferCache(dev, NewTestMetrics())

	held := bc.Bread(x, RootDev, 1)
	defer bc.Brelse(x, held)

	for i := uint32(2); i <= NBuf; i++ {
		b := bc.Bread(x, RootDev, i)
		bc.Brelse(x, b)
	}

	// bget rather than Bread: this test still holds block 1's sleep lock.
	b := bc.bget(x, RootDev, 1)
	require.Same(t, held, b, "still-pinned block must never be evicted")
	bc.Unpin(x, b)
}

func TestPinUnpinKeepsBufferAlive(t *testing.T) {
	x := newTestCtx()
	dev := newMemBlockDevice()
	bc := NewBufferCache(dev, NewTestMetrics())

	b := bc.Bread(x, RootDev, 7)
	bc.Pin(x, b)
	bc.Brelse(x, b)

	for i := uint32(100); i < 100+NBuf; i++ {
		other := bc.Bread(x, RootDev, i)
		bc.Brelse(x, other)
	}

	bc.Unpin(x, b)
	again := bc.Bread(x, RootDev, 7)
	assert.Same(t, b, again, "pinned buffer survives even heavy churn through the rest of the cache")
	bc.Brelse(x, again)
}
