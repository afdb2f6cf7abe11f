package kernel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestPipeCtx builds a Ctx backed by a real FileTable (needed for
// NewPipe's fd allocation) over the same in-memory log/inode-table fixture
// the rest of this package's tests use.
func newTestPipeCtx(t *testing.T) *Ctx {
	t.Helper()
	it, x := newTestInodeTable(t)
	x.K.files = NewFileTable(it, it.log)
	return x
}

func TestPipeWriteThenReadRoundTrips(t *testing.T) {
	x := newTestPipeCtx(t)
	rf, wf, err := NewPipe(x)
	require.Equal(t, EOK, err)

	n, err := wf.pipe.Write(x, []byte("hello"))
	require.Equal(t, EOK, err)
	assert.Equal(t, 5, n)

	buf := make([]byte, 5)
	n, err = rf.pipe.Read(x, buf)
	require.Equal(t, EOK, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, "hello", string(buf))
}

func TestPipeReadReturnsEOFOnceWriterClosedAndDrained(t *testing.T) {
	x := newTestPipeCtx(t)
	rf, wf, err := NewPipe(x)
	require.Equal(t, EOK, err)

	_, err = wf.pipe.Write(x, []byte("x"))
	require.Equal(t, EOK, err)

	buf := make([]byte, 1)
	n, err := rf.pipe.Read(x, buf)
	require.Equal(t, EOK, err)
	require.Equal(t, 1, n)

	rf.pipe.CloseEnd(x, false)
	wf.pipe.CloseEnd(x, true)

	n, err = rf.pipe.Read(x, buf)
	require.Equal(t, EOK, err)
	assert.Equal(t, 0, n, "a drained pipe with the write end closed reads as EOF, not a block")
}

func TestPipeWriteAfterReadEndClosedReturnsEPIPE(t *testing.T) {
	x := newTestPipeCtx(t)
	rf, wf, err := NewPipe(x)
	require.Equal(t, EOK, err)

	rf.pipe.CloseEnd(x, false)

	_, err = wf.pipe.Write(x, []byte("x"))
	assert.Equal(t, EPIPE, err)
}
