package kernel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpinLockAcquireRelease(t *testing.T) {
	c := newCpu(0)
	lk := NewSpinLock("test")

	lk.Acquire(c)
	assert.True(t, lk.Holding(c))
	lk.Release(c)
	assert.False(t, lk.Holding(c))
}

func TestSpinLockNesting(t *testing.T) {
	c := newCpu(0)
	lk1 := NewSpinLock("outer")
	lk2 := NewSpinLock("inner")

	lk1.Acquire(c)
	lk2.Acquire(c)
	require.Equal(t, 2, c.noff)
	lk2.Release(c)
	require.Equal(t, 1, c.noff)
	lk1.Release(c)
	require.Equal(t, 0, c.noff)
}

func TestSpinLockDoubleAcquirePanics(t *testing.T) {
	c := newCpu(0)
	lk := NewSpinLock("test")
	lk.Acquire(c)
	defer func() {
		r := recover()
		assert.NotNil(t, r, "re-acquiring an already-held lock on the same cpu must panic")
	}()
	lk.Acquire(c)
}

func TestSpinLockReleaseNotHeldPanics(t *testing.T) {
	c := newCpu(0)
	lk := NewSpinLock("test")
	defer func() {
		r := recover()
		assert.NotNil(t, r, "releasing a lock not held must panic")
	}()
	lk.Release(c)
}

func TestPushOffPopOffRestoresInterruptState(t *testing.T) {
	c := newCpu(0)
	c.interruptsEnabled = true

	c.pushOff()
	assert.False(t, c.interruptsEnabled)
	c.pushOff()
	assert.False(t, c.interruptsEnabled)
	c.popOff()
	assert.False(t, c.interruptsEnabled, "interrupts stay disabled until the outermost popOff")
	c.popOff()
	assert.True(t, c.interruptsEnabled)
}
