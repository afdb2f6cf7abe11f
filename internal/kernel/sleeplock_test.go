package kernel

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func newTestCtx() *Ctx {
	c := newCpu(0)
	p := &Proc{lock: NewSpinLock("proc"), ctx: newSchedHandoff(), env: map[string]string{}}
	k := &Kernel{bootCpu: c}
	k.procs = newProcTable(k) // wakeup scans it on every SleepLock.Unlock
	return &Ctx{K: k, C: c, P: p}
}

func TestSleepLockUncontendedLockUnlock(t *testing.T) {
	x := newTestCtx()
	lk := NewSleepLock("test")

	assert.False(t, lk.Holding(x))
	lk.Lock(x)
	assert.True(t, lk.Holding(x))
	lk.Unlock(x)
	assert.False(t, lk.Holding(x))
}

func TestSleepLockHoldingIsPerProcess(t *testing.T) {
	x := newTestCtx()
	other := &Proc{lock: NewSpinLock("other"), ctx: newSchedHandoff()}
	otherX := &Ctx{K: x.K, C: x.C, P: other}

	lk := NewSleepLock("test")
	lk.Lock(x)
	assert.True(t, lk.Holding(x))
	assert.False(t, lk.Holding(otherX))
	lk.Unlock(x)
}
