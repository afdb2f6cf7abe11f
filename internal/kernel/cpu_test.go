package kernel

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCpuPushOffPopOffRestoresInterruptState(t *testing.T) {
	c := newCpu(0)
	assert.True(t, c.interruptsEnabled)

	c.pushOff()
	assert.False(t, c.interruptsEnabled)
	assert.False(t, c.Interruptible())

	c.popOff()
	assert.True(t, c.interruptsEnabled)
	assert.True(t, c.Interruptible())
}

func TestCpuPushOffNestingOnlyRestoresOnOutermostPop(t *testing.T) {
	c := newCpu(0)

	c.pushOff()
	c.pushOff()
	assert.Equal(t, 2, c.noff)

	c.popOff()
	assert.False(t, c.interruptsEnabled, "interrupts stay disabled until the outermost popOff")

	c.popOff()
	assert.True(t, c.interruptsEnabled)
}

func TestCpuPopOffWithoutPushPanics(t *testing.T) {
	c := newCpu(0)
	assert.Panics(t, func() { c.popOff() })
}

func TestCpuPushOffWhenAlreadyDisabledDoesNotRestoreOnPop(t *testing.T) {
	c := newCpu(0)
	c.interruptsEnabled = false

	c.pushOff()
	c.popOff()
	assert.False(t, c.interruptsEnabled, "pushOff must remember interrupts were already disabled, not force them back on")
}
