// Package plic is the IRQ-claim/complete boundary spec.md §4.6's external
// interrupt branch dispatches through, grounded on
// original_source/kernel/src/plic.rs's claim/complete pair, adapted from
// real PLIC MMIO registers to a channel a device stub posts IRQ numbers to.
package plic

// Controller buffers pending IRQ numbers on a channel and hands them out
// one at a time via Claim, the same contract a real PLIC's claim/complete
// register pair provides.
type Controller struct {
	pending chan uint32
}

func New(buffer int) *Controller {
	return &Controller{pending: make(chan uint32, buffer)}
}

// Post is called by a device stub when it wants to raise an interrupt;
// internal/console is the one stub that posts.
func (c *Controller) Post(irq uint32) {
	select {
	case c.pending <- irq:
	default:
		// The channel queues up to its buffer size of unclaimed IRQs; a
		// post made while it is full is dropped.
	}
}

// Claim returns the next pending IRQ, or ok=false if none is pending.
func (c *Controller) Claim() (irq uint32, ok bool) {
	select {
	case irq := <-c.pending:
		return irq, true
	default:
		return 0, false
	}
}

// Complete acknowledges irq, letting the PLIC consider it serviced. Real
// hardware requires this write before the same IRQ can refire; here it's a
// no-op placeholder for that protocol step, kept so trap.go's dispatch
// reads the way a real driver's would.
func (c *Controller) Complete(irq uint32) {}
