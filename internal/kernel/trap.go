package kernel

import "github.com/kazukousen/xv6go/internal/plic"


// TrapFrame is the reduced stand-in for RISC-V's 34-register trapframe
// page (spec.md §3): the fields a hosted Go "user program" closure still
// needs to observe across the boundary Exec sets up — its stack top and
// the argc/argv it was handed. There is no real register file to save and
// restore; every other field real xv6 keeps here (the saved kernel sp,
// satp, trap handler address) exists only to get back into Go's own
// calling convention, which the runtime already does for us.
type TrapFrame struct {
	Epc  uint64 // user "pc": unused for control flow, kept for ps/debugging
	Sp   uint64
	Argc uint64
	Argv uint64
}

// faultSignal is the panic payload PageFault-adjacent code raises to
// unwind out of a running program body on an unrecoverable access, caught
// by RunBody's recover boundary (spec.md §4.6's trap-dispatch role,
// reduced to what a hosted process actually needs: a way to kill itself
// cleanly instead of corrupting kernel state).
type faultSignal struct {
	err  Errno
	desc string
}

// Fault raises a fatal, unrecoverable-to-the-process trap. Call this from
// a program body when it dereferences something PageFault's Vma lookup
// rejected; RunBody converts it into the process's exit path.
func Fault(err Errno, desc string) {
	panic(faultSignal{err: err, desc: desc})
}

// RunBody invokes p.body under a recover boundary so a fault (or any other
// panic escaping a program closure) kills the process instead of the
// scheduler goroutine that's multiplexing it. Returns the exit status the
// process should report.
func RunBody(x *Ctx) (status int32) {
	defer func() {
		if r := recover(); r != nil {
			switch v := r.(type) {
			case faultSignal:
				status = -int32(1)
				x.K.logger.Info("fatal fault", "pid", x.P.pid, "desc", v.desc, "err", v.err)
			default:
				status = -int32(2)
				x.K.logger.Info("panic in process body", "pid", x.P.pid, "panic", r)
			}
		}
	}()
	x.P.body(x)
	return 0
}

// TimerInterrupt is spec.md §4.6's first dispatch branch: the boot layer's
// forwarded machine-mode timer tick. Increments the shared tick counter,
// wakes anything sleeping on it, and marks every cpu currently running a
// process for preemption at its next syscall entry — the hosted stand-in
// for clearing SSIP and yielding, since nothing here can force a running
// Go goroutine off the processor the way a real trap return can.
func (k *Kernel) TimerInterrupt() {
	k.ticksLock.Acquire(k.bootCpu)
	k.ticks++
	k.ticksLock.Release(k.bootCpu)
	k.wakeup(ticksChannel(k), nil)

	for _, c := range k.cpus {
		if c.proc != nil {
			c.preempt = true
		}
	}
}

// Ticks returns the number of timer interrupts serviced so far.
func (k *Kernel) Ticks() uint64 {
	k.ticksLock.Acquire(k.bootCpu)
	defer k.ticksLock.Release(k.bootCpu)
	return k.ticks
}

func ticksChannel(k *Kernel) Channel { return Channel(&k.ticks) }

// checkPreempt consumes a pending TimerInterrupt-set flag on x.C, yielding
// the calling process if one is set. Every syscall passes through here
// first (syscall.go), since a hosted Program body only ever re-enters
// kernel code at a syscall boundary — there is no periodic "are we still
// in the same time slice" check inside a tight Program loop the way a real
// timer trap would interrupt arbitrary user code.
func checkPreempt(x *Ctx) {
	if !x.C.preempt {
		return
	}
	x.C.preempt = false
	x.yield()
}

// ExternalInterrupt services one pending PLIC-claimed IRQ (spec.md §4.6's
// "supervisor external interrupt" branch): claim, and complete. Every
// device boundary this repository wires up (internal/blockdev,
// internal/console) completes its I/O synchronously within the syscall
// that issued it, so there is no asynchronous completion left to route to
// a handler — Claim/Complete exist so the boundary itself is real and
// exercised, per DESIGN.md's note on this Non-goal. Called from a
// dedicated interrupt-pump goroutine in cmd/xv6/main.go, never from inside
// a process body.
func (k *Kernel) ExternalInterrupt(ctrl *plic.Controller) {
	irq, ok := ctrl.Claim()
	if !ok {
		return
	}
	k.logger.V(1).Info("external interrupt", "irq", irq)
	ctrl.Complete(irq)
}
