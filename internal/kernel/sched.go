package kernel

import (
	"runtime"
	"time"
)

// sched is spec.md §4.5's locking rule enforced in code: the caller must
// hold exactly its own proc lock, must not be Running, and must have
// interrupts (conceptually) disabled. Control is handed to the scheduler
// goroutine for this cpu via the channel rendezvous and does not return
// until the scheduler runs this process again.
// sched hands control to the scheduler and blocks until some cpu's
// Scheduler hands it back — possibly a different cpu than c, which is why
// it returns the cpu that resumed the caller. Every other kernel function
// that calls into sched (yield, sleep) must update its Ctx.C from the
// return value, the hosted stand-in for re-reading mycpu() after a swtch.
func (k *Kernel) sched(c *Cpu, p *Proc) *Cpu {
	if !p.lock.Holding(c) {
		panic("sched: proc lock not held")
	}
	if c.noff != 1 {
		panic("sched: locks held")
	}
	if p.state == Running {
		panic("sched: proc is running")
	}
	if c.interruptsEnabled {
		panic("sched: interruptible")
	}

	intena := c.intena
	p.ctx.toSched <- struct{}{}  // "swtch" into the scheduler
	newC := <-p.ctx.toProc       // blocks until scheduled again
	newC.intena = intena
	return newC
}

// yield: a Running process makes itself Runnable and re-enters the
// scheduler. Used both for cooperative yields and as the landing spot for
// the simulated timer-interrupt preemption path (trap.go).
func (k *Kernel) yield(c *Cpu, p *Proc) *Cpu {
	p.lock.Acquire(c)
	p.state = Runnable
	newC := k.sched(c, p)
	p.lock.Release(newC)
	return newC
}

// sleep is spec.md §4.5 verbatim: acquire the proc lock, record the
// channel, release the caller-held guard, sched, and on return clear the
// channel and reacquire the guard. Every caller must re-check its predicate
// in a loop — spurious wakeups are permitted.
func (k *Kernel) sleep(channel Channel, guard *SpinLock, c *Cpu, p *Proc) *Cpu {
	holdingSelf := guard == p.lock
	if !holdingSelf {
		p.lock.Acquire(c)
	}
	guard.Release(c)

	p.channel = channel
	p.state = Sleeping
	newC := k.sched(c, p)
	p.channel = nil

	if !holdingSelf {
		p.lock.Release(newC)
	}
	guard.Acquire(newC)
	return newC
}

// wakeup scans every process; any Sleeping on channel becomes Runnable.
// skip (usually the caller) is never woken by its own call, matching xv6's
// `if (p != myproc())` guard in wakeup().
func (k *Kernel) wakeup(channel Channel, skip *Proc) {
	for _, p := range k.procs.procs {
		if p == skip {
			continue
		}
		p.lock.Acquire(k.bootCpu)
		if p.state == Sleeping && p.channel == channel {
			p.state = Runnable
		}
		p.lock.Release(k.bootCpu)
	}
}

// Scheduler is the per-cpu scheduler loop (spec.md §4.5): round-robin over
// the process table, running the first Runnable entry found each pass.
// Interrupts are conceptually enabled between processes to accept device
// completions; see trap.go for how those feed back into wakeup.
func (c *Cpu) Scheduler(k *Kernel) {
	// Pin this goroutine to its OS thread for the rest of its life, the
	// hosted stand-in for a hart: mirrors the teacher's m/g-per-core model,
	// where each simulated core owns one real OS thread throughout boot.
	runtime.LockOSThread()

	for {
		idle := true
		c.interruptsEnabled = true
		for _, p := range k.procs.procs {
			p.lock.Acquire(c)
			if p.state != Runnable {
				p.lock.Release(c)
				continue
			}

			p.state = Running
			c.proc = p
			idle = false

			p.ctx.toProc <- c // "swtch" into p, telling it which cpu it's on

			// Release the lock right here, the Go-goroutine equivalent of
			// forkret's release(&p->lock) on a process's first entry: from
			// this point until p calls back into sched (via yield, sleep, or
			// doExit), p's own goroutine is the sole acquirer of its lock.
			// Holding it across the channel handoff would make every one of
			// those calls panic, since they run on this same *Cpu c and
			// SpinLock.Acquire forbids re-acquiring a lock this cpu already
			// holds.
			p.lock.Release(c)

			<-p.ctx.toSched // p called sched(); we own the cpu again

			// p is parked inside sched(), still holding its own lock (it
			// re-acquired it before calling sched, mirroring real xv6's
			// acquire/sched/swtch sequence). Releasing it here is the
			// counterpart of scheduler()'s release(&p->lock) once swtch
			// returns, freeing it for the next dispatch of p.
			c.proc = nil
			k.metrics.SchedSwitches.WithLabelValues(intToStr(c.id)).Inc()
			p.lock.Release(c)
		}
		if idle {
			time.Sleep(time.Millisecond)
		}
	}
}

func intToStr(i int) string {
	if i == 0 {
		return "0"
	}
	neg := i < 0
	if neg {
		i = -i
	}
	var buf [20]byte
	pos := len(buf)
	for i > 0 {
		pos--
		buf[pos] = byte('0' + i%10)
		i /= 10
	}
	if neg {
		pos--
		buf[pos] = '-'
	}
	return string(buf[pos:])
}
