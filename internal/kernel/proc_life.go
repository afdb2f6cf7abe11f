package kernel

import (
	"runtime"
	"unsafe"
)

// proc_life.go is spec.md §4.5/§4.13's process lifecycle: fork, exit, wait,
// and the per-process goroutine that stands in for a kernel thread's
// lifetime (allocation through reaping).

func waitChannel(p *Proc) Channel { return Channel(unsafe.Pointer(p)) }

// Fork duplicates the calling process: a fresh Proc with a copied address
// space, duplicated open files and cwd, same name and environment. Because
// a Go goroutine's call stack cannot be duplicated the way a real kernel
// stack can, the child does not resume "mid-function" the way a real forked
// process does — DESIGN.md's Open Question resolves this by having the
// child re-enter the same Program closure from its start, with
// Proc.IsForkChild distinguishing the two paths the way a real fork's
// zero-vs-pid return value would. Programs registered in this kernel are
// written with that in mind.
func Fork(x *Ctx) (int, Errno) {
	k := x.K
	parent := x.P

	child := k.procs.allocProc(x.C)
	if child == nil {
		return -1, EAGAIN
	}

	pt, ok := NewPageTableWithTrampoline(x.C, k)
	if !ok {
		k.procs.free(x.C, child)
		return -1, ENOMEM
	}
	if err := uvmCopy(x.C, k.alloc, parent.pagetable, pt, parent.sz); err != EOK {
		unmapUserPagetable(x.C, pt, 0, nil)
		k.procs.free(x.C, child)
		return -1, err
	}

	child.pagetable = pt
	child.sz = parent.sz
	if parent.trapframe != nil {
		tf := *parent.trapframe
		child.trapframe = &tf
	}
	child.name = parent.name
	child.body = parent.body
	child.isForkChild = true

	for i, f := range parent.ofile {
		if f != nil {
			child.ofile[i] = f.Dup()
		}
	}
	if parent.cwd != nil {
		child.cwd = k.itable.Dup(x, parent.cwd)
	}
	child.env = make(map[string]string, len(parent.env))
	for kk, v := range parent.env {
		child.env[kk] = v
	}

	k.procs.parentsLock.Acquire(x.C)
	k.procs.parents[child.index] = parent.index
	k.procs.parentsLock.Release(x.C)

	child.lock.Acquire(x.C)
	child.state = Runnable
	child.lock.Release(x.C)

	k.spawnProc(child)

	return child.pid, EOK
}

// IsForkChild reports whether this process is executing because it was
// just forked, rather than exec'd fresh. See Fork's doc comment.
func (p *Proc) IsForkChild() bool { return p.isForkChild }

// reparent hands every child of p over to init, waking init in case one of
// them is already a Zombie waiting to be reaped.
func (pt *ProcTable) reparent(x *Ctx, p *Proc) {
	pt.parentsLock.Acquire(x.C)
	defer pt.parentsLock.Release(x.C)
	for i, parentIdx := range pt.parents {
		if parentIdx == p.index {
			pt.parents[i] = pt.initProc.index
			if pt.procs[i].state == Zombie {
				x.wakeup(waitChannel(pt.initProc))
			}
		}
	}
}

// doExit is spec.md §4.5's process termination: close files, drop cwd,
// reparent children to init, record the exit status, become a Zombie, and
// hand control back to the scheduler for the last time. It never returns;
// the goroutine running it ends here, and the Proc itself is only freed
// once a parent's Wait reaps it.
func doExit(x *Ctx, status int32) {
	k := x.K
	p := x.P

	for i, f := range p.ofile {
		if f != nil {
			k.files.Close(x, f)
			p.ofile[i] = nil
		}
	}
	if p.cwd != nil {
		k.itable.Lock(x, p.cwd)
		k.itable.Unlock(x, p.cwd)
		k.itable.Put(x, p.cwd)
		p.cwd = nil
	}

	k.procs.parentsLock.Acquire(x.C)
	parentIdx := k.procs.parents[p.index]
	k.procs.parentsLock.Release(x.C)

	k.procs.reparent(x, p)

	if parentIdx >= 0 {
		parent := k.procs.procs[parentIdx]
		x.wakeup(waitChannel(parent))
	}

	p.lock.Acquire(x.C)
	p.xstate = status
	p.state = Zombie

	if p.lock.owner != x.C {
		panic("doExit: lost proc lock ownership")
	}
	if x.C.noff != 1 {
		panic("doExit: locks held")
	}
	p.ctx.toSched <- struct{}{} // final handoff: the scheduler reaps p.lock from here

	// Goexit, not return: whoever called doExit (the exit syscall, or
	// spawnProc after a body that returned normally) must never execute
	// another instruction afterward, or it would run doExit a second time
	// on an already-reaped Proc. Goexit still runs RunBody's deferred
	// recover on the way out; recover is a no-op on a Goexit unwind, so it
	// cannot turn this into a second call either.
	runtime.Goexit()
}

// Wait blocks until a child exits, reaps it, and reports its pid and exit
// status. Returns ECHILD immediately if the caller has no children.
func Wait(x *Ctx) (int, int32, Errno) {
	k := x.K
	p := x.P

	k.procs.parentsLock.Acquire(x.C)
	for {
		haveKids := false
		for i, parentIdx := range k.procs.parents {
			if parentIdx != p.index {
				continue
			}
			haveKids = true
			child := k.procs.procs[i]
			child.lock.Acquire(x.C)
			if child.state == Zombie {
				pid := child.pid
				xstate := child.xstate
				child.lock.Release(x.C)
				k.procs.free(x.C, child)
				k.procs.parents[i] = -1
				k.procs.parentsLock.Release(x.C)
				return pid, xstate, EOK
			}
			child.lock.Release(x.C)
		}
		if !haveKids || x.Killed() {
			k.procs.parentsLock.Release(x.C)
			return -1, 0, ECHILD
		}
		x.sleep(waitChannel(p), k.procs.parentsLock)
	}
}

// spawnProc starts the goroutine that drives p's entire lifetime: block
// until first scheduled, run the one-shot boot hook if this is the very
// first process ever scheduled, run the program body under RunBody's fault
// boundary, then exit with whatever status it returned.
func (k *Kernel) spawnProc(p *Proc) {
	go func() {
		cpu := <-p.ctx.toProc
		x := &Ctx{K: k, C: cpu, P: p}

		k.bootOnce.Do(func() {
			if k.onFirstSchedule != nil {
				k.onFirstSchedule(x)
			}
		})

		status := RunBody(x)
		doExit(x, status)
	}()
}
