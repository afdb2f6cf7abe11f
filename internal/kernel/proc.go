package kernel

import "unsafe"

// Channel is the opaque rendezvous identifier sleep/wakeup use (spec.md
// §4.5, §GLOSSARY). Any address that both the producer and the consumer
// agree on works; by convention it is an address inside the shared
// resource being waited for (a buffer, an inode's lock word, a pipe's
// read/write counters).
type Channel = unsafe.Pointer

// ProcState is spec.md §3's process state machine.
type ProcState int

const (
	Unused ProcState = iota
	Allocated
	Runnable
	Running
	Sleeping
	Zombie
)

// Cwd returns p's current working directory inode reference. Exclusive to
// the owning goroutine, like the other fields in that section of Proc.
func (p *Proc) Cwd() *Inode { return p.cwd }

// Env returns p's environment map, the getenv/setenv/unsetenv/listenv
// syscalls' backing store. Exclusive to the owning goroutine; Fork gives
// the child its own copy rather than sharing the parent's.
func (p *Proc) Env() map[string]string { return p.env }

func (s ProcState) String() string {
	switch s {
	case Unused:
		return "unused"
	case Allocated:
		return "allocated"
	case Runnable:
		return "runnable"
	case Running:
		return "running"
	case Sleeping:
		return "sleeping"
	case Zombie:
		return "zombie"
	default:
		return "?"
	}
}

// schedHandoff is the channel-pair context switch rendezvous: the Go-native
// stand-in for swtch's register save/restore (DESIGN.md explains the
// substitution). Exactly one side is ever runnable at a time.
type schedHandoff struct {
	toProc  chan *Cpu     // scheduler -> process: you are Running now, on this cpu
	toSched chan struct{} // process -> scheduler: I've stopped running
}

func newSchedHandoff() *schedHandoff {
	return &schedHandoff{toProc: make(chan *Cpu), toSched: make(chan struct{})}
}

// Proc is spec.md §3. Fields are split exactly as the spec splits them:
// lock-guarded metadata first, exclusive-access data below.
type Proc struct {
	lock *SpinLock

	// --- guarded by lock ---
	state   ProcState
	channel Channel // non-nil while Sleeping
	pid     int
	killed  bool
	xstate  int32

	// --- exclusive to the owning goroutine (plus fork's writer, free's caller) ---
	index     int
	sz        uint64 // size of user address space (heap top), bytes
	pagetable *PageTable
	trapframe *TrapFrame
	cwd       *Inode
	ofile     [NOFile]*File
	vmas      []*Vma
	env       map[string]string
	name      string
	isForkChild bool

	ctx  *schedHandoff
	body func(*Ctx) // the "user program"; see exec.go/DESIGN.md
}

// ProcTable is the fixed-size process table plus the parents map, kept in
// its own lock exactly per spec.md §3's invariant that it be separable from
// per-process locks so it can be walked without nested acquisition.
type ProcTable struct {
	k *Kernel

	procs [NProc]*Proc

	parentsLock *SpinLock
	parents     [NProc]int // parent table index, -1 if none

	pidLock *SpinLock
	nextPid int

	initProc *Proc
}

func newProcTable(k *Kernel) *ProcTable {
	pt := &ProcTable{
		k:           k,
		parentsLock: NewSpinLock("parents"),
		pidLock:     NewSpinLock("pid"),
		nextPid:     1,
	}
	for i := range pt.procs {
		pt.procs[i] = &Proc{
			lock:  NewSpinLock("proc"),
			index: i,
			ctx:   newSchedHandoff(),
		}
		pt.parents[i] = -1
	}
	return pt
}

func (pt *ProcTable) allocPid() int {
	pt.pidLock.Acquire(pt.k.bootCpu)
	defer pt.pidLock.Release(pt.k.bootCpu)
	id := pt.nextPid
	pt.nextPid++
	return id
}

// allocProc finds an Unused slot, exactly as xv6's allocproc scans the table
// acquiring and releasing each candidate's own lock in turn.
func (pt *ProcTable) allocProc(c *Cpu) *Proc {
	for _, p := range pt.procs {
		p.lock.Acquire(c)
		if p.state == Unused {
			p.pid = pt.allocPid()
			p.state = Allocated
			p.killed = false
			p.xstate = 0
			p.channel = nil
			p.sz = 0
			p.vmas = nil
			p.env = map[string]string{}
			p.isForkChild = false
			p.ctx = newSchedHandoff()
			p.lock.Release(c)
			return p
		}
		p.lock.Release(c)
	}
	return nil
}

// free returns p to Unused, dropping everything fork/exec built up. Called
// either by the exiting process (never — a zombie frees nothing of its own
// runtime state until reaped) or by the parent's wait().
func (pt *ProcTable) free(c *Cpu, p *Proc) {
	p.lock.Acquire(c)
	defer p.lock.Release(c)
	if p.trapframe != nil {
		p.trapframe = nil
	}
	if p.pagetable != nil {
		unmapUserPagetable(c, p.pagetable, p.sz, p.vmas)
		p.pagetable = nil
	}
	p.sz = 0
	p.pid = 0
	p.name = ""
	p.channel = nil
	p.killed = false
	p.xstate = 0
	p.vmas = nil
	p.cwd = nil
	p.env = nil
	p.state = Unused
}
