package kernel

import (
	"fmt"
	"sync"

	"github.com/go-logr/logr"
)

// Kernel is the singleton tying every subsystem in §4 together. One
// process's worth of Go state stands in for what real xv6 keeps as global
// C variables (bcache, log, itable, proc[NPROC]...); everything is reached
// through this struct instead so tests can stand up more than one.
type Kernel struct {
	cfg KernelConfig

	cpus    []*Cpu
	bootCpu *Cpu

	alloc *Allocator
	bc    *BufferCache
	log   *Log
	ba    *BlockAlloc
	itable *InodeTable
	files *FileTable
	procs *ProcTable

	programs *ProgramRegistry

	sb  Superblock
	dev BlockDevice

	trampolinePA uint64
	trapframePA  uint64

	metrics *Metrics
	logger  logr.Logger

	bootOnce        sync.Once
	onFirstSchedule func(*Ctx)

	ticksLock *SpinLock
	ticks     uint64
}

// KernelConfig is the subset of internal/kconfig.Config the kernel package
// itself needs; cmd/xv6 adapts the TOML-loaded config into this so the
// kernel package does not need to import internal/kconfig.
type KernelConfig struct {
	NCPU            int
	BufferCacheSize int
	RootDev         uint32
}

// New builds every subsystem in boot order (spec.md §1's documented
// sequence): physical allocator, trampoline/trapframe frames, process
// table, buffer cache over dev, log recovery, bitmap allocator, inode
// table, file table with the given console device registered at major=1.
// The filesystem image backing dev must already contain a valid
// superblock (cmd/mkfs builds one).
func New(cfg KernelConfig, dev BlockDevice, console Device, logger logr.Logger, metrics *Metrics) (*Kernel, error) {
	if cfg.NCPU <= 0 {
		cfg.NCPU = NCPUDefault
	}
	if cfg.RootDev == 0 {
		cfg.RootDev = RootDev
	}

	k := &Kernel{cfg: cfg, dev: dev, logger: logger, metrics: metrics, programs: NewProgramRegistry(), ticksLock: NewSpinLock("ticks")}

	k.bootCpu = newCpu(0)
	k.cpus = make([]*Cpu, cfg.NCPU)
	k.cpus[0] = k.bootCpu
	for i := 1; i < cfg.NCPU; i++ {
		k.cpus[i] = newCpu(i)
	}

	arenaSize := uint64(cfg.BufferCacheSize+NInode+NProc*8+1024) * PageSize
	k.alloc = NewAllocator(k.bootCpu, arenaSize)

	trampolinePA, ok := k.alloc.AllocPage(k.bootCpu)
	if !ok {
		return nil, fmt.Errorf("kernel: out of memory allocating trampoline page")
	}
	trapframePA, ok := k.alloc.AllocPage(k.bootCpu)
	if !ok {
		return nil, fmt.Errorf("kernel: out of memory allocating trapframe page")
	}
	k.trampolinePA, k.trapframePA = trampolinePA, trapframePA

	k.procs = newProcTable(k)

	k.bc = NewBufferCache(dev, metrics)

	bootProc := &Proc{lock: NewSpinLock("bootproc"), ctx: newSchedHandoff()}
	boot := &Ctx{K: k, C: k.bootCpu, P: bootProc}

	sbBuf := k.bc.Bread(boot, cfg.RootDev, 1)
	k.sb = decodeSuperblock(sbBuf.data[:superblockSize])
	k.bc.Brelse(boot, sbBuf)
	if k.sb.Magic != MagicSuperblock {
		return nil, fmt.Errorf("kernel: bad superblock magic %#x", k.sb.Magic)
	}

	k.log = NewLog(boot, k.bc, cfg.RootDev, k.sb.LogStart, k.sb.NLog, metrics)
	k.ba = NewBlockAlloc(cfg.RootDev, k.sb.BmapStart, k.sb.Size, k.bc, k.log)
	k.itable = NewInodeTable(cfg.RootDev, k.sb, k.bc, k.log, k.ba)

	k.files = NewFileTable(k.itable, k.log)
	if console != nil {
		k.files.RegisterDevice(1, console)
	}

	return k, nil
}

// Programs exposes the program registry so cmd/xv6 can register the
// binaries this boot image should be able to exec.
func (k *Kernel) Programs() *ProgramRegistry { return k.programs }

// OnFirstSchedule sets the one-shot hook run inside the very first
// process's own goroutine the first time it is scheduled (spec.md §4.5's
// "Init bootstrap on first scheduling"), the hosted equivalent of xv6's
// forkret calling fsinit() before returning to user space for the first
// time ever.
func (k *Kernel) OnFirstSchedule(fn func(*Ctx)) { k.onFirstSchedule = fn }

// Spawn creates the first process (like xv6's userinit): allocates a Proc,
// builds its address space via Exec-equivalent program lookup, sets it
// Runnable, and starts its goroutine. Every later process exists only via
// Fork from this one.
func (k *Kernel) Spawn(path string, argv []string) (int, error) {
	prog, ok := k.programs.Lookup(path)
	if !ok {
		return 0, fmt.Errorf("kernel: no program registered at %q", path)
	}

	p := k.procs.allocProc(k.bootCpu)
	if p == nil {
		return 0, fmt.Errorf("kernel: process table full")
	}

	pt, ok := NewPageTableWithTrampoline(k.bootCpu, k)
	if !ok {
		k.procs.free(k.bootCpu, p)
		return 0, fmt.Errorf("kernel: out of memory building init address space")
	}
	p.pagetable = pt
	p.name = path
	p.body = prog
	p.env = map[string]string{}

	boot := &Ctx{K: k, C: k.bootCpu, P: p}
	sz, sp, argvVA, err := buildStackAndArgv(boot, pt, argv)
	if err != EOK {
		k.procs.free(k.bootCpu, p)
		return 0, fmt.Errorf("kernel: building init stack: %w", err)
	}
	p.sz = sz
	p.trapframe = &TrapFrame{Sp: sp, Argc: uint64(len(argv)), Argv: argvVA}

	rootIp := k.itable.Get(boot, k.cfg.RootDev, RootInum)
	p.cwd = rootIp

	k.procs.parentsLock.Acquire(k.bootCpu)
	k.procs.initProc = p
	k.procs.parentsLock.Release(k.bootCpu)

	p.lock.Acquire(k.bootCpu)
	p.state = Runnable
	p.lock.Release(k.bootCpu)

	k.spawnProc(p)
	return p.pid, nil
}

// Cpus returns every configured hart, for cmd/xv6/main.go to start each
// one's Scheduler loop under an errgroup.Group.
func (k *Kernel) Cpus() []*Cpu { return k.cpus }

// BootCpu returns the hart used for sequential boot-time work (superblock
// read, log recovery, first-process construction) before any scheduler
// loop is running.
func (k *Kernel) BootCpu() *Cpu { return k.bootCpu }
