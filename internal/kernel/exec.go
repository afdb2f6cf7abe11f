package kernel

// Program is a registered "user program": spec.md §4.13's ELF loader has
// no real machine code to load in a hosted Go process, so a binary name
// resolves to one of these closures instead (DESIGN.md's Open Question
// decision). Everything around it — fresh address space, stack, argv
// layout, trapframe — still happens exactly as described in §4.13; only
// the final "jump to the entry point" step is a Go call instead of an
// sret.
type Program func(x *Ctx)

// ProgramRegistry maps an executable path to its Program, the hosted
// stand-in for a filesystem full of ELF binaries.
type ProgramRegistry struct {
	progs map[string]Program
}

func NewProgramRegistry() *ProgramRegistry {
	return &ProgramRegistry{progs: map[string]Program{}}
}

func (r *ProgramRegistry) Register(path string, p Program) {
	r.progs[path] = p
}

func (r *ProgramRegistry) Lookup(path string) (Program, bool) {
	p, ok := r.progs[path]
	return p, ok
}

// Exec replaces the calling process's image (spec.md §4.13): resolve path
// to a Program, build a fresh address space with the argv strings and
// pointer array pushed onto a new stack exactly as real exec lays them
// out, discard the old address space, and run the new program. Like real
// exec, it does not return to the caller on success — once the new
// program returns, Exec calls doExit(x, 0), which ends the calling
// goroutine with runtime.Goexit, and a caller that only ever reaches the
// line after Exec() on failure is using it correctly.
func Exec(x *Ctx, path string, argv []string) Errno {
	prog, ok := x.K.programs.Lookup(path)
	if !ok {
		return ENOENT
	}
	if len(argv) > MaxArg {
		return EINVAL
	}

	pt, ok := NewPageTableWithTrampoline(x.C, x.K)
	if !ok {
		return ENOMEM
	}

	sz, sp, argvVA, err := buildStackAndArgv(x, pt, argv)
	if err != EOK {
		pt.Unmap(x.C, Trampoline, PageSize, false)
		pt.Unmap(x.C, Trapframe, PageSize, false)
		return err
	}

	oldPT, oldSz, oldVmas := x.P.pagetable, x.P.sz, x.P.vmas
	x.P.pagetable = pt
	x.P.sz = sz
	x.P.vmas = nil
	x.P.name = path
	x.P.body = prog
	x.P.isForkChild = false
	x.P.trapframe = &TrapFrame{Sp: sp, Argc: uint64(len(argv)), Argv: argvVA}

	if oldPT != nil {
		unmapUserPagetable(x.C, oldPT, oldSz, oldVmas)
	}

	prog(x)
	doExit(x, 0)
	panic("exec: doExit returned")
}

// Argv reads the calling process's own argument vector back out of its
// user stack via its own page table — the way a real user program would,
// since exec.go really did push these strings and an array of pointers to
// them there. A Program closure calls this instead of receiving argv as a
// parameter, so it sees exactly what spec.md §4.13 says exec hands a
// program: a stack-resident argc/argv, not a Go-native convenience.
func (x *Ctx) Argv() []string {
	tf := x.P.trapframe
	if tf == nil {
		return nil
	}
	out := make([]string, 0, tf.Argc)
	for i := uint64(0); i < tf.Argc; i++ {
		var b [8]byte
		if err := x.P.pagetable.CopyIn(x.C, b[:], tf.Argv+i*8); err != EOK {
			break
		}
		ptr := uint64(b[0]) | uint64(b[1])<<8 | uint64(b[2])<<16 | uint64(b[3])<<24 |
			uint64(b[4])<<32 | uint64(b[5])<<40 | uint64(b[6])<<48 | uint64(b[7])<<56
		s, err := x.P.pagetable.CopyInStr(x.C, ptr, MaxPath)
		if err != EOK {
			break
		}
		out = append(out, s)
	}
	return out
}

func NewPageTableWithTrampoline(c *Cpu, k *Kernel) (*PageTable, bool) {
	pt, ok := NewPageTable(c, k.alloc)
	if !ok {
		return nil, false
	}
	if !pt.Map(c, Trampoline, k.trampolinePA, PageSize, PteR|PteX) {
		return nil, false
	}
	if !pt.Map(c, Trapframe, k.trapframePA, PageSize, PteR|PteW) {
		pt.Unmap(c, Trampoline, PageSize, false)
		return nil, false
	}
	return pt, true
}

// buildStackAndArgv allocates one user stack page plus the argv strings
// and an array of pointers to them, pushed from the top of the page
// downward, 16-byte aligned, terminated with a NULL pointer — the layout
// spec.md §4.13 requires so a program reading its own argv sees standard
// argc/argv conventions.
func buildStackAndArgv(x *Ctx, pt *PageTable, argv []string) (sz, sp, argvVA uint64, err Errno) {
	sz, errno := uvmAlloc(x.C, x.K.alloc, pt, 0, PageSize, PteW)
	if errno != EOK {
		return 0, 0, 0, errno
	}

	sp = sz
	var ustrings [MaxArg]uint64
	for i := len(argv) - 1; i >= 0; i-- {
		s := argv[i]
		n := uint64(len(s) + 1)
		sp -= n
		sp -= sp % 16
		if sp < sz-PageSize {
			return 0, 0, 0, EINVAL
		}
		buf := make([]byte, n)
		copy(buf, s)
		if e := pt.CopyOut(x.C, sp, buf); e != EOK {
			return 0, 0, 0, e
		}
		ustrings[i] = sp
	}

	sp -= uint64(len(argv)+1) * 8
	sp -= sp % 16
	argvVA = sp
	for i, ua := range ustrings[:len(argv)] {
		var b [8]byte
		b[0] = byte(ua)
		b[1] = byte(ua >> 8)
		b[2] = byte(ua >> 16)
		b[3] = byte(ua >> 24)
		b[4] = byte(ua >> 32)
		b[5] = byte(ua >> 40)
		b[6] = byte(ua >> 48)
		b[7] = byte(ua >> 56)
		if e := pt.CopyOut(x.C, argvVA+uint64(i)*8, b[:]); e != EOK {
			return 0, 0, 0, e
		}
	}
	var zero [8]byte
	if e := pt.CopyOut(x.C, argvVA+uint64(len(argv))*8, zero[:]); e != EOK {
		return 0, 0, 0, e
	}

	return sz, sp, argvVA, EOK
}
