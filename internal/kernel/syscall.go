package kernel

// syscall.go is spec.md §4.14/§6's syscall surface: the one place that
// marshals arguments out of a process's TrapFrame/argv conventions and
// flattens an Errno to the wire integer a user process sees (spec.md §7,
// tier 2 — "surfaced to the caller as -1"). Syscall below returns that
// already-flattened int64; nothing above this layer ever sees an Errno.

// Syscall numbers, spec.md §6's table. Gaps (6, 11, 13, 14, 19, 24, 25)
// are reserved in the original and intentionally unimplemented here too.
const (
	SysFork    = 1
	SysExit    = 2
	SysWait    = 3
	SysPipe    = 4
	SysRead    = 5
	SysExec    = 7
	SysFstat   = 8
	SysChdir   = 9
	SysDup     = 10
	SysSbrk    = 12
	SysOpen    = 15
	SysWrite   = 16
	SysMknod   = 17
	SysUnlink  = 18
	SysMkdir   = 20
	SysClose   = 21
	SysSocket  = 22
	SysBind    = 23
	SysConnect = 26
	SysMmap    = 27
	SysGetenv  = 28
	SysSetenv  = 29
	SysUnsetenv = 30
	SysListenv  = 31
)

// Args is the argument bundle a program body passes to Syscall: a Go
// closure stands in for the real trap path's "read a0..a5 out of the
// trapframe", since there is no real register file to read (trap.go's doc
// comment explains the same substitution for TrapFrame itself).
type Args struct {
	Int  [6]int64
	Str  [2]string
	Buf  []byte // user-supplied destination buffer, already copied in/out by the caller
	Argv []string
}

// Syscall dispatches syscall number num with args, returning the wire
// result every syscall returns: -1 on any Errno, the documented success
// value otherwise. This is the single seam where Errno stops existing.
func Syscall(x *Ctx, num int, a Args) int64 {
	checkPreempt(x)

	switch num {
	case SysFork:
		pid, err := Fork(x)
		if err != EOK {
			return -1
		}
		return int64(pid)

	case SysExit:
		doExit(x, int32(a.Int[0]))
		panic("syscall: exit returned")

	case SysWait:
		pid, status, err := Wait(x)
		if err != EOK {
			return -1
		}
		if len(a.Buf) >= 4 {
			putI32(a.Buf, status)
		}
		return int64(pid)

	case SysPipe:
		fd0, fd1, err := sysPipe(x)
		if err != EOK {
			return -1
		}
		if len(a.Buf) >= 8 {
			putI32(a.Buf[0:4], int32(fd0))
			putI32(a.Buf[4:8], int32(fd1))
		}
		return 0

	case SysRead:
		n, err := sysRead(x, int(a.Int[0]), a.Buf)
		if err != EOK {
			return -1
		}
		return int64(n)

	case SysExec:
		if err := Exec(x, a.Str[0], a.Argv); err != EOK {
			return -1
		}
		return 0

	case SysFstat:
		err := sysFstat(x, int(a.Int[0]), a.Buf)
		if err != EOK {
			return -1
		}
		return 0

	case SysChdir:
		err := sysChdir(x, a.Str[0])
		if err != EOK {
			return -1
		}
		return 0

	case SysDup:
		fd, err := sysDup(x, int(a.Int[0]))
		if err != EOK {
			return -1
		}
		return int64(fd)

	case SysSbrk:
		old, err := Sbrk(x, a.Int[0])
		if err != EOK {
			return -1
		}
		return int64(old)

	case SysOpen:
		fd, err := sysOpen(x, a.Str[0], int(a.Int[0]))
		if err != EOK {
			return -1
		}
		return int64(fd)

	case SysWrite:
		n, err := sysWrite(x, int(a.Int[0]), a.Buf)
		if err != EOK {
			return -1
		}
		return int64(n)

	case SysMknod:
		err := sysMknod(x, a.Str[0], uint16(a.Int[0]), uint16(a.Int[1]))
		if err != EOK {
			return -1
		}
		return 0

	case SysUnlink:
		err := sysUnlink(x, a.Str[0])
		if err != EOK {
			return -1
		}
		return 0

	case SysMkdir:
		err := sysMkdir(x, a.Str[0])
		if err != EOK {
			return -1
		}
		return 0

	case SysClose:
		err := sysClose(x, int(a.Int[0]))
		if err != EOK {
			return -1
		}
		return 0

	case SysSocket:
		fd, err := sysSocket(x)
		if err != EOK {
			return -1
		}
		return int64(fd)

	case SysBind:
		err := sysBind(x, int(a.Int[0]), a.Str[0])
		if err != EOK {
			return -1
		}
		return 0

	case SysConnect:
		err := sysConnect(x, int(a.Int[0]), a.Str[0])
		if err != EOK {
			return -1
		}
		return 0

	case SysMmap:
		// a0=hint a1=size a2=prot a3=flags a4=fd a5=offset, spec.md §6's
		// mmap(hint, size, prot, flags, fd, offset).
		va, err := sysMmap(x, a.Int[0], uint64(a.Int[1]), PTE(a.Int[2]), int(a.Int[3]), int(a.Int[4]), uint32(a.Int[5]))
		if err != EOK {
			return -1
		}
		return int64(va)

	case SysGetenv:
		n, err := sysGetenv(x, a.Str[0], a.Buf)
		if err != EOK {
			return -1
		}
		return int64(n)

	case SysSetenv:
		err := sysSetenv(x, a.Str[0], a.Str[1], a.Int[0] != 0)
		if err != EOK {
			return -1
		}
		return 0

	case SysUnsetenv:
		sysUnsetenv(x, a.Str[0])
		return 0

	case SysListenv:
		n := sysListenv(x, a.Buf)
		return int64(n)

	default:
		return -1
	}
}

func putI32(b []byte, v int32) {
	u := uint32(v)
	b[0] = byte(u)
	b[1] = byte(u >> 8)
	b[2] = byte(u >> 16)
	b[3] = byte(u >> 24)
}
