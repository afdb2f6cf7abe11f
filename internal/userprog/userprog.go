// Package userprog holds the handful of "user programs" registered into a
// booted kernel.Kernel's ProgramRegistry — init, sh, cat, echo, ls — the
// hosted stand-ins for the ELF binaries original_source/user/src/bin
// compiles (init.rs, cat.rs, echo.rs, ls.rs). Each is plain Go code that
// only ever reaches the rest of the kernel through kernel.Syscall, exactly
// the boundary a real user binary would cross with an ecall.
package userprog

import (
	"strconv"
	"strings"

	"github.com/kazukousen/xv6go/internal/kernel"
)

// Register installs every program this package provides under the names
// a shell command line would use to invoke them.
func Register(reg *kernel.ProgramRegistry) {
	reg.Register("init", Init)
	reg.Register("sh", Sh)
	reg.Register("cat", Cat)
	reg.Register("echo", Echo)
	reg.Register("ls", Ls)
}

func sys(x *kernel.Ctx, num int, a kernel.Args) int64 {
	return kernel.Syscall(x, num, a)
}

func exit(x *kernel.Ctx, status int64) {
	sys(x, kernel.SysExit, kernel.Args{Int: [6]int64{status}})
}

// Init is the first process ever run (spec.md §4.5's fsinit-adjacent
// bootstrap, grounded on original_source/user/src/bin/init.rs): it makes
// sure /console exists, wires it up as stdin/stdout/stderr, then forks and
// waits for "sh" forever, restarting it whenever it exits. Because a
// forked child's goroutine cannot resume mid-function (proc_life.go's
// Fork doc comment), the child branch below is taken by the child
// re-entering this same function from the top with IsForkChild() true,
// not by a zero return from sys(SysFork).
func Init(x *kernel.Ctx) {
	if x.P.IsForkChild() {
		sys(x, kernel.SysExec, kernel.Args{Str: [2]string{"sh"}, Argv: []string{"sh"}})
		exit(x, 1) // only reached if exec failed
		return
	}

	fd := sys(x, kernel.SysOpen, kernel.Args{Str: [2]string{"console"}, Int: [6]int64{int64(kernel.ORdWr)}})
	if fd < 0 {
		sys(x, kernel.SysMknod, kernel.Args{Str: [2]string{"console"}, Int: [6]int64{1, 1}})
		fd = sys(x, kernel.SysOpen, kernel.Args{Str: [2]string{"console"}, Int: [6]int64{int64(kernel.ORdWr)}})
	}
	sys(x, kernel.SysDup, kernel.Args{Int: [6]int64{fd}}) // fd 1
	sys(x, kernel.SysDup, kernel.Args{Int: [6]int64{fd}}) // fd 2

	for {
		pid := sys(x, kernel.SysFork, kernel.Args{})
		if pid < 0 {
			exit(x, 1)
		}
		for {
			var status [4]byte
			wpid := sys(x, kernel.SysWait, kernel.Args{Buf: status[:]})
			if wpid == pid {
				break // the shell exited; restart it
			}
			if wpid < 0 {
				exit(x, 1) // no children left at all
			}
			// reaped a reparented orphan; keep waiting for the shell
		}
	}
}

// pendingExecEnv is the environment-variable key Sh stashes the next
// command line under before forking. A forked child's goroutine cannot
// resume runCommand mid-function (proc_life.go's Fork doc comment) — it
// re-enters Sh itself from the top — but Fork does copy the parent's env
// map into the child, so this is how the child learns what to exec.
const pendingExecEnv = "__sh_pending_argv"

// Sh is a minimal line shell: prompt, read a line from fd 0, split on
// whitespace, fork+exec the first word with the rest as argv, wait for
// it, repeat. No pipes, redirection, or builtins beyond "exit" — spec.md
// places a real shell language out of scope; this exists so init.rs's
// "starting sh" has somewhere real to land.
func Sh(x *kernel.Ctx) {
	if x.P.IsForkChild() {
		fields := strings.Split(x.P.Env()[pendingExecEnv], "\x00")
		sys(x, kernel.SysExec, kernel.Args{Str: [2]string{fields[0]}, Argv: fields})
		writeString(x, 1, "sh: exec failed: "+fields[0]+"\n")
		exit(x, 1)
		return
	}

	for {
		writeString(x, 1, "$ ")
		line, ok := readLine(x, 0)
		if !ok {
			exit(x, 0) // EOF on stdin
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		if fields[0] == "exit" {
			exit(x, 0)
		}
		runCommand(x, fields)
	}
}

// runCommand stashes fields for the about-to-be-forked child (see
// pendingExecEnv), forks, and waits for the child in the parent.
func runCommand(x *kernel.Ctx, fields []string) {
	x.P.Env()[pendingExecEnv] = strings.Join(fields, "\x00")

	pid := sys(x, kernel.SysFork, kernel.Args{})
	if pid < 0 {
		writeString(x, 1, "sh: fork failed\n")
		return
	}
	var status [4]byte
	for {
		wpid := sys(x, kernel.SysWait, kernel.Args{Buf: status[:]})
		if wpid == pid || wpid < 0 {
			return
		}
	}
}

func writeString(x *kernel.Ctx, fd int, s string) {
	sys(x, kernel.SysWrite, kernel.Args{Int: [6]int64{int64(fd)}, Buf: []byte(s)})
}

// readLine reads one line from fd, byte by byte (there is no stdio buffer
// here, same as xv6's user-space gets()). ok is false on EOF with nothing
// read.
func readLine(x *kernel.Ctx, fd int) (string, bool) {
	var line []byte
	var b [1]byte
	for {
		n := sys(x, kernel.SysRead, kernel.Args{Int: [6]int64{int64(fd)}, Buf: b[:]})
		if n <= 0 {
			return string(line), len(line) > 0
		}
		if b[0] == '\n' {
			return string(line), true
		}
		line = append(line, b[0])
	}
}

// Cat streams every named argument to fd 1, or fd 0 itself if called with
// no arguments, matching original_source/user/src/bin/cat.rs.
func Cat(x *kernel.Ctx) {
	argv := x.Argv()
	if len(argv) <= 1 {
		catFd(x, 0)
		exit(x, 0)
	}
	for _, name := range argv[1:] {
		fd := sys(x, kernel.SysOpen, kernel.Args{Str: [2]string{name}, Int: [6]int64{int64(kernel.ORdOnly)}})
		if fd < 0 {
			writeString(x, 1, "cat: cannot open "+name+"\n")
			exit(x, 1)
		}
		catFd(x, int(fd))
		sys(x, kernel.SysClose, kernel.Args{Int: [6]int64{fd}})
	}
	exit(x, 0)
}

func catFd(x *kernel.Ctx, fd int) {
	buf := make([]byte, 512)
	for {
		n := sys(x, kernel.SysRead, kernel.Args{Int: [6]int64{int64(fd)}, Buf: buf})
		if n <= 0 {
			return
		}
		sys(x, kernel.SysWrite, kernel.Args{Int: [6]int64{1}, Buf: buf[:n]})
	}
}

// Echo writes its arguments back out space-separated with a trailing
// newline, matching original_source/user/src/bin/echo.rs.
func Echo(x *kernel.Ctx) {
	argv := x.Argv()
	if len(argv) > 1 {
		writeString(x, 1, strings.Join(argv[1:], " "))
	}
	writeString(x, 1, "\n")
	exit(x, 0)
}

// dirEntSize/dirNameSize mirror spec.md §6's on-disk DirEnt layout
// (u16 inum, [u8;30] name) — stable wire format, not a kernel-internal
// detail, so it is safe to hardcode here the way a real user binary
// linking against a stable libc struct would.
const (
	dirEntSize  = 32
	dirNameSize = 30
)

// statSize mirrors stat.go's encodeStat layout: Dev,Inum,Type,Nlink,Size,
// five little-endian u32 fields.
const statSize = 20

func statType(b []byte) uint32  { return leU32(b[8:12]) }
func statInum(b []byte) uint32  { return leU32(b[4:8]) }
func statSizeOf(b []byte) uint32 { return leU32(b[16:20]) }

func leU32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

// Ls lists a path's directory entries (or its own stat line, if path
// names a plain file), matching original_source/user/src/bin/ls.rs's
// shape without its fixed-width column formatting.
func Ls(x *kernel.Ctx) {
	argv := x.Argv()
	targets := argv[1:]
	if len(targets) == 0 {
		targets = []string{"."}
	}
	for _, path := range targets {
		ls(x, path)
	}
	exit(x, 0)
}

func ls(x *kernel.Ctx, path string) {
	fd := sys(x, kernel.SysOpen, kernel.Args{Str: [2]string{path}, Int: [6]int64{int64(kernel.ORdOnly)}})
	if fd < 0 {
		writeString(x, 1, "ls: cannot open "+path+"\n")
		return
	}
	defer sys(x, kernel.SysClose, kernel.Args{Int: [6]int64{fd}})

	var st [statSize]byte
	if sys(x, kernel.SysFstat, kernel.Args{Int: [6]int64{fd}, Buf: st[:]}) < 0 {
		writeString(x, 1, "ls: cannot stat "+path+"\n")
		return
	}

	const typeDirectory = 1
	if statType(st[:]) != typeDirectory {
		printStatLine(x, path, st[:])
		return
	}

	var de [dirEntSize]byte
	for {
		n := sys(x, kernel.SysRead, kernel.Args{Int: [6]int64{fd}, Buf: de[:]})
		if n != dirEntSize {
			return
		}
		inum := uint16(de[0]) | uint16(de[1])<<8
		if inum == 0 {
			continue
		}
		name := dirEntName(de[2 : 2+dirNameSize])
		childPath := strings.TrimSuffix(path, "/") + "/" + name
		cfd := sys(x, kernel.SysOpen, kernel.Args{Str: [2]string{childPath}, Int: [6]int64{int64(kernel.ORdOnly)}})
		if cfd < 0 {
			continue
		}
		var cst [statSize]byte
		if sys(x, kernel.SysFstat, kernel.Args{Int: [6]int64{cfd}, Buf: cst[:]}) == 0 {
			printStatLine(x, name, cst[:])
		}
		sys(x, kernel.SysClose, kernel.Args{Int: [6]int64{cfd}})
	}
}

func dirEntName(b []byte) string {
	i := 0
	for i < len(b) && b[i] != 0 {
		i++
	}
	return string(b[:i])
}

func printStatLine(x *kernel.Ctx, name string, st []byte) {
	line := name + " type=" + strconv.Itoa(int(statType(st))) +
		" inum=" + strconv.Itoa(int(statInum(st))) +
		" size=" + strconv.Itoa(int(statSizeOf(st))) + "\n"
	writeString(x, 1, line)
}
