// Package console is the UART boundary spec.md §4.12 names as the major=1
// device File: a line-buffered reader/writer grounded on the teacher's
// uart_qemu.go register-polling loop, adapted here from polled MMIO to a
// buffered Go channel since there is no real UART to poll. Input arrives
// through Feed, the stand-in for a real RX-interrupt handler; output goes
// straight to the host writer given at construction (normally os.Stdout).
package console

import (
	"io"
	"sync"

	"github.com/kazukousen/xv6go/internal/kernel"
	"github.com/kazukousen/xv6go/internal/plic"
)

const lineBufSize = 128

// consoleIRQ is the IRQ number the UART posts on a completed line, the
// major number spec.md §4.12 also uses for this device.
const consoleIRQ = 1

// UART implements kernel.Device.
type UART struct {
	out  io.Writer
	ctrl *plic.Controller

	mu     sync.Mutex
	line   []byte
	ready  chan []byte // completed lines, FIFO
	closed bool
}

// New builds a console backed by out. ctrl is the PLIC this UART posts its
// RX-complete IRQ to; nil is fine (trap.go's external-interrupt branch
// simply never sees this device's IRQ, the way a boot image with no PLIC
// wired up at all would never service one).
func New(out io.Writer, ctrl *plic.Controller) *UART {
	return &UART{out: out, ctrl: ctrl, ready: make(chan []byte, 16)}
}

// Feed appends raw input bytes, the stand-in for a UART RX interrupt;
// every '\n' flushes the accumulated line to any blocked Read. Mirrors
// consoleintr's line-discipline, minus backspace/^U editing (no real
// terminal sits on the other end of this boundary).
func (u *UART) Feed(data []byte) {
	u.mu.Lock()
	defer u.mu.Unlock()
	for _, b := range data {
		u.line = append(u.line, b)
		if b == '\n' || len(u.line) >= lineBufSize {
			line := u.line
			u.line = nil
			select {
			case u.ready <- line:
			default:
			}
			if u.ctrl != nil {
				u.ctrl.Post(consoleIRQ)
			}
		}
	}
}

// Read blocks until a full line is available, then copies as much of it as
// fits into dst (spec.md §4.12: a device File forwards straight to its
// Device without going through the inode/log path).
func (u *UART) Read(x *kernel.Ctx, dst []byte) (int, kernel.Errno) {
	for {
		if x.Killed() {
			return 0, kernel.EINTR
		}
		select {
		case line, ok := <-u.ready:
			if !ok {
				return 0, kernel.EIO
			}
			n := copy(dst, line)
			return n, kernel.EOK
		default:
		}
		x.Yield()
	}
}

// Write sends src straight to the host writer.
func (u *UART) Write(x *kernel.Ctx, src []byte) (int, kernel.Errno) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.closed {
		return 0, kernel.EIO
	}
	n, err := u.out.Write(src)
	if err != nil {
		return n, kernel.EIO
	}
	return n, kernel.EOK
}

func (u *UART) Close() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.closed = true
}
