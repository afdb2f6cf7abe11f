// Package netstack is the socket boundary satisfying spec.md §6's
// socket/bind/connect syscalls (22/23/26). spec.md §1 keeps ARP/IP/UDP
// framing out of core scope — "the network stack is a consumer of the
// file abstraction, not core engineering" — so this opens real host UDP
// sockets via net rather than reimplementing original_source's
// kernel/src/net/*.rs and e1000.rs by hand.
package netstack

import (
	"fmt"
	"net"
	"time"

	"github.com/kazukousen/xv6go/internal/kernel"
)

// UDPSocket implements kernel.Socket over a net.UDPConn.
type UDPSocket struct {
	conn *net.UDPConn
}

// Socket creates an unbound, unconnected endpoint (syscall 22).
func Socket() (*UDPSocket, error) {
	conn, err := net.ListenUDP("udp", nil)
	if err != nil {
		return nil, fmt.Errorf("netstack: socket: %w", err)
	}
	return &UDPSocket{conn: conn}, nil
}

// Bind rebinds the endpoint to a specific local port (syscall 23).
func Bind(port int) (*UDPSocket, error) {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{Port: port})
	if err != nil {
		return nil, fmt.Errorf("netstack: bind: %w", err)
	}
	return &UDPSocket{conn: conn}, nil
}

// Connect fixes the peer address future Write calls send to (syscall 26).
// net.UDPConn has no re-dial primitive once listening, so this replaces
// the underlying conn with one dialed straight at the peer.
func (s *UDPSocket) Connect(addr string) error {
	raddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return fmt.Errorf("netstack: connect: resolve %s: %w", addr, err)
	}
	local := s.conn.LocalAddr().(*net.UDPAddr)
	s.conn.Close()
	conn, err := net.DialUDP("udp", local, raddr)
	if err != nil {
		return fmt.Errorf("netstack: connect: dial %s: %w", addr, err)
	}
	s.conn = conn
	return nil
}

func (s *UDPSocket) Read(x *kernel.Ctx, dst []byte) (int, kernel.Errno) {
	for {
		s.conn.SetReadDeadline(time.Now().Add(50 * time.Millisecond))
		n, err := s.conn.Read(dst)
		if err == nil {
			return n, kernel.EOK
		}
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			if x.Killed() {
				return 0, kernel.EINTR
			}
			x.Yield()
			continue
		}
		return 0, kernel.EIO
	}
}

func (s *UDPSocket) Write(x *kernel.Ctx, src []byte) (int, kernel.Errno) {
	n, err := s.conn.Write(src)
	if err != nil {
		return n, kernel.EIO
	}
	return n, kernel.EOK
}

func (s *UDPSocket) Close() error {
	return s.conn.Close()
}
