package netaccess

import (
	"context"
	"fmt"
	"net"
	"sync"
	"syscall"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// SocketPool binds multiple UDP sockets to the same local port (via
// SO_REUSEADDR/SO_REUSEPORT) so sends can be spread across them instead
// of serializing on a single socket's write path under load, and picks
// the least-loaded socket for each outbound send.
type SocketPool struct {
	mu      sync.Mutex
	conns   []*net.UDPConn
	outstanding []int
}

// NewSocketPool binds n sockets to laddr (port 0 lets the kernel choose,
// after which every socket in the pool shares that port).
func NewSocketPool(n int, laddr *net.UDPAddr) (*SocketPool, error) {
	if n < 1 {
		n = 1
	}
	pool := &SocketPool{
		conns:       make([]*net.UDPConn, 0, n),
		outstanding: make([]int, 0, n),
	}

	lc := net.ListenConfig{Control: reuseAddrPortControl}
	addr := laddr
	if addr == nil {
		addr = &net.UDPAddr{}
	}

	for i := 0; i < n; i++ {
		pc, err := lc.ListenPacket(context.Background(), "udp", addr.String())
		if err != nil {
			pool.Close()
			return nil, errors.Wrapf(err, "netaccess: bind socket %d/%d", i+1, n)
		}
		conn := pc.(*net.UDPConn)
		pool.conns = append(pool.conns, conn)
		pool.outstanding = append(pool.outstanding, 0)

		if addr.Port == 0 {
			// Pin subsequent sockets to the port the kernel chose for the
			// first one, so SO_REUSEPORT actually shares a single port.
			if la, ok := conn.LocalAddr().(*net.UDPAddr); ok {
				addr = &net.UDPAddr{IP: addr.IP, Port: la.Port}
			}
		}
	}
	return pool, nil
}

// reuseAddrPortControl sets SO_REUSEADDR and SO_REUSEPORT on the raw fd
// before bind(2), letting every socket in the pool share one port.
func reuseAddrPortControl(network, address string, c syscall.RawConn) error {
	var sockErr error
	err := c.Control(func(fd uintptr) {
		if err := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
			sockErr = err
			return
		}
		sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
	})
	if err != nil {
		return err
	}
	return sockErr
}

// Send picks the socket with the fewest outstanding sends and writes to
// it, per the least-outstanding-count distribution policy.
func (p *SocketPool) Send(data []byte, dest *net.UDPAddr) error {
	p.mu.Lock()
	best := 0
	for i := 1; i < len(p.outstanding); i++ {
		if p.outstanding[i] < p.outstanding[best] {
			best = i
		}
	}
	p.outstanding[best]++
	conn := p.conns[best]
	p.mu.Unlock()

	_, err := conn.WriteToUDP(data, dest)

	p.mu.Lock()
	p.outstanding[best]--
	p.mu.Unlock()

	return err
}

// Conns exposes the underlying sockets so a NetAccessManager can run a
// receive loop per socket, as the concurrency model requires.
func (p *SocketPool) Conns() []*net.UDPConn {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*net.UDPConn(nil), p.conns...)
}

func (p *SocketPool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var firstErr error
	for _, c := range p.conns {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (p *SocketPool) String() string {
	return fmt.Sprintf("netaccess.SocketPool{sockets=%d}", len(p.conns))
}
