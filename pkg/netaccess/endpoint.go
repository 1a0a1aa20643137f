package netaccess

import (
	"io"
	"net"
	"sync"
	"time"
)

// Endpoint implements net.Conn over a circular queue of buffers filled by
// the owning Demux's dispatch loop, so a consumer can Read() without
// blocking the dispatch goroutine on its own processing.
type Endpoint struct {
	demux *Demux

	bufs  [][]byte
	nbufs int
	nused int
	first int

	available chan struct{}
	dead      chan struct{}

	sync.Mutex
}

func newEndpoint(d *Demux, nbufs, bufsize int) *Endpoint {
	pool := make([]byte, nbufs*bufsize)
	bufs := make([][]byte, nbufs)
	for i := 0; i < nbufs; i++ {
		bufs[i] = pool[i*bufsize : (i+1)*bufsize]
	}
	return &Endpoint{
		demux:     d,
		bufs:      bufs,
		nbufs:     nbufs,
		available: make(chan struct{}, 1),
		dead:      make(chan struct{}),
	}
}

func (e *Endpoint) Close() error {
	e.closeLocked()
	e.demux.removeEndpoint(e)
	return nil
}

func (e *Endpoint) closeLocked() {
	e.Lock()
	select {
	case <-e.dead:
	default:
		close(e.dead)
	}
	e.Unlock()
}

func (e *Endpoint) deliver(buf []byte) []byte {
	e.Lock()
	defer e.Unlock()

	select {
	case <-e.dead:
		return buf
	case e.available <- struct{}{}:
	default:
	}

	if e.nused == e.nbufs {
		ret := e.bufs[e.first]
		e.bufs[e.first] = buf
		e.first = (e.first + 1) % e.nbufs
		return ret
	}
	next := (e.first + e.nused) % e.nbufs
	ret := e.bufs[next]
	e.bufs[next] = buf
	e.nused++
	return ret
}

func (e *Endpoint) tryConsume(p []byte) (int, bool) {
	e.Lock()
	defer e.Unlock()

	if e.nused == 0 {
		return 0, false
	}
	n := copy(p, e.bufs[e.first])
	e.first = (e.first + 1) % e.nbufs
	e.nused--
	if e.nused > 0 {
		select {
		case e.available <- struct{}{}:
		default:
		}
	}
	return n, true
}

func (e *Endpoint) Read(p []byte) (int, error) {
	if e.nused > 0 {
		if n, ok := e.tryConsume(p); ok {
			return n, nil
		}
	}
	for {
		select {
		case <-e.dead:
			return 0, io.EOF
		case <-e.available:
			if n, ok := e.tryConsume(p); ok {
				return n, nil
			}
		}
	}
}

func (e *Endpoint) Write(p []byte) (int, error) {
	return e.demux.conn.Write(p)
}

func (e *Endpoint) LocalAddr() net.Addr  { return e.demux.conn.LocalAddr() }
func (e *Endpoint) RemoteAddr() net.Addr { return e.demux.conn.RemoteAddr() }

func (e *Endpoint) SetDeadline(t time.Time) error      { return nil }
func (e *Endpoint) SetReadDeadline(t time.Time) error  { return nil }
func (e *Endpoint) SetWriteDeadline(t time.Time) error { return nil }
