// Package netaccess implements the NetAccessManager: ownership of the
// underlying sockets, a receive loop per socket, and a Demultiplexer that
// classifies each datagram as STUN, TURN ChannelData, or application data
// before handing it to the right consumer.
package netaccess

import (
	"net"
	"sync"

	"github.com/lanikai/iceagent/pkg/stun"
)

const defaultBufferPackets = 32

// MatchFunc reports whether a datagram belongs to the endpoint it is
// registered against. Demux evaluates registered endpoints in
// registration order and delivers to the first match.
type MatchFunc func(data []byte) bool

// MatchSTUN classifies a datagram as a STUN message per RFC 5389 §6 (the
// two high bits of the first byte are 0).
func MatchSTUN(data []byte) bool {
	return stun.IsSTUN(data)
}

// MatchChannelData classifies a datagram as TURN ChannelData per RFC 5766
// §11.4 (channel numbers occupy the high bit pattern 01).
func MatchChannelData(data []byte) bool {
	return stun.IsChannelData(data)
}

// registration pairs one registered endpoint with its matcher, preserving
// the order NewEndpoint was called in.
type registration struct {
	endpoint *Endpoint
	match    MatchFunc
}

// Demux multiplexes datagrams arriving on a single net.PacketConn-backed
// connection to one or more registered Endpoints, based on each
// endpoint's MatchFunc. It is the demultiplexer half of the
// NetAccessManager: STUN traffic and ChannelData are peeled off for the
// TransactionLayer and TURN data-relay path, and whatever remains falls
// through to the base socket.
type Demux struct {
	conn net.Conn

	mu           sync.Mutex
	registered   []registration
	bufferSize   int

	// Base receives datagrams matching no registered endpoint — the
	// demultiplexer's equivalent of Manager.App, so unmatched traffic is
	// still delivered somewhere rather than dropped.
	Base chan []byte
}

// NewDemux takes ownership of conn (closing it when the Demux is closed)
// and starts its receive loop.
func NewDemux(conn net.Conn, bufferSize int) *Demux {
	d := &Demux{
		conn:       conn,
		bufferSize: bufferSize,
		Base:       make(chan []byte, defaultBufferPackets),
	}
	go d.readLoop()
	return d
}

// NewEndpoint registers a new consumer matched by f. Endpoints are tried
// in the order they were registered — register more specific matchers
// (STUN, ChannelData) before a catch-all — and the first match wins.
func (d *Demux) NewEndpoint(f MatchFunc) *Endpoint {
	e := newEndpoint(d, defaultBufferPackets, d.bufferSize)
	d.mu.Lock()
	d.registered = append(d.registered, registration{endpoint: e, match: f})
	d.mu.Unlock()
	return e
}

func (d *Demux) removeEndpoint(e *Endpoint) {
	d.mu.Lock()
	for i, r := range d.registered {
		if r.endpoint == e {
			d.registered = append(d.registered[:i], d.registered[i+1:]...)
			break
		}
	}
	d.mu.Unlock()
}

func (d *Demux) Close() error {
	d.mu.Lock()
	for _, r := range d.registered {
		r.endpoint.closeLocked()
	}
	d.registered = nil
	d.mu.Unlock()
	return d.conn.Close()
}

func (d *Demux) readLoop() {
	defer d.Close()

	buf := make([]byte, d.bufferSize)
	for {
		n, err := d.conn.Read(buf)
		if err != nil {
			return
		}
		buf = d.dispatch(buf[:n])
		buf = buf[0:cap(buf)]
	}
}

// dispatch hands buf to the first matching endpoint in registration
// order, exchanging it for one of that endpoint's spare buffers ("give a
// penny, take a penny") so the read loop never allocates per packet on
// the steady-state path. At most one endpoint ever receives a given
// packet (at-most-once delivery); a datagram matching no registered
// endpoint is enqueued on Base instead of being dropped.
func (d *Demux) dispatch(buf []byte) []byte {
	var endpoint *Endpoint

	d.mu.Lock()
	for _, r := range d.registered {
		if r.match(buf) {
			endpoint = r.endpoint
			break
		}
	}
	d.mu.Unlock()

	if endpoint == nil {
		cp := append([]byte(nil), buf...)
		select {
		case d.Base <- cp:
		default:
		}
		return buf
	}
	return endpoint.deliver(buf)
}
