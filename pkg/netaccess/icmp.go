package netaccess

import (
	"net"
	"time"

	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"
)

// UnreachableWatcher listens for ICMP Destination Unreachable messages so
// an agent can fail a connectivity check immediately instead of waiting
// out the full retransmission timeout when a peer's host is provably
// unreachable.
type UnreachableWatcher struct {
	conn *icmp.PacketConn
	stop chan struct{}
}

// NewUnreachableWatcher opens a raw ICMP listener. Callers without
// CAP_NET_RAW (most non-root processes) should treat a non-nil error here
// as "unreachable detection unavailable" and fall back to timeout-only
// failure detection — it is an optimization, not a correctness
// requirement.
func NewUnreachableWatcher() (*UnreachableWatcher, error) {
	conn, err := icmp.ListenPacket("udp4", "0.0.0.0")
	if err != nil {
		return nil, err
	}
	return &UnreachableWatcher{conn: conn, stop: make(chan struct{})}, nil
}

// Watch calls cb with the source address of every ICMP Destination
// Unreachable message received, until Close is called. It does not filter
// by the destination of the datagram that triggered the message.
func (w *UnreachableWatcher) Watch(cb func(source net.IP)) {
	buf := make([]byte, 1500)
	for {
		select {
		case <-w.stop:
			return
		default:
		}
		w.conn.SetReadDeadline(time.Now().Add(time.Second))
		n, peer, err := w.conn.ReadFrom(buf)
		if err != nil {
			continue
		}
		msg, err := icmp.ParseMessage(ipv4.ICMPTypeDestinationUnreachable.Protocol(), buf[:n])
		if err != nil {
			continue
		}
		if msg.Type != ipv4.ICMPTypeDestinationUnreachable {
			continue
		}
		if udpAddr, ok := peer.(*net.UDPAddr); ok {
			cb(udpAddr.IP)
		}
	}
}

func (w *UnreachableWatcher) Close() error {
	close(w.stop)
	return w.conn.Close()
}
