// Package addr implements the AddressModel: transport addresses and the
// protocol enum used throughout the STUN/TURN/ICE engine.
package addr

import (
	"fmt"
	"net"
	"strings"
)

// Protocol is the transport protocol a candidate or base communicates over.
type Protocol int

const (
	UDP Protocol = iota
	TCP
	TLS
)

func (p Protocol) String() string {
	switch p {
	case UDP:
		return "udp"
	case TCP:
		return "tcp"
	case TLS:
		return "tls"
	default:
		return fmt.Sprintf("protocol(%d)", int(p))
	}
}

// ParseProtocol accepts "udp", "tcp", or "tls" (case-insensitive).
func ParseProtocol(s string) (Protocol, error) {
	switch strings.ToLower(s) {
	case "udp":
		return UDP, nil
	case "tcp":
		return TCP, nil
	case "tls":
		return TLS, nil
	default:
		return UDP, fmt.Errorf("addr: unknown protocol %q", s)
	}
}

// TransportAddress is an immutable {ip, port, protocol} tuple. Equality is
// by value, so two TransportAddress values compare equal with ==.
type TransportAddress struct {
	IP       string
	Port     int
	Protocol Protocol
}

func New(ip string, port int, proto Protocol) TransportAddress {
	return TransportAddress{IP: ip, Port: port, Protocol: proto}
}

// FromNetAddr converts a net.Addr (as returned by a net.PacketConn or
// net.Conn) into a TransportAddress.
func FromNetAddr(a net.Addr) TransportAddress {
	switch v := a.(type) {
	case *net.UDPAddr:
		return TransportAddress{IP: v.IP.String(), Port: v.Port, Protocol: UDP}
	case *net.TCPAddr:
		return TransportAddress{IP: v.IP.String(), Port: v.Port, Protocol: TCP}
	default:
		host, port, err := net.SplitHostPort(a.String())
		if err != nil {
			return TransportAddress{IP: a.String(), Protocol: UDP}
		}
		var p int
		fmt.Sscanf(port, "%d", &p)
		return TransportAddress{IP: host, Port: p, Protocol: UDP}
	}
}

// NetAddr converts back to a net.Addr suitable for use with net.PacketConn.
func (t TransportAddress) NetAddr() net.Addr {
	hostport := net.JoinHostPort(t.IP, fmt.Sprintf("%d", t.Port))
	switch t.Protocol {
	case TCP, TLS:
		a, _ := net.ResolveTCPAddr("tcp", hostport)
		return a
	default:
		a, _ := net.ResolveUDPAddr("udp", hostport)
		return a
	}
}

// Family returns 4 or 6.
func (t TransportAddress) Family() int {
	ip := net.ParseIP(t.IP)
	if ip != nil && ip.To4() != nil {
		return 4
	}
	return 6
}

// IsLinkLocal reports whether the address is link-local (IPv4 169.254/16 or
// IPv6 fe80::/10), which many deployments exclude from candidate gathering.
func (t TransportAddress) IsLinkLocal() bool {
	ip := net.ParseIP(t.IP)
	return ip != nil && ip.IsLinkLocalUnicast()
}

func (t TransportAddress) String() string {
	return fmt.Sprintf("%s/%s:%d", t.Protocol, t.IP, t.Port)
}
