package stun

import (
	"encoding/binary"
	"fmt"
	"net"

	"github.com/lanikai/iceagent/pkg/addr"
)

// Address family octets used by (XOR-)MAPPED-ADDRESS, RFC 5389 §15.1.
const (
	familyIPv4 = 0x01
	familyIPv6 = 0x02
)

// encodeAddress renders a TransportAddress as a plain MAPPED-ADDRESS value
// (family, port, address — no XOR obfuscation). Used only for the legacy
// MAPPED-ADDRESS attribute; XOR-MAPPED-ADDRESS is preferred everywhere else
// because it survives NATs that rewrite addresses found in payloads.
func encodeAddress(a addr.TransportAddress) []byte {
	ip := net.ParseIP(a.IP)
	var fam byte
	var raw []byte
	if v4 := ip.To4(); v4 != nil {
		fam = familyIPv4
		raw = v4
	} else {
		fam = familyIPv6
		raw = ip.To16()
	}
	v := make([]byte, 4+len(raw))
	v[1] = fam
	binary.BigEndian.PutUint16(v[2:4], uint16(a.Port))
	copy(v[4:], raw)
	return v
}

func decodePlainAddress(v []byte) (addr.TransportAddress, error) {
	if len(v) < 4 {
		return addr.TransportAddress{}, ErrInvalidAttribute
	}
	fam := v[1]
	port := binary.BigEndian.Uint16(v[2:4])
	raw := v[4:]
	var ip net.IP
	switch fam {
	case familyIPv4:
		if len(raw) < 4 {
			return addr.TransportAddress{}, ErrInvalidAttribute
		}
		ip = net.IP(raw[:4])
	case familyIPv6:
		if len(raw) < 16 {
			return addr.TransportAddress{}, ErrInvalidAttribute
		}
		ip = net.IP(raw[:16])
	default:
		return addr.TransportAddress{}, fmt.Errorf("stun: unknown address family %#x", fam)
	}
	return addr.New(ip.String(), int(port), addr.UDP), nil
}

// encodeXorAddress renders a TransportAddress as an XOR-MAPPED-ADDRESS
// value (RFC 5389 §15.2): the port is XORed with the top 16 bits of the
// magic cookie, and the address is XORed with the magic cookie (IPv4) or
// magic-cookie‖transaction-id (IPv6).
func encodeXorAddress(a addr.TransportAddress, transactionID []byte) []byte {
	ip := net.ParseIP(a.IP)
	var fam byte
	var raw []byte
	if v4 := ip.To4(); v4 != nil {
		fam = familyIPv4
		raw = append([]byte(nil), v4...)
	} else {
		fam = familyIPv6
		raw = append([]byte(nil), ip.To16()...)
	}

	v := make([]byte, 4+len(raw))
	v[1] = fam

	cookie := make([]byte, 4)
	binary.BigEndian.PutUint32(cookie, MagicCookie)

	xport := uint16(a.Port) ^ binary.BigEndian.Uint16(cookie[:2])
	binary.BigEndian.PutUint16(v[2:4], xport)

	pad := cookie
	if fam == familyIPv6 {
		pad = append(append([]byte(nil), cookie...), transactionID...)
	}
	xorBytes(raw, raw, pad)
	copy(v[4:], raw)
	return v
}

func decodeXorAddress(v []byte, transactionID []byte) (addr.TransportAddress, error) {
	if len(v) < 4 {
		return addr.TransportAddress{}, ErrInvalidAttribute
	}
	fam := v[1]
	cookie := make([]byte, 4)
	binary.BigEndian.PutUint32(cookie, MagicCookie)

	port := binary.BigEndian.Uint16(v[2:4]) ^ binary.BigEndian.Uint16(cookie[:2])

	raw := append([]byte(nil), v[4:]...)
	var pad []byte
	switch fam {
	case familyIPv4:
		if len(raw) < 4 {
			return addr.TransportAddress{}, ErrInvalidAttribute
		}
		raw = raw[:4]
		pad = cookie
	case familyIPv6:
		if len(raw) < 16 {
			return addr.TransportAddress{}, ErrInvalidAttribute
		}
		raw = raw[:16]
		pad = append(append([]byte(nil), cookie...), transactionID...)
	default:
		return addr.TransportAddress{}, fmt.Errorf("stun: unknown address family %#x", fam)
	}
	xorBytes(raw, raw, pad)

	return addr.New(net.IP(raw).String(), int(port), addr.UDP), nil
}

// xorBytes sets dst[i] = src[i] ^ pad[i%len(pad)]. dst and src may alias.
func xorBytes(dst, src, pad []byte) {
	for i := range src {
		dst[i] = src[i] ^ pad[i%len(pad)]
	}
}

// AddXorMappedAddress adds an XOR-MAPPED-ADDRESS attribute for a.
func (m *Message) AddXorMappedAddress(a addr.TransportAddress) {
	m.AddAttribute(AttrXorMappedAddress, encodeXorAddress(a, m.TransactionID))
}

// XorMappedAddress extracts and de-obfuscates XOR-MAPPED-ADDRESS.
func (m *Message) XorMappedAddress() (addr.TransportAddress, bool) {
	a := m.Get(AttrXorMappedAddress)
	if a == nil {
		return addr.TransportAddress{}, false
	}
	ta, err := decodeXorAddress(a.Value, m.TransactionID)
	if err != nil {
		return addr.TransportAddress{}, false
	}
	return ta, true
}

// AddMappedAddress adds a legacy (unobfuscated) MAPPED-ADDRESS attribute.
func (m *Message) AddMappedAddress(a addr.TransportAddress) {
	m.AddAttribute(AttrMappedAddress, encodeAddress(a))
}

func (m *Message) MappedAddress() (addr.TransportAddress, bool) {
	a := m.Get(AttrMappedAddress)
	if a == nil {
		return addr.TransportAddress{}, false
	}
	ta, err := decodePlainAddress(a.Value)
	if err != nil {
		return addr.TransportAddress{}, false
	}
	return ta, true
}

// AddXorPeerAddress adds a TURN XOR-PEER-ADDRESS attribute.
func (m *Message) AddXorPeerAddress(a addr.TransportAddress) {
	m.AddAttribute(AttrXorPeerAddress, encodeXorAddress(a, m.TransactionID))
}

func (m *Message) XorPeerAddress() (addr.TransportAddress, bool) {
	a := m.Get(AttrXorPeerAddress)
	if a == nil {
		return addr.TransportAddress{}, false
	}
	ta, err := decodeXorAddress(a.Value, m.TransactionID)
	if err != nil {
		return addr.TransportAddress{}, false
	}
	return ta, true
}

// AddXorRelayedAddress adds a TURN XOR-RELAYED-ADDRESS attribute.
func (m *Message) AddXorRelayedAddress(a addr.TransportAddress) {
	m.AddAttribute(AttrXorRelayedAddress, encodeXorAddress(a, m.TransactionID))
}

func (m *Message) XorRelayedAddress() (addr.TransportAddress, bool) {
	a := m.Get(AttrXorRelayedAddress)
	if a == nil {
		return addr.TransportAddress{}, false
	}
	ta, err := decodeXorAddress(a.Value, m.TransactionID)
	if err != nil {
		return addr.TransportAddress{}, false
	}
	return ta, true
}
