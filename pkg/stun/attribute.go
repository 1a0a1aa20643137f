package stun

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
)

// AttrType is the 16-bit STUN attribute type. Values below 0x8000 are
// comprehension-required; values at or above 0x8000 are
// comprehension-optional (RFC 5389 §15).
type AttrType uint16

const (
	AttrMappedAddress     AttrType = 0x0001
	AttrUsername          AttrType = 0x0006
	AttrMessageIntegrity  AttrType = 0x0008
	AttrErrorCode         AttrType = 0x0009
	AttrUnknownAttributes AttrType = 0x000A
	AttrRealm             AttrType = 0x0014
	AttrNonce             AttrType = 0x0015
	AttrXorMappedAddress  AttrType = 0x0020

	// TURN (RFC 5766) attributes.
	AttrLifetime               AttrType = 0x000D
	AttrXorPeerAddress         AttrType = 0x0012
	AttrData                   AttrType = 0x0013
	AttrXorRelayedAddress      AttrType = 0x0016
	AttrEvenPort               AttrType = 0x0018
	AttrRequestedTransport     AttrType = 0x0019
	AttrDontFragment           AttrType = 0x001A
	AttrReservationToken       AttrType = 0x0022
	AttrRequestedAddrFamily    AttrType = 0x0017
	AttrChannelNumber          AttrType = 0x000C

	// ICE (RFC 8445) attributes.
	AttrPriority       AttrType = 0x0024
	AttrUseCandidate   AttrType = 0x0025
	AttrIceControlled  AttrType = 0x8029
	AttrIceControlling AttrType = 0x802A

	AttrSoftware      AttrType = 0x8022
	AttrFingerprint   AttrType = 0x8028
	AttrChangeRequest AttrType = 0x0003
)

func (t AttrType) String() string {
	switch t {
	case AttrMappedAddress:
		return "MAPPED-ADDRESS"
	case AttrUsername:
		return "USERNAME"
	case AttrMessageIntegrity:
		return "MESSAGE-INTEGRITY"
	case AttrErrorCode:
		return "ERROR-CODE"
	case AttrUnknownAttributes:
		return "UNKNOWN-ATTRIBUTES"
	case AttrRealm:
		return "REALM"
	case AttrNonce:
		return "NONCE"
	case AttrXorMappedAddress:
		return "XOR-MAPPED-ADDRESS"
	case AttrLifetime:
		return "LIFETIME"
	case AttrXorPeerAddress:
		return "XOR-PEER-ADDRESS"
	case AttrData:
		return "DATA"
	case AttrXorRelayedAddress:
		return "XOR-RELAYED-ADDRESS"
	case AttrEvenPort:
		return "EVEN-PORT"
	case AttrRequestedTransport:
		return "REQUESTED-TRANSPORT"
	case AttrDontFragment:
		return "DONT-FRAGMENT"
	case AttrReservationToken:
		return "RESERVATION-TOKEN"
	case AttrRequestedAddrFamily:
		return "REQUESTED-ADDRESS-FAMILY"
	case AttrChannelNumber:
		return "CHANNEL-NUMBER"
	case AttrPriority:
		return "PRIORITY"
	case AttrUseCandidate:
		return "USE-CANDIDATE"
	case AttrIceControlled:
		return "ICE-CONTROLLED"
	case AttrIceControlling:
		return "ICE-CONTROLLING"
	case AttrSoftware:
		return "SOFTWARE"
	case AttrFingerprint:
		return "FINGERPRINT"
	case AttrChangeRequest:
		return "CHANGE-REQUEST"
	default:
		return fmt.Sprintf("attr(%#04x)", uint16(t))
	}
}

// IsComprehensionRequired reports whether an unrecognized attribute of this
// type must cause the message to be rejected (type < 0x8000, RFC 5389 §15).
func (t AttrType) IsComprehensionRequired() bool {
	return t < 0x8000
}

// Attribute is a tagged {type, value} pair. Concrete attribute "kinds" named
// in the data model (XOR-MAPPED-ADDRESS, PRIORITY, ...) are accessed through
// the typed Add*/Get* helpers below rather than separate Go types, since
// STUN attributes share one wire shape (TLV, padded to 4 bytes) and differ
// only in how their Value is interpreted.
type Attribute struct {
	Type  AttrType
	Value []byte
}

// numBytes is the total encoded size, including the 4-byte TLV header and
// padding to the next 4-byte boundary.
func (a *Attribute) numBytes() int {
	return 4 + len(a.Value) + pad4(len(a.Value))
}

func (a *Attribute) describe(transactionID []byte) string {
	switch a.Type {
	case AttrXorMappedAddress:
		addr, err := decodeXorAddress(a.Value, transactionID)
		if err != nil {
			return fmt.Sprintf("%s <invalid>", a.Type)
		}
		return fmt.Sprintf("%s %s", a.Type, addr)
	case AttrMappedAddress:
		addr, err := decodePlainAddress(a.Value)
		if err != nil {
			return fmt.Sprintf("%s <invalid>", a.Type)
		}
		return fmt.Sprintf("%s %s", a.Type, addr)
	case AttrUsername, AttrRealm, AttrNonce, AttrSoftware:
		return fmt.Sprintf("%s %q", a.Type, string(a.Value))
	case AttrUseCandidate:
		return a.Type.String()
	case AttrPriority:
		return fmt.Sprintf("%s %d", a.Type, binary.BigEndian.Uint32(a.Value))
	case AttrMessageIntegrity, AttrFingerprint:
		return fmt.Sprintf("%s %s", a.Type, hex.EncodeToString(a.Value))
	default:
		return fmt.Sprintf("%s(%d bytes)", a.Type, len(a.Value))
	}
}

// --- USERNAME / REALM / NONCE / SOFTWARE (opaque text attributes) ---

func (m *Message) AddUsername(username string) {
	m.AddAttribute(AttrUsername, []byte(username))
}

func (m *Message) Username() (string, bool) {
	if a := m.Get(AttrUsername); a != nil {
		return string(a.Value), true
	}
	return "", false
}

func (m *Message) AddRealm(realm string) { m.AddAttribute(AttrRealm, []byte(realm)) }
func (m *Message) Realm() (string, bool) {
	if a := m.Get(AttrRealm); a != nil {
		return string(a.Value), true
	}
	return "", false
}

func (m *Message) AddNonce(nonce string) { m.AddAttribute(AttrNonce, []byte(nonce)) }
func (m *Message) Nonce() (string, bool) {
	if a := m.Get(AttrNonce); a != nil {
		return string(a.Value), true
	}
	return "", false
}

func (m *Message) AddSoftware(software string) { m.AddAttribute(AttrSoftware, []byte(software)) }

// --- PRIORITY / USE-CANDIDATE / ICE-CONTROLLING / ICE-CONTROLLED ---

func (m *Message) AddPriority(p uint32) {
	v := make([]byte, 4)
	binary.BigEndian.PutUint32(v, p)
	m.AddAttribute(AttrPriority, v)
}

func (m *Message) Priority() (uint32, bool) {
	a := m.Get(AttrPriority)
	if a == nil || len(a.Value) != 4 {
		return 0, false
	}
	return binary.BigEndian.Uint32(a.Value), true
}

func (m *Message) AddUseCandidate() {
	m.AddAttribute(AttrUseCandidate, nil)
}

func (m *Message) HasUseCandidate() bool {
	return m.Has(AttrUseCandidate)
}

func tieBreakerBytes(tieBreaker uint64) []byte {
	v := make([]byte, 8)
	binary.BigEndian.PutUint64(v, tieBreaker)
	return v
}

func (m *Message) AddIceControlling(tieBreaker uint64) {
	m.AddAttribute(AttrIceControlling, tieBreakerBytes(tieBreaker))
}

func (m *Message) AddIceControlled(tieBreaker uint64) {
	m.AddAttribute(AttrIceControlled, tieBreakerBytes(tieBreaker))
}

// IceRole reports the role asserted by the ICE-CONTROLLING / ICE-CONTROLLED
// attribute, if either is present, along with the asserted tie-breaker.
func (m *Message) IceRole() (controlling bool, tieBreaker uint64, present bool) {
	if a := m.Get(AttrIceControlling); a != nil && len(a.Value) == 8 {
		return true, binary.BigEndian.Uint64(a.Value), true
	}
	if a := m.Get(AttrIceControlled); a != nil && len(a.Value) == 8 {
		return false, binary.BigEndian.Uint64(a.Value), true
	}
	return false, 0, false
}

// --- ERROR-CODE / UNKNOWN-ATTRIBUTES ---

// AddErrorCode encodes RFC 5389 §15.6: a reserved 21-bit pad, an 8-bit
// "class" (the hundreds digit, 3-6), an 8-bit "number" (0-99), then the
// reason phrase.
func (m *Message) AddErrorCode(code int, reason string) {
	v := make([]byte, 4+len(reason))
	v[2] = byte(code / 100)
	v[3] = byte(code % 100)
	copy(v[4:], reason)
	m.AddAttribute(AttrErrorCode, v)
}

func (m *Message) ErrorCode() (code int, reason string, ok bool) {
	a := m.Get(AttrErrorCode)
	if a == nil || len(a.Value) < 4 {
		return 0, "", false
	}
	code = int(a.Value[2])*100 + int(a.Value[3])
	reason = string(a.Value[4:])
	return code, reason, true
}

func (m *Message) AddUnknownAttributes(types []AttrType) {
	v := make([]byte, 2*len(types))
	for i, t := range types {
		binary.BigEndian.PutUint16(v[2*i:], uint16(t))
	}
	m.AddAttribute(AttrUnknownAttributes, v)
}

func (m *Message) UnknownAttributes() []AttrType {
	a := m.Get(AttrUnknownAttributes)
	if a == nil {
		return nil
	}
	var out []AttrType
	for i := 0; i+1 < len(a.Value); i += 2 {
		out = append(out, AttrType(binary.BigEndian.Uint16(a.Value[i:])))
	}
	return out
}

// --- TURN attributes (RFC 5766) ---

func (m *Message) AddLifetime(seconds uint32) {
	v := make([]byte, 4)
	binary.BigEndian.PutUint32(v, seconds)
	m.AddAttribute(AttrLifetime, v)
}

func (m *Message) Lifetime() (uint32, bool) {
	a := m.Get(AttrLifetime)
	if a == nil || len(a.Value) != 4 {
		return 0, false
	}
	return binary.BigEndian.Uint32(a.Value), true
}

// AddRequestedTransport encodes REQUESTED-TRANSPORT with the given IANA
// protocol number (17 == UDP) in the high-order octet.
func (m *Message) AddRequestedTransport(protocolNumber byte) {
	m.AddAttribute(AttrRequestedTransport, []byte{protocolNumber, 0, 0, 0})
}

func (m *Message) AddDontFragment() {
	m.AddAttribute(AttrDontFragment, nil)
}

func (m *Message) AddEvenPort(reserveNext bool) {
	var b byte
	if reserveNext {
		b = 0x80
	}
	m.AddAttribute(AttrEvenPort, []byte{b})
}

func (m *Message) AddReservationToken(token [8]byte) {
	m.AddAttribute(AttrReservationToken, token[:])
}

func (m *Message) AddRequestedAddressFamily(family byte) {
	m.AddAttribute(AttrRequestedAddrFamily, []byte{family, 0, 0, 0})
}

func (m *Message) AddChannelNumber(n uint16) {
	v := make([]byte, 4)
	binary.BigEndian.PutUint16(v, n)
	m.AddAttribute(AttrChannelNumber, v)
}

func (m *Message) ChannelNumber() (uint16, bool) {
	a := m.Get(AttrChannelNumber)
	if a == nil || len(a.Value) < 2 {
		return 0, false
	}
	return binary.BigEndian.Uint16(a.Value), true
}

func (m *Message) AddData(data []byte) {
	m.AddAttribute(AttrData, data)
}

func (m *Message) Data() ([]byte, bool) {
	a := m.Get(AttrData)
	if a == nil {
		return nil, false
	}
	return a.Value, true
}

// AddChangeRequest encodes the legacy CHANGE-REQUEST attribute used by NAT
// behavior discovery STUN servers (change-IP / change-port bits).
func (m *Message) AddChangeRequest(changeIP, changePort bool) {
	var b uint32
	if changeIP {
		b |= 0x4
	}
	if changePort {
		b |= 0x2
	}
	v := make([]byte, 4)
	binary.BigEndian.PutUint32(v, b)
	m.AddAttribute(AttrChangeRequest, v)
}
