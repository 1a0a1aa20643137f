package stun

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// RFC 5389 STUN message framing (https://tools.ietf.org/html/rfc5389).

// MagicCookie is the fixed value that distinguishes RFC 5389+ STUN messages
// from the legacy RFC 3489 wire format.
const MagicCookie uint32 = 0x2112A442

// HeaderLength is the size in bytes of the fixed STUN message header.
const HeaderLength = 20

// TransactionIDLength is the size in bytes of an RFC 5389 transaction ID.
// Legacy (RFC 3489) messages use a 16-byte transaction ID instead; Message
// preserves whatever length it decoded so that re-encoding round-trips.
const TransactionIDLength = 12

// Class is the 2-bit message class: request, indication, or one of the two
// response classes.
type Class uint16

const (
	ClassRequest         Class = 0x0
	ClassIndication      Class = 0x1
	ClassSuccessResponse Class = 0x2
	ClassErrorResponse   Class = 0x3
)

func (c Class) String() string {
	switch c {
	case ClassRequest:
		return "request"
	case ClassIndication:
		return "indication"
	case ClassSuccessResponse:
		return "success response"
	case ClassErrorResponse:
		return "error response"
	default:
		return fmt.Sprintf("class(%#x)", uint16(c))
	}
}

// Method is the 12-bit message method.
type Method uint16

const (
	MethodBinding          Method = 0x001
	MethodAllocate         Method = 0x003
	MethodRefresh          Method = 0x004
	MethodSend             Method = 0x006
	MethodData             Method = 0x007
	MethodCreatePermission Method = 0x008
	MethodChannelBind      Method = 0x009
)

func (m Method) String() string {
	switch m {
	case MethodBinding:
		return "Binding"
	case MethodAllocate:
		return "Allocate"
	case MethodRefresh:
		return "Refresh"
	case MethodSend:
		return "Send"
	case MethodData:
		return "Data"
	case MethodCreatePermission:
		return "CreatePermission"
	case MethodChannelBind:
		return "ChannelBind"
	default:
		return fmt.Sprintf("method(%#x)", uint16(m))
	}
}

// Message is a decoded (or not-yet-encoded) STUN message: header plus an
// ordered list of attributes.
type Message struct {
	Class         Class
	Method        Method
	TransactionID []byte // 12 bytes (or 16 for legacy messages)
	Attributes    []Attribute

	// length is the encoded attribute length (bytes following the header,
	// including padding). Recomputed by Encode; populated by Decode.
	length uint16

	// integrityKey, when non-nil, tells Encode to append a real
	// MESSAGE-INTEGRITY digest (computed with this key) after the
	// placeholder added by AddMessageIntegrity.
	integrityKey []byte

	// fingerprint tells Encode to append a FINGERPRINT attribute as the
	// very last attribute, per RFC 5389 §15.5 (after MESSAGE-INTEGRITY if
	// both are present).
	fingerprint bool
}

// NewTransactionID returns a cryptographically unpredictable 96-bit
// transaction ID, per the TransactionId invariant in the data model.
func NewTransactionID() []byte {
	b := make([]byte, TransactionIDLength)
	if _, err := rand.Read(b); err != nil {
		panic(errors.Wrap(err, "stun: failed to generate transaction ID"))
	}
	return b
}

// NewMessage constructs an empty message of the given class/method. If
// transactionID is nil, a fresh random one is generated.
func NewMessage(class Class, method Method, transactionID []byte) *Message {
	if transactionID == nil {
		transactionID = NewTransactionID()
	}
	return &Message{
		Class:         class,
		Method:        method,
		TransactionID: transactionID,
	}
}

// BindingRequest returns a new Binding request.
func BindingRequest() *Message {
	return NewMessage(ClassRequest, MethodBinding, nil)
}

// AddFingerprint marks the message to carry a FINGERPRINT attribute,
// computed over everything preceding it at Encode time.
func (m *Message) AddFingerprint() {
	m.fingerprint = true
}

// AddAttribute appends an attribute, computing its padded byte length and
// returning the stored attribute (whose Value may still be patched in
// place, e.g. by addMessageIntegrity/addFingerprint).
func (m *Message) AddAttribute(t AttrType, value []byte) *Attribute {
	v := make([]byte, len(value))
	copy(v, value)
	attr := Attribute{Type: t, Value: v}
	m.Attributes = append(m.Attributes, attr)
	return &m.Attributes[len(m.Attributes)-1]
}

// Get returns the first attribute of the given type, or nil.
func (m *Message) Get(t AttrType) *Attribute {
	for i := range m.Attributes {
		if m.Attributes[i].Type == t {
			return &m.Attributes[i]
		}
	}
	return nil
}

// Has reports whether an attribute of the given type is present.
func (m *Message) Has(t AttrType) bool {
	return m.Get(t) != nil
}

func (m *Message) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s tid=%s", m.Class, m.Method, hex.EncodeToString(m.TransactionID))
	for _, a := range m.Attributes {
		fmt.Fprintf(&b, " %s", a.describe(m.TransactionID))
	}
	return b.String()
}

// messageType packs class+method into the 14-bit STUN message type field.
//
// Figure 3 of RFC 5389:
//
//	 0                 1
//	 2  3  4 5 6 7 8 9 0 1 2 3 4 5
//	+--+--+-+-+-+-+-+-+-+-+-+-+-+-+
//	|M |M |M|M|M|C|M|M|M|C|M|M|M|M|
//	|11|10|9|8|7|1|6|5|4|0|3|2|1|0|
//	+--+--+-+-+-+-+-+-+-+-+-+-+-+-+
const (
	classMask1  = 0x0100
	classMask2  = 0x0010
	methodMask1 = 0x3e00
	methodMask2 = 0x00e0
	methodMask3 = 0x000f
)

func composeMessageType(class Class, method Method) uint16 {
	c, m := uint16(class), uint16(method)
	t := (c<<7)&classMask1 | (c<<4)&classMask2
	t |= (m<<2)&methodMask1 | (m<<1)&methodMask2 | (m & methodMask3)
	return t
}

func decomposeMessageType(t uint16) (Class, Method) {
	class := (t&classMask1)>>7 | (t&classMask2)>>4
	method := (t&methodMask1)>>2 | (t&methodMask2)>>1 | (t & methodMask3)
	return Class(class), Method(method)
}

func pad4(n int) int {
	return -n & 3
}
