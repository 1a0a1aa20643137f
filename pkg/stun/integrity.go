package stun

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/binary"
)

// messageIntegrityLength is the size of the HMAC-SHA1 digest stored in a
// MESSAGE-INTEGRITY attribute (RFC 5389 §15.4).
const messageIntegrityLength = 20

// computeMessageIntegrity runs HMAC-SHA1 over header||attrs-before-MI,
// where the header's length field has already been patched to cover
// everything up to and including the MESSAGE-INTEGRITY attribute itself
// (20 bytes of digest included), per the two-pass encoding the attribute
// requires.
func computeMessageIntegrity(key, data []byte) []byte {
	mac := hmac.New(sha1.New, key)
	mac.Write(data)
	return mac.Sum(nil)
}

// addMessageIntegrityPlaceholder reserves a 20-byte MESSAGE-INTEGRITY
// attribute slot. Encode fills in the real digest once the rest of the
// message (everything preceding it) is serialized, matching the two-pass
// scheme: reserve zeroed space, compute the MAC over bytes-before-MI, then
// patch it in without re-deriving lengths.
func (m *Message) addMessageIntegrityPlaceholder() *Attribute {
	return m.AddAttribute(AttrMessageIntegrity, make([]byte, messageIntegrityLength))
}

// AddMessageIntegrity marks the message to carry a short-term or long-term
// MESSAGE-INTEGRITY attribute, computed against key at Encode time. key is
// either the short-term credential's password, or the long-term key
// MD5(username:realm:password) per RFC 5389 §15.4.
func (m *Message) AddMessageIntegrity(key []byte) {
	m.integrityKey = key
	m.addMessageIntegrityPlaceholder()
}

// VerifyMessageIntegrity recomputes the HMAC over raw (the original
// undecoded bytes, up to and including the MESSAGE-INTEGRITY attribute)
// using key, and compares it in constant time against the attribute
// decoded into m. raw must be the bytes Decode was given.
func VerifyMessageIntegrity(m *Message, raw []byte, key []byte) error {
	a := m.Get(AttrMessageIntegrity)
	if a == nil {
		return ErrIntegrityFailed
	}
	offset, ok := attributeDataOffset(raw, AttrMessageIntegrity)
	if !ok {
		return ErrIntegrityFailed
	}

	// The length field covers everything through the end of this
	// attribute; reconstruct what the header said at that point so the
	// MAC is computed over exactly what the sender signed.
	signed := make([]byte, offset)
	copy(signed, raw[:offset])
	binary.BigEndian.PutUint16(signed[2:4], uint16(offset-HeaderLength+4+messageIntegrityLength))

	expected := computeMessageIntegrity(key, signed)
	if !hmac.Equal(expected, a.Value) {
		return ErrIntegrityFailed
	}
	return nil
}
