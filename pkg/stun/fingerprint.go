package stun

import (
	"encoding/binary"
	"hash/crc32"
)

// fingerprintXor is XORed into the computed CRC-32 so that a FINGERPRINT
// attribute cannot be mistaken for application data beginning with the
// literal CRC of a STUN header (RFC 5389 §15.5).
const fingerprintXor uint32 = 0x5354554E

func computeFingerprint(data []byte) uint32 {
	return crc32.ChecksumIEEE(data) ^ fingerprintXor
}

// addFingerprintPlaceholder reserves the 4-byte FINGERPRINT slot; Encode
// patches in the real CRC once the bytes preceding it are final.
func (m *Message) addFingerprintPlaceholder() *Attribute {
	return m.AddAttribute(AttrFingerprint, make([]byte, 4))
}

// VerifyFingerprint recomputes the CRC-32 over raw (up to the start of the
// FINGERPRINT attribute, with the header length field adjusted to match)
// and compares it against the decoded attribute. Verification is
// mandatory on receive for any message advertising FINGERPRINT — a
// mismatch means the packet is corrupt or not actually STUN.
func VerifyFingerprint(m *Message, raw []byte) error {
	a := m.Get(AttrFingerprint)
	if a == nil || len(a.Value) != 4 {
		return ErrFingerprintFailed
	}
	offset, ok := attributeDataOffset(raw, AttrFingerprint)
	if !ok {
		return ErrFingerprintFailed
	}

	signed := make([]byte, offset)
	copy(signed, raw[:offset])
	binary.BigEndian.PutUint16(signed[2:4], uint16(offset-HeaderLength+4+4))

	expected := computeFingerprint(signed)
	if binary.BigEndian.Uint32(a.Value) != expected {
		return ErrFingerprintFailed
	}
	return nil
}
