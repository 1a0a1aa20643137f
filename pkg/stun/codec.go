package stun

import (
	"encoding/binary"
)

// IsSTUN classifies the first byte of a datagram per RFC 5389 §6: valid
// STUN messages have their two most-significant bits set to 00, which
// never collides with RTP (first bits 10/11) or TURN ChannelData (01).
func IsSTUN(data []byte) bool {
	return len(data) >= HeaderLength && data[0]&0xC0 == 0x00
}

// Encode serializes m into the STUN wire format. If m.integrityKey is set
// (via AddMessageIntegrity), the real HMAC-SHA1 digest is computed and
// patched into the already-appended placeholder. If m.fingerprint is set
// (via AddFingerprint), a FINGERPRINT attribute is appended last and its
// CRC-32 computed over everything preceding it — after MESSAGE-INTEGRITY,
// per RFC 5389 §15.5.
func Encode(m *Message) ([]byte, error) {
	tidLen := len(m.TransactionID)
	if tidLen == 0 {
		tidLen = TransactionIDLength
	}

	attrsLen := 0
	for _, a := range m.Attributes {
		attrsLen += a.numBytes()
	}
	if m.fingerprint {
		attrsLen += 4 + 4
	}

	buf := make([]byte, HeaderLength+attrsLen)
	binary.BigEndian.PutUint16(buf[0:2], composeMessageType(m.Class, m.Method))
	binary.BigEndian.PutUint16(buf[2:4], uint16(attrsLen))
	binary.BigEndian.PutUint32(buf[4:8], MagicCookie)
	copy(buf[8:8+tidLen], m.TransactionID)

	off := HeaderLength
	miOffset := -1
	for _, a := range m.Attributes {
		if a.Type == AttrMessageIntegrity {
			miOffset = off
		}
		off += writeAttribute(buf[off:], a)
	}

	if m.integrityKey != nil && miOffset >= 0 {
		// The digest is computed with the header length ending at
		// MESSAGE-INTEGRITY, so a FINGERPRINT after it is not counted.
		binary.BigEndian.PutUint16(buf[2:4], uint16(miOffset-HeaderLength+4+messageIntegrityLength))
		mac := computeMessageIntegrity(m.integrityKey, buf[:miOffset])
		binary.BigEndian.PutUint16(buf[2:4], uint16(attrsLen))
		copy(buf[miOffset+4:miOffset+4+messageIntegrityLength], mac)
	}

	if m.fingerprint {
		fpOffset := off
		off += writeAttribute(buf[off:], Attribute{Type: AttrFingerprint, Value: make([]byte, 4)})
		crc := computeFingerprint(buf[:fpOffset])
		binary.BigEndian.PutUint32(buf[fpOffset+4:fpOffset+8], crc)
	}

	return buf, nil
}

// writeAttribute encodes one TLV (type, length, value, zero-padding) into
// dst and returns the number of bytes written.
func writeAttribute(dst []byte, a Attribute) int {
	binary.BigEndian.PutUint16(dst[0:2], uint16(a.Type))
	binary.BigEndian.PutUint16(dst[2:4], uint16(len(a.Value)))
	copy(dst[4:], a.Value)
	return a.numBytes()
}

// Decode parses a STUN message from data. It validates the header, magic
// cookie, and declared length, and rejects unknown comprehension-required
// attributes with an *UnknownAttributesError so the caller can answer with
// a 420 error response (RFC 5389 §7.3.3). It does not verify
// MESSAGE-INTEGRITY or FINGERPRINT; call VerifyMessageIntegrity /
// VerifyFingerprint with the same raw bytes once credentials are known.
func Decode(data []byte) (*Message, error) {
	if len(data) < HeaderLength {
		return nil, ErrTruncated
	}
	if !IsSTUN(data) {
		return nil, ErrNotSTUN
	}
	if binary.BigEndian.Uint32(data[4:8]) != MagicCookie {
		return nil, ErrMalformedHeader
	}

	msgType := binary.BigEndian.Uint16(data[0:2])
	length := binary.BigEndian.Uint16(data[2:4])
	if int(length)%4 != 0 {
		return nil, ErrMalformedHeader
	}
	if HeaderLength+int(length) > len(data) {
		return nil, ErrTruncated
	}

	class, method := decomposeMessageType(msgType)
	tid := append([]byte(nil), data[8:HeaderLength]...)

	m := &Message{
		Class:         class,
		Method:        method,
		TransactionID: tid,
		length:        length,
	}

	var unknown []uint16
	off := HeaderLength
	end := HeaderLength + int(length)
	for off+4 <= end {
		t := AttrType(binary.BigEndian.Uint16(data[off : off+2]))
		l := int(binary.BigEndian.Uint16(data[off+2 : off+4]))
		valStart := off + 4
		valEnd := valStart + l
		if valEnd > end {
			return nil, ErrTruncated
		}
		m.Attributes = append(m.Attributes, Attribute{
			Type:  t,
			Value: append([]byte(nil), data[valStart:valEnd]...),
		})
		if !knownAttrType(t) && t.IsComprehensionRequired() {
			unknown = append(unknown, uint16(t))
		}
		off = valEnd + pad4(l)
	}

	if len(unknown) > 0 {
		return m, &UnknownAttributesError{Types: unknown}
	}
	return m, nil
}

func knownAttrType(t AttrType) bool {
	switch t {
	case AttrMappedAddress, AttrUsername, AttrMessageIntegrity, AttrErrorCode,
		AttrUnknownAttributes, AttrRealm, AttrNonce, AttrXorMappedAddress,
		AttrLifetime, AttrXorPeerAddress, AttrData, AttrXorRelayedAddress,
		AttrEvenPort, AttrRequestedTransport, AttrDontFragment,
		AttrReservationToken, AttrRequestedAddrFamily, AttrChannelNumber,
		AttrPriority, AttrUseCandidate, AttrIceControlled, AttrIceControlling,
		AttrSoftware, AttrFingerprint, AttrChangeRequest:
		return true
	default:
		return false
	}
}

// attributeDataOffset scans the raw (still-encoded) message for the first
// attribute of type t and returns the byte offset of its TLV header
// (i.e. where the type field begins). MESSAGE-INTEGRITY and FINGERPRINT
// verification use this to know exactly how many leading bytes were
// signed, independent of how Decode happened to order m.Attributes.
func attributeDataOffset(raw []byte, t AttrType) (int, bool) {
	if len(raw) < HeaderLength {
		return 0, false
	}
	length := binary.BigEndian.Uint16(raw[2:4])
	off := HeaderLength
	end := HeaderLength + int(length)
	if end > len(raw) {
		end = len(raw)
	}
	for off+4 <= end {
		at := AttrType(binary.BigEndian.Uint16(raw[off : off+2]))
		l := int(binary.BigEndian.Uint16(raw[off+2 : off+4]))
		if at == t {
			return off, true
		}
		off += 4 + l + pad4(l)
	}
	return 0, false
}
