package stun

import "encoding/binary"

// ChannelData framing (RFC 5766 §11.4): a 2-byte channel number in
// [0x4000, 0x7FFF], a 2-byte length, then the payload. Over UDP the
// message need not be padded to a 4-byte boundary; over TCP/TLS it must
// be, since the stream has no other framing to recover sync after a
// dropped byte.
const (
	ChannelDataHeaderLength = 4
	ChannelNumberMin        = 0x4000
	ChannelNumberMax        = 0x7FFF
)

// IsChannelData classifies the first byte of a datagram per RFC 5766
// §11.4: channel numbers occupy the range whose top two bits are 01,
// distinguishing them from STUN (00) and RTP (10/11).
func IsChannelData(data []byte) bool {
	return len(data) >= ChannelDataHeaderLength && data[0]&0xC0 == 0x40
}

// EncodeChannelData frames data under channel number. streamed selects
// TCP/TLS-style padding to a 4-byte boundary; UDP framing omits it.
func EncodeChannelData(channelNumber uint16, data []byte, streamed bool) []byte {
	padded := len(data)
	if streamed {
		padded += pad4(len(data))
	}
	buf := make([]byte, ChannelDataHeaderLength+padded)
	binary.BigEndian.PutUint16(buf[0:2], channelNumber)
	binary.BigEndian.PutUint16(buf[2:4], uint16(len(data)))
	copy(buf[4:], data)
	return buf
}

// DecodeChannelData parses a ChannelData message, returning the channel
// number and the (unpadded) payload.
func DecodeChannelData(raw []byte) (channelNumber uint16, data []byte, err error) {
	if len(raw) < ChannelDataHeaderLength {
		return 0, nil, ErrTruncated
	}
	channelNumber = binary.BigEndian.Uint16(raw[0:2])
	length := int(binary.BigEndian.Uint16(raw[2:4]))
	if ChannelDataHeaderLength+length > len(raw) {
		return 0, nil, ErrTruncated
	}
	data = append([]byte(nil), raw[ChannelDataHeaderLength:ChannelDataHeaderLength+length]...)
	return channelNumber, data, nil
}

// ValidChannelNumber reports whether n is in the TURN channel number range.
func ValidChannelNumber(n uint16) bool {
	return n >= ChannelNumberMin && n <= ChannelNumberMax
}
