package codec

import (
	"encoding/binary"
	"fmt"
)

// QUIC-style variable-length integer: the top two bits of the first byte
// encode the total length (1, 2, 4, or 8 bytes), and the remaining bits of
// those bytes (big-endian) hold the value. Used to encode StreamIds and the
// length prefixes inside frame bodies (gossip length, git length).

const (
	varint1ByteMax = 1<<6 - 1
	varint2ByteMax = 1<<14 - 1
	varint4ByteMax = 1<<30 - 1
	varint8ByteMax = 1<<62 - 1
)

// AppendVarint appends v's QUIC-style varint encoding to b and returns the
// extended slice.
func AppendVarint(b []byte, v uint64) []byte {
	switch {
	case v <= varint1ByteMax:
		return append(b, byte(v))
	case v <= varint2ByteMax:
		var tmp [2]byte
		binary.BigEndian.PutUint16(tmp[:], uint16(v))
		tmp[0] |= 0x40
		return append(b, tmp[:]...)
	case v <= varint4ByteMax:
		var tmp [4]byte
		binary.BigEndian.PutUint32(tmp[:], uint32(v))
		tmp[0] |= 0x80
		return append(b, tmp[:]...)
	case v <= varint8ByteMax:
		var tmp [8]byte
		binary.BigEndian.PutUint64(tmp[:], v)
		tmp[0] |= 0xC0
		return append(b, tmp[:]...)
	default:
		panic(fmt.Sprintf("codec: varint %d exceeds 62-bit range", v))
	}
}

// WriteVarint writes v's QUIC-style varint encoding.
func (w *Writer) WriteVarint(v uint64) {
	w.buf.Write(AppendVarint(nil, v))
}

// varintLen returns the encoded length implied by the top two bits of the
// first byte.
func varintLen(first byte) int {
	switch first >> 6 {
	case 0:
		return 1
	case 1:
		return 2
	case 2:
		return 4
	default:
		return 8
	}
}

// ReadVarint decodes a QUIC-style varint and advances the cursor past the
// bytes it consumed.
func (r *Reader) ReadVarint() (uint64, error) {
	if err := r.require(1); err != nil {
		return 0, err
	}
	first := r.b[r.pos]
	n := varintLen(first)
	if err := r.require(n); err != nil {
		return 0, err
	}
	tmp := make([]byte, 8)
	copy(tmp[8-n:], r.b[r.pos:r.pos+n])
	tmp[8-n] &^= 0xC0
	v := binary.BigEndian.Uint64(tmp)
	r.pos += n
	return v, nil
}

// PeekVarintLen reports how many bytes the varint at the front of b would
// consume, without requiring the full value to be present. Returns 0 if b
// is empty.
func PeekVarintLen(b []byte) int {
	if len(b) == 0 {
		return 0
	}
	return varintLen(b[0])
}
