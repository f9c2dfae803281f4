package wirehandler

import "encoding/binary"

// maxRecordSize bounds a single length-prefixed record (one Noise
// handshake message, or one Noise-encrypted application record) before any
// bytes are allocated for it. This framing sits below wire.Frame: Noise
// handshake messages and AEAD records have no self-delimiting shape of
// their own, so every byte that crosses the raw TCP connection -- both
// during the handshake and after -- is wrapped in a 4-byte big-endian
// length prefix first.
const maxRecordSize = 1 << 20

// recordDecoder defragments a raw byte stream into complete records,
// mirroring wire.Decoder's incremental Push/Next shape one layer below it.
type recordDecoder struct {
	buf []byte
}

func (d *recordDecoder) Push(b []byte) { d.buf = append(d.buf, b...) }

func (d *recordDecoder) Next() (rec []byte, ok bool, err error) {
	if len(d.buf) < 4 {
		return nil, false, nil
	}
	n := binary.BigEndian.Uint32(d.buf[:4])
	if n > maxRecordSize {
		return nil, false, errRecordTooLarge
	}
	if uint32(len(d.buf)-4) < n {
		return nil, false, nil
	}
	rec = make([]byte, n)
	copy(rec, d.buf[4:4+n])
	d.buf = d.buf[4+n:]
	return rec, true, nil
}

func (d *recordDecoder) Buffered() int { return len(d.buf) }

func encodeRecord(payload []byte) []byte {
	b := make([]byte, 4+len(payload))
	binary.BigEndian.PutUint32(b, uint32(len(payload)))
	copy(b[4:], payload)
	return b
}
