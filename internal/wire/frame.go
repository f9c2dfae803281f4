package wire

import (
	"errors"
	"fmt"

	"github.com/shurlinet/radnode/internal/codec"
)

// ProtocolVersion is the only version byte this implementation speaks.
const ProtocolVersion = 0x01

// Magic is the three-byte prefix ("rad") that, followed by ProtocolVersion,
// must open every frame.
var Magic = [3]byte{'r', 'a', 'd'}

// ErrInvalidProtocolVersion is returned when a byte sequence does not begin
// with Magic followed by ProtocolVersion.
var ErrInvalidProtocolVersion = errors.New("wire: invalid protocol version")

// ErrGossipTooLarge is returned by EncodeFrame when a gossip body exceeds
// MaxGossipSize.
var ErrGossipTooLarge = errors.New("wire: gossip message exceeds maximum size")

// MaxGossipSize is the maximum encoded size of a gossip message body:
// approximately 64 KiB minus a small header, matching the 16-bit size
// prefix used inside gossip messages themselves.
const MaxGossipSize = 1<<16 - 256

// ControlType distinguishes the three control-frame operations.
type ControlType uint8

const (
	ControlOpen  ControlType = 0
	ControlClose ControlType = 1
	ControlEof   ControlType = 2
)

// Body is implemented by ControlBody, GossipBody and GitBody.
type Body interface {
	isBody()
	encode(w *codec.Writer)
}

// ControlBody is Open{stream, rid}, Close{stream} or Eof{stream}. Rid is
// only meaningful on Open for a Git-kind stream: it tells the accepting
// side which repository the stream concerns, since the pack protocol
// negotiation that follows carries ref names and object ids but never a
// repository id of its own. It is the zero value otherwise.
type ControlBody struct {
	Type ControlType
	Of   StreamId
	Rid  [RidSize]byte
}

// RidSize is the width of a repository id as carried on an Open control
// frame: a raw byte array rather than gitstore.Oid, so this package
// doesn't need to import gitstore for one field's type.
const RidSize = 20

func (ControlBody) isBody() {}
func (b ControlBody) encode(w *codec.Writer) {
	w.WriteUint8(uint8(b.Type))
	w.WriteVarint(uint64(b.Of))
	w.WriteRawBytes(b.Rid[:])
}

// GossipBody is a length-prefixed, fully-encoded protocol message. Trailing
// bytes inside Length beyond what the message type consumes are forward
// compatibility padding and are dropped by the decoder.
type GossipBody struct {
	Encoded []byte
}

func (GossipBody) isBody() {}
func (b GossipBody) encode(w *codec.Writer) {
	w.WriteVarint(uint64(len(b.Encoded)))
	w.WriteRawBytes(b.Encoded)
}

// GitBody is raw pack-line or packfile fragment bytes.
type GitBody struct {
	Data []byte
}

func (GitBody) isBody() {}
func (b GitBody) encode(w *codec.Writer) {
	w.WriteVarint(uint64(len(b.Data)))
	w.WriteRawBytes(b.Data)
}

// Frame is the smallest on-wire unit: protocol magic, a StreamId, and a
// typed body.
type Frame struct {
	Stream StreamId
	Body   Body
}

// EncodeFrame serializes f, prefixed with the magic and version byte.
func EncodeFrame(f Frame) ([]byte, error) {
	if g, ok := f.Body.(GossipBody); ok && len(g.Encoded) > MaxGossipSize {
		return nil, fmt.Errorf("%w: %d > %d", ErrGossipTooLarge, len(g.Encoded), MaxGossipSize)
	}
	w := codec.NewWriter()
	w.WriteUint8(Magic[0])
	w.WriteUint8(Magic[1])
	w.WriteUint8(Magic[2])
	w.WriteUint8(ProtocolVersion)
	w.WriteVarint(uint64(f.Stream))
	switch b := f.Body.(type) {
	case ControlBody:
		w.WriteUint8(0)
		b.encode(w)
	case GossipBody:
		w.WriteUint8(1)
		b.encode(w)
	case GitBody:
		w.WriteUint8(2)
		b.encode(w)
	default:
		return nil, fmt.Errorf("wire: unknown body type %T", f.Body)
	}
	return w.Bytes(), nil
}

// DecodeFrame decodes a single frame from b, which must contain at least
// one complete frame at its start (use Decoder to defragment a byte
// stream). It returns the frame and the number of bytes consumed.
func DecodeFrame(b []byte) (Frame, int, error) {
	if len(b) < 4 {
		return Frame{}, 0, errShortRead
	}
	if b[0] != Magic[0] || b[1] != Magic[1] || b[2] != Magic[2] || b[3] != ProtocolVersion {
		return Frame{}, 0, ErrInvalidProtocolVersion
	}
	r := codec.NewReader(b[4:])
	streamRaw, err := r.ReadVarint()
	if err != nil {
		return Frame{}, 0, errShortRead
	}
	bodyTag, err := r.ReadUint8()
	if err != nil {
		return Frame{}, 0, errShortRead
	}
	var body Body
	switch bodyTag {
	case 0:
		typ, err := r.ReadUint8()
		if err != nil {
			return Frame{}, 0, errShortRead
		}
		of, err := r.ReadVarint()
		if err != nil {
			return Frame{}, 0, errShortRead
		}
		if r.Remaining() < RidSize {
			return Frame{}, 0, errShortRead
		}
		var rid [RidSize]byte
		copy(rid[:], r.Rest()[:RidSize])
		if err := r.Skip(RidSize); err != nil {
			return Frame{}, 0, errShortRead
		}
		body = ControlBody{Type: ControlType(typ), Of: StreamId(of), Rid: rid}
	case 1, 2:
		n, err := r.ReadVarint()
		if err != nil {
			return Frame{}, 0, errShortRead
		}
		if uint64(r.Remaining()) < n {
			return Frame{}, 0, errShortRead
		}
		data := make([]byte, n)
		copy(data, r.Rest()[:n])
		// Advance the reader past the framed region; any bytes inside n
		// that a higher-level decoder doesn't consume are forward
		// compatibility padding and are silently discarded here.
		if err := r.Skip(int(n)); err != nil {
			return Frame{}, 0, errShortRead
		}
		if bodyTag == 1 {
			body = GossipBody{Encoded: data}
		} else {
			body = GitBody{Data: data}
		}
	default:
		return Frame{}, 0, fmt.Errorf("wire: unknown body tag %d", bodyTag)
	}
	consumed := 4 + (len(b) - 4 - r.Remaining())
	return Frame{Stream: StreamId(streamRaw), Body: body}, consumed, nil
}

var errShortRead = errors.New("wire: short read")
