// Package codec implements the deterministic, length-prefixed binary
// encoding shared by the wire, gossip and signed-refs layers (C1).
//
// Fixed-width integers are big-endian. Strings are a one-byte length
// followed by UTF-8 bytes. Variable-length sequences are a two-byte
// big-endian length followed by elements. Bounded vectors additionally
// enforce a compile-time maximum length. Git-specific encodings (object
// ids) live in internal/gitstore, which depends on this package rather
// than the reverse.
package codec

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// ErrBoundedExceeded is returned when a bounded vector's wire length exceeds
// its compile-time bound. Decoding stops immediately without reading the
// offending elements.
var ErrBoundedExceeded = errors.New("codec: bounded vector exceeded")

// ErrStringTooLong is returned when a string longer than 255 bytes is
// written.
var ErrStringTooLong = errors.New("codec: string exceeds 255 bytes")

// Writer accumulates an encoded message. The zero value is ready to use.
type Writer struct {
	buf bytes.Buffer
}

func NewWriter() *Writer { return &Writer{} }

func (w *Writer) Bytes() []byte { return w.buf.Bytes() }
func (w *Writer) Len() int      { return w.buf.Len() }

func (w *Writer) WriteUint8(v uint8) { w.buf.WriteByte(v) }

func (w *Writer) WriteUint16(v uint16) {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	w.buf.Write(b[:])
}

func (w *Writer) WriteUint32(v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	w.buf.Write(b[:])
}

func (w *Writer) WriteUint64(v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	w.buf.Write(b[:])
}

// WriteString encodes a one-byte length followed by s's UTF-8 bytes.
func (w *Writer) WriteString(s string) error {
	if len(s) > 255 {
		return fmt.Errorf("%w: %d", ErrStringTooLong, len(s))
	}
	w.WriteUint8(uint8(len(s)))
	w.buf.WriteString(s)
	return nil
}

// WriteBytes encodes a two-byte big-endian length followed by b.
func (w *Writer) WriteBytes(b []byte) {
	w.WriteUint16(uint16(len(b)))
	w.buf.Write(b)
}

// WriteRawBytes writes b with no length prefix, for bodies whose length is
// framed by the caller (e.g. Git stream data).
func (w *Writer) WriteRawBytes(b []byte) { w.buf.Write(b) }

// Reader consumes an encoded message sequentially.
type Reader struct {
	b   []byte
	pos int
}

func NewReader(b []byte) *Reader { return &Reader{b: b} }

// Remaining returns the number of unconsumed bytes.
func (r *Reader) Remaining() int { return len(r.b) - r.pos }

// Rest returns the unconsumed tail without advancing the cursor. Used for
// forward-compatible trailing-bytes discard: a caller that already parsed
// the logical fields of a message simply drops Rest().
func (r *Reader) Rest() []byte { return r.b[r.pos:] }

// Skip advances the cursor past n bytes without copying them.
func (r *Reader) Skip(n int) error {
	if err := r.require(n); err != nil {
		return err
	}
	r.pos += n
	return nil
}

func (r *Reader) require(n int) error {
	if r.Remaining() < n {
		return io.ErrUnexpectedEOF
	}
	return nil
}

func (r *Reader) ReadUint8() (uint8, error) {
	if err := r.require(1); err != nil {
		return 0, err
	}
	v := r.b[r.pos]
	r.pos++
	return v, nil
}

func (r *Reader) ReadUint16() (uint16, error) {
	if err := r.require(2); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint16(r.b[r.pos:])
	r.pos += 2
	return v, nil
}

func (r *Reader) ReadUint32() (uint32, error) {
	if err := r.require(4); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint32(r.b[r.pos:])
	r.pos += 4
	return v, nil
}

func (r *Reader) ReadUint64() (uint64, error) {
	if err := r.require(8); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint64(r.b[r.pos:])
	r.pos += 8
	return v, nil
}

// ReadString decodes a one-byte length followed by UTF-8 bytes.
func (r *Reader) ReadString() (string, error) {
	n, err := r.ReadUint8()
	if err != nil {
		return "", err
	}
	if err := r.require(int(n)); err != nil {
		return "", err
	}
	s := string(r.b[r.pos : r.pos+int(n)])
	r.pos += int(n)
	return s, nil
}

// ReadBytes decodes a two-byte length followed by raw bytes.
func (r *Reader) ReadBytes() ([]byte, error) {
	n, err := r.ReadUint16()
	if err != nil {
		return nil, err
	}
	if err := r.require(int(n)); err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, r.b[r.pos:r.pos+int(n)])
	r.pos += int(n)
	return out, nil
}

// BoundedVector decodes a two-byte-length-prefixed vector whose element
// count must not exceed bound, reading each element with decodeElem. It
// fails with ErrBoundedExceeded without invoking decodeElem for any element
// once the bound is known to be violated.
func BoundedVector[T any](r *Reader, bound int, decodeElem func(*Reader) (T, error)) ([]T, error) {
	n, err := r.ReadUint16()
	if err != nil {
		return nil, err
	}
	if int(n) > bound {
		return nil, fmt.Errorf("%w: got %d bound %d", ErrBoundedExceeded, n, bound)
	}
	out := make([]T, 0, n)
	for i := uint16(0); i < n; i++ {
		v, err := decodeElem(r)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// WriteVector encodes a two-byte length followed by each element, encoded
// by encodeElem.
func WriteVector[T any](w *Writer, items []T, encodeElem func(*Writer, T)) error {
	if len(items) > 0xFFFF {
		return fmt.Errorf("codec: vector of %d elements exceeds uint16 length prefix", len(items))
	}
	w.WriteUint16(uint16(len(items)))
	for _, v := range items {
		encodeElem(w, v)
	}
	return nil
}
