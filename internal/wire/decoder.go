package wire

// Decoder defragments an arbitrarily-chunked byte stream into complete
// Frames. Feed it bytes as they arrive (Push) and drain complete frames
// with Next. Partial frames are buffered until enough bytes arrive.
type Decoder struct {
	buf []byte
}

// Push appends newly-received bytes to the decoder's internal buffer.
func (d *Decoder) Push(b []byte) {
	d.buf = append(d.buf, b...)
}

// Next returns the next complete frame, if one is buffered. ok is false
// when no more complete frames are available yet (not an error: more bytes
// may still arrive). A malformed prefix (bad magic) is reported as an
// error and the decoder does not attempt to resynchronize.
func (d *Decoder) Next() (frame Frame, ok bool, err error) {
	if len(d.buf) < 4 {
		return Frame{}, false, nil
	}
	f, n, decErr := DecodeFrame(d.buf)
	if decErr == errShortRead {
		return Frame{}, false, nil
	}
	if decErr != nil {
		return Frame{}, false, decErr
	}
	d.buf = d.buf[n:]
	return f, true, nil
}

// Buffered reports how many undecoded bytes remain in the internal buffer.
func (d *Decoder) Buffered() int { return len(d.buf) }
