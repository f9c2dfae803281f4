package noise

import "errors"

// ErrHandshakeFailed wraps any cryptographic failure during the XK
// exchange, including a responder static key that does not match what an
// initiator expected.
var ErrHandshakeFailed = errors.New("noise: handshake failed")

// ErrNotEstablished is returned by WriteAtomic/Decrypt before the
// handshake has completed.
var ErrNotEstablished = errors.New("noise: session not established")

// ErrHandshakeComplete is returned by Step once the handshake has already
// finished; callers must switch to WriteAtomic/Decrypt.
var ErrHandshakeComplete = errors.New("noise: handshake already complete")
