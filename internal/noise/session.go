// Package noise implements the Noise XK session layer (C2): the initiator
// transmits its static key, the responder's static key is known to the
// initiator in advance. Reads and writes are non-blocking; outbound
// ciphertext is buffered until the underlying stream reports writable.
package noise

import (
	"crypto/rand"
	"errors"
	"fmt"

	flynnnoise "github.com/flynn/noise"
	"golang.org/x/crypto/curve25519"

	"github.com/shurlinet/radnode/internal/nodeid"
)

var cipherSuite = flynnnoise.NewCipherSuite(flynnnoise.DH25519, flynnnoise.CipherAESGCM, flynnnoise.HashSHA256)

// Keypair is a Noise static X25519 keypair, generated once per process and
// supplied by the keystore.
type Keypair struct{ inner flynnnoise.DHKey }

// GenerateKeypair creates a fresh static keypair.
func GenerateKeypair() (Keypair, error) {
	kp, err := flynnnoise.DH25519.GenerateKeypair(rand.Reader)
	if err != nil {
		return Keypair{}, fmt.Errorf("noise: generate keypair: %w", err)
	}
	return Keypair{inner: kp}, nil
}

// KeypairFromRaw wraps an existing X25519 keypair. Noise uses X25519 while
// the NodeId namespace uses Ed25519; the two are kept distinct on purpose,
// so callers hold both a Signer (Ed25519) and a noise.Keypair (X25519)
// side by side rather than deriving one from the other.
func KeypairFromRaw(priv, pub []byte) Keypair {
	return Keypair{inner: flynnnoise.DHKey{Private: priv, Public: pub}}
}

// GenerateKeypairFromSeed derives a static X25519 keypair deterministically
// from a 32-byte seed, for keystores that recover identities from a single
// seed phrase rather than storing raw key bytes directly.
func GenerateKeypairFromSeed(seed []byte) (Keypair, error) {
	if len(seed) != 32 {
		return Keypair{}, fmt.Errorf("noise: seed must be 32 bytes, got %d", len(seed))
	}
	priv := make([]byte, 32)
	copy(priv, seed)
	pub, err := curve25519.X25519(priv, curve25519.Basepoint)
	if err != nil {
		return Keypair{}, fmt.Errorf("noise: derive public key: %w", err)
	}
	return Keypair{inner: flynnnoise.DHKey{Private: priv, Public: pub}}, nil
}

func (k Keypair) Public() []byte { return k.inner.Public }

// State is the lifecycle of a Session.
type State int

const (
	StateHandshaking State = iota
	StateEstablished
	StateFailed
)

// Session drives one XK handshake and, once established, symmetric
// encryption/decryption of the transport stream.
type Session struct {
	initiator bool
	hs        *flynnnoise.HandshakeState
	state     State

	send, recv *flynnnoise.CipherState
	remoteXID  []byte // the peer's revealed Noise static key, post-handshake

	outbox []byte // ciphertext queued because the transport wasn't writable
}

// NewInitiator starts a handshake expecting the responder to present
// expectedRemoteStatic (the responder's known X25519 public key).
func NewInitiator(local Keypair, expectedRemoteStatic []byte) (*Session, error) {
	hs, err := flynnnoise.NewHandshakeState(flynnnoise.Config{
		CipherSuite:   cipherSuite,
		Pattern:       flynnnoise.HandshakeXK,
		Initiator:     true,
		StaticKeypair: local.inner,
		PeerStatic:    expectedRemoteStatic,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHandshakeFailed, err)
	}
	return &Session{initiator: true, hs: hs, remoteXID: expectedRemoteStatic}, nil
}

// NewResponder starts a handshake that will learn the initiator's static
// key only once the final handshake message arrives.
func NewResponder(local Keypair) (*Session, error) {
	hs, err := flynnnoise.NewHandshakeState(flynnnoise.Config{
		CipherSuite:   cipherSuite,
		Pattern:       flynnnoise.HandshakeXK,
		Initiator:     false,
		StaticKeypair: local.inner,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHandshakeFailed, err)
	}
	return &Session{initiator: false, hs: hs}, nil
}

// Start produces the initiator's first handshake message ("-> e, es"). Only
// valid for sessions created with NewInitiator, and only once.
func (s *Session) Start() ([]byte, error) {
	if !s.initiator {
		return nil, errors.New("noise: Start called on responder session")
	}
	msg, _, _, err := s.hs.WriteMessage(nil, nil)
	if err != nil {
		s.state = StateFailed
		return nil, fmt.Errorf("%w: %v", ErrHandshakeFailed, err)
	}
	return msg, nil
}

// Step feeds one incoming handshake message and returns the next outgoing
// one, if any. done reports whether the handshake is now established (in
// which case out may be nil if this side had nothing left to send, as is
// the case for the responder after reading the final message).
func (s *Session) Step(in []byte) (out []byte, done bool, err error) {
	if s.state != StateHandshaking {
		return nil, false, ErrHandshakeComplete
	}
	_, rcs1, rcs2, rerr := s.hs.ReadMessage(nil, in)
	if rerr != nil {
		s.state = StateFailed
		return nil, false, fmt.Errorf("%w: %v", ErrHandshakeFailed, rerr)
	}
	if s.hs.PeerStatic() != nil {
		s.remoteXID = s.hs.PeerStatic()
	}
	if s.initiator {
		// Initiator's second read (msg2) leaves one message left to send
		// (msg3), which completes the handshake on the write side.
		out, cs1, cs2, werr := s.hs.WriteMessage(nil, nil)
		if werr != nil {
			s.state = StateFailed
			return nil, false, fmt.Errorf("%w: %v", ErrHandshakeFailed, werr)
		}
		if cs1 != nil {
			s.complete(cs1, cs2)
			return out, true, nil
		}
		return out, false, nil
	}
	// Responder: reading msg1 never completes the handshake (one more
	// round-trip is required); reading msg3 does, and has no reply.
	if rcs1 != nil {
		s.complete(rcs1, rcs2)
		return nil, true, nil
	}
	return nil, false, nil
}

// StepWrite drives the responder's single outbound message ("-> e, ee"),
// called once after the first Step(msg1) call returns done=false.
func (s *Session) StepWrite() ([]byte, error) {
	if s.state != StateHandshaking {
		return nil, ErrHandshakeComplete
	}
	msg, _, _, err := s.hs.WriteMessage(nil, nil)
	if err != nil {
		s.state = StateFailed
		return nil, fmt.Errorf("%w: %v", ErrHandshakeFailed, err)
	}
	return msg, nil
}

// FinishResponder consumes the initiator's final handshake message
// ("s, se"), completing the handshake and revealing the initiator's
// static key.
func (s *Session) FinishResponder(in []byte) error {
	if s.state != StateHandshaking {
		return ErrHandshakeComplete
	}
	_, cs1, cs2, err := s.hs.ReadMessage(nil, in)
	if err != nil {
		s.state = StateFailed
		return fmt.Errorf("%w: %v", ErrHandshakeFailed, err)
	}
	s.remoteXID = s.hs.PeerStatic()
	s.complete(cs1, cs2)
	return nil
}

func (s *Session) complete(cs1, cs2 *flynnnoise.CipherState) {
	if s.initiator {
		s.send, s.recv = cs1, cs2
	} else {
		s.recv, s.send = cs1, cs2
	}
	s.state = StateEstablished
	s.hs = nil
}

// Status reports the session's current lifecycle stage.
func (s *Session) Status() State { return s.state }

// RemoteStatic returns the peer's revealed Noise static key. Valid once
// the handshake has produced it: immediately for an initiator (supplied
// up front), only after completion for a responder.
func (s *Session) RemoteStatic() []byte { return s.remoteXID }

// RemoteNodeID reinterprets RemoteStatic as a NodeId. This is only correct
// when the deployment's keystore derives the Noise static key and the
// Ed25519 NodeId from the same seed; callers that keep them independent
// must map remote statics to NodeIds via a directory instead.
func (s *Session) RemoteNodeID() (nodeid.NodeId, error) {
	return nodeid.Parse(s.remoteXID)
}

// IsReadyToWrite reports whether WriteAtomic may be called: the internal
// outbound buffer has fully drained to the transport.
func (s *Session) IsReadyToWrite() bool { return len(s.outbox) == 0 }

// WriteAtomic encrypts plaintext and enqueues the ciphertext for
// transmission. It must only be called when IsReadyToWrite() is true, and
// it either buffers the entire frame or returns an error -- never a
// partial write.
func (s *Session) WriteAtomic(plaintext []byte) error {
	if s.state != StateEstablished {
		return ErrNotEstablished
	}
	if !s.IsReadyToWrite() {
		return errors.New("noise: WriteAtomic called while not ready to write")
	}
	ct := s.send.Encrypt(nil, nil, plaintext)
	s.outbox = ct
	return nil
}

// Flush attempts to drain the outbound buffer into w, which may perform a
// short, non-blocking write. It returns the number of bytes actually
// consumed from the buffer.
func (s *Session) Flush(w interface{ Write([]byte) (int, error) }) (int, error) {
	if len(s.outbox) == 0 {
		return 0, nil
	}
	n, err := w.Write(s.outbox)
	if n > 0 {
		s.outbox = s.outbox[n:]
	}
	return n, err
}

// Decrypt authenticates and decrypts one received ciphertext frame.
func (s *Session) Decrypt(ciphertext []byte) ([]byte, error) {
	if s.state != StateEstablished {
		return nil, ErrNotEstablished
	}
	pt, err := s.recv.Decrypt(nil, nil, ciphertext)
	if err != nil {
		return nil, fmt.Errorf("noise: decrypt: %w", err)
	}
	return pt, nil
}
