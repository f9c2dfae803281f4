// Package nodeid defines the peer and signature identifiers used throughout
// the replication engine: NodeId (an Ed25519 public key) and Signature.
package nodeid

import (
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"fmt"
)

// Size of a NodeId, in bytes: an Ed25519 public key.
const Size = ed25519.PublicKeySize

// SignatureSize is the length of an Ed25519 signature.
const SignatureSize = ed25519.SignatureSize

// ErrInvalidLength is returned when decoding a NodeId or Signature from the
// wrong number of bytes.
var ErrInvalidLength = errors.New("nodeid: invalid length")

// NodeId identifies a peer and, doubled as a Git namespace, the remotes a
// peer publishes under refs/remotes/<nodeid>/...
type NodeId [Size]byte

// Parse decodes a NodeId from raw bytes.
func Parse(b []byte) (NodeId, error) {
	var id NodeId
	if len(b) != Size {
		return id, fmt.Errorf("%w: got %d want %d", ErrInvalidLength, len(b), Size)
	}
	copy(id[:], b)
	return id, nil
}

// ParseHex decodes a NodeId from its hex representation.
func ParseHex(s string) (NodeId, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return NodeId{}, fmt.Errorf("nodeid: %w", err)
	}
	return Parse(b)
}

func (id NodeId) String() string { return hex.EncodeToString(id[:]) }

// Bytes returns the NodeId as a byte slice. The returned slice shares no
// storage with id.
func (id NodeId) Bytes() []byte {
	b := make([]byte, Size)
	copy(b, id[:])
	return b
}

func (id NodeId) PublicKey() ed25519.PublicKey { return ed25519.PublicKey(id[:]) }

// Less gives NodeId a total order, used to break ties deterministically
// (see the conflict-resolution precedence rule in the wire handler).
func (id NodeId) Less(other NodeId) bool {
	for i := range id {
		if id[i] != other[i] {
			return id[i] < other[i]
		}
	}
	return false
}

// Signature is a detached Ed25519 signature over an encoded message.
type Signature [SignatureSize]byte

// ParseSignature decodes a Signature from raw bytes.
func ParseSignature(b []byte) (Signature, error) {
	var sig Signature
	if len(b) != SignatureSize {
		return sig, fmt.Errorf("%w: got %d want %d", ErrInvalidLength, len(b), SignatureSize)
	}
	copy(sig[:], b)
	return sig, nil
}

func (s Signature) String() string { return hex.EncodeToString(s[:]) }

// Verify reports whether sig is a valid Ed25519 signature by id over msg.
func Verify(id NodeId, msg []byte, sig Signature) bool {
	return ed25519.Verify(id.PublicKey(), msg, sig[:])
}

// Signer is the capability a keystore exports to the rest of the engine:
// sign arbitrary bytes and report the signer's own NodeId. Credential
// storage itself (how the private key is protected on disk) is out of
// scope; only this interface is consumed by the core.
type Signer interface {
	NodeId() NodeId
	Sign(msg []byte) Signature
}
