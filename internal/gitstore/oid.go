// Package gitstore implements the signed-refs and storage adapter (C8): the
// boundary between the replication engine and on-disk Git object storage.
package gitstore

import (
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/go-git/go-git/v5/plumbing"

	"github.com/shurlinet/radnode/internal/codec"
)

// Sha1Len is the only digest length accepted until SHA-256 object ids are
// introduced (see ReadOid).
const Sha1Len = 20

// ErrInvalidOidLength is returned when an Oid is constructed from a digest
// of any length other than Sha1Len.
var ErrInvalidOidLength = errors.New("gitstore: invalid oid length")

// Oid is a Git object id: currently always a 20-byte SHA-1 digest.
type Oid [Sha1Len]byte

// Zero is the all-zeroes Oid, used as a sentinel "no object" value.
var Zero Oid

// FromBytes constructs an Oid from a raw digest.
func FromBytes(b []byte) (Oid, error) {
	var o Oid
	if len(b) != Sha1Len {
		return o, fmt.Errorf("%w: got %d want %d", ErrInvalidOidLength, len(b), Sha1Len)
	}
	copy(o[:], b)
	return o, nil
}

// ParseHex decodes an Oid from its 40-character hex representation.
func ParseHex(s string) (Oid, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return Oid{}, fmt.Errorf("gitstore: %w", err)
	}
	return FromBytes(b)
}

// FromPlumbing converts a go-git plumbing.Hash into an Oid.
func FromPlumbing(h plumbing.Hash) Oid {
	var o Oid
	copy(o[:], h[:])
	return o
}

// Plumbing converts an Oid into a go-git plumbing.Hash.
func (o Oid) Plumbing() plumbing.Hash {
	return plumbing.Hash(o)
}

func (o Oid) String() string { return hex.EncodeToString(o[:]) }

func (o Oid) IsZero() bool { return o == Zero }

// Less gives Oid a total order, used by the merge-base lookup key (which
// must be commutative: Less(a,b) picks a canonical (min,max) ordering
// regardless of argument order) and by tag/commit tie-breaking.
func (o Oid) Less(other Oid) bool {
	for i := range o {
		if o[i] != other[i] {
			return o[i] < other[i]
		}
	}
	return false
}

// WriteOid encodes a two-byte length followed by the raw digest.
// Defined here, not in internal/codec, so that the wire codec stays
// Git-agnostic and the dependency runs one way: gitstore depends on
// codec, never the reverse.
func WriteOid(w *codec.Writer, o Oid) {
	w.WriteUint16(uint16(len(o)))
	w.WriteRawBytes(o[:])
}

// ReadOid decodes a two-byte length followed by a digest. Any length
// other than Sha1Len is rejected: this is the hook future SHA-256
// support will relax.
func ReadOid(r *codec.Reader) (Oid, error) {
	b, err := r.ReadBytes()
	if err != nil {
		return Oid{}, err
	}
	if len(b) != Sha1Len {
		return Oid{}, fmt.Errorf("%w: got %d", ErrInvalidOidLength, len(b))
	}
	return FromBytes(b)
}
