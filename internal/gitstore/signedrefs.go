package gitstore

import (
	"fmt"
	"sort"

	"github.com/shurlinet/radnode/internal/codec"
	"github.com/shurlinet/radnode/internal/nodeid"
)

// SignedRefs is the payload carried by one peer's reserved signed-refs
// branch: a refname -> Oid map, a monotonic sequence number, and a
// signature over the encoded map+sequence.
type SignedRefs struct {
	Refs      map[string]Oid
	Seq       uint64
	Signature nodeid.Signature
}

// SignedRefsBranch returns the reserved branch a NodeId publishes its
// signed refs under.
func SignedRefsBranch(id nodeid.NodeId) string {
	return "refs/rad/sigrefs/" + id.String()
}

// encodePayload serializes the refname->Oid map and sequence number; the
// signature covers exactly these bytes.
func encodePayload(refs map[string]Oid, seq uint64) []byte {
	names := make([]string, 0, len(refs))
	for name := range refs {
		names = append(names, name)
	}
	sort.Strings(names) // deterministic encoding: map iteration order is not stable

	w := codec.NewWriter()
	w.WriteUint64(seq)
	_ = codec.WriteVector(w, names, func(w *codec.Writer, name string) {
		_ = w.WriteString(name)
		WriteOid(w, refs[name])
	})
	return w.Bytes()
}

// MaxSignedRefs bounds the refname->Oid map carried in one bundle.
const MaxSignedRefs = 1 << 16 >> 1

func decodePayload(b []byte) (map[string]Oid, uint64, error) {
	r := codec.NewReader(b)
	seq, err := r.ReadUint64()
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrPartialBundle, err)
	}
	type entry struct {
		name string
		oid  Oid
	}
	entries, err := codec.BoundedVector(r, MaxSignedRefs, func(r *codec.Reader) (entry, error) {
		name, err := r.ReadString()
		if err != nil {
			return entry{}, err
		}
		oid, err := ReadOid(r)
		if err != nil {
			return entry{}, err
		}
		return entry{name: name, oid: oid}, nil
	})
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrPartialBundle, err)
	}
	refs := make(map[string]Oid, len(entries))
	for _, e := range entries {
		refs[e.name] = e.oid
	}
	return refs, seq, nil
}

// EncodeSignedRefs serializes a bundle for storage as a commit payload.
func EncodeSignedRefs(b SignedRefs) []byte {
	w := codec.NewWriter()
	w.WriteRawBytes(b.Signature[:])
	w.WriteRawBytes(encodePayload(b.Refs, b.Seq))
	return w.Bytes()
}

// DecodeSignedRefs parses and verifies a bundle against signer.
func DecodeSignedRefs(signer nodeid.NodeId, raw []byte) (SignedRefs, error) {
	if len(raw) < nodeid.SignatureSize {
		return SignedRefs{}, ErrPartialBundle
	}
	sig, err := nodeid.ParseSignature(raw[:nodeid.SignatureSize])
	if err != nil {
		return SignedRefs{}, fmt.Errorf("%w: %v", ErrPartialBundle, err)
	}
	payload := raw[nodeid.SignatureSize:]
	refs, seq, err := decodePayload(payload)
	if err != nil {
		return SignedRefs{}, err
	}
	if !nodeid.Verify(signer, payload, sig) {
		return SignedRefs{}, fmt.Errorf("gitstore: signed refs signature verification failed for %s", signer)
	}
	return SignedRefs{Refs: refs, Seq: seq, Signature: sig}, nil
}

// SignRefsPayload produces a new bundle for refs at sequence seq, signed
// by signer. Callers are responsible for choosing seq strictly greater
// than the previous bundle's (see Adapter.SignRefs).
func SignRefsPayload(signer nodeid.Signer, refs map[string]Oid, seq uint64) SignedRefs {
	payload := encodePayload(refs, seq)
	return SignedRefs{Refs: refs, Seq: seq, Signature: signer.Sign(payload)}
}
