package gitstore

import (
	"fmt"

	"github.com/shurlinet/radnode/internal/codec"
	"github.com/shurlinet/radnode/internal/nodeid"
)

// Visibility controls who may fetch a repository: public repos answer
// any peer, private repos only delegates and explicitly allowed readers.
type Visibility uint8

const (
	VisibilityPublic Visibility = iota
	VisibilityPrivate
)

// IdentityDocument is the project's self-describing root of trust:
// who the delegates are, how many must agree, and free-form project
// metadata (name, description, default branch).
type IdentityDocument struct {
	Delegates  []nodeid.NodeId
	Threshold  int
	Visibility Visibility
	Metadata   map[string]string
}

// MaxDelegates mirrors Rule.Allow's 255-element cap.
const MaxDelegates = 255

// EncodeIdentityDocument serializes doc for storage as a blob at
// IdentityBlobPath. Editing the document (delegate-set changes, threshold
// changes under quorum) is out of scope; this is the read-side codec
// identity_doc(rid) needs.
func EncodeIdentityDocument(doc IdentityDocument) []byte {
	w := codec.NewWriter()
	_ = codec.WriteVector(w, doc.Delegates, func(w *codec.Writer, id nodeid.NodeId) {
		w.WriteBytes(id[:])
	})
	w.WriteUint32(uint32(doc.Threshold))
	w.WriteUint8(uint8(doc.Visibility))
	names := make([]string, 0, len(doc.Metadata))
	for k := range doc.Metadata {
		names = append(names, k)
	}
	_ = codec.WriteVector(w, names, func(w *codec.Writer, k string) {
		_ = w.WriteString(k)
		_ = w.WriteString(doc.Metadata[k])
	})
	return w.Bytes()
}

func DecodeIdentityDocument(b []byte) (IdentityDocument, error) {
	r := codec.NewReader(b)
	delegates, err := codec.BoundedVector(r, MaxDelegates, func(r *codec.Reader) (nodeid.NodeId, error) {
		raw, err := r.ReadBytes()
		if err != nil {
			return nodeid.NodeId{}, err
		}
		return nodeid.Parse(raw)
	})
	if err != nil {
		return IdentityDocument{}, fmt.Errorf("gitstore: identity document: %w", err)
	}
	threshold, err := r.ReadUint32()
	if err != nil {
		return IdentityDocument{}, fmt.Errorf("gitstore: identity document: %w", err)
	}
	vis, err := r.ReadUint8()
	if err != nil {
		return IdentityDocument{}, fmt.Errorf("gitstore: identity document: %w", err)
	}
	type kv struct{ k, v string }
	pairs, err := codec.BoundedVector(r, 1<<16-1, func(r *codec.Reader) (kv, error) {
		k, err := r.ReadString()
		if err != nil {
			return kv{}, err
		}
		v, err := r.ReadString()
		if err != nil {
			return kv{}, err
		}
		return kv{k, v}, nil
	})
	if err != nil {
		return IdentityDocument{}, fmt.Errorf("gitstore: identity document: %w", err)
	}
	meta := make(map[string]string, len(pairs))
	for _, p := range pairs {
		meta[p.k] = p.v
	}
	return IdentityDocument{
		Delegates:  delegates,
		Threshold:  int(threshold),
		Visibility: Visibility(vis),
		Metadata:   meta,
	}, nil
}
