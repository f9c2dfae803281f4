package canonical

import (
	"github.com/shurlinet/radnode/internal/gitstore"
	"github.com/shurlinet/radnode/internal/nodeid"
)

// Object and FoundObjects are the storage adapter's vocabulary (C8);
// defined in gitstore to keep the dependency one-directional (canonical
// depends on gitstore, never the reverse).
type Object = gitstore.Object

const (
	KindCommit = gitstore.KindCommit
	KindTag    = gitstore.KindTag
)

func Commit(oid gitstore.Oid) Object { return gitstore.CommitObject(oid) }
func Tag(oid gitstore.Oid) Object    { return gitstore.TagObject(oid) }

// MergeBaser resolves the merge-base of two commits, cached by the caller
// under a commutative key (gitstore.MergeBaseKey).
type MergeBaser interface {
	MergeBase(a, b gitstore.Oid) (gitstore.Oid, bool, error)
}

// Finder locates the signed objects an allow-set has published for a
// refname.
type Finder interface {
	FindObjects(refname string, allow []nodeid.NodeId) (gitstore.FoundObjects, error)
}

// CanonicalSetter atomically updates a canonical ref.
type CanonicalSetter interface {
	SetCanonicalRef(refname string, obj Object, reason string) error
}

// Storage is everything the resolver needs from the storage adapter (C8).
type Storage interface {
	MergeBaser
	Finder
	CanonicalSetter
}
