package gitstore

import "github.com/shurlinet/radnode/internal/nodeid"

// FoundObjects is what the storage adapter reports when asked to resolve a
// refname across an allow-set of NodeIds.
type FoundObjects struct {
	Objects        map[nodeid.NodeId]Object
	MissingRefs    []string
	MissingObjects map[nodeid.NodeId]Oid
}

// MergeBaseKey is a commutative cache key for merge_base(a, b): order by
// Oid.Less so that MergeBaseKey(a, b) == MergeBaseKey(b, a).
type MergeBaseKey [2]Oid

func NewMergeBaseKey(a, b Oid) MergeBaseKey {
	if a.Less(b) {
		return MergeBaseKey{a, b}
	}
	return MergeBaseKey{b, a}
}
