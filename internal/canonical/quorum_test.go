package canonical

import (
	"errors"
	"testing"

	"github.com/shurlinet/radnode/internal/gitstore"
	"github.com/shurlinet/radnode/internal/nodeid"
)

// fakeStore is a minimal MergeBaser backed by a hand-built commit DAG:
// parent[child] = parent, single-parent chains only (enough for the
// linear-history and simple-fork scenarios this package tests).
type fakeStore struct {
	parent map[gitstore.Oid]gitstore.Oid // child -> parent
}

func (f *fakeStore) ancestors(o gitstore.Oid) map[gitstore.Oid]bool {
	seen := map[gitstore.Oid]bool{o: true}
	for {
		p, ok := f.parent[o]
		if !ok {
			break
		}
		seen[p] = true
		o = p
	}
	return seen
}

func (f *fakeStore) MergeBase(a, b gitstore.Oid) (gitstore.Oid, bool, error) {
	aAnc := f.ancestors(a)
	cur := b
	for {
		if aAnc[cur] {
			return cur, true, nil
		}
		p, ok := f.parent[cur]
		if !ok {
			return gitstore.Oid{}, false, nil
		}
		cur = p
	}
}

func oidFor(b byte) gitstore.Oid {
	var o gitstore.Oid
	o[0] = b
	return o
}

func did(b byte) nodeid.NodeId {
	var n nodeid.NodeId
	n[0] = b
	return n
}

// TestCommitQuorum_LinearHistory is scenario S3 / property 6 line 1: three
// delegates vote c2, c1, c1 with threshold 2; c1 <- c2. Outcome: Commit{c1}.
func TestCommitQuorum_LinearHistory(t *testing.T) {
	c1, c2 := oidFor(1), oidFor(2)
	store := &fakeStore{parent: map[gitstore.Oid]gitstore.Oid{c2: c1}}
	votes := map[nodeid.NodeId]gitstore.Oid{
		did(1): c2,
		did(2): c1,
		did(3): c1,
	}
	got, err := CommitQuorum(votes, 2, store)
	if err != nil {
		t.Fatalf("CommitQuorum() error = %v", err)
	}
	if got != c1 {
		t.Fatalf("CommitQuorum() = %v, want c1", got)
	}
}

// TestCommitQuorum_Fork is scenario S4: three delegates vote c2, b2, c1,
// where b2 and c2 both descend from c1, threshold 2. Expect DivergingCommits.
func TestCommitQuorum_Fork(t *testing.T) {
	c1, c2, b2 := oidFor(1), oidFor(2), oidFor(3)
	store := &fakeStore{parent: map[gitstore.Oid]gitstore.Oid{c2: c1, b2: c1}}
	votes := map[nodeid.NodeId]gitstore.Oid{
		did(1): c2,
		did(2): b2,
		did(3): c1,
	}
	_, err := CommitQuorum(votes, 2, store)
	var diverge *DivergingCommitsError
	if !errors.As(err, &diverge) {
		t.Fatalf("CommitQuorum() error = %v, want DivergingCommitsError", err)
	}
	if diverge.Base != c1 {
		t.Fatalf("Base = %v, want c1", diverge.Base)
	}
}

// TestCommitQuorum_EvenForkAtThresholdOne is property 6 line 2: an even
// split at t=1 still yields DivergingCommits (both sides individually meet
// the threshold, so the fork is the deciding factor, not starvation).
func TestCommitQuorum_EvenForkAtThresholdOne(t *testing.T) {
	base, b, c := oidFor(1), oidFor(2), oidFor(3)
	store := &fakeStore{parent: map[gitstore.Oid]gitstore.Oid{b: base, c: base}}
	votes := map[nodeid.NodeId]gitstore.Oid{
		did(1): b,
		did(2): c,
	}
	_, err := CommitQuorum(votes, 1, store)
	var diverge *DivergingCommitsError
	if !errors.As(err, &diverge) {
		t.Fatalf("CommitQuorum() error = %v, want DivergingCommitsError", err)
	}
}

func TestTagQuorum_DivergingTags(t *testing.T) {
	t1, t2 := oidFor(1), oidFor(2)
	votes := map[nodeid.NodeId]gitstore.Oid{
		did(1): t1,
		did(2): t1,
		did(3): t2,
		did(4): t2,
	}
	_, err := TagQuorum(votes, 2)
	var diverge *DivergingTagsError
	if !errors.As(err, &diverge) {
		t.Fatalf("TagQuorum() error = %v, want DivergingTagsError", err)
	}
	if len(diverge.Candidates) != 2 {
		t.Fatalf("Candidates = %v, want 2 entries", diverge.Candidates)
	}
}

func TestTagQuorum_SingleWinner(t *testing.T) {
	t1, t2 := oidFor(1), oidFor(2)
	votes := map[nodeid.NodeId]gitstore.Oid{
		did(1): t1,
		did(2): t1,
		did(3): t2,
	}
	got, err := TagQuorum(votes, 2)
	if err != nil {
		t.Fatalf("TagQuorum() error = %v", err)
	}
	if got != t1 {
		t.Fatalf("TagQuorum() = %v, want t1", got)
	}
}

func TestTagQuorum_NoCandidates(t *testing.T) {
	votes := map[nodeid.NodeId]gitstore.Oid{
		did(1): oidFor(1),
		did(2): oidFor(2),
	}
	if _, err := TagQuorum(votes, 2); !errors.Is(err, ErrNoCandidates) {
		t.Fatalf("TagQuorum() error = %v, want ErrNoCandidates", err)
	}
}
