package canonical

import (
	"errors"
	"fmt"
	"sort"

	"github.com/shurlinet/radnode/internal/gitstore"
	"github.com/shurlinet/radnode/internal/nodeid"
)

// ErrNoCandidates is returned when no object (commit or tag) reaches the
// required vote threshold.
var ErrNoCandidates = errors.New("canonical: no candidate reaches quorum")

// ErrDifferentTypes is returned when the allow-set's voters are split
// between commits and tags for the same refname.
var ErrDifferentTypes = errors.New("canonical: mixed commit and tag votes")

// DivergingTagsError reports two or more tags each reaching the threshold.
type DivergingTagsError struct {
	Candidates []gitstore.Oid
}

func (e *DivergingTagsError) Error() string {
	return fmt.Sprintf("canonical: diverging tags: %v", e.Candidates)
}

// DivergingCommitsError reports a fork in commit history above Base: Longest
// and Candidate are mutually non-ancestral descendants of Base.
type DivergingCommitsError struct {
	Base      gitstore.Oid
	Longest   gitstore.Oid
	Candidate gitstore.Oid
}

func (e *DivergingCommitsError) Error() string {
	return fmt.Sprintf("canonical: diverging commits: base=%s longest=%s candidate=%s", e.Base, e.Longest, e.Candidate)
}

// TagQuorum groups votes by Oid and succeeds iff exactly one Oid reaches
// threshold.
func TagQuorum(votes map[nodeid.NodeId]gitstore.Oid, threshold int) (gitstore.Oid, error) {
	counts := make(map[gitstore.Oid]int)
	for _, oid := range votes {
		counts[oid]++
	}
	var winners []gitstore.Oid
	for oid, n := range counts {
		if n >= threshold {
			winners = append(winners, oid)
		}
	}
	switch len(winners) {
	case 0:
		return gitstore.Oid{}, ErrNoCandidates
	case 1:
		return winners[0], nil
	default:
		sort.Slice(winners, func(i, j int) bool { return winners[i].Less(winners[j]) })
		return gitstore.Oid{}, &DivergingTagsError{Candidates: winners}
	}
}

type commitCandidate struct {
	oid   gitstore.Oid
	votes int
}

// CommitQuorum implements the commit quorum algorithm: order candidates
// descending by vote count, then fold each into the running "longest"
// commit via merge-base, detecting the first fork.
func CommitQuorum(votes map[nodeid.NodeId]gitstore.Oid, threshold int, mb MergeBaser) (gitstore.Oid, error) {
	counts := make(map[gitstore.Oid]int)
	for _, oid := range votes {
		counts[oid]++
	}
	candidates := make([]commitCandidate, 0, len(counts))
	for oid, n := range counts {
		candidates = append(candidates, commitCandidate{oid: oid, votes: n})
	}
	if len(candidates) == 0 {
		return gitstore.Oid{}, ErrNoCandidates
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].votes != candidates[j].votes {
			return candidates[i].votes > candidates[j].votes
		}
		return candidates[i].oid.Less(candidates[j].oid)
	})

	longest := candidates[0].oid
	voters := candidates[0].votes

	for _, c := range candidates[1:] {
		base, ok, err := mb.MergeBase(c.oid, longest)
		if err != nil {
			return gitstore.Oid{}, fmt.Errorf("canonical: merge-base(%s,%s): %w", c.oid, longest, err)
		}
		if !ok {
			// No common ancestor at all: treat as an immediate fork at the
			// zero object, which can never equal either side.
			return gitstore.Oid{}, &DivergingCommitsError{Base: gitstore.Zero, Longest: longest, Candidate: c.oid}
		}
		switch {
		case base == longest:
			// c descends from longest. Only advance the frontier to c
			// while longest's own support hasn't yet cleared threshold;
			// once it has, a later, lower-voted descendant must not
			// displace an ancestor that already independently won quorum.
			if voters < threshold {
				longest = c.oid
				voters += c.votes
			}
		case base == c.oid || c.oid == longest:
			// c is an ancestor of (or equal to) longest: absorb its votes.
			voters += c.votes
		default:
			return gitstore.Oid{}, &DivergingCommitsError{Base: base, Longest: longest, Candidate: c.oid}
		}
	}

	if voters < threshold {
		return gitstore.Oid{}, ErrNoCandidates
	}
	return longest, nil
}
