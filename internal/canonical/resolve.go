package canonical

import (
	"fmt"

	"github.com/shurlinet/radnode/internal/gitstore"
	"github.com/shurlinet/radnode/internal/nodeid"
)

// ErrNoMatchingRule is returned when no rule's pattern matches a refname.
type ErrNoMatchingRule struct {
	Refname string
}

func (e *ErrNoMatchingRule) Error() string {
	return fmt.Sprintf("canonical: no rule matches %s", e.Refname)
}

// Resolve computes the canonical Object for refname by selecting the
// most-specific matching rule, resolving its allow-set against delegates,
// gathering FoundObjects from storage, and running the quorum algorithm.
// Missing refs/objects are not resolver errors:
// FoundObjects.MissingRefs/MissingObjects are simply absent from the vote
// tally, so a caller can retry after fetching.
func Resolve(refname string, rules []Rule, delegates []nodeid.NodeId, st Storage) (Object, error) {
	idx := mostSpecificRule(rules, refname)
	if idx < 0 {
		return Object{}, &ErrNoMatchingRule{Refname: refname}
	}
	rule := rules[idx]
	allow := rule.Allow.Resolve(delegates)

	found, err := st.FindObjects(refname, allow)
	if err != nil {
		return Object{}, fmt.Errorf("canonical: find objects for %s: %w", refname, err)
	}

	commitVotes := make(map[nodeid.NodeId]gitstore.Oid)
	tagVotes := make(map[nodeid.NodeId]gitstore.Oid)
	for did, obj := range found.Objects {
		if obj.Kind == KindTag {
			tagVotes[did] = obj.Oid
		} else {
			commitVotes[did] = obj.Oid
		}
	}
	if len(commitVotes) > 0 && len(tagVotes) > 0 {
		return Object{}, ErrDifferentTypes
	}
	if len(tagVotes) > 0 {
		oid, err := TagQuorum(tagVotes, rule.Threshold)
		if err != nil {
			return Object{}, err
		}
		return Tag(oid), nil
	}
	oid, err := CommitQuorum(commitVotes, rule.Threshold, st)
	if err != nil {
		return Object{}, err
	}
	return Commit(oid), nil
}

func mostSpecificRule(rules []Rule, refname string) int {
	patterns := make([]Pattern, len(rules))
	for i, r := range rules {
		patterns[i] = r.Pattern
	}
	return MostSpecific(patterns, refname)
}

// EvaluateAll runs Resolve for every refname discovered among delegates'
// signed refs and, on success, applies the outcome via SetCanonicalRef.
// It returns a map of refname to the error encountered, if any, for
// refnames that did not resolve; successes are not included.
func EvaluateAll(refnames []string, rules []Rule, delegates []nodeid.NodeId, st Storage) map[string]error {
	failures := make(map[string]error)
	for _, refname := range refnames {
		obj, err := Resolve(refname, rules, delegates, st)
		if err != nil {
			failures[refname] = err
			continue
		}
		reason := fmt.Sprintf("canonical: %s -> %s", refname, obj)
		if err := st.SetCanonicalRef(refname, obj, reason); err != nil {
			failures[refname] = fmt.Errorf("canonical: set canonical ref %s: %w", refname, err)
		}
	}
	return failures
}
