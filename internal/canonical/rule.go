package canonical

import (
	"errors"
	"fmt"

	"github.com/shurlinet/radnode/internal/nodeid"
)

// ErrEmptyAllowSet is returned when a Rule's explicit allow-set is empty.
var ErrEmptyAllowSet = errors.New("canonical: allow-set must be non-empty")

// ErrThresholdOutOfRange is returned when threshold is not within
// [1, len(allow)] or exceeds 255.
var ErrThresholdOutOfRange = errors.New("canonical: threshold out of range")

// Allow selects which NodeIds a Rule counts votes from: either the
// identity document's delegate set (resolved at evaluation time) or an
// explicit fixed set.
type Allow struct {
	Delegates bool
	Explicit  []nodeid.NodeId
}

// DelegatesAllow selects the symbolic "delegates" value.
func DelegatesAllow() Allow { return Allow{Delegates: true} }

// ExplicitAllow selects a fixed, non-empty, unique set of up to 255 NodeIds.
func ExplicitAllow(ids []nodeid.NodeId) (Allow, error) {
	if len(ids) == 0 {
		return Allow{}, ErrEmptyAllowSet
	}
	if len(ids) > 255 {
		return Allow{}, fmt.Errorf("canonical: allow-set size %d exceeds 255", len(ids))
	}
	seen := make(map[nodeid.NodeId]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			return Allow{}, fmt.Errorf("canonical: duplicate NodeId %s in allow-set", id)
		}
		seen[id] = struct{}{}
	}
	cp := make([]nodeid.NodeId, len(ids))
	copy(cp, ids)
	return Allow{Explicit: cp}, nil
}

// Resolve returns the concrete NodeId set this Allow votes with, resolving
// "delegates" against the supplied identity document's delegate set.
func (a Allow) Resolve(delegates []nodeid.NodeId) []nodeid.NodeId {
	if a.Delegates {
		return delegates
	}
	return a.Explicit
}

// Rule is (pattern, allow, threshold): which refs it governs, who may vote,
// and how many votes are required for quorum.
type Rule struct {
	Pattern   Pattern
	Allow     Allow
	Threshold int
}

// NewRule validates and constructs a Rule. allowSize is the number of
// NodeIds the Allow resolves to (for the Delegates case, pass the
// identity document's current delegate count).
func NewRule(pattern Pattern, allow Allow, threshold, allowSize int) (Rule, error) {
	if threshold < 1 || threshold > allowSize || threshold > 255 {
		return Rule{}, ErrThresholdOutOfRange
	}
	return Rule{Pattern: pattern, Allow: allow, Threshold: threshold}, nil
}
