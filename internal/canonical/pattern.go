// Package canonical implements the canonical reference resolver (C9): given
// per-peer signed refs in storage, it computes the single Git object each
// reference-pattern rule should point to by merge-base quorum across
// delegate votes.
package canonical

import (
	"errors"
	"strings"
)

// ErrNotQualified is returned when a pattern or refname does not begin with
// "refs/".
var ErrNotQualified = errors.New("canonical: refname is not qualified")

// ErrProtectedNamespace is returned when a pattern would match something
// under refs/rad, which rules are never allowed to govern.
var ErrProtectedNamespace = errors.New("canonical: pattern overlaps refs/rad")

const protectedPrefix = "refs/rad"

// Pattern is a qualified Git refspec with glob wildcards: a trailing "*"
// matches any suffix including slashes, a medial "*" matches any sequence
// of whole components.
type Pattern struct {
	raw        string
	components []string
}

// NewPattern validates and constructs a Pattern.
func NewPattern(raw string) (Pattern, error) {
	if !strings.HasPrefix(raw, "refs/") {
		return Pattern{}, ErrNotQualified
	}
	if overlapsProtected(raw) {
		return Pattern{}, ErrProtectedNamespace
	}
	return Pattern{raw: raw, components: strings.Split(raw, "/")}, nil
}

// overlapsProtected reports whether pattern could ever match something
// under refs/rad: either it is a literal prefix of refs/rad, or refs/rad is
// a prefix of its non-wildcard prefix.
func overlapsProtected(pattern string) bool {
	trimmed := strings.TrimSuffix(pattern, "*")
	if strings.HasPrefix(protectedPrefix, trimmed) {
		return true
	}
	return strings.HasPrefix(trimmed, protectedPrefix+"/") || trimmed == protectedPrefix
}

func (p Pattern) String() string { return p.raw }

// Matches reports whether refname (itself fully qualified) matches p.
func (p Pattern) Matches(refname string) bool {
	return matchComponents(p.components, strings.Split(refname, "/"))
}

func matchComponents(pattern, name []string) bool {
	for i, pc := range pattern {
		if pc == "*" && i == len(pattern)-1 {
			// Trailing "*" matches any suffix, including further slashes.
			return true
		}
		if i >= len(name) {
			return false
		}
		if pc == "*" {
			// Medial "*" matches one or more whole components.
			for j := i + 1; j <= len(name); j++ {
				if matchComponents(pattern[i+1:], name[j:]) {
					return true
				}
			}
			return false
		}
		if !matchComponent(pc, name[i]) {
			return false
		}
	}
	return len(pattern) == len(name)
}

// matchComponent matches one path component against a pattern component
// that may itself contain a single "*" glob (matching any substring,
// including the empty string).
func matchComponent(pattern, name string) bool {
	star := strings.IndexByte(pattern, '*')
	if star < 0 {
		return pattern == name
	}
	prefix, suffix := pattern[:star], pattern[star+1:]
	return strings.HasPrefix(name, prefix) && strings.HasSuffix(name, suffix) && len(name) >= len(prefix)+len(suffix)
}

// componentOrdering mirrors the Rust implementation's two-phase ordering
// accumulator: a non-Equal lexicographic signal is kept only until a later
// component yields a length-based (specificity) signal, which replaces it;
// the first non-Equal length-based signal is final and absorbs every later
// signal.
type componentOrdering struct {
	isLength bool
	cmp      int // -1, 0, 1
}

func (o *componentOrdering) merge(other componentOrdering) {
	switch {
	case !o.isLength && o.cmp == 0:
		*o = other
	case !o.isLength && other.isLength:
		*o = other
	case o.isLength && o.cmp == 0:
		*o = other
	default:
		// keep o
	}
}

// cmpComponent compares two pattern components: a concrete component
// beats a wildcard component; among two wildcard components, the one
// whose asterisk sits further left is less specific, and if the asterisks
// are at the same position the longer component is more specific.
func cmpComponent(l, r string) componentOrdering {
	li, ri := strings.IndexByte(l, '*'), strings.IndexByte(r, '*')
	switch {
	case li >= 0 && ri < 0:
		return componentOrdering{isLength: true, cmp: 1} // l has wildcard, less specific => Greater
	case li < 0 && ri >= 0:
		return componentOrdering{isLength: true, cmp: -1}
	case li >= 0 && ri >= 0:
		if li != ri {
			// further-right asterisk is more specific => smaller
			return componentOrdering{isLength: true, cmp: sign(ri - li)}
		}
		if len(l) != len(r) {
			// longer is more specific => smaller
			return componentOrdering{isLength: true, cmp: sign(len(r) - len(l))}
		}
		return componentOrdering{isLength: false, cmp: strings.Compare(l, r)}
	default:
		return componentOrdering{isLength: false, cmp: strings.Compare(l, r)}
	}
}

func sign(v int) int {
	switch {
	case v < 0:
		return -1
	case v > 0:
		return 1
	default:
		return 0
	}
}

// Compare gives Patterns a total order where smaller means more specific:
// more path components wins; among equal-length patterns,
// component-by-component specificity; lexicographic order is the final
// tiebreaker.
func (p Pattern) Compare(other Pattern) int {
	lhs, rhs := p.components, other.components
	result := componentOrdering{}
	for i := 0; ; i++ {
		switch {
		case i >= len(lhs) && i < len(rhs):
			return 1 // fewer components: less specific
		case i < len(lhs) && i >= len(rhs):
			return -1
		case i >= len(lhs) && i >= len(rhs):
			return result.cmp
		default:
			result.merge(cmpComponent(lhs[i], rhs[i]))
		}
	}
}

// MostSpecific returns the index of the single most-specific pattern in
// patterns matching refname, or -1 if none match.
func MostSpecific(patterns []Pattern, refname string) int {
	best := -1
	for i, p := range patterns {
		if !p.Matches(refname) {
			continue
		}
		if best == -1 || patterns[i].Compare(patterns[best]) < 0 {
			best = i
		}
	}
	return best
}
