package canonical

import (
	"testing"

	"pgregory.net/rapid"
)

func mustPattern(t *testing.T, s string) Pattern {
	t.Helper()
	p, err := NewPattern(s)
	if err != nil {
		t.Fatalf("NewPattern(%q) error = %v", s, err)
	}
	return p
}

func TestPattern_RejectsUnqualifiedAndProtected(t *testing.T) {
	if _, err := NewPattern("heads/main"); err != ErrNotQualified {
		t.Fatalf("NewPattern(unqualified) error = %v, want ErrNotQualified", err)
	}
	for _, s := range []string{"refs/rad", "refs/rad/*", "refs/rad/id", "refs/*"} {
		if _, err := NewPattern(s); err != ErrProtectedNamespace {
			t.Fatalf("NewPattern(%q) error = %v, want ErrProtectedNamespace", s, err)
		}
	}
}

func TestPattern_MoreComponentsIsMoreSpecific(t *testing.T) {
	a := mustPattern(t, "refs/heads/a/b/c/*")
	b := mustPattern(t, "refs/heads/*/x")
	if a.Compare(b) >= 0 {
		t.Fatalf("expected a/b/c/* to be more specific than */x")
	}
}

func TestPattern_ConcreteBeatsWildcard(t *testing.T) {
	concrete := mustPattern(t, "refs/heads/main")
	wild := mustPattern(t, "refs/heads/*")
	if concrete.Compare(wild) >= 0 {
		t.Fatal("expected concrete component to be more specific than wildcard")
	}
}

func TestPattern_MatchesTrailingAndMedialWildcard(t *testing.T) {
	trailing := mustPattern(t, "refs/heads/*")
	if !trailing.Matches("refs/heads/feature/x") {
		t.Fatal("trailing wildcard should match nested suffix")
	}
	medial := mustPattern(t, "refs/heads/*/merged")
	if !medial.Matches("refs/heads/release-1/merged") {
		t.Fatal("medial wildcard should match one component")
	}
	if !medial.Matches("refs/heads/a/b/merged") {
		t.Fatal("medial wildcard should match multiple components")
	}
}

func TestPattern_MostSpecificSelectsUniqueRule(t *testing.T) {
	patterns := []Pattern{
		mustPattern(t, "refs/heads/*"),
		mustPattern(t, "refs/heads/main"),
		mustPattern(t, "refs/*/main"),
	}
	idx := MostSpecific(patterns, "refs/heads/main")
	if idx != 1 {
		t.Fatalf("MostSpecific() = %d, want 1 (refs/heads/main)", idx)
	}
}

// TestPattern_OrderingIsTotal is property 7: reflexive, antisymmetric,
// transitive, over arbitrary qualified patterns.
func TestPattern_OrderingIsTotal(t *testing.T) {
	genPattern := rapid.Custom(func(t *rapid.T) Pattern {
		nComponents := rapid.IntRange(1, 4).Draw(t, "n")
		comps := []string{"refs"}
		for i := 0; i < nComponents; i++ {
			kind := rapid.IntRange(0, 2).Draw(t, "kind")
			switch kind {
			case 0:
				comps = append(comps, rapid.SampledFrom([]string{"heads", "main", "feature", "a", "b"}).Draw(t, "lit"))
			case 1:
				comps = append(comps, "*")
			default:
				comps = append(comps, rapid.SampledFrom([]string{"a*", "*b", "fea*ure"}).Draw(t, "glob"))
			}
		}
		raw := comps[0]
		for _, c := range comps[1:] {
			raw += "/" + c
		}
		p, err := NewPattern(raw)
		if err != nil {
			t.Skip("generated pattern overlaps protected namespace")
		}
		return p
	})

	rapid.Check(t, func(t *rapid.T) {
		a := genPattern.Draw(t, "a")
		b := genPattern.Draw(t, "b")
		c := genPattern.Draw(t, "c")

		if sign(a.Compare(a)) != 0 {
			t.Fatalf("not reflexive: %v", a)
		}
		ab, ba := sign(a.Compare(b)), sign(b.Compare(a))
		if ab != -ba {
			t.Fatalf("not antisymmetric: a=%v b=%v ab=%d ba=%d", a, b, ab, ba)
		}
		if a.Compare(b) <= 0 && b.Compare(c) <= 0 {
			if a.Compare(c) > 0 {
				t.Fatalf("not transitive: a=%v b=%v c=%v", a, b, c)
			}
		}
	})
}
