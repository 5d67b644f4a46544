package licenses

import "testing"

func TestCanonicalID(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"Apache-2.0", "Apache-2.0", true},
		{"apache-2.0", "Apache-2.0", true},
		{"  MIT  ", "MIT", true},
		{"EPL-2.0", "EPL-2.0", true},
		{"Not-A-License", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		got, ok := CanonicalID(tc.in)
		if ok != tc.ok || got != tc.want {
			t.Fatalf("CanonicalID(%q) = (%q, %v), want (%q, %v)", tc.in, got, ok, tc.want, tc.ok)
		}
	}
}

func TestResolveExpression(t *testing.T) {
	cases := []struct {
		expr string
		want string
		ok   bool
	}{
		{"Apache-2.0", "Apache-2.0", true},
		{"(MIT)", "MIT", true},
		{"mit OR MIT", "MIT", true},
		{"EPL-2.0 OR Apache-2.0", "", false},
		{"GPL-2.0-only WITH Classpath-exception-2.0", "", false},
		{"MIT AND Apache-2.0", "", false},
		{"SomethingCustom", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		got, ok := ResolveExpression(tc.expr)
		if ok != tc.ok || got != tc.want {
			t.Fatalf("ResolveExpression(%q) = (%q, %v), want (%q, %v)", tc.expr, got, ok, tc.want, tc.ok)
		}
	}
}

func TestKnownIDsAreCanonical(t *testing.T) {
	for _, id := range KnownIDs() {
		canonical, ok := CanonicalID(id)
		if !ok || canonical != id {
			t.Fatalf("registry id %q did not round-trip: (%q, %v)", id, canonical, ok)
		}
	}
}
