package httpapi

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestMatchesBlacklistEntry_WildcardSemantics covers spec.md §8 invariant 7.
func TestMatchesBlacklistEntry_WildcardSemantics(t *testing.T) {
	cases := []struct {
		addr, pattern string
		want          bool
	}{
		{"a.b.c.0", "a.b.c.*", true},
		{"a.b.c.255", "a.b.c.*", true},
		{"a.b.c.0.1", "a.b.c.*", false},
		{"a.b.d.0", "a.b.c.*", false},
		{"10.1.2.7", "10.1.2.*", true},
		{"10.1.3.7", "10.1.2.*", false},
		{"10.1.2.7", "10.1.2.7", true},
		{"10.1.2.8", "10.1.2.7", false},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, matchesBlacklistEntry(tc.addr, tc.pattern), "%s vs %s", tc.addr, tc.pattern)
	}
}
