package suggest

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDistance(t *testing.T) {
	tests := []struct {
		a, b     string
		expected int
	}{
		{"", "", 0},
		{"", "abc", 3},
		{"kitten", "sitting", 3},
		{"break", "brake", 2},
		{"same", "same", 0},
	}
	for _, tt := range tests {
		require.Equal(t, tt.expected, distance(tt.a, tt.b), "%q vs %q", tt.a, tt.b)
		require.Equal(t, tt.expected, distance(tt.b, tt.a), "%q vs %q", tt.b, tt.a)
	}
}

func TestClosest(t *testing.T) {
	candidates := []string{"cross-frame", "uncaught", "nested-finally", "Uncaught"}
	require.Equal(t, []string{"uncaught"}, Closest("uncaugt", candidates[:3]))
	require.Equal(t, []string{"nested-finally"}, Closest("nested-finaly", candidates))
	require.Empty(t, Closest("zzz", candidates))
	require.Empty(t, Closest("", candidates))
	// Exact matches, ignoring case, are not suggestions.
	require.Empty(t, Closest("UNCAUGHT", []string{"uncaught"}))
}

func TestHint(t *testing.T) {
	require.Equal(t, "", Hint("zzz", []string{"abc"}))
	require.Equal(t, "did you mean 'add'?", Hint("ad", []string{"add", "xyz"}))
	require.Equal(t, "did you mean one of 'bar', 'baz'?", Hint("ba", []string{"baz", "bar"}))
}
