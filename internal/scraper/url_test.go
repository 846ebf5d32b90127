package scraper

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolveURL(t *testing.T) {
	base := "https://stats.example.com"

	tests := []struct {
		name    string
		fixture string
		want    string
	}{
		{"relative path", "/leagues/", "https://stats.example.com/leagues/"},
		{"absolute url passes through", "https://other.example.com/x", "https://other.example.com/x"},
		{"uppercase host lowered", "HTTPS://STATS.EXAMPLE.COM/Teams/ATL/", "https://stats.example.com/Teams/ATL/"},
		{"default https port stripped", "https://stats.example.com:443/a", "https://stats.example.com/a"},
		{"fragment dropped", "/teams/ATL/#roster", "https://stats.example.com/teams/ATL/"},
		{"query params sorted", "/search?b=2&a=1", "https://stats.example.com/search?a=1&b=2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveURL(base, tt.fixture)
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestResolveURLRejectsBadInput(t *testing.T) {
	_, err := ResolveURL("https://stats.example.com", "://broken")
	require.Error(t, err)

	_, err = ResolveURL("not a base at all", "/x")
	require.Error(t, err)
}

func TestResolveURLIsStable(t *testing.T) {
	// The normalized form is the checkpoint key; resolving twice must agree.
	first, err := ResolveURL("https://stats.example.com", "/teams/ATL/?season=2024&view=full")
	require.NoError(t, err)
	second, err := ResolveURL("https://stats.example.com", "/teams/ATL/?view=full&season=2024")
	require.NoError(t, err)
	require.Equal(t, first, second)
}
