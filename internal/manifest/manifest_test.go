package manifest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const sampleManifest = `
base_url: https://stats.example.com
output_dir: fixtures
phases:
  "1-league": "League index pages"
  "2-teams": "Per-team pages"
fixtures:
  - url: /leagues/
    fixture_path: leagues/index.html
    validator: league_index
    phase: "1-league"
  - url: /teams/AAA/
    fixture_path: teams/aaa.html
    validator: team_page
    phase: "2-teams"
  - url: /teams/BBB/
    fixture_path: teams/bbb.html
    phase: "2-teams"
`

func writeManifest(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "manifest.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadValidManifest(t *testing.T) {
	m, err := Load(writeManifest(t, sampleManifest))
	require.NoError(t, err)
	require.Equal(t, "https://stats.example.com", m.BaseURL)
	require.Equal(t, "fixtures", m.OutputDir)
	require.Len(t, m.Fixtures, 3)

	// Order is significant: it is the processing order.
	require.Equal(t, "/leagues/", m.Fixtures[0].URL)
	require.Equal(t, "league_index", m.Fixtures[0].Validator)
	require.Equal(t, "/teams/BBB/", m.Fixtures[2].URL)
}

func TestLoadRejectsMissingFields(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"no base_url", "output_dir: out\nfixtures:\n  - url: /a\n    fixture_path: a.html\n"},
		{"no output_dir", "base_url: https://x\nfixtures:\n  - url: /a\n    fixture_path: a.html\n"},
		{"no fixtures", "base_url: https://x\noutput_dir: out\n"},
		{"fixture without path", "base_url: https://x\noutput_dir: out\nfixtures:\n  - url: /a\n"},
		{"unknown phase", "base_url: https://x\noutput_dir: out\nphases:\n  p1: one\nfixtures:\n  - url: /a\n    fixture_path: a.html\n    phase: p2\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeManifest(t, tc.body))
			require.Error(t, err)
		})
	}
}

func TestFilterByPhase(t *testing.T) {
	m, err := Load(writeManifest(t, sampleManifest))
	require.NoError(t, err)

	teams := m.FilterByPhase("2-")
	require.Len(t, teams, 2)
	require.Equal(t, "/teams/AAA/", teams[0].URL)

	all := m.FilterByPhase("")
	require.Len(t, all, 3)

	none := m.FilterByPhase("9-")
	require.Empty(t, none)
}
