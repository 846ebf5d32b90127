package validate

import (
	"strings"
	"testing"
)

func TestUnknownKeyReturnsViolationNotError(t *testing.T) {
	rs := NewRuleSet(DefaultRules())
	violations := rs.Validate([]byte("<html></html>"), "no_such_key")
	if len(violations) != 1 {
		t.Fatalf("got %d violations, want exactly 1", len(violations))
	}
	if !strings.Contains(violations[0], "no_such_key") {
		t.Fatalf("violation %q does not name the key", violations[0])
	}
}

func TestRuleChecks(t *testing.T) {
	rs := NewRuleSet(map[string]Rule{
		"team_page": {
			MinBytes:         64,
			RequiredMarkers:  []string{"<table", "roster"},
			ForbiddenMarkers: []string{"captcha"},
		},
	})

	t.Run("valid content", func(t *testing.T) {
		body := []byte("<html><table class=\"roster\">" + strings.Repeat("x", 100) + "</table></html>")
		if v := rs.Validate(body, "team_page"); len(v) != 0 {
			t.Fatalf("unexpected violations: %v", v)
		}
	})

	t.Run("too small", func(t *testing.T) {
		if v := rs.Validate([]byte("<table roster"), "team_page"); len(v) == 0 {
			t.Fatalf("expected min-bytes violation")
		}
	})

	t.Run("missing marker", func(t *testing.T) {
		body := []byte("<html>" + strings.Repeat("x", 100) + "</html>")
		v := rs.Validate(body, "team_page")
		if len(v) != 2 {
			t.Fatalf("got %d violations, want 2 missing markers: %v", len(v), v)
		}
	})

	t.Run("block page", func(t *testing.T) {
		body := []byte("<table roster please solve this captcha" + strings.Repeat("x", 100))
		v := rs.Validate(body, "team_page")
		if len(v) != 1 || !strings.Contains(v[0], "captcha") {
			t.Fatalf("expected forbidden-marker violation, got %v", v)
		}
	})
}
