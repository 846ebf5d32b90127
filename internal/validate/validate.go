// Package validate checks fetched payloads against declarative per-resource
// rules before they are written to disk. The orchestrator only depends on
// the Validator interface; the rule set is one implementation of it.
package validate

import (
	"bytes"
	"fmt"
)

// Validator reports content violations. An empty list means valid. An
// unknown validator key yields a single descriptive violation rather than an
// error.
type Validator interface {
	Validate(content []byte, key string) []string
}

// Rule is the declarative check set for one validator key.
type Rule struct {
	// MinBytes rejects truncated or placeholder payloads.
	MinBytes int
	// RequiredMarkers must all appear in the payload.
	RequiredMarkers []string
	// ForbiddenMarkers reject block pages and interstitials that come back
	// with a 200 status.
	ForbiddenMarkers []string
}

// RuleSet maps validator keys to rules.
type RuleSet struct {
	rules map[string]Rule
}

// NewRuleSet builds a RuleSet from the given rules.
func NewRuleSet(rules map[string]Rule) *RuleSet {
	if rules == nil {
		rules = map[string]Rule{}
	}
	return &RuleSet{rules: rules}
}

// DefaultRules returns the checks applied to the stats-site page types this
// scraper pulls. Marker strings are fragments every genuine page of that
// type carries.
func DefaultRules() map[string]Rule {
	return map[string]Rule{
		"league_index": {
			MinBytes:         2048,
			RequiredMarkers:  []string{"<table", "league"},
			ForbiddenMarkers: blockPageMarkers,
		},
		"team_page": {
			MinBytes:         2048,
			RequiredMarkers:  []string{"<table", "roster"},
			ForbiddenMarkers: blockPageMarkers,
		},
		"player_page": {
			MinBytes:         1024,
			RequiredMarkers:  []string{"<table"},
			ForbiddenMarkers: blockPageMarkers,
		},
		"season_page": {
			MinBytes:         2048,
			RequiredMarkers:  []string{"<table", "standings"},
			ForbiddenMarkers: blockPageMarkers,
		},
	}
}

// blockPageMarkers show up in anti-bot interstitials served with a 200.
var blockPageMarkers = []string{
	"captcha",
	"Access Denied",
	"unusual traffic",
}

// Validate applies the rule registered for key to content.
func (r *RuleSet) Validate(content []byte, key string) []string {
	rule, ok := r.rules[key]
	if !ok {
		return []string{fmt.Sprintf("unknown validator key %q", key)}
	}

	var violations []string
	if rule.MinBytes > 0 && len(content) < rule.MinBytes {
		violations = append(violations,
			fmt.Sprintf("content too small: %d bytes, want at least %d", len(content), rule.MinBytes))
	}
	for _, marker := range rule.RequiredMarkers {
		if !bytes.Contains(content, []byte(marker)) {
			violations = append(violations, fmt.Sprintf("missing required marker %q", marker))
		}
	}
	for _, marker := range rule.ForbiddenMarkers {
		if bytes.Contains(content, []byte(marker)) {
			violations = append(violations, fmt.Sprintf("found forbidden marker %q", marker))
		}
	}
	return violations
}
