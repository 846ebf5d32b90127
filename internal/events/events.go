// Package events publishes fixture-completion notifications for downstream
// consumers (the ETL loader, dashboards). Publishing is fire-and-forget from
// the orchestrator's point of view; a failed publish never fails a fixture.
package events

import (
	"context"
	"time"
)

// FixtureCompleted is emitted after a payload has been validated and written.
type FixtureCompleted struct {
	RunID       string    `json:"run_id"`
	URL         string    `json:"url"`
	Path        string    `json:"path"`
	ContentHash string    `json:"content_hash"`
	StatusCode  int       `json:"status_code"`
	FetchedAt   time.Time `json:"fetched_at"`
}

// Publisher delivers completion events.
type Publisher interface {
	Publish(ctx context.Context, event FixtureCompleted) error
}

// Nop discards events; it is the default when no broker is configured.
type Nop struct{}

// Publish does nothing.
func (Nop) Publish(context.Context, FixtureCompleted) error { return nil }
