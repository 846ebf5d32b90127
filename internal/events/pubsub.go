package events

import (
	"context"
	"encoding/json"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"
)

// PubSub publishes completion events to a Google Cloud Pub/Sub topic. The
// client library handles batching and retries in the background.
type PubSub struct {
	publisher *pubsub.Publisher
}

// NewPubSub wraps an existing topic publisher.
func NewPubSub(publisher *pubsub.Publisher) (*PubSub, error) {
	if publisher == nil {
		return nil, fmt.Errorf("pubsub publisher is required")
	}
	return &PubSub{publisher: publisher}, nil
}

// Publish marshals the event to JSON and publishes it, waiting for the
// server acknowledgment so delivery failures surface to the caller's logs.
func (p *PubSub) Publish(ctx context.Context, event FixtureCompleted) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	result := p.publisher.Publish(ctx, &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"run_id": event.RunID,
		},
	})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}
