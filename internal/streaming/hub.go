// Package streaming fans control lifecycle events out to live subscribers.
package streaming

import (
	"context"
	"encoding/json"
)

// StreamEvent is a control lifecycle event as seen by subscribers.
type StreamEvent struct {
	DocumentID string          `json:"document_id"`
	Cell       string          `json:"cell,omitempty"`
	EventType  string          `json:"event_type"`
	Sequence   int64           `json:"sequence"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

// EventFilter specifies which events a subscriber wants to receive.
type EventFilter struct {
	DocumentID string   `json:"document_id,omitempty"`
	Cell       string   `json:"cell,omitempty"`
	EventTypes []string `json:"event_types,omitempty"`
}

// EventHub provides pub/sub for control lifecycle events.
type EventHub interface {
	Publish(ctx context.Context, event StreamEvent) error
	Subscribe(ctx context.Context, filter EventFilter) (<-chan StreamEvent, func(), error)
}
