package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rendis/cellview/pkg/schema"
)

// EventLog provides lifecycle replay on top of a Store.
type EventLog struct {
	store Store
}

// NewEventLog wraps a Store to provide replay operations.
func NewEventLog(s Store) *EventLog {
	return &EventLog{store: s}
}

// AppendEvent appends an event with a monotonically increasing per-document sequence.
func (el *EventLog) AppendEvent(ctx context.Context, event *Event) error {
	return el.store.AppendEvent(ctx, event)
}

// ReplayKinds replays all events of a document and returns the last known
// control kind key per cell. Cells whose control was removed are omitted.
// Pruning may leave holes at or below the document's watermark; above it the
// log must be contiguous, and a gap there is reported as an error.
func (el *EventLog) ReplayKinds(ctx context.Context, documentID string) (map[string]string, error) {
	events, err := el.store.GetEvents(ctx, documentID, 0)
	if err != nil {
		return nil, fmt.Errorf("get events for replay: %w", err)
	}
	floor, err := el.store.PrunedThrough(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("get prune watermark for replay: %w", err)
	}

	expected := floor + 1
	for _, e := range events {
		if e.Sequence <= floor {
			continue
		}
		if e.Sequence != expected {
			return nil, schema.NewErrorf(schema.ErrCodeStore,
				"sequence gap in document %s: expected %d, got %d", documentID, expected, e.Sequence)
		}
		expected++
	}

	kinds := make(map[string]string)
	for _, e := range events {
		var p TransitionPayload
		if len(e.Payload) > 0 {
			if err := json.Unmarshal(e.Payload, &p); err != nil {
				return nil, schema.NewErrorf(schema.ErrCodeStore,
					"event %d has invalid payload: %s", e.Sequence, err.Error()).WithCause(err)
			}
		}

		switch e.Type {
		case schema.EventControlCreated, schema.EventControlReplaced, schema.EventControlRestored:
			kinds[e.Cell] = p.To
		case schema.EventControlRemoved:
			delete(kinds, e.Cell)
		}
		if kinds[e.Cell] == schema.CtlUnknown.Key() {
			delete(kinds, e.Cell)
		}
	}
	return kinds, nil
}
