package streaming

import (
	"context"
	"log/slog"

	"github.com/rendis/cellview/internal/store"
)

// Appender is the event sink the lifecycle FSM writes to.
type Appender interface {
	AppendEvent(ctx context.Context, event *store.Event) error
}

// PublishingAppender persists events through next and then publishes them
// on hub. Publishing is best-effort: a failed publish is logged and the
// append still succeeds.
type PublishingAppender struct {
	next   Appender
	hub    EventHub
	logger *slog.Logger
}

// NewPublishingAppender wraps next so that every stored event is published.
func NewPublishingAppender(next Appender, hub EventHub, logger *slog.Logger) *PublishingAppender {
	if logger == nil {
		logger = slog.Default()
	}
	return &PublishingAppender{next: next, hub: hub, logger: logger}
}

func (a *PublishingAppender) AppendEvent(ctx context.Context, event *store.Event) error {
	if err := a.next.AppendEvent(ctx, event); err != nil {
		return err
	}
	if err := a.hub.Publish(ctx, FromEvent(event)); err != nil {
		a.logger.WarnContext(ctx, "publish control event",
			slog.String("event_type", event.Type),
			slog.String("error", err.Error()),
		)
	}
	return nil
}

// FromEvent converts a stored lifecycle event into a StreamEvent.
func FromEvent(e *store.Event) StreamEvent {
	return StreamEvent{
		DocumentID: e.DocumentID,
		Cell:       e.Cell,
		EventType:  e.Type,
		Sequence:   e.Sequence,
		Payload:    e.Payload,
	}
}
