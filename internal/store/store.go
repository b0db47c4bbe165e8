package store

import (
	"context"
	"time"

	"github.com/rendis/cellview/internal/host"
)

// Store defines the persistence layer contract.
// All implementations must be safe for concurrent use.
type Store interface {
	// Cell metadata, scoped to a document.
	Properties(documentID string) host.PropertyStore
	DeleteDocument(ctx context.Context, documentID string) error

	// Control lifecycle log (append-only).
	AppendEvent(ctx context.Context, event *Event) error
	GetEvents(ctx context.Context, documentID string, since int64) ([]*Event, error)
	GetCellEvents(ctx context.Context, documentID, cell string) ([]*Event, error)
	PruneEvents(ctx context.Context, before time.Time) (int64, error)
	PrunedThrough(ctx context.Context, documentID string) (int64, error)

	// Maintenance
	Migrate(ctx context.Context) error
	Vacuum(ctx context.Context) error

	// Lifecycle
	Close() error
}
