// Package engine holds the per-cell control lifecycle state machine:
// NONE -> kind on first compute, kindA -> kindB on refresh, kind -> NONE on
// delete, and a terminal state once the owning document closes.
package engine

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/rendis/cellview/internal/store"
	"github.com/rendis/cellview/pkg/schema"
)

// TransitionHook is called before or after a state transition.
type TransitionHook func(from, to string) error

// EventAppender is satisfied by the Store and EventLog; used by the FSM to emit events on transitions.
type EventAppender interface {
	AppendEvent(ctx context.Context, event *store.Event) error
}

// Transition describes one change of a cell's control kind. schema.CtlUnknown
// stands for NONE, i.e. no control.
type Transition struct {
	Cell    schema.CellRef
	From    schema.CtlKind
	To      schema.CtlKind
	Shape   string
	Command string
	// Forced allows From == To (a forced refresh rebuilds the same kind).
	Forced bool
	// Restore marks an undo; any pair of distinct states is accepted.
	Restore bool
}

// ControlFSM validates control transitions for one document and records them.
type ControlFSM struct {
	mu         sync.Mutex
	appender   EventAppender
	documentID string
	closed     bool
	before     map[string][]TransitionHook
	after      map[string][]TransitionHook
}

// NewControlFSM creates a ControlFSM that emits events for documentID via the given appender.
func NewControlFSM(appender EventAppender, documentID string) *ControlFSM {
	return &ControlFSM{
		appender:   appender,
		documentID: documentID,
		before:     make(map[string][]TransitionHook),
		after:      make(map[string][]TransitionHook),
	}
}

// OnBefore registers a hook called before transitions emitting eventType.
func (f *ControlFSM) OnBefore(eventType string, hook TransitionHook) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.before[eventType] = append(f.before[eventType], hook)
}

// OnAfter registers a hook called after transitions emitting eventType.
func (f *ControlFSM) OnAfter(eventType string, hook TransitionHook) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.after[eventType] = append(f.after[eventType], hook)
}

// Closed reports whether the document reached its terminal state.
func (f *ControlFSM) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// Transition validates and records a control transition.
// The caller is responsible for the overlay and metadata changes themselves.
func (f *ControlFSM) Transition(ctx context.Context, t Transition) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.check(t); err != nil {
		return err
	}

	eventType := controlEventType(t)
	from, to := t.From.Key(), t.To.Key()

	for _, hook := range f.before[eventType] {
		if err := hook(from, to); err != nil {
			return err
		}
	}

	payload, err := json.Marshal(store.TransitionPayload{
		From:     from,
		To:       to,
		Shape:    t.Shape,
		Command:  t.Command,
		Forced:   t.Forced,
		RuleKind: string(schema.RuleFromCtlKind(t.To)),
	})
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeExecution, "marshal transition: %s", err.Error()).WithCause(err)
	}
	event := &store.Event{
		DocumentID: f.documentID,
		Cell:       t.Cell.String(),
		Type:       eventType,
		Payload:    payload,
	}
	if err := f.appender.AppendEvent(ctx, event); err != nil {
		return schema.NewErrorf(schema.ErrCodeStore, "emit control event: %s", err.Error()).
			WithCell(t.Cell).WithCause(err)
	}

	for _, hook := range f.after[eventType] {
		if err := hook(from, to); err != nil {
			return err
		}
	}
	return nil
}

// Validate reports whether t would be accepted, without recording anything.
func (f *ControlFSM) Validate(t Transition) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.check(t)
}

func (f *ControlFSM) check(t Transition) error {
	if f.closed {
		return schema.NewErrorf(schema.ErrCodeDocumentClosed,
			"document %s is closed", f.documentID).WithCell(t.Cell)
	}
	if !IsValidTransition(t) {
		return schema.NewErrorf(schema.ErrCodeInvalidTransition,
			"invalid control transition: %s -> %s", t.From, t.To).
			WithCell(t.Cell).
			WithDetails(map[string]any{"document_id": f.documentID, "from": t.From.Key(), "to": t.To.Key()})
	}
	return nil
}

// Close moves the document to its terminal state and records it. Later
// transitions fail with DOCUMENT_CLOSED. Closing twice is a no-op.
func (f *ControlFSM) Close(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil
	}
	f.closed = true
	event := &store.Event{DocumentID: f.documentID, Type: schema.EventDocumentClosed}
	if err := f.appender.AppendEvent(ctx, event); err != nil {
		return schema.NewErrorf(schema.ErrCodeStore, "emit close event: %s", err.Error()).WithCause(err)
	}
	return nil
}

// IsValidTransition reports whether t is allowed by the lifecycle.
func IsValidTransition(t Transition) bool {
	if !isState(t.From) || !isState(t.To) {
		return false
	}
	if t.Restore {
		return t.From != t.To
	}
	if t.From == t.To {
		return t.Forced && t.To != schema.CtlUnknown
	}
	return true
}

// isState reports whether k can be a cell state: NONE or a buildable kind.
func isState(k schema.CtlKind) bool {
	if k == schema.CtlUnknown {
		return true
	}
	return schema.RuleFromCtlKind(k) != schema.RuleKindUnknown
}

func controlEventType(t Transition) string {
	switch {
	case t.Restore:
		return schema.EventControlRestored
	case t.From == schema.CtlUnknown:
		return schema.EventControlCreated
	case t.To == schema.CtlUnknown:
		return schema.EventControlRemoved
	default:
		return schema.EventControlReplaced
	}
}
