package store

import (
	"encoding/json"
	"time"
)

// Event is an immutable entry in the control lifecycle log.
type Event struct {
	ID         int64           `json:"id"`
	DocumentID string          `json:"document_id"`
	Cell       string          `json:"cell"`
	Type       string          `json:"event_type"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	Timestamp  time.Time       `json:"timestamp"`
	Sequence   int64           `json:"sequence"`
}

// TransitionPayload is the payload of control lifecycle events.
type TransitionPayload struct {
	From     string `json:"from"`
	To       string `json:"to"`
	Shape    string `json:"shape,omitempty"`
	Command  string `json:"command,omitempty"`
	Forced   bool   `json:"forced,omitempty"`
	RuleKind string `json:"rule_kind,omitempty"`
}
