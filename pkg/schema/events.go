package schema

// Event type constants for the control lifecycle log.
const (
	EventControlCreated  = "control_created"
	EventControlReplaced = "control_replaced"
	EventControlRemoved  = "control_removed"
	EventControlRestored = "control_restored"
	EventDocumentClosed  = "document_closed"
)
