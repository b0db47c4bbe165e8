package mcp

import "sync"

// SessionRegistry maps document keys to the MCP sessions that opened them.
// Populated automatically when a client calls cellview.open.
type SessionRegistry struct {
	mu       sync.RWMutex
	sessions map[string]map[string]struct{} // document key → session IDs
}

// NewSessionRegistry creates a new empty SessionRegistry.
func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{sessions: make(map[string]map[string]struct{})}
}

// Register subscribes a session to a document's control notifications.
func (r *SessionRegistry) Register(documentKey, sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.sessions[documentKey]
	if !ok {
		set = make(map[string]struct{})
		r.sessions[documentKey] = set
	}
	set[sessionID] = struct{}{}
}

// SessionsFor returns the sessions subscribed to a document.
func (r *SessionRegistry) SessionsFor(documentKey string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.sessions[documentKey]))
	for sid := range r.sessions[documentKey] {
		out = append(out, sid)
	}
	return out
}

// Forget drops every subscription to a document.
func (r *SessionRegistry) Forget(documentKey string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, documentKey)
}

// Remove deletes all subscriptions of the given session ID.
// Called when a session disconnects.
func (r *SessionRegistry) Remove(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for key, set := range r.sessions {
		delete(set, sessionID)
		if len(set) == 0 {
			delete(r.sessions, key)
		}
	}
}
