package mcp

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSessionRegistry_RegisterAndLookup(t *testing.T) {
	r := NewSessionRegistry()
	r.Register("book.ods", "s1")
	r.Register("book.ods", "s2")
	r.Register("book.ods", "s1")

	assert.ElementsMatch(t, []string{"s1", "s2"}, r.SessionsFor("book.ods"))
	assert.Empty(t, r.SessionsFor("other.ods"))
}

func TestSessionRegistry_Remove(t *testing.T) {
	r := NewSessionRegistry()
	r.Register("a.ods", "s1")
	r.Register("b.ods", "s1")
	r.Register("b.ods", "s2")

	r.Remove("s1")
	assert.Empty(t, r.SessionsFor("a.ods"))
	assert.Equal(t, []string{"s2"}, r.SessionsFor("b.ods"))
}

func TestSessionRegistry_Forget(t *testing.T) {
	r := NewSessionRegistry()
	r.Register("a.ods", "s1")
	r.Forget("a.ods")
	assert.Empty(t, r.SessionsFor("a.ods"))
}

func TestMCPNotifier_NoSessionsIsNoop(t *testing.T) {
	s := NewCellviewServer(CellviewServerDeps{})
	n := NewMCPNotifier(s.MCPServer(), NewSessionRegistry())
	assert.NoError(t, n.Notify(t.Context(), "book.ods", map[string]any{"x": 1}))
}
