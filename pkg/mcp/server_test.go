package mcp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCellviewServer(t *testing.T) {
	s := NewCellviewServer(CellviewServerDeps{})
	require.NotNil(t, s)
	assert.NotNil(t, s.mcpServer)
	assert.NotNil(t, s.logger)
	assert.NotNil(t, s.notifier)
}

func TestToolRegistration(t *testing.T) {
	s := NewCellviewServer(CellviewServerDeps{})

	tools := s.mcpServer.ListTools()
	require.Len(t, tools, 10)

	expectedTools := []string{
		"cellview.open",
		"cellview.close",
		"cellview.put",
		"cellview.classify",
		"cellview.get",
		"cellview.refresh",
		"cellview.delete",
		"cellview.undo",
		"cellview.events",
		"cellview.diagram",
	}
	for _, name := range expectedTools {
		tool := s.mcpServer.GetTool(name)
		assert.NotNil(t, tool, "tool %s should be registered", name)
	}
}

func TestToolDefinitions(t *testing.T) {
	tests := []struct {
		name        string
		toolName    string
		description string
	}{
		{"classify", "cellview.classify", "Run the rule chain over the computed value of a cell"},
		{"refresh", "cellview.refresh", "Bring the control of a cell in line with its computed value"},
		{"delete", "cellview.delete", "Remove the control of a cell and clear its metadata"},
		{"undo", "cellview.undo", "Revert the most recent refresh or delete of a document"},
	}

	s := NewCellviewServer(CellviewServerDeps{})

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tool := s.mcpServer.GetTool(tc.toolName)
			require.NotNil(t, tool)
			assert.Equal(t, tc.description, tool.Tool.Description)
		})
	}
}
