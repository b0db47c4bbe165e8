package mcp

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/cellview/internal/store"
	"github.com/rendis/cellview/internal/streaming"
	"github.com/rendis/cellview/internal/validation"
	"github.com/rendis/cellview/pkg/schema"
)

// --- Helpers ---

func newTestServer(t *testing.T) *CellviewServer {
	t.Helper()
	return newTestServerWithHub(t, nil)
}

func newTestServerWithHub(t *testing.T, hub streaming.EventHub) *CellviewServer {
	t.Helper()
	st, err := store.NewLibSQLStore("file:" + filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { st.Close() })

	v, err := validation.NewJSONSchemaValidator()
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ws := NewWorkspace(WorkspaceDeps{Store: st, Validator: v, ShapePrefix: "test", Hub: hub, Logger: logger})
	t.Cleanup(func() { ws.CloseAll(context.Background()) })
	return NewCellviewServer(CellviewServerDeps{Workspace: ws, Hub: hub, Logger: logger})
}

func buildRequest(toolName string, args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      toolName,
			Arguments: args,
		},
	}
}

func extractText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, result.Content)
	return mcp.GetTextFromContent(result.Content[0])
}

func unmarshalResult(t *testing.T, result *mcp.CallToolResult, target any) {
	t.Helper()
	require.False(t, result.IsError, extractText(t, result))
	require.NoError(t, json.Unmarshal([]byte(extractText(t, result)), target))
}

func openDoc(t *testing.T, s *CellviewServer) string {
	t.Helper()
	result, err := s.handleOpen(context.Background(), buildRequest("cellview.open", map[string]any{"document": "book.ods"}))
	require.NoError(t, err)
	var out map[string]string
	unmarshalResult(t, result, &out)
	require.NotEmpty(t, out["document_id"])
	return out["document_id"]
}

func put(t *testing.T, s *CellviewServer, docID, cell, value string, extra map[string]any) controlView {
	t.Helper()
	args := map[string]any{"document_id": docID, "cell": cell, "value": value}
	for k, v := range extra {
		args[k] = v
	}
	result, err := s.handlePut(context.Background(), buildRequest("cellview.put", args))
	require.NoError(t, err)
	var view controlView
	unmarshalResult(t, result, &view)
	return view
}

// --- Tests ---

func TestOpenTool_ReusesOpenDocument(t *testing.T) {
	s := newTestServer(t)
	id := openDoc(t, s)
	assert.Equal(t, id, openDoc(t, s))
	assert.Equal(t, 1, s.workspace.Len())
}

func TestOpenToolMissingParams(t *testing.T) {
	s := newTestServer(t)
	result, err := s.handleOpen(context.Background(), buildRequest("cellview.open", map[string]any{}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestPutTool_BuildsAndReplacesControl(t *testing.T) {
	s := newTestServer(t)
	id := openDoc(t, s)

	view := put(t, s, id, "Sheet1!C5", `"hello"`, nil)
	assert.Equal(t, "string", view.Kind)
	assert.Equal(t, string(schema.RuleKindStr), view.RuleKind)
	assert.True(t, view.Attached)
	shape := view.ShapeName

	view = put(t, s, id, "Sheet1!C5", `"7"`, nil)
	assert.Equal(t, "integer", view.Kind)
	assert.Equal(t, string(schema.RuleKindStr), view.OrigRuleKind)
	assert.Equal(t, shape, view.ShapeName)
}

func TestPutTool_Shapes(t *testing.T) {
	s := newTestServer(t)
	id := openDoc(t, s)

	cases := []struct {
		shape string
		value string
		kind  string
	}{
		{"int", `42`, "integer"},
		{"float", `2.5`, "float"},
		{"data_frame", `{"columns":["a"],"rows":[[1]]}`, "data_frame"},
		{"series", `{"values":[1,2]}`, "series"},
		{"error", `{"message":"boom"}`, "error"},
		{"none", `null`, "none"},
		{"table", `[[1,2],[3,4]]`, "tbl_data"},
	}
	for i, tc := range cases {
		t.Run(tc.shape, func(t *testing.T) {
			cell := schema.CellRef{Sheet: "Sheet1", Col: 0, Row: i}.String()
			view := put(t, s, id, cell, tc.value, map[string]any{"shape": tc.shape})
			assert.Equal(t, tc.kind, view.Kind)
		})
	}
}

func TestPutTool_InvalidValue(t *testing.T) {
	s := newTestServer(t)
	id := openDoc(t, s)

	for name, args := range map[string]map[string]any{
		"bad json":      {"value": `{`},
		"unknown shape": {"value": `1`, "shape": "matrix"},
		"not integer":   {"value": `1.5`, "shape": "int"},
		"bad cell":      {"value": `1`, "cell": "nowhere"},
	} {
		t.Run(name, func(t *testing.T) {
			req := map[string]any{"document_id": id, "cell": "Sheet1!A1"}
			for k, v := range args {
				req[k] = v
			}
			result, err := s.handlePut(context.Background(), buildRequest("cellview.put", req))
			require.NoError(t, err)
			assert.True(t, result.IsError)
		})
	}
}

func TestPutTool_FormulaRunsListeners(t *testing.T) {
	s := newTestServer(t)
	id := openDoc(t, s)

	view := put(t, s, id, "Sheet1!B2", `3.25`, map[string]any{"formula": `=PY("3.25")`})
	assert.Equal(t, "float", view.Kind)
}

func TestClassifyTool(t *testing.T) {
	s := newTestServer(t)
	id := openDoc(t, s)
	put(t, s, id, "Sheet1!A1", `"12"`, nil)

	result, err := s.handleClassify(context.Background(), buildRequest("cellview.classify", map[string]any{
		"document_id": id, "cell": "Sheet1!A1",
	}))
	require.NoError(t, err)
	var m matchView
	unmarshalResult(t, result, &m)
	assert.Equal(t, "int", m.Rule)
	assert.Equal(t, "integer", m.Kind)
	assert.EqualValues(t, 12, m.Value)
	assert.False(t, m.Fallback)
}

func TestClassifyTool_NoModuleState(t *testing.T) {
	s := newTestServer(t)
	id := openDoc(t, s)

	result, err := s.handleClassify(context.Background(), buildRequest("cellview.classify", map[string]any{
		"document_id": id, "cell": "Sheet1!A1",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestGetTool_NoControl(t *testing.T) {
	s := newTestServer(t)
	id := openDoc(t, s)

	result, err := s.handleGet(context.Background(), buildRequest("cellview.get", map[string]any{
		"document_id": id, "cell": "Sheet1!A1",
	}))
	require.NoError(t, err)
	var view controlView
	unmarshalResult(t, result, &view)
	assert.Equal(t, "unknown", view.Kind)
	assert.False(t, view.Attached)
}

func TestRefreshTool_IdempotentAndForced(t *testing.T) {
	s := newTestServer(t)
	id := openDoc(t, s)
	put(t, s, id, "Sheet1!A1", `"hello"`, nil)

	refresh := func(force bool) map[string]any {
		result, err := s.handleRefresh(context.Background(), buildRequest("cellview.refresh", map[string]any{
			"document_id": id, "cell": "Sheet1!A1", "force": force,
		}))
		require.NoError(t, err)
		var out map[string]any
		unmarshalResult(t, result, &out)
		return out
	}

	out := refresh(false)
	assert.Equal(t, true, out["ok"])
	assert.Equal(t, "string", out["target"])
	assert.Equal(t, "string", out["previous"])

	out = refresh(true)
	assert.Equal(t, true, out["ok"])
}

func TestDeleteAndUndoTools(t *testing.T) {
	s := newTestServer(t)
	id := openDoc(t, s)
	put(t, s, id, "Sheet1!A1", `"hello"`, nil)

	result, err := s.handleDelete(context.Background(), buildRequest("cellview.delete", map[string]any{
		"document_id": id, "cell": "Sheet1!A1",
	}))
	require.NoError(t, err)
	var out map[string]any
	unmarshalResult(t, result, &out)
	assert.Equal(t, true, out["ok"])
	assert.Equal(t, "string", out["previous"])

	result, err = s.handleUndo(context.Background(), buildRequest("cellview.undo", map[string]any{"document_id": id}))
	require.NoError(t, err)
	unmarshalResult(t, result, &out)
	assert.Equal(t, true, out["ok"])

	result, err = s.handleGet(context.Background(), buildRequest("cellview.get", map[string]any{
		"document_id": id, "cell": "Sheet1!A1",
	}))
	require.NoError(t, err)
	var view controlView
	unmarshalResult(t, result, &view)
	assert.Equal(t, "string", view.Kind)
	assert.True(t, view.Attached)
}

func TestEventsTool(t *testing.T) {
	s := newTestServer(t)
	id := openDoc(t, s)
	put(t, s, id, "Sheet1!A1", `"hello"`, nil)
	put(t, s, id, "Sheet1!A1", `"7"`, nil)
	put(t, s, id, "Sheet1!B1", `2.5`, nil)

	result, err := s.handleEvents(context.Background(), buildRequest("cellview.events", map[string]any{
		"document_id": id, "cell": "Sheet1!A1",
	}))
	require.NoError(t, err)
	var events []store.Event
	unmarshalResult(t, result, &events)
	require.NotEmpty(t, events)
	assert.Equal(t, schema.EventControlCreated, events[0].Type)

	result, err = s.handleEvents(context.Background(), buildRequest("cellview.events", map[string]any{
		"document_id": id, "replay": true,
	}))
	require.NoError(t, err)
	var kinds map[string]string
	unmarshalResult(t, result, &kinds)
	assert.Equal(t, map[string]string{"Sheet1!A1": "integer", "Sheet1!B1": "float"}, kinds)
}

func TestCloseTool(t *testing.T) {
	s := newTestServer(t)
	id := openDoc(t, s)

	result, err := s.handleClose(context.Background(), buildRequest("cellview.close", map[string]any{"document_id": id}))
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.Equal(t, 0, s.workspace.Len())

	result, err = s.handleUndo(context.Background(), buildRequest("cellview.undo", map[string]any{"document_id": id}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, extractText(t, result), "not open")
}

func TestWorkspace_MetadataSurvivesReopen(t *testing.T) {
	s := newTestServer(t)
	id := openDoc(t, s)
	view := put(t, s, id, "Sheet1!A1", `"hello"`, nil)

	require.NoError(t, s.workspace.Close(context.Background(), id))
	id2 := openDoc(t, s)
	require.NotEqual(t, id, id2)

	// The drawing layer is per open; refresh rebuilds the overlay under the
	// persisted code name.
	doc, err := s.workspace.Document(id2)
	require.NoError(t, err)
	doc.Modules.Put(schema.CellRef{Sheet: "Sheet1"}, "hello")
	_, ok := doc.Facade.Refresh(context.Background(), schema.CellRef{Sheet: "Sheet1"}, false)
	require.True(t, ok)

	res := doc.Facade.Control(context.Background(), schema.CellRef{Sheet: "Sheet1"})
	require.True(t, res.OK())
	assert.Equal(t, view.ShapeName, res.Value.ShapeName)
	assert.True(t, res.Value.Attached())
}

func TestWorkspace_PublishesLifecycleEvents(t *testing.T) {
	hub := streaming.NewMemoryHub()
	s := newTestServerWithHub(t, hub)
	events, cancel, err := hub.Subscribe(context.Background(), streaming.EventFilter{DocumentID: "book.ods"})
	require.NoError(t, err)
	defer cancel()

	docID := openDoc(t, s)
	put(t, s, docID, "Sheet1!A1", `"hello"`, nil)
	put(t, s, docID, "Sheet1!A1", "7", nil)

	var got []string
	for range 2 {
		select {
		case ev := <-events:
			assert.Equal(t, "Sheet1!A1", ev.Cell)
			got = append(got, ev.EventType)
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for event")
		}
	}
	assert.Equal(t, []string{schema.EventControlCreated, schema.EventControlReplaced}, got)
}

func TestServe_ForwardsWithoutSessions(t *testing.T) {
	hub := streaming.NewMemoryHub()
	s := newTestServerWithHub(t, hub)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ready := make(chan error, 1)
	done := make(chan struct{})
	go func() {
		s.forward(ctx, ready)
		close(done)
	}()
	require.NoError(t, <-ready)

	require.NoError(t, hub.Publish(ctx, streaming.StreamEvent{DocumentID: "book.ods", EventType: schema.EventControlRemoved}))
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("forwarder did not stop")
	}
}

func TestDiagramTool(t *testing.T) {
	s := newTestServer(t)
	id := openDoc(t, s)
	put(t, s, id, "Sheet1!A1", `"hello"`, nil)
	put(t, s, id, "Sheet1!A1", "7", nil)
	put(t, s, id, "Sheet1!B1", "1.5", nil)

	result, err := s.handleDiagram(context.Background(), buildRequest("cellview.diagram", map[string]any{
		"document_id": id,
	}))
	require.NoError(t, err)
	require.False(t, result.IsError, extractText(t, result))
	out := extractText(t, result)
	assert.Contains(t, out, "graph LR")
	assert.Contains(t, out, "k_string -->|1x| k_integer")
	assert.Contains(t, out, "class k_float active")

	result, err = s.handleDiagram(context.Background(), buildRequest("cellview.diagram", map[string]any{
		"document_id": id,
		"cell":        "Sheet1!B1",
		"format":      "ascii",
	}))
	require.NoError(t, err)
	out = extractText(t, result)
	assert.Contains(t, out, "=== book.ods Sheet1!B1 ===")
	assert.Contains(t, out, "unknown ─→ float (1x)")
	assert.NotContains(t, out, "integer")
}

func TestDiagramTool_BadFormat(t *testing.T) {
	s := newTestServer(t)
	id := openDoc(t, s)
	result, err := s.handleDiagram(context.Background(), buildRequest("cellview.diagram", map[string]any{
		"document_id": id,
		"format":      "gif",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}
