package mcp

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/rendis/cellview/internal/controls"
	"github.com/rendis/cellview/internal/diagram"
	"github.com/rendis/cellview/internal/logging"
	"github.com/rendis/cellview/internal/rules"
	"github.com/rendis/cellview/pkg/schema"
)

// handleOpen opens a document and subscribes the calling session to it.
func (s *CellviewServer) handleOpen(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	key, err := req.RequireString("document")
	if err != nil {
		return mcp.NewToolResultError("document is required"), nil
	}

	doc := s.workspace.Open(key)
	s.captureSession(ctx, key)

	return marshalResult(map[string]any{
		"document_id": doc.Context.ID(),
		"document":    key,
	})
}

// handleClose closes a document.
func (s *CellviewServer) handleClose(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	doc, errResult := s.document(req)
	if errResult != nil {
		return errResult, nil
	}
	key := doc.Context.Key()
	if err := s.workspace.Close(ctx, doc.Context.ID()); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("close failed: %v", err)), nil
	}
	s.sessions.Forget(key)
	return marshalResult(map[string]any{"ok": true, "document_id": doc.Context.ID()})
}

// handlePut records a computed value and runs the modification listeners,
// which refresh the cell's control.
func (s *CellviewServer) handlePut(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	doc, errResult := s.document(req)
	if errResult != nil {
		return errResult, nil
	}
	c, errResult := parseCell(req)
	if errResult != nil {
		return errResult, nil
	}
	raw, err := req.RequireString("value")
	if err != nil {
		return mcp.NewToolResultError("value is required"), nil
	}
	value, err := schema.DecodeValue(req.GetString("shape", "json"), raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid value: %v", err)), nil
	}

	ctx = logging.WithIDs(ctx, doc.Context.ID(), c.String(), "cellview.put")
	doc.Modules.Put(c, value)
	if formula := req.GetString("formula", ""); formula != "" {
		// SetFormula notifies the listeners, like a host recalculation.
		if err := doc.Formulas.SetFormula(ctx, c, formula); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("set formula failed: %v", err)), nil
		}
	} else {
		doc.Listeners.Notify(ctx, c)
	}

	res := doc.Facade.Control(ctx, c)
	if !res.OK() {
		return mcp.NewToolResultError(fmt.Sprintf("read control failed: %v", res.Err)), nil
	}
	return marshalResult(newControlView(res.Value))
}

// handleClassify runs the rule chain over a cell's computed value.
func (s *CellviewServer) handleClassify(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	doc, errResult := s.document(req)
	if errResult != nil {
		return errResult, nil
	}
	c, errResult := parseCell(req)
	if errResult != nil {
		return errResult, nil
	}

	m, err := doc.Facade.Classify(ctx, c)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("classify failed: %v", err)), nil
	}
	return marshalResult(newMatchView(c, m))
}

// handleGet reads the control persisted on a cell.
func (s *CellviewServer) handleGet(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	doc, errResult := s.document(req)
	if errResult != nil {
		return errResult, nil
	}
	c, errResult := parseCell(req)
	if errResult != nil {
		return errResult, nil
	}

	res := doc.Facade.Control(ctx, c)
	if !res.OK() {
		return mcp.NewToolResultError(fmt.Sprintf("read control failed: %v", res.Err)), nil
	}
	return marshalResult(newControlView(res.Value))
}

// handleRefresh runs a RefreshControl command.
func (s *CellviewServer) handleRefresh(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	doc, errResult := s.document(req)
	if errResult != nil {
		return errResult, nil
	}
	c, errResult := parseCell(req)
	if errResult != nil {
		return errResult, nil
	}

	cmd, ok := doc.Facade.Refresh(ctx, c, req.GetBool("force", false))
	out := map[string]any{
		"ok":     ok,
		"cell":   c.String(),
		"target": cmd.Target().Key(),
	}
	if prev, captured := cmd.Previous(); captured {
		out["previous"] = prev.Key()
	}
	return marshalResult(out)
}

// handleDelete runs a DeleteControl command.
func (s *CellviewServer) handleDelete(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	doc, errResult := s.document(req)
	if errResult != nil {
		return errResult, nil
	}
	c, errResult := parseCell(req)
	if errResult != nil {
		return errResult, nil
	}

	cmd, ok := doc.Facade.Delete(ctx, c)
	out := map[string]any{"ok": ok, "cell": c.String()}
	if prev, captured := cmd.Previous(); captured {
		out["previous"] = prev.Key()
	}
	return marshalResult(out)
}

// handleUndo reverts the latest undoable command of a document.
func (s *CellviewServer) handleUndo(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	doc, errResult := s.document(req)
	if errResult != nil {
		return errResult, nil
	}
	ok := doc.Facade.Undo(ctx)
	return marshalResult(map[string]any{
		"ok":      ok,
		"history": doc.Context.HistoryLen(),
	})
}

// handleEvents lists lifecycle events or the kinds replayed from them.
func (s *CellviewServer) handleEvents(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	doc, errResult := s.document(req)
	if errResult != nil {
		return errResult, nil
	}

	if req.GetBool("replay", false) {
		kinds, err := s.workspace.ReplayKinds(ctx, doc)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("replay failed: %v", err)), nil
		}
		return marshalResult(kinds)
	}

	var only *schema.CellRef
	if addr := req.GetString("cell", ""); addr != "" {
		c, err := schema.ParseCellRef(addr, "")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		only = &c
	}
	events, err := s.workspace.Events(ctx, doc, only)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("events query failed: %v", err)), nil
	}
	return marshalResult(events)
}

// handleDiagram draws the lifecycle graph of a document or one of its cells.
func (s *CellviewServer) handleDiagram(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	doc, errResult := s.document(req)
	if errResult != nil {
		return errResult, nil
	}

	title := doc.Context.Key()
	var only *schema.CellRef
	if addr := req.GetString("cell", ""); addr != "" {
		c, err := schema.ParseCellRef(addr, "")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		only = &c
		title += " " + c.String()
	}

	events, err := s.workspace.Events(ctx, doc, only)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("events query failed: %v", err)), nil
	}
	kinds, err := s.workspace.ReplayKinds(ctx, doc)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("replay failed: %v", err)), nil
	}
	if only != nil {
		kind, ok := kinds[only.String()]
		kinds = nil
		if ok {
			kinds = map[string]string{only.String(): kind}
		}
	}

	model, err := diagram.Build(title, events, kinds)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("diagram build failed: %v", err)), nil
	}

	switch req.GetString("format", "mermaid") {
	case "ascii":
		return mcp.NewToolResultText(diagram.RenderASCII(model)), nil
	case "mermaid":
		return mcp.NewToolResultText(diagram.RenderMermaid(model)), nil
	case "svg":
		svg, err := diagram.RenderImage(ctx, model, diagram.FormatSVG)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("image render failed: %v", err)), nil
		}
		return mcp.NewToolResultText(string(svg)), nil
	case "image":
		png, err := diagram.RenderImage(ctx, model, diagram.FormatPNG)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("image render failed: %v", err)), nil
		}
		return mcp.NewToolResultText(base64.StdEncoding.EncodeToString(png)), nil
	default:
		return mcp.NewToolResultError("unsupported format"), nil
	}
}

// --- helpers ---

func (s *CellviewServer) document(req mcp.CallToolRequest) (*Document, *mcp.CallToolResult) {
	id, err := req.RequireString("document_id")
	if err != nil {
		return nil, mcp.NewToolResultError("document_id is required")
	}
	doc, err := s.workspace.Document(id)
	if err != nil {
		return nil, mcp.NewToolResultError(err.Error())
	}
	return doc, nil
}

func parseCell(req mcp.CallToolRequest) (schema.CellRef, *mcp.CallToolResult) {
	addr, err := req.RequireString("cell")
	if err != nil {
		return schema.CellRef{}, mcp.NewToolResultError("cell is required")
	}
	c, err := schema.ParseCellRef(addr, "")
	if err != nil {
		return schema.CellRef{}, mcp.NewToolResultError(err.Error())
	}
	return c, nil
}

func (s *CellviewServer) captureSession(ctx context.Context, documentKey string) {
	if session := server.ClientSessionFromContext(ctx); session != nil {
		s.sessions.Register(documentKey, session.SessionID())
	}
}

type controlView struct {
	Cell          string   `json:"cell"`
	Kind          string   `json:"kind"`
	RuleKind      string   `json:"rule_kind"`
	OrigRuleKind  string   `json:"orig_rule_kind,omitempty"`
	ShapeName     string   `json:"shape_name,omitempty"`
	CodeName      string   `json:"code_name,omitempty"`
	ModifyTrigger string   `json:"modify_trigger"`
	ArrayAbility  bool     `json:"array_ability"`
	Label         string   `json:"label,omitempty"`
	Background    int      `json:"background"`
	Features      []string `json:"features,omitempty"`
	Bounds        string   `json:"bounds,omitempty"`
	Attached      bool     `json:"attached"`
}

func newControlView(c *controls.Ctl) controlView {
	v := controlView{
		Cell:          c.Cell.String(),
		Kind:          c.CtlKind.Key(),
		RuleKind:      string(c.RuleKind),
		OrigRuleKind:  string(c.OrigRuleKind),
		ShapeName:     c.ShapeName,
		CodeName:      c.CodeName,
		ModifyTrigger: string(c.ModifyTrigger),
		ArrayAbility:  c.ArrayAbility,
		Label:         c.Label,
		Background:    c.BackgroundColor,
		Attached:      c.Attached(),
	}
	for _, f := range c.Features {
		v.Features = append(v.Features, string(f))
	}
	if c.Attached() {
		v.Bounds = c.Bounds.String()
	}
	return v
}

type matchView struct {
	Cell     string `json:"cell"`
	Rule     string `json:"rule"`
	RuleKind string `json:"rule_kind"`
	Kind     string `json:"kind"`
	Value    any    `json:"value"`
	Fallback bool   `json:"fallback"`
}

func newMatchView(c schema.CellRef, m rules.Match) matchView {
	return matchView{
		Cell:     c.String(),
		Rule:     m.Rule.Name(),
		RuleKind: string(m.Kind),
		Kind:     m.CtlKind.Key(),
		Value:    m.Value,
		Fallback: m.Fallback,
	}
}

// marshalResult converts a value to a JSON text tool result.
func marshalResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultJSON(json.RawMessage(data))
}
