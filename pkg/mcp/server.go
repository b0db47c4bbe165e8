package mcp

import (
	"context"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/rendis/cellview/internal/streaming"
	"github.com/rendis/cellview/pkg/schema"
)

// CellviewServerDeps holds the dependencies for creating a CellviewServer.
type CellviewServerDeps struct {
	Workspace *Workspace
	// Hub is the event hub the workspace publishes to. Events on it are
	// forwarded to the sessions that opened the document.
	Hub     streaming.EventHub
	Logger  *slog.Logger
	Version string
}

// CellviewServer wraps an MCP server with cellview tool handlers.
type CellviewServer struct {
	workspace *Workspace
	sessions  *SessionRegistry
	notifier  ControlNotifier
	hub       streaming.EventHub
	logger    *slog.Logger
	mcpServer *server.MCPServer
}

// NewCellviewServer creates a new CellviewServer with all tools registered.
func NewCellviewServer(deps CellviewServerDeps) *CellviewServer {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	version := deps.Version
	if version == "" {
		version = "dev"
	}

	s := &CellviewServer{
		workspace: deps.Workspace,
		sessions:  NewSessionRegistry(),
		hub:       deps.Hub,
		logger:    logger,
	}

	hooks := &server.Hooks{}
	hooks.AddOnUnregisterSession(func(_ context.Context, session server.ClientSession) {
		s.sessions.Remove(session.SessionID())
	})

	mcpSrv := server.NewMCPServer(
		"cellview",
		version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithHooks(hooks),
		server.WithInstructions("Cellview classifies computed cell values and keeps one overlay control per cell in line with them. Open a document with cellview.open, publish computed values with cellview.put, inspect with cellview.classify and cellview.get, and change controls with cellview.refresh, cellview.delete and cellview.undo."),
	)

	mcpSrv.AddTools(s.tools()...)
	s.mcpServer = mcpSrv
	s.notifier = NewMCPNotifier(mcpSrv, s.sessions)
	return s
}

// Serve starts the stdio transport and blocks until ctx is cancelled or stdin closes.
func (s *CellviewServer) Serve(ctx context.Context) error {
	if s.hub != nil {
		ready := make(chan error, 1)
		go s.forward(ctx, ready)
		if err := <-ready; err != nil {
			return err
		}
	}
	stdio := server.NewStdioServer(s.mcpServer)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// forward relays hub events to the sessions watching each document until
// ctx is cancelled. The subscription error, if any, is sent on ready.
func (s *CellviewServer) forward(ctx context.Context, ready chan<- error) {
	events, cancel, err := s.hub.Subscribe(ctx, streaming.EventFilter{})
	ready <- err
	if err != nil {
		return
	}
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-events:
			s.relay(ctx, ev)
		}
	}
}

func (s *CellviewServer) relay(ctx context.Context, ev streaming.StreamEvent) {
	payload := map[string]any{
		"document":   ev.DocumentID,
		"cell":       ev.Cell,
		"event_type": ev.EventType,
		"sequence":   ev.Sequence,
	}
	if len(ev.Payload) > 0 {
		payload["transition"] = ev.Payload
	}
	if err := s.notifier.Notify(ctx, ev.DocumentID, payload); err != nil {
		s.logger.WarnContext(ctx, "control notification failed",
			slog.String("document_id", ev.DocumentID),
			slog.String("error", err.Error()),
		)
	}
}

// MCPServer returns the underlying MCPServer for testing or custom transports.
func (s *CellviewServer) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// tools returns the registered MCP tools as ServerTool entries.
func (s *CellviewServer) tools() []server.ServerTool {
	return []server.ServerTool{
		{Tool: openTool(), Handler: s.handleOpen},
		{Tool: closeTool(), Handler: s.handleClose},
		{Tool: putTool(), Handler: s.handlePut},
		{Tool: classifyTool(), Handler: s.handleClassify},
		{Tool: getTool(), Handler: s.handleGet},
		{Tool: refreshTool(), Handler: s.handleRefresh},
		{Tool: deleteTool(), Handler: s.handleDelete},
		{Tool: undoTool(), Handler: s.handleUndo},
		{Tool: eventsTool(), Handler: s.handleEvents},
		{Tool: diagramTool(), Handler: s.handleDiagram},
	}
}

// --- Tool definitions ---

func openTool() mcp.Tool {
	return mcp.NewTool("cellview.open",
		mcp.WithDescription("Open a document and subscribe to its control notifications"),
		mcp.WithString("document", mcp.Required(), mcp.Description("Stable document key, e.g. its URL")),
	)
}

func closeTool() mcp.Tool {
	return mcp.NewTool("cellview.close",
		mcp.WithDescription("Close an open document and drop its caches and undo history"),
		mcp.WithString("document_id", mcp.Required(), mcp.Description("Runtime ID returned by cellview.open")),
	)
}

func putTool() mcp.Tool {
	return mcp.NewTool("cellview.put",
		mcp.WithDescription("Publish the computed value of a cell and run the modification handler"),
		mcp.WithString("document_id", mcp.Required(), mcp.Description("Runtime ID returned by cellview.open")),
		mcp.WithString("cell", mcp.Required(), mcp.Description("Cell address, e.g. Sheet1!B3")),
		mcp.WithString("value", mcp.Required(), mcp.Description("JSON encoded value")),
		mcp.WithString("shape",
			mcp.Enum(schema.ValueShapes...),
			mcp.Description("How to decode value (default: plain JSON)"),
		),
		mcp.WithString("formula", mcp.Description("Formula to store for the cell")),
	)
}

func classifyTool() mcp.Tool {
	return mcp.NewTool("cellview.classify",
		mcp.WithDescription("Run the rule chain over the computed value of a cell"),
		mcp.WithString("document_id", mcp.Required(), mcp.Description("Runtime ID returned by cellview.open")),
		mcp.WithString("cell", mcp.Required(), mcp.Description("Cell address, e.g. Sheet1!B3")),
	)
}

func getTool() mcp.Tool {
	return mcp.NewTool("cellview.get",
		mcp.WithDescription("Read the control currently persisted on a cell"),
		mcp.WithString("document_id", mcp.Required(), mcp.Description("Runtime ID returned by cellview.open")),
		mcp.WithString("cell", mcp.Required(), mcp.Description("Cell address, e.g. Sheet1!B3")),
	)
}

func refreshTool() mcp.Tool {
	return mcp.NewTool("cellview.refresh",
		mcp.WithDescription("Bring the control of a cell in line with its computed value"),
		mcp.WithString("document_id", mcp.Required(), mcp.Description("Runtime ID returned by cellview.open")),
		mcp.WithString("cell", mcp.Required(), mcp.Description("Cell address, e.g. Sheet1!B3")),
		mcp.WithBoolean("force", mcp.Description("Rebuild the control even when its kind is unchanged")),
	)
}

func deleteTool() mcp.Tool {
	return mcp.NewTool("cellview.delete",
		mcp.WithDescription("Remove the control of a cell and clear its metadata"),
		mcp.WithString("document_id", mcp.Required(), mcp.Description("Runtime ID returned by cellview.open")),
		mcp.WithString("cell", mcp.Required(), mcp.Description("Cell address, e.g. Sheet1!B3")),
	)
}

func undoTool() mcp.Tool {
	return mcp.NewTool("cellview.undo",
		mcp.WithDescription("Revert the most recent refresh or delete of a document"),
		mcp.WithString("document_id", mcp.Required(), mcp.Description("Runtime ID returned by cellview.open")),
	)
}

func eventsTool() mcp.Tool {
	return mcp.NewTool("cellview.events",
		mcp.WithDescription("List the control lifecycle events of a document or cell"),
		mcp.WithString("document_id", mcp.Required(), mcp.Description("Runtime ID returned by cellview.open")),
		mcp.WithString("cell", mcp.Description("Restrict to one cell, e.g. Sheet1!B3")),
		mcp.WithBoolean("replay", mcp.Description("Return the replayed control kind per cell instead of raw events")),
	)
}

func diagramTool() mcp.Tool {
	return mcp.NewTool("cellview.diagram",
		mcp.WithDescription("Draw the control lifecycle of a document or cell. Returns ASCII art, Mermaid flowchart syntax, SVG, or a base64-encoded PNG image"),
		mcp.WithString("document_id", mcp.Required(), mcp.Description("Runtime ID returned by cellview.open")),
		mcp.WithString("cell", mcp.Description("Restrict to one cell, e.g. Sheet1!B3")),
		mcp.WithString("format",
			mcp.Enum("ascii", "mermaid", "svg", "image"),
			mcp.Description("Output format (default: mermaid)"),
		),
	)
}
