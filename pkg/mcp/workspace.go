package mcp

import (
	"context"
	"log/slog"
	"os"

	"github.com/rendis/cellview/internal/cell"
	"github.com/rendis/cellview/internal/cmdq"
	"github.com/rendis/cellview/internal/controls"
	"github.com/rendis/cellview/internal/engine"
	"github.com/rendis/cellview/internal/host"
	"github.com/rendis/cellview/internal/rules"
	"github.com/rendis/cellview/internal/store"
	"github.com/rendis/cellview/internal/streaming"
	"github.com/rendis/cellview/internal/validation"
	"github.com/rendis/cellview/pkg/schema"
)

// WorkspaceDeps holds the collaborators shared by every open document.
type WorkspaceDeps struct {
	Store       store.Store
	Rules       *rules.RuleSet
	Validator   validation.Validator
	ShapePrefix string
	// Hub, when set, receives every lifecycle event after it is stored.
	Hub    streaming.EventHub
	Logger *slog.Logger
}

// Workspace keeps the documents served by the MCP surface. Each document gets
// an in-memory module state and drawing layer, while cell metadata and the
// lifecycle log live in the store under the document key.
type Workspace struct {
	docs      *cmdq.Documents
	store     store.Store
	events    *store.EventLog
	appender  engine.EventAppender
	rules     *rules.RuleSet
	validator validation.Validator
	prefix    string
	logger    *slog.Logger
}

// Document is the per-document bundle built once per open.
type Document struct {
	Context   *cmdq.DocumentContext
	Facade    *cell.Facade
	Modules   *host.MemoryModules
	Draw      *host.MemoryDraw
	Formulas  *host.MemoryFormulas
	Listeners *cell.Listeners
}

// NewWorkspace creates an empty workspace.
func NewWorkspace(deps WorkspaceDeps) *Workspace {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	rs := deps.Rules
	if rs == nil {
		rs = rules.Default(logger)
	}
	events := store.NewEventLog(deps.Store)
	var appender engine.EventAppender = events
	if deps.Hub != nil {
		appender = streaming.NewPublishingAppender(events, deps.Hub, logger)
	}
	return &Workspace{
		docs:      cmdq.NewDocuments(logger),
		store:     deps.Store,
		events:    events,
		appender:  appender,
		rules:     rs,
		validator: deps.Validator,
		prefix:    deps.ShapePrefix,
		logger:    logger,
	}
}

// Rules returns the rule chain shared by all documents.
func (w *Workspace) Rules() *rules.RuleSet { return w.rules }

// Open returns the document for key, opening it if needed.
func (w *Workspace) Open(key string) *Document {
	return w.session(w.docs.Open(key))
}

// Document returns an open document by runtime ID.
func (w *Workspace) Document(id string) (*Document, error) {
	doc, ok := w.docs.Get(id)
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "document %s is not open", id)
	}
	return w.session(doc), nil
}

// Close tears down an open document.
func (w *Workspace) Close(ctx context.Context, id string) error {
	return w.docs.Close(ctx, id)
}

// CloseAll tears down every open document.
func (w *Workspace) CloseAll(ctx context.Context) {
	w.docs.CloseAll(ctx)
}

// Len returns the number of open documents.
func (w *Workspace) Len() int { return w.docs.Len() }

// Events returns the lifecycle log of a document, optionally for one cell.
func (w *Workspace) Events(ctx context.Context, doc *Document, c *schema.CellRef) ([]*store.Event, error) {
	if c != nil {
		return w.store.GetCellEvents(ctx, doc.Context.Key(), c.String())
	}
	return w.store.GetEvents(ctx, doc.Context.Key(), 0)
}

// ReplayKinds returns the control kind of every cell according to the lifecycle log.
func (w *Workspace) ReplayKinds(ctx context.Context, doc *Document) (map[string]string, error) {
	return w.events.ReplayKinds(ctx, doc.Context.Key())
}

func (w *Workspace) session(doc *cmdq.DocumentContext) *Document {
	return cmdq.Singleton(doc, "session", func() *Document {
		logger := w.logger.With(slog.String("document_id", doc.ID()))
		d := &Document{
			Context:   doc,
			Modules:   host.NewMemoryModules(doc.Key()),
			Draw:      host.NewMemoryDraw(),
			Listeners: cell.NewListeners(),
		}
		d.Formulas = host.NewMemoryFormulas(d.Listeners.Notify)
		d.Facade = cell.NewFacade(doc, cell.Config{
			Rules:   w.rules,
			Modules: d.Modules,
			Director: controls.NewDirector(w.store.Properties(doc.Key()), d.Draw, controls.Options{
				ShapePrefix: w.prefix,
				Validator:   w.validator,
				Logger:      logger,
			}),
			FSM:       engine.NewControlFSM(w.appender, doc.Key()),
			Formulas:  d.Formulas,
			Listeners: d.Listeners,
			Logger:    logger,
		})
		return d
	})
}
