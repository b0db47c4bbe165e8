package cmdq

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/rendis/cellview/internal/logging"
	"github.com/rendis/cellview/pkg/schema"
)

// Handler runs commands and queries for one document.
type Handler struct {
	doc    *DocumentContext
	logger *slog.Logger
}

// NewHandler creates a handler bound to doc.
func NewHandler(doc *DocumentContext, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	return &Handler{doc: doc, logger: logger}
}

// Document returns the document this handler is bound to.
func (h *Handler) Document() *DocumentContext { return h.doc }

// Run executes cmd and reports its success. Errors and panics are logged and
// reported as false. On success the command's cache keys are invalidated and,
// if it can be undone and changed something, it is pushed onto the undo history.
func (h *Handler) Run(ctx context.Context, cmd Command) bool {
	name := nameOf(cmd)
	ctx = h.correlate(ctx, name)

	if h.doc.Closed() {
		h.logger.WarnContext(ctx, "command rejected, document closed")
		return false
	}

	if err := safeCall(func() error { return cmd.Execute(ctx) }); err != nil {
		h.logger.ErrorContext(ctx, "command failed", slog.String("error", err.Error()))
		return false
	}
	if !cmd.Success() {
		h.logger.DebugContext(ctx, "command made no change")
		return false
	}

	if inv, ok := cmd.(Invalidator); ok {
		h.doc.Invalidate(inv.CacheKeys()...)
	}
	if _, ok := cmd.(Undoer); ok && changed(cmd) {
		h.doc.push(cmd)
	}
	return true
}

func changed(cmd Command) bool {
	if c, ok := cmd.(Changer); ok {
		return c.Changed()
	}
	return true
}

// Undo reverts the most recent successful undoable command. It returns false
// when the history is empty or the undo failed; a failed undo is not retried.
func (h *Handler) Undo(ctx context.Context) bool {
	if h.doc.Closed() {
		return false
	}
	cmd := h.doc.pop()
	if cmd == nil {
		return false
	}
	return h.undo(ctx, cmd)
}

// UndoCommand reverts cmd directly without consulting the history.
func (h *Handler) UndoCommand(ctx context.Context, cmd Command) bool {
	if h.doc.Closed() {
		return false
	}
	return h.undo(ctx, cmd)
}

func (h *Handler) undo(ctx context.Context, cmd Command) bool {
	u, ok := cmd.(Undoer)
	if !ok {
		return false
	}
	ctx = h.correlate(ctx, "undo "+nameOf(cmd))
	if err := safeCall(func() error { return u.Undo(ctx) }); err != nil {
		h.logger.ErrorContext(ctx, "undo failed", slog.String("error", err.Error()))
		return false
	}
	if inv, ok := cmd.(Invalidator); ok {
		h.doc.Invalidate(inv.CacheKeys()...)
	}
	return true
}

// Ask executes q, serving and filling the document cache when q has a cache key.
func Ask[T any](ctx context.Context, h *Handler, q Query[T]) Result[T] {
	name := nameOf(q)
	ctx = h.correlate(ctx, name)

	if h.doc.Closed() {
		return Result[T]{Err: schema.NewErrorf(schema.ErrCodeDocumentClosed, "document %s is closed", h.doc.id)}
	}

	var key string
	if ck, ok := q.(CacheKeyer); ok {
		key = ck.CacheKey()
	}
	if key != "" {
		if v, ok := h.doc.cached(key); ok {
			if typed, ok := v.(T); ok {
				return Result[T]{Value: typed, Cached: true}
			}
		}
	}

	var out T
	err := safeCall(func() error {
		v, err := q.Execute(ctx)
		out = v
		return err
	})
	if err != nil {
		h.logger.ErrorContext(ctx, "query failed", slog.String("error", err.Error()))
		return Result[T]{Err: err}
	}
	if key != "" {
		h.doc.store(key, out)
	}
	return Result[T]{Value: out}
}

func (h *Handler) correlate(ctx context.Context, name string) context.Context {
	if logging.DocumentID(ctx) == "" {
		ctx = logging.WithDocumentID(ctx, h.doc.id)
	}
	return logging.WithCommand(ctx, name)
}

// safeCall runs fn, converting a panic into an EXECUTION_ERROR.
func safeCall(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = schema.NewErrorf(schema.ErrCodeExecution, "panic: %v", r).
				WithDetails(map[string]any{"panic": fmt.Sprint(r)})
		}
	}()
	return fn()
}
