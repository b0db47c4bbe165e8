package cmdq

import (
	"context"
	"log/slog"
	"os"
	"sync"

	"github.com/google/uuid"

	"github.com/rendis/cellview/pkg/schema"
)

// maxUndoHistory bounds the number of undoable commands kept per document.
const maxUndoHistory = 64

// DocumentContext owns everything scoped to one open document: the query
// cache, the undo history and named singletons. It is torn down exactly once
// by Close.
type DocumentContext struct {
	id  string
	key string

	mu         sync.Mutex
	cache      map[string]any
	history    []Command
	singletons map[string]any
	onClose    []func(ctx context.Context)
	closed     bool
	closeOnce  sync.Once
}

// NewDocumentContext creates a context for the document identified by key
// (a stable identifier such as its URL). It gets a fresh runtime ID.
func NewDocumentContext(key string) *DocumentContext {
	return &DocumentContext{
		id:         uuid.NewString(),
		key:        key,
		cache:      make(map[string]any),
		singletons: make(map[string]any),
	}
}

// ID returns the runtime ID, unique per open.
func (d *DocumentContext) ID() string { return d.id }

// Key returns the stable document key used for persistence.
func (d *DocumentContext) Key() string { return d.key }

// Closed reports whether Close has run.
func (d *DocumentContext) Closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

// OnClose registers fn to run during Close. Hooks run in registration order.
func (d *DocumentContext) OnClose(fn func(ctx context.Context)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onClose = append(d.onClose, fn)
}

// Close drops the cache, history and singletons and runs the close hooks.
// Only the first call has an effect.
func (d *DocumentContext) Close(ctx context.Context) {
	d.closeOnce.Do(func() {
		d.mu.Lock()
		d.closed = true
		hooks := d.onClose
		d.onClose = nil
		d.cache = make(map[string]any)
		d.history = nil
		d.singletons = make(map[string]any)
		d.mu.Unlock()

		for _, fn := range hooks {
			fn(ctx)
		}
	})
}

func (d *DocumentContext) cached(key string) (any, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	v, ok := d.cache[key]
	return v, ok
}

func (d *DocumentContext) store(key string, v any) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.cache[key] = v
}

// Invalidate removes the given keys from the query cache.
func (d *DocumentContext) Invalidate(keys ...string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, k := range keys {
		delete(d.cache, k)
	}
}

// CacheLen returns the number of memoized query results.
func (d *DocumentContext) CacheLen() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.cache)
}

func (d *DocumentContext) push(cmd Command) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.history = append(d.history, cmd)
	if len(d.history) > maxUndoHistory {
		d.history = d.history[len(d.history)-maxUndoHistory:]
	}
}

func (d *DocumentContext) pop() Command {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := len(d.history)
	if n == 0 {
		return nil
	}
	cmd := d.history[n-1]
	d.history[n-1] = nil
	d.history = d.history[:n-1]
	return cmd
}

// HistoryLen returns the number of undoable commands.
func (d *DocumentContext) HistoryLen() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.history)
}

type singleton struct {
	once sync.Once
	v    any
}

// Singleton returns the per-document value stored under name, building it on
// first use. Values never cross documents. build runs without the document
// lock held, so it may register close hooks, but it must not ask for the
// same singleton.
func Singleton[T any](d *DocumentContext, name string, build func() T) T {
	d.mu.Lock()
	s, ok := d.singletons[name].(*singleton)
	if !ok {
		s = &singleton{}
		if !d.closed {
			d.singletons[name] = s
		}
	}
	d.mu.Unlock()

	s.once.Do(func() { s.v = build() })
	if v, ok := s.v.(T); ok {
		return v
	}
	return build()
}

// Documents is the registry of open document contexts.
type Documents struct {
	mu     sync.Mutex
	byID   map[string]*DocumentContext
	byKey  map[string]*DocumentContext
	logger *slog.Logger
}

// NewDocuments creates an empty registry.
func NewDocuments(logger *slog.Logger) *Documents {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	return &Documents{
		byID:   make(map[string]*DocumentContext),
		byKey:  make(map[string]*DocumentContext),
		logger: logger,
	}
}

// Open returns the context for key, creating one if the document is not open.
func (r *Documents) Open(key string) *DocumentContext {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d, ok := r.byKey[key]; ok {
		return d
	}
	d := NewDocumentContext(key)
	r.byID[d.id] = d
	r.byKey[key] = d
	r.logger.Debug("document opened", slog.String("document_id", d.id), slog.String("key", key))
	return d
}

// Get returns an open context by runtime ID.
func (r *Documents) Get(id string) (*DocumentContext, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.byID[id]
	return d, ok
}

// Lookup returns an open context by stable key.
func (r *Documents) Lookup(key string) (*DocumentContext, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.byKey[key]
	return d, ok
}

// Len returns the number of open documents.
func (r *Documents) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byID)
}

// Close tears down and forgets the document with the given runtime ID.
func (r *Documents) Close(ctx context.Context, id string) error {
	r.mu.Lock()
	d, ok := r.byID[id]
	if ok {
		delete(r.byID, id)
		delete(r.byKey, d.key)
	}
	r.mu.Unlock()

	if !ok {
		return schema.NewErrorf(schema.ErrCodeNotFound, "document %s is not open", id)
	}
	d.Close(ctx)
	r.logger.Debug("document closed", slog.String("document_id", id), slog.String("key", d.key))
	return nil
}

// CloseAll tears down every open document.
func (r *Documents) CloseAll(ctx context.Context) {
	r.mu.Lock()
	ids := make([]string, 0, len(r.byID))
	for id := range r.byID {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	for _, id := range ids {
		_ = r.Close(ctx, id)
	}
}
