package cell

import (
	"context"
	"sync"

	"github.com/rendis/cellview/pkg/schema"
)

// ModifiedFunc is called when a cell's content changes.
type ModifiedFunc func(ctx context.Context, cell schema.CellRef)

// Listeners dispatches cell modification notifications. Notifications for a
// suspended cell are dropped.
type Listeners struct {
	mu        sync.Mutex
	handlers  []ModifiedFunc
	suspended map[schema.CellRef]int
}

// NewListeners creates an empty dispatcher.
func NewListeners() *Listeners {
	return &Listeners{suspended: make(map[schema.CellRef]int)}
}

// Add registers fn for every cell.
func (l *Listeners) Add(fn ModifiedFunc) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.handlers = append(l.handlers, fn)
}

// Notify calls every handler unless cell is suspended.
func (l *Listeners) Notify(ctx context.Context, cell schema.CellRef) {
	l.mu.Lock()
	if l.suspended[cell] > 0 {
		l.mu.Unlock()
		return
	}
	handlers := append([]ModifiedFunc(nil), l.handlers...)
	l.mu.Unlock()

	for _, fn := range handlers {
		fn(ctx, cell)
	}
}

// Suspended reports whether notifications for cell are currently dropped.
func (l *Listeners) Suspended(cell schema.CellRef) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.suspended[cell] > 0
}

// Suspend drops notifications for cell until the returned resume func is
// called. Suspensions nest; resume is safe to call more than once.
func (l *Listeners) Suspend(cell schema.CellRef) (resume func()) {
	l.mu.Lock()
	l.suspended[cell]++
	l.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			if l.suspended[cell]--; l.suspended[cell] <= 0 {
				delete(l.suspended, cell)
			}
		})
	}
}

// WithSuspended runs fn with cell suspended and re-arms the listeners on
// every exit path, panics included.
func (l *Listeners) WithSuspended(cell schema.CellRef, fn func() error) error {
	resume := l.Suspend(cell)
	defer resume()
	return fn()
}
