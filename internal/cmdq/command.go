// Package cmdq executes Commands (mutating, undoable) and Queries (read-only,
// memoizable) against a per-document context. Failures never escape as
// errors or panics: Run reports a bool and Ask returns a tagged Result.
package cmdq

import (
	"context"
	"fmt"
)

// Command is a mutating operation. Execute may return nil and still leave
// Success false, meaning there was nothing to do.
type Command interface {
	Execute(ctx context.Context) error
	Success() bool
}

// Undoer is implemented by commands that can re-apply the state they replaced.
type Undoer interface {
	Undo(ctx context.Context) error
}

// Changer is implemented by undoable commands that can succeed without
// altering state. A command reporting Changed false stays out of the history.
type Changer interface {
	Changed() bool
}

// Invalidator is implemented by commands whose success invalidates cached queries.
type Invalidator interface {
	CacheKeys() []string
}

// Query is a read-only operation returning T.
type Query[T any] interface {
	Execute(ctx context.Context) (T, error)
}

// CacheKeyer is implemented by queries whose result may be memoized per
// document. An empty key disables caching for that call.
type CacheKeyer interface {
	CacheKey() string
}

// Named lets commands and queries choose the name used in logs.
type Named interface {
	Name() string
}

// Result is the tagged outcome of a query.
type Result[T any] struct {
	Value  T
	Err    error
	Cached bool
}

// OK reports whether the query succeeded.
func (r Result[T]) OK() bool { return r.Err == nil }

// Captured holds a value captured lazily on the first Execute. The zero value
// is unset, which makes Undo after a failed Execute a no-op.
type Captured[T any] struct {
	value T
	set   bool
}

// Capture calls fn once and stores its result. Later calls do nothing.
func (c *Captured[T]) Capture(fn func() (T, error)) error {
	if c.set {
		return nil
	}
	v, err := fn()
	if err != nil {
		return err
	}
	c.value, c.set = v, true
	return nil
}

// Get returns the captured value and whether one was captured.
func (c *Captured[T]) Get() (T, bool) { return c.value, c.set }

// Reset returns c to the unset state.
func (c *Captured[T]) Reset() {
	var zero T
	c.value, c.set = zero, false
}

func nameOf(v any) string {
	if n, ok := v.(Named); ok {
		return n.Name()
	}
	return fmt.Sprintf("%T", v)
}
