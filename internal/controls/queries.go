package controls

import (
	"context"

	"github.com/rendis/cellview/pkg/schema"
)

// KindCacheKey is the cache key of the CurrentKind query for cell.
func KindCacheKey(cell schema.CellRef) string { return "ctl_kind:" + cell.String() }

// CurrentKindQuery reads the persisted control kind of a cell. Its result
// is memoized per document until KindCacheKey is invalidated, either by a
// command or by a Director.OnChange hook.
type CurrentKindQuery struct {
	Director *Director
	Cell     schema.CellRef
}

func (q CurrentKindQuery) Name() string     { return "current_kind" }
func (q CurrentKindQuery) CacheKey() string { return KindCacheKey(q.Cell) }

func (q CurrentKindQuery) Execute(ctx context.Context) (schema.CtlKind, error) {
	return q.Director.CurrentKind(ctx, q.Cell)
}

// GetControlQuery reconstructs a cell's control. It is never cached since it
// carries a live overlay handle.
type GetControlQuery struct {
	Director *Director
	Cell     schema.CellRef
}

func (q GetControlQuery) Name() string { return "get_control" }

func (q GetControlQuery) Execute(ctx context.Context) (*Ctl, error) {
	return q.Director.GetControl(ctx, q.Cell)
}
