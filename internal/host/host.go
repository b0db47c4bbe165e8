// Package host declares the spreadsheet collaborators the control engine
// consumes: module state, per-cell custom properties, the drawing layer and
// formula writes. Memory implementations back headless runs and tests.
package host

import (
	"context"

	"github.com/rendis/cellview/pkg/schema"
)

// ModuleStateProvider returns the latest computed value of a cell's script.
type ModuleStateProvider interface {
	State(ctx context.Context, cell schema.CellRef) (*schema.ModuleStateItem, error)
}

// PropertyStore persists custom key/value properties scoped to one cell.
// SetMany and DeleteMany must apply all keys or none.
type PropertyStore interface {
	Get(ctx context.Context, cell schema.CellRef, key string) (string, bool, error)
	Set(ctx context.Context, cell schema.CellRef, key, value string) error
	Has(ctx context.Context, cell schema.CellRef, key string) (bool, error)
	Delete(ctx context.Context, cell schema.CellRef, key string) error
	GetAll(ctx context.Context, cell schema.CellRef) (map[string]string, error)
	SetMany(ctx context.Context, cell schema.CellRef, values map[string]string) error
	DeleteMany(ctx context.Context, cell schema.CellRef, keys []string) error
}

// ShapeSpec describes an overlay widget to create on a drawing page.
type ShapeSpec struct {
	Name       string
	Kind       string // button | table | image | label
	Label      string
	Anchor     schema.CellRef
	Bounds     schema.Rect
	Background int // 0xRRGGBB, -1 for host default
	Visible    bool
}

// Shape is a live overlay widget handle.
type Shape interface {
	Name() string
	Spec() ShapeSpec
}

// DrawPage is the drawing layer of one sheet. Shape names are unique per page.
// Lookups of absent shapes return a schema.ErrCodeNotFound error.
type DrawPage interface {
	CellBounds(ctx context.Context, cell schema.CellRef) (schema.Rect, error)
	CreateShape(ctx context.Context, spec ShapeSpec) (Shape, error)
	FindShape(ctx context.Context, name string) (Shape, error)
	DisposeShape(ctx context.Context, name string) error
	SetVisible(ctx context.Context, name string, visible bool) error
	SetSize(ctx context.Context, name string, bounds schema.Rect) error
}

// DrawHost maps a sheet to its drawing page.
type DrawHost interface {
	DrawPage(ctx context.Context, sheet string) (DrawPage, error)
}

// FormulaWriter reads and rewrites cell formulas, which triggers recalculation.
type FormulaWriter interface {
	Formula(ctx context.Context, cell schema.CellRef) (string, error)
	SetFormula(ctx context.Context, cell schema.CellRef, formula string) error
}
