package controls

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"

	"github.com/rendis/cellview/internal/host"
	"github.com/rendis/cellview/internal/validation"
	"github.com/rendis/cellview/pkg/schema"
)

// Options configures a Director.
type Options struct {
	// ShapePrefix is embedded in overlay names: SHAPE_{prefix}_{code_name}.
	ShapePrefix string
	// Validator checks metadata before commit and after read. Optional.
	Validator validation.Validator
	Logger    *slog.Logger
}

// Director selects the builder or reader for a control kind and exposes the
// control lifecycle of one document.
type Director struct {
	props     host.PropertyStore
	draw      host.DrawHost
	prefix    string
	validator validation.Validator
	logger    *slog.Logger
	builders  map[schema.CtlKind]*Builder
	readers   map[schema.CtlKind]*Reader

	mu       sync.RWMutex
	onChange []func(cell schema.CellRef)
}

// NewDirector creates a Director over a document's property store and draw host.
func NewDirector(props host.PropertyStore, draw host.DrawHost, opts Options) *Director {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	prefix := opts.ShapePrefix
	if prefix == "" {
		prefix = DefaultShapePrefix
	}
	d := &Director{
		props:     props,
		draw:      draw,
		prefix:    prefix,
		validator: opts.Validator,
		logger:    logger,
		builders:  make(map[schema.CtlKind]*Builder, len(profiles)),
		readers:   make(map[schema.CtlKind]*Reader, len(profiles)),
	}
	for kind, p := range profiles {
		d.builders[kind] = newBuilder(kind, p)
		d.readers[kind] = newReader(kind, p)
	}
	return d
}

// Prefix returns the shape prefix in use.
func (d *Director) Prefix() string { return d.prefix }

// OnChange registers fn to run whenever the persisted control of a cell may
// have changed: after a create attempt, a removed overlay or cleared metadata.
// Caches keyed by cell hang off this hook.
func (d *Director) OnChange(fn func(cell schema.CellRef)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onChange = append(d.onChange, fn)
}

func (d *Director) changed(cell schema.CellRef) {
	d.mu.RLock()
	hooks := d.onChange
	d.mu.RUnlock()
	for _, fn := range hooks {
		fn(cell)
	}
}

// HasBuilder reports whether kind can be created.
func (d *Director) HasBuilder(kind schema.CtlKind) bool {
	_, ok := d.builders[kind]
	return ok
}

// CreateControl builds a control of kind on cell. It returns nil and no error
// when no builder exists for kind.
func (d *Director) CreateControl(ctx context.Context, cell schema.CellRef, kind schema.CtlKind) (*Ctl, error) {
	b, ok := d.builders[kind]
	if !ok {
		d.logger.DebugContext(ctx, "no builder for control kind",
			slog.String("kind", kind.Key()),
			slog.String("cell", cell.String()),
		)
		return nil, nil
	}
	// A failed build may still have disposed the previous overlay.
	defer d.changed(cell)
	return b.Build(ctx, d, cell)
}

// UpdateControl refreshes the live overlay of cell in place: it is moved to
// the current cell bounds and its visibility reapplied, while metadata and
// shape name stay untouched. Cells without a live overlay yield NoControl.
func (d *Director) UpdateControl(ctx context.Context, cell schema.CellRef) (*Ctl, error) {
	ctl, err := d.GetControl(ctx, cell)
	if err != nil {
		return nil, err
	}
	if !ctl.Attached() {
		return ctl, nil
	}

	page, err := d.draw.DrawPage(ctx, cell.Sheet)
	if err != nil {
		return nil, hostError("draw page", cell, err)
	}
	bounds, err := page.CellBounds(ctx, cell)
	if err != nil {
		return nil, hostError("cell bounds", cell, err)
	}
	if err := page.SetSize(ctx, ctl.ShapeName, bounds); err != nil {
		return nil, hostError("resize shape", cell, err)
	}
	spec := ctl.Shape.Spec()
	visible := spec.Kind != shapeLabel || spec.Label != ""
	if err := page.SetVisible(ctx, ctl.ShapeName, visible); err != nil {
		return nil, hostError("show shape", cell, err)
	}

	shape, err := page.FindShape(ctx, ctl.ShapeName)
	if err != nil {
		return nil, hostError("find shape", cell, err)
	}
	attach(ctl, shape)
	d.logger.DebugContext(ctx, "control updated in place",
		slog.String("cell", cell.String()),
		slog.String("shape", ctl.ShapeName),
	)
	return ctl, nil
}

// GetControl reconstructs the control currently persisted on cell. Cells
// without a control, or whose overlay is missing, yield NoControl.
func (d *Director) GetControl(ctx context.Context, cell schema.CellRef) (*Ctl, error) {
	kind, err := d.CurrentKind(ctx, cell)
	if err != nil {
		return nil, err
	}
	r, ok := d.readers[kind]
	if !ok {
		return NoControl(cell), nil
	}
	return r.Read(ctx, d, cell)
}

// CurrentKind returns the control kind recorded in the cell metadata.
func (d *Director) CurrentKind(ctx context.Context, cell schema.CellRef) (schema.CtlKind, error) {
	v, ok, err := d.props.Get(ctx, cell, schema.MetaRuleKind)
	if err != nil {
		return schema.CtlUnknown, hostError("read rule kind", cell, err)
	}
	if !ok {
		return schema.CtlUnknown, nil
	}
	return schema.CtlKindFromRule(schema.ParseRuleNameKind(v)), nil
}

// RemoveControl disposes the overlay named in the cell metadata. It reports
// whether an overlay was removed. Metadata is left in place; see ClearMetadata.
func (d *Director) RemoveControl(ctx context.Context, cell schema.CellRef) (bool, error) {
	name, ok, err := d.props.Get(ctx, cell, schema.MetaShapeName)
	if err != nil {
		return false, hostError("read shape name", cell, err)
	}
	if !ok || name == "" {
		return false, nil
	}

	page, err := d.draw.DrawPage(ctx, cell.Sheet)
	if err != nil {
		return false, hostError("draw page", cell, err)
	}
	err = page.DisposeShape(ctx, name)
	if schema.HasCode(err, schema.ErrCodeNotFound) {
		d.logger.DebugContext(ctx, "overlay already gone",
			slog.String("cell", cell.String()),
			slog.String("shape", name),
		)
		return false, nil
	}
	if err != nil {
		return false, hostError("dispose shape", cell, err)
	}
	d.changed(cell)
	return true, nil
}

// ClearMetadata deletes the control keys of cell. The code name is kept.
func (d *Director) ClearMetadata(ctx context.Context, cell schema.CellRef) error {
	if err := d.props.DeleteMany(ctx, cell, schema.ControlKeys); err != nil {
		return hostError("clear metadata", cell, err)
	}
	d.changed(cell)
	return nil
}

func stepError(step string, cell schema.CellRef, err error) *schema.CellviewError {
	return schema.NewErrorf(schema.ErrCodeStepFailed, "step %s: %s", step, err.Error()).
		WithCell(cell).
		WithCause(err).
		WithDetails(map[string]any{"step": step})
}

// hostError tags host faults with HOST_ERROR unless they already carry a code.
func hostError(op string, cell schema.CellRef, err error) error {
	var ce *schema.CellviewError
	if errors.As(err, &ce) {
		return err
	}
	return schema.NewErrorf(schema.ErrCodeHost, "%s: %s", op, err.Error()).WithCell(cell).WithCause(err)
}
