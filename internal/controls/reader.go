package controls

import (
	"context"
	"errors"
	"log/slog"

	"github.com/rendis/cellview/internal/host"
	"github.com/rendis/cellview/pkg/schema"
)

// errNoShape stops a read when the overlay named in metadata is gone.
var errNoShape = errors.New("overlay shape not found")

type readRun struct {
	d    *Director
	cell schema.CellRef
	meta map[string]string
	ctl  *Ctl
}

type readStep struct {
	name string
	run  func(ctx context.Context, r *readRun) error
}

// Reader reconstructs a control of one kind from metadata and the live overlay.
type Reader struct {
	kind    schema.CtlKind
	profile profile
	steps   []readStep
}

func newReader(kind schema.CtlKind, p profile) *Reader {
	return &Reader{
		kind:    kind,
		profile: p,
		steps: []readStep{
			{"metadata", readMetadata},
			{"identity", readIdentity},
			{"shape", readShape},
		},
	}
}

// Kind returns the control kind this reader reconstructs.
func (rd *Reader) Kind() schema.CtlKind { return rd.kind }

// Read runs every step in order. A missing overlay yields NoControl.
func (rd *Reader) Read(ctx context.Context, d *Director, cell schema.CellRef) (*Ctl, error) {
	ctl := NoControl(cell)
	ctl.CtlKind = rd.kind
	rd.profile.apply(ctl)
	ctl.Label = rd.profile.label

	r := &readRun{d: d, cell: cell, ctl: ctl}
	for _, step := range rd.steps {
		err := step.run(ctx, r)
		if errors.Is(err, errNoShape) {
			d.logger.WarnContext(ctx, "metadata names a missing overlay, treating as no control",
				slog.String("cell", cell.String()),
				slog.String("shape", ctl.ShapeName),
			)
			return NoControl(cell), nil
		}
		if err != nil {
			d.logger.ErrorContext(ctx, "read step failed",
				slog.String("step", step.name),
				slog.String("kind", rd.kind.Key()),
				slog.String("cell", cell.String()),
				slog.String("error", err.Error()),
			)
			return nil, stepError(step.name, cell, err)
		}
	}
	return ctl, nil
}

func readMetadata(ctx context.Context, r *readRun) error {
	all, err := r.d.props.GetAll(ctx, r.cell)
	if err != nil {
		return err
	}
	r.meta = make(map[string]string, len(schema.MetadataKeys))
	for _, k := range schema.MetadataKeys {
		if v, ok := all[k]; ok {
			r.meta[k] = v
		}
	}
	if r.d.validator != nil {
		return r.d.validator.ValidateMetadata(r.meta)
	}
	return nil
}

func readIdentity(_ context.Context, r *readRun) error {
	c := r.ctl
	c.RuleKind = schema.ParseRuleNameKind(r.meta[schema.MetaRuleKind])
	c.OrigRuleKind = schema.ParseRuleNameKind(r.meta[schema.MetaOrigRuleKind])
	if c.OrigRuleKind == schema.RuleKindUnknown {
		c.OrigRuleKind = c.RuleKind
	}
	c.CodeName = r.meta[schema.MetaCodeName]
	c.ShapeName = r.meta[schema.MetaShapeName]
	if c.ShapeName == "" {
		return schema.NewError(schema.ErrCodeShapeMissing, "metadata has no shape name").WithCell(r.cell)
	}
	if v, ok := r.meta[schema.MetaArrayAbility]; ok {
		c.ArrayAbility = v == "true"
	}
	if v, ok := r.meta[schema.MetaModifyTrigger]; ok {
		c.ModifyTrigger = schema.ModifyTrigger(v)
	}
	return nil
}

func readShape(ctx context.Context, r *readRun) error {
	page, err := r.d.draw.DrawPage(ctx, r.cell.Sheet)
	if err != nil {
		return hostError("draw page", r.cell, err)
	}
	shape, err := page.FindShape(ctx, r.ctl.ShapeName)
	if schema.HasCode(err, schema.ErrCodeNotFound) {
		return errNoShape
	}
	if err != nil {
		return hostError("find shape", r.cell, err)
	}
	attach(r.ctl, shape)
	return nil
}

func attach(c *Ctl, shape host.Shape) {
	spec := shape.Spec()
	c.Shape = shape
	c.Bounds = spec.Bounds
	if spec.Label != "" {
		c.Label = spec.Label
	}
	c.BackgroundColor = spec.Background
}
