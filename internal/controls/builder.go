package controls

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/rendis/cellview/internal/host"
	"github.com/rendis/cellview/pkg/schema"
)

// buildRun is the scratch state of one build. Metadata is buffered in batch
// and only written by the final commit step.
type buildRun struct {
	d        *Director
	cell     schema.CellRef
	profile  profile
	ctl      *Ctl
	existing map[string]string
	batch    map[string]string
	page     host.DrawPage
}

type buildStep struct {
	name string
	run  func(ctx context.Context, r *buildRun) error
}

// Builder creates a control of one kind through an ordered list of steps.
type Builder struct {
	kind    schema.CtlKind
	profile profile
	steps   []buildStep
}

func newBuilder(kind schema.CtlKind, p profile) *Builder {
	return &Builder{
		kind:    kind,
		profile: p,
		steps: []buildStep{
			{"load_metadata", loadMetadata},
			{"default_label", setDefaultLabel},
			{"shape_name", setShapeName},
			{"rule_kind", setRuleKind},
			{"orig_rule_kind", setOrigRuleKind},
			{"array_ability", setArrayAbility},
			{"modify_trigger", setModifyTrigger},
			{"validate", validateBatch},
			{"materialize", materializers[p.shape]},
			{"commit", commit},
		},
	}
}

// Kind returns the control kind this builder creates.
func (b *Builder) Kind() schema.CtlKind { return b.kind }

// Build runs every step in order. The first failing step stops the pipeline;
// nothing is persisted unless every step succeeds.
func (b *Builder) Build(ctx context.Context, d *Director, cell schema.CellRef) (*Ctl, error) {
	ctl := NoControl(cell)
	ctl.CtlKind = b.kind
	b.profile.apply(ctl)

	r := &buildRun{
		d:       d,
		cell:    cell,
		profile: b.profile,
		ctl:     ctl,
		batch:   make(map[string]string, len(schema.MetadataKeys)),
	}
	for _, step := range b.steps {
		if err := step.run(ctx, r); err != nil {
			d.logger.ErrorContext(ctx, "build step failed",
				slog.String("step", step.name),
				slog.String("kind", b.kind.Key()),
				slog.String("cell", cell.String()),
				slog.String("error", err.Error()),
			)
			return nil, stepError(step.name, cell, err)
		}
	}
	return ctl, nil
}

func loadMetadata(ctx context.Context, r *buildRun) error {
	m, err := r.d.props.GetAll(ctx, r.cell)
	if err != nil {
		return err
	}
	r.existing = m
	return nil
}

func setDefaultLabel(_ context.Context, r *buildRun) error {
	r.ctl.Label = r.profile.label
	return nil
}

// setShapeName reuses the cell's code name when one was persisted before.
func setShapeName(_ context.Context, r *buildRun) error {
	code := r.existing[schema.MetaCodeName]
	if code == "" {
		code = NewCodeName()
	}
	r.ctl.CodeName = code
	r.ctl.ShapeName = ShapeName(r.d.prefix, code)
	r.batch[schema.MetaCodeName] = code
	r.batch[schema.MetaShapeName] = r.ctl.ShapeName
	return nil
}

func setRuleKind(_ context.Context, r *buildRun) error {
	rk := schema.RuleFromCtlKind(r.ctl.CtlKind)
	if rk == schema.RuleKindUnknown {
		return schema.NewErrorf(schema.ErrCodeValidation, "control kind %s has no rule kind", r.ctl.CtlKind)
	}
	r.ctl.RuleKind = rk
	r.batch[schema.MetaRuleKind] = string(rk)
	return nil
}

// setOrigRuleKind keeps the rule kind that was in effect before this build,
// or the new kind for a first build.
func setOrigRuleKind(_ context.Context, r *buildRun) error {
	orig := schema.ParseRuleNameKind(r.existing[schema.MetaRuleKind])
	if orig == schema.RuleKindUnknown {
		orig = r.ctl.RuleKind
	}
	r.ctl.OrigRuleKind = orig
	r.batch[schema.MetaOrigRuleKind] = string(orig)
	return nil
}

func setArrayAbility(_ context.Context, r *buildRun) error {
	r.batch[schema.MetaArrayAbility] = strconv.FormatBool(r.ctl.ArrayAbility)
	return nil
}

func setModifyTrigger(_ context.Context, r *buildRun) error {
	r.batch[schema.MetaModifyTrigger] = string(r.ctl.ModifyTrigger)
	return nil
}

func validateBatch(_ context.Context, r *buildRun) error {
	if r.d.validator == nil {
		return nil
	}
	return r.d.validator.ValidateMetadata(r.batch)
}

// commit writes the buffered metadata in one batch. If that fails the overlay
// created by materialize is disposed again.
func commit(ctx context.Context, r *buildRun) error {
	err := r.d.props.SetMany(ctx, r.cell, r.batch)
	if err == nil {
		return nil
	}
	if r.page != nil && r.ctl.Shape != nil {
		if derr := r.page.DisposeShape(ctx, r.ctl.ShapeName); derr != nil {
			r.d.logger.WarnContext(ctx, "dispose after failed commit",
				slog.String("shape", r.ctl.ShapeName),
				slog.String("error", derr.Error()),
			)
		}
		r.ctl.Shape = nil
	}
	return err
}

// --- materialize ---

var materializers = map[string]func(ctx context.Context, r *buildRun) error{
	shapeButton: materializeButton,
	shapeTable:  materializeTable,
	shapeImage:  materializeImage,
	shapeLabel:  materializeLabel,
}

func materializeButton(ctx context.Context, r *buildRun) error {
	return materialize(ctx, r, func(bounds schema.Rect) host.ShapeSpec {
		return host.ShapeSpec{Kind: shapeButton, Label: r.ctl.Label, Bounds: bounds, Visible: true}
	})
}

// materializeTable spans the anchor cell; the widget grows its columns itself.
func materializeTable(ctx context.Context, r *buildRun) error {
	return materialize(ctx, r, func(bounds schema.Rect) host.ShapeSpec {
		return host.ShapeSpec{Kind: shapeTable, Label: r.ctl.Label, Bounds: bounds, Visible: true}
	})
}

func materializeImage(ctx context.Context, r *buildRun) error {
	return materialize(ctx, r, func(bounds schema.Rect) host.ShapeSpec {
		return host.ShapeSpec{Kind: shapeImage, Bounds: bounds, Visible: true}
	})
}

// materializeLabel creates a hidden label for empty values.
func materializeLabel(ctx context.Context, r *buildRun) error {
	return materialize(ctx, r, func(bounds schema.Rect) host.ShapeSpec {
		return host.ShapeSpec{Kind: shapeLabel, Label: r.ctl.Label, Bounds: bounds, Visible: r.ctl.Label != ""}
	})
}

// materialize anchors a new overlay on the cell. A stale overlay with the
// same name belongs to this cell and is disposed first.
func materialize(ctx context.Context, r *buildRun, spec func(bounds schema.Rect) host.ShapeSpec) error {
	page, err := r.d.draw.DrawPage(ctx, r.cell.Sheet)
	if err != nil {
		return hostError("draw page", r.cell, err)
	}
	r.page = page

	bounds, err := page.CellBounds(ctx, r.cell)
	if err != nil {
		return hostError("cell bounds", r.cell, err)
	}

	if _, err := page.FindShape(ctx, r.ctl.ShapeName); err == nil {
		r.d.logger.DebugContext(ctx, "disposing stale overlay", slog.String("shape", r.ctl.ShapeName))
		if err := page.DisposeShape(ctx, r.ctl.ShapeName); err != nil {
			return hostError("dispose stale shape", r.cell, err)
		}
	}

	s := spec(bounds)
	s.Name = r.ctl.ShapeName
	s.Anchor = r.cell
	s.Background = r.ctl.BackgroundColor
	shape, err := page.CreateShape(ctx, s)
	if err != nil {
		return hostError("create shape", r.cell, err)
	}
	r.ctl.Shape = shape
	r.ctl.Bounds = bounds
	return nil
}
