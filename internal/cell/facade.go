// Package cell ties module state, rule matching and the control lifecycle
// together for single cells of one document.
package cell

import (
	"context"
	"log/slog"
	"os"

	"github.com/rendis/cellview/internal/cmdq"
	"github.com/rendis/cellview/internal/controls"
	"github.com/rendis/cellview/internal/engine"
	"github.com/rendis/cellview/internal/host"
	"github.com/rendis/cellview/internal/logging"
	"github.com/rendis/cellview/internal/rules"
	"github.com/rendis/cellview/pkg/schema"
)

// Config wires a Facade to its collaborators. Formulas and Listeners are
// only needed for Recalculate and modification handling.
type Config struct {
	Rules     *rules.RuleSet
	Modules   host.ModuleStateProvider
	Director  *controls.Director
	FSM       *engine.ControlFSM
	Formulas  host.FormulaWriter
	Listeners *Listeners
	Logger    *slog.Logger
}

// Facade is the entry point for cell level operations of one document.
type Facade struct {
	doc       *cmdq.DocumentContext
	handler   *cmdq.Handler
	rules     *rules.RuleSet
	modules   host.ModuleStateProvider
	director  *controls.Director
	fsm       *engine.ControlFSM
	formulas  host.FormulaWriter
	listeners *Listeners
	logger    *slog.Logger
}

// NewFacade creates the facade of doc. Closing doc moves the FSM to its
// terminal state.
func NewFacade(doc *cmdq.DocumentContext, cfg Config) *Facade {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	f := &Facade{
		doc:       doc,
		handler:   cmdq.NewHandler(doc, logger),
		rules:     cfg.Rules,
		modules:   cfg.Modules,
		director:  cfg.Director,
		fsm:       cfg.FSM,
		formulas:  cfg.Formulas,
		listeners: cfg.Listeners,
		logger:    logger,
	}
	if f.director != nil {
		f.director.OnChange(func(cell schema.CellRef) {
			doc.Invalidate(controls.KindCacheKey(cell))
		})
	}
	if f.listeners != nil {
		f.listeners.Add(f.HandleModified)
	}
	if f.fsm != nil {
		doc.OnClose(func(ctx context.Context) {
			if err := f.fsm.Close(ctx); err != nil {
				logger.WarnContext(ctx, "record document close", slog.String("error", err.Error()))
			}
		})
	}
	return f
}

// Document returns the document context.
func (f *Facade) Document() *cmdq.DocumentContext { return f.doc }

// Handler returns the command/query handler of the document.
func (f *Facade) Handler() *cmdq.Handler { return f.handler }

// Director returns the control director of the document.
func (f *Facade) Director() *controls.Director { return f.director }

// ModuleState returns the latest computed value of cell.
func (f *Facade) ModuleState(ctx context.Context, cell schema.CellRef) (*schema.ModuleStateItem, error) {
	return f.modules.State(ctx, cell)
}

// Classify runs the rule chain over the latest computed value of cell.
func (f *Facade) Classify(ctx context.Context, cell schema.CellRef) (rules.Match, error) {
	st, err := f.ModuleState(ctx, cell)
	if err != nil {
		return rules.Match{}, err
	}
	return f.rules.Classify(ctx, cell, st.Value), nil
}

// TargetKind is the control kind implied by the latest computed value.
// A cell without module state has target CtlUnknown.
func (f *Facade) TargetKind(ctx context.Context, cell schema.CellRef) (schema.CtlKind, error) {
	m, err := f.Classify(ctx, cell)
	if schema.HasCode(err, schema.ErrCodeNotFound) {
		return schema.CtlUnknown, nil
	}
	if err != nil {
		return schema.CtlUnknown, err
	}
	return m.CtlKind, nil
}

// CurrentKind is the persisted control kind of cell, memoized per document.
func (f *Facade) CurrentKind(ctx context.Context, cell schema.CellRef) cmdq.Result[schema.CtlKind] {
	return cmdq.Ask[schema.CtlKind](ctx, f.handler, controls.CurrentKindQuery{Director: f.director, Cell: cell})
}

// Control reconstructs the control of cell.
func (f *Facade) Control(ctx context.Context, cell schema.CellRef) cmdq.Result[*controls.Ctl] {
	return cmdq.Ask[*controls.Ctl](ctx, f.handler, controls.GetControlQuery{Director: f.director, Cell: cell})
}

// Refresh runs a RefreshControl command and returns it with its success.
func (f *Facade) Refresh(ctx context.Context, cell schema.CellRef, force bool) (*RefreshControl, bool) {
	cmd := NewRefreshControl(f, cell, force)
	return cmd, f.handler.Run(logging.WithCell(ctx, cell.String()), cmd)
}

// Delete runs a DeleteControl command and returns it with its success.
func (f *Facade) Delete(ctx context.Context, cell schema.CellRef) (*DeleteControl, bool) {
	cmd := NewDeleteControl(f, cell)
	return cmd, f.handler.Run(logging.WithCell(ctx, cell.String()), cmd)
}

// Undo reverts the most recent successful command of the document.
func (f *Facade) Undo(ctx context.Context) bool {
	return f.handler.Undo(ctx)
}

// HandleModified reacts to a change of cell. A control whose kind no longer
// fits the value is replaced. One with the cell_data modify trigger that
// keeps its kind is updated in place; others are left alone.
func (f *Facade) HandleModified(ctx context.Context, cell schema.CellRef) {
	cmd := NewRefreshControl(f, cell, false)
	if res := f.Control(ctx, cell); res.OK() && res.Value.ModifyTrigger == schema.ModifyTriggerCellData {
		cmd.Update = true
	}
	f.handler.Run(logging.WithCell(ctx, cell.String()), cmd)
}

// Recalculate rewrites the formula of cell to force the host to recompute
// it, then refreshes the control once. Modification listeners for the cell
// are suspended during the rewrite so it does not re-enter HandleModified.
func (f *Facade) Recalculate(ctx context.Context, cell schema.CellRef) bool {
	if f.formulas == nil {
		f.logger.WarnContext(ctx, "recalculate without a formula writer", slog.String("cell", cell.String()))
		return false
	}
	rewrite := func() error {
		formula, err := f.formulas.Formula(ctx, cell)
		if err != nil {
			return err
		}
		return f.formulas.SetFormula(ctx, cell, formula)
	}

	var err error
	if f.listeners != nil {
		err = f.listeners.WithSuspended(cell, rewrite)
	} else {
		err = rewrite()
	}
	if err != nil {
		f.logger.ErrorContext(ctx, "rewrite formula", slog.String("cell", cell.String()), slog.String("error", err.Error()))
		return false
	}
	_, ok := f.Refresh(ctx, cell, false)
	return ok
}

// swap moves cell from one control kind to another: the old overlay is
// removed, the new one built and the transition recorded. When the build
// fails the previous control is rebuilt on a best effort basis.
func (f *Facade) swap(ctx context.Context, t engine.Transition) error {
	if f.fsm != nil {
		if err := f.fsm.Validate(t); err != nil {
			return err
		}
	}

	if _, err := f.director.RemoveControl(ctx, t.Cell); err != nil {
		return err
	}

	if t.To == schema.CtlUnknown {
		if err := f.director.ClearMetadata(ctx, t.Cell); err != nil {
			return err
		}
	} else {
		ctl, err := f.director.CreateControl(ctx, t.Cell, t.To)
		if err != nil {
			f.restore(ctx, t)
			return err
		}
		if ctl != nil {
			t.Shape = ctl.ShapeName
		}
	}

	if f.fsm != nil {
		if err := f.fsm.Transition(ctx, t); err != nil {
			f.logger.WarnContext(ctx, "record control transition",
				slog.String("cell", t.Cell.String()),
				slog.String("error", err.Error()),
			)
		}
	}
	f.doc.Invalidate(controls.KindCacheKey(t.Cell))
	return nil
}

func (f *Facade) restore(ctx context.Context, t engine.Transition) {
	if t.From == schema.CtlUnknown {
		return
	}
	if _, err := f.director.CreateControl(ctx, t.Cell, t.From); err != nil {
		f.logger.ErrorContext(ctx, "restore previous control",
			slog.String("cell", t.Cell.String()),
			slog.String("kind", t.From.Key()),
			slog.String("error", err.Error()),
		)
	}
}
