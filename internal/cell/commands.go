package cell

import (
	"context"
	"log/slog"

	"github.com/rendis/cellview/internal/cmdq"
	"github.com/rendis/cellview/internal/controls"
	"github.com/rendis/cellview/internal/engine"
	"github.com/rendis/cellview/pkg/schema"
)

// RefreshControl brings the control of a cell in line with its latest
// computed value. A target without a control (UNKNOWN) is a no-op that does
// not succeed. An unchanged kind succeeds without touching the overlay unless
// Force is set, Update is set, or the overlay has gone missing. Update
// re-anchors the live overlay in place instead of rebuilding it.
//
// Only a refresh that moved the cell to another kind enters the undo history.
type RefreshControl struct {
	Cell   schema.CellRef
	Force  bool
	Update bool

	f       *Facade
	success bool
	changed bool
	target  schema.CtlKind
	prev    cmdq.Captured[schema.CtlKind]
}

// NewRefreshControl creates a refresh command bound to f.
func NewRefreshControl(f *Facade, cell schema.CellRef, force bool) *RefreshControl {
	return &RefreshControl{Cell: cell, Force: force, f: f}
}

func (c *RefreshControl) Name() string { return "refresh_control" }

func (c *RefreshControl) Execute(ctx context.Context) error {
	target, err := c.f.TargetKind(ctx, c.Cell)
	if err != nil {
		return err
	}
	c.target = target
	if target == schema.CtlUnknown || !c.f.director.HasBuilder(target) {
		c.f.logger.InfoContext(ctx, "nothing to update",
			slog.String("cell", c.Cell.String()),
			slog.String("target", target.Key()),
		)
		return nil
	}

	if err := c.prev.Capture(func() (schema.CtlKind, error) {
		res := c.f.CurrentKind(ctx, c.Cell)
		return res.Value, res.Err
	}); err != nil {
		return err
	}
	prev, _ := c.prev.Get()

	forced := c.Force
	if prev == target && !forced {
		if c.attached(ctx) {
			if c.Update {
				if _, err := c.f.director.UpdateControl(ctx, c.Cell); err != nil {
					return err
				}
			}
			c.success = true
			return nil
		}
		c.f.logger.InfoContext(ctx, "overlay missing, rebuilding control",
			slog.String("cell", c.Cell.String()),
			slog.String("kind", target.Key()),
		)
		forced = true
	}

	if err := c.f.swap(ctx, engine.Transition{
		Cell:    c.Cell,
		From:    prev,
		To:      target,
		Command: c.Name(),
		Forced:  forced && prev == target,
	}); err != nil {
		return err
	}
	c.success = true
	c.changed = prev != target
	return nil
}

// attached reports whether the persisted control still has its overlay.
func (c *RefreshControl) attached(ctx context.Context) bool {
	res := c.f.Control(ctx, c.Cell)
	return res.OK() && res.Value.Attached()
}

func (c *RefreshControl) Success() bool { return c.success }

// Changed reports whether the last Execute moved the cell to another kind.
func (c *RefreshControl) Changed() bool { return c.changed }

func (c *RefreshControl) CacheKeys() []string {
	return []string{controls.KindCacheKey(c.Cell)}
}

// Target is the kind implied by the value seen on the last Execute.
func (c *RefreshControl) Target() schema.CtlKind { return c.target }

// Previous is the kind persisted before the first Execute, if captured.
func (c *RefreshControl) Previous() (schema.CtlKind, bool) { return c.prev.Get() }

// Undo rebuilds the kind that was in effect before the refresh. A refresh
// that kept the kind has nothing to restore.
func (c *RefreshControl) Undo(ctx context.Context) error {
	prev, ok := c.prev.Get()
	if !ok || prev == c.target {
		return nil
	}
	return c.f.swap(ctx, engine.Transition{
		Cell:    c.Cell,
		From:    c.target,
		To:      prev,
		Command: "undo_" + c.Name(),
		Restore: true,
	})
}

// DeleteControl removes the control of a cell and clears its metadata. The
// code name survives so a later control reuses the same overlay name.
type DeleteControl struct {
	Cell schema.CellRef

	f       *Facade
	success bool
	prev    cmdq.Captured[schema.CtlKind]
}

// NewDeleteControl creates a delete command bound to f.
func NewDeleteControl(f *Facade, cell schema.CellRef) *DeleteControl {
	return &DeleteControl{Cell: cell, f: f}
}

func (c *DeleteControl) Name() string { return "delete_control" }

func (c *DeleteControl) Execute(ctx context.Context) error {
	// Classification only feeds the log; a cell without module state can
	// still have its control deleted.
	if m, err := c.f.Classify(ctx, c.Cell); err == nil {
		c.f.logger.DebugContext(ctx, "deleting control",
			slog.String("cell", c.Cell.String()),
			slog.String("target", m.CtlKind.Key()),
		)
	}

	if err := c.prev.Capture(func() (schema.CtlKind, error) {
		res := c.f.CurrentKind(ctx, c.Cell)
		return res.Value, res.Err
	}); err != nil {
		return err
	}
	prev, _ := c.prev.Get()
	if prev == schema.CtlUnknown {
		return nil
	}

	if err := c.f.swap(ctx, engine.Transition{
		Cell:    c.Cell,
		From:    prev,
		To:      schema.CtlUnknown,
		Command: c.Name(),
	}); err != nil {
		return err
	}
	c.success = true
	return nil
}

func (c *DeleteControl) Success() bool { return c.success }

// Changed is true whenever Success is; a cell without a control never succeeds.
func (c *DeleteControl) Changed() bool { return c.success }

func (c *DeleteControl) CacheKeys() []string {
	return []string{controls.KindCacheKey(c.Cell)}
}

// Previous is the kind removed by the command, if captured.
func (c *DeleteControl) Previous() (schema.CtlKind, bool) { return c.prev.Get() }

// Undo recreates the removed control.
func (c *DeleteControl) Undo(ctx context.Context) error {
	prev, ok := c.prev.Get()
	if !ok || prev == schema.CtlUnknown {
		return nil
	}
	return c.f.swap(ctx, engine.Transition{
		Cell:    c.Cell,
		From:    schema.CtlUnknown,
		To:      prev,
		Command: "undo_" + c.Name(),
		Restore: true,
	})
}

var (
	_ cmdq.Command     = (*RefreshControl)(nil)
	_ cmdq.Undoer      = (*RefreshControl)(nil)
	_ cmdq.Invalidator = (*RefreshControl)(nil)
	_ cmdq.Changer     = (*RefreshControl)(nil)
	_ cmdq.Command     = (*DeleteControl)(nil)
	_ cmdq.Undoer      = (*DeleteControl)(nil)
	_ cmdq.Invalidator = (*DeleteControl)(nil)
	_ cmdq.Changer     = (*DeleteControl)(nil)
)
