// Package controls builds, reads and removes the overlay widget that renders
// a cell's computed value, together with the cell metadata describing it.
package controls

import (
	"encoding/hex"
	"strconv"

	"github.com/google/uuid"

	"github.com/rendis/cellview/internal/host"
	"github.com/rendis/cellview/pkg/schema"
)

// DefaultShapePrefix is used when Options.ShapePrefix is empty.
const DefaultShapePrefix = "cv"

// Feature is an optional capability of an overlay widget.
type Feature string

const (
	FeatureCard      Feature = "card"       // value can be opened in a popup card
	FeatureDataState Feature = "data_state" // toggles between rendered and raw data
	FeatureArray     Feature = "array"      // can be spilled as a cell array
	FeatureResize    Feature = "resize"     // follows the anchor cell size
)

// Ctl is the in-memory record of one cell control. It is produced by a
// Director and must not be mutated by callers.
type Ctl struct {
	Cell            schema.CellRef
	CtlKind         schema.CtlKind
	RuleKind        schema.RuleNameKind
	OrigRuleKind    schema.RuleNameKind
	ShapeName       string
	CodeName        string
	Addr            string
	ModifyTrigger   schema.ModifyTrigger
	BackgroundColor int
	Features        []Feature
	Properties      []string
	Bounds          schema.Rect
	Label           string
	ArrayAbility    bool
	Shape           host.Shape
}

// NoControl is the result for a cell without a live control.
func NoControl(cell schema.CellRef) *Ctl {
	return &Ctl{
		Cell:            cell,
		CtlKind:         schema.CtlUnknown,
		RuleKind:        schema.RuleKindUnknown,
		OrigRuleKind:    schema.RuleKindUnknown,
		Addr:            cell.String(),
		ModifyTrigger:   schema.ModifyTriggerNone,
		BackgroundColor: -1,
	}
}

// Attached reports whether the control has a live overlay widget.
func (c *Ctl) Attached() bool { return c.Shape != nil }

// HasFeature reports whether the control supports f.
func (c *Ctl) HasFeature(f Feature) bool {
	for _, x := range c.Features {
		if x == f {
			return true
		}
	}
	return false
}

// Metadata returns the persisted form of the control.
func (c *Ctl) Metadata() map[string]string {
	m := map[string]string{
		schema.MetaRuleKind:      string(c.RuleKind),
		schema.MetaOrigRuleKind:  string(c.OrigRuleKind),
		schema.MetaShapeName:     c.ShapeName,
		schema.MetaArrayAbility:  strconv.FormatBool(c.ArrayAbility),
		schema.MetaModifyTrigger: string(c.ModifyTrigger),
	}
	if c.CodeName != "" {
		m[schema.MetaCodeName] = c.CodeName
	}
	return m
}

// ShapeName derives the overlay name from a cell's code name. Builders and
// readers both call it, so the result must stay deterministic.
func ShapeName(prefix, codeName string) string {
	if prefix == "" {
		return "SHAPE_" + codeName
	}
	return "SHAPE_" + prefix + "_" + codeName
}

// NewCodeName returns a fresh 16 character hex code name.
func NewCodeName() string {
	id := uuid.New()
	return hex.EncodeToString(id[:8])
}
