// Package rules classifies computed cell values through an ordered chain of
// stateless predicates. The first rule whose Match returns true wins, so the
// registration order is part of the contract.
package rules

import (
	"context"

	"github.com/rendis/cellview/pkg/schema"
)

// Rule is a pure predicate over a cell value that declares a RuleNameKind on match.
type Rule interface {
	Name() string
	Kind() schema.RuleNameKind
	Match(ctx context.Context, cell schema.CellRef, v any) bool
}

// Normalizer is implemented by rules that canonicalize the value they matched,
// e.g. the integer rule turning "52" into int64(52). It is applied after
// matching, never during it.
type Normalizer interface {
	Normalize(v any) any
}

// Match is the outcome of classifying one value.
type Match struct {
	Rule     Rule
	Kind     schema.RuleNameKind
	CtlKind  schema.CtlKind
	Value    any  // normalized value
	Fallback bool // no rule matched; Rule is the default none rule
}

// Normalize applies r's normalization to v when r implements Normalizer.
func Normalize(r Rule, v any) any {
	if n, ok := r.(Normalizer); ok {
		return n.Normalize(v)
	}
	return v
}
