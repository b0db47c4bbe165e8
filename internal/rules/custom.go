package rules

import (
	"context"
	"log/slog"

	"github.com/rendis/cellview/internal/expressions"
	"github.com/rendis/cellview/pkg/schema"
)

// CustomRule is the configuration of an expression-backed rule.
type CustomRule struct {
	Name       string `json:"name"`
	Engine     string `json:"engine"` // cel | expr | jq
	Expression string `json:"expression"`
	Kind       string `json:"kind"` // a RuleNameKind identifier
	First      bool   `json:"first,omitempty"`
}

// ExpressionRule matches when its expression evaluates to true against
// expressions.Scope(cell, value). Evaluation errors count as no match.
type ExpressionRule struct {
	name       string
	kind       schema.RuleNameKind
	engine     expressions.Engine
	expression string
	logger     *slog.Logger
}

// NewExpressionRule validates cfg and builds the rule.
func NewExpressionRule(cfg CustomRule, logger *slog.Logger) (*ExpressionRule, error) {
	if cfg.Name == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "custom rule name is empty")
	}
	if cfg.Expression == "" {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "custom rule %q has no expression", cfg.Name)
	}
	kind := schema.ParseRuleNameKind(cfg.Kind)
	if kind == schema.RuleKindUnknown {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "custom rule %q: unknown kind %q", cfg.Name, cfg.Kind)
	}
	engine, err := expressions.NewEngine(cfg.Engine)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ExpressionRule{
		name:       cfg.Name,
		kind:       kind,
		engine:     engine,
		expression: cfg.Expression,
		logger:     logger,
	}, nil
}

func (r *ExpressionRule) Name() string              { return r.name }
func (r *ExpressionRule) Kind() schema.RuleNameKind { return r.kind }

func (r *ExpressionRule) Match(ctx context.Context, cell schema.CellRef, v any) bool {
	ok, err := expressions.EvaluateBool(ctx, r.engine, r.expression, expressions.Scope(cell, v))
	if err != nil {
		r.logger.WarnContext(ctx, "custom rule evaluation failed",
			slog.String("rule", r.name),
			slog.String("engine", r.engine.Name()),
			slog.String("cell", cell.String()),
			slog.String("error", err.Error()),
		)
		return false
	}
	return ok
}

// RegisterCustom builds every configured rule. Rules marked First are placed
// ahead of everything registered so far, in configuration order; the rest are
// appended. The relative order of the existing chain is never changed.
func (s *RuleSet) RegisterCustom(cfgs []CustomRule) error {
	first := 0
	for _, cfg := range cfgs {
		r, err := NewExpressionRule(cfg, s.logger)
		if err != nil {
			return err
		}
		if cfg.First {
			err = s.insert(first, r)
			first++
		} else {
			err = s.Register(r)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

var _ Rule = (*ExpressionRule)(nil)
