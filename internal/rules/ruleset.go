package rules

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/rendis/cellview/pkg/schema"
)

// RuleSet is an ordered, thread-safe registry of rules.
type RuleSet struct {
	mu       sync.RWMutex
	rules    []Rule
	names    map[string]struct{}
	fallback Rule
	logger   *slog.Logger
}

// NewRuleSet creates an empty RuleSet whose fallback is the none rule.
func NewRuleSet(logger *slog.Logger) *RuleSet {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	return &RuleSet{
		names:    make(map[string]struct{}),
		fallback: NoneRule(),
		logger:   logger,
	}
}

// Default creates a RuleSet holding the built-in chain followed by the image rule.
func Default(logger *slog.Logger) *RuleSet {
	s := NewRuleSet(logger)
	for _, r := range append(Builtins(), ImageRule()) {
		// Built-in names are unique; Register cannot fail here.
		_ = s.Register(r)
	}
	return s
}

// Register appends a rule at the lowest precedence. Returns error on duplicate name.
func (s *RuleSet) Register(r Rule) error {
	return s.insert(-1, r)
}

// insert places r at index i, or appends when i is out of range.
func (s *RuleSet) insert(i int, r Rule) error {
	if r == nil {
		return schema.NewError(schema.ErrCodeValidation, "rule is nil")
	}
	name := r.Name()
	if name == "" {
		return schema.NewError(schema.ErrCodeValidation, "rule name is empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.names[name]; exists {
		return schema.NewErrorf(schema.ErrCodeConflict, "rule %q already registered", name)
	}
	s.names[name] = struct{}{}
	if i < 0 || i >= len(s.rules) {
		s.rules = append(s.rules, r)
		return nil
	}
	s.rules = append(s.rules[:i], append([]Rule{r}, s.rules[i:]...)...)
	return nil
}

// Rules returns the registered rules in precedence order.
func (s *RuleSet) Rules() []Rule {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Rule, len(s.rules))
	copy(out, s.rules)
	return out
}

// Len returns the number of registered rules.
func (s *RuleSet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rules)
}

// GetMatchedRule returns the first rule matching v. When nothing matches the
// default none rule is returned and a warning is logged, since that points at
// a gap in the chain rather than a user error.
func (s *RuleSet) GetMatchedRule(ctx context.Context, cell schema.CellRef, v any) Rule {
	r, _ := s.match(ctx, cell, v)
	return r
}

// Classify matches v and then normalizes it with the winning rule.
func (s *RuleSet) Classify(ctx context.Context, cell schema.CellRef, v any) Match {
	r, fallback := s.match(ctx, cell, v)
	return Match{
		Rule:     r,
		Kind:     r.Kind(),
		CtlKind:  schema.CtlKindFromRule(r.Kind()),
		Value:    Normalize(r, v),
		Fallback: fallback,
	}
}

func (s *RuleSet) match(ctx context.Context, cell schema.CellRef, v any) (Rule, bool) {
	for _, r := range s.Rules() {
		if r.Match(ctx, cell, v) {
			return r, false
		}
	}
	s.logger.WarnContext(ctx, "no rule matched cell value, using default",
		slog.String("cell", cell.String()),
		slog.String("value_type", typeOf(v)),
		slog.String("default", s.fallback.Name()),
	)
	return s.fallback, true
}

func typeOf(v any) string {
	return fmt.Sprintf("%T", v)
}
