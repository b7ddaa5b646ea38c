package rules

import (
	"fmt"
	"log/slog"

	"github.com/solatis/formkeeper/internal/types"
)

// Engine compiles declarative expressions into state predicates.
// Evaluation errors are logged and count as "no match"; compile errors are
// returned so bad documents fail at load.
type Engine struct {
	logger *slog.Logger
}

// NewEngine creates an engine logging through logger (slog.Default when nil).
func NewEngine(logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{logger: logger}
}

// Predicate compiles expr into a function reporting whether state matches.
func (e *Engine) Predicate(expr types.Expression) (func(types.State) bool, error) {
	compiled, err := Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("compile %q: %w", expr.Name, err)
	}
	return func(state types.State) bool {
		m, err := Evaluate(compiled, state)
		if err != nil {
			e.logger.Warn("expression evaluation failed",
				"expression", compiled.Name,
				"error", err)
			return false
		}
		return m.Matched
	}, nil
}

// ValueCondition compiles expr into a predicate over a single field value,
// exposed to the expression under the key "$value" next to the whole state.
func (e *Engine) ValueCondition(expr types.Expression) (func(value any, state types.State) bool, error) {
	match, err := e.Predicate(expr)
	if err != nil {
		return nil, err
	}
	return func(value any, state types.State) bool {
		return match(state.With(map[string]any{ValueKey: value}))
	}, nil
}

// ValueKey is the state key under which ValueCondition exposes the field value.
const ValueKey = "$value"
