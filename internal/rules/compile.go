// internal/rules/compile.go
package rules

import (
	"fmt"
	"sort"

	"github.com/solatis/formkeeper/internal/types"
)

/*
 * Expression compilation.
 *
 * Compiles types.Expression into a Compiled form with parsed operators and
 * kinds, validated limits and cost-ordered predicates. Every problem is
 * reported here, at document load, rather than on the first edit that
 * happens to evaluate the expression.
 *
 * Ordering uses a stable sort so predicates of equal cost keep their declared
 * order and evaluation stays deterministic.
 */

// MissingPolicy decides the outcome when a path does not resolve or is nil.
type MissingPolicy int

const (
	MissingSkip MissingPolicy = iota // predicate fails
	MissingMatch
)

// CoercePolicy decides the outcome when coercion fails.
type CoercePolicy int

const (
	CoerceSkip CoercePolicy = iota // predicate fails
	CoerceMatch
)

// CompiledPredicate is a predicate ready for evaluation.
type CompiledPredicate struct {
	Path      []types.PathSegment
	FieldRef  []types.PathSegment
	Operator  Operator
	Kind      Kind
	Value     any
	Values    []any
	OnMissing MissingPolicy
	OnCoerce  CoercePolicy
	Cost      int
}

// CompiledClause is an AND group ordered by ascending cost.
type CompiledClause struct {
	Predicates []CompiledPredicate
}

// Compiled is an expression ready for evaluation.
type Compiled struct {
	Name    string
	Clauses []CompiledClause
}

// Compile validates and pre-processes expr.
func Compile(expr types.Expression) (*Compiled, error) {
	if len(expr.Clauses) == 0 {
		return nil, types.ErrEmptyExpression
	}

	compiled := &Compiled{
		Name:    expr.Name,
		Clauses: make([]CompiledClause, 0, len(expr.Clauses)),
	}

	for i, clause := range expr.Clauses {
		if len(clause.Predicates) == 0 {
			return nil, fmt.Errorf("clause %d: %w", i, types.ErrEmptyExpression)
		}
		cc := CompiledClause{Predicates: make([]CompiledPredicate, 0, len(clause.Predicates))}
		for j, p := range clause.Predicates {
			cp, err := compilePredicate(p)
			if err != nil {
				return nil, fmt.Errorf("clause %d predicate %d: %w", i, j, err)
			}
			cc.Predicates = append(cc.Predicates, cp)
		}
		sort.SliceStable(cc.Predicates, func(a, b int) bool {
			return cc.Predicates[a].Cost < cc.Predicates[b].Cost
		})
		compiled.Clauses = append(compiled.Clauses, cc)
	}

	return compiled, nil
}

func compilePredicate(p types.Predicate) (CompiledPredicate, error) {
	if len(p.Path) == 0 {
		return CompiledPredicate{}, types.ErrInvalidPath
	}
	if err := checkPathLimits(p.Path); err != nil {
		return CompiledPredicate{}, err
	}
	for _, seg := range p.FieldRef {
		if seg.Wildcard {
			return CompiledPredicate{}, types.ErrWildcardInFieldRef
		}
	}

	op, err := ParseOperator(p.Operator)
	if err != nil {
		return CompiledPredicate{}, err
	}
	kind, err := ParseKind(p.Kind)
	if err != nil {
		return CompiledPredicate{}, err
	}
	if op == OpIn && len(p.Values) > types.MaxInOperatorValues {
		return CompiledPredicate{}, types.ErrTooManyInValues
	}

	onMissing := MissingSkip
	switch p.OnMissing {
	case "", "skip", "fail":
	case "match":
		onMissing = MissingMatch
	default:
		return CompiledPredicate{}, fmt.Errorf("on_missing %q: %w", p.OnMissing, types.ErrInvalidOperator)
	}
	onCoerce := CoerceSkip
	switch p.OnCoerce {
	case "", "skip":
	case "match":
		onCoerce = CoerceMatch
	default:
		return CompiledPredicate{}, fmt.Errorf("on_coerce %q: %w", p.OnCoerce, types.ErrInvalidOperator)
	}

	return CompiledPredicate{
		Path:      p.Path,
		FieldRef:  p.FieldRef,
		Operator:  op,
		Kind:      kind,
		Value:     p.Value,
		Values:    p.Values,
		OnMissing: onMissing,
		OnCoerce:  onCoerce,
		Cost:      PredicateCost(p.Path, op, kind),
	}, nil
}
