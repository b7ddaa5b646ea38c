// internal/rules/evaluate.go
package rules

import (
	"errors"

	"github.com/solatis/formkeeper/internal/types"
)

/*
 * Expression evaluation against entity state.
 *
 * DNF semantics: the first clause whose predicates all hold wins; inside a
 * clause the first failing predicate stops evaluation (cost ordering from
 * Compile puts cheap checks first).
 *
 * Per predicate: resolve path -> unary check, or coerce -> resolve target ->
 * compare. Missing fields and nil values defer to OnMissing; coercion
 * failures defer to OnCoerce. Unary operators (exists, is_null, truthy) look
 * at the raw value, so a missing field is simply nil for them.
 */

// Match is the outcome of evaluating an expression.
type Match struct {
	Matched bool
	Clause  int                 // index of the matching clause, -1 when unmatched
	Path    []types.PathSegment // concrete path of the clause's first predicate
	Value   any                 // value found there
}

// Evaluate checks expr against data (usually a types.State).
func Evaluate(expr *Compiled, data any) (Match, error) {
	result := Match{Clause: -1}

	for i, clause := range expr.Clauses {
		matched, path, value, err := evaluateClause(clause, data)
		if err != nil {
			return result, err
		}
		if matched {
			return Match{Matched: true, Clause: i, Path: path, Value: value}, nil
		}
	}
	return result, nil
}

func evaluateClause(clause CompiledClause, data any) (bool, []types.PathSegment, any, error) {
	var firstPath []types.PathSegment
	var firstValue any

	for i, p := range clause.Predicates {
		matched, path, value, err := evaluatePredicate(p, data)
		if err != nil {
			return false, nil, nil, err
		}
		if !matched {
			return false, nil, nil, nil
		}
		if i == 0 {
			firstPath, firstValue = path, value
		}
	}
	return true, firstPath, firstValue, nil
}

func evaluatePredicate(p CompiledPredicate, data any) (bool, []types.PathSegment, any, error) {
	resolved, err := Resolve(p.Path, data)
	if err != nil && !errors.Is(err, types.ErrFieldNotFound) {
		return false, nil, nil, err
	}

	if p.Operator.unary() {
		return Compare(p.Operator, resolved.Value, nil), resolved.ResolvedPath, resolved.Value, nil
	}

	if !resolved.Found {
		return p.OnMissing == MissingMatch, nil, nil, nil
	}

	coerced, err := Coerce(resolved.Value, p.Kind)
	if err != nil {
		return p.OnCoerce == CoerceMatch, resolved.ResolvedPath, resolved.Value, nil
	}
	if coerced.IsNull {
		return p.OnMissing == MissingMatch, resolved.ResolvedPath, nil, nil
	}

	var target any
	switch {
	case len(p.FieldRef) > 0:
		ref, err := Resolve(p.FieldRef, data)
		if err != nil || !ref.Found {
			return p.OnMissing == MissingMatch, resolved.ResolvedPath, coerced.Value, nil
		}
		refCoerced, err := Coerce(ref.Value, p.Kind)
		if err != nil || refCoerced.IsNull {
			return p.OnMissing == MissingMatch, resolved.ResolvedPath, coerced.Value, nil
		}
		target = refCoerced.Value
	case p.Operator == OpIn:
		values := make([]any, 0, len(p.Values))
		for _, v := range p.Values {
			if c, err := Coerce(v, p.Kind); err == nil && !c.IsNull {
				values = append(values, c.Value)
			}
		}
		target = values
	default:
		c, err := Coerce(p.Value, p.Kind)
		if err != nil {
			return p.OnCoerce == CoerceMatch, resolved.ResolvedPath, coerced.Value, nil
		}
		target = c.Value
	}

	return Compare(p.Operator, coerced.Value, target), resolved.ResolvedPath, coerced.Value, nil
}
