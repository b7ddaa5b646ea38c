// internal/rules/cost.go
package rules

import "github.com/solatis/formkeeper/internal/types"

/*
 * Cost model for predicate ordering.
 *
 * cost = lookup_cost + (operator_cost * kind_multiplier * 8^wildcards)
 *
 * Predicates inside a clause are evaluated cheapest first so that a clause
 * short-circuits on the cheap checks (exists, bool equality) before paying
 * for string prefix matching or wildcard fan-out.
 */

const (
	CostExists = 1
	CostEq     = 5
	CostOrder  = 7
	CostIn     = 8
	CostPrefix = 10

	CostLookupPerSegment = 16

	MultiplierBool   = 1
	MultiplierNumber = 4
	MultiplierText   = 12
	MultiplierAny    = 16
)

// PredicateCost computes the evaluation cost of one predicate.
func PredicateCost(path []types.PathSegment, op Operator, kind Kind) int {
	lookup := 0
	fanout := 1
	for _, seg := range path {
		if seg.Key != "" {
			lookup += CostLookupPerSegment
		}
		if seg.Wildcard {
			fanout *= 8
		}
	}
	return lookup + operatorCost(op)*kindMultiplier(kind)*fanout
}

func operatorCost(op Operator) int {
	switch op {
	case OpExists, OpIsNull, OpTruthy:
		return CostExists
	case OpEq, OpNeq:
		return CostEq
	case OpLt, OpLte, OpGt, OpGte:
		return CostOrder
	case OpIn:
		return CostIn
	case OpPrefix, OpSuffix:
		return CostPrefix
	default:
		return CostEq
	}
}

func kindMultiplier(kind Kind) int {
	switch kind {
	case KindBool:
		return MultiplierBool
	case KindNumber:
		return MultiplierNumber
	case KindText:
		return MultiplierText
	default:
		return MultiplierAny
	}
}
