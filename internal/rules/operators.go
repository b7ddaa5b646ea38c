// internal/rules/operators.go
package rules

import (
	"fmt"
	"strings"

	"github.com/solatis/formkeeper/internal/types"
)

// Operator is a comparison applied by a predicate.
type Operator int

const (
	OpUnspecified Operator = iota
	OpEq
	OpNeq
	OpLt
	OpLte
	OpGt
	OpGte
	OpPrefix
	OpSuffix
	OpIn
	OpExists
	OpIsNull
	OpTruthy
)

var operatorNames = map[string]Operator{
	"eq":      OpEq,
	"==":      OpEq,
	"neq":     OpNeq,
	"!=":      OpNeq,
	"lt":      OpLt,
	"<":       OpLt,
	"lte":     OpLte,
	"<=":      OpLte,
	"gt":      OpGt,
	">":       OpGt,
	"gte":     OpGte,
	">=":      OpGte,
	"prefix":  OpPrefix,
	"suffix":  OpSuffix,
	"in":      OpIn,
	"exists":  OpExists,
	"is_null": OpIsNull,
	"truthy":  OpTruthy,
}

// ParseOperator maps a document operator name to an Operator.
func ParseOperator(name string) (Operator, error) {
	op, ok := operatorNames[strings.ToLower(name)]
	if !ok {
		return OpUnspecified, fmt.Errorf("%q: %w", name, types.ErrInvalidOperator)
	}
	return op, nil
}

// unary operators never look at a comparison target.
func (op Operator) unary() bool {
	return op == OpExists || op == OpIsNull || op == OpTruthy
}

// Compare applies op to an already coerced value and its target.
func Compare(op Operator, value, target any) bool {
	switch op {
	case OpExists:
		return value != nil
	case OpIsNull:
		return value == nil
	case OpTruthy:
		return types.Truthy(value)
	case OpEq:
		return equal(value, target)
	case OpNeq:
		return !equal(value, target)
	case OpLt:
		c, ok := order(value, target)
		return ok && c < 0
	case OpLte:
		c, ok := order(value, target)
		return ok && c <= 0
	case OpGt:
		c, ok := order(value, target)
		return ok && c > 0
	case OpGte:
		c, ok := order(value, target)
		return ok && c >= 0
	case OpPrefix:
		vs, ok1 := value.(string)
		ps, ok2 := target.(string)
		return ok1 && ok2 && strings.HasPrefix(vs, ps)
	case OpSuffix:
		vs, ok1 := value.(string)
		ss, ok2 := target.(string)
		return ok1 && ok2 && strings.HasSuffix(vs, ss)
	case OpIn:
		set, ok := target.([]any)
		if !ok {
			return false
		}
		for _, elem := range set {
			if equal(value, elem) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// equal compares numbers numerically across int/float representations.
func equal(a, b any) bool {
	if na, ok := toFloat64(a); ok {
		if nb, ok := toFloat64(b); ok {
			return na == nb
		}
	}
	switch a.(type) {
	case string, bool, nil:
		return a == b
	default:
		// maps and slices are not comparable with ==
		return false
	}
}

// order returns the three-way comparison of two numbers or two strings.
func order(a, b any) (int, bool) {
	if na, ok := toFloat64(a); ok {
		nb, ok := toFloat64(b)
		if !ok {
			return 0, false
		}
		switch {
		case na < nb:
			return -1, true
		case na > nb:
			return 1, true
		}
		return 0, true
	}
	sa, ok1 := a.(string)
	sb, ok2 := b.(string)
	if !ok1 || !ok2 {
		return 0, false
	}
	return strings.Compare(sa, sb), true
}

func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
