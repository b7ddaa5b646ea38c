// internal/rules/coercion.go
package rules

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/solatis/formkeeper/internal/types"
)

/*
 * Value coercion ahead of comparison.
 *
 * Form inputs arrive as whatever the renderer produced: numbers typed into a
 * text box come in as strings, JSON-decoded numbers as float64, Go hosts may
 * pass ints. Coercion normalizes the value to the predicate's kind.
 *
 * Kinds:
 *   - number: strict, numeric strings parse, booleans rejected
 *   - text:   lenient, everything formats to a string
 *   - bool:   strict, only real booleans
 *   - any:    value passes through untouched
 *
 * A nil value is not a coercion failure: it is reported as IsNull and handled
 * by the predicate's on-missing policy instead.
 */

// Kind selects how a value is coerced before comparison.
type Kind int

const (
	KindAny Kind = iota
	KindNumber
	KindText
	KindBool
)

// ParseKind maps a document kind name to a Kind. Empty means any.
func ParseKind(name string) (Kind, error) {
	switch strings.ToLower(name) {
	case "", "any":
		return KindAny, nil
	case "number", "numeric":
		return KindNumber, nil
	case "text", "string":
		return KindText, nil
	case "bool", "boolean":
		return KindBool, nil
	default:
		return KindAny, fmt.Errorf("unknown kind %q: %w", name, types.ErrInvalidOperator)
	}
}

// Coerced holds a coerced value or marks it null.
type Coerced struct {
	Value  any
	IsNull bool
}

// Coerce converts value to kind.
// Returns ErrCoercionFailed when the conversion is impossible.
func Coerce(value any, kind Kind) (Coerced, error) {
	if value == nil {
		return Coerced{IsNull: true}, nil
	}

	switch kind {
	case KindNumber:
		return toNumber(value)
	case KindText:
		return toText(value), nil
	case KindBool:
		if b, ok := value.(bool); ok {
			return Coerced{Value: b}, nil
		}
		return Coerced{}, types.ErrCoercionFailed
	case KindAny:
		return Coerced{Value: value}, nil
	default:
		return Coerced{}, types.ErrCoercionFailed
	}
}

func toNumber(value any) (Coerced, error) {
	if f, ok := toFloat64(value); ok {
		return Coerced{Value: f}, nil
	}
	s, ok := value.(string)
	if !ok {
		return Coerced{}, types.ErrCoercionFailed
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return Coerced{}, types.ErrCoercionFailed
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return Coerced{}, types.ErrCoercionFailed
	}
	return Coerced{Value: f}, nil
}

func toText(value any) Coerced {
	switch v := value.(type) {
	case string:
		return Coerced{Value: v}
	case float64:
		return Coerced{Value: strconv.FormatFloat(v, 'f', -1, 64)}
	case int:
		return Coerced{Value: strconv.Itoa(v)}
	case int64:
		return Coerced{Value: strconv.FormatInt(v, 10)}
	case bool:
		return Coerced{Value: strconv.FormatBool(v)}
	default:
		return Coerced{Value: fmt.Sprintf("%v", v)}
	}
}
