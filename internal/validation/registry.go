// internal/validation/registry.go
package validation

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/solatis/formkeeper/internal/diff"
	"github.com/solatis/formkeeper/internal/rules"
	"github.com/solatis/formkeeper/internal/types"
)

/*
 * Rule-kind registry.
 *
 * Declarative documents name rules by kind ("required", "min", ...) and
 * parameters. A Factory turns the parameters into a Condition once, at load,
 * so malformed parameters surface as ErrInvalidRuleParams before any edit.
 *
 * Built-in kinds treat the absent value as passing except for "required" and
 * "requiredIfChanged": presence is their job alone, so an optional empty
 * field with a "min" rule is still submittable.
 */

// Params are the raw parameters of a declared rule.
type Params map[string]any

// Factory builds a condition from rule parameters.
type Factory func(params Params) (types.Condition, error)

// Registry resolves rule kinds to factories.
type Registry interface {
	Lookup(kind string) (Factory, bool)
}

// MapRegistry is a Registry backed by a map. The zero value is not usable;
// use NewRegistry or make one.
type MapRegistry map[string]Factory

// Lookup implements Registry.
func (r MapRegistry) Lookup(kind string) (Factory, bool) {
	f, ok := r[kind]
	return f, ok
}

// Register adds or replaces the factory for kind.
func (r MapRegistry) Register(kind string, f Factory) {
	r[kind] = f
}

// NewRegistry returns a registry holding the built-in kinds. The "expr" kind
// compiles its "expression" parameter (a types.Expression) with engine.
func NewRegistry(engine *rules.Engine) MapRegistry {
	r := MapRegistry{
		"required":          requiredFactory,
		"requiredIfChanged": requiredIfChangedFactory,
		"min":               boundFactory("min", func(v, b float64) bool { return v >= b }),
		"max":               boundFactory("max", func(v, b float64) bool { return v <= b }),
		"minLength":         lengthFactory("minLength", func(n, b int) bool { return n >= b }),
		"maxLength":         lengthFactory("maxLength", func(n, b int) bool { return n <= b }),
		"pattern":           patternFactory,
		"oneOf":             oneOfFactory,
	}
	if engine != nil {
		r["expr"] = exprFactory(engine)
	}
	return r
}

// Resolve builds a Rule of the given kind through reg.
func Resolve(reg Registry, kind string, params Params, label string, checkOnChange bool) (types.Rule, error) {
	factory, ok := reg.Lookup(kind)
	if !ok {
		return types.Rule{}, fmt.Errorf("%q: %w", kind, types.ErrUnknownRuleType)
	}
	cond, err := factory(params)
	if err != nil {
		return types.Rule{}, fmt.Errorf("rule %q: %w", kind, err)
	}
	return types.Rule{
		Type:          kind,
		Condition:     cond,
		Label:         label,
		CheckOnChange: checkOnChange,
	}, nil
}

// Present reports whether v counts as filled in: non-nil, not a blank string
// and not an empty collection. false is a present value.
func Present(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case string:
		return strings.TrimSpace(val) != ""
	case []any:
		return len(val) > 0
	case map[string]any:
		return len(val) > 0
	default:
		return true
	}
}

func requiredFactory(Params) (types.Condition, error) {
	return func(value any, _ types.RuleEnv) bool {
		return Present(value)
	}, nil
}

// requiredIfChanged requires a value only once the field differs from its
// initial value. Without a form-state accessor nothing is known to have
// changed and the rule holds.
func requiredIfChangedFactory(params Params) (types.Condition, error) {
	field, err := stringParam(params, "field")
	if err != nil {
		return nil, err
	}
	return func(value any, env types.RuleEnv) bool {
		if env.FormState == nil {
			return true
		}
		snap := env.FormState()
		if diff.Equal(snap.InitialState[field], snap.State[field]) {
			return true
		}
		return Present(value)
	}, nil
}

func boundFactory(kind string, cmp func(v, bound float64) bool) Factory {
	return func(params Params) (types.Condition, error) {
		bound, err := numberParam(params, "value")
		if err != nil {
			return nil, fmt.Errorf("%s: %w", kind, err)
		}
		return func(value any, _ types.RuleEnv) bool {
			c, err := rules.Coerce(value, rules.KindNumber)
			if err != nil {
				return false
			}
			if c.IsNull {
				return true
			}
			return cmp(c.Value.(float64), bound)
		}, nil
	}
}

func lengthFactory(kind string, cmp func(n, bound int) bool) Factory {
	return func(params Params) (types.Condition, error) {
		f, err := numberParam(params, "value")
		if err != nil {
			return nil, fmt.Errorf("%s: %w", kind, err)
		}
		if f < 0 || f != float64(int(f)) {
			return nil, fmt.Errorf("%s: value must be a non-negative integer: %w", kind, types.ErrInvalidRuleParams)
		}
		bound := int(f)
		return func(value any, _ types.RuleEnv) bool {
			switch v := value.(type) {
			case nil:
				return true
			case string:
				return cmp(utf8.RuneCountInString(v), bound)
			case []any:
				return cmp(len(v), bound)
			default:
				return false
			}
		}, nil
	}
}

func patternFactory(params Params) (types.Condition, error) {
	expr, err := stringParam(params, "value")
	if err != nil {
		return nil, err
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("pattern %q: %v: %w", expr, err, types.ErrInvalidRuleParams)
	}
	return func(value any, _ types.RuleEnv) bool {
		c, _ := rules.Coerce(value, rules.KindText)
		if c.IsNull {
			return true
		}
		return re.MatchString(c.Value.(string))
	}, nil
}

func oneOfFactory(params Params) (types.Condition, error) {
	values, ok := params["values"].([]any)
	if !ok || len(values) == 0 {
		return nil, fmt.Errorf("oneOf: values must be a non-empty list: %w", types.ErrInvalidRuleParams)
	}
	if len(values) > types.MaxInOperatorValues {
		return nil, fmt.Errorf("oneOf: %w", types.ErrTooManyInValues)
	}
	return func(value any, _ types.RuleEnv) bool {
		if value == nil {
			return true
		}
		return rules.Compare(rules.OpIn, value, values)
	}, nil
}

func exprFactory(engine *rules.Engine) Factory {
	return func(params Params) (types.Condition, error) {
		expr, ok := params["expression"].(types.Expression)
		if !ok {
			return nil, fmt.Errorf("expr: expression parameter missing: %w", types.ErrInvalidRuleParams)
		}
		match, err := engine.ValueCondition(expr)
		if err != nil {
			return nil, fmt.Errorf("expr: %v: %w", err, types.ErrInvalidRuleParams)
		}
		return func(value any, env types.RuleEnv) bool {
			return match(value, env.State)
		}, nil
	}
}

func stringParam(params Params, key string) (string, error) {
	s, ok := params[key].(string)
	if !ok || s == "" {
		return "", fmt.Errorf("parameter %q must be a non-empty string: %w", key, types.ErrInvalidRuleParams)
	}
	return s, nil
}

func numberParam(params Params, key string) (float64, error) {
	raw, ok := params[key]
	if !ok {
		return 0, fmt.Errorf("parameter %q missing: %w", key, types.ErrInvalidRuleParams)
	}
	c, err := rules.Coerce(raw, rules.KindNumber)
	if err != nil || c.IsNull {
		return 0, fmt.Errorf("parameter %q must be a number: %w", key, types.ErrInvalidRuleParams)
	}
	return c.Value.(float64), nil
}
