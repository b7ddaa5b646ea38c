// internal/validation/validation.go
package validation

import (
	"fmt"

	"github.com/solatis/formkeeper/internal/types"
)

/*
 * Field validation and form submittability.
 *
 * EvaluateField walks a field's rules in declared order and reports the first
 * one whose condition does not hold. CanSubmit runs the full rule set of every
 * field and is true only when all of them pass.
 *
 * Fail-closed: a condition that panics counts as a failing rule. The feedback
 * carries ErrRulePanic (wrapping the recovered value) so the controller can log
 * it, and the field is reported invalid instead of taking the controller down.
 */

// EvaluateField applies rules to env.State[field]. With onlyIfCheckOnChange,
// rules not marked CheckOnChange are skipped.
func EvaluateField(field string, rules []types.Rule, env types.RuleEnv, onlyIfCheckOnChange bool) types.Feedback {
	value := env.State[field]
	for _, rule := range rules {
		if onlyIfCheckOnChange && !rule.CheckOnChange {
			continue
		}
		ok, err := apply(rule, value, env)
		if ok {
			continue
		}
		return types.Feedback{
			Valid: false,
			Type:  rule.Type,
			Label: rule.Label,
			Err:   err,
		}
	}
	return types.Pass
}

// CanSubmit reports whether every field with rules passes full evaluation.
// formState is threaded into each rule's environment; it may be nil.
func CanSubmit(state types.State, formState func() types.Snapshot, fields []types.FieldSpec, ruleMap map[string][]types.Rule) bool {
	env := types.RuleEnv{State: state, FormState: formState}
	for _, f := range fields {
		rules, ok := ruleMap[f.Name]
		if !ok {
			continue
		}
		if !EvaluateField(f.Name, rules, env, false).Valid {
			return false
		}
	}
	return true
}

// FailingFields returns full-evaluation feedback for every field that fails,
// keyed by field name.
func FailingFields(state types.State, formState func() types.Snapshot, fields []types.FieldSpec, ruleMap map[string][]types.Rule) map[string]types.Feedback {
	env := types.RuleEnv{State: state, FormState: formState}
	out := make(map[string]types.Feedback)
	for _, f := range fields {
		rules, ok := ruleMap[f.Name]
		if !ok {
			continue
		}
		if fb := EvaluateField(f.Name, rules, env, false); !fb.Valid {
			out[f.Name] = fb
		}
	}
	return out
}

func apply(rule types.Rule, value any, env types.RuleEnv) (ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			err = fmt.Errorf("%w: rule %q: %v", types.ErrRulePanic, rule.Type, r)
		}
	}()
	return rule.Condition(value, env), nil
}
