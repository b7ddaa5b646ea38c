package validation

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solatis/formkeeper/internal/rules"
	"github.com/solatis/formkeeper/internal/types"
)

func rule(kind string, ok bool, checkOnChange bool) types.Rule {
	return types.Rule{
		Type:          kind,
		Label:         kind + " label",
		CheckOnChange: checkOnChange,
		Condition:     func(any, types.RuleEnv) bool { return ok },
	}
}

func TestEvaluateField(t *testing.T) {
	tests := []struct {
		name     string
		rules    []types.Rule
		onChange bool
		want     types.Feedback
	}{
		{
			name: "no rules pass",
			want: types.Pass,
		},
		{
			name:  "all rules pass",
			rules: []types.Rule{rule("a", true, false), rule("b", true, true)},
			want:  types.Pass,
		},
		{
			name:  "first failing rule wins",
			rules: []types.Rule{rule("a", true, false), rule("b", false, false), rule("c", false, false)},
			want:  types.Feedback{Type: "b", Label: "b label"},
		},
		{
			name:     "onChange skips unmarked rules",
			rules:    []types.Rule{rule("a", false, false), rule("b", true, true)},
			onChange: true,
			want:     types.Pass,
		},
		{
			name:     "onChange still runs marked rules",
			rules:    []types.Rule{rule("a", false, false), rule("b", false, true)},
			onChange: true,
			want:     types.Feedback{Type: "b", Label: "b label"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EvaluateField("f", tt.rules, types.RuleEnv{State: types.State{"f": 1}}, tt.onChange)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEvaluateField_PassesValueAndState(t *testing.T) {
	var gotValue any
	var gotState types.State
	r := types.Rule{Type: "spy", Condition: func(v any, env types.RuleEnv) bool {
		gotValue, gotState = v, env.State
		return true
	}}

	state := types.State{"f": "x", "g": 2}
	EvaluateField("f", []types.Rule{r}, types.RuleEnv{State: state}, false)

	assert.Equal(t, "x", gotValue)
	assert.Equal(t, state, gotState)
}

func TestEvaluateField_PanicFailsClosed(t *testing.T) {
	r := types.Rule{Type: "boom", Label: "broken", Condition: func(any, types.RuleEnv) bool {
		panic("nil map")
	}}

	var fb types.Feedback
	require.NotPanics(t, func() {
		fb = EvaluateField("f", []types.Rule{r}, types.RuleEnv{}, false)
	})
	assert.False(t, fb.Valid)
	assert.Equal(t, "boom", fb.Type)
	assert.True(t, errors.Is(fb.Err, types.ErrRulePanic))
}

func TestCanSubmit(t *testing.T) {
	fields := []types.FieldSpec{{Name: "a"}, {Name: "b"}, {Name: "c"}}
	state := types.State{}

	assert.True(t, CanSubmit(state, nil, fields, nil))
	assert.True(t, CanSubmit(state, nil, fields, map[string][]types.Rule{
		"a": {rule("x", true, false)},
	}))
	assert.False(t, CanSubmit(state, nil, fields, map[string][]types.Rule{
		"a": {rule("x", true, false)},
		"c": {rule("y", false, false)},
	}))
	// CanSubmit ignores the CheckOnChange filter.
	assert.False(t, CanSubmit(state, nil, fields, map[string][]types.Rule{
		"b": {rule("x", false, true)},
	}))
}

func TestCanSubmit_ThreadsFormState(t *testing.T) {
	calls := 0
	accessor := func() types.Snapshot {
		calls++
		return types.Snapshot{State: types.State{"a": 1}}
	}
	r := types.Rule{Type: "spy", Condition: func(_ any, env types.RuleEnv) bool {
		return env.FormState != nil && env.FormState().State["a"] == 1
	}}

	ok := CanSubmit(types.State{}, accessor, []types.FieldSpec{{Name: "a"}}, map[string][]types.Rule{"a": {r}})
	assert.True(t, ok)
	assert.Equal(t, 1, calls)
}

func TestFailingFields(t *testing.T) {
	fields := []types.FieldSpec{{Name: "a"}, {Name: "b"}}
	failing := FailingFields(types.State{}, nil, fields, map[string][]types.Rule{
		"a": {rule("x", true, false)},
		"b": {rule("y", false, false)},
	})
	assert.Equal(t, map[string]types.Feedback{"b": {Type: "y", Label: "y label"}}, failing)
}

func TestRegistry_BuiltIns(t *testing.T) {
	reg := NewRegistry(rules.NewEngine(nil))

	tests := []struct {
		kind   string
		params Params
		value  any
		want   bool
	}{
		{"required", nil, nil, false},
		{"required", nil, "  ", false},
		{"required", nil, false, true},
		{"required", nil, "x", true},
		{"required", nil, []any{}, false},

		{"min", Params{"value": 18}, 17, false},
		{"min", Params{"value": 18}, 18.0, true},
		{"min", Params{"value": 18}, "21", true},
		{"min", Params{"value": 18}, "abc", false},
		{"min", Params{"value": 18}, nil, true},
		{"max", Params{"value": "10"}, 11, false},
		{"max", Params{"value": 10}, 10, true},

		{"minLength", Params{"value": 3}, "héé", true},
		{"minLength", Params{"value": 3}, "hé", false},
		{"maxLength", Params{"value": 2}, []any{1, 2, 3}, false},
		{"maxLength", Params{"value": 2}, nil, true},

		{"pattern", Params{"value": `^\d{5}$`}, "22100", true},
		{"pattern", Params{"value": `^\d{5}$`}, "2210", false},
		{"pattern", Params{"value": `^\d{5}$`}, 22100, true},

		{"oneOf", Params{"values": []any{"a", "b"}}, "b", true},
		{"oneOf", Params{"values": []any{"a", "b"}}, "c", false},
		{"oneOf", Params{"values": []any{1, 2}}, 2.0, true},
	}

	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			r, err := Resolve(reg, tt.kind, tt.params, "", false)
			require.NoError(t, err)
			got := r.Condition(tt.value, types.RuleEnv{})
			assert.Equal(t, tt.want, got, "%s(%v) on %v", tt.kind, tt.params, tt.value)
		})
	}
}

func TestRegistry_Expr(t *testing.T) {
	reg := NewRegistry(rules.NewEngine(nil))
	expr := types.Expression{Name: "adult", Clauses: []types.Clause{{Predicates: []types.Predicate{{
		Path:     []types.PathSegment{{Key: rules.ValueKey}},
		Operator: "gte",
		Kind:     "number",
		Value:    18,
	}}}}}

	r, err := Resolve(reg, "expr", Params{"expression": expr}, "too young", true)
	require.NoError(t, err)
	assert.Equal(t, "expr", r.Type)
	assert.True(t, r.CheckOnChange)
	assert.True(t, r.Condition(20, types.RuleEnv{State: types.State{}}))
	assert.False(t, r.Condition(12, types.RuleEnv{State: types.State{}}))
}

func TestRegistry_RequiredIfChanged(t *testing.T) {
	reg := NewRegistry(nil)
	r, err := Resolve(reg, "requiredIfChanged", Params{"field": "email"}, "", false)
	require.NoError(t, err)

	snap := func(initial, current any) func() types.Snapshot {
		return func() types.Snapshot {
			return types.Snapshot{
				InitialState: types.State{"email": initial},
				State:        types.State{"email": current},
			}
		}
	}

	assert.True(t, r.Condition(nil, types.RuleEnv{}), "no accessor means nothing changed")
	assert.True(t, r.Condition(nil, types.RuleEnv{FormState: snap(nil, nil)}))
	assert.False(t, r.Condition("", types.RuleEnv{FormState: snap("a@b", "")}))
	assert.True(t, r.Condition("c@d", types.RuleEnv{FormState: snap("a@b", "c@d")}))
}

func TestResolve_Errors(t *testing.T) {
	reg := NewRegistry(nil)

	tests := []struct {
		kind    string
		params  Params
		wantErr error
	}{
		{"nope", nil, types.ErrUnknownRuleType},
		{"expr", nil, types.ErrUnknownRuleType},
		{"min", nil, types.ErrInvalidRuleParams},
		{"min", Params{"value": "x"}, types.ErrInvalidRuleParams},
		{"minLength", Params{"value": 1.5}, types.ErrInvalidRuleParams},
		{"pattern", Params{"value": "("}, types.ErrInvalidRuleParams},
		{"oneOf", Params{"values": []any{}}, types.ErrInvalidRuleParams},
		{"requiredIfChanged", nil, types.ErrInvalidRuleParams},
	}

	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			_, err := Resolve(reg, tt.kind, tt.params, "", false)
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
		})
	}
}

func TestMapRegistry_Register(t *testing.T) {
	reg := NewRegistry(nil)
	reg.Register("even", func(Params) (types.Condition, error) {
		return func(v any, _ types.RuleEnv) bool {
			n, ok := v.(int)
			return ok && n%2 == 0
		}, nil
	})

	r, err := Resolve(reg, "even", nil, "", false)
	require.NoError(t, err)
	assert.True(t, r.Condition(4, types.RuleEnv{}))
	assert.False(t, r.Condition(3, types.RuleEnv{}))
}
