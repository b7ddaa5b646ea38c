package graph

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solatis/formkeeper/internal/types"
)

func pass(any, types.RuleEnv) bool { return true }

func constFn(v any) func(types.State) any {
	return func(types.State) any { return v }
}

func drivingSpec() types.FormSpec {
	return types.FormSpec{
		Sections: []types.Section{
			{Elements: []types.FieldSpec{
				{Name: "age", FieldType: "number", OnChangeReset: "carModel"},
				{Name: "hasLicense", FieldType: "bool"},
			}},
			{Elements: []types.FieldSpec{
				{Name: "carModel", FieldType: "text", ExistsIf: []string{"canDrive"},
					ValidationFeedbackRules: []types.Rule{{Type: "required", Condition: pass}}},
				{Name: "insurer", FieldType: "text", ExistsIf: []string{"canDrive", "hasLicense"}},
			}},
		},
		ConditionalFields: []types.ConditionalFieldSpec{
			{Name: "canDrive", Fn: constFn(false), DependsOn: []string{"age", "hasLicense"}},
			{Name: "premium", Fn: constFn(0), DependsOn: []string{"canDrive"}},
		},
	}
}

func TestFlatten_PreservesOrder(t *testing.T) {
	fields := Flatten(drivingSpec().Sections)

	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = f.Name
	}
	assert.Equal(t, []string{"age", "hasLicense", "carModel", "insurer"}, names)
}

func TestDerivedMaps_TolerateEmptyInput(t *testing.T) {
	assert.Empty(t, Flatten(nil))
	assert.Empty(t, Flatten([]types.Section{{}, {Elements: nil}}))
	assert.Empty(t, ValidationRuleMap(nil))
	assert.Empty(t, VisibilityDependentsMap(nil, nil))
	assert.Empty(t, OnChangeResetMap(nil))

	g, err := Build(types.FormSpec{})
	require.NoError(t, err)
	assert.Empty(t, g.Fields)
	assert.Empty(t, g.Dependents("anything"))
}

func TestDerivedMaps(t *testing.T) {
	spec := drivingSpec()
	fields := Flatten(spec.Sections)

	rules := ValidationRuleMap(fields)
	assert.Len(t, rules, 1)
	assert.Len(t, rules["carModel"], 1)

	vis := VisibilityDependentsMap(fields, spec.ConditionalFields)
	assert.Equal(t, map[string][]string{"canDrive": {"carModel", "insurer"}}, vis,
		"plain-field ExistsIf entries are not reset sources")

	assert.Equal(t, map[string]string{"age": "carModel"}, OnChangeResetMap(fields))
}

func TestBuild_Dependents(t *testing.T) {
	g, err := Build(drivingSpec())
	require.NoError(t, err)

	names := func(cs []types.ConditionalFieldSpec) []string {
		out := make([]string, len(cs))
		for i, c := range cs {
			out[i] = c.Name
		}
		return out
	}

	assert.Equal(t, []string{"canDrive", "premium"}, names(g.Dependents("age")),
		"premium depends on age through canDrive")
	assert.Equal(t, []string{"premium"}, names(g.Dependents("canDrive")))
	assert.Empty(t, g.Dependents("carModel"))

	f, ok := g.Field("carModel")
	require.True(t, ok)
	assert.Equal(t, "text", f.FieldType)
	_, ok = g.Field("canDrive")
	assert.False(t, ok)
}

func TestBuild_ForwardReferenceOrdersDependenciesFirst(t *testing.T) {
	spec := types.FormSpec{
		Sections: []types.Section{{Elements: []types.FieldSpec{{Name: "age", FieldType: "number"}}}},
		ConditionalFields: []types.ConditionalFieldSpec{
			{Name: "label", Fn: constFn("minor"), DependsOn: []string{"adult"}},
			{Name: "note", Fn: constFn(""), DependsOn: []string{"age"}},
			{Name: "adult", Fn: constFn(false), DependsOn: []string{"age"}},
		},
	}
	g, err := Build(spec)
	require.NoError(t, err)

	names := func(cs []types.ConditionalFieldSpec) []string {
		out := make([]string, len(cs))
		for i, c := range cs {
			out[i] = c.Name
		}
		return out
	}

	assert.Equal(t, []string{"note", "adult", "label"}, names(g.Conditionals))
	assert.Equal(t, []string{"note", "adult", "label"}, names(g.Dependents("age")),
		"label is reached through adult even though it is declared first")
	assert.Equal(t, []string{"label"}, names(g.Dependents("adult")))
	assert.Equal(t, "label", g.Spec.ConditionalFields[0].Name, "spec keeps declaration order")
}

func TestBuild_Errors(t *testing.T) {
	tests := []struct {
		name    string
		spec    types.FormSpec
		wantErr error
		msg     string
	}{
		{
			name:    "missing field type",
			spec:    types.FormSpec{Sections: []types.Section{{Elements: []types.FieldSpec{{Name: "a"}}}}},
			wantErr: types.ErrInvalidSpec,
			msg:     "FieldType",
		},
		{
			name:    "conditional without fn",
			spec:    types.FormSpec{ConditionalFields: []types.ConditionalFieldSpec{{Name: "c"}}},
			wantErr: types.ErrInvalidSpec,
			msg:     "Fn",
		},
		{
			name: "rule without condition",
			spec: types.FormSpec{Sections: []types.Section{{Elements: []types.FieldSpec{
				{Name: "a", FieldType: "text", ValidationFeedbackRules: []types.Rule{{Type: "required"}}},
			}}}},
			wantErr: types.ErrInvalidSpec,
			msg:     "Condition",
		},
		{
			name: "duplicate field",
			spec: types.FormSpec{Sections: []types.Section{
				{Elements: []types.FieldSpec{{Name: "a", FieldType: "text"}}},
				{Elements: []types.FieldSpec{{Name: "a", FieldType: "number"}}},
			}},
			wantErr: types.ErrDuplicateField,
		},
		{
			name: "conditional shadows field",
			spec: types.FormSpec{
				Sections:          []types.Section{{Elements: []types.FieldSpec{{Name: "a", FieldType: "text"}}}},
				ConditionalFields: []types.ConditionalFieldSpec{{Name: "a", Fn: constFn(1)}},
			},
			wantErr: types.ErrDuplicateField,
		},
		{
			name: "two-node cycle",
			spec: types.FormSpec{ConditionalFields: []types.ConditionalFieldSpec{
				{Name: "a", Fn: constFn(1), DependsOn: []string{"b"}},
				{Name: "b", Fn: constFn(1), DependsOn: []string{"a"}},
			}},
			wantErr: types.ErrConditionalCycle,
			msg:     "a -> b -> a",
		},
		{
			name: "self cycle",
			spec: types.FormSpec{ConditionalFields: []types.ConditionalFieldSpec{
				{Name: "a", Fn: constFn(1), DependsOn: []string{"x", "a"}},
			}},
			wantErr: types.ErrConditionalCycle,
			msg:     "a -> a",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Build(tt.spec)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
			if tt.msg != "" {
				assert.Contains(t, err.Error(), tt.msg)
			}
		})
	}
}

func TestBuild_PresentationalMayRepeatName(t *testing.T) {
	spec := types.FormSpec{Sections: []types.Section{{Elements: []types.FieldSpec{
		{Name: "total", FieldType: "number"},
		{Name: "total", FieldType: "summary", IsPresentational: true, DependsOn: []string{"total"}},
	}}}}

	_, err := Build(spec)
	assert.NoError(t, err)
}
