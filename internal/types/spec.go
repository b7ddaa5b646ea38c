package types

import "context"

/*
 * Form specification types.
 *
 * A FormSpec is the tree a host hands to the engine: sections of field specs
 * plus a list of conditional (derived) fields. Everything here is immutable
 * once loaded; internal/graph derives the lookup maps the controller needs.
 *
 * Struct tags drive the structural check in internal/graph (validator/v10):
 * a spec missing names, field types, conditional functions or rule
 * conditions fails at load instead of misbehaving at edit time.
 */

// FormSpec is the root of a form specification.
type FormSpec struct {
	Sections          []Section              `validate:"dive"`
	ConditionalFields []ConditionalFieldSpec `validate:"dive"`
}

// Section groups fields for rendering. Meta is passed through to the host.
type Section struct {
	Meta     map[string]any
	Elements []FieldSpec `validate:"dive"`
}

// FieldSpec declares one input (or presentational) element.
type FieldSpec struct {
	Name             string `validate:"required"`
	FieldType        string `validate:"required"`
	Required         bool
	IsPresentational bool

	// DependsOn lists the fields a presentational element displays.
	DependsOn []string
	// ExistsIf lists fields that must all be truthy for this field to render.
	ExistsIf []string
	// DisabledIf names a field whose truthiness disables this one.
	DisabledIf string
	// OnChangeReset names a field cleared whenever this one is edited.
	OnChangeReset string

	ValidationFeedbackRules []Rule      `validate:"dive"`
	AsyncEval               []AsyncSpec `validate:"dive"`

	// Props are renderer attributes the engine does not interpret.
	Props map[string]any
}

// ConditionalFieldSpec declares a derived field. Fn must be a pure function of
// the state it receives.
type ConditionalFieldSpec struct {
	Name      string          `validate:"required"`
	Fn        func(State) any `validate:"required"`
	DependsOn []string
}

// Condition reports whether value satisfies a rule. true means the rule holds.
type Condition func(value any, env RuleEnv) bool

// RuleEnv is what a condition may consult besides the field's own value.
type RuleEnv struct {
	State State
	// FormState returns the live snapshot (initial state, state, diff).
	// May be nil when a rule is evaluated outside a controller.
	FormState func() Snapshot
}

// Rule is a single validation feedback rule.
type Rule struct {
	Type          string    `validate:"required"`
	Condition     Condition `validate:"required"`
	Label         string
	CheckOnChange bool
}

// AsyncEvaluator computes a value from the sub-state of its declared
// dependencies. It runs off the controller's goroutine.
type AsyncEvaluator func(ctx context.Context, sub State) (any, error)

// AsyncSpec binds an evaluator result to a renderer prop named Key.
type AsyncSpec struct {
	Key       string         `validate:"required"`
	Evaluator AsyncEvaluator `validate:"required"`
	DependsOn []string
}
