package types

import "errors"

// Sentinel errors for formkeeper operations.
var (
	// ErrInvalidSpec indicates a form specification failed structural checks.
	ErrInvalidSpec = errors.New("invalid form specification")

	// ErrDuplicateField indicates two fields or conditional fields share a name.
	ErrDuplicateField = errors.New("duplicate field name")

	// ErrConditionalCycle indicates conditional fields depend on each other in a loop.
	ErrConditionalCycle = errors.New("conditional field dependency cycle")

	// ErrUnknownFieldType indicates no renderer is registered for a field type.
	ErrUnknownFieldType = errors.New("no renderer registered for field type")

	// ErrNoRenderers indicates Render was called on a controller built without renderers.
	ErrNoRenderers = errors.New("controller has no renderers")

	// ErrUnknownRuleType indicates a validation rule kind is not in the registry.
	ErrUnknownRuleType = errors.New("unknown validation rule type")

	// ErrInvalidRuleParams indicates a rule kind rejected its parameters.
	ErrInvalidRuleParams = errors.New("invalid validation rule parameters")

	// ErrRulePanic indicates a validation condition panicked; the rule counts as failed.
	ErrRulePanic = errors.New("validation condition panicked")

	// ErrAsyncPanic indicates an async evaluator panicked.
	ErrAsyncPanic = errors.New("async evaluator panicked")

	// ErrUnhashable indicates a value cannot be fingerprinted.
	ErrUnhashable = errors.New("value cannot be hashed")

	// ErrClosed indicates the controller has been closed.
	ErrClosed = errors.New("controller closed")

	// ErrInvalidPath indicates a field path string could not be parsed.
	ErrInvalidPath = errors.New("invalid field path")

	// ErrPathTooDeep indicates a field path exceeds MaxPathDepth.
	ErrPathTooDeep = errors.New("field path exceeds maximum depth")

	// ErrTooManyWildcards indicates a field path exceeds MaxNestedWildcards.
	ErrTooManyWildcards = errors.New("field path has too many wildcards")

	// ErrWildcardInFieldRef indicates a wildcard in a comparison field reference.
	ErrWildcardInFieldRef = errors.New("wildcards not allowed in field_ref")

	// ErrTooManyInValues indicates an "in" predicate exceeds MaxInOperatorValues.
	ErrTooManyInValues = errors.New("in operator has too many values")

	// ErrEmptyExpression indicates an expression has no predicates.
	ErrEmptyExpression = errors.New("expression is empty")

	// ErrInvalidOperator indicates an unknown operator name.
	ErrInvalidOperator = errors.New("invalid operator")

	// ErrCoercionFailed indicates type coercion failed.
	ErrCoercionFailed = errors.New("type coercion failed")

	// ErrFieldNotFound indicates a field path could not be resolved.
	ErrFieldNotFound = errors.New("field not found")

	// ErrSpecNotFound indicates no catalog document exists under a name.
	ErrSpecNotFound = errors.New("form spec not found")

	// ErrSessionNotFound indicates an unknown or closed session ID.
	ErrSessionNotFound = errors.New("session not found")

	// ErrTooManySessions indicates the session limit was reached.
	ErrTooManySessions = errors.New("too many open sessions")
)
