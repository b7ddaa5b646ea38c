// internal/types/expr.go
package types

/*
 * Declarative boolean expressions over entity state.
 *
 * Provides Expression, Clause, Predicate and PathSegment structures used by
 * internal/rules for compilation and evaluation. Declarative documents use
 * expressions for conditional field values and "expr" validation rules; Go
 * hosts can still write plain functions instead.
 *
 * Key types:
 *   - Expression: DNF of clauses (any clause may match)
 *   - Clause: AND group (all predicates must match)
 *   - Predicate: single comparison against a field path
 *   - PathSegment: one component of a path (key, index, or wildcard)
 */

// PathSegment represents one component of a field path.
type PathSegment struct {
	Key      string // map key (mutually exclusive with Index/Wildcard)
	Index    int    // slice index (mutually exclusive with Key/Wildcard)
	IsIndex  bool   // disambiguates Index=0 from unset
	Wildcard bool   // true = any element or key
}

// Predicate compares the value at Path with Value, Values, or the value at FieldRef.
type Predicate struct {
	Path      []PathSegment
	FieldRef  []PathSegment // mutually exclusive with Value
	Operator  string        // eq, neq, lt, lte, gt, gte, prefix, suffix, in, exists, is_null, truthy
	Kind      string        // number, text, bool, any
	Value     any
	Values    []any  // for "in"
	OnMissing string // skip (default), match, fail
	OnCoerce  string // skip (default), match
}

// Clause is an AND group.
type Clause struct {
	Predicates []Predicate
}

// Expression is a disjunction of clauses.
type Expression struct {
	Name    string
	Clauses []Clause
}
