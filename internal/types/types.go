// Package types provides domain models shared across formkeeper components.
//
// Zero-dependency design: types.go, spec.go, expr.go and errors.go use only the
// standard library so that hosts embedding the engine pull in nothing else.
// ID utilities in ids.go import uuid but are isolated from the engine core.
package types

// State maps field names to their current values, computed conditional fields
// included. A State is treated as immutable: every transition goes through
// With/Without and produces a new map, so snapshots handed out earlier stay valid.
// A nil value is the "absent" value.
type State map[string]any

// With returns a copy of s with updates applied on top.
func (s State) With(updates map[string]any) State {
	next := make(State, len(s)+len(updates))
	for k, v := range s {
		next[k] = v
	}
	for k, v := range updates {
		next[k] = v
	}
	return next
}

// Without returns a copy of s with key removed.
func (s State) Without(key string) State {
	next := make(State, len(s))
	for k, v := range s {
		if k != key {
			next[k] = v
		}
	}
	return next
}

// Has reports whether key is present, even when its value is nil.
func (s State) Has(key string) bool {
	_, ok := s[key]
	return ok
}

// Pick returns the sub-state restricted to keys. Missing keys map to nil so the
// result has the same shape regardless of which keys are currently set.
func (s State) Pick(keys []string) State {
	sub := make(State, len(keys))
	for _, k := range keys {
		sub[k] = s[k]
	}
	return sub
}

// Clone deep-copies s, descending into nested maps and slices.
// Used at mount so the initial state cannot be aliased by the caller.
func (s State) Clone() State {
	if s == nil {
		return State{}
	}
	out := make(State, len(s))
	for k, v := range s {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(val))
		for k, inner := range val {
			m[k] = cloneValue(inner)
		}
		return m
	case State:
		return val.Clone()
	case []any:
		arr := make([]any, len(val))
		for i, inner := range val {
			arr[i] = cloneValue(inner)
		}
		return arr
	default:
		return v
	}
}

// DetailedDiff splits a diff into keys added, updated and deleted.
type DetailedDiff struct {
	Added   map[string]any `json:"added"`
	Updated map[string]any `json:"updated"`
	Deleted map[string]any `json:"deleted"`
}

// DiffResult is the structural difference between two states.
// Diff is the flattened union of the three detailed maps.
type DiffResult struct {
	Diff     map[string]any `json:"diff"`
	Detailed DetailedDiff   `json:"detailedDiff"`
}

// Empty reports whether the two compared states were structurally equal.
func (d DiffResult) Empty() bool {
	return len(d.Diff) == 0
}

// Snapshot is the read-only view handed to external observers.
type Snapshot struct {
	InitialState State      `json:"initialState"`
	State        State      `json:"state"`
	Diff         DiffResult `json:"diff"`
}

// Feedback is the outcome of evaluating a field's validation rules.
// Type and Label identify the first failing rule; both are empty on success.
type Feedback struct {
	Valid bool   `json:"valid"`
	Type  string `json:"type,omitempty"`
	Label string `json:"label,omitempty"`
	Err   error  `json:"-"`
}

// Pass is the feedback for a field whose applicable rules all hold.
var Pass = Feedback{Valid: true}

// Resource limits enforced by the expression compiler.
const (
	// MaxPathDepth bounds the number of segments in a field path.
	MaxPathDepth = 16

	// MaxNestedWildcards bounds wildcard fan-out within a single path.
	MaxNestedWildcards = 2

	// MaxInOperatorValues bounds the membership list of an "in" predicate.
	MaxInOperatorValues = 64
)

// Truthy reports whether v counts as "set" for visibility and disabled checks:
// nil, false, 0, "" and empty collections are falsy, everything else truthy.
func Truthy(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	case float64:
		return val != 0
	case float32:
		return val != 0
	case int:
		return val != 0
	case int64:
		return val != 0
	case string:
		return val != ""
	case []any:
		return len(val) > 0
	case map[string]any:
		return len(val) > 0
	case State:
		return len(val) > 0
	default:
		return true
	}
}
