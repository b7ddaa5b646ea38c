// Package hash fingerprints values for use as cache keys.
//
// Fingerprints are structural: map key order never affects the result and two
// structurally equal values always hash equal. They are not meant for
// security; collisions only cost a stale cache hit.
package hash

import (
	"fmt"

	"github.com/mitchellh/hashstructure/v2"

	"github.com/solatis/formkeeper/internal/types"
)

// Of returns the fingerprint of value as 16 lowercase hex digits.
// Values hashstructure cannot walk (funcs, channels) yield ErrUnhashable.
func Of(value any) (string, error) {
	h, err := hashstructure.Hash(normalize(value), hashstructure.FormatV2, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", types.ErrUnhashable, err)
	}
	return fmt.Sprintf("%016x", h), nil
}

// normalize maps numbers onto their canonical representation so a value
// decoded from JSON and the same value set by a Go host hash the same. State is
// unwrapped to a plain map for the same reason.
func normalize(value any) any {
	switch v := value.(type) {
	case types.State:
		return normalize(map[string]any(v))
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, inner := range v {
			out[k] = normalize(inner)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, inner := range v {
			out[i] = normalize(inner)
		}
		return out
	default:
		if n, ok := types.CanonicalNumber(v); ok {
			return n
		}
		return v
	}
}
