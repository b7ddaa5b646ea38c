// Package diff computes structural differences between entity states.
//
// Keys are classified at the top level: added (only in after), deleted (only
// in before) and updated (in both, structurally unequal). An updated key whose
// old and new values are both maps carries the recursive flattened diff of
// those maps instead of the whole new value, so nested edits stay small.
package diff

import (
	"reflect"

	"github.com/google/go-cmp/cmp"

	"github.com/solatis/formkeeper/internal/types"
)

// exportAll lets cmp descend into host-supplied structs with unexported fields
// instead of panicking on them.
var exportAll = cmp.Exporter(func(reflect.Type) bool { return true })

// Compute returns the diff from before to after. Neither input is modified.
func Compute(before, after map[string]any) types.DiffResult {
	res := types.DiffResult{
		Diff: map[string]any{},
		Detailed: types.DetailedDiff{
			Added:   map[string]any{},
			Updated: map[string]any{},
			Deleted: map[string]any{},
		},
	}

	for k, av := range after {
		bv, ok := before[k]
		if !ok {
			res.Detailed.Added[k] = av
			res.Diff[k] = av
			continue
		}
		if Equal(bv, av) {
			continue
		}
		changed := av
		if bm, ok := asMap(bv); ok {
			if am, ok := asMap(av); ok {
				changed = Compute(bm, am).Diff
			}
		}
		res.Detailed.Updated[k] = changed
		res.Diff[k] = changed
	}

	for k := range before {
		if _, ok := after[k]; !ok {
			res.Detailed.Deleted[k] = nil
			res.Diff[k] = nil
		}
	}

	return res
}

// States is Compute for entity states.
func States(before, after types.State) types.DiffResult {
	return Compute(before, after)
}

// Equal reports deep structural equality. Numeric values compare by value
// across integer and float representations.
func Equal(a, b any) bool {
	return cmp.Equal(a, b, exportAll, numericEquality)
}

var numericEquality = cmp.FilterValues(bothNumeric, cmp.Comparer(func(a, b any) bool {
	ca, _ := types.CanonicalNumber(a)
	cb, _ := types.CanonicalNumber(b)
	return ca == cb
}))

func bothNumeric(a, b any) bool {
	_, okA := types.CanonicalNumber(a)
	_, okB := types.CanonicalNumber(b)
	return okA && okB
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case types.State:
		return m, true
	default:
		return nil, false
	}
}
