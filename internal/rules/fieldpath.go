// internal/rules/fieldpath.go
package rules

import (
	"sort"
	"strconv"
	"strings"

	"github.com/solatis/formkeeper/internal/types"
)

/*
 * Field path parsing and resolution over entity state.
 *
 * Paths use dot notation with bracketed indices and "*" wildcards:
 *   age, address.city, items[0].price, items.*.price, items[*].price
 *
 * Wildcard semantics: first match wins (ANY). Map wildcards iterate keys in
 * sorted order so resolution is deterministic across runs.
 *
 * Limits (MaxPathDepth, MaxNestedWildcards) are checked both at parse time
 * and at resolution time; Resolve may be handed hand-built segments.
 */

// ResolveResult contains the resolved value and the concrete path taken.
type ResolveResult struct {
	Value        any                 // resolved value (nil if not found)
	ResolvedPath []types.PathSegment // path with wildcards replaced by actual keys/indices
	Found        bool
}

// ParsePath converts a dotted path string into segments.
func ParsePath(path string) ([]types.PathSegment, error) {
	if strings.TrimSpace(path) == "" {
		return nil, types.ErrInvalidPath
	}

	var segs []types.PathSegment
	for _, part := range strings.Split(path, ".") {
		if part == "" {
			return nil, types.ErrInvalidPath
		}
		name, rest, bracket := strings.Cut(part, "[")
		if bracket && rest == "" {
			return nil, types.ErrInvalidPath
		}
		switch {
		case name == "*":
			segs = append(segs, types.PathSegment{Wildcard: true})
		case name != "":
			segs = append(segs, types.PathSegment{Key: name})
		case rest == "":
			return nil, types.ErrInvalidPath
		}
		for rest != "" {
			idx, tail, ok := strings.Cut(rest, "]")
			if !ok {
				return nil, types.ErrInvalidPath
			}
			if idx == "*" {
				segs = append(segs, types.PathSegment{Wildcard: true})
			} else {
				n, err := strconv.Atoi(idx)
				if err != nil || n < 0 {
					return nil, types.ErrInvalidPath
				}
				segs = append(segs, types.PathSegment{Index: n, IsIndex: true})
			}
			if tail == "" {
				break
			}
			if !strings.HasPrefix(tail, "[") {
				return nil, types.ErrInvalidPath
			}
			rest = tail[1:]
		}
	}

	if err := checkPathLimits(segs); err != nil {
		return nil, err
	}
	return segs, nil
}

// FormatPath renders segments back into the dotted form accepted by ParsePath.
func FormatPath(path []types.PathSegment) string {
	var b strings.Builder
	for i, seg := range path {
		switch {
		case seg.IsIndex:
			b.WriteString("[" + strconv.Itoa(seg.Index) + "]")
		case seg.Wildcard:
			if i > 0 {
				b.WriteByte('.')
			}
			b.WriteByte('*')
		default:
			if i > 0 {
				b.WriteByte('.')
			}
			b.WriteString(seg.Key)
		}
	}
	return b.String()
}

// Resolve walks data following path.
// Returns ErrFieldNotFound when any segment is missing.
func Resolve(path []types.PathSegment, data any) (ResolveResult, error) {
	if err := checkPathLimits(path); err != nil {
		return ResolveResult{}, err
	}
	return resolveFrom(path, data, nil)
}

func checkPathLimits(path []types.PathSegment) error {
	if len(path) > types.MaxPathDepth {
		return types.ErrPathTooDeep
	}
	wildcards := 0
	for _, seg := range path {
		if seg.Wildcard {
			wildcards++
		}
	}
	if wildcards > types.MaxNestedWildcards {
		return types.ErrTooManyWildcards
	}
	return nil
}

func resolveFrom(path []types.PathSegment, current any, taken []types.PathSegment) (ResolveResult, error) {
	if len(path) == 0 {
		return ResolveResult{Value: current, ResolvedPath: taken, Found: true}, nil
	}

	seg, remaining := path[0], path[1:]

	if s, ok := current.(types.State); ok {
		current = map[string]any(s)
	}

	switch v := current.(type) {
	case map[string]any:
		if seg.Wildcard {
			keys := make([]string, 0, len(v))
			for k := range v {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				res, err := resolveFrom(remaining, v[k], appendSeg(taken, types.PathSegment{Key: k}))
				if err == nil && res.Found {
					return res, nil
				}
			}
			return ResolveResult{}, types.ErrFieldNotFound
		}
		if seg.IsIndex {
			return ResolveResult{}, types.ErrFieldNotFound
		}
		next, ok := v[seg.Key]
		if !ok {
			return ResolveResult{}, types.ErrFieldNotFound
		}
		return resolveFrom(remaining, next, appendSeg(taken, seg))

	case []any:
		if seg.Wildcard {
			for i, elem := range v {
				res, err := resolveFrom(remaining, elem, appendSeg(taken, types.PathSegment{Index: i, IsIndex: true}))
				if err == nil && res.Found {
					return res, nil
				}
			}
			return ResolveResult{}, types.ErrFieldNotFound
		}
		if !seg.IsIndex || seg.Index < 0 || seg.Index >= len(v) {
			return ResolveResult{}, types.ErrFieldNotFound
		}
		return resolveFrom(remaining, v[seg.Index], appendSeg(taken, seg))

	default:
		// nil or scalar with path remaining
		return ResolveResult{}, types.ErrFieldNotFound
	}
}

// appendSeg copies before appending so sibling wildcard branches never share
// a backing array.
func appendSeg(path []types.PathSegment, seg types.PathSegment) []types.PathSegment {
	out := make([]types.PathSegment, len(path), len(path)+1)
	copy(out, path)
	return append(out, seg)
}
