// internal/graph/graph.go
package graph

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/solatis/formkeeper/internal/types"
)

/*
 * Dependency graph over a form specification.
 *
 * Flattens the section tree and derives the lookup maps the controller reads
 * on every edit: validation rules per field, visibility dependents per
 * conditional field, and the on-change reset target per field. Build runs all
 * of them once at load, after structural checks, and the result is read-only.
 *
 * The derivation functions accept nil slices at every level and return empty
 * maps rather than errors; only Build rejects a malformed spec.
 *
 * Conditional fields form a graph through DependsOn. Cycles are rejected with
 * the offending path; the acyclic graph is then ordered so every conditional
 * field follows the ones it reads, declaration order breaking ties. Both the
 * full fold and the per-key refold run in that order. For each edited key, the
 * conditional fields to refold are the ones depending on it directly or
 * through another conditional field.
 */

var specValidate = validator.New()

// Graph is the immutable, derived view of a FormSpec.
type Graph struct {
	Spec   types.FormSpec
	Fields []types.FieldSpec
	// Conditionals lists conditional fields in evaluation order: each one
	// after every conditional field it depends on.
	Conditionals []types.ConditionalFieldSpec

	// Rules maps field name to its validation rules; fields without rules are absent.
	Rules map[string][]types.Rule
	// Visibility maps conditional field name to the fields its value gates.
	Visibility map[string][]string
	// Resets maps field name to the field cleared when it changes.
	Resets map[string]string

	fieldIndex map[string]int
	dependents map[string][]int
}

// Flatten returns every field across all sections in section order, then
// in-section order.
func Flatten(sections []types.Section) []types.FieldSpec {
	var n int
	for _, s := range sections {
		n += len(s.Elements)
	}
	fields := make([]types.FieldSpec, 0, n)
	for _, s := range sections {
		fields = append(fields, s.Elements...)
	}
	return fields
}

// ValidationRuleMap maps each field name to its declared rules, omitting fields
// with none.
func ValidationRuleMap(fields []types.FieldSpec) map[string][]types.Rule {
	m := make(map[string][]types.Rule)
	for _, f := range fields {
		if len(f.ValidationFeedbackRules) == 0 {
			continue
		}
		m[f.Name] = f.ValidationFeedbackRules
	}
	return m
}

// VisibilityDependentsMap maps every conditional field name referenced in some
// field's ExistsIf to the names of the fields referencing it, in field order.
// ExistsIf entries naming plain fields are not reset targets and are skipped.
func VisibilityDependentsMap(fields []types.FieldSpec, conditionals []types.ConditionalFieldSpec) map[string][]string {
	isConditional := make(map[string]bool, len(conditionals))
	for _, c := range conditionals {
		isConditional[c.Name] = true
	}

	m := make(map[string][]string)
	for _, f := range fields {
		for _, cond := range f.ExistsIf {
			if !isConditional[cond] || contains(m[cond], f.Name) {
				continue
			}
			m[cond] = append(m[cond], f.Name)
		}
	}
	return m
}

// OnChangeResetMap maps each field with OnChangeReset to its reset target.
func OnChangeResetMap(fields []types.FieldSpec) map[string]string {
	m := make(map[string]string)
	for _, f := range fields {
		if f.OnChangeReset != "" {
			m[f.Name] = f.OnChangeReset
		}
	}
	return m
}

// Build checks spec and derives its graph. Errors wrap ErrInvalidSpec,
// ErrDuplicateField or ErrConditionalCycle.
func Build(spec types.FormSpec) (*Graph, error) {
	if err := specValidate.Struct(spec); err != nil {
		return nil, fmt.Errorf("%w: %s", types.ErrInvalidSpec, describeValidation(err))
	}

	fields := Flatten(spec.Sections)
	g := &Graph{
		Spec:         spec,
		Fields:       fields,
		Conditionals: spec.ConditionalFields,
		Rules:        ValidationRuleMap(fields),
		Visibility:   VisibilityDependentsMap(fields, spec.ConditionalFields),
		Resets:       OnChangeResetMap(fields),
		fieldIndex:   make(map[string]int, len(fields)),
	}

	if err := g.indexNames(); err != nil {
		return nil, err
	}
	if err := detectCycles(spec.ConditionalFields); err != nil {
		return nil, err
	}
	g.Conditionals = evaluationOrder(spec.ConditionalFields)
	g.dependents = dependentsByKey(g.Conditionals)

	return g, nil
}

// Field returns the field spec declared under name.
func (g *Graph) Field(name string) (types.FieldSpec, bool) {
	i, ok := g.fieldIndex[name]
	if !ok {
		return types.FieldSpec{}, false
	}
	return g.Fields[i], true
}

// Dependents returns the conditional fields to recompute after key changes,
// in evaluation order. The returned slice is freshly allocated.
func (g *Graph) Dependents(key string) []types.ConditionalFieldSpec {
	idx := g.dependents[key]
	out := make([]types.ConditionalFieldSpec, len(idx))
	for i, j := range idx {
		out[i] = g.Conditionals[j]
	}
	return out
}

// indexNames records field positions and rejects duplicate names. Presentational
// elements may repeat a name (they display a value rather than own it).
func (g *Graph) indexNames() error {
	for i, f := range g.Fields {
		if f.IsPresentational {
			continue
		}
		if _, dup := g.fieldIndex[f.Name]; dup {
			return fmt.Errorf("%w: field %q", types.ErrDuplicateField, f.Name)
		}
		g.fieldIndex[f.Name] = i
	}

	seen := make(map[string]bool, len(g.Conditionals))
	for _, c := range g.Conditionals {
		if seen[c.Name] {
			return fmt.Errorf("%w: conditional field %q", types.ErrDuplicateField, c.Name)
		}
		if _, clash := g.fieldIndex[c.Name]; clash {
			return fmt.Errorf("%w: conditional field %q shadows an input field", types.ErrDuplicateField, c.Name)
		}
		seen[c.Name] = true
	}
	return nil
}

// detectCycles runs a DFS over conditional-to-conditional edges and reports the
// first cycle found as "a -> b -> a". Roots are visited in declaration order so
// the reported path is stable.
func detectCycles(conditionals []types.ConditionalFieldSpec) error {
	adj := make(map[string][]string, len(conditionals))
	for _, c := range conditionals {
		adj[c.Name] = nil
	}
	for _, c := range conditionals {
		for _, dep := range c.DependsOn {
			if _, ok := adj[dep]; ok {
				adj[c.Name] = append(adj[c.Name], dep)
			}
		}
	}

	visited := make(map[string]bool)
	onStack := make(map[string]bool)
	var path []string

	var dfs func(node string) error
	dfs = func(node string) error {
		visited[node] = true
		onStack[node] = true
		path = append(path, node)

		for _, dep := range adj[node] {
			if !visited[dep] {
				if err := dfs(dep); err != nil {
					return err
				}
			} else if onStack[dep] {
				start := 0
				for i, n := range path {
					if n == dep {
						start = i
						break
					}
				}
				cycle := append(append([]string{}, path[start:]...), dep)
				return fmt.Errorf("%w: %s", types.ErrConditionalCycle, strings.Join(cycle, " -> "))
			}
		}

		path = path[:len(path)-1]
		onStack[node] = false
		return nil
	}

	for _, c := range conditionals {
		if !visited[c.Name] {
			if err := dfs(c.Name); err != nil {
				return err
			}
		}
	}
	return nil
}

// evaluationOrder sorts acyclic conditionals so each follows the conditional
// fields it depends on. Among those ready, the earliest declared goes first.
func evaluationOrder(conditionals []types.ConditionalFieldSpec) []types.ConditionalFieldSpec {
	declared := make(map[string]bool, len(conditionals))
	for _, c := range conditionals {
		declared[c.Name] = true
	}

	placed := make(map[string]bool, len(conditionals))
	ready := func(c types.ConditionalFieldSpec) bool {
		for _, dep := range c.DependsOn {
			if declared[dep] && !placed[dep] {
				return false
			}
		}
		return true
	}

	out := make([]types.ConditionalFieldSpec, 0, len(conditionals))
	for len(out) < len(conditionals) {
		for _, c := range conditionals {
			if !placed[c.Name] && ready(c) {
				out = append(out, c)
				placed[c.Name] = true
				break
			}
		}
	}
	return out
}

// dependentsByKey precomputes, for every key some conditional field depends on,
// the conditional fields a change to that key reaches. conditionals must be in
// evaluation order, so one pass suffices: once a conditional is affected its
// name joins the affected set for every conditional that reads it.
func dependentsByKey(conditionals []types.ConditionalFieldSpec) map[string][]int {
	keys := make(map[string]bool)
	for _, c := range conditionals {
		for _, dep := range c.DependsOn {
			keys[dep] = true
		}
	}

	out := make(map[string][]int, len(keys))
	for key := range keys {
		affected := map[string]bool{key: true}
		for i, c := range conditionals {
			for _, dep := range c.DependsOn {
				if affected[dep] {
					out[key] = append(out[key], i)
					affected[c.Name] = true
					break
				}
			}
		}
	}
	return out
}

func describeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
	}
	return strings.Join(parts, "; ")
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
