package specdoc

import (
	"fmt"
	"log/slog"

	"github.com/solatis/formkeeper/internal/rules"
	"github.com/solatis/formkeeper/internal/types"
	"github.com/solatis/formkeeper/internal/validation"
)

// Binder turns documents into FormSpecs.
type Binder struct {
	engine     *rules.Engine
	registry   validation.Registry
	evaluators map[string]types.AsyncEvaluator
}

// NewBinder creates a binder. A nil registry means the built-in rule kinds;
// evaluators are looked up by the name an async entry declares.
func NewBinder(logger *slog.Logger, registry validation.Registry, evaluators map[string]types.AsyncEvaluator) *Binder {
	engine := rules.NewEngine(logger)
	if registry == nil {
		registry = validation.NewRegistry(engine)
	}
	return &Binder{engine: engine, registry: registry, evaluators: evaluators}
}

// Load parses and binds data in one step.
func (b *Binder) Load(data []byte) (types.FormSpec, error) {
	doc, err := Parse(data)
	if err != nil {
		return types.FormSpec{}, err
	}
	return b.Bind(doc)
}

// Bind resolves rule kinds and evaluators and compiles expressions. Errors
// name the element or conditional field they concern.
func (b *Binder) Bind(doc *Document) (types.FormSpec, error) {
	spec := types.FormSpec{
		Sections: make([]types.Section, 0, len(doc.Sections)),
	}

	for _, sd := range doc.Sections {
		section := types.Section{Meta: sd.Meta, Elements: make([]types.FieldSpec, 0, len(sd.Elements))}
		for _, ed := range sd.Elements {
			field, err := b.bindElement(ed)
			if err != nil {
				return types.FormSpec{}, fmt.Errorf("element %q: %w", ed.Name, err)
			}
			section.Elements = append(section.Elements, field)
		}
		spec.Sections = append(spec.Sections, section)
	}

	for _, cd := range doc.ConditionalFields {
		cf, err := b.bindConditional(cd)
		if err != nil {
			return types.FormSpec{}, fmt.Errorf("conditional field %q: %w", cd.Name, err)
		}
		spec.ConditionalFields = append(spec.ConditionalFields, cf)
	}

	return spec, nil
}

func (b *Binder) bindElement(ed ElementDoc) (types.FieldSpec, error) {
	field := types.FieldSpec{
		Name:             ed.Name,
		FieldType:        ed.FieldType,
		Required:         ed.Required,
		IsPresentational: ed.IsPresentational,
		DependsOn:        ed.DependsOn,
		ExistsIf:         ed.ExistsIf,
		DisabledIf:       ed.DisabledIf,
		OnChangeReset:    ed.OnChangeReset,
		Props:            ed.Props,
	}

	for i, rd := range ed.Rules {
		rule, err := b.bindRule(ed.Name, i, rd)
		if err != nil {
			return types.FieldSpec{}, err
		}
		field.ValidationFeedbackRules = append(field.ValidationFeedbackRules, rule)
	}

	for _, ad := range ed.Async {
		eval, ok := b.evaluators[ad.Evaluator]
		if !ok {
			return types.FieldSpec{}, fmt.Errorf("async %q: evaluator %q not registered: %w",
				ad.Key, ad.Evaluator, types.ErrInvalidSpec)
		}
		field.AsyncEval = append(field.AsyncEval, types.AsyncSpec{
			Key:       ad.Key,
			Evaluator: eval,
			DependsOn: ad.DependsOn,
		})
	}

	return field, nil
}

func (b *Binder) bindRule(field string, i int, rd RuleDoc) (types.Rule, error) {
	params := make(validation.Params, len(rd.Params)+1)
	for k, v := range rd.Params {
		params[k] = v
	}
	if rd.When != nil {
		if rd.Type != "expr" {
			return types.Rule{}, fmt.Errorf("%w: %s.rules[%d]: when is only valid on expr rules, not %q",
				types.ErrInvalidRuleParams, field, i, rd.Type)
		}
		expr, err := rd.When.Expression(fmt.Sprintf("%s.rules[%d]", field, i))
		if err != nil {
			return types.Rule{}, err
		}
		params["expression"] = expr
	}
	if _, ok := params["field"]; !ok {
		params["field"] = field
	}
	return validation.Resolve(b.registry, rd.Type, params, rd.Label, rd.CheckOnChange)
}

func (b *Binder) bindConditional(cd ConditionalDoc) (types.ConditionalFieldSpec, error) {
	expr, err := cd.When.Expression(cd.Name)
	if err != nil {
		return types.ConditionalFieldSpec{}, err
	}
	match, err := b.engine.Predicate(expr)
	if err != nil {
		return types.ConditionalFieldSpec{}, err
	}

	then, otherwise := cd.Then, cd.Else
	if then == nil {
		then = true
	}
	if otherwise == nil {
		otherwise = false
	}

	deps := cd.DependsOn
	if len(deps) == 0 {
		deps = rootFields(expr)
	}

	return types.ConditionalFieldSpec{
		Name: cd.Name,
		Fn: func(state types.State) any {
			if match(state) {
				return then
			}
			return otherwise
		},
		DependsOn: deps,
	}, nil
}

// Expression converts c to a types.Expression, parsing every field path.
func (c ConditionDoc) Expression(name string) (types.Expression, error) {
	expr := types.Expression{Name: name, Clauses: make([]types.Clause, 0, len(c.AnyOf))}
	for i, cl := range c.AnyOf {
		clause := types.Clause{Predicates: make([]types.Predicate, 0, len(cl.AllOf))}
		for j, pd := range cl.AllOf {
			p, err := pd.predicate()
			if err != nil {
				return types.Expression{}, fmt.Errorf("anyOf[%d].allOf[%d]: %w", i, j, err)
			}
			clause.Predicates = append(clause.Predicates, p)
		}
		expr.Clauses = append(expr.Clauses, clause)
	}
	return expr, nil
}

func (pd PredicateDoc) predicate() (types.Predicate, error) {
	path, err := rules.ParsePath(pd.Field)
	if err != nil {
		return types.Predicate{}, fmt.Errorf("field %q: %w", pd.Field, err)
	}
	p := types.Predicate{
		Path:      path,
		Operator:  pd.Op,
		Kind:      pd.Type,
		Value:     pd.Value,
		Values:    pd.Values,
		OnMissing: pd.OnMissing,
		OnCoerce:  pd.OnCoerce,
	}
	if pd.FieldRef != "" {
		ref, err := rules.ParsePath(pd.FieldRef)
		if err != nil {
			return types.Predicate{}, fmt.Errorf("fieldRef %q: %w", pd.FieldRef, err)
		}
		p.FieldRef = ref
	}
	return p, nil
}

// rootFields lists the distinct top-level state keys expr reads, in order of
// first appearance.
func rootFields(expr types.Expression) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(path []types.PathSegment) {
		if len(path) == 0 || path[0].Key == "" || seen[path[0].Key] {
			return
		}
		seen[path[0].Key] = true
		out = append(out, path[0].Key)
	}
	for _, cl := range expr.Clauses {
		for _, p := range cl.Predicates {
			add(p.Path)
			add(p.FieldRef)
		}
	}
	return out
}
