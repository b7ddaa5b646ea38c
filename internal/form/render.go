package form

import (
	"fmt"

	"github.com/solatis/formkeeper/internal/asyncdep"
	"github.com/solatis/formkeeper/internal/types"
)

// FieldProps is what a renderer receives for one visible element.
// Presentational elements only get Name, FieldType, Props and Data.
type FieldProps struct {
	Name      string
	FieldType string

	Value    any
	OnChange func(value any) error
	OnBlur   func() error
	// Feedback is nil until the field has been validated.
	Feedback *types.Feedback
	Disabled bool
	// AsyncResolved holds one result per declared async prop, by key.
	AsyncResolved map[string]asyncdep.Result

	Props map[string]any

	Presentational bool
	// Data maps each DependsOn name of a presentational element to its value.
	Data map[string]any
}

// Renderer turns element props into whatever the host displays.
type Renderer interface {
	Render(props FieldProps) (any, error)
}

// RendererFunc adapts a function to Renderer.
type RendererFunc func(props FieldProps) (any, error)

// Render implements Renderer.
func (f RendererFunc) Render(props FieldProps) (any, error) {
	return f(props)
}

// Renderers maps a field type to its renderer.
type Renderers map[string]Renderer

// ElementView is one rendered element.
type ElementView struct {
	Name      string
	FieldType string
	Output    any
}

// SectionView is one rendered section. Hidden elements are omitted.
type SectionView struct {
	Index    int
	Meta     map[string]any
	Elements []ElementView
}

// resolveRenderers binds every field type to its renderer once, at load.
// Without renderers the controller is headless and Render fails.
func resolveRenderers(fields []types.FieldSpec, renderers Renderers) (map[string]Renderer, error) {
	if renderers == nil {
		return nil, nil
	}
	resolved := make(map[string]Renderer)
	for _, f := range fields {
		if _, done := resolved[f.FieldType]; done {
			continue
		}
		r, ok := renderers[f.FieldType]
		if !ok || r == nil {
			return nil, fmt.Errorf("%w: field %q has type %q", types.ErrUnknownFieldType, f.Name, f.FieldType)
		}
		resolved[f.FieldType] = r
	}
	return resolved, nil
}

// Render builds props for every visible element and passes them to the
// registered renderers, section by section. Renderers run without the
// controller lock held, so they may call Edit or Snapshot.
func (c *Controller) Render() ([]SectionView, error) {
	if c.renderers == nil {
		return nil, types.ErrNoRenderers
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, types.ErrClosed
	}
	state := c.state
	feedback := c.feedback
	c.mu.Unlock()

	sections := c.graph.Spec.Sections
	views := make([]SectionView, 0, len(sections))
	for i, section := range sections {
		view := SectionView{Index: i, Meta: section.Meta}
		if view.Meta == nil {
			view.Meta = map[string]any{}
		}
		for _, field := range section.Elements {
			if !Visible(field, state) {
				continue
			}
			props := c.props(field, state, feedback)
			out, err := c.renderers[field.FieldType].Render(props)
			if err != nil {
				return nil, fmt.Errorf("render field %q: %w", field.Name, err)
			}
			view.Elements = append(view.Elements, ElementView{
				Name:      field.Name,
				FieldType: field.FieldType,
				Output:    out,
			})
		}
		views = append(views, view)
	}
	return views, nil
}

// Visible reports whether every ExistsIf entry of field is truthy in state.
func Visible(field types.FieldSpec, state types.State) bool {
	for _, cond := range field.ExistsIf {
		if !types.Truthy(state[cond]) {
			return false
		}
	}
	return true
}

// Disabled reports whether field's DisabledIf entry is truthy in state.
func Disabled(field types.FieldSpec, state types.State) bool {
	return field.DisabledIf != "" && types.Truthy(state[field.DisabledIf])
}

func (c *Controller) props(field types.FieldSpec, state types.State, feedback map[string]types.Feedback) FieldProps {
	props := FieldProps{
		Name:      field.Name,
		FieldType: field.FieldType,
		Props:     field.Props,
	}

	if field.IsPresentational {
		props.Presentational = true
		props.Data = make(map[string]any, len(field.DependsOn))
		for _, dep := range field.DependsOn {
			props.Data[dep] = state[dep]
		}
		return props
	}

	name := field.Name
	props.Value = state[name]
	props.Disabled = Disabled(field, state)
	props.OnChange = func(value any) error { return c.Edit(name, value) }
	props.OnBlur = func() error { return c.Blur(name) }
	if fb, ok := feedback[name]; ok {
		props.Feedback = &fb
	}
	if len(field.AsyncEval) > 0 {
		props.AsyncResolved = make(map[string]asyncdep.Result, len(field.AsyncEval))
		for _, spec := range field.AsyncEval {
			props.AsyncResolved[spec.Key] = c.EvaluateAsync(name, spec)
		}
	}
	return props
}
