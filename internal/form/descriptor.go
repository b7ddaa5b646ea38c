package form

import "github.com/solatis/formkeeper/internal/types"

// Describe renders props as a plain map of JSON-compatible values. Remote
// and command-line hosts use it in place of real widgets.
func Describe(props FieldProps) (any, error) {
	out := map[string]any{
		"name":      props.Name,
		"fieldType": props.FieldType,
	}
	if len(props.Props) > 0 {
		out["props"] = props.Props
	}

	if props.Presentational {
		out["data"] = props.Data
		return out, nil
	}

	out["value"] = props.Value
	out["disabled"] = props.Disabled
	if props.Feedback != nil {
		out["feedback"] = describeFeedback(*props.Feedback)
	}
	if len(props.AsyncResolved) > 0 {
		async := make(map[string]any, len(props.AsyncResolved))
		for key, res := range props.AsyncResolved {
			entry := map[string]any{"pending": res.Pending}
			if !res.Pending {
				entry["value"] = res.Value
			}
			if res.Err != nil {
				entry["error"] = res.Err.Error()
			}
			async[key] = entry
		}
		out["async"] = async
	}
	return out, nil
}

func describeFeedback(fb types.Feedback) map[string]any {
	m := map[string]any{"valid": fb.Valid}
	if fb.Type != "" {
		m["type"] = fb.Type
	}
	if fb.Label != "" {
		m["label"] = fb.Label
	}
	return m
}

// DescriptorRenderers maps every field type declared in spec to Describe.
func DescriptorRenderers(spec types.FormSpec) Renderers {
	r := Renderers{}
	for _, section := range spec.Sections {
		for _, f := range section.Elements {
			r[f.FieldType] = RendererFunc(Describe)
		}
	}
	return r
}

// DescribeSections flattens rendered sections into plain maps.
func DescribeSections(views []SectionView) []any {
	out := make([]any, 0, len(views))
	for _, v := range views {
		elements := make([]any, 0, len(v.Elements))
		for _, e := range v.Elements {
			elements = append(elements, e.Output)
		}
		out = append(out, map[string]any{
			"index":    v.Index,
			"meta":     v.Meta,
			"elements": elements,
		})
	}
	return out
}
