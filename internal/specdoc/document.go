// internal/specdoc/document.go
package specdoc

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/solatis/formkeeper/internal/types"
)

/*
 * Declarative form documents.
 *
 * A document is the YAML (or JSON) rendition of a FormSpec for hosts that
 * cannot hand the engine Go functions. Where a FormSpec holds code, the
 * document holds data:
 *
 *   - conditional fields carry a DNF expression ("when") plus the values to
 *     produce when it matches ("then", default true) or not ("else", default
 *     false);
 *   - rules name a registry kind with parameters, or "expr" with a "when";
 *   - async props name an evaluator the host registered under that name.
 *
 * Parse checks only the document's shape. Bind resolves names and compiles
 * expressions, so every reference error surfaces at load.
 */

// Document is the root of a declarative form.
type Document struct {
	Sections          []SectionDoc     `yaml:"sections" json:"sections" validate:"dive"`
	ConditionalFields []ConditionalDoc `yaml:"conditionalFields,omitempty" json:"conditionalFields,omitempty" validate:"dive"`
}

// SectionDoc groups elements.
type SectionDoc struct {
	Meta     map[string]any `yaml:"meta,omitempty" json:"meta,omitempty"`
	Elements []ElementDoc   `yaml:"elements,omitempty" json:"elements,omitempty" validate:"dive"`
}

// ElementDoc declares one field.
type ElementDoc struct {
	Name             string         `yaml:"name" json:"name" validate:"required"`
	FieldType        string         `yaml:"fieldType" json:"fieldType" validate:"required"`
	Required         bool           `yaml:"required,omitempty" json:"required,omitempty"`
	IsPresentational bool           `yaml:"isPresentational,omitempty" json:"isPresentational,omitempty"`
	DependsOn        []string       `yaml:"dependsOn,omitempty" json:"dependsOn,omitempty"`
	ExistsIf         []string       `yaml:"existsIf,omitempty" json:"existsIf,omitempty"`
	DisabledIf       string         `yaml:"disabledIf,omitempty" json:"disabledIf,omitempty"`
	OnChangeReset    string         `yaml:"onChangeReset,omitempty" json:"onChangeReset,omitempty"`
	Rules            []RuleDoc      `yaml:"rules,omitempty" json:"rules,omitempty" validate:"dive"`
	Async            []AsyncDoc     `yaml:"async,omitempty" json:"async,omitempty" validate:"dive"`
	Props            map[string]any `yaml:"props,omitempty" json:"props,omitempty"`
}

// RuleDoc names a validation rule kind.
type RuleDoc struct {
	Type          string         `yaml:"type" json:"type" validate:"required"`
	Params        map[string]any `yaml:"params,omitempty" json:"params,omitempty"`
	When          *ConditionDoc  `yaml:"when,omitempty" json:"when,omitempty" validate:"omitempty"`
	Label         string         `yaml:"label,omitempty" json:"label,omitempty"`
	CheckOnChange bool           `yaml:"checkOnChange,omitempty" json:"checkOnChange,omitempty"`
}

// AsyncDoc binds a registered evaluator to a renderer prop.
type AsyncDoc struct {
	Key       string   `yaml:"key" json:"key" validate:"required"`
	Evaluator string   `yaml:"evaluator" json:"evaluator" validate:"required"`
	DependsOn []string `yaml:"dependsOn,omitempty" json:"dependsOn,omitempty"`
}

// ConditionalDoc declares a derived field.
type ConditionalDoc struct {
	Name string `yaml:"name" json:"name" validate:"required"`
	// DependsOn defaults to the top-level fields the expression reads.
	DependsOn []string     `yaml:"dependsOn,omitempty" json:"dependsOn,omitempty"`
	When      ConditionDoc `yaml:"when" json:"when"`
	Then      any          `yaml:"then" json:"then"`
	Else      any          `yaml:"else" json:"else"`
}

// ConditionDoc is a disjunction of AND groups.
type ConditionDoc struct {
	AnyOf []ClauseDoc `yaml:"anyOf,omitempty" json:"anyOf,omitempty" validate:"min=1,dive"`
}

// ClauseDoc is an AND group.
type ClauseDoc struct {
	AllOf []PredicateDoc `yaml:"allOf,omitempty" json:"allOf,omitempty" validate:"min=1,dive"`
}

// PredicateDoc compares a field path with a value, a list or another field.
type PredicateDoc struct {
	Field     string `yaml:"field" json:"field" validate:"required"`
	Op        string `yaml:"op" json:"op" validate:"required"`
	Type      string `yaml:"type,omitempty" json:"type,omitempty"`
	Value     any    `yaml:"value" json:"value"`
	Values    []any  `yaml:"values,omitempty" json:"values,omitempty" validate:"max=64"`
	FieldRef  string `yaml:"fieldRef,omitempty" json:"fieldRef,omitempty"`
	OnMissing string `yaml:"onMissing,omitempty" json:"onMissing,omitempty" validate:"omitempty,oneof=skip match fail"`
	OnCoerce  string `yaml:"onCoerce,omitempty" json:"onCoerce,omitempty" validate:"omitempty,oneof=skip match"`
}

var docValidate = validator.New()

// Parse decodes a YAML or JSON document and checks its shape. Unknown keys
// are rejected so typos do not silently drop behavior.
func Parse(data []byte) (*Document, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var doc Document
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty document", types.ErrInvalidSpec)
		}
		return nil, fmt.Errorf("%w: %v", types.ErrInvalidSpec, err)
	}
	if err := docValidate.Struct(doc); err != nil {
		return nil, fmt.Errorf("%w: %s", types.ErrInvalidSpec, describe(err))
	}
	return &doc, nil
}

// Encode renders doc as YAML.
func Encode(doc *Document) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func describe(err error) string {
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
