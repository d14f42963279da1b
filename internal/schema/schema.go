// Package schema holds the immutable model parameters used by the pipeline:
// generation settings, safety thresholds and the response schemas that
// constrain the classification and validation completions.
//
// Schemas are declared once in a provider-neutral form (Schema) and converted
// by each completion backend into its own representation. The same
// declaration compiles into a JSON Schema document for local validation of
// model output.
package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Type is a schema node type, spelled the way the generative API expects it.
type Type string

const (
	TypeObject Type = "OBJECT"
	TypeArray  Type = "ARRAY"
	TypeString Type = "STRING"
)

// Schema is a JSON Schema-like description of a structured completion.
type Schema struct {
	Type       Type
	Properties map[string]*Schema
	Required   []string
	Enum       []string
	Items      *Schema
}

// JSONSchema renders the schema as a standard JSON Schema document.
func (s *Schema) JSONSchema() map[string]any {
	if s == nil {
		return nil
	}

	node := map[string]any{"type": strings.ToLower(string(s.Type))}
	if len(s.Properties) > 0 {
		props := make(map[string]any, len(s.Properties))
		for name, prop := range s.Properties {
			props[name] = prop.JSONSchema()
		}
		node["properties"] = props
	}
	if len(s.Required) > 0 {
		node["required"] = append([]string(nil), s.Required...)
	}
	if len(s.Enum) > 0 {
		node["enum"] = append([]string(nil), s.Enum...)
	}
	if s.Items != nil {
		node["items"] = s.Items.JSONSchema()
	}
	return node
}

// MarshalJSON encodes the schema as a JSON Schema document.
func (s *Schema) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.JSONSchema())
}

// Validator checks raw model output against a compiled schema.
type Validator struct {
	name     string
	compiled *jsonschema.Schema
}

// Compile prepares s for repeated validation.
func Compile(name string, s *Schema) (*Validator, error) {
	doc, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s schema: %w", name, err)
	}

	url := name + ".schema.json"
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(url, bytes.NewReader(doc)); err != nil {
		return nil, fmt.Errorf("failed to load %s schema: %w", name, err)
	}
	compiled, err := compiler.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("failed to compile %s schema: %w", name, err)
	}

	return &Validator{name: name, compiled: compiled}, nil
}

// Validate decodes raw and checks it against the schema.
func (v *Validator) Validate(raw []byte) error {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("failed to decode %s output for validation: %w", v.name, err)
	}
	if err := v.compiled.Validate(doc); err != nil {
		return fmt.Errorf("%s output does not match schema: %w", v.name, err)
	}
	return nil
}
