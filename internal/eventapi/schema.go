package eventapi

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"path"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.json
var schemaFS embed.FS

const schemaBase = "https://telegate.local/schemas/"

// Validator checks call parameters against the known endpoint schemas.
type Validator struct {
	schemas map[string]*jsonschema.Schema
}

// NewValidator compiles every embedded schema. Files are named namespace_action.json.
func NewValidator() (*Validator, error) {
	entries, err := schemaFS.ReadDir("schemas")
	if err != nil {
		return nil, fmt.Errorf("read schemas: %w", err)
	}

	compiler := jsonschema.NewCompiler()
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		data, err := schemaFS.ReadFile(path.Join("schemas", e.Name()))
		if err != nil {
			return nil, fmt.Errorf("read schema %s: %w", e.Name(), err)
		}
		if err := compiler.AddResource(schemaBase+e.Name(), bytes.NewReader(data)); err != nil {
			return nil, fmt.Errorf("add schema resource %s: %w", e.Name(), err)
		}
		names = append(names, e.Name())
	}

	v := &Validator{schemas: make(map[string]*jsonschema.Schema, len(names))}
	for _, name := range names {
		s, err := compiler.Compile(schemaBase + name)
		if err != nil {
			return nil, fmt.Errorf("compile schema %s: %w", name, err)
		}
		v.schemas[strings.TrimSuffix(name, ".json")] = s
	}
	return v, nil
}

// Known reports whether a schema exists for the endpoint.
func (v *Validator) Known(namespace, action string) bool {
	_, ok := v.schemas[namespace+"_"+action]
	return ok
}

// Validate checks params for namespace/action. Endpoints without a schema pass.
func (v *Validator) Validate(namespace, action string, params map[string]any) error {
	s, ok := v.schemas[namespace+"_"+action]
	if !ok {
		return nil
	}
	if params == nil {
		params = map[string]any{}
	}

	// Round-trip through JSON so the validator sees plain JSON values.
	raw, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("encode params: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var instance any
	if err := dec.Decode(&instance); err != nil {
		return fmt.Errorf("decode params: %w", err)
	}

	if err := s.Validate(instance); err != nil {
		return fmt.Errorf("%w: %s/%s: %v", ErrInvalidParams, namespace, action, err)
	}
	return nil
}
