package kind

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"path"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

//go:embed schemas/*.json
var schemaFS embed.FS

const schemaBase = "https://farmsync.local/schemas/"

// Validator checks record payloads against each kind's JSON schema.
type Validator struct {
	schemas map[string]*jsonschema.Schema
}

// NewValidator compiles the schema of every kind.
func NewValidator() (*Validator, error) {
	c := jsonschema.NewCompiler()
	for _, k := range All() {
		raw, err := schemaFS.ReadFile(path.Join("schemas", k.Schema))
		if err != nil {
			return nil, fmt.Errorf("reading %s schema: %w", k.Name, err)
		}
		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("parsing %s schema: %w", k.Name, err)
		}
		if err := c.AddResource(schemaBase+k.Schema, doc); err != nil {
			return nil, fmt.Errorf("adding %s schema: %w", k.Name, err)
		}
	}

	v := &Validator{schemas: map[string]*jsonschema.Schema{}}
	for _, k := range All() {
		sch, err := c.Compile(schemaBase + k.Schema)
		if err != nil {
			return nil, fmt.Errorf("compiling %s schema: %w", k.Name, err)
		}
		v.schemas[k.Name] = sch
	}
	return v, nil
}

// Validate checks fields against the named kind's schema.
func (v *Validator) Validate(kind string, fields map[string]any) error {
	sch, ok := v.schemas[kind]
	if !ok {
		return fmt.Errorf("unknown kind %q", kind)
	}
	// Round-trip so Go-typed values validate the same as decoded JSON.
	raw, err := json.Marshal(fields)
	if err != nil {
		return err
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return err
	}
	return sch.Validate(inst)
}
