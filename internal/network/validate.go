package network

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed intent.schema.json
var intentSchema string

// Validator checks raw intents against the embedded schema.
type Validator struct {
	schema *jsonschema.Schema
}

// NewValidator compiles the intent schema.
func NewValidator() (*Validator, error) {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	if err := c.AddResource("intent.schema.json", bytes.NewReader([]byte(intentSchema))); err != nil {
		return nil, fmt.Errorf("load intent schema: %w", err)
	}
	s, err := c.Compile("intent.schema.json")
	if err != nil {
		return nil, fmt.Errorf("compile intent schema: %w", err)
	}
	return &Validator{schema: s}, nil
}

// MustValidator is NewValidator that panics; the schema is compiled in.
func MustValidator() *Validator {
	v, err := NewValidator()
	if err != nil {
		panic(err)
	}
	return v
}

// Parse validates raw and decodes it into an Intent.
func (v *Validator) Parse(raw []byte) (Intent, error) {
	var doc any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return Intent{}, fmt.Errorf("malformed intent: %w", err)
	}
	if err := v.schema.Validate(doc); err != nil {
		return Intent{}, fmt.Errorf("invalid intent: %w", err)
	}
	var in Intent
	if err := json.Unmarshal(raw, &in); err != nil {
		return Intent{}, fmt.Errorf("malformed intent: %w", err)
	}
	return in, nil
}
