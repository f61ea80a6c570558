package workflow

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

type (
	// ParameterSpec describes one parameter of a run handler. Descriptors are
	// computed once by the surrounding tooling (reflection, code generation or
	// by hand) rather than introspected at run time.
	ParameterSpec struct {
		// Name is the parameter name as exposed in the run input map.
		Name string `json:"name"`
		// Default is the value assumed when the parameter is absent, if any.
		Default any `json:"default,omitempty"`
		// Type labels the expected value type (informational).
		Type string `json:"type,omitempty"`
		// Required marks parameters without a default.
		Required bool `json:"required"`
	}

	// HandlerDescriptor is the capability contract for a user-supplied run
	// handler, supplied at Workflow construction.
	HandlerDescriptor struct {
		// HasCustomLogic reports whether the handler carries real run logic.
		// When false, Execute logs an error and produces no outcome.
		HasCustomLogic bool
		// Parameters describes the handler's parameter list.
		Parameters []ParameterSpec
		// ReturnType labels the handler's declared result kind (informational).
		ReturnType string
		// InputSchema optionally validates the run input map before the handler
		// executes. Compile one with CompileInputSchema.
		InputSchema *jsonschema.Schema
	}
)

// CompileInputSchema compiles a JSON Schema document for use as a descriptor's
// InputSchema.
func CompileInputSchema(doc map[string]any) (*jsonschema.Schema, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode input schema: %w", err)
	}
	parsed, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("parse input schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("input.json", parsed); err != nil {
		return nil, fmt.Errorf("add input schema resource: %w", err)
	}
	schema, err := compiler.Compile("input.json")
	if err != nil {
		return nil, fmt.Errorf("compile input schema: %w", err)
	}
	return schema, nil
}

// validateInput checks the run input map against the descriptor's schema, if
// any. The input is round-tripped through JSON so numeric and nested values
// are normalized the way the schema library expects.
func (d HandlerDescriptor) validateInput(input map[string]any) error {
	if d.InputSchema == nil {
		return nil
	}
	raw, err := json.Marshal(input)
	if err != nil {
		return fmt.Errorf("encode run input: %w", err)
	}
	instance, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("parse run input: %w", err)
	}
	if err := d.InputSchema.Validate(instance); err != nil {
		return fmt.Errorf("invalid run input: %w", err)
	}
	return nil
}
