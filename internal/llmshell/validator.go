package llmshell

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// SchemaValidator validates LLM JSON output against the jsonSchema
// attached to an llm ParamValue or node.
type SchemaValidator struct{}

// NewSchemaValidator builds a SchemaValidator.
func NewSchemaValidator() *SchemaValidator {
	return &SchemaValidator{}
}

// Validate compiles schema fresh per call — schemas are small and
// per-request, so caching the compiled form isn't worth the complexity.
func (v *SchemaValidator) Validate(schema map[string]any, value any) (bool, string) {
	if schema == nil {
		return true, ""
	}

	raw, err := json.Marshal(schema)
	if err != nil {
		return false, fmt.Sprintf("schema is not serializable: %v", err)
	}

	compiler := jsonschema.NewCompiler()
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return false, fmt.Sprintf("schema is not valid JSON: %v", err)
	}
	if err := compiler.AddResource("schema.json", doc); err != nil {
		return false, fmt.Sprintf("invalid schema: %v", err)
	}

	compiled, err := compiler.Compile("schema.json")
	if err != nil {
		return false, fmt.Sprintf("schema compilation failed: %v", err)
	}

	if err := compiled.Validate(value); err != nil {
		return false, err.Error()
	}

	return true, ""
}
