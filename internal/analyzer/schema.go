package analyzer

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// verdictSchema is the collaborator response contract.
var verdictSchema = map[string]any{
	"type":     "object",
	"required": []string{"is_fraud", "confidence"},
	"properties": map[string]any{
		"is_fraud":   map[string]any{"type": "boolean"},
		"confidence": map[string]any{"type": "number", "minimum": 0, "maximum": 100},
		"reasons": map[string]any{
			"type":  "array",
			"items": map[string]any{"type": "string"},
		},
		"features": map[string]any{
			"type": "object",
			"properties": map[string]any{
				"sharpness":    nullableNumber(),
				"contrast":     nullableNumber(),
				"brightness":   nullableNumber(),
				"edge_density": nullableNumber(),
			},
		},
		"text_length": map[string]any{"type": []string{"integer", "null"}, "minimum": 0},
	},
}

func nullableNumber() map[string]any {
	return map[string]any{"type": []string{"number", "null"}}
}

// compileSchema compiles schemaMap once so it can be reused across requests.
func compileSchema(schemaMap map[string]any) (*jsonschema.Schema, error) {
	b, err := json.Marshal(schemaMap)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("verdict.json", bytes.NewReader(b)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("verdict.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return schema, nil
}

// validateJSON checks data against schema.
func validateJSON(schema *jsonschema.Schema, data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("unmarshal data: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("json does not match schema: %w", err)
	}
	return nil
}
