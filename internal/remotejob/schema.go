package remotejob

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const resultSchemaURL = "extracttable-result.json"

// resultSchema describes a terminal result payload. Cell maps are row key ->
// column key -> value; confidence values may be numbers or numeric strings.
var resultSchema = map[string]any{
	"type":     "object",
	"required": []any{"JobStatus"},
	"properties": map[string]any{
		"JobStatus": map[string]any{"type": "string"},
		"Tables": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type":     "object",
				"required": []any{"TableJson"},
				"properties": map[string]any{
					"TableJson": sparseSchema(map[string]any{"type": []any{"string", "number", "null"}}),
					"TableConfidence": sparseSchema(map[string]any{
						"type": []any{"string", "number", "null"},
					}),
				},
			},
		},
	},
}

func sparseSchema(cell map[string]any) map[string]any {
	return map[string]any{
		"type": "object",
		"additionalProperties": map[string]any{
			"type":                 "object",
			"additionalProperties": cell,
		},
	}
}

var (
	compileOnce    sync.Once
	compiledSchema *jsonschema.Schema
	compileErr     error
)

func compileResultSchema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		b, err := json.Marshal(resultSchema)
		if err != nil {
			compileErr = fmt.Errorf("marshal schema: %w", err)
			return
		}
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(resultSchemaURL, bytes.NewReader(b)); err != nil {
			compileErr = fmt.Errorf("add schema: %w", err)
			return
		}
		compiledSchema, compileErr = compiler.Compile(resultSchemaURL)
	})
	return compiledSchema, compileErr
}

// validateResult checks a terminal payload against resultSchema.
func validateResult(data []byte) error {
	schema, err := compileResultSchema()
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("unmarshal data: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("json does not match schema: %w", err)
	}
	return nil
}
