package engine

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/haasonsaas/splitdeck/pkg/models"
)

// testDefinitionSchema is the contract for the minimal test-definition
// shape. Fields outside it are passed through opaquely via metadata.
const testDefinitionSchema = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "object",
	"required": ["id", "targetAudience"],
	"properties": {
		"id": {"type": "string", "minLength": 1},
		"name": {"type": "string"},
		"targetAudience": {
			"type": "object",
			"required": ["segments"],
			"properties": {
				"segments": {
					"type": "array",
					"items": {"type": "string", "minLength": 1},
					"minItems": 1
				},
				"size": {"type": "integer", "minimum": 0}
			}
		},
		"variations": {
			"type": "array",
			"items": {
				"type": "object",
				"properties": {
					"name": {"type": "string"},
					"elements": {
						"type": "array",
						"items": {
							"type": "object",
							"required": ["selector"],
							"properties": {
								"selector": {"type": "string", "minLength": 1},
								"property": {"type": "string"},
								"value": {"type": "string"}
							}
						}
					}
				}
			}
		},
		"trafficAllocation": {
			"type": "object",
			"properties": {
				"totalPercentage": {"type": "number", "exclusiveMinimum": 0, "maximum": 100}
			}
		}
	}
}`

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	schemaErr      error
)

// ValidationError reports a malformed test definition. It wraps the
// underlying schema violation so callers can inspect the cause.
type ValidationError struct {
	TestID string
	Cause  error
}

func (e *ValidationError) Error() string {
	if e.TestID != "" {
		return fmt.Sprintf("invalid test definition %q: %v", e.TestID, e.Cause)
	}
	return fmt.Sprintf("invalid test definition: %v", e.Cause)
}

func (e *ValidationError) Unwrap() error { return e.Cause }

// ValidateDefinition checks a test definition against the schema. A nil
// definition or a schema violation yields a *ValidationError.
func ValidateDefinition(def *models.TestDefinition) error {
	if def == nil {
		return &ValidationError{Cause: fmt.Errorf("definition is nil")}
	}

	schemaOnce.Do(func() {
		compiledSchema, schemaErr = jsonschema.CompileString("test_definition.schema.json", testDefinitionSchema)
	})
	if schemaErr != nil {
		return fmt.Errorf("compile test definition schema: %w", schemaErr)
	}

	payload, err := json.Marshal(def)
	if err != nil {
		return &ValidationError{TestID: def.ID, Cause: err}
	}
	var decoded any
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return &ValidationError{TestID: def.ID, Cause: err}
	}
	if err := compiledSchema.Validate(decoded); err != nil {
		return &ValidationError{TestID: def.ID, Cause: err}
	}
	return nil
}
