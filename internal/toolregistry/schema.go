package toolregistry

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/getkin/kin-openapi/openapi3"
	"gopkg.in/yaml.v3"
)

// rawTool is the on-disk shape of one entry in the tool schema file: an
// OpenAPI-style operation reduced to what the registry needs (name,
// transport, and the two schemas), rather than a full OpenAPI document.
type rawTool struct {
	Name         string         `yaml:"name"`
	Description  string         `yaml:"description"`
	Endpoint     string         `yaml:"endpoint"`
	Method       string         `yaml:"method"`
	InputSchema  map[string]any `yaml:"inputSchema"`
	OutputSchema map[string]any `yaml:"outputSchema"`
}

// LoadDefinitions reads the tool schema file at path and returns the
// parsed definitions, compiling each schema into an openapi3.Schema.
func LoadDefinitions(path string) ([]ToolDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("toolregistry: read schema file: %w", err)
	}
	var raws []rawTool
	if err := yaml.Unmarshal(data, &raws); err != nil {
		return nil, fmt.Errorf("toolregistry: parse schema file: %w", err)
	}
	defs := make([]ToolDefinition, 0, len(raws))
	for _, r := range raws {
		inSchema, err := schemaFromMap(r.InputSchema)
		if err != nil {
			return nil, fmt.Errorf("toolregistry: tool %q input schema: %w", r.Name, err)
		}
		outSchema, err := schemaFromMap(r.OutputSchema)
		if err != nil {
			return nil, fmt.Errorf("toolregistry: tool %q output schema: %w", r.Name, err)
		}
		method := r.Method
		if method == "" {
			method = "POST"
		}
		defs = append(defs, ToolDefinition{
			Name:         r.Name,
			Description:  r.Description,
			Endpoint:     r.Endpoint,
			Method:       method,
			InputSchema:  inSchema,
			OutputSchema: outSchema,
		})
	}
	return defs, nil
}

// schemaFromMap converts a YAML-decoded schema object into an
// openapi3.Schema. A nil map yields a nil schema (no validation performed).
func schemaFromMap(m map[string]any) (*openapi3.Schema, error) {
	if m == nil {
		return nil, nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	schema := &openapi3.Schema{}
	if err := schema.UnmarshalJSON(data); err != nil {
		return nil, err
	}
	return schema, nil
}

// validateAgainst checks value against schema, treating a nil schema as
// "no constraint configured".
func validateAgainst(schema *openapi3.Schema, value any) error {
	if schema == nil {
		return nil
	}
	return schema.VisitJSON(value)
}
