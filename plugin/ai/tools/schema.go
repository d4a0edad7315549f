package tools

import (
	"encoding/json"
	"strings"

	"github.com/pkg/errors"
	"github.com/xeipuuv/gojsonschema"
)

// argumentSchema validates raw call arguments against a tool's parameter schema.
type argumentSchema struct {
	schema *gojsonschema.Schema
}

func compileSchema(parameters map[string]any) (*argumentSchema, error) {
	// An empty required list is valid for the model but not under draft-04.
	if required, ok := parameters["required"].([]string); ok && len(required) == 0 {
		trimmed := make(map[string]any, len(parameters))
		for k, v := range parameters {
			if k != "required" {
				trimmed[k] = v
			}
		}
		parameters = trimmed
	}
	schema, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(parameters))
	if err != nil {
		return nil, errors.Wrap(err, "failed to compile tool schema")
	}
	return &argumentSchema{schema: schema}, nil
}

// decode parses raw JSON arguments and validates them. Empty input is treated
// as an empty object.
func (s *argumentSchema) decode(raw string) (map[string]any, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		raw = "{}"
	}

	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, errors.Wrap(err, "invalid tool arguments")
	}
	if args == nil {
		args = map[string]any{}
	}

	result, err := s.schema.Validate(gojsonschema.NewGoLoader(args))
	if err != nil {
		return nil, errors.Wrap(err, "failed to validate tool arguments")
	}
	if !result.Valid() {
		var problems []string
		for _, desc := range result.Errors() {
			problems = append(problems, desc.String())
		}
		return nil, errors.Errorf("invalid tool arguments: %s", strings.Join(problems, "; "))
	}
	return args, nil
}
