// Package tools provides the tool catalogue offered to the model and the
// executor that runs the calls it requests.
package tools

import (
	"context"

	"github.com/hrygo/chatrelay/plugin/ai"
)

// Tool defines the interface for executable tools.
type Tool interface {
	// Definition returns the schema exposed to the model.
	Definition() ai.ToolDefinition
	// Run executes the tool with arguments already validated against the schema.
	Run(ctx context.Context, args map[string]any) (string, error)
}

// errorFormatter is implemented by tools that phrase their own failures.
type errorFormatter interface {
	FormatError(args map[string]any, err error) string
}

// objectSchema builds the parameter schema for a tool taking string properties.
func objectSchema(properties map[string]string, required ...string) map[string]any {
	props := make(map[string]any, len(properties))
	for name, description := range properties {
		props[name] = map[string]any{
			"type":        "string",
			"description": description,
		}
	}
	if required == nil {
		required = []string{}
	}
	return map[string]any{
		"type":       "object",
		"properties": props,
		"required":   required,
	}
}

// stringArg returns args[key] as a string, or "" when missing.
func stringArg(args map[string]any, key string) string {
	if v, ok := args[key].(string); ok {
		return v
	}
	return ""
}
