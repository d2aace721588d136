package agentcore

import (
	"errors"
	"fmt"
)

// FunctionDetails represents the function definition within a tool.
// This matches the universal function-calling format used by OpenAI and
// converts cleanly to Anthropic (parameters → input_schema).
type FunctionDetails struct {
	Name        string         `json:"name"`                  // Function name (required)
	Description string         `json:"description,omitempty"` // What the function does
	Parameters  map[string]any `json:"parameters"`            // JSON Schema for parameters
}

// Tool represents a function tool the model may invoke. The runtime only
// defines the contract for requesting a call and receiving its result;
// execution itself is the caller's concern.
type Tool struct {
	Type     string          `json:"type"`     // Always "function"
	Function FunctionDetails `json:"function"` // Function definition
}

// NewFunctionTool creates a function tool from a name, description, and
// JSON-schema parameter object.
func NewFunctionTool(name, description string, parameters map[string]any) (*Tool, error) {
	tool := &Tool{
		Type: "function",
		Function: FunctionDetails{
			Name:        name,
			Description: description,
			Parameters:  parameters,
		},
	}
	if err := tool.Validate(); err != nil {
		return nil, fmt.Errorf("failed to create tool %q: %w", name, err)
	}
	return tool, nil
}

// Validate checks if the Tool is properly configured
func (t *Tool) Validate() error {
	if t.Type == "" {
		return errors.New("tool type is required")
	}

	if t.Type != "function" {
		return fmt.Errorf("unsupported tool type: %s (only 'function' is supported)", t.Type)
	}

	if t.Function.Name == "" {
		return errors.New("function name is required")
	}

	if t.Function.Parameters == nil {
		return errors.New("function parameters are required")
	}

	if schemaType, ok := t.Function.Parameters["type"].(string); !ok || schemaType != "object" {
		return errors.New("function parameters must be a JSON schema with type 'object'")
	}

	return nil
}
