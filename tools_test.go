package agentcore

import (
	"strings"
	"testing"
)

func TestTool_Validate(t *testing.T) {
	objectSchema := map[string]any{"type": "object"}

	tests := []struct {
		name    string
		tool    *Tool
		wantErr string
	}{
		{
			name: "valid function tool",
			tool: &Tool{Type: "function", Function: FunctionDetails{Name: "search", Parameters: objectSchema}},
		},
		{
			name:    "missing type",
			tool:    &Tool{Function: FunctionDetails{Name: "search", Parameters: objectSchema}},
			wantErr: "tool type is required",
		},
		{
			name:    "unsupported type",
			tool:    &Tool{Type: "retrieval", Function: FunctionDetails{Name: "search", Parameters: objectSchema}},
			wantErr: "unsupported tool type",
		},
		{
			name:    "missing name",
			tool:    &Tool{Type: "function", Function: FunctionDetails{Parameters: objectSchema}},
			wantErr: "function name is required",
		},
		{
			name:    "missing parameters",
			tool:    &Tool{Type: "function", Function: FunctionDetails{Name: "search"}},
			wantErr: "function parameters are required",
		},
		{
			name:    "non-object schema",
			tool:    &Tool{Type: "function", Function: FunctionDetails{Name: "search", Parameters: map[string]any{"type": "array"}}},
			wantErr: "type 'object'",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.tool.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestNewFunctionTool(t *testing.T) {
	tool, err := NewFunctionTool("get_weather", "Look up weather", map[string]any{
		"type": "object",
		"properties": map[string]any{
			"city": map[string]any{"type": "string"},
		},
	})
	if err != nil {
		t.Fatalf("NewFunctionTool: %v", err)
	}
	if tool.Type != "function" || tool.Function.Name != "get_weather" {
		t.Errorf("unexpected tool: %+v", tool)
	}

	if _, err := NewFunctionTool("", "no name", map[string]any{"type": "object"}); err == nil {
		t.Error("empty name should be rejected")
	}
}
