package agentcore

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// ToolRegistry manages the tools offered to a conversation and validates
// model-supplied arguments against each tool's parameter schema. Schemas
// are compiled once at registration; validation failures at call time are
// reported back to the model as tool-result errors, never as turn
// failures.
type ToolRegistry struct {
	mu      sync.RWMutex
	tools   map[string]*Tool
	schemas map[string]*jsonschema.Schema
	order   []string
}

// NewToolRegistry creates an empty tool registry.
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{
		tools:   make(map[string]*Tool),
		schemas: make(map[string]*jsonschema.Schema),
	}
}

// Register adds a tool and compiles its parameter schema.
func (r *ToolRegistry) Register(tool *Tool) error {
	if tool == nil {
		return fmt.Errorf("tool is required")
	}
	if err := tool.Validate(); err != nil {
		return err
	}

	name := tool.Function.Name

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool %s is already registered", name)
	}

	schema, err := compileParameterSchema(name, tool.Function.Parameters)
	if err != nil {
		return fmt.Errorf("tool %s has an invalid parameter schema: %w", name, err)
	}

	r.tools[name] = tool
	r.schemas[name] = schema
	r.order = append(r.order, name)
	return nil
}

// Get returns the tool with the given name.
func (r *ToolRegistry) Get(name string) (*Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Tools returns all registered tools in registration order, ready to be
// attached to a Request.
func (r *ToolRegistry) Tools() []*Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Tool, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name])
	}
	return out
}

// ValidateArguments checks a tool call's accumulated argument JSON against
// the registered schema. Unknown tools and invalid arguments both return
// an error the caller should encode as a ToolResult with IsError set.
func (r *ToolRegistry) ValidateArguments(call ToolCallRequest) error {
	r.mu.RLock()
	schema, ok := r.schemas[call.Name]
	r.mu.RUnlock()

	if !ok {
		return fmt.Errorf("unknown tool %q", call.Name)
	}

	var args any
	if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
		return fmt.Errorf("tool %q arguments are not valid JSON: %w", call.Name, err)
	}

	if err := schema.Validate(args); err != nil {
		return fmt.Errorf("tool %q arguments rejected by schema: %w", call.Name, err)
	}
	return nil
}

func compileParameterSchema(name string, parameters map[string]any) (*jsonschema.Schema, error) {
	raw, err := json.Marshal(parameters)
	if err != nil {
		return nil, err
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("tool://%s/parameters.json", name)
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(url, doc); err != nil {
		return nil, err
	}
	return compiler.Compile(url)
}
