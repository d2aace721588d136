package agentcore

// Role constants for conversation messages.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message represents a single message in the conversation history.
type Message struct {
	// Role is one of the Role* constants.
	Role string

	// Content is the text content of the message.
	Content string

	// ToolCalls holds tool invocations requested by an assistant message.
	ToolCalls []ToolCallRequest

	// ToolResults holds results for previously requested tool calls.
	// Only set on RoleTool messages.
	ToolResults []ToolResult
}

// ToolResult is the outcome of executing one tool call, keyed back to the
// request by CallID. An executor's failure is reported through IsError and
// fed back to the model as content, not raised as a turn failure.
type ToolResult struct {
	CallID  string
	Content string
	IsError bool
}

// NewUserMessage builds a plain user message.
func NewUserMessage(text string) Message {
	return Message{Role: RoleUser, Content: text}
}

// NewToolResultMessage builds the turn-internal message that carries tool
// results back to the backend.
func NewToolResultMessage(results []ToolResult) Message {
	return Message{Role: RoleTool, ToolResults: results}
}

// Request contains the parameters for one backend exchange.
type Request struct {
	// Model is the model identifier (e.g. "claude-haiku-4-5", "gpt-4o").
	Model string

	// Messages contains the conversation history, oldest first.
	Messages []Message

	// Tools lists the tools the model may invoke.
	Tools []*Tool

	// Params contains optional generation parameters.
	Params *RequestParams
}

// RequestParams holds optional generation parameters. All fields are
// pointers so "not set" is distinguishable from a zero value, matching
// provider wire formats.
type RequestParams struct {
	MaxTokens   *int     `json:"max_tokens,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
	TopP        *float64 `json:"top_p,omitempty"`
	Stop        []string `json:"stop,omitempty"`

	// System is the system prompt for the exchange. Threaded through the
	// request explicitly; there is no process-wide prompt state.
	System *string `json:"system,omitempty"`

	// ThinkingEnabled requests extended thinking where the model supports it.
	ThinkingEnabled *bool `json:"thinking_enabled,omitempty"`
}

// GetMaxTokens returns MaxTokens or the given default when unset.
func (p *RequestParams) GetMaxTokens(def int) int {
	if p == nil || p.MaxTokens == nil {
		return def
	}
	return *p.MaxTokens
}

// GetSystem returns the system prompt or "" when unset.
func (p *RequestParams) GetSystem() string {
	if p == nil || p.System == nil {
		return ""
	}
	return *p.System
}

// Clone returns a shallow copy of the request with its own message slice,
// so concurrently running turns never share mutable history.
func (r *Request) Clone() *Request {
	cp := *r
	cp.Messages = make([]Message, len(r.Messages))
	copy(cp.Messages, r.Messages)
	return &cp
}
