package agentcore

// Response contains a complete (non-streaming) backend response.
type Response struct {
	// Content is the answer text.
	Content string

	// Reasoning is the thinking text, when the model produced any.
	Reasoning string

	// ToolCalls lists tool invocations the model requested.
	ToolCalls []ToolCallRequest

	// Model is the model that was used (may differ from request if aliased).
	Model string

	// Usage contains token accounting for the exchange.
	Usage UsageReport

	// FinishReason is the normalized stop reason.
	FinishReason string
}
