package agentcore

// StreamEvent represents a single event in a streaming response.
// Exactly one of the pointer fields (or Err) is set per event; consumers
// switch on whichever field is non-nil and must tolerate every variant.
type StreamEvent struct {
	// ContentDelta contains an incremental piece of answer text.
	ContentDelta *ContentDelta

	// ReasoningDelta contains an incremental piece of thinking text.
	// For a frame that carries both, the reasoning delta is emitted first
	// so consumers can render thinking ahead of the final answer.
	ReasoningDelta *ReasoningDelta

	// ToolCall contains a fully reassembled tool invocation request.
	// Emitted once per call, after all fragments have arrived.
	ToolCall *ToolCallRequest

	// Usage contains token accounting, typically present only on the
	// final frame of a stream.
	Usage *UsageReport

	// Done signals natural completion of the stream.
	Done *Done

	// Err contains any transport or provider error that ended the stream.
	Err error
}

// ContentDelta is an incremental fragment of answer text.
type ContentDelta struct {
	Text string
}

// ReasoningDelta is an incremental fragment of model thinking text.
type ReasoningDelta struct {
	Text string
}

// ToolCallRequest is a backend-requested invocation of an external
// capability. Arguments is the raw JSON object accumulated across the
// call's fragments; it is always valid JSON (a malformed accumulation is
// replaced with an empty object rather than failing the stream).
type ToolCallRequest struct {
	ID        string
	Name      string
	Arguments string
}

// UsageReport contains token counts for one exchange.
type UsageReport struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Done signals the end of a stream.
type Done struct {
	// FinishReason is the normalized stop reason: "stop", "tool_calls",
	// "length", or "" when the backend did not report one.
	FinishReason string
}

// Normalized finish reasons shared by the decoder and providers.
const (
	FinishStop      = "stop"
	FinishToolCalls = "tool_calls"
	FinishLength    = "length"
)

// IsEmpty returns true if no field of the event is set. Provider adapters
// emit empty events for frames that carry nothing of interest; consumers
// skip them.
func (e StreamEvent) IsEmpty() bool {
	return e.ContentDelta == nil &&
		e.ReasoningDelta == nil &&
		e.ToolCall == nil &&
		e.Usage == nil &&
		e.Done == nil &&
		e.Err == nil
}
