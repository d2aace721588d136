package anthropic

import (
	"context"

	"github.com/anthropics/anthropic-sdk-go"

	agentcore "github.com/haowjy/meridian-agent-go"
)

// Stream generates a streaming response from Claude. Text and thinking
// deltas are forwarded as they arrive; tool-call input JSON is accumulated
// by the SDK and surfaced as complete ToolCallRequest events when the
// stream ends with a tool_use stop reason.
func (p *Provider) Stream(ctx context.Context, req *agentcore.Request) (<-chan agentcore.StreamEvent, error) {
	if !p.SupportsModel(req.Model) {
		return nil, &agentcore.ModelError{
			Model:    req.Model,
			Provider: p.Name().String(),
			Reason:   "model not supported by Anthropic (must start with 'claude-')",
			Err:      agentcore.ErrInvalidModel,
		}
	}

	apiParams, err := buildMessageParams(req)
	if err != nil {
		return nil, err
	}

	events := make(chan agentcore.StreamEvent, 10) // buffered to keep the SDK reader moving

	go func() {
		defer close(events)

		stream := p.client.Messages.NewStreaming(ctx, apiParams)

		// Accumulator for tool calls and final metadata.
		message := anthropic.Message{}

		for stream.Next() {
			event := stream.Current()

			if err := message.Accumulate(event); err != nil {
				events <- agentcore.StreamEvent{Err: &agentcore.TransportError{
					Provider: p.Name().String(),
					Message:  "failed to accumulate message",
					Err:      err,
				}}
				return
			}

			ev := transformStreamEvent(event)
			if ev.IsEmpty() {
				continue
			}

			select {
			case <-ctx.Done():
				events <- agentcore.StreamEvent{Err: ctx.Err()}
				return
			case events <- ev:
			}
		}

		if err := stream.Err(); err != nil {
			events <- agentcore.StreamEvent{Err: &agentcore.TransportError{
				Provider:  p.Name().String(),
				Message:   "streaming error",
				Retryable: true,
				Err:       err,
			}}
			return
		}

		// Tool-call completion is terminal for the turn: surface the
		// reassembled calls and stop without a Done event.
		if string(message.StopReason) == "tool_use" {
			for _, content := range message.Content {
				if content.Type == "tool_use" {
					call := toolCallFromBlock(content)
					events <- agentcore.StreamEvent{ToolCall: &call}
				}
			}
			return
		}

		events <- agentcore.StreamEvent{Usage: &agentcore.UsageReport{
			PromptTokens:     int(message.Usage.InputTokens),
			CompletionTokens: int(message.Usage.OutputTokens),
			TotalTokens:      int(message.Usage.InputTokens + message.Usage.OutputTokens),
		}}
		events <- agentcore.StreamEvent{Done: &agentcore.Done{
			FinishReason: mapStopReason(string(message.StopReason)),
		}}
	}()

	return events, nil
}

// transformStreamEvent converts one SDK streaming event. Events that only
// matter to the accumulator come back empty and are skipped by the caller.
func transformStreamEvent(event anthropic.MessageStreamEventUnion) agentcore.StreamEvent {
	switch e := event.AsAny().(type) {
	case anthropic.ContentBlockDeltaEvent:
		switch e.Delta.Type {
		case "text_delta":
			return agentcore.StreamEvent{ContentDelta: &agentcore.ContentDelta{Text: e.Delta.Text}}
		case "thinking_delta":
			return agentcore.StreamEvent{ReasoningDelta: &agentcore.ReasoningDelta{Text: e.Delta.Thinking}}
		}
	}
	// MessageStart/ContentBlockStart/ContentBlockStop/MessageDelta/
	// MessageStop and input_json_delta are handled via accumulation.
	return agentcore.StreamEvent{}
}
