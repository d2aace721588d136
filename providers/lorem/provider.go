// Package lorem is a mock provider that generates lorem ipsum text.
// Used for testing and development without real API keys: it streams word
// by word at a model-dependent pace, can emit thinking text, and requests
// a tool call when tools are offered so tool loops can be exercised
// end to end.
package lorem

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	loremgen "github.com/bozaro/golorem"
	"github.com/google/uuid"

	agentcore "github.com/haowjy/meridian-agent-go"
)

// Provider is a mock backend.
type Provider struct {
	generator *loremgen.Lorem
}

// NewProvider creates a new lorem ipsum provider.
func NewProvider() *Provider {
	return &Provider{
		generator: loremgen.New(),
	}
}

// Name returns the provider identifier.
func (p *Provider) Name() agentcore.ProviderID {
	return agentcore.ProviderLorem
}

// SupportsModel returns true if the model name starts with "lorem-".
// Example models: "lorem-fast", "lorem-slow", "lorem-thinking"
func (p *Provider) SupportsModel(model string) bool {
	return strings.HasPrefix(model, "lorem-")
}

// streamDelay returns the delay between words based on the model name.
func streamDelay(model string) time.Duration {
	switch {
	case strings.Contains(model, "slow"):
		return 100 * time.Millisecond
	case strings.Contains(model, "fast"):
		return time.Millisecond
	default:
		return 10 * time.Millisecond
	}
}

// wantsToolCall decides whether this exchange should end in a tool-call
// request: tools must be offered and no tool results supplied yet, so a
// follow-up request with results streams a normal answer instead of
// looping forever.
func wantsToolCall(req *agentcore.Request) bool {
	if len(req.Tools) == 0 {
		return false
	}
	for _, msg := range req.Messages {
		if msg.Role == agentcore.RoleTool {
			return false
		}
	}
	return true
}

// Complete generates a complete mock response in one call.
func (p *Provider) Complete(ctx context.Context, req *agentcore.Request) (*agentcore.Response, error) {
	if !p.SupportsModel(req.Model) {
		return nil, &agentcore.ModelError{
			Model:    req.Model,
			Provider: p.Name().String(),
			Reason:   "model not supported by Lorem provider (must start with 'lorem-')",
			Err:      agentcore.ErrInvalidModel,
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if wantsToolCall(req) {
		call := p.mockToolCall(req.Tools[0])
		return &agentcore.Response{
			ToolCalls:    []agentcore.ToolCallRequest{call},
			Model:        req.Model,
			FinishReason: agentcore.FinishToolCalls,
			Usage:        p.mockUsage(req, 0),
		}, nil
	}

	words := p.words(req.Params.GetMaxTokens(32))
	return &agentcore.Response{
		Content:      strings.Join(words, " "),
		Model:        req.Model,
		FinishReason: agentcore.FinishStop,
		Usage:        p.mockUsage(req, len(words)),
	}, nil
}

// Stream generates a streaming mock response.
func (p *Provider) Stream(ctx context.Context, req *agentcore.Request) (<-chan agentcore.StreamEvent, error) {
	if !p.SupportsModel(req.Model) {
		return nil, &agentcore.ModelError{
			Model:    req.Model,
			Provider: p.Name().String(),
			Reason:   "model not supported by Lorem provider (must start with 'lorem-')",
			Err:      agentcore.ErrInvalidModel,
		}
	}

	params := req.Params
	thinking := params != nil && params.ThinkingEnabled != nil && *params.ThinkingEnabled
	delay := streamDelay(req.Model)

	events := make(chan agentcore.StreamEvent, 10)

	go func() {
		defer close(events)

		if thinking {
			for _, word := range p.words(8) {
				if !p.emit(ctx, events, agentcore.StreamEvent{
					ReasoningDelta: &agentcore.ReasoningDelta{Text: word + " "},
				}, delay) {
					return
				}
			}
		}

		if wantsToolCall(req) {
			call := p.mockToolCall(req.Tools[0])
			events <- agentcore.StreamEvent{ToolCall: &call}
			return
		}

		words := p.words(req.Params.GetMaxTokens(32))
		for _, word := range words {
			if !p.emit(ctx, events, agentcore.StreamEvent{
				ContentDelta: &agentcore.ContentDelta{Text: word + " "},
			}, delay) {
				return
			}
		}

		usage := p.mockUsage(req, len(words))
		events <- agentcore.StreamEvent{Usage: &usage}
		events <- agentcore.StreamEvent{Done: &agentcore.Done{FinishReason: agentcore.FinishStop}}
	}()

	return events, nil
}

// emit sends one event after the configured delay, honoring cancellation.
// Returns false when the stream should stop.
func (p *Provider) emit(ctx context.Context, events chan<- agentcore.StreamEvent, ev agentcore.StreamEvent, delay time.Duration) bool {
	select {
	case <-ctx.Done():
		events <- agentcore.StreamEvent{Err: ctx.Err()}
		return false
	case <-time.After(delay):
	}

	select {
	case <-ctx.Done():
		events <- agentcore.StreamEvent{Err: ctx.Err()}
		return false
	case events <- ev:
		return true
	}
}

// mockToolCall builds a plausible invocation of the offered tool, filling
// each declared string property with a lorem word.
func (p *Provider) mockToolCall(tool *agentcore.Tool) agentcore.ToolCallRequest {
	input := map[string]any{}
	if props, ok := tool.Function.Parameters["properties"].(map[string]any); ok {
		for name, def := range props {
			if d, ok := def.(map[string]any); ok && d["type"] == "string" {
				input[name] = p.generator.Word(3, 8)
			}
		}
	}
	raw, _ := json.Marshal(input)

	return agentcore.ToolCallRequest{
		ID:        "call_" + uuid.NewString(),
		Name:      tool.Function.Name,
		Arguments: string(raw),
	}
}

func (p *Provider) words(n int) []string {
	out := make([]string, 0, n)
	for len(out) < n {
		out = append(out, strings.Fields(p.generator.Sentence(5, 15))...)
	}
	return out[:n]
}

// mockUsage estimates token counts; word counts stand in for tokens.
func (p *Provider) mockUsage(req *agentcore.Request, outputWords int) agentcore.UsageReport {
	prompt := 0
	for _, msg := range req.Messages {
		prompt += len(strings.Fields(msg.Content))
	}
	return agentcore.UsageReport{
		PromptTokens:     prompt,
		CompletionTokens: outputWords,
		TotalTokens:      prompt + outputWords,
	}
}
