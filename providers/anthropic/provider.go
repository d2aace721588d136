// Package anthropic implements the agentcore.Provider interface for
// Anthropic (Claude) models via the official SDK.
package anthropic

import (
	"context"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	agentcore "github.com/haowjy/meridian-agent-go"
)

// Provider talks to the Anthropic Messages API.
type Provider struct {
	client *anthropic.Client
}

// NewProvider creates a new Anthropic provider with the given API key.
func NewProvider(apiKey string) (*Provider, error) {
	if apiKey == "" {
		return nil, agentcore.ErrInvalidAPIKey
	}

	client := anthropic.NewClient(option.WithAPIKey(apiKey))

	return &Provider{
		client: &client,
	}, nil
}

// Name returns the provider identifier.
func (p *Provider) Name() agentcore.ProviderID {
	return agentcore.ProviderAnthropic
}

// SupportsModel returns true for Claude models.
func (p *Provider) SupportsModel(model string) bool {
	return strings.HasPrefix(model, "claude-")
}

// Complete generates a blocking response from Claude.
func (p *Provider) Complete(ctx context.Context, req *agentcore.Request) (*agentcore.Response, error) {
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

	message, err := p.client.Messages.New(ctx, apiParams)
	if err != nil {
		return nil, &agentcore.TransportError{
			Provider:  p.Name().String(),
			Message:   "API call failed",
			Retryable: true,
			Err:       err,
		}
	}

	return convertMessage(message), nil
}

// convertMessage maps an SDK message onto the library response type.
func convertMessage(msg *anthropic.Message) *agentcore.Response {
	resp := &agentcore.Response{
		Model:        string(msg.Model),
		FinishReason: mapStopReason(string(msg.StopReason)),
		Usage: agentcore.UsageReport{
			PromptTokens:     int(msg.Usage.InputTokens),
			CompletionTokens: int(msg.Usage.OutputTokens),
			TotalTokens:      int(msg.Usage.InputTokens + msg.Usage.OutputTokens),
		},
	}

	for _, content := range msg.Content {
		switch content.Type {
		case "text":
			resp.Content += content.Text
		case "thinking":
			resp.Reasoning += content.Thinking
		case "tool_use":
			resp.ToolCalls = append(resp.ToolCalls, toolCallFromBlock(content))
		}
	}
	return resp
}

func toolCallFromBlock(content anthropic.ContentBlockUnion) agentcore.ToolCallRequest {
	args := string(content.Input)
	if args == "" {
		args = "{}"
	}
	return agentcore.ToolCallRequest{
		ID:        content.ID,
		Name:      content.Name,
		Arguments: args,
	}
}

// mapStopReason normalizes Anthropic stop reasons.
func mapStopReason(reason string) string {
	switch reason {
	case "end_turn", "stop_sequence":
		return agentcore.FinishStop
	case "tool_use":
		return agentcore.FinishToolCalls
	case "max_tokens":
		return agentcore.FinishLength
	default:
		return reason
	}
}
