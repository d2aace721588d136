// Package openai implements the agentcore.Provider interface for
// OpenAI-compatible chat completion backends (OpenAI itself, gateways, and
// local servers speaking the same wire format).
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	agentcore "github.com/haowjy/meridian-agent-go"
	"github.com/haowjy/meridian-agent-go/decode"
)

const defaultBaseURL = "https://api.openai.com/v1"

// Provider talks to an OpenAI-compatible chat completions endpoint.
type Provider struct {
	apiKey        string
	baseURL       string
	httpClient    *http.Client
	limiter       *rate.Limiter
	modelPrefixes []string
}

// Option configures a Provider.
type Option func(*Provider)

// WithBaseURL points the provider at a compatible gateway or local server.
func WithBaseURL(url string) Option {
	return func(p *Provider) { p.baseURL = strings.TrimRight(url, "/") }
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.httpClient = c }
}

// WithRateLimit applies a client-side token bucket of rps requests per
// second with the given burst. Requests block until capacity is available
// or their context is cancelled.
func WithRateLimit(rps float64, burst int) Option {
	return func(p *Provider) { p.limiter = rate.NewLimiter(rate.Limit(rps), burst) }
}

// WithModelPrefixes overrides the model prefixes this provider claims.
func WithModelPrefixes(prefixes ...string) Option {
	return func(p *Provider) { p.modelPrefixes = prefixes }
}

// NewProvider creates a provider with the given API key.
func NewProvider(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, agentcore.ErrInvalidAPIKey
	}

	p := &Provider{
		apiKey:        apiKey,
		baseURL:       defaultBaseURL,
		httpClient:    &http.Client{Timeout: 120 * time.Second},
		modelPrefixes: []string{"gpt-", "o1", "o3", "o4"},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Name returns the provider identifier.
func (p *Provider) Name() agentcore.ProviderID {
	return agentcore.ProviderOpenAI
}

// SupportsModel returns true if the model matches a configured prefix.
func (p *Provider) SupportsModel(model string) bool {
	for _, prefix := range p.modelPrefixes {
		if strings.HasPrefix(model, prefix) {
			return true
		}
	}
	return false
}

// Complete generates a non-streaming response.
func (p *Provider) Complete(ctx context.Context, req *agentcore.Request) (*agentcore.Response, error) {
	if !p.SupportsModel(req.Model) {
		return nil, &agentcore.ModelError{
			Model:    req.Model,
			Provider: p.Name().String(),
			Reason:   "model not supported by this endpoint",
			Err:      agentcore.ErrInvalidModel,
		}
	}

	body, err := buildRequestBody(req, false)
	if err != nil {
		return nil, err
	}

	resp, err := p.do(ctx, body, "")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, p.handleErrorResponse(resp)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &agentcore.TransportError{
			Provider: p.Name().String(),
			Message:  "failed to read response body",
			Err:      err,
		}
	}

	return parseCompletionResponse(raw)
}

// Stream generates a streaming response. Raw chunks are pushed through a
// decode.Decoder; decoded events are forwarded as they complete.
func (p *Provider) Stream(ctx context.Context, req *agentcore.Request) (<-chan agentcore.StreamEvent, error) {
	if !p.SupportsModel(req.Model) {
		return nil, &agentcore.ModelError{
			Model:    req.Model,
			Provider: p.Name().String(),
			Reason:   "model not supported by this endpoint",
			Err:      agentcore.ErrInvalidModel,
		}
	}

	body, err := buildRequestBody(req, true)
	if err != nil {
		return nil, err
	}

	resp, err := p.do(ctx, body, "text/event-stream")
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, p.handleErrorResponse(resp)
	}

	events := make(chan agentcore.StreamEvent, 10) // buffered to keep the reader moving

	go func() {
		defer close(events)
		defer resp.Body.Close()

		decoder := decode.NewDecoder()
		buf := make([]byte, 4096)
		for {
			n, readErr := resp.Body.Read(buf)
			if n > 0 {
				for _, ev := range decoder.Decode(buf[:n]) {
					select {
					case <-ctx.Done():
						events <- agentcore.StreamEvent{Err: ctx.Err()}
						return
					case events <- ev:
					}
				}
			}
			if readErr == io.EOF {
				for _, ev := range decoder.Flush() {
					events <- ev
				}
				return
			}
			if readErr != nil {
				if ctx.Err() != nil {
					events <- agentcore.StreamEvent{Err: ctx.Err()}
					return
				}
				events <- agentcore.StreamEvent{Err: &agentcore.TransportError{
					Provider:  p.Name().String(),
					Message:   "stream read failed",
					Retryable: true,
					Err:       readErr,
				}}
				return
			}
		}
	}()

	return events, nil
}

// do sends the request body, honoring the rate limiter when configured.
func (p *Provider) do(ctx context.Context, body []byte, accept string) (*http.Response, error) {
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")
	if accept != "" {
		httpReq.Header.Set("Accept", accept)
	}

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, &agentcore.TransportError{
			Provider:  p.Name().String(),
			Message:   "HTTP request failed",
			Retryable: true,
			Err:       err,
		}
	}
	return resp, nil
}

// handleErrorResponse maps HTTP error responses to library errors.
func (p *Provider) handleErrorResponse(resp *http.Response) error {
	raw, _ := io.ReadAll(resp.Body)

	var errResp struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
		} `json:"error"`
	}
	message := strings.TrimSpace(string(raw))
	if err := json.Unmarshal(raw, &errResp); err == nil && errResp.Error.Message != "" {
		message = errResp.Error.Message
	}

	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return agentcore.ErrInvalidAPIKey
	case http.StatusTooManyRequests:
		return &agentcore.TransportError{
			Provider:   p.Name().String(),
			StatusCode: resp.StatusCode,
			Message:    message,
			Retryable:  true,
			Err:        agentcore.ErrRateLimited,
		}
	case http.StatusNotFound:
		return &agentcore.ModelError{
			Provider: p.Name().String(),
			Reason:   message,
			Err:      agentcore.ErrInvalidModel,
		}
	default:
		return &agentcore.TransportError{
			Provider:   p.Name().String(),
			StatusCode: resp.StatusCode,
			Message:    message,
			Retryable:  resp.StatusCode >= 500,
			Err:        agentcore.ErrProviderUnavailable,
		}
	}
}

// parseCompletionResponse converts a non-streaming completion body into a
// Response, using the same extraction priority as the stream decoder.
func parseCompletionResponse(raw []byte) (*agentcore.Response, error) {
	var payload struct {
		Model   string `json:"model"`
		Choices []struct {
			FinishReason string `json:"finish_reason"`
			Message      struct {
				Content   string `json:"content"`
				Reasoning string `json:"reasoning_content"`
				ToolCalls []struct {
					ID       string `json:"id"`
					Function struct {
						Name      string `json:"name"`
						Arguments string `json:"arguments"`
					} `json:"function"`
				} `json:"tool_calls"`
			} `json:"message"`
		} `json:"choices"`
		Usage struct {
			PromptTokens     int `json:"prompt_tokens"`
			CompletionTokens int `json:"completion_tokens"`
			TotalTokens      int `json:"total_tokens"`
		} `json:"usage"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("failed to parse completion response: %w", err)
	}
	if len(payload.Choices) == 0 {
		return nil, fmt.Errorf("completion response has no choices")
	}

	choice := payload.Choices[0]
	out := &agentcore.Response{
		Content:      choice.Message.Content,
		Reasoning:    choice.Message.Reasoning,
		Model:        payload.Model,
		FinishReason: choice.FinishReason,
		Usage: agentcore.UsageReport{
			PromptTokens:     payload.Usage.PromptTokens,
			CompletionTokens: payload.Usage.CompletionTokens,
			TotalTokens:      payload.Usage.TotalTokens,
		},
	}
	for _, tc := range choice.Message.ToolCalls {
		args := tc.Function.Arguments
		if args == "" || !json.Valid([]byte(args)) {
			args = "{}"
		}
		out.ToolCalls = append(out.ToolCalls, agentcore.ToolCallRequest{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: args,
		})
	}
	return out, nil
}
