package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	agentcore "github.com/haowjy/meridian-agent-go"
)

func newTestProvider(t *testing.T, handler http.HandlerFunc) *Provider {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	p, err := NewProvider("test-key", WithBaseURL(server.URL))
	if err != nil {
		t.Fatalf("NewProvider failed: %v", err)
	}
	return p
}

func userRequest(model, text string) *agentcore.Request {
	return &agentcore.Request{
		Model:    model,
		Messages: []agentcore.Message{agentcore.NewUserMessage(text)},
	}
}

func TestNewProvider_RequiresAPIKey(t *testing.T) {
	if _, err := NewProvider(""); err != agentcore.ErrInvalidAPIKey {
		t.Errorf("expected ErrInvalidAPIKey, got %v", err)
	}
}

func TestProvider_SupportsModel(t *testing.T) {
	p, _ := NewProvider("k")

	tests := []struct {
		model    string
		expected bool
	}{
		{"gpt-4o", true},
		{"gpt-4o-mini", true},
		{"o1-preview", true},
		{"claude-3", false},
		{"lorem-fast", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			if got := p.SupportsModel(tt.model); got != tt.expected {
				t.Errorf("SupportsModel(%q) = %v, want %v", tt.model, got, tt.expected)
			}
		})
	}
}

func TestProvider_Stream_TextAndUsage(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("missing auth header")
		}

		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("request body not JSON: %v", err)
		}
		if body["stream"] != true {
			t.Errorf("stream flag not set in request body")
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Write([]byte(`data: {"choices":[{"delta":{"content":"Hi"}}]}` + "\n\n"))
		w.Write([]byte(`data: {"choices":[{"delta":{"content":" there"}}]}` + "\n\n"))
		w.Write([]byte(`data: {"choices":[{"finish_reason":"stop","delta":{}}],"usage":{"prompt_tokens":5,"completion_tokens":2,"total_tokens":7}}` + "\n\n"))
		w.Write([]byte("data: [DONE]\n\n"))
	})

	events, err := p.Stream(context.Background(), userRequest("gpt-4o", "hello"))
	if err != nil {
		t.Fatalf("Stream failed: %v", err)
	}

	var text string
	var usage *agentcore.UsageReport
	var done *agentcore.Done
	for ev := range events {
		switch {
		case ev.Err != nil:
			t.Fatalf("unexpected stream error: %v", ev.Err)
		case ev.ContentDelta != nil:
			text += ev.ContentDelta.Text
		case ev.Usage != nil:
			usage = ev.Usage
		case ev.Done != nil:
			done = ev.Done
		}
	}

	if text != "Hi there" {
		t.Errorf("text = %q, want %q", text, "Hi there")
	}
	if usage == nil || usage.TotalTokens != 7 {
		t.Errorf("usage = %+v, want total 7", usage)
	}
	if done == nil || done.FinishReason != agentcore.FinishStop {
		t.Errorf("done = %+v", done)
	}
}

func TestProvider_Stream_ToolCallAcrossChunks(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.Write([]byte(`data: {"choices":[{"delta":{"tool_calls":[{"index":0,"id":"call_7","function":{"name":"lookup","arguments":"{\"key\""}}]}}]}` + "\n"))
		w.Write([]byte(`data: {"choices":[{"delta":{"tool_calls":[{"index":0,"function":{"name":"","arguments":":\"v\"}"}}]}}]}` + "\n"))
		w.Write([]byte(`data: {"choices":[{"finish_reason":"tool_calls","delta":{}}]}` + "\n"))
		w.Write([]byte("data: [DONE]\n"))
	})

	events, err := p.Stream(context.Background(), userRequest("gpt-4o", "call the tool"))
	if err != nil {
		t.Fatalf("Stream failed: %v", err)
	}

	var calls []agentcore.ToolCallRequest
	for ev := range events {
		if ev.ToolCall != nil {
			calls = append(calls, *ev.ToolCall)
		}
	}

	if len(calls) != 1 {
		t.Fatalf("expected one tool call, got %d", len(calls))
	}
	if calls[0].ID != "call_7" || calls[0].Name != "lookup" {
		t.Errorf("call = %+v", calls[0])
	}
	if calls[0].Arguments != `{"key":"v"}` {
		t.Errorf("arguments = %q", calls[0].Arguments)
	}
}

func TestProvider_Complete(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"model": "gpt-4o",
			"choices": [{"finish_reason":"stop","message":{"content":"The answer is 4."}}],
			"usage": {"prompt_tokens":10,"completion_tokens":6,"total_tokens":16}
		}`))
	})

	resp, err := p.Complete(context.Background(), userRequest("gpt-4o", "2+2?"))
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if resp.Content != "The answer is 4." {
		t.Errorf("content = %q", resp.Content)
	}
	if resp.Usage.TotalTokens != 16 {
		t.Errorf("usage = %+v", resp.Usage)
	}
}

func TestProvider_Complete_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		check  func(t *testing.T, err error)
	}{
		{
			name:   "unauthorized",
			status: http.StatusUnauthorized,
			body:   `{"error":{"message":"bad key"}}`,
			check: func(t *testing.T, err error) {
				if err != agentcore.ErrInvalidAPIKey {
					t.Errorf("expected ErrInvalidAPIKey, got %v", err)
				}
			},
		},
		{
			name:   "rate limited",
			status: http.StatusTooManyRequests,
			body:   `{"error":{"message":"slow down"}}`,
			check: func(t *testing.T, err error) {
				if !agentcore.IsRetryable(err) {
					t.Errorf("rate limit should be retryable, got %v", err)
				}
			},
		},
		{
			name:   "server error",
			status: http.StatusBadGateway,
			body:   `upstream exploded`,
			check: func(t *testing.T, err error) {
				if !agentcore.IsRetryable(err) {
					t.Errorf("5xx should be retryable, got %v", err)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			})

			_, err := p.Complete(context.Background(), userRequest("gpt-4o", "hi"))
			if err == nil {
				t.Fatal("expected an error")
			}
			tt.check(t, err)
		})
	}
}

func TestBuildRequestBody_ToolResultsExpand(t *testing.T) {
	req := &agentcore.Request{
		Model: "gpt-4o",
		Messages: []agentcore.Message{
			agentcore.NewUserMessage("run the tools"),
			{
				Role: agentcore.RoleAssistant,
				ToolCalls: []agentcore.ToolCallRequest{
					{ID: "c1", Name: "a", Arguments: "{}"},
					{ID: "c2", Name: "b", Arguments: "{}"},
				},
			},
			agentcore.NewToolResultMessage([]agentcore.ToolResult{
				{CallID: "c1", Content: "ok"},
				{CallID: "c2", Content: "boom", IsError: true},
			}),
		},
	}

	raw, err := buildRequestBody(req, false)
	if err != nil {
		t.Fatalf("buildRequestBody failed: %v", err)
	}

	var body struct {
		Messages []wireMessage `json:"messages"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		t.Fatalf("body not JSON: %v", err)
	}

	// user, assistant, then one tool message per result.
	if len(body.Messages) != 4 {
		t.Fatalf("expected 4 wire messages, got %d", len(body.Messages))
	}
	if body.Messages[2].ToolCallID != "c1" || body.Messages[3].ToolCallID != "c2" {
		t.Errorf("tool result messages out of order: %+v", body.Messages[2:])
	}
	if len(body.Messages[1].ToolCalls) != 2 {
		t.Errorf("assistant message should carry both tool calls")
	}
}
