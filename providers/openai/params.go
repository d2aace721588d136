package openai

import (
	"fmt"

	"github.com/tidwall/sjson"

	agentcore "github.com/haowjy/meridian-agent-go"
)

// wireMessage is one entry in the chat completions messages array.
type wireMessage struct {
	Role       string         `json:"role"`
	Content    string         `json:"content"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
	ToolCalls  []wireToolCall `json:"tool_calls,omitempty"`
}

type wireToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

// buildRequestBody assembles the chat completions request JSON. Optional
// fields are patched in with sjson so absent parameters stay off the wire
// rather than serializing as zero values.
func buildRequestBody(req *agentcore.Request, stream bool) ([]byte, error) {
	body, err := sjson.Set("{}", "model", req.Model)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	messages, err := convertMessages(req)
	if err != nil {
		return nil, err
	}
	if body, err = sjson.Set(body, "messages", messages); err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	if params := req.Params; params != nil {
		if params.MaxTokens != nil {
			body, _ = sjson.Set(body, "max_tokens", *params.MaxTokens)
		}
		if params.Temperature != nil {
			body, _ = sjson.Set(body, "temperature", *params.Temperature)
		}
		if params.TopP != nil {
			body, _ = sjson.Set(body, "top_p", *params.TopP)
		}
		if len(params.Stop) > 0 {
			body, _ = sjson.Set(body, "stop", params.Stop)
		}
	}

	if len(req.Tools) > 0 {
		body, _ = sjson.Set(body, "tools", req.Tools)
	}

	if stream {
		body, _ = sjson.Set(body, "stream", true)
		// Usage is only reported on the final frame when asked for.
		body, _ = sjson.Set(body, "stream_options.include_usage", true)
	}

	return []byte(body), nil
}

// convertMessages maps library messages onto the wire format. A system
// prompt from Params leads the array; tool results expand to one wire
// message per call id.
func convertMessages(req *agentcore.Request) ([]wireMessage, error) {
	out := make([]wireMessage, 0, len(req.Messages)+1)

	if system := req.Params.GetSystem(); system != "" {
		out = append(out, wireMessage{Role: agentcore.RoleSystem, Content: system})
	}

	for _, msg := range req.Messages {
		switch msg.Role {
		case agentcore.RoleSystem, agentcore.RoleUser:
			out = append(out, wireMessage{Role: msg.Role, Content: msg.Content})

		case agentcore.RoleAssistant:
			wm := wireMessage{Role: msg.Role, Content: msg.Content}
			for _, call := range msg.ToolCalls {
				wtc := wireToolCall{ID: call.ID, Type: "function"}
				wtc.Function.Name = call.Name
				wtc.Function.Arguments = call.Arguments
				wm.ToolCalls = append(wm.ToolCalls, wtc)
			}
			out = append(out, wm)

		case agentcore.RoleTool:
			for _, result := range msg.ToolResults {
				out = append(out, wireMessage{
					Role:       agentcore.RoleTool,
					Content:    result.Content,
					ToolCallID: result.CallID,
				})
			}

		default:
			return nil, fmt.Errorf("unsupported message role %q", msg.Role)
		}
	}

	return out, nil
}
