package anthropic

import (
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"

	agentcore "github.com/haowjy/meridian-agent-go"
)

// buildMessageParams constructs Anthropic API parameters from a Request.
// Shared between Complete and Stream.
func buildMessageParams(req *agentcore.Request) (anthropic.MessageNewParams, error) {
	messages, err := convertMessages(req.Messages)
	if err != nil {
		return anthropic.MessageNewParams{}, fmt.Errorf("failed to convert messages: %w", err)
	}

	params := req.Params
	if params == nil {
		params = &agentcore.RequestParams{}
	}

	apiParams := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		Messages:  messages,
		MaxTokens: int64(params.GetMaxTokens(4096)),
	}

	if params.Temperature != nil {
		apiParams.Temperature = anthropic.Float(*params.Temperature)
	}
	if params.TopP != nil {
		apiParams.TopP = anthropic.Float(*params.TopP)
	}
	if len(params.Stop) > 0 {
		apiParams.StopSequences = params.Stop
	}
	if system := params.GetSystem(); system != "" {
		apiParams.System = []anthropic.TextBlockParam{
			{
				Type: "text",
				Text: system,
			},
		}
	}

	tools, err := convertTools(req.Tools)
	if err != nil {
		return anthropic.MessageNewParams{}, err
	}
	apiParams.Tools = tools

	return apiParams, nil
}

// convertMessages converts library messages to the SDK message format.
// Tool results attach to a user turn; assistant tool calls replay as
// tool_use blocks so the follow-up request carries the full exchange.
func convertMessages(messages []agentcore.Message) ([]anthropic.MessageParam, error) {
	result := make([]anthropic.MessageParam, 0, len(messages))

	for i, msg := range messages {
		switch msg.Role {
		case agentcore.RoleUser:
			result = append(result, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))

		case agentcore.RoleAssistant:
			blocks := make([]anthropic.ContentBlockParamUnion, 0, 1+len(msg.ToolCalls))
			if msg.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(msg.Content))
			}
			for _, call := range msg.ToolCalls {
				var input any
				if err := json.Unmarshal([]byte(call.Arguments), &input); err != nil {
					input = map[string]any{}
				}
				blocks = append(blocks, anthropic.NewToolUseBlock(call.ID, input, call.Name))
			}
			if len(blocks) == 0 {
				return nil, fmt.Errorf("message %d: assistant message has no content", i)
			}
			result = append(result, anthropic.NewAssistantMessage(blocks...))

		case agentcore.RoleTool:
			blocks := make([]anthropic.ContentBlockParamUnion, 0, len(msg.ToolResults))
			for _, tr := range msg.ToolResults {
				blocks = append(blocks, anthropic.NewToolResultBlock(tr.CallID, tr.Content, tr.IsError))
			}
			if len(blocks) == 0 {
				return nil, fmt.Errorf("message %d: tool message has no results", i)
			}
			result = append(result, anthropic.NewUserMessage(blocks...))

		case agentcore.RoleSystem:
			// System prompts travel in Params, not the message array.
			return nil, fmt.Errorf("message %d: system messages must be set via RequestParams.System", i)

		default:
			return nil, fmt.Errorf("message %d: unsupported role %q", i, msg.Role)
		}
	}

	return result, nil
}

// convertTools converts function tools to the Anthropic custom-tool
// format (parameters → input_schema).
func convertTools(tools []*agentcore.Tool) ([]anthropic.ToolUnionParam, error) {
	if len(tools) == 0 {
		return nil, nil
	}

	result := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, tool := range tools {
		schema := anthropic.ToolInputSchemaParam{
			Properties:  tool.Function.Parameters["properties"],
			ExtraFields: make(map[string]any),
		}

		if required, ok := tool.Function.Parameters["required"].([]any); ok {
			schema.Required = make([]string, 0, len(required))
			for _, v := range required {
				if s, ok := v.(string); ok {
					schema.Required = append(schema.Required, s)
				}
			}
		}

		for key, value := range tool.Function.Parameters {
			switch key {
			case "type", "properties", "required":
			default:
				schema.ExtraFields[key] = value
			}
		}

		toolParam := anthropic.ToolUnionParamOfTool(schema, tool.Function.Name)
		if tool.Function.Description != "" {
			toolParam.OfTool.Description = anthropic.String(tool.Function.Description)
		}

		result = append(result, toolParam)
	}

	return result, nil
}
