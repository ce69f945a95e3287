package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	aoption "github.com/anthropics/anthropic-sdk-go/option"
)

const anthropicDefaultMaxTokens = 4096

type anthropicChatModel struct {
	client anthropic.Client
	model  string
}

func newAnthropicChatModel(model string, opts ...aoption.RequestOption) *anthropicChatModel {
	return &anthropicChatModel{client: anthropic.NewClient(opts...), model: strings.TrimSpace(model)}
}

func (m *anthropicChatModel) Generate(ctx context.Context, req Request) (Response, error) {
	if m == nil {
		return Response{}, errors.New("nil model")
	}
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(m.model),
		MaxTokens: anthropicDefaultMaxTokens,
		Messages:  buildAnthropicMessages(req.Messages),
		Tools:     buildAnthropicTools(req.Tools),
	}
	if req.MaxOutputTokens > 0 {
		params.MaxTokens = req.MaxOutputTokens
	}
	system := strings.TrimSpace(req.System)
	for _, msg := range req.Messages {
		if msg.Role == RoleSystem {
			system = strings.TrimSpace(system + "\n\n" + ContentText(msg.Content))
		}
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	resp, err := m.client.Messages.New(ctx, params)
	if err != nil {
		return Response{}, err
	}
	if resp == nil {
		return Response{}, errors.New("empty anthropic response")
	}

	msg := Message{
		ID:     resp.ID,
		Role:   RoleAssistant,
		CallID: resp.ID,
		ResponseMetadata: map[string]any{
			"model_provider": "anthropic",
			"model_name":     string(resp.Model),
			"stop_reason":    string(resp.StopReason),
		},
	}
	var parts PartsContent
	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			parts = append(parts, TextPart{Text: block.Text})
		case "tool_use":
			args := map[string]any{}
			if len(block.Input) > 0 {
				_ = json.Unmarshal(block.Input, &args)
			}
			callID := strings.TrimSpace(block.ID)
			if callID == "" {
				callID = fmt.Sprintf("anthropic_call_%d", len(msg.ToolCalls)+1)
			}
			msg.ToolCalls = append(msg.ToolCalls, ToolCall{ID: callID, Name: block.Name, Args: args})
		}
	}
	msg.Content = parts

	in, out := resp.Usage.InputTokens, resp.Usage.OutputTokens
	if in > 0 || out > 0 {
		msg.UsageMetadata = usageMap(in, out, 0)
	}
	return Response{
		Message: msg,
		CallID:  resp.ID,
		LLMOutput: map[string]any{
			"model_name":  string(resp.Model),
			"token_usage": map[string]any{"input_tokens": in, "output_tokens": out},
		},
	}, nil
}

func buildAnthropicTools(specs []ToolSpec) []anthropic.ToolUnionParam {
	if len(specs) == 0 {
		return nil
	}
	out := make([]anthropic.ToolUnionParam, 0, len(specs))
	for _, spec := range specs {
		name := strings.TrimSpace(spec.Name)
		if name == "" {
			continue
		}
		schema := schemaOrEmpty(spec.Parameters)
		var required []string
		switch r := schema["required"].(type) {
		case []string:
			required = r
		case []any:
			for _, v := range r {
				if s, ok := v.(string); ok {
					required = append(required, s)
				}
			}
		}
		param := anthropic.ToolParam{
			Name:        name,
			InputSchema: anthropic.ToolInputSchemaParam{Properties: schema["properties"], Required: required},
		}
		if d := strings.TrimSpace(spec.Description); d != "" {
			param.Description = anthropic.String(d)
		}
		out = append(out, anthropic.ToolUnionParam{OfTool: &param})
	}
	return out
}

// buildAnthropicMessages folds consecutive tool results into a single user turn, which
// the Messages API requires after an assistant tool_use turn.
func buildAnthropicMessages(messages []Message) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(messages))
	var pendingResults []anthropic.ContentBlockParamUnion
	flush := func() {
		if len(pendingResults) == 0 {
			return
		}
		out = append(out, anthropic.NewUserMessage(pendingResults...))
		pendingResults = nil
	}
	for _, msg := range messages {
		text := ContentText(msg.Content)
		switch msg.Role {
		case RoleTool:
			pendingResults = append(pendingResults, anthropic.NewToolResultBlock(msg.ToolCallID, text, strings.HasPrefix(text, "Error:")))
		case RoleUser:
			flush()
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(text)))
		case RoleAssistant:
			flush()
			blocks := make([]anthropic.ContentBlockParamUnion, 0, len(msg.ToolCalls)+1)
			if strings.TrimSpace(text) != "" {
				blocks = append(blocks, anthropic.NewTextBlock(text))
			}
			for _, tc := range msg.ToolCalls {
				args := tc.Args
				if args == nil {
					args = map[string]any{}
				}
				blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, args, tc.Name))
			}
			if len(blocks) == 0 {
				continue
			}
			out = append(out, anthropic.NewAssistantMessage(blocks...))
		}
	}
	flush()
	return out
}
