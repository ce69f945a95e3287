package llm

import (
	"context"
	"errors"
	"strings"

	"github.com/openai/openai-go"
	ooption "github.com/openai/openai-go/option"
)

// GeminiOpenAIBaseURL is Google's OpenAI-compatible endpoint for Gemini models.
const GeminiOpenAIBaseURL = "https://generativelanguage.googleapis.com/v1beta/openai/"

type openAIChatModel struct {
	client openai.Client
	model  string
	// provider is recorded in response metadata ("openai" or "google_genai").
	provider string
}

func newOpenAIChatModel(provider string, model string, opts ...ooption.RequestOption) *openAIChatModel {
	return &openAIChatModel{
		client:   openai.NewClient(opts...),
		model:    strings.TrimSpace(model),
		provider: provider,
	}
}

func (m *openAIChatModel) Generate(ctx context.Context, req Request) (Response, error) {
	if m == nil {
		return Response{}, errors.New("nil model")
	}
	params := openai.ChatCompletionNewParams{
		Model:    m.model,
		Messages: buildOpenAIMessages(req.System, req.Messages),
		Tools:    buildOpenAITools(req.Tools),
	}
	if req.MaxOutputTokens > 0 {
		params.MaxCompletionTokens = openai.Int(req.MaxOutputTokens)
	}

	completion, err := m.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return Response{}, err
	}
	if completion == nil || len(completion.Choices) == 0 {
		return Response{}, errors.New("empty completion")
	}
	choice := completion.Choices[0]

	msg := Message{
		ID:      completion.ID,
		Role:    RoleAssistant,
		Content: TextContent(choice.Message.Content),
		CallID:  completion.ID,
		ResponseMetadata: map[string]any{
			"model_provider": m.provider,
			"model_name":     completion.Model,
			"finish_reason":  choice.FinishReason,
		},
	}
	for _, tc := range choice.Message.ToolCalls {
		msg.ToolCalls = append(msg.ToolCalls, ToolCall{
			ID:   tc.ID,
			Name: tc.Function.Name,
			Args: decodeArgs(tc.Function.Arguments),
		})
	}

	u := completion.Usage
	if u.PromptTokens > 0 || u.CompletionTokens > 0 {
		msg.UsageMetadata = usageMap(u.PromptTokens, u.CompletionTokens, u.TotalTokens)
	}
	return Response{
		Message: msg,
		CallID:  completion.ID,
		LLMOutput: map[string]any{
			"model_name": completion.Model,
			"token_usage": map[string]any{
				"prompt_tokens":     u.PromptTokens,
				"completion_tokens": u.CompletionTokens,
				"total_tokens":      u.TotalTokens,
			},
		},
	}, nil
}

func buildOpenAITools(specs []ToolSpec) []openai.ChatCompletionToolParam {
	if len(specs) == 0 {
		return nil
	}
	out := make([]openai.ChatCompletionToolParam, 0, len(specs))
	for _, spec := range specs {
		name := strings.TrimSpace(spec.Name)
		if name == "" {
			continue
		}
		fn := openai.FunctionDefinitionParam{
			Name:       name,
			Parameters: openai.FunctionParameters(schemaOrEmpty(spec.Parameters)),
		}
		if d := strings.TrimSpace(spec.Description); d != "" {
			fn.Description = openai.String(d)
		}
		out = append(out, openai.ChatCompletionToolParam{Function: fn})
	}
	return out
}

func buildOpenAIMessages(system string, messages []Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages)+1)
	if s := strings.TrimSpace(system); s != "" {
		out = append(out, openai.SystemMessage(s))
	}
	for _, msg := range messages {
		text := ContentText(msg.Content)
		switch msg.Role {
		case RoleSystem:
			out = append(out, openai.SystemMessage(text))
		case RoleUser:
			out = append(out, openai.UserMessage(text))
		case RoleTool:
			out = append(out, openai.ToolMessage(text, msg.ToolCallID))
		case RoleAssistant:
			if !msg.HasToolCalls() {
				out = append(out, openai.AssistantMessage(text))
				continue
			}
			asst := openai.ChatCompletionAssistantMessageParam{}
			if strings.TrimSpace(text) != "" {
				asst.Content.OfString = openai.String(text)
			}
			for _, tc := range msg.ToolCalls {
				asst.ToolCalls = append(asst.ToolCalls, openai.ChatCompletionMessageToolCallParam{
					ID: tc.ID,
					Function: openai.ChatCompletionMessageToolCallFunctionParam{
						Name:      tc.Name,
						Arguments: encodeArgs(tc.Args),
					},
				})
			}
			out = append(out, openai.ChatCompletionMessageParamUnion{OfAssistant: &asst})
		}
	}
	return out
}

func schemaOrEmpty(schema map[string]any) map[string]any {
	if len(schema) == 0 {
		return map[string]any{"type": "object", "properties": map[string]any{}}
	}
	return schema
}

type openAIEmbedder struct {
	client openai.Client
	model  string
}

func (e *openAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	if e == nil {
		return nil, errors.New("nil embedder")
	}
	if len(texts) == 0 {
		return nil, nil
	}
	resp, err := e.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model: e.model,
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
	})
	if err != nil {
		return nil, err
	}
	out := make([][]float64, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || int(d.Index) >= len(out) {
			continue
		}
		out[d.Index] = d.Embedding
	}
	for i := range out {
		if out[i] == nil {
			return nil, errors.New("embedding response is missing vectors")
		}
	}
	return out, nil
}
