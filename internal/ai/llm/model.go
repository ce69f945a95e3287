package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ToolSpec describes one callable tool to the model.
type ToolSpec struct {
	Name        string
	Description string
	// Parameters is a JSON schema object ({"type":"object","properties":...}).
	Parameters map[string]any
}

// Request is one model call.
type Request struct {
	System   string
	Messages []Message
	Tools    []ToolSpec
	// MaxOutputTokens is optional; zero keeps the provider default.
	MaxOutputTokens int64
}

// Response is what a model call produced.
//
// LLMOutput is the provider-level payload handed to completion observers. It carries
// the usage record under "token_usage" independently of the message metadata.
type Response struct {
	Message   Message
	CallID    string
	LLMOutput map[string]any
}

// ChatModel is a single-shot, tool-aware chat model.
type ChatModel interface {
	Generate(ctx context.Context, req Request) (Response, error)
}

// Embedder turns text into vectors.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float64, error)
}

var ErrUnsupportedProvider = errors.New("unsupported model provider")

// ParseModelID splits "provider:model". A bare model name is treated as an OpenAI model.
func ParseModelID(id string) (provider string, model string, err error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", "", errors.New("missing model id")
	}
	provider, model, ok := strings.Cut(id, ":")
	if !ok {
		return "openai", id, nil
	}
	provider = strings.ToLower(strings.TrimSpace(provider))
	model = strings.TrimSpace(model)
	if provider == "" || model == "" {
		return "", "", fmt.Errorf("invalid model id %q", id)
	}
	return provider, model, nil
}

// Oracle adapts a ChatModel into a plain text-in/text-out call.
func Oracle(model ChatModel) func(ctx context.Context, prompt string) (string, error) {
	return func(ctx context.Context, prompt string) (string, error) {
		if model == nil {
			return "", errors.New("nil model")
		}
		resp, err := model.Generate(ctx, Request{Messages: []Message{UserMessage(prompt)}})
		if err != nil {
			return "", err
		}
		return ContentText(resp.Message.Content), nil
	}
}

// ContentText concatenates the text parts of c. Non-text values are skipped.
func ContentText(c Content) string {
	switch v := c.(type) {
	case TextContent:
		return string(v)
	case StructuredContent:
		return v.Text
	case PartsContent:
		var b strings.Builder
		for _, p := range v {
			if tp, ok := p.(TextPart); ok {
				b.WriteString(tp.Text)
			}
		}
		return b.String()
	default:
		return ""
	}
}

func usageMap(input, output, total int64) map[string]any {
	if total <= 0 {
		total = input + output
	}
	return map[string]any{
		"input_tokens":  input,
		"output_tokens": output,
		"total_tokens":  total,
	}
}

func decodeArgs(raw string) map[string]any {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return map[string]any{}
	}
	args := map[string]any{}
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return map[string]any{"__raw": raw}
	}
	return args
}

func encodeArgs(args map[string]any) string {
	if len(args) == 0 {
		return "{}"
	}
	b, err := json.Marshal(args)
	if err != nil {
		return "{}"
	}
	return string(b)
}
