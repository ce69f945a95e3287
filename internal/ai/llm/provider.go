package llm

import (
	"fmt"
	"net/http"
	"os"
	"strings"

	aoption "github.com/anthropics/anthropic-sdk-go/option"
	"github.com/openai/openai-go"
	ooption "github.com/openai/openai-go/option"
)

// ProviderOptions overrides the environment-sourced provider settings.
type ProviderOptions struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
}

// NewChatModel builds a chat model from a "provider:model" id.
//
// Supported providers: openai, anthropic, google_genai (Gemini via its OpenAI-compatible
// endpoint). API keys come from OPENAI_API_KEY, ANTHROPIC_API_KEY and GOOGLE_API_KEY
// unless opts.APIKey is set.
func NewChatModel(id string, opts ProviderOptions) (ChatModel, error) {
	provider, model, err := ParseModelID(id)
	if err != nil {
		return nil, err
	}
	apiKey := strings.TrimSpace(opts.APIKey)
	baseURL := strings.TrimSpace(opts.BaseURL)

	switch provider {
	case "openai":
		return newOpenAIChatModel(provider, model, openAIOptions(firstNonEmpty(apiKey, os.Getenv("OPENAI_API_KEY")), baseURL, opts.HTTPClient)...), nil
	case "google_genai", "google", "gemini":
		return newOpenAIChatModel("google_genai", model, openAIOptions(firstNonEmpty(apiKey, os.Getenv("GOOGLE_API_KEY")), firstNonEmpty(baseURL, GeminiOpenAIBaseURL), opts.HTTPClient)...), nil
	case "anthropic":
		key := firstNonEmpty(apiKey, os.Getenv("ANTHROPIC_API_KEY"))
		if key == "" {
			return nil, fmt.Errorf("anthropic: missing api key")
		}
		aopts := []aoption.RequestOption{aoption.WithAPIKey(key)}
		if baseURL != "" {
			aopts = append(aopts, aoption.WithBaseURL(baseURL))
		}
		if opts.HTTPClient != nil {
			aopts = append(aopts, aoption.WithHTTPClient(opts.HTTPClient))
		}
		return newAnthropicChatModel(model, aopts...), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedProvider, provider)
	}
}

// NewEmbedder builds an embedder from a "provider:model" id. Only OpenAI-compatible
// embedding endpoints are supported (openai and google_genai).
func NewEmbedder(id string, opts ProviderOptions) (Embedder, error) {
	provider, model, err := ParseModelID(id)
	if err != nil {
		return nil, err
	}
	apiKey := strings.TrimSpace(opts.APIKey)
	baseURL := strings.TrimSpace(opts.BaseURL)
	switch provider {
	case "openai":
		return &openAIEmbedder{
			client: openai.NewClient(openAIOptions(firstNonEmpty(apiKey, os.Getenv("OPENAI_API_KEY")), baseURL, opts.HTTPClient)...),
			model:  model,
		}, nil
	case "google_genai", "google", "gemini":
		return &openAIEmbedder{
			client: openai.NewClient(openAIOptions(firstNonEmpty(apiKey, os.Getenv("GOOGLE_API_KEY")), firstNonEmpty(baseURL, GeminiOpenAIBaseURL), opts.HTTPClient)...),
			model:  model,
		}, nil
	default:
		return nil, fmt.Errorf("%w for embeddings: %q", ErrUnsupportedProvider, provider)
	}
}

func openAIOptions(apiKey string, baseURL string, hc *http.Client) []ooption.RequestOption {
	var opts []ooption.RequestOption
	if apiKey != "" {
		opts = append(opts, ooption.WithAPIKey(apiKey))
	}
	if baseURL != "" {
		opts = append(opts, ooption.WithBaseURL(baseURL))
	}
	if hc != nil {
		opts = append(opts, ooption.WithHTTPClient(hc))
	}
	return opts
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
