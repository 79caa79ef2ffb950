package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/youyo/slack-assistant/internal/config"
)

// Request is one single-turn completion call.
type Request struct {
	Model     string
	MaxTokens int
	System    string
	Prompt    string
	// ForceJSON asks the provider to constrain output to a JSON object where
	// the API supports it. Callers must still validate the returned text.
	ForceJSON bool
}

// Client produces one text completion per request.
type Client interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// NewClient picks the transport for a provider. Anthropic is the default;
// any explicit openai type (or a custom base URL with type "openai") gets
// the chat-completions transport.
func NewClient(p config.ProviderConfig) (Client, error) {
	if strings.TrimSpace(p.APIKey) == "" {
		return nil, fmt.Errorf("missing provider api key")
	}

	httpClient := &http.Client{Timeout: 60 * time.Second}

	switch strings.ToLower(strings.TrimSpace(p.Type)) {
	case "", "anthropic":
		return &anthropicClient{
			apiKey:     p.APIKey,
			baseURL:    normalizeBaseURL(p.BaseURL, "https://api.anthropic.com"),
			httpClient: httpClient,
		}, nil
	case "openai":
		return &openaiClient{
			apiKey:     p.APIKey,
			baseURL:    normalizeBaseURL(p.BaseURL, "https://api.openai.com/v1"),
			httpClient: httpClient,
		}, nil
	default:
		return nil, fmt.Errorf("unsupported provider type %q", p.Type)
	}
}

func normalizeBaseURL(configured, fallback string) string {
	u := strings.TrimRight(strings.TrimSpace(configured), "/")
	if u == "" {
		return fallback
	}
	return u
}

// StripJSONFences removes a markdown code fence around a JSON payload.
// Models occasionally wrap structured output despite instructions.
func StripJSONFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
