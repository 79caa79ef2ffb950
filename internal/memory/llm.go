package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/youyo/slack-assistant/internal/config"
	"github.com/youyo/slack-assistant/internal/llm"
)

const (
	extractionPrompt = `You are a memory extraction engine for a Slack assistant. Extract durable facts from the conversation below.

Rules:
1. Extract only explicit facts, no speculation
2. Keep each fact concise and independent
3. namespace must be one of: preferences/facts (preferences for how people in this channel want the assistant to behave, facts for everything else worth remembering)
4. importance must be in [0.0, 1.0]
5. Also provide a concise summary of the conversation

Return strict JSON object:
{"facts":[{"content":"...","namespace":"facts","importance":0.8}],"summary":"..."}

Conversation:
%s`

	compressionPrompt = `Merge and deduplicate these memory entries into fewer, reusable facts.
namespace must be one of: preferences/facts. importance must be in [0.0, 1.0].
Return strict JSON object: {"facts":[{"content":"...","namespace":"facts","importance":0.6}]}

Input:
%s`
)

// LLMClient performs the model calls of the memory subsystem.
type LLMClient interface {
	Extract(conversation string) (*ExtractionResult, error)
	Compress(content string) (*CompressionResult, error)
}

type llmClient struct {
	client    llm.Client
	model     string
	maxTokens int
	timeout   time.Duration
}

// NewLLMClient builds the extraction model client. The memory subsystem can
// run on its own provider and model; anything unset falls back to the main
// provider block.
func NewLLMClient(cfg *config.Config) (LLMClient, error) {
	provider := cfg.Provider
	if cfg.Memory.Provider != nil {
		provider = *cfg.Memory.Provider
		if provider.APIKey == "" {
			provider.APIKey = cfg.Provider.APIKey
		}
		if provider.BaseURL == "" {
			provider.BaseURL = cfg.Provider.BaseURL
		}
	}

	model := cfg.Memory.Model
	if model == "" {
		model = cfg.Router.Model
	}
	maxTokens := cfg.Memory.MaxTokens
	if maxTokens <= 0 {
		maxTokens = cfg.Router.MaxTokens
	}

	client, err := llm.NewClient(provider)
	if err != nil {
		return nil, fmt.Errorf("memory llm client: %w", err)
	}

	return &llmClient{
		client:    client,
		model:     model,
		maxTokens: maxTokens,
		timeout:   30 * time.Second,
	}, nil
}

func (c *llmClient) Extract(conversation string) (*ExtractionResult, error) {
	resp, err := c.complete(fmt.Sprintf(extractionPrompt, conversation))
	if err != nil {
		return nil, fmt.Errorf("extract: %w", err)
	}
	var out ExtractionResult
	if err := json.Unmarshal([]byte(llm.StripJSONFences(resp)), &out); err != nil {
		return nil, fmt.Errorf("parse extraction result: %w", err)
	}
	return &out, nil
}

func (c *llmClient) Compress(content string) (*CompressionResult, error) {
	resp, err := c.complete(fmt.Sprintf(compressionPrompt, content))
	if err != nil {
		return nil, fmt.Errorf("compress: %w", err)
	}
	var out CompressionResult
	if err := json.Unmarshal([]byte(llm.StripJSONFences(resp)), &out); err != nil {
		return nil, fmt.Errorf("parse compression result: %w", err)
	}
	return &out, nil
}

func (c *llmClient) complete(prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	return c.client.Complete(ctx, llm.Request{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		Prompt:    prompt,
		ForceJSON: true,
	})
}
