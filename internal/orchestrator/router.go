package orchestrator

import (
	"context"
	"fmt"

	"github.com/youyo/slack-assistant/internal/bus"
	"github.com/youyo/slack-assistant/internal/config"
	"github.com/youyo/slack-assistant/internal/llm"
)

// RouterClient is the cheap classification stage (allows mocking in tests).
type RouterClient interface {
	Route(ctx context.Context, ev bus.InboundEvent, memoryContext string) (bus.RoutingDecision, error)
}

type llmRouter struct {
	client    llm.Client
	model     string
	maxTokens int
	system    string
}

// NewRouter builds the model-backed router stage.
func NewRouter(cfg *config.Config) (RouterClient, error) {
	client, err := llm.NewClient(cfg.Provider)
	if err != nil {
		return nil, fmt.Errorf("router client: %w", err)
	}
	return &llmRouter{
		client:    client,
		model:     cfg.Router.Model,
		maxTokens: cfg.Router.MaxTokens,
		system:    RouterPrompt(cfg.Router),
	}, nil
}

func (r *llmRouter) Route(ctx context.Context, ev bus.InboundEvent, memoryContext string) (bus.RoutingDecision, error) {
	raw, err := r.client.Complete(ctx, llm.Request{
		Model:     r.model,
		MaxTokens: r.maxTokens,
		System:    r.system,
		Prompt:    stagePrompt(ev, memoryContext),
		ForceJSON: true,
	})
	if err != nil {
		return bus.RoutingDecision{}, fmt.Errorf("router invocation: %w", err)
	}

	decision, err := DecodeRoutingDecision(raw)
	if err != nil {
		return bus.RoutingDecision{}, fmt.Errorf("router output: %w", err)
	}
	return decision, nil
}
