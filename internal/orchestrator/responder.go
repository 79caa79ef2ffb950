package orchestrator

import (
	"context"
	"fmt"

	"github.com/cexll/agentsdk-go/pkg/api"
	"github.com/cexll/agentsdk-go/pkg/model"
	"github.com/youyo/slack-assistant/internal/bus"
	"github.com/youyo/slack-assistant/internal/config"
	"github.com/youyo/slack-assistant/internal/memory"
)

// Runtime interface for the agent runtime (allows mocking in tests)
type Runtime interface {
	Run(ctx context.Context, req api.Request) (*api.Response, error)
	Close()
}

// runtimeAdapter wraps api.Runtime to implement Runtime interface
type runtimeAdapter struct {
	rt *api.Runtime
}

func (r *runtimeAdapter) Run(ctx context.Context, req api.Request) (*api.Response, error) {
	return r.rt.Run(ctx, req)
}

func (r *runtimeAdapter) Close() {
	r.rt.Close()
}

// RuntimeFactory creates a Runtime instance
type RuntimeFactory func(cfg *config.Config, sysPrompt string) (Runtime, error)

// DefaultRuntimeFactory creates the default agentsdk-go runtime
func DefaultRuntimeFactory(cfg *config.Config, sysPrompt string) (Runtime, error) {
	var provider api.ModelFactory
	switch cfg.Provider.Type {
	case "openai":
		provider = &model.OpenAIProvider{
			APIKey:    cfg.Provider.APIKey,
			BaseURL:   cfg.Provider.BaseURL,
			ModelName: cfg.Responder.Model,
			MaxTokens: cfg.Responder.MaxTokens,
		}
	default: // "anthropic" or empty
		provider = &model.AnthropicProvider{
			APIKey:    cfg.Provider.APIKey,
			BaseURL:   cfg.Provider.BaseURL,
			ModelName: cfg.Responder.Model,
			MaxTokens: cfg.Responder.MaxTokens,
		}
	}

	rt, err := api.New(context.Background(), api.Options{
		ProjectRoot:  cfg.Responder.Workspace,
		ModelFactory: provider,
		SystemPrompt: sysPrompt,
	})
	if err != nil {
		return nil, fmt.Errorf("create runtime: %w", err)
	}
	return &runtimeAdapter{rt: rt}, nil
}

// Responder is the full-generation stage. Each invocation is bound to a
// memory partition through the runtime session id, so follow-up turns in the
// same thread share agent state.
type Responder struct {
	runtime Runtime
}

func NewResponder(runtime Runtime) *Responder {
	return &Responder{runtime: runtime}
}

func (r *Responder) Close() {
	if r.runtime != nil {
		r.runtime.Close()
	}
}

// Respond invokes the runtime and validates its structured output.
func (r *Responder) Respond(ctx context.Context, ev bus.InboundEvent, key memory.Key, memoryContext string) (bus.FinalReply, error) {
	resp, err := r.runtime.Run(ctx, api.Request{
		Prompt:    stagePrompt(ev, memoryContext),
		SessionID: key.SessionKey(),
	})
	if err != nil {
		return bus.FinalReply{}, fmt.Errorf("responder invocation: %w", err)
	}
	if resp == nil || resp.Result == nil {
		return bus.FinalReply{}, fmt.Errorf("responder returned no result")
	}

	reply, err := DecodeFinalReply(resp.Result.Output)
	if err != nil {
		return bus.FinalReply{}, fmt.Errorf("responder output: %w", err)
	}
	return reply, nil
}
