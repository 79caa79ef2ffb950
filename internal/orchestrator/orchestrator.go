package orchestrator

import (
	"context"
	"errors"
	"log"
	"strings"
	"unicode/utf8"

	"github.com/youyo/slack-assistant/internal/bus"
	"github.com/youyo/slack-assistant/internal/memory"
)

// preFilterMaxLen is the character count at or below which a non-mention is
// dropped without spending a router call.
const preFilterMaxLen = 3

// MemorySource provides the memory context block for a pipeline run. May be
// nil when memory is disabled.
type MemorySource interface {
	Context(key memory.Key, text string) string
}

// Orchestrator sequences the router and responder stages for one event and
// absorbs every stage failure into a well-formed FinalReply. Callers bound
// the run with the ctx deadline; an expired deadline resolves to an ignore
// decision tagged with the timeout, never a hang or a panic.
type Orchestrator struct {
	router    RouterClient
	responder *Responder
	mem       MemorySource
}

func New(router RouterClient, responder *Responder, mem MemorySource) *Orchestrator {
	return &Orchestrator{router: router, responder: responder, mem: mem}
}

// Orchestrate runs the state machine for one event and always returns a
// usable FinalReply.
func (o *Orchestrator) Orchestrate(ctx context.Context, ev bus.InboundEvent) bus.FinalReply {
	if utf8.RuneCountInString(strings.TrimSpace(ev.Text)) <= preFilterMaxLen && !ev.IsMentioned {
		return bus.IgnoreReply("pre-filtered: short message without mention")
	}

	key := memory.NewKey(ev.ChannelID, ev.ThreadTS)
	memoryContext := ""
	if o.mem != nil {
		memoryContext = o.mem.Context(key, ev.Text)
	}

	decision, err := o.router.Route(ctx, ev, memoryContext)
	if err != nil {
		reason := stageFailureReason(ctx, "router", err)
		log.Printf("[orchestrator] router failure for channel=%s ts=%s: %v", ev.ChannelID, ev.EventTS, err)
		return bus.IgnoreReply(reason)
	}

	if !decision.ShouldReply || decision.Route == bus.RouteIgnore {
		return bus.FinalReply{RoutingDecision: decision}
	}

	reply, err := o.responder.Respond(ctx, ev, key, memoryContext)
	if err != nil {
		// Router fallback: keep its decision fields, drop the text. An empty
		// reply_text makes delivery skip the post rather than fail the run.
		log.Printf("[orchestrator] responder failure for channel=%s ts=%s: %v", ev.ChannelID, ev.EventTS, err)
		fallback := bus.FinalReply{RoutingDecision: decision}
		fallback.Reason = stageFailureReason(ctx, "responder", err)
		return fallback
	}

	// The responder's output wins outright, including a late should_reply=false.
	return reply
}

func stageFailureReason(ctx context.Context, stage string, err error) string {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return stage + " timeout: " + err.Error()
	}
	return stage + " failure: " + err.Error()
}
