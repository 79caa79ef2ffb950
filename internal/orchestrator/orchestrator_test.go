package orchestrator

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/cexll/agentsdk-go/pkg/api"
	"github.com/youyo/slack-assistant/internal/bus"
	"github.com/youyo/slack-assistant/internal/memory"
)

type stubRouter struct {
	decision bus.RoutingDecision
	err      error
	calls    int
}

func (s *stubRouter) Route(ctx context.Context, ev bus.InboundEvent, memoryContext string) (bus.RoutingDecision, error) {
	s.calls++
	return s.decision, s.err
}

// mockRuntime implements Runtime interface for testing
type mockRuntime struct {
	response *api.Response
	err      error
	calls    int
	lastReq  api.Request
	closed   bool
}

func (m *mockRuntime) Run(ctx context.Context, req api.Request) (*api.Response, error) {
	m.calls++
	m.lastReq = req
	return m.response, m.err
}

func (m *mockRuntime) Close() { m.closed = true }

type staticMemory struct {
	block string
}

func (s *staticMemory) Context(key memory.Key, text string) string { return s.block }

func replyDecision(route bus.Route) bus.RoutingDecision {
	return bus.RoutingDecision{
		ShouldReply: true,
		Route:       route,
		ReplyMode:   bus.ReplyModeThread,
		TypingStyle: bus.TypingShort,
		Reason:      "looks like a question",
	}
}

func publicEvent(text string, mentioned bool) bus.InboundEvent {
	return bus.InboundEvent{
		ChannelID:   "C1",
		ChannelKind: bus.KindPublic,
		UserID:      "U1",
		Text:        text,
		EventTS:     "1724.000100",
		ThreadTS:    "1724.000100",
		IsMentioned: mentioned,
	}
}

const finalReplyJSON = `{"should_reply":true,"route":"full_reply","reply_mode":"thread","typing_style":"short","reason":"answered","reply_text":"here you go"}`

func TestOrchestrate_PreFilterShortMessage(t *testing.T) {
	// Length is counted in characters, not bytes: CJK noise like "うん" is
	// 6 bytes but still a 2-character message.
	cases := []struct {
		name string
		text string
	}{
		{"ascii", "k"},
		{"ascii at limit", "brb"},
		{"japanese", "うん"},
		{"japanese at limit", "うーん"},
		{"emoji", "👍"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			router := &stubRouter{}
			runtime := &mockRuntime{}
			o := New(router, NewResponder(runtime), nil)

			reply := o.Orchestrate(context.Background(), publicEvent(tc.text, false))

			if reply.ShouldReply || reply.Route != bus.RouteIgnore {
				t.Errorf("reply = %+v", reply)
			}
			if router.calls != 0 {
				t.Errorf("router called %d times, want 0", router.calls)
			}
			if runtime.calls != 0 {
				t.Errorf("responder called %d times, want 0", runtime.calls)
			}
		})
	}
}

func TestOrchestrate_FourCharacterMessageRoutes(t *testing.T) {
	router := &stubRouter{decision: bus.RoutingDecision{ShouldReply: false, Route: bus.RouteIgnore, ReplyMode: bus.ReplyModeThread, TypingStyle: bus.TypingNone}}
	o := New(router, NewResponder(&mockRuntime{}), nil)

	o.Orchestrate(context.Background(), publicEvent("help", false))
	if router.calls != 1 {
		t.Errorf("router called %d times, want 1 for 4-character message", router.calls)
	}
}

func TestOrchestrate_ShortMentionStillRoutes(t *testing.T) {
	router := &stubRouter{decision: bus.RoutingDecision{ShouldReply: false, Route: bus.RouteIgnore, ReplyMode: bus.ReplyModeThread, TypingStyle: bus.TypingNone}}
	o := New(router, NewResponder(&mockRuntime{}), nil)

	o.Orchestrate(context.Background(), publicEvent("?", true))
	if router.calls != 1 {
		t.Errorf("router called %d times, want 1 for short mention", router.calls)
	}
}

func TestOrchestrate_RouterFailure(t *testing.T) {
	router := &stubRouter{err: errors.New("model unavailable")}
	runtime := &mockRuntime{}
	o := New(router, NewResponder(runtime), nil)

	reply := o.Orchestrate(context.Background(), publicEvent("can someone explain this build failure?", false))

	if reply.ShouldReply {
		t.Error("should_reply after router failure")
	}
	if reply.Reason == "" {
		t.Error("reason missing on router failure")
	}
	if runtime.calls != 0 {
		t.Errorf("responder called %d times after router failure, want 0", runtime.calls)
	}
}

func TestOrchestrate_RouterIgnore(t *testing.T) {
	router := &stubRouter{decision: bus.RoutingDecision{ShouldReply: false, Route: bus.RouteIgnore, ReplyMode: bus.ReplyModeThread, TypingStyle: bus.TypingNone, Reason: "humans talking"}}
	runtime := &mockRuntime{}
	o := New(router, NewResponder(runtime), nil)

	reply := o.Orchestrate(context.Background(), publicEvent("lunch anyone? thinking about pizza", false))

	if reply.ShouldReply || reply.ReplyText != "" {
		t.Errorf("reply = %+v", reply)
	}
	if reply.Reason != "humans talking" {
		t.Errorf("reason = %q", reply.Reason)
	}
	if runtime.calls != 0 {
		t.Error("responder invoked for ignore route")
	}
}

func TestOrchestrate_ResponderFailureFallsBackToRouter(t *testing.T) {
	router := &stubRouter{decision: replyDecision(bus.RouteFullReply)}
	runtime := &mockRuntime{err: errors.New("runtime crashed")}
	o := New(router, NewResponder(runtime), nil)

	reply := o.Orchestrate(context.Background(), publicEvent("how do I rotate these credentials?", true))

	if !reply.ShouldReply || reply.Route != bus.RouteFullReply {
		t.Errorf("router fields lost: %+v", reply)
	}
	if reply.ReplyMode != bus.ReplyModeThread || reply.TypingStyle != bus.TypingShort {
		t.Errorf("router fields lost: %+v", reply)
	}
	if reply.ReplyText != "" {
		t.Errorf("reply_text = %q, want empty on fallback", reply.ReplyText)
	}
	if reply.Reason == "" {
		t.Error("fallback reason missing")
	}
}

func TestOrchestrate_ResponderInvalidOutputFallsBack(t *testing.T) {
	router := &stubRouter{decision: replyDecision(bus.RouteFullReply)}
	runtime := &mockRuntime{response: &api.Response{Result: &api.Result{Output: "sure, here's my answer"}}}
	o := New(router, NewResponder(runtime), nil)

	reply := o.Orchestrate(context.Background(), publicEvent("what changed in the deploy?", true))

	if reply.ReplyText != "" {
		t.Errorf("reply_text = %q, want empty when output fails validation", reply.ReplyText)
	}
	if !reply.ShouldReply {
		t.Error("router fallback dropped")
	}
}

func TestOrchestrate_ResponderOutputWins(t *testing.T) {
	router := &stubRouter{decision: replyDecision(bus.RouteSimpleReply)}
	runtime := &mockRuntime{response: &api.Response{Result: &api.Result{Output: finalReplyJSON}}}
	o := New(router, NewResponder(runtime), nil)

	reply := o.Orchestrate(context.Background(), publicEvent("what does this stack trace mean?", true))

	if reply.ReplyText != "here you go" {
		t.Errorf("reply_text = %q", reply.ReplyText)
	}
	if reply.Route != bus.RouteFullReply {
		t.Errorf("route = %s, responder should override router's %s", reply.Route, bus.RouteSimpleReply)
	}
	if reply.Reason != "answered" {
		t.Errorf("reason = %q", reply.Reason)
	}
}

func TestOrchestrate_ResponderLateIgnoreWins(t *testing.T) {
	router := &stubRouter{decision: replyDecision(bus.RouteFullReply)}
	runtime := &mockRuntime{response: &api.Response{Result: &api.Result{Output: `{"should_reply":false,"route":"ignore","reason":"already answered above"}`}}}
	o := New(router, NewResponder(runtime), nil)

	reply := o.Orchestrate(context.Background(), publicEvent("never mind, got it", true))

	if reply.ShouldReply {
		t.Error("responder's should_reply=false not honored")
	}
}

func TestOrchestrate_MemoryContextReachesStages(t *testing.T) {
	router := &stubRouter{decision: replyDecision(bus.RouteFullReply)}
	runtime := &mockRuntime{response: &api.Response{Result: &api.Result{Output: finalReplyJSON}}}
	o := New(router, NewResponder(runtime), &staticMemory{block: "[Relevant Memory]\n- deploys happen on fridays"})

	o.Orchestrate(context.Background(), publicEvent("when is the next deploy?", true))

	if runtime.calls != 1 {
		t.Fatalf("responder calls = %d", runtime.calls)
	}
	if want := "deploys happen on fridays"; !strings.Contains(runtime.lastReq.Prompt, want) {
		t.Errorf("memory block missing from responder prompt:\n%s", runtime.lastReq.Prompt)
	}
}

func TestOrchestrate_SessionBoundToPartition(t *testing.T) {
	router := &stubRouter{decision: replyDecision(bus.RouteFullReply)}
	runtime := &mockRuntime{response: &api.Response{Result: &api.Result{Output: finalReplyJSON}}}
	o := New(router, NewResponder(runtime), nil)

	ev := publicEvent("question in a thread", true)
	ev.ThreadTS = "1724.000050"
	o.Orchestrate(context.Background(), ev)

	if want := "C1_1724_000050"; runtime.lastReq.SessionID != want {
		t.Errorf("session id = %q, want %q", runtime.lastReq.SessionID, want)
	}
}

func TestStageFailureReason_Timeout(t *testing.T) {
	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()
	<-ctx.Done()

	reason := stageFailureReason(ctx, "router", errors.New("request aborted"))
	if !strings.Contains(reason, "timeout") {
		t.Errorf("reason = %q, want timeout tag", reason)
	}
}
