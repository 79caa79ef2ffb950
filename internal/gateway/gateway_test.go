package gateway

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cexll/agentsdk-go/pkg/api"
	"github.com/youyo/slack-assistant/internal/bus"
	"github.com/youyo/slack-assistant/internal/config"
	"github.com/youyo/slack-assistant/internal/orchestrator"
	"github.com/youyo/slack-assistant/internal/secrets"
	"github.com/youyo/slack-assistant/internal/slack"
)

const (
	testSecret = "test-signing-secret"
	testBotID  = "U0BOT"
)

type stubRouter struct {
	decision bus.RoutingDecision
	calls    int32
}

func (s *stubRouter) Route(ctx context.Context, ev bus.InboundEvent, memoryContext string) (bus.RoutingDecision, error) {
	atomic.AddInt32(&s.calls, 1)
	return s.decision, nil
}

// mockRuntime implements orchestrator.Runtime for testing
type mockRuntime struct {
	output string
	closed bool
}

func (m *mockRuntime) Run(ctx context.Context, req api.Request) (*api.Response, error) {
	return &api.Response{Result: &api.Result{Output: m.output}}, nil
}

func (m *mockRuntime) Close() { m.closed = true }

type postCall struct {
	channelID string
	text      string
	threadTS  string
}

type recordingPostClient struct {
	calls chan postCall
}

func (r *recordingPostClient) PostMessage(ctx context.Context, channelID, text, threadTS string) (string, error) {
	r.calls <- postCall{channelID: channelID, text: text, threadTS: threadTS}
	return "1724.000900", nil
}

func (r *recordingPostClient) Close() {}

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Slack.SigningSecret = testSecret
	cfg.Slack.BotToken = "xoxb-test"
	cfg.Slack.BotUserID = testBotID
	cfg.Provider.APIKey = "test-key"
	cfg.Memory.Enabled = false
	cfg.Gateway.PipelineTimeout = 5
	return cfg
}

func newTestGateway(t *testing.T, router *stubRouter, runtime *mockRuntime) (*Gateway, *recordingPostClient) {
	t.Helper()

	posts := &recordingPostClient{calls: make(chan postCall, 4)}
	gw, err := NewWithOptions(testConfig(), Options{
		Router: router,
		RuntimeFactory: func(cfg *config.Config, sysPrompt string) (orchestrator.Runtime, error) {
			return runtime, nil
		},
		PostClientFactory: func(baseURL string, src secrets.Source) slack.PostClient {
			return posts
		},
	})
	if err != nil {
		t.Fatalf("NewWithOptions: %v", err)
	}
	return gw, posts
}

func signedEventRequest(t *testing.T, body string) *http.Request {
	t.Helper()
	ts := fmt.Sprintf("%d", time.Now().Unix())
	mac := hmac.New(sha256.New, []byte(testSecret))
	mac.Write([]byte("v0:" + ts + ":" + body))

	req := httptest.NewRequest(http.MethodPost, "/slack/events", strings.NewReader(body))
	req.Header.Set("X-Slack-Request-Timestamp", ts)
	req.Header.Set("X-Slack-Signature", "v0="+hex.EncodeToString(mac.Sum(nil)))
	return req
}

func startPipelines(t *testing.T, gw *Gateway) context.Context {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go gw.bus.DispatchOutbound(ctx)
	go gw.processLoop(ctx)
	return ctx
}

// Mention in a public channel: router selects full_reply, the responder
// produces text, and delivery posts into the message's thread.
func TestGateway_MentionFlowsToThreadPost(t *testing.T) {
	router := &stubRouter{decision: bus.RoutingDecision{
		ShouldReply: true,
		Route:       bus.RouteFullReply,
		ReplyMode:   bus.ReplyModeThread,
		TypingStyle: bus.TypingShort,
		Reason:      "mention",
	}}
	runtime := &mockRuntime{output: `{"should_reply":true,"route":"full_reply","reply_mode":"thread","typing_style":"short","reason":"answered","reply_text":"here is how"}`}
	gw, posts := newTestGateway(t, router, runtime)
	startPipelines(t, gw)

	body := fmt.Sprintf(`{
		"type": "event_callback",
		"team_id": "T1",
		"event": {"type":"message","user":"U1","channel":"C1","text":"<@%s> help me","ts":"1724.000100"}
	}`, testBotID)

	rec := httptest.NewRecorder()
	gw.webhook.ServeEvents(rec, signedEventRequest(t, body))
	if rec.Code != http.StatusOK {
		t.Fatalf("webhook status = %d", rec.Code)
	}

	select {
	case call := <-posts.calls:
		if call.channelID != "C1" || call.text != "here is how" {
			t.Errorf("post = %+v", call)
		}
		if call.threadTS != "1724.000100" {
			t.Errorf("threadTS = %q, want the event's thread", call.threadTS)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no post observed")
	}
	if atomic.LoadInt32(&router.calls) != 1 {
		t.Errorf("router calls = %d", router.calls)
	}
}

// A one-character non-mention is pre-filtered: no router call, no responder
// call, no post, but the webhook still acknowledges.
func TestGateway_ShortMessagePreFiltered(t *testing.T) {
	router := &stubRouter{}
	runtime := &mockRuntime{output: "{}"}
	gw, posts := newTestGateway(t, router, runtime)
	startPipelines(t, gw)

	body := `{
		"type": "event_callback",
		"team_id": "T1",
		"event": {"type":"message","user":"U1","channel":"C1","text":"k","ts":"1724.000200"}
	}`

	rec := httptest.NewRecorder()
	gw.webhook.ServeEvents(rec, signedEventRequest(t, body))
	if rec.Code != http.StatusOK {
		t.Fatalf("webhook status = %d", rec.Code)
	}

	select {
	case call := <-posts.calls:
		t.Fatalf("unexpected post: %+v", call)
	case <-time.After(300 * time.Millisecond):
	}
	if atomic.LoadInt32(&router.calls) != 0 {
		t.Errorf("router calls = %d, want 0", router.calls)
	}
}

// The bot's own message is skipped at normalization; the pipeline never runs.
func TestGateway_OwnMessageNeverStartsPipeline(t *testing.T) {
	router := &stubRouter{}
	runtime := &mockRuntime{output: "{}"}
	gw, posts := newTestGateway(t, router, runtime)
	startPipelines(t, gw)

	body := fmt.Sprintf(`{
		"type": "event_callback",
		"team_id": "T1",
		"event": {"type":"message","user":%q,"channel":"C1","text":"my own earlier reply","ts":"1724.000300"}
	}`, testBotID)

	rec := httptest.NewRecorder()
	gw.webhook.ServeEvents(rec, signedEventRequest(t, body))
	if rec.Code != http.StatusOK {
		t.Fatalf("webhook status = %d", rec.Code)
	}

	select {
	case call := <-posts.calls:
		t.Fatalf("unexpected post: %+v", call)
	case <-time.After(300 * time.Millisecond):
	}
	if atomic.LoadInt32(&router.calls) != 0 {
		t.Errorf("router calls = %d, want 0", router.calls)
	}
}

const finalReplyJSON = `{"should_reply":true,"route":"full_reply","reply_mode":"thread","typing_style":"short","reason":"answered","reply_text":"here is how"}`

func fullReplyDecision() bus.RoutingDecision {
	return bus.RoutingDecision{
		ShouldReply: true,
		Route:       bus.RouteFullReply,
		ReplyMode:   bus.ReplyModeThread,
		TypingStyle: bus.TypingShort,
		Reason:      "mention",
	}
}

// Memory capture follows delivery: a replied-to conversation buffers both
// turns, ignored chatter buffers nothing.
func TestGateway_CaptureOnlyOnDeliveredReply(t *testing.T) {
	cfg := testConfig()
	cfg.Memory.Enabled = true
	cfg.Memory.DBPath = filepath.Join(t.TempDir(), "memory.db")

	router := &stubRouter{decision: fullReplyDecision()}
	posts := &recordingPostClient{calls: make(chan postCall, 4)}
	gw, err := NewWithOptions(cfg, Options{
		Router: router,
		RuntimeFactory: func(cfg *config.Config, sysPrompt string) (orchestrator.Runtime, error) {
			return &mockRuntime{output: finalReplyJSON}, nil
		},
		PostClientFactory: func(baseURL string, src secrets.Source) slack.PostClient {
			return posts
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	startPipelines(t, gw)

	mention := fmt.Sprintf(`{
		"type": "event_callback",
		"team_id": "T1",
		"event": {"type":"message","user":"U1","channel":"C1","text":"<@%s> help me","ts":"1724.000100"}
	}`, testBotID)
	rec := httptest.NewRecorder()
	gw.webhook.ServeEvents(rec, signedEventRequest(t, mention))

	select {
	case <-posts.calls:
	case <-time.After(3 * time.Second):
		t.Fatal("no post observed")
	}

	stats, err := gw.store.Stats()
	if err != nil {
		t.Fatal(err)
	}
	if stats.BufferedTurns != 2 {
		t.Errorf("buffered turns after reply = %d, want 2 (user + assistant)", stats.BufferedTurns)
	}

	noise := `{
		"type": "event_callback",
		"team_id": "T1",
		"event": {"type":"message","user":"U1","channel":"C1","text":"k","ts":"1724.000200"}
	}`
	rec = httptest.NewRecorder()
	gw.webhook.ServeEvents(rec, signedEventRequest(t, noise))
	time.Sleep(300 * time.Millisecond)

	stats, err = gw.store.Stats()
	if err != nil {
		t.Fatal(err)
	}
	if stats.BufferedTurns != 2 {
		t.Errorf("buffered turns after ignored noise = %d, want still 2", stats.BufferedTurns)
	}
}

// A full outbound queue with the dispatcher gone must not pin the pipeline
// goroutine forever.
func TestGateway_OutboundEnqueueAbandonedOnShutdown(t *testing.T) {
	router := &stubRouter{decision: fullReplyDecision()}
	gw, _ := newTestGateway(t, router, &mockRuntime{output: finalReplyJSON})

	for i := 0; i < cap(gw.bus.Outbound); i++ {
		gw.bus.Outbound <- bus.OutboundReply{Channel: slack.ChannelName}
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan struct{})
	go func() {
		gw.runPipeline(ctx, bus.InboundEvent{
			ChannelID:   "C1",
			ChannelKind: bus.KindPublic,
			UserID:      "U1",
			Text:        "<@U0BOT> help me",
			EventTS:     "1724.000100",
			ThreadTS:    "1724.000100",
			IsMentioned: true,
		})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("runPipeline blocked on full outbound queue after shutdown")
	}
}

func TestGateway_ShutdownReportsMaintenanceOutcomes(t *testing.T) {
	cfg := testConfig()
	cfg.Memory.Enabled = true
	cfg.Memory.DBPath = filepath.Join(t.TempDir(), "memory.db")

	gw, err := NewWithOptions(cfg, Options{
		Router: &stubRouter{},
		RuntimeFactory: func(cfg *config.Config, sysPrompt string) (orchestrator.Runtime, error) {
			return &mockRuntime{output: "{}"}, nil
		},
		PostClientFactory: func(baseURL string, src secrets.Source) slack.PostClient {
			return &recordingPostClient{calls: make(chan postCall, 1)}
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	log.SetOutput(&buf)
	defer log.SetOutput(os.Stderr)

	if err := gw.Shutdown(); err != nil {
		t.Fatal(err)
	}
	for _, job := range []string{"memory-compress", "memory-flush"} {
		if !strings.Contains(buf.String(), job) {
			t.Errorf("shutdown log missing %s outcome:\n%s", job, buf.String())
		}
	}
}

func TestGateway_ShutdownClosesComponents(t *testing.T) {
	runtime := &mockRuntime{output: "{}"}
	gw, _ := newTestGateway(t, &stubRouter{}, runtime)

	if err := gw.Shutdown(); err != nil {
		t.Fatal(err)
	}
	if !runtime.closed {
		t.Error("runtime not closed on shutdown")
	}
}
