package gateway

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/youyo/slack-assistant/internal/bus"
	"github.com/youyo/slack-assistant/internal/config"
	"github.com/youyo/slack-assistant/internal/maintenance"
	"github.com/youyo/slack-assistant/internal/memory"
	"github.com/youyo/slack-assistant/internal/orchestrator"
	"github.com/youyo/slack-assistant/internal/secrets"
	"github.com/youyo/slack-assistant/internal/slack"
)

// Options for creating a Gateway
type Options struct {
	Router            orchestrator.RouterClient
	RuntimeFactory    orchestrator.RuntimeFactory
	PostClientFactory slack.PostClientFactory
	SignalChan        chan os.Signal // for testing signal handling
}

// Gateway is the composition root: it owns the webhook ingress, the message
// bus, the orchestration pipeline, memory and delivery, and runs them until
// a shutdown signal.
type Gateway struct {
	cfg        *config.Config
	bus        *bus.MessageBus
	secrets    secrets.Source
	webhook    *slack.WebhookServer
	orch       *orchestrator.Orchestrator
	responder  *orchestrator.Responder
	deliverer  *slack.Deliverer
	maint      *maintenance.Service
	store      *memory.Store
	memLLM     memory.LLMClient
	extraction *memory.ExtractionService
	timeout    time.Duration
	signalChan chan os.Signal // for testing
}

// New creates a Gateway with default options
func New(cfg *config.Config) (*Gateway, error) {
	return NewWithOptions(cfg, Options{})
}

// NewWithOptions creates a Gateway with custom options for testing
func NewWithOptions(cfg *config.Config, opts Options) (*Gateway, error) {
	g := &Gateway{cfg: cfg}

	g.bus = bus.NewMessageBus(cfg.Gateway.BufSize)
	g.secrets = secrets.NewCached(secrets.FromConfig(cfg), time.Duration(config.DefaultSecretTTL)*time.Second)

	g.timeout = time.Duration(cfg.Gateway.PipelineTimeout) * time.Second
	if g.timeout <= 0 {
		g.timeout = time.Duration(config.DefaultPipelineTimeout) * time.Second
	}

	// Memory
	var retriever orchestrator.MemorySource
	if cfg.Memory.Enabled {
		dbPath := strings.TrimSpace(cfg.Memory.DBPath)
		if dbPath == "" {
			dbPath = filepath.Join(config.ConfigDir(), "data", "memory.db")
		}
		store, err := memory.NewStore(dbPath)
		if err != nil {
			return nil, fmt.Errorf("create memory store: %w", err)
		}
		g.store = store

		memLLM, err := memory.NewLLMClient(cfg)
		if err != nil {
			_ = g.store.Close()
			return nil, err
		}
		g.memLLM = memLLM
		g.extraction = memory.NewExtractionService(store, memLLM, cfg.Memory.Extraction)
		retriever = memory.NewRetriever(store)
	}

	// Router stage
	router := opts.Router
	if router == nil {
		r, err := orchestrator.NewRouter(cfg)
		if err != nil {
			g.closePartial()
			return nil, err
		}
		router = r
	}

	// Responder stage
	factory := opts.RuntimeFactory
	if factory == nil {
		factory = orchestrator.DefaultRuntimeFactory
	}
	runtime, err := factory(cfg, orchestrator.ResponderPrompt(cfg.Responder))
	if err != nil {
		g.closePartial()
		return nil, err
	}
	g.responder = orchestrator.NewResponder(runtime)

	g.orch = orchestrator.New(router, g.responder, retriever)

	// Ingress and delivery
	g.webhook = slack.NewWebhookServer(cfg.Gateway, g.secrets, g.bus)

	postFactory := opts.PostClientFactory
	if postFactory == nil {
		postFactory = slack.DefaultPostClientFactory
	}
	g.deliverer = slack.NewDeliverer(postFactory(cfg.Slack.APIBaseURL, g.secrets))
	g.bus.SubscribeOutbound(slack.ChannelName, g.deliverOne)

	// Maintenance
	g.maint = maintenance.NewService()
	if g.store != nil {
		g.maint.Register(maintenance.Job{
			Name: "memory-compress",
			Expr: "0 0 3 * * *",
			Run:  func() error { return g.store.Compress(g.memLLM) },
		})
		g.maint.Register(maintenance.Job{
			Name: "memory-flush",
			Expr: "0 */30 * * * *",
			Run:  func() error { g.extraction.Flush(); return nil },
		})
	}

	g.signalChan = opts.SignalChan

	return g, nil
}

func (g *Gateway) closePartial() {
	if g.store != nil {
		_ = g.store.Close()
	}
}

func (g *Gateway) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go g.bus.DispatchOutbound(ctx)

	if err := g.webhook.Start(ctx); err != nil {
		return fmt.Errorf("start webhook server: %w", err)
	}
	if err := g.maint.Start(); err != nil {
		log.Printf("[gateway] maintenance start warning: %v", err)
	}

	go g.processLoop(ctx)

	log.Printf("[gateway] running on %s:%d", g.cfg.Gateway.Host, g.cfg.Gateway.Port)

	// Use injected signal channel for testing, or create default
	sigCh := g.signalChan
	if sigCh == nil {
		sigCh = make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	}
	<-sigCh

	log.Printf("[gateway] shutting down...")
	return g.Shutdown()
}

// processLoop consumes normalized events and runs one pipeline per event.
// Runs are independent goroutines: a slow responder never blocks ingestion,
// and events for the same thread may execute concurrently.
func (g *Gateway) processLoop(ctx context.Context) {
	for {
		select {
		case ev := <-g.bus.Inbound:
			go g.runPipeline(ctx, ev)
		case <-ctx.Done():
			return
		}
	}
}

func (g *Gateway) runPipeline(ctx context.Context, ev bus.InboundEvent) {
	runID := uuid.NewString()
	log.Printf("[gateway] run=%s inbound channel=%s user=%s: %s", runID, ev.ChannelID, ev.UserID, truncate(ev.Text, 80))

	runCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	reply := g.orch.Orchestrate(runCtx, ev)
	log.Printf("[gateway] run=%s decided should_reply=%t route=%s (%s)", runID, reply.ShouldReply, reply.Route, truncate(reply.Reason, 120))

	// Only conversations the bot joined feed memory: ignored chatter must not
	// accumulate extraction work.
	if g.extraction != nil && reply.ShouldReply && strings.TrimSpace(reply.ReplyText) != "" {
		key := memory.NewKey(ev.ChannelID, ev.ThreadTS)
		g.extraction.Capture(key, "user", ev.Text)
		g.extraction.Capture(key, "assistant", reply.ReplyText)
	}

	select {
	case g.bus.Outbound <- bus.OutboundReply{
		Channel: slack.ChannelName,
		RunID:   runID,
		Event:   ev,
		Reply:   reply,
	}:
	case <-ctx.Done():
		log.Printf("[gateway] run=%s outbound enqueue abandoned: %v", runID, ctx.Err())
	}
}

func (g *Gateway) deliverOne(out bus.OutboundReply) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	outcome, err := g.deliverer.Deliver(ctx, out.Event, out.Reply)
	switch {
	case err != nil:
		log.Printf("[gateway] run=%s delivery failed: %v", out.RunID, err)
	case outcome.Posted:
		log.Printf("[gateway] run=%s posted ts=%s thread=%q", out.RunID, outcome.TS, outcome.ThreadTS)
	}
}

func (g *Gateway) Shutdown() error {
	if g.extraction != nil {
		g.extraction.Stop()
	}
	for _, st := range g.maint.Status() {
		if st.LastStatus == "" {
			log.Printf("[gateway] maintenance job %s: never ran", st.Name)
			continue
		}
		if st.LastError != "" {
			log.Printf("[gateway] maintenance job %s: %s at %s (%s)", st.Name, st.LastStatus, st.LastRunAt.Format(time.RFC3339), st.LastError)
			continue
		}
		log.Printf("[gateway] maintenance job %s: %s at %s", st.Name, st.LastStatus, st.LastRunAt.Format(time.RFC3339))
	}
	g.maint.Stop()
	_ = g.webhook.Stop()
	if g.responder != nil {
		g.responder.Close()
	}
	if g.deliverer != nil {
		g.deliverer.Close()
	}
	if g.store != nil {
		if err := g.store.Close(); err != nil {
			log.Printf("[gateway] close memory store warning: %v", err)
		}
	}
	log.Printf("[gateway] shutdown complete")
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
