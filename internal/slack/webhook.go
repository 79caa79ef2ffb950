package slack

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/youyo/slack-assistant/internal/bus"
	"github.com/youyo/slack-assistant/internal/config"
	"github.com/youyo/slack-assistant/internal/secrets"
)

const (
	// ChannelName identifies the Slack channel on the message bus.
	ChannelName = "slack"

	webhookPath         = "/slack/events"
	webhookMaxBodyBytes = 1 << 20 // 1MB

	headerTimestamp = "X-Slack-Request-Timestamp"
	headerSignature = "X-Slack-Signature"
)

// WebhookServer terminates the Slack Events API: verifies signatures, answers
// the url_verification handshake, normalizes message events and hands them to
// the bus. It always responds within the ingress budget; pipeline work never
// runs on this path.
type WebhookServer struct {
	cfg     config.GatewayConfig
	secrets secrets.Source
	bus     *bus.MessageBus
	server  *http.Server
	cancel  context.CancelFunc
	now     func() time.Time // test hook for signature freshness
}

func NewWebhookServer(cfg config.GatewayConfig, src secrets.Source, b *bus.MessageBus) *WebhookServer {
	return &WebhookServer{
		cfg:     cfg,
		secrets: src,
		bus:     b,
		now:     time.Now,
	}
}

func (s *WebhookServer) Start(ctx context.Context) error {
	ctx, s.cancel = context.WithCancel(ctx)

	mux := http.NewServeMux()
	mux.HandleFunc(webhookPath, s.ServeEvents)

	s.server = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler: mux,
	}

	go func() {
		log.Printf("[webhook] listening on %s%s", s.server.Addr, webhookPath)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("[webhook] server error: %v", err)
		}
	}()

	go func() {
		<-ctx.Done()
		_ = s.server.Close()
	}()

	return nil
}

func (s *WebhookServer) Stop() error {
	if s.cancel != nil {
		s.cancel()
	}
	if s.server != nil {
		_ = s.server.Close()
	}
	log.Printf("[webhook] stopped")
	return nil
}

// ServeEvents handles a single Events API request: signature check,
// url_verification, then normalize-and-enqueue.
func (s *WebhookServer) ServeEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, webhookMaxBodyBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "read body failed"})
		return
	}

	secret, err := s.secrets.Get(secrets.SlackSigningSecret)
	if err != nil {
		log.Printf("[webhook] resolve signing secret error: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "configuration"})
		return
	}

	timestamp := r.Header.Get(headerTimestamp)
	signature := r.Header.Get(headerSignature)
	if !verifySignatureAt(s.now(), secret, timestamp, string(body), signature) {
		log.Printf("[webhook] invalid signature from %s", r.RemoteAddr)
		writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "invalid signature"})
		return
	}

	if challenge, ok := Challenge(body); ok {
		writeJSON(w, http.StatusOK, map[string]any{"challenge": challenge})
		return
	}

	botUserID, err := s.secrets.Get(secrets.SlackBotUserID)
	if err != nil {
		log.Printf("[webhook] resolve bot user id error: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "configuration"})
		return
	}

	ev, err := Normalize(body, botUserID)
	switch {
	case errors.Is(err, ErrMalformed):
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid JSON"})
		return
	case errors.Is(err, ErrSkip):
		log.Printf("[webhook] skipping event: %v", err)
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	case err != nil:
		log.Printf("[webhook] normalize error: %v", err)
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	// Acknowledge positively even when the queue is saturated: a Slack retry
	// would only duplicate side effects, it cannot fix a full queue.
	if !s.bus.PublishInbound(ev) {
		log.Printf("[webhook] inbound queue full, dropping event channel=%s ts=%s", ev.ChannelID, ev.EventTS)
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func writeJSON(w http.ResponseWriter, status int, payload map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
