package secrets

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/youyo/slack-assistant/internal/config"
)

// Parameter names resolvable through a Source.
const (
	SlackSigningSecret = "slack_signing_secret"
	SlackBotToken      = "slack_bot_token"
	SlackBotUserID     = "slack_bot_user_id"
)

// Source resolves a named secret or parameter at call time.
// Implementations must never log resolved values.
type Source interface {
	Get(name string) (string, error)
}

// Static is a fixed in-memory source, used in tests and as a fallback.
type Static map[string]string

func (s Static) Get(name string) (string, error) {
	v, ok := s[name]
	if !ok || v == "" {
		return "", fmt.Errorf("secret %q not set", name)
	}
	return v, nil
}

// envNames maps parameter names to their environment override variables.
var envNames = map[string]string{
	SlackSigningSecret: "SLACK_SIGNING_SECRET",
	SlackBotToken:      "SLACK_BOT_TOKEN",
	SlackBotUserID:     "SLACK_BOT_USER_ID",
}

type configSource struct {
	cfg *config.Config
}

// FromConfig builds a source that resolves from the environment first and the
// loaded config second, evaluated on every call so rotated values are picked
// up without a restart (pair with NewCached for a bounded refresh interval).
func FromConfig(cfg *config.Config) Source {
	return &configSource{cfg: cfg}
}

func (s *configSource) Get(name string) (string, error) {
	if env := envNames[name]; env != "" {
		if v := os.Getenv(env); v != "" {
			return v, nil
		}
	}
	var v string
	switch name {
	case SlackSigningSecret:
		v = s.cfg.Slack.SigningSecret
	case SlackBotToken:
		v = s.cfg.Slack.BotToken
	case SlackBotUserID:
		v = s.cfg.Slack.BotUserID
	default:
		return "", fmt.Errorf("unknown secret %q", name)
	}
	if v == "" {
		return "", fmt.Errorf("secret %q not set", name)
	}
	return v, nil
}

type cachedEntry struct {
	value     string
	expiresAt time.Time
}

// Cached wraps a Source with a short-lived per-name cache so hot paths
// (every webhook delivery resolves the signing secret) do not hit the
// underlying source each time.
type Cached struct {
	src Source
	ttl time.Duration

	mu    sync.Mutex
	items map[string]cachedEntry
	now   func() time.Time // test hook
}

func NewCached(src Source, ttl time.Duration) *Cached {
	if ttl <= 0 {
		ttl = time.Duration(config.DefaultSecretTTL) * time.Second
	}
	return &Cached{
		src:   src,
		ttl:   ttl,
		items: make(map[string]cachedEntry),
		now:   time.Now,
	}
}

func (c *Cached) Get(name string) (string, error) {
	now := c.now()

	c.mu.Lock()
	if e, ok := c.items[name]; ok && now.Before(e.expiresAt) {
		c.mu.Unlock()
		return e.value, nil
	}
	c.mu.Unlock()

	v, err := c.src.Get(name)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	c.items[name] = cachedEntry{value: v, expiresAt: now.Add(c.ttl)}
	c.mu.Unlock()

	return v, nil
}
