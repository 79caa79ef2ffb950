package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

const (
	DefaultRouterModel    = "claude-3-5-haiku-20241022"
	DefaultResponderModel = "claude-sonnet-4-5-20250929"

	DefaultRouterMaxTokens    = 1024
	DefaultResponderMaxTokens = 4096

	DefaultHost            = "0.0.0.0"
	DefaultPort            = 18990
	DefaultBufSize         = 100
	DefaultPipelineTimeout = 60 // seconds
	DefaultSecretTTL       = 300

	DefaultMemoryQuietGap    = "3m"
	DefaultMemoryTokenBudget = 0.6
)

type Config struct {
	Slack     SlackConfig    `json:"slack"`
	Provider  ProviderConfig `json:"provider"`
	Router    StageConfig    `json:"router"`
	Responder StageConfig    `json:"responder"`
	Gateway   GatewayConfig  `json:"gateway"`
	Memory    MemoryConfig   `json:"memory"`
}

// SlackConfig carries webhook and Web API settings. The secret values here are
// only the static fallback; the secrets package resolves them at call time.
type SlackConfig struct {
	SigningSecret string `json:"signingSecret,omitempty"`
	BotToken      string `json:"botToken,omitempty"`
	BotUserID     string `json:"botUserId"`
	APIBaseURL    string `json:"apiBaseUrl,omitempty"` // override for tests/proxies
}

type ProviderConfig struct {
	Type    string `json:"type,omitempty"` // "anthropic" (default) or "openai"
	APIKey  string `json:"apiKey"`
	BaseURL string `json:"baseUrl,omitempty"`
}

// StageConfig configures one generation stage (router or responder).
type StageConfig struct {
	Model        string `json:"model"`
	MaxTokens    int    `json:"maxTokens"`
	SystemPrompt string `json:"systemPrompt,omitempty"` // override; empty = built-in default
	Workspace    string `json:"workspace,omitempty"`    // responder runtime project root
}

type GatewayConfig struct {
	Host            string `json:"host"`
	Port            int    `json:"port"`
	BufSize         int    `json:"bufSize,omitempty"`
	PipelineTimeout int    `json:"pipelineTimeoutSec,omitempty"`
}

type MemoryConfig struct {
	Enabled    bool             `json:"enabled"`
	DBPath     string           `json:"dbPath,omitempty"`
	Model      string           `json:"model,omitempty"`
	MaxTokens  int              `json:"maxTokens,omitempty"`
	Provider   *ProviderConfig  `json:"provider,omitempty"`
	Extraction ExtractionConfig `json:"extraction"`
}

type ExtractionConfig struct {
	QuietGap    string  `json:"quietGap,omitempty"`
	TokenBudget float64 `json:"tokenBudget,omitempty"`
}

func DefaultConfig() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		Slack: SlackConfig{},
		Router: StageConfig{
			Model:     DefaultRouterModel,
			MaxTokens: DefaultRouterMaxTokens,
		},
		Responder: StageConfig{
			Model:     DefaultResponderModel,
			MaxTokens: DefaultResponderMaxTokens,
			Workspace: filepath.Join(home, ".slack-assistant", "workspace"),
		},
		Gateway: GatewayConfig{
			Host:            DefaultHost,
			Port:            DefaultPort,
			BufSize:         DefaultBufSize,
			PipelineTimeout: DefaultPipelineTimeout,
		},
		Memory: MemoryConfig{
			Enabled: true,
			Extraction: ExtractionConfig{
				QuietGap:    DefaultMemoryQuietGap,
				TokenBudget: DefaultMemoryTokenBudget,
			},
		},
	}
}

func ConfigDir() string {
	home := os.Getenv("HOME")
	if home == "" {
		home, _ = os.UserHomeDir()
	}
	return filepath.Join(home, ".slack-assistant")
}

func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.json")
}

func LoadConfig() (*Config, error) {
	return loadConfigFrom(ConfigPath())
}

func loadConfigFrom(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(cfg)
	applyDefaults(cfg)

	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SLACK_SIGNING_SECRET"); v != "" {
		cfg.Slack.SigningSecret = v
	}
	if v := os.Getenv("SLACK_BOT_TOKEN"); v != "" {
		cfg.Slack.BotToken = v
	}
	if v := os.Getenv("SLACK_BOT_USER_ID"); v != "" {
		cfg.Slack.BotUserID = v
	}
	if v := os.Getenv("SLACK_API_BASE_URL"); v != "" {
		cfg.Slack.APIBaseURL = v
	}
	if v := os.Getenv("SLACK_ASSISTANT_API_KEY"); v != "" {
		cfg.Provider.APIKey = v
	}
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" && cfg.Provider.APIKey == "" {
		cfg.Provider.APIKey = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" && cfg.Provider.APIKey == "" {
		cfg.Provider.APIKey = v
		if cfg.Provider.Type == "" {
			cfg.Provider.Type = "openai"
		}
	}
	if v := os.Getenv("SLACK_ASSISTANT_BASE_URL"); v != "" {
		cfg.Provider.BaseURL = v
	}
	if v := os.Getenv("SLACK_ASSISTANT_ROUTER_MODEL"); v != "" {
		cfg.Router.Model = v
	}
	if v := os.Getenv("SLACK_ASSISTANT_RESPONDER_MODEL"); v != "" {
		cfg.Responder.Model = v
	}
	if v := os.Getenv("SLACK_ASSISTANT_ROUTER_PROMPT"); v != "" {
		cfg.Router.SystemPrompt = v
	}
	if v := os.Getenv("SLACK_ASSISTANT_RESPONDER_PROMPT"); v != "" {
		cfg.Responder.SystemPrompt = v
	}
	if v := os.Getenv("SLACK_ASSISTANT_PORT"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.Gateway.Port = parsed
		}
	}
	if v := os.Getenv("SLACK_ASSISTANT_MEMORY_ENABLED"); v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			cfg.Memory.Enabled = parsed
		}
	}
	if v := os.Getenv("SLACK_ASSISTANT_MEMORY_DB_PATH"); v != "" {
		cfg.Memory.DBPath = v
	}
	if v := os.Getenv("SLACK_ASSISTANT_MEMORY_MODEL"); v != "" {
		cfg.Memory.Model = v
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Router.Model == "" {
		cfg.Router.Model = DefaultRouterModel
	}
	if cfg.Router.MaxTokens <= 0 {
		cfg.Router.MaxTokens = DefaultRouterMaxTokens
	}
	if cfg.Responder.Model == "" {
		cfg.Responder.Model = DefaultResponderModel
	}
	if cfg.Responder.MaxTokens <= 0 {
		cfg.Responder.MaxTokens = DefaultResponderMaxTokens
	}
	if cfg.Responder.Workspace == "" {
		cfg.Responder.Workspace = DefaultConfig().Responder.Workspace
	}
	if cfg.Gateway.Host == "" {
		cfg.Gateway.Host = DefaultHost
	}
	if cfg.Gateway.Port <= 0 {
		cfg.Gateway.Port = DefaultPort
	}
	if cfg.Gateway.BufSize <= 0 {
		cfg.Gateway.BufSize = DefaultBufSize
	}
	if cfg.Gateway.PipelineTimeout <= 0 {
		cfg.Gateway.PipelineTimeout = DefaultPipelineTimeout
	}
	if cfg.Memory.Extraction.QuietGap == "" {
		cfg.Memory.Extraction.QuietGap = DefaultMemoryQuietGap
	}
	if cfg.Memory.Extraction.TokenBudget <= 0 {
		cfg.Memory.Extraction.TokenBudget = DefaultMemoryTokenBudget
	}
}

// ValidateForServe checks everything the serve command needs up front.
func (c *Config) ValidateForServe() error {
	if c.Slack.SigningSecret == "" {
		return fmt.Errorf("slack signing secret not set (config slack.signingSecret or SLACK_SIGNING_SECRET)")
	}
	if c.Slack.BotToken == "" {
		return fmt.Errorf("slack bot token not set (config slack.botToken or SLACK_BOT_TOKEN)")
	}
	if c.Slack.BotUserID == "" {
		return fmt.Errorf("slack bot user id not set (config slack.botUserId or SLACK_BOT_USER_ID)")
	}
	if c.Provider.APIKey == "" {
		return fmt.Errorf("provider API key not set (config provider.apiKey or ANTHROPIC_API_KEY)")
	}
	return nil
}

func SaveConfig(cfg *Config) error {
	dir := ConfigDir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	return os.WriteFile(ConfigPath(), data, 0600)
}
