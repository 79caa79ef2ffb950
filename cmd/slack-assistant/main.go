package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/youyo/slack-assistant/internal/config"
	"github.com/youyo/slack-assistant/internal/gateway"
	"github.com/youyo/slack-assistant/internal/memory"
)

var rootCmd = &cobra.Command{
	Use:   "slack-assistant",
	Short: "slack-assistant - two-stage Slack reply pipeline",
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the webhook gateway and reply pipeline",
	RunE:  runServe,
}

var onboardCmd = &cobra.Command{
	Use:   "onboard",
	Short: "Initialize config and workspace",
	RunE:  runOnboard,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show slack-assistant status",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(serveCmd, onboardCmd, statusCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.ValidateForServe(); err != nil {
		return fmt.Errorf("%w (run 'slack-assistant onboard' first)", err)
	}

	gw, err := gateway.New(cfg)
	if err != nil {
		return fmt.Errorf("create gateway: %w", err)
	}

	return gw.Run(context.Background())
}

func runOnboard(cmd *cobra.Command, args []string) error {
	cfgPath := config.ConfigPath()

	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		if err := config.SaveConfig(config.DefaultConfig()); err != nil {
			return fmt.Errorf("write config: %w", err)
		}
		fmt.Printf("Created config: %s\n", cfgPath)
	} else {
		fmt.Printf("Config already exists: %s\n", cfgPath)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := os.MkdirAll(cfg.Responder.Workspace, 0755); err != nil {
		return fmt.Errorf("create workspace: %w", err)
	}
	if err := os.MkdirAll(filepath.Join(config.ConfigDir(), "data"), 0755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	fmt.Printf("Workspace ready: %s\n", cfg.Responder.Workspace)
	fmt.Println("\nNext steps:")
	fmt.Printf("  1. Edit %s to set the Slack signing secret, bot token and bot user id\n", cfgPath)
	fmt.Println("  2. Set the provider API key (config provider.apiKey or ANTHROPIC_API_KEY)")
	fmt.Println("  3. Run 'slack-assistant serve' and point the Slack Events API at /slack/events")

	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Printf("Config: error (%v)\n", err)
		return nil
	}

	fmt.Printf("Config: %s\n", config.ConfigPath())
	fmt.Printf("Router model: %s\n", cfg.Router.Model)
	fmt.Printf("Responder model: %s\n", cfg.Responder.Model)
	fmt.Printf("Provider: %s\n", providerDisplay(cfg.Provider.Type))
	fmt.Printf("API Key: %s\n", maskSecret(cfg.Provider.APIKey))
	fmt.Printf("Signing secret: %s\n", setOrNot(cfg.Slack.SigningSecret))
	fmt.Printf("Bot token: %s\n", setOrNot(cfg.Slack.BotToken))
	fmt.Printf("Bot user id: %s\n", valueOrNot(cfg.Slack.BotUserID))
	fmt.Printf("Listen: %s:%d\n", cfg.Gateway.Host, cfg.Gateway.Port)

	if !cfg.Memory.Enabled {
		fmt.Println("Memory: disabled")
		return nil
	}

	dbPath := strings.TrimSpace(cfg.Memory.DBPath)
	if dbPath == "" {
		dbPath = filepath.Join(config.ConfigDir(), "data", "memory.db")
	}
	if _, err := os.Stat(dbPath); err != nil {
		fmt.Println("Memory: empty (no database yet)")
		return nil
	}

	store, err := memory.NewStore(dbPath)
	if err != nil {
		fmt.Printf("Memory: error (%v)\n", err)
		return nil
	}
	defer store.Close()

	stats, err := store.Stats()
	if err != nil {
		fmt.Printf("Memory: error (%v)\n", err)
		return nil
	}
	fmt.Printf("Memory: %d channels, %d records (%d archived), %d buffered turns\n",
		stats.Actors, stats.ActiveRecords, stats.Archived, stats.BufferedTurns)

	return nil
}

func providerDisplay(t string) string {
	if t == "" {
		return "anthropic (default)"
	}
	return t
}

func maskSecret(s string) string {
	switch {
	case s == "":
		return "not set"
	case len(s) > 8:
		return s[:4] + "..." + s[len(s)-4:]
	default:
		return "set"
	}
}

func setOrNot(s string) string {
	if s == "" {
		return "not set"
	}
	return "set"
}

func valueOrNot(s string) string {
	if s == "" {
		return "not set"
	}
	return s
}
