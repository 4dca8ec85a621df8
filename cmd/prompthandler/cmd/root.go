package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/hkuds/prompthandler/internal/calibrate"
	"github.com/hkuds/prompthandler/internal/config"
	"github.com/hkuds/prompthandler/internal/handler"
	"github.com/hkuds/prompthandler/internal/providers"
	"github.com/hkuds/prompthandler/internal/session"
	"github.com/hkuds/prompthandler/internal/tokens"
)

var (
	configPath string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "prompthandler",
	Short: "prompthandler - keep LLM chat history inside a token budget",
	Long: `prompthandler manages chat history for OpenAI-style chat models. System prompts
form a head that is never evicted; the dialogue body is truncated or summarized
whenever the conversation would exceed the configured token budget.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default ~/.prompthandler/config.json, .yaml also accepted)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log calibration passes to stderr")

	rootCmd.AddCommand(setupCmd)
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(countCmd)
	rootCmd.AddCommand(sessionsCmd)
	rootCmd.AddCommand(telegramCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(versionCmd)
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// newLogger returns the structured logger handed to the core packages.
// Warnings always reach stderr; --verbose adds calibration detail.
func newLogger() *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// conversation bundles what the chat and telegram commands need to run
// conversations.
type conversation struct {
	handler   handler.Config
	counter   calibrate.TokenCounter
	completer calibrate.Completer
	provider  providers.Provider
	store     session.SnapshotStore
	closer    func() error
}

// openSessionStore opens the snapshot backend selected by cfg.Sessions. The
// returned func releases it.
func openSessionStore(cfg *config.Config) (session.SnapshotStore, func() error, error) {
	switch cfg.Sessions.Backend {
	case config.SessionBackendSQLite:
		store, err := session.OpenSQLiteStore(cfg.SessionsDBPath())
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	case "", config.SessionBackendFile:
		return session.NewStore(cfg.WorkspacePath()), func() error { return nil }, nil
	default:
		return nil, nil, fmt.Errorf("unknown sessions backend %q", cfg.Sessions.Backend)
	}
}

// newConversation wires provider, counter and store from cfg.
func newConversation(cfg *config.Config, logger *slog.Logger) (*conversation, error) {
	hcfg, err := handler.ConfigFrom(cfg.Conversation)
	if err != nil {
		return nil, fmt.Errorf("invalid conversation config: %w", err)
	}
	hcfg.Logger = logger

	provider, err := providers.NewProviderFromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create provider: %w", err)
	}

	counter, err := tokens.NewTiktokenCounter()
	if err != nil {
		return nil, fmt.Errorf("failed to load tokenizer: %w", err)
	}

	if err := config.EnsureWorkspaceDir(cfg); err != nil {
		return nil, err
	}

	store, closer, err := openSessionStore(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open session store: %w", err)
	}

	return &conversation{
		handler:   hcfg,
		counter:   counter,
		completer: handler.NewProviderBridge(provider, cfg.CompletionModelFor(provider.Name()), cfg.Conversation.CompletionMaxTokens),
		provider:  provider,
		store:     store,
		closer:    closer,
	}, nil
}

// Close releases the session store.
func (c *conversation) Close() error {
	if c.closer == nil {
		return nil
	}
	return c.closer()
}

// open builds a handler for key, restoring its stored snapshot if any.
func (c *conversation) open(key string) (*handler.Handler, error) {
	h, err := handler.New(c.handler, c.counter, c.completer)
	if err != nil {
		return nil, err
	}
	snap, ok, err := c.store.Load(key)
	if err != nil {
		return nil, fmt.Errorf("failed to load session %s: %w", key, err)
	}
	if ok {
		h.Load(snap)
	}
	return h, nil
}
