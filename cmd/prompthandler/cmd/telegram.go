package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hkuds/prompthandler/internal/agent"
	"github.com/hkuds/prompthandler/internal/bus"
	"github.com/hkuds/prompthandler/internal/channels"
)

var telegramCmd = &cobra.Command{
	Use:     "telegram",
	Aliases: []string{"gateway"},
	Short:   "Serve conversations through the Telegram bot",
	Long: `Start the Telegram gateway. Each chat is its own conversation, calibrated
against the configured budget and stored under the workspace.`,
	RunE: runTelegram,
}

func runTelegram(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if name, _, _ := cfg.GetActiveProvider(); name == "" {
		fmt.Println("No LLM provider configured.")
		fmt.Println("Run 'prompthandler setup' to configure a provider.")
		return nil
	}
	if !cfg.Channels.Telegram.Enabled {
		fmt.Println("Telegram is not enabled.")
		fmt.Println("Run 'prompthandler setup' to configure the bot.")
		return nil
	}

	logger := newLogger()
	conv, err := newConversation(cfg, logger)
	if err != nil {
		return err
	}
	defer conv.Close()

	msgBus := bus.NewMessageBus(100)
	defer msgBus.Close()

	loop, err := agent.NewLoop(agent.LoopConfig{
		Bus:       msgBus,
		Sessions:  conv.store,
		Handler:   conv.handler,
		Counter:   conv.counter,
		Completer: conv.completer,
		Logger:    logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create agent loop: %w", err)
	}

	manager := channels.NewManager(cfg, msgBus)
	if err := manager.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize channels: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := manager.StartAll(ctx); err != nil {
		return err
	}
	defer func() {
		if err := manager.StopAll(); err != nil {
			log.Printf("Warning: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		log.Printf("Received %s, shutting down...", sig)
		cancel()
	}()

	log.Printf("Gateway running with %s (%s, budget %d, %s)",
		conv.provider.Name(), cfg.Conversation.Model, cfg.Conversation.MaxTokens, conv.handler.Policy)

	if err := loop.Run(ctx); err != nil && err != context.Canceled {
		return fmt.Errorf("agent loop failed: %w", err)
	}
	return nil
}
