package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hkuds/prompthandler/internal/tui"
)

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Run interactive setup wizard",
	Long:  "Run the interactive setup wizard to choose a provider, the token budget and the calibration policy.",
	RunE:  runSetup,
}

func runSetup(cmd *cobra.Command, args []string) error {
	cfg, err := tui.RunSetup(configPath)
	if err != nil {
		return fmt.Errorf("setup failed: %w", err)
	}

	fmt.Println()
	tui.ShowStatus(cfg)

	fmt.Println()
	fmt.Println("You can now:")
	fmt.Println("  - Chat in the terminal:    prompthandler chat")
	if cfg.Channels.Telegram.Enabled {
		fmt.Println("  - Start the Telegram bot:  prompthandler telegram")
	}
	fmt.Println("  - Count a saved session:   prompthandler count <file>")

	return nil
}
