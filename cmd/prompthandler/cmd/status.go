package cmd

import (
	"github.com/spf13/cobra"

	"github.com/hkuds/prompthandler/internal/tui"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show configuration status",
	Long:  "Display the active provider, the conversation budget and calibration policy, and the enabled channels.",
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	tui.ShowStatus(cfg)
	return nil
}
