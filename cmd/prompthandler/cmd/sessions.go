package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hkuds/prompthandler/internal/session"
	"github.com/hkuds/prompthandler/internal/tokens"
	"github.com/hkuds/prompthandler/internal/tui"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Manage stored conversations",
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored conversations",
	Args:  cobra.NoArgs,
	RunE:  runSessionsList,
}

var sessionsShowCmd = &cobra.Command{
	Use:   "show <key>",
	Short: "Print a stored conversation with its token usage",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionsShow,
}

var sessionsDeleteCmd = &cobra.Command{
	Use:   "delete <key>",
	Short: "Delete a stored conversation",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionsDelete,
}

func init() {
	sessionsCmd.AddCommand(sessionsListCmd)
	sessionsCmd.AddCommand(sessionsShowCmd)
	sessionsCmd.AddCommand(sessionsDeleteCmd)
}

// openStore returns the configured snapshot store, its closer and the
// configured model.
func openStore() (session.SnapshotStore, func() error, string, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, "", err
	}
	store, closer, err := openSessionStore(cfg)
	if err != nil {
		return nil, nil, "", fmt.Errorf("failed to open session store: %w", err)
	}
	return store, closer, cfg.Conversation.Model, nil
}

func runSessionsList(cmd *cobra.Command, args []string) error {
	store, closer, _, err := openStore()
	if err != nil {
		return err
	}
	defer closer()

	infos, err := store.List()
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), tui.RenderSessions(infos))
	return nil
}

func runSessionsShow(cmd *cobra.Command, args []string) error {
	store, closer, model, err := openStore()
	if err != nil {
		return err
	}
	defer closer()

	snap, ok, err := store.Load(args[0])
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("session %s not found", args[0])
	}

	out := cmd.OutOrStdout()
	for i, m := range snap.Messages {
		marker := " "
		if i < len(snap.Head) {
			marker = "*"
		}
		fmt.Fprintf(out, "%s [%s] %s\n", marker, m.Role, m.Content)
	}

	counter, err := tokens.NewTiktokenCounter()
	if err != nil {
		return fmt.Errorf("failed to load tokenizer: %w", err)
	}
	total, err := counter.Count(snap.Messages, model)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "\n%d messages (* = head), %d tokens for %s\n", len(snap.Messages), total, model)
	return nil
}

func runSessionsDelete(cmd *cobra.Command, args []string) error {
	store, closer, _, err := openStore()
	if err != nil {
		return err
	}
	defer closer()

	ok, err := store.Delete(args[0])
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("session %s not found", args[0])
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Deleted session %s\n", args[0])
	return nil
}
