package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/hkuds/prompthandler/internal/session"
	"github.com/hkuds/prompthandler/internal/tokens"
)

var countModel string

var countCmd = &cobra.Command{
	Use:   "count [file]",
	Short: "Count the tokens of a conversation",
	Long: `Count the tokens of a conversation read from file, or stdin when no file or "-"
is given. The input is a snapshot as written by /dump or the session store, or a
plain JSON array of {"role", "content", "name"} messages.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runCount,
}

func init() {
	countCmd.Flags().StringVar(&countModel, "model", "", "Model to count for (default from config)")
}

func runCount(cmd *cobra.Command, args []string) error {
	model := countModel
	if model == "" {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		model = cfg.Conversation.Model
	}

	var in io.Reader = os.Stdin
	if len(args) == 1 && args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", args[0], err)
		}
		defer f.Close()
		in = f
	}

	data, err := io.ReadAll(in)
	if err != nil {
		return fmt.Errorf("failed to read input: %w", err)
	}
	snap, err := parseConversation(data)
	if err != nil {
		return err
	}

	counter, err := tokens.NewTiktokenCounter()
	if err != nil {
		return fmt.Errorf("failed to load tokenizer: %w", err)
	}

	total, err := counter.Count(snap.Messages, model)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(snap.Head) > 0 || len(snap.Body) > 0 {
		head, err := counter.Count(snap.Head, model)
		if err != nil {
			return err
		}
		body, err := counter.Count(snap.Body, model)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "head:  %d\n", head)
		fmt.Fprintf(out, "body:  %d\n", body)
	}
	fmt.Fprintf(out, "total: %d (%d messages, %s)\n", total, len(snap.Messages), model)
	return nil
}

// parseConversation accepts a snapshot object or a bare message array.
// A snapshot without messages is counted as head followed by body.
func parseConversation(data []byte) (session.Snapshot, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return session.Snapshot{}, fmt.Errorf("no input")
	}

	if data[0] == '[' {
		var msgs []session.Message
		if err := json.Unmarshal(data, &msgs); err != nil {
			return session.Snapshot{}, fmt.Errorf("failed to parse messages: %w", err)
		}
		return session.Snapshot{Messages: msgs}, nil
	}

	var snap session.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return session.Snapshot{}, fmt.Errorf("failed to parse snapshot: %w", err)
	}
	if snap.Messages == nil {
		snap.Messages = append(append([]session.Message{}, snap.Head...), snap.Body...)
	}
	return snap, nil
}
