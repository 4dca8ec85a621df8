package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/hkuds/prompthandler/internal/calibrate"
	"github.com/hkuds/prompthandler/internal/handler"
	"github.com/hkuds/prompthandler/internal/session"
	"github.com/hkuds/prompthandler/internal/tui"
)

var (
	messageFlag string
	sessionFlag string
	policyFlag  string
	peekFlag    bool
)

var (
	promptStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Bold(true)
	assistantStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("205")).Bold(true)
	noticeStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat in the terminal",
	Long: `Start an interactive conversation, or send a single message with -m.
The conversation is stored under the workspace and resumed next time.`,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().StringVarP(&messageFlag, "message", "m", "", "Send a single message and exit")
	chatCmd.Flags().StringVarP(&sessionFlag, "session", "s", "cli:default", "Session key to resume and save")
	chatCmd.Flags().StringVar(&policyFlag, "policy", "", "Override the calibration policy (truncate or summarize)")
	chatCmd.Flags().BoolVar(&peekFlag, "peek", false, "Do not record turns in the history")
}

func runChat(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if name, _, _ := cfg.GetActiveProvider(); name == "" {
		fmt.Println("No LLM provider configured.")
		fmt.Println("Run 'prompthandler setup' or set OPENAI_API_KEY.")
		return nil
	}

	conv, err := newConversation(cfg, newLogger())
	if err != nil {
		return err
	}
	defer conv.Close()
	if policyFlag != "" {
		policy, err := calibrate.ParsePolicy(policyFlag)
		if err != nil {
			return err
		}
		conv.handler.Policy = policy
	}

	h, err := conv.open(sessionFlag)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Println("\nGoodbye!")
		cancel()
	}()

	r := &repl{
		h:    h,
		save: func() error { return conv.store.Save(sessionFlag, h.Dump()) },
		out:  os.Stdout,
		peek: peekFlag,
	}

	if messageFlag != "" {
		return r.turn(ctx, messageFlag)
	}

	fmt.Printf("prompthandler chat (%s, %d tokens, %s) session %s\n", h.Model(), h.Budget(), h.Policy(), sessionFlag)
	fmt.Println(noticeStyle.Render("Type \\break, exit or quit to leave. /help lists commands."))
	fmt.Println()

	return r.run(ctx, os.Stdin)
}

// repl drives one terminal conversation.
type repl struct {
	h    *handler.Handler
	save func() error
	out  io.Writer
	peek bool
}

func (r *repl) run(ctx context.Context, in io.Reader) error {
	// Prime the model with whatever history was restored or configured.
	if len(r.h.History().MergedView()) > 0 {
		if last, _ := r.h.History().Last(); last.Role != session.RoleAssistant {
			if err := r.turn(ctx, ""); err != nil && ctx.Err() == nil {
				fmt.Fprintln(r.out, errorStyle.Render("Error: "+err.Error()))
			}
		}
	}

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for {
		if ctx.Err() != nil {
			return nil
		}

		fmt.Fprint(r.out, promptStyle.Render("You: "))
		if !scanner.Scan() {
			break
		}

		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}

		quit, handled := r.command(input)
		if quit {
			fmt.Fprintln(r.out, "Goodbye!")
			return nil
		}
		if handled {
			continue
		}

		if err := r.turn(ctx, input); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			fmt.Fprintln(r.out, errorStyle.Render("Error: "+err.Error()))
		}
		fmt.Fprintln(r.out)
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("input error: %w", err)
	}
	return nil
}

// turn sends message (empty means "complete the current history") and
// prints the reply.
func (r *repl) turn(ctx context.Context, message string) error {
	var reply string
	if r.peek {
		out, err := r.h.Peek(ctx, message, nil)
		if err != nil {
			return err
		}
		reply = out.Text
	} else {
		var err error
		if reply, err = r.h.Send(ctx, message, nil); err != nil {
			return err
		}
		r.persist()
	}

	fmt.Fprintf(r.out, "%s %s\n", assistantStyle.Render("Assistant:"), reply)
	return nil
}

// command handles REPL commands. It reports whether the session should
// end and whether input was a command at all.
func (r *repl) command(input string) (quit, handled bool) {
	switch strings.ToLower(input) {
	case `\break`, "exit", "quit":
		return true, true
	case "/help":
		r.printHelp()
		return false, true
	case "/tokens":
		u, err := r.h.Usage()
		if err != nil {
			fmt.Fprintln(r.out, errorStyle.Render("Error: "+err.Error()))
		} else {
			fmt.Fprintln(r.out, tui.RenderUsage(u, r.h.Budget()))
		}
		return false, true
	case "/dump":
		data, err := json.MarshalIndent(r.h.Dump(), "", "  ")
		if err != nil {
			fmt.Fprintln(r.out, errorStyle.Render("Error: "+err.Error()))
		} else {
			fmt.Fprintln(r.out, string(data))
		}
		return false, true
	case "/clear":
		r.h.Reset()
		r.persist()
		fmt.Fprintln(r.out, noticeStyle.Render("Conversation body cleared; system prompts kept."))
		return false, true
	}

	if rest, ok := strings.CutPrefix(input, "/head "); ok {
		r.h.AddSystem(strings.TrimSpace(rest), true)
		r.persist()
		fmt.Fprintln(r.out, noticeStyle.Render("System prompt added to the head."))
		return false, true
	}

	return false, false
}

func (r *repl) persist() {
	if r.peek || r.save == nil {
		return
	}
	if err := r.save(); err != nil {
		log.Printf("Warning: failed to save session: %v", err)
	}
}

func (r *repl) printHelp() {
	fmt.Fprintln(r.out)
	fmt.Fprintln(r.out, "Commands:")
	fmt.Fprintln(r.out, "  /tokens       - Show token usage against the budget")
	fmt.Fprintln(r.out, "  /dump         - Print the conversation snapshot as JSON")
	fmt.Fprintln(r.out, "  /clear        - Clear the dialogue, keep system prompts")
	fmt.Fprintln(r.out, "  /head <text>  - Add a system prompt to the head")
	fmt.Fprintln(r.out, "  /help         - Show this help message")
	fmt.Fprintln(r.out, `  \break, exit, quit - Leave the chat`)
	fmt.Fprintln(r.out)
}
