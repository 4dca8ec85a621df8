// Package calibrate keeps a conversation history under a token budget by
// evicting or summarizing body messages.
package calibrate

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/hkuds/prompthandler/internal/session"
)

const (
	// DefaultSummaryPrompt is appended to the body when asking for a summary.
	DefaultSummaryPrompt = "Summarize this conversation"
	// DefaultMaxSummaryPasses bounds summarize passes per Calibrate call.
	DefaultMaxSummaryPasses = 3
)

// Completion is the text a Completer generated and the tokens it reported.
type Completion struct {
	Text       string
	TokenUsage int
}

// Completer submits messages to a model and returns the generated text.
// A nil temperature means the completer's configured default.
type Completer interface {
	Complete(ctx context.Context, messages []session.Message, temperature *float64) (Completion, error)
}

// TokenCounter returns the token cost of messages for model.
type TokenCounter interface {
	Count(messages []session.Message, model string) (int, error)
}

// Usage is the token footprint of a history.
type Usage struct {
	Head  int
	Body  int
	Total int
}

// Options configures a Calibrator.
type Options struct {
	Model            string
	SummaryPrompt    string
	MaxSummaryPasses int
	// Temperature is sent with summary requests; nil leaves it to the completer.
	Temperature *float64
	Logger      *slog.Logger
}

// Calibrator enforces a token budget on a History.
// Like History it does no locking.
type Calibrator struct {
	history   *session.History
	counter   TokenCounter
	completer Completer

	model            string
	summaryPrompt    string
	maxSummaryPasses int
	temperature      *float64
	logger           *slog.Logger
}

// New creates a Calibrator for history. completer may be nil when only the
// truncate policy is used.
func New(history *session.History, counter TokenCounter, completer Completer, opts Options) *Calibrator {
	if opts.SummaryPrompt == "" {
		opts.SummaryPrompt = DefaultSummaryPrompt
	}
	if opts.MaxSummaryPasses <= 0 {
		opts.MaxSummaryPasses = DefaultMaxSummaryPasses
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Calibrator{
		history:          history,
		counter:          counter,
		completer:        completer,
		model:            opts.Model,
		summaryPrompt:    opts.SummaryPrompt,
		maxSummaryPasses: opts.MaxSummaryPasses,
		temperature:      opts.Temperature,
		logger:           opts.Logger,
	}
}

// Measure counts head, body and merged-view tokens.
func (c *Calibrator) Measure() (Usage, error) {
	var u Usage
	var err error
	if u.Head, err = c.counter.Count(c.history.Head(), c.model); err != nil {
		return Usage{}, err
	}
	if u.Body, err = c.counter.Count(c.history.Body(), c.model); err != nil {
		return Usage{}, err
	}
	if u.Total, err = c.counter.Count(c.history.MergedView(), c.model); err != nil {
		return Usage{}, err
	}
	return u, nil
}

// Calibrate brings the history under budget using policy. Counts are
// recomputed before every pass. A head at or over budget fails with
// ErrHeadBudgetExceeded before anything is mutated.
func (c *Calibrator) Calibrate(ctx context.Context, budget int, policy Policy) error {
	if budget <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidBudget, budget)
	}
	if !policy.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownPolicy, policy)
	}

	summaries := 0
	lastTotal := 0

	for pass := 1; ; pass++ {
		u, err := c.Measure()
		if err != nil {
			return err
		}

		c.logger.Debug("calibration pass",
			"pass", pass,
			"policy", policy,
			"head", u.Head,
			"body", u.Body,
			"total", u.Total,
			"budget", budget,
		)

		if u.Head >= budget {
			return fmt.Errorf("%w: head uses %d tokens, budget is %d; reduce the head prompts or raise the budget",
				ErrHeadBudgetExceeded, u.Head, budget)
		}
		if u.Total < budget {
			return nil
		}

		switch policy {
		case PolicyTruncate:
			if _, ok := c.history.DropOldest(); !ok {
				return fmt.Errorf("%w: body is empty but %d tokens remain against a budget of %d",
					ErrDidNotConverge, u.Total, budget)
			}

		case PolicySummarize:
			if len(c.history.Body()) == 0 {
				return fmt.Errorf("%w: body is empty but %d tokens remain against a budget of %d",
					ErrDidNotConverge, u.Total, budget)
			}
			if summaries >= c.maxSummaryPasses {
				return fmt.Errorf("%w: still %d tokens after %d summaries (budget %d)",
					ErrDidNotConverge, u.Total, summaries, budget)
			}
			if summaries > 0 && u.Total >= lastTotal {
				return fmt.Errorf("%w: summary grew the history from %d to %d tokens (budget %d)",
					ErrDidNotConverge, lastTotal, u.Total, budget)
			}
			lastTotal = u.Total

			if err := c.summarize(ctx); err != nil {
				return err
			}
			summaries++
		}
	}
}

// summarize asks the completer to summarize the body and swaps the body for
// that summary. The body is only replaced once the completion succeeded.
func (c *Calibrator) summarize(ctx context.Context) error {
	if c.completer == nil {
		return fmt.Errorf("summarize conversation: no completer configured")
	}

	request := append(c.history.Body(), session.NewMessage(session.RoleSystem, c.summaryPrompt))

	out, err := c.completer.Complete(ctx, request, c.temperature)
	if err != nil {
		return fmt.Errorf("summarize conversation: %w", err)
	}

	summary := strings.TrimSpace(out.Text)
	if summary == "" {
		return fmt.Errorf("summarize conversation: completer returned an empty summary")
	}

	c.history.ReplaceBody(session.NewMessage(session.RoleSystem, summary))
	c.logger.Debug("body replaced by summary", "summaryTokens", out.TokenUsage)
	return nil
}
