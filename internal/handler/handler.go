// Package handler ties a History, a Counter and a Calibrator to a
// completion provider and exposes the send/peek flows of a conversation.
package handler

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/hkuds/prompthandler/internal/calibrate"
	"github.com/hkuds/prompthandler/internal/config"
	"github.com/hkuds/prompthandler/internal/session"
	"github.com/hkuds/prompthandler/internal/tokens"
)

// Config holds the per-conversation settings of a Handler.
type Config struct {
	Model            string
	Budget           int
	Temperature      float64
	Policy           calibrate.Policy
	SystemPrompt     string
	SummaryPrompt    string
	MaxSummaryPasses int
	Logger           *slog.Logger
}

// ConfigFrom builds a handler Config from the conversation section of the
// application config.
func ConfigFrom(conv config.ConversationConfig) (Config, error) {
	policy, err := calibrate.ParsePolicy(conv.Calibration)
	if err != nil {
		return Config{}, err
	}
	return Config{
		Model:            conv.Model,
		Budget:           conv.MaxTokens,
		Temperature:      conv.Temperature,
		Policy:           policy,
		SystemPrompt:     conv.SystemPrompt,
		SummaryPrompt:    conv.SummaryPrompt,
		MaxSummaryPasses: conv.MaxSummaryPasses,
	}, nil
}

// Handler manages one conversation. It does no locking: callers sharing a
// Handler across goroutines must serialize access.
type Handler struct {
	cfg        Config
	history    *session.History
	completer  calibrate.Completer
	calibrator *calibrate.Calibrator
	logger     *slog.Logger
}

// New creates a Handler. The system prompt, if any, becomes the head.
func New(cfg Config, counter calibrate.TokenCounter, completer calibrate.Completer) (*Handler, error) {
	if !tokens.IsSupported(cfg.Model) {
		return nil, fmt.Errorf("%w: %q", tokens.ErrUnsupportedModel, cfg.Model)
	}
	if cfg.Budget <= 0 {
		return nil, fmt.Errorf("%w: %d", calibrate.ErrInvalidBudget, cfg.Budget)
	}
	if !cfg.Policy.Valid() {
		return nil, fmt.Errorf("%w: %q", calibrate.ErrUnknownPolicy, cfg.Policy)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	history := session.NewHistory()
	if cfg.SystemPrompt != "" {
		history.AddSystem(cfg.SystemPrompt, true)
	}

	temperature := cfg.Temperature
	return &Handler{
		cfg:       cfg,
		history:   history,
		completer: completer,
		calibrator: calibrate.New(history, counter, completer, calibrate.Options{
			Model:            cfg.Model,
			SummaryPrompt:    cfg.SummaryPrompt,
			MaxSummaryPasses: cfg.MaxSummaryPasses,
			Temperature:      &temperature,
			Logger:           cfg.Logger,
		}),
		logger: cfg.Logger,
	}, nil
}

// Model returns the model the conversation is accounted against.
func (h *Handler) Model() string { return h.cfg.Model }

// Budget returns the token budget.
func (h *Handler) Budget() int { return h.cfg.Budget }

// Policy returns the default calibration policy.
func (h *Handler) Policy() calibrate.Policy { return h.cfg.Policy }

// History exposes the underlying history.
func (h *Handler) History() *session.History { return h.history }

// Add appends a message and returns the last message of the merged view.
func (h *Handler) Add(role session.Role, content string, toHead bool) session.Message {
	return h.history.Add(role, content, toHead)
}

// AddUser appends a user message.
func (h *Handler) AddUser(content string, toHead bool) session.Message {
	return h.history.AddUser(content, toHead)
}

// AddAssistant appends an assistant message.
func (h *Handler) AddAssistant(content string, toHead bool) session.Message {
	return h.history.AddAssistant(content, toHead)
}

// AddSystem appends a system message.
func (h *Handler) AddSystem(content string, toHead bool) session.Message {
	return h.history.AddSystem(content, toHead)
}

// Calibrate brings the history under budget with the default policy.
func (h *Handler) Calibrate(ctx context.Context) error {
	return h.calibrator.Calibrate(ctx, h.cfg.Budget, h.cfg.Policy)
}

// CalibrateWith brings the history under budget with policy.
func (h *Handler) CalibrateWith(ctx context.Context, policy calibrate.Policy) error {
	return h.calibrator.Calibrate(ctx, h.cfg.Budget, policy)
}

// Usage reports head, body and total token counts.
func (h *Handler) Usage() (calibrate.Usage, error) {
	return h.calibrator.Measure()
}

// Dump returns a snapshot of the conversation.
func (h *Handler) Dump() session.Snapshot {
	return h.history.Dump()
}

// Load restores a snapshot. A snapshot whose messages disagree with its
// head and body is still loaded as-is.
func (h *Handler) Load(snap session.Snapshot) {
	if !h.history.Load(snap) {
		h.logger.Warn("snapshot messages differ from head+body; using messages as stored",
			"head", len(snap.Head),
			"body", len(snap.Body),
			"messages", len(snap.Messages),
		)
	}
}

// Reset drops the body and keeps the head.
func (h *Handler) Reset() {
	h.history.ClearBody()
}

// temperature returns t, or the configured temperature when t is nil.
func (h *Handler) temperature(t *float64) *float64 {
	if t != nil {
		return t
	}
	v := h.cfg.Temperature
	return &v
}

// Send adds message as a user turn (unless empty), calibrates, completes
// over the merged view and records the reply as an assistant turn.
// On error the history is left as it was before the call.
func (h *Handler) Send(ctx context.Context, message string, temperature *float64) (string, error) {
	if h.completer == nil {
		return "", fmt.Errorf("send: no completer configured")
	}

	before := h.history.Dump()
	if message != "" {
		h.history.AddUser(message, false)
	}
	if err := h.Calibrate(ctx); err != nil {
		h.history.Load(before)
		return "", err
	}

	out, err := h.completer.Complete(ctx, h.history.MergedView(), h.temperature(temperature))
	if err != nil {
		h.history.Load(before)
		return "", err
	}

	h.history.AddAssistant(out.Text, false)
	h.logger.Debug("completion recorded", "model", h.cfg.Model, "tokenUsage", out.TokenUsage)
	return out.Text, nil
}

// Peek completes without recording anything. An empty message calibrates
// first and completes over the merged view; otherwise message is sent as
// a temporary user turn after the merged view.
func (h *Handler) Peek(ctx context.Context, message string, temperature *float64) (calibrate.Completion, error) {
	if h.completer == nil {
		return calibrate.Completion{}, fmt.Errorf("peek: no completer configured")
	}

	messages := h.history.MergedView()
	if message == "" {
		if err := h.Calibrate(ctx); err != nil {
			return calibrate.Completion{}, err
		}
		messages = h.history.MergedView()
	} else {
		messages = append(messages, session.NewMessage(session.RoleUser, message))
	}

	return h.completer.Complete(ctx, messages, h.temperature(temperature))
}
