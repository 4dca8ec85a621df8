package handler

import (
	"context"
	"fmt"

	"github.com/hkuds/prompthandler/internal/calibrate"
	"github.com/hkuds/prompthandler/internal/providers"
	"github.com/hkuds/prompthandler/internal/session"
)

// ProviderBridge adapts a providers.Provider to calibrate.Completer.
type ProviderBridge struct {
	provider  providers.Provider
	model     string
	maxTokens int
}

// NewProviderBridge returns a Completer that sends messages to provider.
// An empty model uses the provider default; maxTokens 0 leaves the
// completion length to the server.
func NewProviderBridge(provider providers.Provider, model string, maxTokens int) *ProviderBridge {
	return &ProviderBridge{
		provider:  provider,
		model:     model,
		maxTokens: maxTokens,
	}
}

// Complete implements calibrate.Completer.
func (b *ProviderBridge) Complete(ctx context.Context, messages []session.Message, temperature *float64) (calibrate.Completion, error) {
	req := providers.ChatRequest{
		Messages:    make([]providers.ChatMessage, 0, len(messages)),
		Model:       b.model,
		MaxTokens:   b.maxTokens,
		Temperature: temperature,
	}
	for _, m := range messages {
		req.Messages = append(req.Messages, providers.ChatMessage{
			Role:    string(m.Role),
			Content: m.Content,
			Name:    m.Name,
		})
	}

	resp, err := b.provider.Chat(ctx, req)
	if err != nil {
		return calibrate.Completion{}, fmt.Errorf("%s completion: %w", b.provider.Name(), err)
	}

	return calibrate.Completion{
		Text:       resp.Content,
		TokenUsage: resp.Usage.TotalTokens,
	}, nil
}
