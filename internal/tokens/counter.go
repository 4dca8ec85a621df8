// Package tokens counts the prompt tokens a list of chat messages costs.
package tokens

import (
	"errors"
	"fmt"

	"github.com/hkuds/prompthandler/internal/session"
)

// ErrUnsupportedModel is returned for models whose per-message framing
// overhead is not implemented.
var ErrUnsupportedModel = errors.New("token counting is not implemented for model")

const (
	// tokensPerMessage covers <im_start>{role/name}\n{content}<im_end>\n.
	tokensPerMessage = 4
	// tokensPerName is added when a name is present; the name replaces the role token.
	tokensPerName = -1
	// replyPriming covers <im_start>assistant that starts every reply.
	replyPriming = 2
)

// supportedModels lists the models that share the framing formula above.
var supportedModels = map[string]bool{
	"gpt-3.5-turbo-0301": true,
	"gpt-3.5-turbo-0613": true,
}

// IsSupported reports whether Count can account for model.
func IsSupported(model string) bool {
	return supportedModels[model]
}

// Counter counts message tokens against a model's encoding.
type Counter struct {
	encodings EncodingProvider
}

// NewCounter creates a Counter backed by the given encoding provider.
func NewCounter(encodings EncodingProvider) *Counter {
	return &Counter{encodings: encodings}
}

// NewTiktokenCounter creates a Counter backed by tiktoken encodings.
func NewTiktokenCounter() (*Counter, error) {
	p, err := NewTiktokenProvider()
	if err != nil {
		return nil, err
	}
	return NewCounter(p), nil
}

// Count returns the number of prompt tokens messages cost for model.
// Every field value is encoded; an empty message list still costs the
// reply priming tokens.
func (c *Counter) Count(messages []session.Message, model string) (int, error) {
	if !IsSupported(model) {
		return 0, fmt.Errorf("%w %q", ErrUnsupportedModel, model)
	}

	enc := c.encodings.EncodingForModel(model)

	total := 0
	for _, msg := range messages {
		total += tokensPerMessage
		total += len(enc.Encode(string(msg.Role)))
		total += len(enc.Encode(msg.Content))
		if msg.Name != "" {
			total += len(enc.Encode(msg.Name))
			total += tokensPerName
		}
	}
	total += replyPriming

	return total, nil
}
