package tokens

import (
	"fmt"
	"sync"

	tiktoken "github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"
)

// DefaultEncoding is used for model names the encoding registry does not know.
const DefaultEncoding = "cl100k_base"

func init() {
	// Load BPE ranks from the embedded tables instead of downloading them.
	tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader())
}

// Encoding turns text into a token sequence.
type Encoding interface {
	Encode(text string) []int
}

// EncodingProvider resolves the encoding for a model name. Resolution never
// fails: unknown models fall back to the default encoding.
type EncodingProvider interface {
	EncodingForModel(model string) Encoding
	DefaultEncoding() Encoding
}

// tiktokenEncoding adapts *tiktoken.Tiktoken to Encoding.
type tiktokenEncoding struct {
	enc *tiktoken.Tiktoken
}

func (e tiktokenEncoding) Encode(text string) []int {
	// No special-token checks: content is counted as plain text.
	return e.enc.Encode(text, nil, nil)
}

// TiktokenProvider resolves encodings through tiktoken and caches them per model.
type TiktokenProvider struct {
	fallback Encoding

	cache map[string]Encoding
	mu    sync.Mutex
}

// NewTiktokenProvider loads the default encoding eagerly so later lookups
// always have something to fall back to.
func NewTiktokenProvider() (*TiktokenProvider, error) {
	enc, err := tiktoken.GetEncoding(DefaultEncoding)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s encoding: %w", DefaultEncoding, err)
	}
	return &TiktokenProvider{
		fallback: tiktokenEncoding{enc: enc},
		cache:    make(map[string]Encoding),
	}, nil
}

// EncodingForModel returns the encoding registered for model, or the
// default encoding when the model is unknown.
func (p *TiktokenProvider) EncodingForModel(model string) Encoding {
	p.mu.Lock()
	defer p.mu.Unlock()

	if enc, ok := p.cache[model]; ok {
		return enc
	}

	var resolved Encoding = p.fallback
	if enc, err := tiktoken.EncodingForModel(model); err == nil {
		resolved = tiktokenEncoding{enc: enc}
	}
	p.cache[model] = resolved
	return resolved
}

// DefaultEncoding returns the fallback encoding.
func (p *TiktokenProvider) DefaultEncoding() Encoding {
	return p.fallback
}
