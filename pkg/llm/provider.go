package llm

import (
	"context"
	"fmt"
	"strings"
	"time"
)

const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// Part is one piece of a multimodal user message: either text or a
// base64-encoded JPEG image.
type Part struct {
	Text        string
	ImageBase64 string
}

// TextPart creates a text part
func TextPart(text string) Part {
	return Part{Text: text}
}

// ImagePart creates an image part from base64 JPEG data
func ImagePart(b64 string) Part {
	return Part{ImageBase64: b64}
}

// IsImage reports whether the part carries an image
func (p Part) IsImage() bool {
	return p.ImageBase64 != ""
}

// Request is a single-turn multimodal completion request
type Request struct {
	Parts       []Part
	MaxTokens   int
	Temperature float64
}

// ImageCount returns the number of image parts in the request
func (r Request) ImageCount() int {
	n := 0
	for _, p := range r.Parts {
		if p.IsImage() {
			n++
		}
	}
	return n
}

// Provider sends a multimodal request to a vision-capable model and
// returns the raw text of its reply.
type Provider interface {
	Complete(ctx context.Context, req Request) (string, error)
	Name() string
}

// Config selects and configures a provider
type Config struct {
	Provider     string
	Model        string
	OpenAIKey    string
	AnthropicKey string
	Timeout      time.Duration
}

// New creates the provider named in cfg
func New(cfg Config) (Provider, error) {
	switch strings.ToLower(cfg.Provider) {
	case "", ProviderOpenAI:
		if cfg.OpenAIKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY is required for the openai provider")
		}
		return NewOpenAIProvider(cfg.OpenAIKey, cfg.Model, cfg.Timeout), nil
	case ProviderAnthropic:
		if cfg.AnthropicKey == "" {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY is required for the anthropic provider")
		}
		return NewAnthropicProvider(cfg.AnthropicKey, cfg.Model, cfg.Timeout), nil
	default:
		return nil, fmt.Errorf("unknown LLM provider: %s", cfg.Provider)
	}
}
