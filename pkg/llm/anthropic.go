package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const defaultAnthropicModel = "claude-sonnet-4-5"

// AnthropicProvider sends classification requests to the Anthropic Messages API
type AnthropicProvider struct {
	client *anthropic.Client
	model  anthropic.Model
}

// NewAnthropicProvider creates a provider for model, defaulting to
// claude-sonnet-4-5. A positive timeout bounds every request.
func NewAnthropicProvider(apiKey, model string, timeout time.Duration, opts ...option.RequestOption) *AnthropicProvider {
	if model == "" {
		model = defaultAnthropicModel
	}

	opts = append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	if timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(timeout))
	}

	client := anthropic.NewClient(opts...)
	return &AnthropicProvider{
		client: &client,
		model:  anthropic.Model(model),
	}
}

// Name returns "anthropic:<model>"
func (p *AnthropicProvider) Name() string {
	return ProviderAnthropic + ":" + string(p.model)
}

// Complete sends the request parts as one user message and returns the
// concatenated text blocks of the reply.
func (p *AnthropicProvider) Complete(ctx context.Context, req Request) (string, error) {
	blocks := make([]anthropic.ContentBlockParamUnion, 0, len(req.Parts))
	for _, part := range req.Parts {
		if part.IsImage() {
			blocks = append(blocks, anthropic.NewImageBlockBase64("image/jpeg", part.ImageBase64))
			continue
		}
		blocks = append(blocks, anthropic.NewTextBlock(part.Text))
	}

	maxTokens := int64(req.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = 1024
	}

	resp, err := p.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       p.model,
		MaxTokens:   maxTokens,
		Temperature: anthropic.Float(req.Temperature),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(blocks...),
		},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic API error: %w", err)
	}

	if len(resp.Content) == 0 {
		return "", fmt.Errorf("no response from anthropic")
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	return sb.String(), nil
}
