package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const defaultOpenAIModel = "gpt-4o"

// OpenAIProvider sends classification requests to the OpenAI chat completions API
type OpenAIProvider struct {
	client *openai.Client
	model  openai.ChatModel
}

// NewOpenAIProvider creates a provider for model, defaulting to gpt-4o.
// A positive timeout bounds every request.
func NewOpenAIProvider(apiKey, model string, timeout time.Duration, opts ...option.RequestOption) *OpenAIProvider {
	if model == "" {
		model = defaultOpenAIModel
	}

	opts = append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	if timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(timeout))
	}

	client := openai.NewClient(opts...)
	return &OpenAIProvider{
		client: &client,
		model:  openai.ChatModel(model),
	}
}

// Name returns "openai:<model>"
func (p *OpenAIProvider) Name() string {
	return ProviderOpenAI + ":" + string(p.model)
}

// Complete sends the request parts as one user message and returns the
// content of the first choice.
func (p *OpenAIProvider) Complete(ctx context.Context, req Request) (string, error) {
	parts := make([]openai.ChatCompletionContentPartUnionParam, 0, len(req.Parts))
	for _, part := range req.Parts {
		if part.IsImage() {
			parts = append(parts, openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
				URL: "data:image/jpeg;base64," + part.ImageBase64,
			}))
			continue
		}
		parts = append(parts, openai.TextContentPart(part.Text))
	}

	params := openai.ChatCompletionNewParams{
		Model: p.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(parts),
		},
		Temperature: openai.Float(req.Temperature),
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openai API error: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no response from openai")
	}

	return resp.Choices[0].Message.Content, nil
}
