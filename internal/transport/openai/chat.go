package openai

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/kailas-cloud/ragline/internal/domain"
)

// ChatProvider is a text-generation provider speaking the OpenAI chat
// completions protocol. With a custom BaseURL it also serves the many
// OpenAI-compatible backends (Gemini's compatibility endpoint, Ollama).
type ChatProvider struct {
	client *openai.Client
	name   string
	model  string
}

// ChatConfig holds the generation provider settings. Name is the provider
// identity reported in results and metrics, not the upstream vendor name.
type ChatConfig struct {
	Name    string
	APIKey  string
	BaseURL string
	Model   string
}

// NewChatProvider creates an OpenAI-compatible chat completion provider.
func NewChatProvider(cfg *ChatConfig) *ChatProvider {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &ChatProvider{
		client: openai.NewClientWithConfig(clientCfg),
		name:   cfg.Name,
		model:  cfg.Model,
	}
}

var _ domain.Provider = (*ChatProvider)(nil)

// Name implements domain.Provider.
func (p *ChatProvider) Name() string { return p.name }

// Model implements domain.Provider.
func (p *ChatProvider) Model() string { return p.model }

// Generate implements domain.Provider.
func (p *ChatProvider) Generate(ctx context.Context, prompt string, maxTokens int, temperature float32) (string, error) {
	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: p.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		MaxTokens:   maxTokens,
		Temperature: temperature,
	})
	if err != nil {
		return "", fmt.Errorf("%s chat completion: %w", p.name, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%s chat completion: empty choices", p.name)
	}
	return resp.Choices[0].Message.Content, nil
}
