package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/liushuangls/go-anthropic/v2"
	"go.uber.org/zap"
)

const (
	defaultAnthropicEndpoint = "https://api.anthropic.com/v1"
	anthropicMaxTokens       = 1024
)

// AnthropicClient talks to the Anthropic Messages API.
type AnthropicClient struct {
	provider
	client *anthropic.Client
}

// NewAnthropicClient creates a client for the Anthropic Messages API.
func NewAnthropicClient(cfg *Config, logger *zap.Logger) (*AnthropicClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("api key is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("model is required")
	}

	endpoint := defaultAnthropicEndpoint
	opts := []anthropic.ClientOption{anthropic.WithHTTPClient(httpClient(cfg.Timeout))}
	if cfg.Endpoint != "" {
		endpoint = strings.TrimSuffix(cfg.Endpoint, "/")
		opts = append(opts, anthropic.WithBaseURL(endpoint))
	}

	return &AnthropicClient{
		provider: newProvider("anthropic", endpoint, cfg.Model, logger),
		client:   anthropic.NewClient(cfg.APIKey, opts...),
	}, nil
}

// GenerateResponse sends one user message with the system prompt and returns the first text block.
func (c *AnthropicClient) GenerateResponse(ctx context.Context, prompt, systemMessage string, temperature float64) (*GenerateResponseResult, error) {
	x := c.begin(prompt, temperature)
	temp := float32(temperature)

	resp, err := c.client.CreateMessages(ctx, anthropic.MessagesRequest{
		Model:       anthropic.Model(c.model),
		MaxTokens:   anthropicMaxTokens,
		System:      systemMessage,
		Temperature: &temp,
		Messages: []anthropic.Message{
			{Role: anthropic.RoleUser, Content: []anthropic.MessageContent{{Type: "text", Text: &prompt}}},
		},
	})
	if err != nil {
		return nil, x.fail(err)
	}

	for _, block := range resp.Content {
		if block.Type == "text" && block.Text != nil && *block.Text != "" {
			return x.done(&GenerateResponseResult{
				Content:          *block.Text,
				PromptTokens:     resp.Usage.InputTokens,
				CompletionTokens: resp.Usage.OutputTokens,
				TotalTokens:      resp.Usage.InputTokens + resp.Usage.OutputTokens,
			}), nil
		}
	}
	return nil, x.empty("text")
}
