package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// DefaultOpenAIEndpoint is used when no base URL is configured.
const DefaultOpenAIEndpoint = "https://api.openai.com/v1"

// openAIMaxTokens caps a reply; an intent object is far smaller.
const openAIMaxTokens = 1024

// Config holds configuration for creating an LLM client.
type Config struct {
	Provider string        // "openai", "anthropic" or "gemini"
	Endpoint string        // Base URL; empty uses the provider default
	Model    string        // Model name, e.g., "gpt-4o-mini"
	APIKey   string        // Optional for local OpenAI-compatible endpoints
	Timeout  time.Duration // Per-request timeout; zero means none beyond ctx
}

// Client talks to OpenAI and OpenAI-compatible chat completion endpoints
// (vLLM, Ollama, LiteLLM).
type Client struct {
	provider
	client *openai.Client
}

// NewClient creates a new OpenAI-compatible LLM client.
func NewClient(cfg *Config, logger *zap.Logger) (*Client, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("model is required")
	}
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = DefaultOpenAIEndpoint
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	clientConfig.BaseURL = strings.TrimSuffix(endpoint, "/")
	clientConfig.HTTPClient = httpClient(cfg.Timeout)

	return &Client{
		provider: newProvider("openai", endpoint, cfg.Model, logger),
		client:   openai.NewClientWithConfig(clientConfig),
	}, nil
}

// GenerateResponse asks for a single completion in JSON-object mode.
func (c *Client) GenerateResponse(ctx context.Context, prompt, systemMessage string, temperature float64) (*GenerateResponseResult, error) {
	x := c.begin(prompt, temperature)

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemMessage},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: float32(temperature),
		MaxTokens:   openAIMaxTokens,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return nil, x.fail(err)
	}
	if len(resp.Choices) == 0 {
		return nil, x.empty("choices")
	}

	return x.done(&GenerateResponseResult{
		Content:          resp.Choices[0].Message.Content,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		TotalTokens:      resp.Usage.TotalTokens,
	}), nil
}
