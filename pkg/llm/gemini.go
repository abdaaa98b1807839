package llm

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"google.golang.org/genai"
)

const (
	defaultGeminiEndpoint = "https://generativelanguage.googleapis.com"
	defaultGeminiModel    = "gemini-2.5-flash"
)

// GeminiClient talks to Google's Gemini API.
type GeminiClient struct {
	provider
	client *genai.Client
}

// NewGeminiClient creates a client for the Gemini API. The model defaults to
// gemini-2.5-flash.
func NewGeminiClient(ctx context.Context, cfg *Config, logger *zap.Logger) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("GenAI API key is required")
	}
	model := cfg.Model
	if model == "" {
		model = defaultGeminiModel
	}

	clientCfg := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: httpClient(cfg.Timeout),
	}
	endpoint := defaultGeminiEndpoint
	if cfg.Endpoint != "" {
		endpoint = cfg.Endpoint
		clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.Endpoint}
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	return &GeminiClient{
		provider: newProvider("gemini", endpoint, model, logger),
		client:   client,
	}, nil
}

// GenerateResponse generates content in JSON mode with the system prompt as system instruction.
func (c *GeminiClient) GenerateResponse(ctx context.Context, prompt, systemMessage string, temperature float64) (*GenerateResponseResult, error) {
	x := c.begin(prompt, temperature)

	resp, err := c.client.Models.GenerateContent(ctx, c.model, genai.Text(prompt), &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(systemMessage, genai.RoleUser),
		Temperature:       genai.Ptr(float32(temperature)),
		ResponseMIMEType:  "application/json",
	})
	if err != nil {
		return nil, x.fail(err)
	}

	text := resp.Text()
	if text == "" {
		return nil, x.empty("text")
	}

	result := &GenerateResponseResult{Content: text}
	if usage := resp.UsageMetadata; usage != nil {
		result.PromptTokens = int(usage.PromptTokenCount)
		result.CompletionTokens = int(usage.CandidatesTokenCount)
		result.TotalTokens = int(usage.TotalTokenCount)
	}
	return x.done(result), nil
}
