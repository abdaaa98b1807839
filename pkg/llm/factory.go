package llm

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// NewClientForProvider creates the LLM client for cfg.Provider.
// Returns an error for "none" or unknown providers.
func NewClientForProvider(ctx context.Context, cfg *Config, logger *zap.Logger) (LLMClient, error) {
	switch cfg.Provider {
	case "openai":
		return NewClient(cfg, logger)
	case "anthropic":
		return NewAnthropicClient(cfg, logger)
	case "gemini":
		return NewGeminiClient(ctx, cfg, logger)
	default:
		return nil, fmt.Errorf("unsupported LLM provider %q", cfg.Provider)
	}
}
