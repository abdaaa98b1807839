package llm

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/sensorql/pkg/logging"
)

// provider holds what every client knows about its upstream.
type provider struct {
	endpoint string
	model    string
	logger   *zap.Logger
}

func newProvider(name, endpoint, model string, logger *zap.Logger) provider {
	return provider{
		endpoint: endpoint,
		model:    model,
		logger:   logger.Named("llm").With(zap.String("provider", name)),
	}
}

// GetModel returns the configured model name.
func (p provider) GetModel() string {
	return p.model
}

// GetEndpoint returns the configured endpoint.
func (p provider) GetEndpoint() string {
	return p.endpoint
}

// begin logs an outgoing completion request and starts its clock.
func (p provider) begin(prompt string, temperature float64) *exchange {
	p.logger.Debug("LLM request",
		zap.String("model", p.model),
		zap.Int("prompt_len", len(prompt)),
		zap.Float64("temperature", temperature))
	return &exchange{provider: p, start: time.Now()}
}

// exchange is one in-flight completion request.
type exchange struct {
	provider
	start time.Time
}

// fail logs a transport or API error and classifies it.
func (x *exchange) fail(err error) error {
	x.logger.Error("LLM request failed",
		zap.Duration("elapsed", time.Since(x.start)),
		zap.String("error", logging.SanitizeError(err)))
	return ClassifyError(err).at(x.model, x.endpoint)
}

// empty reports a reply that carried no usable text.
func (x *exchange) empty(what string) error {
	x.logger.Warn("LLM returned no content", zap.String("missing", what))
	return NewError(ErrorTypeUnknown, "no "+what+" in response", nil).at(x.model, x.endpoint)
}

// done logs token usage and returns result.
func (x *exchange) done(result *GenerateResponseResult) *GenerateResponseResult {
	x.logger.Info("LLM request completed",
		zap.Int("prompt_tokens", result.PromptTokens),
		zap.Int("completion_tokens", result.CompletionTokens),
		zap.Duration("elapsed", time.Since(x.start)))
	return result
}

// httpClient bounds each request by timeout when one is configured.
func httpClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		return http.DefaultClient
	}
	return &http.Client{Timeout: timeout}
}
