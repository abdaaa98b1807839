package services

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/ekaya-inc/sensorql/pkg/apperrors"
	"github.com/ekaya-inc/sensorql/pkg/catalog"
	"github.com/ekaya-inc/sensorql/pkg/intent"
	"github.com/ekaya-inc/sensorql/pkg/llm"
	"github.com/ekaya-inc/sensorql/pkg/logging"
	"github.com/ekaya-inc/sensorql/pkg/models"
	"github.com/ekaya-inc/sensorql/pkg/retry"
)

// FallbackInterpreter asks a language model for an Intent when the rule-based
// reader cannot find one.
type FallbackInterpreter interface {
	// Interpret returns a validated Intent with Source set to fallback.
	// Every failure, including provider outages, wraps ErrAmbiguousIntent.
	Interpret(ctx context.Context, question string, ref time.Time) (models.Intent, error)
}

// ExampleSource supplies previously answered questions that resemble a new one.
// QueryHistoryService satisfies it.
type ExampleSource interface {
	SimilarSuccessful(ctx context.Context, question string, n int) ([]*models.QueryHistoryEntry, error)
}

// FallbackSettings bounds calls to the provider.
type FallbackSettings struct {
	RequestsPerMinute int
	Timeout           time.Duration
	Retry             *retry.Config
	CircuitBreaker    llm.CircuitBreakerConfig

	// Examples, when set, adds up to MaxExamples similar answered questions
	// to the system message. MaxExamples defaults to 3.
	Examples    ExampleSource
	MaxExamples int
}

type fallbackInterpreter struct {
	client    llm.LLMClient
	extractor *intent.Extractor
	schema    string
	limiter   *rate.Limiter
	timeout   time.Duration
	retryCfg  *retry.Config
	examples  ExampleSource
	nExamples int
	logger    *zap.Logger
}

var _ FallbackInterpreter = (*fallbackInterpreter)(nil)

// NewFallbackInterpreter wraps client. Replies are checked against cat by extractor.Validate.
func NewFallbackInterpreter(client llm.LLMClient, extractor *intent.Extractor, cat *catalog.Catalog, settings FallbackSettings, logger *zap.Logger) FallbackInterpreter {
	rpm := settings.RequestsPerMinute
	if rpm <= 0 {
		rpm = 30
	}
	retryCfg := settings.Retry
	if retryCfg == nil {
		retryCfg = &retry.Config{
			MaxRetries:       2,
			InitialDelay:     500 * time.Millisecond,
			MaxDelay:         4 * time.Second,
			Multiplier:       2.0,
			JitterFactor:     0.1,
			MaxSameErrorType: 3,
		}
	}
	return &fallbackInterpreter{
		client:    llm.NewCircuitBreaker(settings.CircuitBreaker).Guard(client),
		extractor: extractor,
		schema:    cat.Describe(),
		limiter:   rate.NewLimiter(rate.Every(time.Minute/time.Duration(rpm)), max(1, rpm/10)),
		timeout:   settings.Timeout,
		retryCfg:  retryCfg,
		examples:  settings.Examples,
		nExamples: cmp.Or(settings.MaxExamples, 3),
		logger:    logger.Named("fallback").With(zap.String("model", client.GetModel())),
	}
}

func (f *fallbackInterpreter) Interpret(ctx context.Context, question string, ref time.Time) (models.Intent, error) {
	if !f.limiter.Allow() {
		return models.Intent{}, rejected(errors.New("rate limit reached"))
	}
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	system := f.systemMessage(ref, f.similarExamples(ctx, question))
	result, err := retry.DoWithResult(ctx, f.retryCfg, func() (*llm.GenerateResponseResult, error) {
		return f.client.GenerateResponse(ctx, question, system, 0)
	})
	if err != nil {
		f.logger.Warn("Fallback provider call failed",
			zap.String("error_type", string(llm.TypeOf(err))),
			zap.String("error", logging.SanitizeError(err)))
		return models.Intent{}, rejected(err)
	}
	reply, err := llm.ParseJSONResponse[fallbackReply](result.Content)
	if err != nil {
		f.logger.Debug("Unparseable fallback reply", zap.String("content", logging.TruncateString(result.Content, 200)))
		return models.Intent{}, rejected(err)
	}
	if reply.Target == "" {
		return models.Intent{}, apperrors.Ambiguous(question)
	}

	raw, err := reply.toIntent()
	if err != nil {
		return models.Intent{}, rejected(err)
	}
	raw.Source = models.SourceFallback

	in, err := f.extractor.Validate(raw)
	if err != nil {
		return models.Intent{}, err
	}
	f.logger.Info("Fallback interpreted question",
		zap.String("intent", in.Summary()),
		zap.Int("total_tokens", result.TotalTokens))
	return in, nil
}

// similarExamples never fails the call; a history lookup error only drops the examples.
func (f *fallbackInterpreter) similarExamples(ctx context.Context, question string) []*models.QueryHistoryEntry {
	if f.examples == nil {
		return nil
	}
	examples, err := f.examples.SimilarSuccessful(ctx, question, f.nExamples)
	if err != nil {
		f.logger.Warn("Failed to load similar questions", zap.String("error", logging.SanitizeError(err)))
		return nil
	}
	return examples
}

func (f *fallbackInterpreter) systemMessage(ref time.Time, examples []*models.QueryHistoryEntry) string {
	var b strings.Builder
	b.WriteString("You translate questions about IoT sensor data into a JSON query description.\n")
	b.WriteString("Use only these tables and columns:\n\n")
	b.WriteString(f.schema)
	b.WriteString("\nReply with a single JSON object and nothing else:\n")
	b.WriteString(`{"target": "<table>", "operation": "SELECT_LIST|COUNT|AVERAGE|MAX|MIN", "aggregate_column": "<numeric column or empty>",` +
		` "filters": [{"table": "<table>", "column": "<column>", "operator": "=|>|<|>=|<=|LIKE", "value": <string or number>}],` +
		` "start": "<RFC3339 or empty>", "end": "<RFC3339 or empty>", "limit": <int or 0>,` +
		` "order_by": "<column of target or empty>", "order_direction": "ASC|DESC"}`)
	b.WriteString("\n\nThe time range is half-open: start <= t < end.\n")
	fmt.Fprintf(&b, "The current time is %s.\n", ref.UTC().Format(time.RFC3339))
	if len(examples) > 0 {
		b.WriteString("Similar questions answered before:\n")
		for _, e := range examples {
			fmt.Fprintf(&b, "- %q: target %s", e.Question, e.Target)
			if e.Operation != "" {
				fmt.Fprintf(&b, ", operation %s", e.Operation)
			}
			b.WriteString("\n")
		}
	}
	b.WriteString(`If the question is not about these tables, reply {"target": ""}.`)
	return b.String()
}

type fallbackFilter struct {
	Table    string `json:"table"`
	Column   string `json:"column"`
	Operator string `json:"operator"`
	Value    any    `json:"value"`
}

type fallbackReply struct {
	Target          string           `json:"target"`
	Operation       string           `json:"operation"`
	AggregateColumn string           `json:"aggregate_column"`
	Filters         []fallbackFilter `json:"filters"`
	Start           string           `json:"start"`
	End             string           `json:"end"`
	Limit           int              `json:"limit"`
	OrderBy         string           `json:"order_by"`
	OrderDirection  string           `json:"order_direction"`
}

func (r fallbackReply) toIntent() (models.Intent, error) {
	in := models.Intent{
		Target:          r.Target,
		Operation:       models.Operation(strings.ToUpper(r.Operation)),
		AggregateColumn: r.AggregateColumn,
		Limit:           r.Limit,
	}
	for _, f := range r.Filters {
		in.Predicates = append(in.Predicates, models.Predicate{
			Column:   models.ColumnRef{Table: f.Table, Column: f.Column},
			Operator: models.Operator(strings.ToUpper(f.Operator)),
			Value:    f.Value,
		})
	}
	if r.Start != "" || r.End != "" {
		if r.Start == "" || r.End == "" {
			return models.Intent{}, errors.New("time range needs both start and end")
		}
		start, err := time.Parse(time.RFC3339, r.Start)
		if err != nil {
			return models.Intent{}, fmt.Errorf("invalid start: %w", err)
		}
		end, err := time.Parse(time.RFC3339, r.End)
		if err != nil {
			return models.Intent{}, fmt.Errorf("invalid end: %w", err)
		}
		in.DateRange = &models.DateRange{Start: start.UTC(), End: end.UTC()}
	}
	if r.OrderBy != "" {
		in.Order = &models.Order{
			Column:    models.ColumnRef{Table: r.Target, Column: r.OrderBy},
			Direction: models.SortDirection(strings.ToUpper(r.OrderDirection)),
		}
	}
	return in, nil
}

func rejected(err error) error {
	return fmt.Errorf("%w: fallback interpreter: %s", apperrors.ErrAmbiguousIntent, logging.SanitizeError(err))
}
