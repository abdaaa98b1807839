package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/sensorql/pkg/apperrors"
	"github.com/ekaya-inc/sensorql/pkg/llm"
	"github.com/ekaya-inc/sensorql/pkg/models"
	"github.com/ekaya-inc/sensorql/pkg/retry"
)

func fastRetry() *retry.Config {
	return &retry.Config{
		MaxRetries:       2,
		InitialDelay:     time.Millisecond,
		MaxDelay:         2 * time.Millisecond,
		Multiplier:       2,
		MaxSameErrorType: 5,
	}
}

func newTestFallback(t *testing.T, client llm.LLMClient, settings FallbackSettings) FallbackInterpreter {
	t.Helper()
	p := newTestPipeline(t)
	if settings.Retry == nil {
		settings.Retry = fastRetry()
	}
	return NewFallbackInterpreter(client, p.extractor, p.catalog, settings, zap.NewNop())
}

func TestFallback_ValidReply(t *testing.T) {
	client := llm.NewMockLLMClientWithReply("Here you go:\n```json\n" +
		`{"target": "repdata", "operation": "average", "aggregate_column": "value",` +
		` "filters": [{"table": "RepData", "column": "sensor_type", "operator": "=", "value": "humidity_sensor"}]}` +
		"\n```")
	f := newTestFallback(t, client, FallbackSettings{})

	got, err := f.Interpret(context.Background(), "how damp is it", refTime)
	require.NoError(t, err)

	assert.Equal(t, "RepData", got.Target)
	assert.Equal(t, models.OpAverage, got.Operation)
	assert.Equal(t, "value", got.AggregateColumn)
	assert.Equal(t, models.SourceFallback, got.Source)
	require.Len(t, got.Predicates, 1)
	assert.Equal(t, "humidity_sensor", got.Predicates[0].Value)
}

func TestFallback_SystemMessageCarriesSchemaAndClock(t *testing.T) {
	client := llm.NewMockLLMClientWithReply(`{"target": "AlertLog"}`)
	f := newTestFallback(t, client, FallbackSettings{})

	_, err := f.Interpret(context.Background(), "anything unusual", refTime)
	require.NoError(t, err)

	calls := client.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "anything unusual", calls[0].Prompt)
	assert.Zero(t, calls[0].Temperature)
	assert.Contains(t, calls[0].SystemMessage, "AlertLog")
	assert.Contains(t, calls[0].SystemMessage, "2024-03-14T15:30:00Z")
}

type stubExamples struct {
	entries  []*models.QueryHistoryEntry
	err      error
	question string
	n        int
}

func (s *stubExamples) SimilarSuccessful(_ context.Context, question string, n int) ([]*models.QueryHistoryEntry, error) {
	s.question, s.n = question, n
	return s.entries, s.err
}

func TestFallback_SystemMessageCarriesSimilarQuestions(t *testing.T) {
	client := llm.NewMockLLMClientWithReply(`{"target": "RepData", "operation": "AVERAGE", "aggregate_column": "value"}`)
	examples := &stubExamples{entries: []*models.QueryHistoryEntry{
		{Question: "average humidity for DEV003", Target: "RepData", Operation: "AVERAGE"},
		{Question: "alerts yesterday", Target: "AlertLog"},
	}}
	f := newTestFallback(t, client, FallbackSettings{Examples: examples})

	_, err := f.Interpret(context.Background(), "how damp was DEV003", refTime)
	require.NoError(t, err)

	assert.Equal(t, "how damp was DEV003", examples.question)
	assert.Equal(t, 3, examples.n)
	system := client.Calls()[0].SystemMessage
	assert.Contains(t, system, "Similar questions answered before:")
	assert.Contains(t, system, `- "average humidity for DEV003": target RepData, operation AVERAGE`)
	assert.Contains(t, system, `- "alerts yesterday": target AlertLog`+"\n")
}

func TestFallback_ExampleLookupFailureIsIgnored(t *testing.T) {
	client := llm.NewMockLLMClientWithReply(`{"target": "AlertLog"}`)
	examples := &stubExamples{err: errors.New("database is locked")}
	f := newTestFallback(t, client, FallbackSettings{Examples: examples, MaxExamples: 5})

	got, err := f.Interpret(context.Background(), "anything unusual", refTime)
	require.NoError(t, err)
	assert.Equal(t, "AlertLog", got.Target)
	assert.Equal(t, 5, examples.n)
	assert.NotContains(t, client.Calls()[0].SystemMessage, "Similar questions")
}

func TestFallback_DateRange(t *testing.T) {
	client := llm.NewMockLLMClientWithReply(`{"target": "AlertLog", "start": "2024-03-13T00:00:00Z", "end": "2024-03-14T00:00:00Z", "order_by": "timestamp", "order_direction": "asc"}`)
	f := newTestFallback(t, client, FallbackSettings{})

	got, err := f.Interpret(context.Background(), "what went off the day before today", refTime)
	require.NoError(t, err)
	require.NotNil(t, got.DateRange)
	assert.Equal(t, time.Date(2024, 3, 13, 0, 0, 0, 0, time.UTC), got.DateRange.Start)
	assert.Equal(t, time.Date(2024, 3, 14, 0, 0, 0, 0, time.UTC), got.DateRange.End)
	require.NotNil(t, got.Order)
	assert.Equal(t, models.SortAsc, got.Order.Direction)
}

func TestFallback_RejectsBadReplies(t *testing.T) {
	tests := []struct {
		name  string
		reply string
	}{
		{name: "unknown table", reply: `{"target": "Spaceships"}`},
		{name: "unknown column", reply: `{"target": "AlertLog", "filters": [{"table": "AlertLog", "column": "colour", "operator": "=", "value": "red"}]}`},
		{name: "unknown field", reply: `{"target": "AlertLog", "sql": "DROP TABLE AlertLog"}`},
		{name: "half a range", reply: `{"target": "AlertLog", "start": "2024-03-13T00:00:00Z"}`},
		{name: "range backwards", reply: `{"target": "AlertLog", "start": "2024-03-14T00:00:00Z", "end": "2024-03-13T00:00:00Z"}`},
		{name: "not json", reply: "I'm sorry, I can't help with that."},
		{name: "empty target", reply: `{"target": ""}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newTestFallback(t, llm.NewMockLLMClientWithReply(tt.reply), FallbackSettings{})
			_, err := f.Interpret(context.Background(), "q", refTime)
			require.Error(t, err)
			assert.ErrorIs(t, err, apperrors.ErrAmbiguousIntent)
		})
	}
}

func TestFallback_RetriesTransientErrors(t *testing.T) {
	client := llm.NewMockLLMClient()
	calls := 0
	client.GenerateResponseFunc = func(context.Context, string, string, float64) (*llm.GenerateResponseResult, error) {
		calls++
		if calls == 1 {
			return nil, llm.NewError(llm.ErrorTypeEndpoint, "503 service unavailable", errors.New("unavailable"))
		}
		return &llm.GenerateResponseResult{Content: `{"target": "DevMap"}`}, nil
	}
	f := newTestFallback(t, client, FallbackSettings{})

	got, err := f.Interpret(context.Background(), "machines", refTime)
	require.NoError(t, err)
	assert.Equal(t, "DevMap", got.Target)
	assert.Equal(t, 2, client.GenerateResponseCalls())
}

func TestFallback_CircuitOpensAfterFailures(t *testing.T) {
	client := llm.NewMockLLMClient()
	client.GenerateResponseFunc = func(context.Context, string, string, float64) (*llm.GenerateResponseResult, error) {
		return nil, llm.NewError(llm.ErrorTypeAuth, "invalid api key", nil)
	}
	f := newTestFallback(t, client, FallbackSettings{
		CircuitBreaker: llm.CircuitBreakerConfig{Threshold: 2, ResetAfter: time.Hour},
	})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := f.Interpret(ctx, "q", refTime)
		require.ErrorIs(t, err, apperrors.ErrAmbiguousIntent)
	}
	require.Equal(t, 2, client.GenerateResponseCalls(), "auth errors are not retried")

	_, err := f.Interpret(ctx, "q", refTime)
	assert.ErrorIs(t, err, apperrors.ErrAmbiguousIntent)
	assert.Equal(t, 2, client.GenerateResponseCalls(), "open circuit skips the provider")
}

func TestFallback_RateLimited(t *testing.T) {
	client := llm.NewMockLLMClientWithReply(`{"target": "AlertLog"}`)
	f := newTestFallback(t, client, FallbackSettings{RequestsPerMinute: 1})
	ctx := context.Background()

	_, err := f.Interpret(ctx, "q", refTime)
	require.NoError(t, err)

	_, err = f.Interpret(ctx, "q", refTime)
	require.ErrorIs(t, err, apperrors.ErrAmbiguousIntent)
	assert.Contains(t, err.Error(), "rate limit")
	assert.Equal(t, 1, client.GenerateResponseCalls())
}

func TestFallback_Timeout(t *testing.T) {
	client := llm.NewMockLLMClient()
	client.GenerateResponseFunc = func(ctx context.Context, _ string, _ string, _ float64) (*llm.GenerateResponseResult, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	f := newTestFallback(t, client, FallbackSettings{Timeout: 10 * time.Millisecond})

	_, err := f.Interpret(context.Background(), "q", refTime)
	assert.ErrorIs(t, err, apperrors.ErrAmbiguousIntent)
}
