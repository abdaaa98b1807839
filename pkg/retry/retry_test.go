package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastConfig() *Config {
	return &Config{
		MaxRetries:   3,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, 100*time.Millisecond, cfg.InitialDelay)
	assert.Equal(t, 5*time.Second, cfg.MaxDelay)
	assert.InDelta(t, 2.0, cfg.Multiplier, 0)
	assert.Equal(t, 5, cfg.MaxSameErrorType)
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil error", nil, false},
		{"connection refused", errors.New("dial tcp 127.0.0.1:5432: connect: Connection Refused"), true},
		{"connection reset", errors.New("read: connection reset by peer"), true},
		{"i/o timeout", errors.New("i/o timeout"), true},
		{"sqlite busy", errors.New("database is locked"), true},
		{"postgres starting", errors.New("FATAL: the database system is starting up (SQLSTATE 57P03)"), true},
		{"too many clients", errors.New("sorry, too many clients already"), true},
		{"provider overloaded", errors.New("anthropic: 529 overloaded_error"), true},
		{"http 503", errors.New("HTTP 503 from upstream"), true},
		{"auth error", errors.New("password authentication failed for user \"iot\""), false},
		{"syntax error", errors.New("syntax error at or near \"FROM\""), false},
		{"missing table", errors.New("no such table: RepData"), false},
		{"context canceled", fmt.Errorf("query: %w", context.Canceled), false},
		{"deadline exceeded", fmt.Errorf("query timeout: %w", context.DeadlineExceeded), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}

type declaredError struct{ retryable bool }

func (e *declaredError) Error() string     { return "503 but declared" }
func (e *declaredError) IsRetryable() bool { return e.retryable }

func TestIsRetryable_DeclaredWinsOverPattern(t *testing.T) {
	assert.False(t, IsRetryable(&declaredError{retryable: false}), "declaration beats the 503 pattern")
	assert.True(t, IsRetryable(fmt.Errorf("wrapped: %w", &declaredError{retryable: true})), "found through the chain")
}

func TestDoIfRetryable_Success(t *testing.T) {
	calls := 0
	err := DoIfRetryable(context.Background(), fastConfig(), func() error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoIfRetryable_RetriesTransientErrors(t *testing.T) {
	calls := 0
	err := DoIfRetryable(context.Background(), fastConfig(), func() error {
		calls++
		if calls < 3 {
			return errors.New("database is locked")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDoIfRetryable_PermanentErrorReturnsImmediately(t *testing.T) {
	permanent := errors.New("permission denied for table RepData")
	calls := 0
	err := DoIfRetryable(context.Background(), fastConfig(), func() error {
		calls++
		return permanent
	})
	assert.Same(t, permanent, err)
	assert.Equal(t, 1, calls)
}

func TestDoIfRetryable_MaxRetriesExhausted(t *testing.T) {
	calls := 0
	err := DoIfRetryable(context.Background(), fastConfig(), func() error {
		calls++
		return fmt.Errorf("attempt %d: connection refused", calls)
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "attempt 4")
	assert.Equal(t, 4, calls, "first try plus MaxRetries")
}

func TestDoIfRetryable_RepeatedErrorTypeEscalates(t *testing.T) {
	cfg := fastConfig()
	cfg.MaxRetries = 10
	cfg.MaxSameErrorType = 2

	calls := 0
	err := DoIfRetryable(context.Background(), cfg, func() error {
		calls++
		return errors.New("HTTP 503 service unavailable")
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "repeated error (2 times, type=server)")
	assert.Equal(t, 2, calls)
}

func TestDoIfRetryable_OnRetry(t *testing.T) {
	cfg := fastConfig()
	var attempts []int
	var delays []time.Duration
	cfg.OnRetry = func(attempt int, err error, delay time.Duration) {
		assert.ErrorContains(t, err, "connection reset")
		attempts = append(attempts, attempt)
		delays = append(delays, delay)
	}

	calls := 0
	require.NoError(t, DoIfRetryable(context.Background(), cfg, func() error {
		calls++
		if calls < 3 {
			return errors.New("connection reset by peer")
		}
		return nil
	}))
	assert.Equal(t, []int{1, 2}, attempts)
	assert.Equal(t, []time.Duration{time.Millisecond, 2 * time.Millisecond}, delays)
}

func TestTransientClass(t *testing.T) {
	assert.Equal(t, "connection", transientClass(errors.New("dial tcp: connection refused")))
	assert.Equal(t, "contention", transientClass(errors.New("database is locked")))
	assert.Equal(t, "rate_limit", transientClass(errors.New("HTTP 429 too many requests")))
	assert.Equal(t, "server", transientClass(errors.New("503 service unavailable")))
	assert.Empty(t, transientClass(errors.New("syntax error")))
}

func TestDoIfRetryable_ContextCancellation(t *testing.T) {
	cfg := fastConfig()
	cfg.InitialDelay = time.Hour
	cfg.MaxDelay = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	err := DoIfRetryable(ctx, cfg, func() error {
		calls++
		return errors.New("connection refused")
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestDoWithResult(t *testing.T) {
	calls := 0
	got, err := DoWithResult(context.Background(), fastConfig(), func() (string, error) {
		calls++
		if calls == 1 {
			return "", errors.New("i/o timeout")
		}
		return "connected", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "connected", got)
	assert.Equal(t, 2, calls)

	_, err = DoWithResult(context.Background(), nil, func() (int, error) {
		return 0, errors.New("invalid credentials")
	})
	assert.EqualError(t, err, "invalid credentials")
}

func TestBackoff_GrowsAndCaps(t *testing.T) {
	b := &backoff{cfg: &Config{Multiplier: 3, MaxDelay: 5 * time.Microsecond}, delay: time.Microsecond}
	require.NoError(t, b.wait(context.Background()))
	assert.Equal(t, 3*time.Microsecond, b.delay)
	require.NoError(t, b.wait(context.Background()))
	assert.Equal(t, 5*time.Microsecond, b.delay)
}
