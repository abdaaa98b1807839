// Package retry retries transient failures with jittered exponential backoff.
// Backend connections and LLM provider calls go through it.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"
)

// Config controls a retry loop.
type Config struct {
	// MaxRetries is the number of attempts after the first.
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	// JitterFactor in [0,1] varies each delay by up to that fraction either way.
	JitterFactor float64
	// MaxSameErrorType gives up after that many consecutive failures of one
	// class. Zero disables the check.
	MaxSameErrorType int
	// OnRetry, when set, is called before each wait.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// DefaultConfig suits opening backend connections: 3 retries from 100ms,
// doubling up to 5s, with 10% jitter.
func DefaultConfig() *Config {
	return &Config{
		MaxRetries:       3,
		InitialDelay:     100 * time.Millisecond,
		MaxDelay:         5 * time.Second,
		Multiplier:       2.0,
		JitterFactor:     0.1,
		MaxSameErrorType: 5,
	}
}

// RetryableError is implemented by errors that know whether they are
// transient, such as llm.Error. It takes precedence over message matching.
type RetryableError interface {
	error
	IsRetryable() bool
}

// transientClasses groups the failure messages worth retrying. The class name
// is what MaxSameErrorType counts.
var transientClasses = []struct {
	class   string
	phrases []string
}{
	{"connection", []string{"connection refused", "connection reset", "broken pipe", "no such host", "network is unreachable", "temporary failure"}},
	{"timeout", []string{"timeout", "timed out"}},
	{"contention", []string{"database is locked", "deadlock", "too many connections", "too many clients", "the database system is starting up"}},
	{"rate_limit", []string{"429", "rate limit", "too many requests"}},
	{"server", []string{"500", "502", "503", "504", "service unavailable", "overloaded"}},
}

// transientClass returns the class of a transient message, or "".
func transientClass(err error) string {
	msg := strings.ToLower(err.Error())
	for _, tc := range transientClasses {
		for _, p := range tc.phrases {
			if strings.Contains(msg, p) {
				return tc.class
			}
		}
	}
	return ""
}

// IsRetryable reports whether err is transient. Context cancellation and
// expiry never are.
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var declared RetryableError
	if errors.As(err, &declared) {
		return declared.IsRetryable()
	}
	return transientClass(err) != ""
}

// DoIfRetryable calls fn until it succeeds, fails permanently, or the retries
// run out, and returns the last error. A nil cfg uses DefaultConfig.
func DoIfRetryable(ctx context.Context, cfg *Config, fn func() error) error {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	b := &backoff{cfg: cfg, delay: cfg.InitialDelay}

	var (
		lastClass string
		streak    int
	)
	for attempt := 1; ; attempt++ {
		err := fn()
		if err == nil || !IsRetryable(err) {
			return err
		}

		class := transientClass(err)
		if class == "" {
			class = "declared"
		}
		if class == lastClass {
			streak++
		} else {
			lastClass, streak = class, 1
		}
		if cfg.MaxSameErrorType > 0 && streak >= cfg.MaxSameErrorType {
			return fmt.Errorf("repeated error (%d times, type=%s): %w", streak, class, err)
		}
		if attempt > cfg.MaxRetries {
			return err
		}

		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, err, b.delay)
		}
		if werr := b.wait(ctx); werr != nil {
			return werr
		}
	}
}

// DoWithResult is DoIfRetryable for functions that return a value.
func DoWithResult[T any](ctx context.Context, cfg *Config, fn func() (T, error)) (T, error) {
	var result T
	err := DoIfRetryable(ctx, cfg, func() error {
		var err error
		result, err = fn()
		return err
	})
	return result, err
}

// backoff tracks the delay of one retry loop.
type backoff struct {
	cfg   *Config
	delay time.Duration
}

// wait sleeps for the jittered current delay, then grows it up to MaxDelay.
func (b *backoff) wait(ctx context.Context) error {
	d := b.delay
	if j := b.cfg.JitterFactor; j > 0 {
		d += time.Duration(float64(d) * j * (rand.Float64()*2 - 1))
	}

	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
	}

	b.delay = time.Duration(float64(b.delay) * b.cfg.Multiplier)
	if b.cfg.MaxDelay > 0 && b.delay > b.cfg.MaxDelay {
		b.delay = b.cfg.MaxDelay
	}
	return nil
}
