package llm

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock is advanced by hand.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newTestBreaker(threshold int) (*CircuitBreaker, *fakeClock) {
	clock := &fakeClock{t: time.Date(2024, 3, 14, 12, 0, 0, 0, time.UTC)}
	b := NewCircuitBreaker(CircuitBreakerConfig{Threshold: threshold, ResetAfter: time.Minute})
	b.now = clock.now
	return b, clock
}

var errProvider = errors.New("503 service unavailable")

func TestCircuitBreaker_TripsAfterThreshold(t *testing.T) {
	b, _ := newTestBreaker(3)
	require.NoError(t, b.Allow())

	b.Record(errProvider)
	b.Record(errProvider)
	assert.Equal(t, CircuitClosed, b.State(), "below threshold")

	b.Record(errProvider)
	assert.Equal(t, CircuitOpen, b.State())
	assert.Equal(t, 3, b.ConsecutiveFailures())

	err := b.Allow()
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Contains(t, err.Error(), "failed 3 times")
	assert.Contains(t, err.Error(), "retrying in 1m0s")
}

func TestCircuitBreaker_SuccessResetsFailures(t *testing.T) {
	b, _ := newTestBreaker(2)
	b.Record(errProvider)
	b.Record(nil)
	b.Record(errProvider)

	assert.Equal(t, CircuitClosed, b.State())
	assert.Equal(t, 1, b.ConsecutiveFailures())
}

func TestCircuitBreaker_CanceledCallsDoNotCount(t *testing.T) {
	b, _ := newTestBreaker(1)
	b.Record(context.Canceled)
	b.Record(ClassifyError(context.Canceled))
	assert.Equal(t, CircuitClosed, b.State())
	assert.Zero(t, b.ConsecutiveFailures())

	b.Record(context.DeadlineExceeded)
	assert.Equal(t, CircuitOpen, b.State(), "a provider timeout counts")
}

func TestCircuitBreaker_HalfOpen(t *testing.T) {
	newOpen := func(t *testing.T) (*CircuitBreaker, *fakeClock) {
		b, clock := newTestBreaker(1)
		b.Record(errProvider)
		require.Equal(t, CircuitOpen, b.State())
		clock.advance(time.Minute)
		return b, clock
	}

	t.Run("single probe", func(t *testing.T) {
		b, _ := newOpen(t)
		require.NoError(t, b.Allow())
		assert.Equal(t, CircuitHalfOpen, b.State())
		assert.ErrorIs(t, b.Allow(), ErrCircuitOpen)
	})

	t.Run("probe success closes", func(t *testing.T) {
		b, _ := newOpen(t)
		require.NoError(t, b.Allow())
		b.Record(nil)
		assert.Equal(t, CircuitClosed, b.State())
		assert.Zero(t, b.ConsecutiveFailures())
	})

	t.Run("probe failure reopens", func(t *testing.T) {
		b, clock := newOpen(t)
		require.NoError(t, b.Allow())
		b.Record(errProvider)
		assert.Equal(t, CircuitOpen, b.State())

		assert.ErrorIs(t, b.Allow(), ErrCircuitOpen)
		clock.advance(time.Minute)
		assert.NoError(t, b.Allow())
	})

	t.Run("canceled probe may be retried", func(t *testing.T) {
		b, _ := newOpen(t)
		require.NoError(t, b.Allow())
		b.Record(context.Canceled)
		assert.NoError(t, b.Allow())
	})
}

func TestCircuitBreaker_Guard(t *testing.T) {
	b, _ := newTestBreaker(2)
	mock := NewMockLLMClient()
	mock.GenerateResponseFunc = func(context.Context, string, string, float64) (*GenerateResponseResult, error) {
		return nil, errProvider
	}
	client := b.Guard(mock)
	assert.Equal(t, "mock-model", client.GetModel())

	for i := 0; i < 2; i++ {
		_, err := client.GenerateResponse(context.Background(), "q", "s", 0)
		require.ErrorIs(t, err, errProvider)
	}

	_, err := client.GenerateResponse(context.Background(), "q", "s", 0)
	require.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, IsRetryable(err))
	assert.Equal(t, 2, mock.GenerateResponseCalls())
}

func TestCircuitState_String(t *testing.T) {
	assert.Equal(t, "closed", CircuitClosed.String())
	assert.Equal(t, "open", CircuitOpen.String())
	assert.Equal(t, "half-open", CircuitHalfOpen.String())
	assert.Equal(t, "unknown", CircuitState(99).String())
}

func TestCircuitBreaker_ConcurrentAccess(t *testing.T) {
	b := NewCircuitBreaker(CircuitBreakerConfig{Threshold: 1000, ResetAfter: time.Minute})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = b.Allow()
			if i%2 == 0 {
				b.Record(errProvider)
			} else {
				_ = b.State()
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 25, b.ConsecutiveFailures())
}
