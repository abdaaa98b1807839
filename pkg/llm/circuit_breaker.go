package llm

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrCircuitOpen is returned while a provider is considered down.
var ErrCircuitOpen = errors.New("circuit breaker open")

// CircuitState is the breaker's view of the provider.
type CircuitState int

const (
	CircuitClosed   CircuitState = iota // calls flow through
	CircuitOpen                         // calls fail fast
	CircuitHalfOpen                     // one probe call is in flight
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig sets when the breaker trips and when it probes again.
type CircuitBreakerConfig struct {
	Threshold  int           // consecutive failures that open the circuit
	ResetAfter time.Duration // how long an open circuit waits before probing
}

// DefaultCircuitBreakerConfig opens after 5 failures and probes after 30s.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{Threshold: 5, ResetAfter: 30 * time.Second}
}

// CircuitBreaker tracks consecutive provider failures. Wrap a client with
// Guard to make its calls fail fast while the provider is down.
type CircuitBreaker struct {
	cfg CircuitBreakerConfig
	now func() time.Time

	mu       sync.Mutex
	state    CircuitState
	failures int
	openedAt time.Time
}

// NewCircuitBreaker creates a closed breaker. A non-positive threshold uses the defaults.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.Threshold <= 0 {
		cfg = DefaultCircuitBreakerConfig()
	}
	return &CircuitBreaker{cfg: cfg, now: time.Now}
}

// Allow returns nil when a call may proceed. Once ResetAfter has passed on an
// open circuit exactly one caller is let through as a probe.
func (b *CircuitBreaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case CircuitOpen:
		waited := b.now().Sub(b.openedAt)
		if waited >= b.cfg.ResetAfter {
			b.state = CircuitHalfOpen
			return nil
		}
		return fmt.Errorf("%w: provider failed %d times in a row, retrying in %s",
			ErrCircuitOpen, b.failures, (b.cfg.ResetAfter - waited).Round(time.Second))
	case CircuitHalfOpen:
		return fmt.Errorf("%w: waiting for a probe call to finish", ErrCircuitOpen)
	default:
		return nil
	}
}

// Record updates the breaker with the outcome of an allowed call. A call the
// caller canceled says nothing about the provider and is ignored.
func (b *CircuitBreaker) Record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch {
	case err == nil:
		b.state, b.failures = CircuitClosed, 0
	case errors.Is(err, context.Canceled):
		if b.state == CircuitHalfOpen {
			b.state = CircuitOpen
		}
	default:
		b.failures++
		if b.state == CircuitHalfOpen || b.failures >= b.cfg.Threshold {
			b.state = CircuitOpen
			b.openedAt = b.now()
		}
	}
}

// State returns the current state.
func (b *CircuitBreaker) State() CircuitState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// ConsecutiveFailures returns failures since the last success.
func (b *CircuitBreaker) ConsecutiveFailures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}

// Guard returns client with every call gated by the breaker. Rejected calls
// return a non-retryable *Error wrapping ErrCircuitOpen.
func (b *CircuitBreaker) Guard(client LLMClient) LLMClient {
	return &guardedClient{LLMClient: client, breaker: b}
}

type guardedClient struct {
	LLMClient
	breaker *CircuitBreaker
}

func (g *guardedClient) GenerateResponse(ctx context.Context, prompt, systemMessage string, temperature float64) (*GenerateResponseResult, error) {
	if err := g.breaker.Allow(); err != nil {
		e := NewError(ErrorTypeEndpoint, "provider unavailable", err).at(g.GetModel(), g.GetEndpoint())
		e.Retryable = false
		return nil, e
	}
	result, err := g.LLMClient.GenerateResponse(ctx, prompt, systemMessage, temperature)
	g.breaker.Record(err)
	return result, err
}
