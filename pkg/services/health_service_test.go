package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type probeCounter struct {
	calls atomic.Int32
	err   error
	block chan struct{}
}

func (p *probeCounter) TestConnection(ctx context.Context) error {
	p.calls.Add(1)
	if p.block != nil {
		<-p.block
	}
	return p.err
}

func newTestHealth(backend ConnectionTester, now *time.Time) *healthService {
	s := NewHealthService(HealthInfo{Version: "v1", BackendType: "sqlite", Tables: 6, Cache: "memory"}, backend, zap.NewNop()).(*healthService)
	s.now = func() time.Time { return *now }
	return s
}

func TestHealthService_LivenessOnly(t *testing.T) {
	now := time.Date(2024, 3, 14, 12, 0, 0, 0, time.UTC)
	report := newTestHealth(nil, &now).Check(context.Background())

	assert.True(t, report.Healthy())
	assert.Nil(t, report.Backend)
	assert.Equal(t, "v1", report.Version)
	assert.Equal(t, 6, report.Tables)
	assert.Equal(t, "memory", report.Cache)
	assert.Equal(t, now, report.CheckedAt)
}

func TestHealthService_BackendDown(t *testing.T) {
	now := time.Date(2024, 3, 14, 12, 0, 0, 0, time.UTC)
	backend := &probeCounter{err: errors.New("dial tcp 10.0.0.5:5432: connection refused")}
	report := newTestHealth(backend, &now).Check(context.Background())

	assert.False(t, report.Healthy())
	assert.Equal(t, "degraded", report.Status)
	require.NotNil(t, report.Backend)
	assert.Equal(t, "sqlite", report.Backend.Type)
	assert.Equal(t, "unreachable", report.Backend.Status)
	assert.Contains(t, report.Backend.Error, "connection refused")
	assert.NotContains(t, report.Backend.Error, "10.0.0.5")
}

func TestHealthService_ReusesRecentReport(t *testing.T) {
	now := time.Date(2024, 3, 14, 12, 0, 0, 0, time.UTC)
	backend := &probeCounter{}
	s := newTestHealth(backend, &now)

	first := s.Check(context.Background())
	now = now.Add(time.Second)
	assert.Same(t, first, s.Check(context.Background()))
	assert.EqualValues(t, 1, backend.calls.Load())

	now = now.Add(healthCacheTTL)
	assert.NotSame(t, first, s.Check(context.Background()))
	assert.EqualValues(t, 2, backend.calls.Load())
}

func TestHealthService_ConcurrentChecksShareProbe(t *testing.T) {
	backend := &probeCounter{block: make(chan struct{})}
	s := NewHealthService(HealthInfo{BackendType: "sqlite"}, backend, zap.NewNop())

	var wg sync.WaitGroup
	reports := make([]*HealthReport, 5)
	for i := range reports {
		wg.Add(1)
		go func() {
			defer wg.Done()
			reports[i] = s.Check(context.Background())
		}()
	}
	require.Eventually(t, func() bool { return backend.calls.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(backend.block)
	wg.Wait()

	assert.EqualValues(t, 1, backend.calls.Load())
	for _, r := range reports {
		assert.True(t, r.Healthy())
	}
}
