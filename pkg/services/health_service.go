package services

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/ekaya-inc/sensorql/pkg/logging"
)

const (
	healthProbeTimeout = 5 * time.Second
	healthCacheTTL     = 2 * time.Second
)

// ConnectionTester is the part of a datasource executor a health probe needs.
type ConnectionTester interface {
	TestConnection(ctx context.Context) error
}

// BackendHealth is the outcome of one connectivity probe.
type BackendHealth struct {
	Type      string `json:"type"`
	Status    string `json:"status"`
	LatencyMs int64  `json:"latency_ms"`
	Error     string `json:"error,omitempty"`
}

// HealthReport summarizes what the server can currently answer.
type HealthReport struct {
	Status    string         `json:"status"`
	Version   string         `json:"version"`
	Tables    int            `json:"tables"`
	Cache     string         `json:"cache,omitempty"`
	Fallback  string         `json:"fallback,omitempty"`
	Backend   *BackendHealth `json:"backend,omitempty"`
	CheckedAt time.Time      `json:"checked_at"`
}

// Healthy reports whether every probed dependency answered.
func (r *HealthReport) Healthy() bool {
	return r.Status == "ok"
}

// HealthInfo is the static part of a report.
type HealthInfo struct {
	Version     string
	BackendType string
	Tables      int
	Cache       string
	Fallback    string
}

// HealthService probes the query backend. Concurrent checks share one probe
// and a result is reused for a short while so health polling does not load
// the backend.
type HealthService interface {
	Check(ctx context.Context) *HealthReport
}

type healthService struct {
	info    HealthInfo
	backend ConnectionTester
	flights singleflight.Group
	now     func() time.Time
	logger  *zap.Logger

	mu   sync.Mutex
	last *HealthReport
}

var _ HealthService = (*healthService)(nil)

// NewHealthService creates a HealthService. backend may be nil, in which case
// reports cover liveness only.
func NewHealthService(info HealthInfo, backend ConnectionTester, logger *zap.Logger) HealthService {
	return &healthService{
		info:    info,
		backend: backend,
		now:     time.Now,
		logger:  logger.Named("health"),
	}
}

func (s *healthService) Check(ctx context.Context) *HealthReport {
	s.mu.Lock()
	last := s.last
	s.mu.Unlock()
	if last != nil && s.now().Sub(last.CheckedAt) < healthCacheTTL {
		return last
	}

	v, _, _ := s.flights.Do("probe", func() (any, error) {
		// The probe outlives a single caller's cancellation.
		report := s.probe(context.WithoutCancel(ctx))
		s.mu.Lock()
		s.last = report
		s.mu.Unlock()
		return report, nil
	})
	return v.(*HealthReport)
}

func (s *healthService) probe(ctx context.Context) *HealthReport {
	report := &HealthReport{
		Status:   "ok",
		Version:  s.info.Version,
		Tables:   s.info.Tables,
		Cache:    s.info.Cache,
		Fallback: s.info.Fallback,
	}
	if s.backend != nil {
		ctx, cancel := context.WithTimeout(ctx, healthProbeTimeout)
		defer cancel()

		started := s.now()
		err := s.backend.TestConnection(ctx)
		backend := &BackendHealth{
			Type:      s.info.BackendType,
			Status:    "ok",
			LatencyMs: s.now().Sub(started).Milliseconds(),
		}
		if err != nil {
			backend.Status = "unreachable"
			backend.Error = logging.SanitizeError(err)
			report.Status = "degraded"
			s.logger.Warn("Backend health probe failed",
				zap.String("backend", s.info.BackendType),
				zap.String("error", backend.Error))
		}
		report.Backend = backend
	}
	report.CheckedAt = s.now()
	return report
}
