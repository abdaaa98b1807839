package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/sensorql/pkg/services"
)

type fakeBackend struct {
	err error
}

func (f fakeBackend) TestConnection(context.Context) error { return f.err }

func TestHealthHandler_Health(t *testing.T) {
	tests := []struct {
		name          string
		backend       services.ConnectionTester
		wantCode      int
		wantStatus    string
		wantBackendOK bool
	}{
		{name: "no backend check", wantCode: http.StatusOK, wantStatus: "ok"},
		{name: "backend reachable", backend: fakeBackend{}, wantCode: http.StatusOK, wantStatus: "ok", wantBackendOK: true},
		{
			name:       "backend down",
			backend:    fakeBackend{err: errors.New("dial tcp 10.0.0.5:5432: connection refused")},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: "degraded",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			health := services.NewHealthService(services.HealthInfo{Version: "test-version", BackendType: "sqlite", Tables: 6}, tt.backend, zap.NewNop())
			h := NewHealthHandler(health, "test-version", "test", zap.NewNop())
			rec := httptest.NewRecorder()

			h.Health(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

			assert.Equal(t, tt.wantCode, rec.Code)
			var resp services.HealthReport
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
			assert.Equal(t, tt.wantStatus, resp.Status)
			assert.Equal(t, 6, resp.Tables)
			if tt.backend == nil {
				assert.Nil(t, resp.Backend)
				return
			}
			require.NotNil(t, resp.Backend)
			assert.Equal(t, tt.wantBackendOK, resp.Backend.Status == "ok")
			assert.NotContains(t, resp.Backend.Error, "10.0.0.5")
		})
	}
}

func TestHealthHandler_Ping(t *testing.T) {
	backend := &countingTester{}
	health := services.NewHealthService(services.HealthInfo{}, backend, zap.NewNop())
	mux := http.NewServeMux()
	NewHealthHandler(health, "test-version", "test", zap.NewNop()).RegisterRoutes(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp PingResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "test-version", resp.Version)
	assert.Equal(t, "sensorql", resp.Service)
	assert.Equal(t, "test", resp.Env)
	assert.NotEmpty(t, resp.GoVersion)
	assert.Zero(t, backend.calls, "ping must not probe the backend")
}

type countingTester struct{ calls int }

func (c *countingTester) TestConnection(context.Context) error {
	c.calls++
	return nil
}
