package mcp

import (
	"context"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/ekaya-inc/sensorql/pkg/logging"
)

// ToolStats counts calls to one tool since the server started.
type ToolStats struct {
	Calls    int           `json:"calls"`
	Failures int           `json:"failures"`
	Total    time.Duration `json:"total"`
}

// toolTracker times tool calls through mcp-go hooks and keeps per-tool counters.
type toolTracker struct {
	logger *zap.Logger

	started sync.Map // request id -> time.Time

	mu    sync.Mutex
	stats map[string]*ToolStats
}

func newToolTracker(logger *zap.Logger) *toolTracker {
	return &toolTracker{logger: logger, stats: make(map[string]*ToolStats)}
}

func (t *toolTracker) hooks() *server.Hooks {
	hooks := &server.Hooks{}
	hooks.AddBeforeCallTool(t.before)
	hooks.AddAfterCallTool(t.after)
	hooks.AddOnError(t.onError)
	return hooks
}

func (t *toolTracker) before(_ context.Context, id any, _ *mcp.CallToolRequest) {
	t.started.Store(id, time.Now())
}

func (t *toolTracker) after(_ context.Context, id any, req *mcp.CallToolRequest, result *mcp.CallToolResult) {
	failed := result != nil && result.IsError
	elapsed := t.finish(id, req.Params.Name, failed)
	t.logger.Debug("Tool call finished",
		zap.String("tool", req.Params.Name),
		zap.Bool("is_error", failed),
		zap.Duration("elapsed", elapsed))
}

func (t *toolTracker) onError(_ context.Context, id any, method mcp.MCPMethod, message any, err error) {
	if method != mcp.MethodToolsCall {
		return
	}
	req, ok := message.(*mcp.CallToolRequest)
	if !ok {
		return
	}
	elapsed := t.finish(id, req.Params.Name, true)
	t.logger.Warn("Tool call failed",
		zap.String("tool", req.Params.Name),
		zap.Duration("elapsed", elapsed),
		zap.String("error", logging.SanitizeError(err)))
}

func (t *toolTracker) finish(id any, tool string, failed bool) time.Duration {
	var elapsed time.Duration
	if v, ok := t.started.LoadAndDelete(id); ok {
		elapsed = time.Since(v.(time.Time))
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.stats[tool]
	if !ok {
		s = &ToolStats{}
		t.stats[tool] = s
	}
	s.Calls++
	s.Total += elapsed
	if failed {
		s.Failures++
	}
	return elapsed
}

func (t *toolTracker) snapshot() map[string]ToolStats {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]ToolStats, len(t.stats))
	for name, s := range t.stats {
		out[name] = *s
	}
	return out
}
