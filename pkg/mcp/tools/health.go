package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/ekaya-inc/sensorql/pkg/services"
)

// RegisterHealthTool adds the health tool. A degraded backend is reported in
// the payload, not as a tool error, so clients can still read the details.
func RegisterHealthTool(s *server.MCPServer, health services.HealthService) {
	tool := mcp.NewTool(
		"health",
		mcp.WithDescription("Reports server version, catalog size and whether the sensor database is reachable"),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithIdempotentHintAnnotation(true),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		body, err := json.Marshal(health.Check(ctx))
		if err != nil {
			return nil, fmt.Errorf("failed to marshal health report: %w", err)
		}
		return mcp.NewToolResultText(string(body)), nil
	})
}
