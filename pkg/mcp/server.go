// Package mcp exposes the question pipeline to MCP clients over streamable HTTP.
package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/ekaya-inc/sensorql/pkg/catalog"
	"github.com/ekaya-inc/sensorql/pkg/mcp/tools"
	"github.com/ekaya-inc/sensorql/pkg/services"
)

const instructions = "Answer questions about IoT sensor data: readings, devices, locations, thresholds, calculated logs and alerts. " +
	"Call describe_sensor_schema to see what can be asked, then query_sensor_data with a plain-English question."

// Server is an MCPServer with tool call tracking.
type Server struct {
	mcp     *server.MCPServer
	tracker *toolTracker
	logger  *zap.Logger
}

// NewServer creates an MCP server with no tools. Panics in tool handlers are
// recovered and reported to the client as errors.
func NewServer(name, version string, logger *zap.Logger) *Server {
	logger = logger.Named("mcp")
	tracker := newToolTracker(logger)

	return &Server{
		mcp: server.NewMCPServer(name, version,
			server.WithToolCapabilities(false),
			server.WithRecovery(),
			server.WithHooks(tracker.hooks()),
			server.WithInstructions(instructions),
		),
		tracker: tracker,
		logger:  logger,
	}
}

// NewSensorServer creates a server exposing health, describe_sensor_schema and
// query_sensor_data.
func NewSensorServer(version string, queries services.QueryService, health services.HealthService, cat *catalog.Catalog, logger *zap.Logger) *Server {
	s := NewServer("sensorql", version, logger)
	tools.RegisterHealthTool(s.mcp, health)
	tools.RegisterSchemaTool(s.mcp, cat)
	tools.RegisterQueryTool(s.mcp, queries, s.logger)
	return s
}

// MCP returns the underlying MCPServer.
func (s *Server) MCP() *server.MCPServer {
	return s.mcp
}

// RegisterTool adds a tool to the server.
func (s *Server) RegisterTool(tool mcp.Tool, handler server.ToolHandlerFunc) {
	s.mcp.AddTool(tool, handler)
}

// ToolStats returns call counters per tool name.
func (s *Server) ToolStats() map[string]ToolStats {
	return s.tracker.snapshot()
}

// NewStreamableHTTPServer wraps the server in a stateless HTTP transport.
// Routing to /mcp is left to the caller's mux.
func (s *Server) NewStreamableHTTPServer() *server.StreamableHTTPServer {
	return server.NewStreamableHTTPServer(s.mcp, server.WithStateLess(true))
}
