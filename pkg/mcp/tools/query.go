package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/ekaya-inc/sensorql/pkg/models"
	"github.com/ekaya-inc/sensorql/pkg/services"
)

// RegisterQueryTool adds query_sensor_data, which answers one plain-English
// question and returns the result envelope as JSON.
func RegisterQueryTool(s *server.MCPServer, queries services.QueryService, logger *zap.Logger) {
	tool := mcp.NewTool(
		"query_sensor_data",
		mcp.WithDescription("Answers a plain-English question about IoT sensor data, for example "+
			"'show me all alerts from yesterday' or 'average humidity last month'. "+
			"Returns the rows, the SQL that produced them and any warnings."),
		mcp.WithString(
			"question",
			mcp.Required(),
			mcp.Description("The question to answer"),
		),
		mcp.WithNumber(
			"row_limit",
			mcp.Description("Optional - maximum rows for list questions (default 100)"),
		),
		mcp.WithBoolean(
			"json_output",
			mcp.Description("Optional - include the interpreted intent and bound parameters"),
		),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithIdempotentHintAnnotation(true),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		question, err := req.RequireString("question")
		if err != nil || strings.TrimSpace(question) == "" {
			return NewErrorResult("invalid_parameters", "question is required"), nil
		}
		var opts models.QueryOptions
		if v, ok := getOptionalFloat(req, "row_limit"); ok {
			if v < 0 || v != float64(int(v)) {
				return NewErrorResult("invalid_parameters", "row_limit must be a non-negative integer"), nil
			}
			opts.RowLimit = int(v)
		}
		opts.JSONOutput, _ = getOptionalBool(req, "json_output")

		env := queries.ProcessQuestion(ctx, strings.TrimSpace(question), opts)
		if !env.Success {
			logger.Debug("query_sensor_data failed",
				zap.String("request_id", env.RequestID),
				zap.String("error_kind", env.ErrorKind))
			return NewQueryErrorResult(env), nil
		}

		body, err := json.Marshal(env)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal query result: %w", err)
		}
		return mcp.NewToolResultText(string(body)), nil
	})
}

// getOptionalFloat extracts an optional number argument from the request.
func getOptionalFloat(req mcp.CallToolRequest, key string) (float64, bool) {
	args, ok := req.Params.Arguments.(map[string]any)
	if !ok {
		return 0, false
	}
	val, ok := args[key].(float64)
	return val, ok
}

// getOptionalBool extracts an optional boolean argument from the request.
func getOptionalBool(req mcp.CallToolRequest, key string) (bool, bool) {
	if args, ok := req.Params.Arguments.(map[string]any); ok {
		if val, ok := args[key].(bool); ok {
			return val, true
		}
	}
	return false, false
}
