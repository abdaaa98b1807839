package tools

import (
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/ekaya-inc/sensorql/pkg/apperrors"
	"github.com/ekaya-inc/sensorql/pkg/models"
)

// ErrorResponse is the body of a failed tool call. Failures are tool results,
// not protocol errors, so the client model can read them and rephrase.
type ErrorResponse struct {
	Error   bool   `json:"error"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Hint    string `json:"hint,omitempty"`
	Details any    `json:"details,omitempty"`
}

// hints tell the client model what to change before asking again.
var hints = map[apperrors.Kind]string{
	apperrors.KindAmbiguousIntent: "Name what to look at, e.g. readings, alerts, devices, logs, thresholds or locations. " +
		"Call describe_sensor_schema for the full vocabulary.",
	apperrors.KindUnsupportedJoin: "Ask about one table at a time, or filter only by tables directly related to it.",
	apperrors.KindTimeout:         "Narrow the question with a time range such as 'yesterday' or 'past 3 days'.",
}

// NewErrorResult creates a tool result containing a structured error.
func NewErrorResult(code, message string) *mcp.CallToolResult {
	return newErrorResult(ErrorResponse{Code: code, Message: message})
}

// NewQueryErrorResult reports a failed question. The envelope is attached so
// the generated SQL and warnings remain visible.
func NewQueryErrorResult(env *models.ResultEnvelope) *mcp.CallToolResult {
	return newErrorResult(ErrorResponse{
		Code:    env.ErrorKind,
		Message: env.Error,
		Hint:    hints[apperrors.Kind(env.ErrorKind)],
		Details: env,
	})
}

func newErrorResult(resp ErrorResponse) *mcp.CallToolResult {
	resp.Error = true
	body, _ := json.Marshal(resp)
	result := mcp.NewToolResultText(string(body))
	result.IsError = true
	return result
}
