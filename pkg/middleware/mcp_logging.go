package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/sensorql/pkg/logging"
)

const maxLoggedArgument = 200

// rpcMessage is the part of a JSON-RPC request or response worth logging.
type rpcMessage struct {
	ID     json.RawMessage `json:"id"`
	Method string          `json:"method"`
	Params struct {
		Name      string         `json:"name"`
		Arguments map[string]any `json:"arguments"`
	} `json:"params"`
	Result struct {
		IsError bool `json:"isError"`
	} `json:"result"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// decodeRPC accepts a single JSON-RPC message or a batch.
func decodeRPC(body []byte) ([]rpcMessage, error) {
	body = bytes.TrimSpace(body)
	if len(body) > 0 && body[0] == '[' {
		var batch []rpcMessage
		err := json.Unmarshal(body, &batch)
		return batch, err
	}
	var msg rpcMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return nil, err
	}
	return []rpcMessage{msg}, nil
}

// MCPRequestLogger returns middleware that logs MCP JSON-RPC traffic: each
// request's method, tool and sanitized arguments, then the outcome of each
// response. JSON-RPC errors log at INFO, the rest at DEBUG. Only POST bodies
// are inspected.
// Pass nil logger to disable logging.
func MCPRequestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if logger == nil {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				next.ServeHTTP(w, r)
				return
			}

			body, err := io.ReadAll(r.Body)
			if err != nil {
				logger.Error("Failed to read MCP request body", zap.Error(err))
				http.Error(w, "failed to read request body", http.StatusBadRequest)
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))
			logger := logger
			if id := logging.RequestID(r.Context()); id != "" {
				logger = logger.With(zap.String("request_id", id))
			}

			requests, err := decodeRPC(body)
			if err != nil {
				// The MCP server rejects malformed bodies itself.
				logger.Debug("Failed to parse MCP request JSON", zap.Error(err))
			}
			tools := make(map[string]string, len(requests))
			for _, req := range requests {
				tools[string(req.ID)] = req.Params.Name
				logger.Debug("MCP request",
					zap.String("method", req.Method),
					zap.String("tool", req.Params.Name),
					zap.Any("arguments", logging.SanitizeFields(req.Params.Arguments, maxLoggedArgument)),
				)
			}

			recorder := &mcpResponseRecorder{ResponseWriter: w}
			start := time.Now()
			next.ServeHTTP(recorder, r)
			duration := time.Since(start)

			responses, err := decodeRPC(recorder.body.Bytes())
			if err != nil {
				logger.Debug("Failed to parse MCP response JSON", zap.Error(err))
				return
			}
			for _, resp := range responses {
				logResponse(logger, tools[string(resp.ID)], resp, duration)
			}
		})
	}
}

func logResponse(logger *zap.Logger, tool string, resp rpcMessage, duration time.Duration) {
	fields := []zap.Field{zap.String("tool", tool), zap.Duration("duration", duration)}
	switch {
	case resp.Error != nil:
		logger.Info("MCP response error", append(fields,
			zap.Int("error_code", resp.Error.Code),
			zap.String("error_message", resp.Error.Message))...)
	case resp.Result.IsError:
		logger.Debug("MCP tool reported error", fields...)
	default:
		logger.Debug("MCP response success", fields...)
	}
}

// mcpResponseRecorder copies the response body while passing it through.
type mcpResponseRecorder struct {
	http.ResponseWriter
	body bytes.Buffer
}

func (r *mcpResponseRecorder) Write(b []byte) (int, error) {
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}

func (r *mcpResponseRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
