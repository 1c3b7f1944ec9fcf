package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-dq/pkg/logging"
)

// maxLoggedBody caps how much of a JSON-RPC body is buffered for logging.
const maxLoggedBody = 1 << 20

// MCPRequestLogger returns middleware that logs one entry per MCP JSON-RPC
// call with the method, tool, connection and outcome. Tool results flagged
// isError and JSON-RPC errors both count as failures.
// Pass nil logger to disable logging.
func MCPRequestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if logger == nil {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			bodyBytes, err := io.ReadAll(io.LimitReader(r.Body, maxLoggedBody))
			if err != nil {
				logger.Error("Failed to read MCP request body", zap.Error(err))
				http.Error(w, "failed to read request body", http.StatusBadRequest)
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(bodyBytes))

			var rpcReq jsonRPCRequest
			_ = json.Unmarshal(bodyBytes, &rpcReq)

			recorder := &mcpResponseRecorder{ResponseWriter: w}
			start := time.Now()
			next.ServeHTTP(recorder, r)

			fields := []zap.Field{
				zap.String("method", rpcReq.Method),
				zap.Duration("duration", time.Since(start)),
			}
			if rpcReq.Params.Name != "" {
				fields = append(fields, zap.String("tool", rpcReq.Params.Name))
			}
			if id, ok := rpcReq.Params.Arguments["connection_id"].(string); ok {
				fields = append(fields, zap.String("connection_id", id))
			}

			var rpcResp jsonRPCResponse
			if err := json.Unmarshal(recorder.body.Bytes(), &rpcResp); err != nil {
				// Streamed (SSE) responses are not JSON; log what we know.
				logger.Debug("MCP call", fields...)
				return
			}

			switch {
			case rpcResp.Error != nil:
				logger.Warn("MCP call failed", append(fields,
					zap.Int("error_code", rpcResp.Error.Code),
					zap.String("error", logging.SanitizeMessage(rpcResp.Error.Message)),
				)...)
			case rpcResp.Result.IsError:
				logger.Info("MCP tool returned error", fields...)
			default:
				logger.Debug("MCP call", fields...)
			}
		})
	}
}

type jsonRPCRequest struct {
	Method string `json:"method"`
	Params struct {
		Name      string         `json:"name"`
		Arguments map[string]any `json:"arguments"`
	} `json:"params"`
}

type jsonRPCResponse struct {
	Result struct {
		IsError bool `json:"isError"`
	} `json:"result"`
	Error *jsonRPCError `json:"error"`
}

type jsonRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// mcpResponseRecorder tees the response body into a bounded buffer.
type mcpResponseRecorder struct {
	http.ResponseWriter
	body bytes.Buffer
}

func (r *mcpResponseRecorder) Write(b []byte) (int, error) {
	if room := maxLoggedBody - r.body.Len(); room > 0 {
		r.body.Write(b[:min(len(b), room)])
	}
	return r.ResponseWriter.Write(b)
}

func (r *mcpResponseRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
