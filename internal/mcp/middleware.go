package mcp

import (
	"context"
	"time"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

// ToolRecorder receives per-call tool metrics.
type ToolRecorder interface {
	RecordToolCall(tool string, failed bool, duration time.Duration)
}

// toolMetricsMiddleware records the outcome and latency of every tools/call.
func toolMetricsMiddleware(recorder ToolRecorder) sdkmcp.Middleware {
	return func(next sdkmcp.MethodHandler) sdkmcp.MethodHandler {
		return func(ctx context.Context, method string, req sdkmcp.Request) (sdkmcp.Result, error) {
			if method != "tools/call" {
				return next(ctx, method, req)
			}

			tool := "unknown"
			if params, ok := safeParams(req).(*sdkmcp.CallToolParamsRaw); ok && params != nil {
				tool = params.Name
			}

			start := time.Now()
			result, err := next(ctx, method, req)
			failed := err != nil
			if res, ok := result.(*sdkmcp.CallToolResult); ok && res != nil && res.IsError {
				failed = true
			}
			recorder.RecordToolCall(tool, failed, time.Since(start))
			return result, err
		}
	}
}
