package client

import (
	"fmt"

	json "github.com/goccy/go-json"

	"github.com/dan-strohschein/aql-driver/query"
	"github.com/dan-strohschein/aql-driver/transport"
)

// EnableDebugMode enables debug mode with verbose logging and stack traces.
func (c *Client) EnableDebugMode() {
	c.debugMode.Store(true)
	c.logger.Info("debug mode enabled")
}

// DisableDebugMode disables debug mode.
func (c *Client) DisableDebugMode() {
	c.debugMode.Store(false)
	c.logger.Info("debug mode disabled")
}

// IsDebugMode returns whether debug mode is currently enabled.
func (c *Client) IsDebugMode() bool {
	return c.debugMode.Load()
}

// GetDebugInfo returns a snapshot of client state for debugging.
func (c *Client) GetDebugInfo() map[string]interface{} {
	info := map[string]interface{}{
		"version":   Version,
		"closed":    c.IsClosed(),
		"debugMode": c.IsDebugMode(),
		"hooks":     c.GetHooks(),
	}

	metrics := c.transport.GetMetrics()
	transportInfo := map[string]interface{}{
		"healthy":             c.transport.IsHealthy(),
		"totalRequests":       metrics.TotalRequests,
		"totalErrors":         metrics.TotalErrors,
		"nonSuccessResponses": metrics.NonSuccessResponses,
		"averageLatency":      metrics.AverageLatency.String(),
		"bytesSent":           metrics.BytesSent,
		"bytesReceived":       metrics.BytesReceived,
	}
	if metrics.LastError != nil {
		transportInfo["lastError"] = metrics.LastError.Error()
		transportInfo["lastErrorTime"] = metrics.LastErrorTime.Format("2006-01-02T15:04:05.000Z07:00")
	}
	info["transport"] = transportInfo

	cacheStats := query.GetTemplateCacheStats()
	info["templateCache"] = map[string]interface{}{
		"hits":      cacheStats.Hits,
		"misses":    cacheStats.Misses,
		"evictions": cacheStats.Evictions,
		"size":      cacheStats.Size,
	}

	info["options"] = map[string]interface{}{
		"endpoint":          c.opts.Endpoint,
		"database":          c.opts.Database,
		"defaultTimeoutMs":  c.opts.DefaultTimeoutMs,
		"requestsPerSecond": c.opts.RequestsPerSecond,
		"serverSideBinding": c.opts.ServerSideBinding,
		"tlsEnabled":        c.opts.TLSEnabled || c.opts.TLSConfig != nil,
		"cursorMetrics":     c.metrics != nil,
	}

	return info
}

// DumpDebugInfoJSON returns debug info as formatted JSON string.
func (c *Client) DumpDebugInfoJSON() string {
	info := c.GetDebugInfo()
	bytes, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return fmt.Sprintf(`{"error": "failed to marshal debug info: %s"}`, err.Error())
	}
	return string(bytes)
}

// logRequestExecution logs a round trip with request and response bodies.
func (c *Client) logRequestExecution(hookCtx *HookContext, resp *transport.Response) {
	fields := []Field{
		String("operation", hookCtx.Operation),
		String("trace_id", hookCtx.TraceID),
		Int64("durationNs", hookCtx.Duration.Nanoseconds()),
	}

	if body := hookCtx.Request.Body; len(body) > 0 {
		fields = append(fields, String("requestBody", preview(body)))
	}

	if hookCtx.Error != nil {
		fields = append(fields, Error("error", hookCtx.Error))
	}

	if resp != nil {
		fields = append(fields, Int("status", resp.StatusCode))
		if len(resp.Body) > 1000 {
			fields = append(fields, String("responsePreview", preview(resp.Body)))
			fields = append(fields, Int("responseLength", len(resp.Body)))
		} else {
			fields = append(fields, String("response", string(resp.Body)))
		}
	}

	c.logger.Debug("request execution detail", fields...)
}
