package client

import (
	"context"
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ============================================================================
// LoggingHook - Logs request execution details
// ============================================================================

// LoggingHook logs request execution with configurable detail levels.
type LoggingHook struct {
	logger       Logger
	logRequests  bool // Log method and path before sending
	logBodies    bool // Log request bodies
	logDurations bool // Log execution times
}

// NewLoggingHook creates a new logging hook with the given logger.
func NewLoggingHook(logger Logger, logRequests, logBodies, logDurations bool) *LoggingHook {
	return &LoggingHook{
		logger:       logger,
		logRequests:  logRequests,
		logBodies:    logBodies,
		logDurations: logDurations,
	}
}

func (h *LoggingHook) Name() string {
	return "logging"
}

func (h *LoggingHook) Before(ctx context.Context, hookCtx *HookContext) error {
	if !h.logRequests {
		return nil
	}

	fields := []Field{
		String("method", hookCtx.Request.Method),
		String("path", hookCtx.Request.Path),
		String("operation", hookCtx.Operation),
		String("trace_id", hookCtx.TraceID),
	}
	if h.logBodies && len(hookCtx.Request.Body) > 0 {
		fields = append(fields, String("body", preview(hookCtx.Request.Body)))
	}
	h.logger.Debug("sending request", fields...)
	return nil
}

func (h *LoggingHook) After(ctx context.Context, hookCtx *HookContext) error {
	fields := []Field{
		String("operation", hookCtx.Operation),
		String("trace_id", hookCtx.TraceID),
		Int("status", hookCtx.StatusCode),
	}

	if h.logDurations {
		fields = append(fields, Duration("duration", hookCtx.Duration))
	}

	if hookCtx.Error != nil {
		fields = append(fields, Error("error", hookCtx.Error))
		h.logger.Error("request failed", fields...)
	} else {
		h.logger.Debug("request completed", fields...)
	}

	return nil
}

// ============================================================================
// MetricsHook - Collects request metrics
// ============================================================================

// MetricsHook counts requests and observes their latency per operation.
type MetricsHook struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewMetricsHook creates a metrics hook and registers its collectors with reg.
// A nil reg leaves them unregistered.
func NewMetricsHook(reg prometheus.Registerer) (*MetricsHook, error) {
	h := &MetricsHook{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "aql",
			Subsystem: "client",
			Name:      "requests_total",
			Help:      "number of API requests by operation and HTTP status.",
		}, []string{"operation", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "aql",
			Subsystem: "client",
			Name:      "request_duration_seconds",
			Help:      "API request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
	}

	if reg == nil {
		return h, nil
	}
	for _, c := range h.Collectors() {
		if err := reg.Register(c); err != nil {
			return nil, errors.Wrap(err, "unable to register client metric")
		}
	}
	return h, nil
}

// Collectors returns every collector for custom registration
func (h *MetricsHook) Collectors() []prometheus.Collector {
	return []prometheus.Collector{h.requests, h.duration}
}

func (h *MetricsHook) Name() string {
	return "metrics"
}

func (h *MetricsHook) Before(ctx context.Context, hookCtx *HookContext) error {
	return nil
}

func (h *MetricsHook) After(ctx context.Context, hookCtx *HookContext) error {
	status := "error"
	if hookCtx.StatusCode != 0 {
		status = strconv.Itoa(hookCtx.StatusCode)
	}
	h.requests.WithLabelValues(hookCtx.Operation, status).Inc()
	h.duration.WithLabelValues(hookCtx.Operation).Observe(hookCtx.Duration.Seconds())
	return nil
}

// ============================================================================
// TracingHook - Distributed tracing support
// ============================================================================

const traceSpanKey = "trace_span"

// TracingHook records one OpenTelemetry span per request.
type TracingHook struct {
	tracer trace.Tracer
}

// NewTracingHook creates a tracing hook. A nil provider uses the global one.
func NewTracingHook(serviceName string, provider trace.TracerProvider) *TracingHook {
	if provider == nil {
		provider = otel.GetTracerProvider()
	}
	return &TracingHook{
		tracer: provider.Tracer(serviceName),
	}
}

func (h *TracingHook) Name() string {
	return "tracing"
}

func (h *TracingHook) Before(ctx context.Context, hookCtx *HookContext) error {
	_, span := h.tracer.Start(ctx, hookCtx.Operation,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", "aql"),
			attribute.String("db.operation", hookCtx.Operation),
			attribute.String("http.method", hookCtx.Request.Method),
			attribute.String("aql.trace_id", hookCtx.TraceID),
		))
	hookCtx.Metadata[traceSpanKey] = span
	return nil
}

func (h *TracingHook) After(ctx context.Context, hookCtx *HookContext) error {
	span, ok := hookCtx.Metadata[traceSpanKey].(trace.Span)
	if !ok {
		return nil
	}

	span.SetAttributes(attribute.Int("http.status_code", hookCtx.StatusCode))
	if hookCtx.Error != nil {
		span.RecordError(hookCtx.Error)
		span.SetStatus(codes.Error, hookCtx.Error.Error())
	}
	span.End()
	return nil
}

// preview truncates long bodies for logging.
func preview(body []byte) string {
	const maxPreview = 1000
	if len(body) > maxPreview {
		return string(body[:maxPreview]) + "..."
	}
	return string(body)
}
