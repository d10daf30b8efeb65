// Package httptransport implements transport.Transport over HTTP/1.1 with
// connection reuse, client-side rate limiting and OpenTelemetry spans.
package httptransport

import (
	"bytes"
	"context"
	"crypto/tls"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"

	"github.com/dan-strohschein/aql-driver/protocol"
	"github.com/dan-strohschein/aql-driver/transport"
)

// Options configures the HTTP transport
type Options struct {
	// Endpoint is the server base URL (scheme://host:port)
	Endpoint string

	// Database selects the database; empty uses the server default
	Database string

	// Basic authentication. Ignored when Token is set.
	Username string
	Password string

	// Token is sent as a bearer token
	Token string

	// Timeout bounds a single round trip
	Timeout time.Duration

	// TLSConfig is used for https endpoints
	TLSConfig *tls.Config

	// Idle connection reuse
	MaxIdleConns    int
	IdleConnTimeout time.Duration

	// RequestsPerSecond enables client-side rate limiting when > 0
	RequestsPerSecond float64
	Burst             int

	// DisableTracing skips the otelhttp round tripper
	DisableTracing bool

	// UserAgent overrides the default agent string
	UserAgent string
}

// Transport implements transport.Transport on net/http
type Transport struct {
	opts    Options
	prefix  string
	client  *http.Client
	limiter *rate.Limiter
	metrics transportMetrics
	healthy atomic.Bool
	closed  atomic.Bool
}

// transportMetrics tracks transport performance
type transportMetrics struct {
	totalRequests       atomic.Int64
	totalErrors         atomic.Int64
	nonSuccessResponses atomic.Int64
	bytesSent           atomic.Int64
	bytesReceived       atomic.Int64
	latencySum          atomic.Int64 // nanoseconds
	lastError           error
	lastErrorTime       time.Time
	mu                  sync.RWMutex
}

// New creates an HTTP transport
func New(opts Options) (*Transport, error) {
	if opts.Endpoint == "" {
		return nil, errors.New("endpoint is required")
	}
	if !strings.HasPrefix(opts.Endpoint, "http://") && !strings.HasPrefix(opts.Endpoint, "https://") {
		return nil, errors.Newf("endpoint %q must start with http:// or https://", opts.Endpoint)
	}
	opts.Endpoint = strings.TrimSuffix(opts.Endpoint, "/")
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.MaxIdleConns == 0 {
		opts.MaxIdleConns = 10
	}
	if opts.IdleConnTimeout == 0 {
		opts.IdleConnTimeout = 90 * time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "aql-driver-go"
	}

	base := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   opts.Timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSClientConfig:     opts.TLSConfig,
		MaxIdleConns:        opts.MaxIdleConns,
		MaxIdleConnsPerHost: opts.MaxIdleConns,
		IdleConnTimeout:     opts.IdleConnTimeout,
	}

	var rt http.RoundTripper = base
	if !opts.DisableTracing {
		rt = otelhttp.NewTransport(base)
	}

	t := &Transport{
		opts:   opts,
		prefix: protocol.DatabasePrefix(opts.Database),
		client: &http.Client{Transport: rt, Timeout: opts.Timeout},
	}
	if opts.RequestsPerSecond > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		t.limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	}
	t.healthy.Store(true)
	return t, nil
}

// Do implements transport.Transport
func (t *Transport) Do(ctx context.Context, req *transport.Request) (*transport.Response, error) {
	if t.closed.Load() {
		return nil, protocol.ConnectionError("transport is closed", nil)
	}

	start := time.Now()
	t.metrics.totalRequests.Add(1)

	if t.limiter != nil {
		if err := t.limiter.Wait(ctx); err != nil {
			terr := protocol.RateLimitedError(err)
			t.recordError(terr)
			return nil, terr
		}
	}

	httpReq, err := t.buildRequest(ctx, req)
	if err != nil {
		t.recordError(err)
		return nil, err
	}

	httpResp, err := t.client.Do(httpReq)
	if err != nil {
		terr := classifyError(ctx, err)
		t.recordError(terr)
		return nil, terr
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		terr := protocol.ConnectionError("failed to read response body", err)
		t.recordError(terr)
		return nil, terr
	}

	t.metrics.bytesSent.Add(int64(len(req.Body)))
	t.metrics.bytesReceived.Add(int64(len(body)))
	t.recordLatency(time.Since(start))
	t.healthy.Store(true)

	resp := &transport.Response{
		StatusCode: httpResp.StatusCode,
		Header:     httpResp.Header,
		Body:       body,
	}
	if !resp.IsSuccess() {
		t.metrics.nonSuccessResponses.Add(1)
	}
	if resp.StatusCode == http.StatusUnauthorized {
		return nil, protocol.AuthError("server rejected credentials", map[string]interface{}{
			"status": resp.StatusCode,
			"path":   req.Path,
		})
	}
	return resp, nil
}

// buildRequest turns a transport.Request into an *http.Request against the database prefix
func (t *Transport) buildRequest(ctx context.Context, req *transport.Request) (*http.Request, error) {
	target := t.opts.Endpoint + t.prefix + req.Path
	if len(req.Query) > 0 {
		target += "?" + req.Query.Encode()
	}

	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target, body)
	if err != nil {
		return nil, protocol.NewTransportError(protocol.ErrorCodeProtocolError, "invalid request", map[string]interface{}{
			"method": req.Method,
			"path":   req.Path,
		}, err)
	}

	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	if req.Body != nil && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", t.opts.UserAgent)

	switch {
	case t.opts.Token != "":
		httpReq.Header.Set("Authorization", "bearer "+t.opts.Token)
	case t.opts.Username != "":
		httpReq.SetBasicAuth(t.opts.Username, t.opts.Password)
	}
	return httpReq, nil
}

// classifyError maps a round-trip failure onto a TransportError
func classifyError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return protocol.TimeoutError("request cancelled", ctx.Err())
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return protocol.TimeoutError("request timed out", err)
	}
	return protocol.ConnectionError("request failed", err)
}

// Close implements transport.Transport
func (t *Transport) Close() error {
	if t.closed.Swap(true) {
		return nil
	}
	t.client.CloseIdleConnections()
	return nil
}

// IsHealthy implements transport.Transport
func (t *Transport) IsHealthy() bool {
	return !t.closed.Load() && t.healthy.Load()
}

// GetMetrics implements transport.Transport
func (t *Transport) GetMetrics() transport.TransportMetrics {
	t.metrics.mu.RLock()
	lastErr := t.metrics.lastError
	lastErrTime := t.metrics.lastErrorTime
	t.metrics.mu.RUnlock()

	totalReqs := t.metrics.totalRequests.Load()
	avgLatency := time.Duration(0)
	if totalReqs > 0 {
		avgLatency = time.Duration(t.metrics.latencySum.Load() / totalReqs)
	}

	return transport.TransportMetrics{
		TotalRequests:       totalReqs,
		TotalErrors:         t.metrics.totalErrors.Load(),
		NonSuccessResponses: t.metrics.nonSuccessResponses.Load(),
		AverageLatency:      avgLatency,
		LastError:           lastErr,
		LastErrorTime:       lastErrTime,
		BytesSent:           t.metrics.bytesSent.Load(),
		BytesReceived:       t.metrics.bytesReceived.Load(),
	}
}

// recordError records an error in metrics
func (t *Transport) recordError(err error) {
	t.healthy.Store(false)
	t.metrics.totalErrors.Add(1)
	t.metrics.mu.Lock()
	t.metrics.lastError = err
	t.metrics.lastErrorTime = time.Now()
	t.metrics.mu.Unlock()
}

// recordLatency records latency in metrics
func (t *Transport) recordLatency(latency time.Duration) {
	t.metrics.latencySum.Add(int64(latency))
}
