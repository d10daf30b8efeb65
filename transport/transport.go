// Package transport defines the transport layer abstraction for the query cursor API
package transport

import (
	"context"
	"net/http"
	"net/url"
	"time"
)

// Transport performs one request/response round trip against the server.
// Implementations add the database prefix and credentials; callers pass
// routes relative to the database.
type Transport interface {
	// Do sends the request and returns the raw response. Non-success HTTP
	// statuses are not errors at this layer.
	Do(ctx context.Context, req *Request) (*Response, error)

	// Close releases idle resources held by the transport
	Close() error

	// IsHealthy returns whether the last round trip succeeded
	IsHealthy() bool

	// GetMetrics returns transport performance metrics
	GetMetrics() TransportMetrics
}

// Request is a single API call.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Header http.Header
	Body   []byte
}

// Response is the raw server answer to a Request.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// IsSuccess reports a 2xx status.
func (r *Response) IsSuccess() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// TransportMetrics contains performance and health metrics
type TransportMetrics struct {
	// TotalRequests is the total number of requests sent
	TotalRequests int64

	// TotalErrors is the total number of round trips that failed before a response arrived
	TotalErrors int64

	// NonSuccessResponses counts responses with a status outside 2xx
	NonSuccessResponses int64

	// AverageLatency is the average round-trip latency
	AverageLatency time.Duration

	// LastError is the most recent error encountered
	LastError error

	// LastErrorTime is when the last error occurred
	LastErrorTime time.Time

	// BytesSent is the total bytes sent
	BytesSent int64

	// BytesReceived is the total bytes received
	BytesReceived int64
}
