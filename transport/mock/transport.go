package mock

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	json "github.com/goccy/go-json"

	"github.com/dan-strohschein/aql-driver/protocol"
	"github.com/dan-strohschein/aql-driver/transport"
)

// MockTransport implements transport.Transport for testing. Responses are
// scripted per method and path and consumed in FIFO order.
type MockTransport struct {
	// Behavior configuration
	doErr   error
	healthy bool
	delay   time.Duration
	scripts map[string][]*transport.Response

	// Call tracking
	doCalls    atomic.Int32
	closeCalls atomic.Int32

	// Metrics
	metrics mockMetrics
	mu      sync.RWMutex
	closed  bool
	history []*transport.Request
}

type mockMetrics struct {
	totalRequests       atomic.Int64
	totalErrors         atomic.Int64
	nonSuccessResponses atomic.Int64
	bytesSent           atomic.Int64
	bytesReceived       atomic.Int64
}

// NewMockTransport creates a new mock transport
func NewMockTransport() *MockTransport {
	return &MockTransport{
		healthy: true,
		scripts: make(map[string][]*transport.Response),
		history: make([]*transport.Request, 0),
	}
}

func scriptKey(method, path string) string {
	return method + " " + path
}

// WithError configures the transport to fail every round trip
func (m *MockTransport) WithError(err error) *MockTransport {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.doErr = err
	return m
}

// WithHealthy configures the health status
func (m *MockTransport) WithHealthy(healthy bool) *MockTransport {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.healthy = healthy
	return m
}

// WithDelay adds a delay to every round trip
func (m *MockTransport) WithDelay(delay time.Duration) *MockTransport {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = delay
	return m
}

// Enqueue scripts a raw response for the next request to method and path
func (m *MockTransport) Enqueue(method, path string, status int, body []byte) *MockTransport {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := scriptKey(method, path)
	m.scripts[key] = append(m.scripts[key], &transport.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       body,
	})
	return m
}

// EnqueueJSON scripts a response whose body is v encoded as JSON
func (m *MockTransport) EnqueueJSON(method, path string, status int, v interface{}) *MockTransport {
	body, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("mock: cannot encode scripted body: %v", err))
	}
	return m.Enqueue(method, path, status, body)
}

// EnqueueError scripts a server error response
func (m *MockTransport) EnqueueError(method, path string, status, errorNum int, message string) *MockTransport {
	return m.EnqueueJSON(method, path, status, protocol.ErrorResponse{
		Error:        true,
		Code:         status,
		ErrorNum:     errorNum,
		ErrorMessage: message,
	})
}

// Pending returns the number of scripted responses not yet consumed
func (m *MockTransport) Pending() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, queue := range m.scripts {
		n += len(queue)
	}
	return n
}

// Do implements transport.Transport
func (m *MockTransport) Do(ctx context.Context, req *transport.Request) (*transport.Response, error) {
	m.doCalls.Add(1)
	m.metrics.totalRequests.Add(1)

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, protocol.ConnectionError("transport is closed", nil)
	}

	delay := m.delay
	doErr := m.doErr
	m.history = append(m.history, req)
	m.mu.Unlock()

	m.metrics.bytesSent.Add(int64(len(req.Body)))

	if delay > 0 {
		select {
		case <-ctx.Done():
			m.metrics.totalErrors.Add(1)
			return nil, protocol.TimeoutError("request cancelled", ctx.Err())
		case <-time.After(delay):
		}
	}

	if doErr != nil {
		m.metrics.totalErrors.Add(1)
		return nil, doErr
	}

	m.mu.Lock()
	key := scriptKey(req.Method, req.Path)
	queue := m.scripts[key]
	var resp *transport.Response
	if len(queue) > 0 {
		resp = queue[0]
		m.scripts[key] = queue[1:]
	}
	m.mu.Unlock()

	if resp == nil {
		body, _ := json.Marshal(protocol.ErrorResponse{
			Error:        true,
			Code:         http.StatusNotImplemented,
			ErrorMessage: fmt.Sprintf("mock: no response scripted for %s", key),
		})
		resp = &transport.Response{StatusCode: http.StatusNotImplemented, Body: body}
	}

	if !resp.IsSuccess() {
		m.metrics.nonSuccessResponses.Add(1)
	}
	m.metrics.bytesReceived.Add(int64(len(resp.Body)))
	return resp, nil
}

// Close implements transport.Transport
func (m *MockTransport) Close() error {
	m.closeCalls.Add(1)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// IsHealthy implements transport.Transport
func (m *MockTransport) IsHealthy() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.healthy
}

// GetMetrics implements transport.Transport
func (m *MockTransport) GetMetrics() transport.TransportMetrics {
	return transport.TransportMetrics{
		TotalRequests:       m.metrics.totalRequests.Load(),
		TotalErrors:         m.metrics.totalErrors.Load(),
		NonSuccessResponses: m.metrics.nonSuccessResponses.Load(),
		BytesSent:           m.metrics.bytesSent.Load(),
		BytesReceived:       m.metrics.bytesReceived.Load(),
	}
}

// GetCallCount returns the number of times Do was called
func (m *MockTransport) GetCallCount() int {
	return int(m.doCalls.Load())
}

// GetCloseCallCount returns the number of times Close was called
func (m *MockTransport) GetCloseCallCount() int {
	return int(m.closeCalls.Load())
}

// GetRequestHistory returns every request seen, oldest first
func (m *MockTransport) GetRequestHistory() []*transport.Request {
	m.mu.RLock()
	defer m.mu.RUnlock()

	// Return a copy to prevent external modifications
	history := make([]*transport.Request, len(m.history))
	copy(history, m.history)
	return history
}

// CallsTo returns the number of requests seen for method and path
func (m *MockTransport) CallsTo(method, path string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, req := range m.history {
		if req.Method == method && req.Path == path {
			n++
		}
	}
	return n
}

// Reset clears all state, scripts and call counts
func (m *MockTransport) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.doErr = nil
	m.healthy = true
	m.delay = 0
	m.closed = false
	m.scripts = make(map[string][]*transport.Response)

	m.doCalls.Store(0)
	m.closeCalls.Store(0)

	m.metrics.totalRequests.Store(0)
	m.metrics.totalErrors.Store(0)
	m.metrics.nonSuccessResponses.Store(0)
	m.metrics.bytesSent.Store(0)
	m.metrics.bytesReceived.Store(0)

	m.history = make([]*transport.Request, 0)
}

// IsClosed returns whether the transport has been closed
func (m *MockTransport) IsClosed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closed
}
