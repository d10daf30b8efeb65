package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/dan-strohschein/aql-driver/client"
	"github.com/dan-strohschein/aql-driver/cursor"
)

// NewTestClient creates a client talking to srv. It logs through t and is
// closed when t finishes. mutate may adjust the options before creation.
//
// Example:
//
//	srv := testutil.NewServer(t)
//	c := testutil.NewTestClient(t, srv, nil)
func NewTestClient(t testing.TB, srv *Server, mutate func(*client.ClientOptions)) *client.Client {
	t.Helper()

	opts := client.DefaultOptions()
	opts.Endpoint = srv.URL()
	opts.Logger = client.NewZapLogger(zaptest.NewLogger(t))
	opts.DisableTracing = true
	opts.DefaultTimeoutMs = 5000
	if mutate != nil {
		mutate(&opts)
	}

	c, err := client.NewClient(&opts)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := c.Close(); err != nil {
			t.Logf("warning: failed to close client: %v", err)
		}
	})
	return c
}

// WithTimeout returns a context that is cancelled when t finishes or after
// timeout (default 5s).
func WithTimeout(t testing.TB, timeout ...time.Duration) (context.Context, context.CancelFunc) {
	t.Helper()
	d := 5 * time.Second
	if len(timeout) > 0 {
		d = timeout[0]
	}
	ctx, cancel := context.WithTimeout(context.Background(), d)
	t.Cleanup(cancel)
	return ctx, cancel
}

// Drain reads every remaining row of cur and fails t on error.
func Drain[T any](t testing.TB, ctx context.Context, cur *cursor.Cursor[T]) []T {
	t.Helper()
	rows, err := cur.All(ctx)
	require.NoError(t, err)
	return rows
}

// DrainN reads at most n rows of cur and fails t on error.
func DrainN[T any](t testing.TB, ctx context.Context, cur *cursor.Cursor[T], n int) []T {
	t.Helper()
	rows := make([]T, 0, n)
	for row, err := range cur.Rows(ctx) {
		require.NoError(t, err)
		rows = append(rows, row)
		if len(rows) == n {
			break
		}
	}
	return rows
}

// WaitFor polls condition until it returns true or timeout expires.
func WaitFor(t testing.TB, timeout, interval time.Duration, condition func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return true
		}
		time.Sleep(interval)
	}
	return condition()
}

// SkipIf skips the test when condition holds.
func SkipIf(t testing.TB, condition bool, reason string) {
	t.Helper()
	if condition {
		t.Skip(reason)
	}
}

// BenchmarkHelper bundles a fake server and a client for benchmarks.
type BenchmarkHelper struct {
	b      *testing.B
	server *Server
	client *client.Client
}

// NewBenchmarkHelper starts a fake server and a quiet client.
func NewBenchmarkHelper(b *testing.B, opts ...ServerOption) *BenchmarkHelper {
	b.Helper()
	srv := NewServer(b, opts...)
	c := NewTestClient(b, srv, func(o *client.ClientOptions) {
		o.Logger = client.NewNoopLogger()
	})
	return &BenchmarkHelper{b: b, server: srv, client: c}
}

// Client returns the client
func (h *BenchmarkHelper) Client() *client.Client {
	return h.client
}

// Server returns the fake server
func (h *BenchmarkHelper) Server() *Server {
	return h.server
}

// ResetTimer resets the benchmark timer and enables allocation reporting.
func (h *BenchmarkHelper) ResetTimer() {
	h.b.ReportAllocs()
	h.b.ResetTimer()
}
