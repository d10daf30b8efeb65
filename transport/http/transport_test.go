package httptransport

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dan-strohschein/aql-driver/protocol"
	"github.com/dan-strohschein/aql-driver/transport"
)

func TestNew_Validation(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)

	_, err = New(Options{Endpoint: "localhost:8529"})
	assert.Error(t, err)

	tr, err := New(Options{Endpoint: "http://localhost:8529/"})
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8529", tr.opts.Endpoint)
	assert.Equal(t, 30*time.Second, tr.opts.Timeout)
	assert.True(t, tr.IsHealthy())
}

func TestTransport_DoRoutesThroughDatabasePrefix(t *testing.T) {
	var gotPath, gotQuery, gotBody, gotAuth, gotType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		gotAuth = r.Header.Get("Authorization")
		gotType = r.Header.Get("Content-Type")
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"result":[],"hasMore":false}`))
	}))
	defer srv.Close()

	tr, err := New(Options{Endpoint: srv.URL, Database: "shop", Username: "root", Password: "pw", DisableTracing: true})
	require.NoError(t, err)
	defer tr.Close()

	resp, err := tr.Do(context.Background(), &transport.Request{
		Method: http.MethodPost,
		Path:   protocol.PathExport,
		Query:  url.Values{"collection": []string{"users"}},
		Body:   []byte(`{"flush":true}`),
	})
	require.NoError(t, err)

	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "/_db/shop/_api/export", gotPath)
	assert.Equal(t, "collection=users", gotQuery)
	assert.Equal(t, `{"flush":true}`, gotBody)
	assert.Equal(t, "application/json", gotType)
	assert.Contains(t, gotAuth, "Basic ")

	m := tr.GetMetrics()
	assert.Equal(t, int64(1), m.TotalRequests)
	assert.Equal(t, int64(0), m.TotalErrors)
	assert.Equal(t, int64(len(`{"flush":true}`)), m.BytesSent)
}

func TestTransport_BearerToken(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	tr, err := New(Options{Endpoint: srv.URL, Token: "abc", Username: "ignored"})
	require.NoError(t, err)
	defer tr.Close()

	_, err = tr.Do(context.Background(), &transport.Request{Method: http.MethodGet, Path: protocol.PathVersion})
	require.NoError(t, err)
	assert.Equal(t, "bearer abc", gotAuth)
}

func TestTransport_NonSuccessIsNotAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":true,"code":404,"errorNum":1600,"errorMessage":"cursor not found"}`))
	}))
	defer srv.Close()

	tr, err := New(Options{Endpoint: srv.URL, DisableTracing: true})
	require.NoError(t, err)
	defer tr.Close()

	resp, err := tr.Do(context.Background(), &transport.Request{Method: http.MethodPut, Path: "/_api/cursor/1"})
	require.NoError(t, err)
	assert.False(t, resp.IsSuccess())
	assert.Equal(t, int64(1), tr.GetMetrics().NonSuccessResponses)
}

func TestTransport_Unauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	tr, err := New(Options{Endpoint: srv.URL, DisableTracing: true})
	require.NoError(t, err)
	defer tr.Close()

	_, err = tr.Do(context.Background(), &transport.Request{Method: http.MethodGet, Path: protocol.PathVersion})
	var terr *protocol.TransportError
	require.True(t, errors.As(err, &terr))
	assert.Equal(t, protocol.ErrorCodeAuthFailed, terr.Code)
}

func TestTransport_ConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	endpoint := srv.URL
	srv.Close()

	tr, err := New(Options{Endpoint: endpoint, DisableTracing: true, Timeout: time.Second})
	require.NoError(t, err)
	defer tr.Close()

	_, err = tr.Do(context.Background(), &transport.Request{Method: http.MethodGet, Path: protocol.PathVersion})
	var terr *protocol.TransportError
	require.True(t, errors.As(err, &terr))
	assert.Equal(t, protocol.ErrorCodeConnectionRefused, terr.Code)
	assert.False(t, tr.IsHealthy())
	assert.Equal(t, int64(1), tr.GetMetrics().TotalErrors)
}

func TestTransport_CancelledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	tr, err := New(Options{Endpoint: srv.URL, DisableTracing: true})
	require.NoError(t, err)
	defer tr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = tr.Do(ctx, &transport.Request{Method: http.MethodGet, Path: protocol.PathVersion})
	var terr *protocol.TransportError
	require.True(t, errors.As(err, &terr))
	assert.Equal(t, protocol.ErrorCodeTimeout, terr.Code)
}

func TestTransport_RateLimiterHonorsContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	tr, err := New(Options{Endpoint: srv.URL, DisableTracing: true, RequestsPerSecond: 0.01, Burst: 1})
	require.NoError(t, err)
	defer tr.Close()

	_, err = tr.Do(context.Background(), &transport.Request{Method: http.MethodGet, Path: protocol.PathVersion})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = tr.Do(ctx, &transport.Request{Method: http.MethodGet, Path: protocol.PathVersion})
	var terr *protocol.TransportError
	require.True(t, errors.As(err, &terr))
	assert.Equal(t, protocol.ErrorCodeRateLimited, terr.Code)
}

func TestTransport_Closed(t *testing.T) {
	tr, err := New(Options{Endpoint: "http://127.0.0.1:1"})
	require.NoError(t, err)

	require.NoError(t, tr.Close())
	require.NoError(t, tr.Close())
	assert.False(t, tr.IsHealthy())

	_, err = tr.Do(context.Background(), &transport.Request{Method: http.MethodGet, Path: "/"})
	assert.Error(t, err)
}
