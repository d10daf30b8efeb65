// Package client is the entry point of the driver: it owns the transport,
// runs request hooks and opens statement, collection, export and traversal
// cursors.
package client

import (
	"context"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/dan-strohschein/aql-driver/cursor"
	"github.com/dan-strohschein/aql-driver/mapper"
	"github.com/dan-strohschein/aql-driver/protocol"
	"github.com/dan-strohschein/aql-driver/query"
	"github.com/dan-strohschein/aql-driver/transport"
	httptransport "github.com/dan-strohschein/aql-driver/transport/http"
	"github.com/dan-strohschein/aql-driver/traversal"
)

var _ cursor.Requester = (*Client)(nil)

// Client sends API requests through one transport. It is safe for
// concurrent use; the cursors it returns are not.
type Client struct {
	transport transport.Transport
	codec     protocol.Codec
	opts      ClientOptions
	logger    Logger
	metrics   *cursor.Metrics
	debugMode atomic.Bool
	closed    atomic.Bool
	hooks     []hookEntry  // Registered hooks in execution order
	hooksMu   sync.RWMutex // Protects hooks slice
}

// Collection describes a collection known to the server.
type Collection struct {
	ID       string
	Name     string
	Type     mapper.CollectionType
	Status   int
	IsSystem bool
}

// IsEdge reports whether the collection stores edges
func (c *Collection) IsEdge() bool {
	return c.Type == mapper.CollectionTypeEdge
}

// NewClient creates a client with the given options.
// If opts is nil, default options are used.
func NewClient(opts *ClientOptions) (*Client, error) {
	if opts == nil {
		defaultOpts := DefaultOptions()
		opts = &defaultOpts
	}

	o, err := opts.withDefaults()
	if err != nil {
		return nil, err
	}

	logger := o.Logger
	if logger == nil {
		logger = NewLogger(o.LogLevel, nil)
	}

	client := &Client{
		codec:  protocol.NewCodec(),
		logger: logger,
	}
	client.debugMode.Store(o.DebugMode)

	if o.Transport != nil {
		client.transport = o.Transport
	} else {
		applyTLSOptions(&o, logger)
		client.transport, err = newHTTPTransport(o)
		if err != nil {
			return nil, err
		}
	}
	client.opts = o

	if o.MetricsRegisterer != nil {
		client.metrics, err = cursor.NewMetrics(o.MetricsRegisterer)
		if err != nil {
			return nil, &ConnectionError{
				Code:    "METRICS_REGISTRATION_FAILED",
				Type:    "CONNECTION_ERROR",
				Message: "failed to register cursor metrics",
				Cause:   err,
			}
		}
	}

	for _, hook := range o.Hooks {
		client.RegisterHook(hook)
	}

	logger.Info("client created",
		String("endpoint", o.Endpoint),
		String("database", o.Database),
		Bool("tls", o.TLSEnabled || o.TLSConfig != nil))
	return client, nil
}

func newHTTPTransport(o ClientOptions) (transport.Transport, error) {
	endpoint, err := url.Parse(o.Endpoint)
	if err != nil {
		return nil, &ConnectionError{
			Code:    "INVALID_ENDPOINT",
			Type:    "CONNECTION_ERROR",
			Message: "endpoint is not a valid URL",
			Details: map[string]interface{}{
				"endpoint": o.Endpoint,
			},
			Cause: err,
		}
	}

	tlsConfig, err := buildTLSConfig(o, endpoint.Hostname())
	if err != nil {
		return nil, err
	}

	t, err := httptransport.New(httptransport.Options{
		Endpoint:          o.Endpoint,
		Database:          o.Database,
		Username:          o.Username,
		Password:          o.Password,
		Token:             o.Token,
		Timeout:           o.timeout(),
		TLSConfig:         tlsConfig,
		MaxIdleConns:      o.MaxIdleConns,
		IdleConnTimeout:   o.IdleConnTimeout,
		RequestsPerSecond: o.RequestsPerSecond,
		Burst:             o.Burst,
		DisableTracing:    o.DisableTracing,
		UserAgent:         "aql-driver-go/" + Version,
	})
	if err != nil {
		return nil, &ConnectionError{
			Code:    "INVALID_ENDPOINT",
			Type:    "CONNECTION_ERROR",
			Message: "failed to create HTTP transport",
			Details: map[string]interface{}{
				"endpoint": o.Endpoint,
			},
			Cause: err,
		}
	}
	return t, nil
}

// Close releases the transport. Open cursors are not deleted; the server
// reclaims them after their ttl.
func (c *Client) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	c.logger.Info("closing client")
	return c.transport.Close()
}

// IsClosed reports whether Close was called
func (c *Client) IsClosed() bool {
	return c.closed.Load()
}

// GetVersion returns the build version of the client.
func (c *Client) GetVersion() string {
	return Version
}

// GetTransportMetrics returns the transport's counters.
func (c *Client) GetTransportMetrics() transport.TransportMetrics {
	return c.transport.GetMetrics()
}

// SetLogLevel changes the logging level at runtime.
// Valid levels: DEBUG, INFO, WARN, ERROR.
func (c *Client) SetLogLevel(level string) {
	c.opts.LogLevel = level
	if l, ok := c.logger.(interface{ SetLevel(LogLevel) }); ok {
		l.SetLevel(ParseLogLevel(level))
		c.logger.Info("log level changed", String("newLevel", level))
	}
}

// Do sends one request through the hook chain and the transport. Non-success
// responses are returned as responses; hooks see them as *protocol.ServerError.
func (c *Client) Do(ctx context.Context, req *transport.Request) (*transport.Response, error) {
	if c.closed.Load() {
		return nil, ErrClientClosed()
	}

	start := time.Now()
	traceID, ok := cursor.TraceIDFromContext(ctx)
	if !ok {
		traceID = uuid.NewString()
		ctx = cursor.ContextWithTraceID(ctx, traceID)
	}

	hookCtx := &HookContext{
		Request:   req,
		Operation: inferOperation(req),
		StartTime: start,
		Metadata:  make(map[string]interface{}),
		TraceID:   traceID,
	}

	if err := c.executeBeforeHooks(ctx, hookCtx); err != nil {
		return nil, err
	}
	req = hookCtx.Request

	if _, hasDeadline := ctx.Deadline(); !hasDeadline && c.opts.DefaultTimeoutMs > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.timeout())
		defer cancel()
	}

	debugMode := c.IsDebugMode()
	if debugMode {
		c.logger.Debug("sending raw request",
			String("method", req.Method),
			String("path", req.Path),
			String("trace_id", traceID),
			String("timestamp", start.Format(time.RFC3339Nano)))
	}

	resp, err := c.transport.Do(ctx, req)
	if err != nil && isTLSFailure(err) {
		err = parseTLSError(err)
	}
	duration := time.Since(start)

	hookCtx.Error = err
	hookCtx.Duration = duration
	if resp != nil {
		hookCtx.StatusCode = resp.StatusCode
		if !resp.IsSuccess() {
			hookCtx.Error = c.codec.DecodeError(resp.StatusCode, resp.Body)
		}
	}

	if debugMode {
		c.logRequestExecution(hookCtx, resp)
	}

	if hookErr := c.executeAfterHooks(ctx, hookCtx); hookErr != nil {
		err = hookErr
	}

	if err != nil {
		c.logger.Error("request failed",
			String("operation", hookCtx.Operation),
			String("trace_id", traceID),
			Error("error", err),
			Duration("duration", duration))
		return nil, err
	}

	c.logger.Debug("request executed",
		String("operation", hookCtx.Operation),
		String("trace_id", traceID),
		Int("status", resp.StatusCode),
		Duration("duration", duration))
	return resp, nil
}

// Ping checks that the server answers.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.Version(ctx)
	return err
}

// Version returns the server version.
func (c *Client) Version(ctx context.Context) (*protocol.VersionResponse, error) {
	resp, err := c.Do(ctx, &transport.Request{Method: http.MethodGet, Path: protocol.PathVersion})
	if err != nil {
		return nil, err
	}
	if !resp.IsSuccess() {
		return nil, c.codec.DecodeError(resp.StatusCode, resp.Body)
	}

	var version protocol.VersionResponse
	if err := c.codec.Decode(resp.Body, &version); err != nil {
		return nil, errMalformedResponse(protocol.PathVersion, err)
	}
	return &version, nil
}

// Collection looks up a collection by name. A missing collection fails with
// a *DatabaseError whose IsNotFound reports true.
func (c *Client) Collection(ctx context.Context, name string) (*Collection, error) {
	if name == "" {
		return nil, ErrCollectionLookup(name, query.ErrInvalidParameter("collection", name, "collection name is empty"))
	}

	path := protocol.CollectionPath(name)
	resp, err := c.Do(ctx, &transport.Request{Method: http.MethodGet, Path: path})
	if err != nil {
		return nil, ErrCollectionLookup(name, err)
	}
	if !resp.IsSuccess() {
		serverErr := c.codec.DecodeError(resp.StatusCode, resp.Body)
		if serverErr.IsNotFound() || serverErr.ErrorNum == protocol.ErrorNumDataSourceNotFound {
			return nil, ErrCollectionNotFound(name, serverErr)
		}
		return nil, ErrCollectionLookup(name, serverErr)
	}

	var body protocol.CollectionResponse
	if err := c.codec.Decode(resp.Body, &body); err != nil {
		return nil, errMalformedResponse(path, err)
	}
	return &Collection{
		ID:       body.ID,
		Name:     body.Name,
		Type:     mapper.CollectionType(body.Type),
		Status:   body.Status,
		IsSystem: body.IsSystem,
	}, nil
}

// Query opens a cursor over the rows of stmt, each decoded as a JSON object.
func (c *Client) Query(ctx context.Context, stmt *query.Statement, opts *cursor.QueryOptions) (*cursor.Cursor[map[string]interface{}], error) {
	return openCursor(ctx, c, c.statementRequest(stmt, opts), cursor.MapRows())
}

// QueryValues opens a cursor over the rows of stmt, each of any JSON shape.
func (c *Client) QueryValues(ctx context.Context, stmt *query.Statement, opts *cursor.QueryOptions) (*cursor.Cursor[interface{}], error) {
	return openCursor(ctx, c, c.statementRequest(stmt, opts), cursor.AnyRows())
}

// QueryAs opens a cursor over the rows of stmt decoded into T.
func QueryAs[T any](ctx context.Context, c *Client, stmt *query.Statement, opts *cursor.QueryOptions) (*cursor.Cursor[T], error) {
	return openCursor(ctx, c, c.statementRequest(stmt, opts), cursor.DecodeRows[T]())
}

// AllDocuments opens a cursor over every document of coll.
func (c *Client) AllDocuments(ctx context.Context, coll *Collection, opts *cursor.QueryOptions) (*cursor.Cursor[mapper.Row], error) {
	if coll == nil {
		return nil, ErrCollectionLookup("", query.ErrInvalidParameter("collection", nil, "collection is nil"))
	}
	builder := &cursor.CollectionRequest{Collection: coll.Name, Options: queryOptions(opts)}
	return openCursor(ctx, c, builder, mapper.RowsOf(coll.Name, coll.Type))
}

// Export opens a bulk export cursor over the collection called name. The
// collection is looked up first; a missing collection fails before the
// export endpoint is contacted.
func (c *Client) Export(ctx context.Context, name string, opts *cursor.ExportOptions) (*cursor.Cursor[mapper.Row], error) {
	coll, err := c.Collection(ctx, name)
	if err != nil {
		return nil, err
	}

	var exportOpts cursor.ExportOptions
	if opts != nil {
		exportOpts = *opts
	}
	builder := &cursor.ExportRequest{Collection: coll.Name, Options: exportOpts}
	return openCursor(ctx, c, builder, mapper.RowsOf(coll.Name, coll.Type))
}

// Traverse opens a cursor over the rows of a graph traversal. Each row holds
// the vertex, edge and path keys.
func (c *Client) Traverse(ctx context.Context, spec traversal.Spec, opts *cursor.QueryOptions) (*cursor.Cursor[map[string]interface{}], error) {
	stmt, err := spec.Statement()
	if err != nil {
		return nil, err
	}
	return c.Query(ctx, stmt, opts)
}

func (c *Client) statementRequest(stmt *query.Statement, opts *cursor.QueryOptions) *cursor.StatementRequest {
	return &cursor.StatementRequest{
		Statement:         stmt,
		Options:           queryOptions(opts),
		ServerSideBinding: c.opts.ServerSideBinding,
	}
}

func (c *Client) cursorOptions() []cursor.Option {
	opts := []cursor.Option{
		cursor.WithLogger(zapOf(c.logger)),
		cursor.WithCodec(c.codec),
	}
	if c.metrics != nil {
		opts = append(opts, cursor.WithMetrics(c.metrics))
	}
	if c.opts.OnCursorStateChange != nil {
		opts = append(opts, cursor.WithStateHandler(c.opts.OnCursorStateChange))
	}
	return opts
}

// openCursor creates a cursor through c and issues its create request.
func openCursor[T any](ctx context.Context, c *Client, builder cursor.RequestBuilder, mapRow cursor.RowMapper[T]) (*cursor.Cursor[T], error) {
	if c.closed.Load() {
		return nil, ErrClientClosed()
	}

	cur := cursor.New(c, builder, mapRow, c.cursorOptions()...)
	if err := cur.Create(ctx); err != nil {
		return nil, err
	}
	return cur, nil
}

func queryOptions(opts *cursor.QueryOptions) cursor.QueryOptions {
	if opts == nil {
		return cursor.QueryOptions{}
	}
	return *opts
}
