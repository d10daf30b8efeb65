// Package cursor streams the rows of a server-side query cursor in batches.
//
// A Cursor issues its create request once, buffers each batch the server
// returns and fetches the next batch only when iteration runs past the
// buffer. Nothing runs in the background: every round trip happens inside
// Create, Fetch, Valid or Delete. A cursor that still holds an id when the
// caller stops iterating is reclaimed by the server after its ttl; call
// Delete to release it earlier.
package cursor

import (
	"context"
	"iter"
	"net/http"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dan-strohschein/aql-driver/protocol"
	"github.com/dan-strohschein/aql-driver/transport"
)

// Requester performs one round trip. *client.Client and every
// transport.Transport satisfy it.
type Requester interface {
	Do(ctx context.Context, req *transport.Request) (*transport.Response, error)
}

// cursorState is owned by a single Cursor and never exposed.
type cursorState struct {
	id         protocol.CursorID
	hasMore    bool
	buffer     []json.RawMessage
	position   int
	fetchCount int
	cached     bool
	count      *int
	extra      map[string]interface{}
}

// Cursor iterates the rows of one server-side cursor. A Cursor is not safe
// for concurrent use.
type Cursor[T any] struct {
	requester Requester
	builder   RequestBuilder
	mapRow    RowMapper[T]
	codec     protocol.Codec
	metrics   *Metrics
	logger    *zap.Logger
	states    *StateManager
	traceID   string
	st        cursorState
}

type traceKey struct{}

// ContextWithTraceID returns ctx carrying a cursor trace id.
func ContextWithTraceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, traceKey{}, id)
}

// TraceIDFromContext returns the cursor trace id carried by ctx.
func TraceIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(traceKey{}).(string)
	return id, ok
}

// New creates a cursor in CREATED state. Call Create to issue the initial request.
func New[T any](requester Requester, builder RequestBuilder, mapRow RowMapper[T], opts ...Option) *Cursor[T] {
	o := defaultCursorOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.traceID == "" {
		o.traceID = uuid.NewString()
	}

	c := &Cursor[T]{
		requester: requester,
		builder:   builder,
		mapRow:    mapRow,
		codec:     o.codec,
		metrics:   o.metrics,
		traceID:   o.traceID,
		states:    NewStateManager(),
		st:        cursorState{buffer: []json.RawMessage{}},
	}
	c.logger = o.logger.With(zap.String("cursor", c.traceID), zap.String("kind", builder.Kind()))
	for _, h := range o.handlers {
		c.states.OnStateChange(h)
	}
	return c
}

// Create sends the initial request and buffers the first batch.
func (c *Cursor[T]) Create(ctx context.Context) error {
	if state := c.states.GetState(); state != CREATED {
		return ErrInvalidState("create", state)
	}

	req, err := c.builder.Build(c.codec)
	if err != nil {
		return err
	}

	start := time.Now()
	resp, err := c.roundTrip(ctx, req, "create")
	if err != nil {
		c.logger.Debug("cursor create failed", zap.Error(err))
		return err
	}

	c.st.buffer = append(c.st.buffer, resp.Result...)
	c.st.hasMore = resp.HasMore
	c.st.id = resp.ID
	c.st.cached = resp.Cached
	c.st.count = resp.Count
	c.st.extra = resp.Extra
	c.st.fetchCount++
	if c.st.hasMore && c.st.id == "" {
		// Nothing can be fetched without an id.
		c.logger.Warn("cursor response has hasMore without id; treating as exhausted")
		c.st.hasMore = false
	}
	if !c.st.hasMore {
		c.st.id = ""
	}

	c.metrics.observeBatch(c.builder.Kind(), len(resp.Result), true)
	c.logger.Debug("cursor created",
		zap.Int("rows", len(resp.Result)),
		zap.Bool("hasMore", c.st.hasMore),
		zap.Duration("duration", time.Since(start)))

	if c.st.id != "" {
		c.metrics.observeOpen(c.builder.Kind())
		return c.transition(OPEN)
	}
	return c.transition(EXHAUSTED)
}

// Fetch requests the next batch and appends it to the buffer. It fails
// without a round trip when the cursor holds no id.
func (c *Cursor[T]) Fetch(ctx context.Context) error {
	if c.st.id == "" {
		return ErrCursorIDNull()
	}

	start := time.Now()
	resp, err := c.roundTrip(ctx, &transport.Request{
		Method: http.MethodPut,
		Path:   protocol.CursorPath(c.builder.Route(), c.st.id),
	}, "fetch")
	if err != nil {
		c.logger.Debug("cursor fetch failed", zap.Error(err))
		return err
	}

	c.st.buffer = append(c.st.buffer, resp.Result...)
	c.st.hasMore = resp.HasMore
	c.st.cached = resp.Cached
	c.st.extra = resp.Extra
	if resp.Count != nil {
		c.st.count = resp.Count
	}
	c.st.fetchCount++

	c.metrics.observeBatch(c.builder.Kind(), len(resp.Result), false)
	c.logger.Debug("cursor batch fetched",
		zap.Int("rows", len(resp.Result)),
		zap.Int("buffered", len(c.st.buffer)),
		zap.Bool("hasMore", c.st.hasMore),
		zap.Duration("duration", time.Since(start)))

	if !c.st.hasMore {
		c.st.id = ""
		c.metrics.observeReleased(c.builder.Kind(), false)
		return c.transition(EXHAUSTED)
	}
	return nil
}

// Delete releases the server-side cursor. It returns false, nil without a
// round trip when no id is held. On failure the cursor is left unchanged.
func (c *Cursor[T]) Delete(ctx context.Context) (bool, error) {
	if c.st.id == "" {
		return false, nil
	}

	_, err := c.roundTrip(ctx, &transport.Request{
		Method: http.MethodDelete,
		Path:   protocol.CursorPath(c.builder.Route(), c.st.id),
	}, "delete")
	if err != nil {
		c.logger.Debug("cursor delete failed", zap.Error(err))
		return false, err
	}

	c.st.id = ""
	c.st.hasMore = false
	c.metrics.observeReleased(c.builder.Kind(), true)
	c.logger.Debug("cursor deleted", zap.Int("fetchCount", c.st.fetchCount))
	return true, c.transition(DELETED)
}

// Valid reports whether a row is available at the current position. Past
// the buffer it fetches one more batch when the server has more rows;
// that is the only place iteration performs I/O.
func (c *Cursor[T]) Valid(ctx context.Context) (bool, error) {
	if state := c.states.GetState(); state == CREATED {
		return false, ErrInvalidState("iterate", state)
	}
	if c.st.position < len(c.st.buffer) {
		return true, nil
	}
	if !c.st.hasMore {
		return false, nil
	}
	if err := c.Fetch(ctx); err != nil {
		return false, err
	}
	return c.st.position < len(c.st.buffer), nil
}

// Current maps the row at the current position.
func (c *Cursor[T]) Current() (T, error) {
	var zero T
	if c.st.position < 0 || c.st.position >= len(c.st.buffer) {
		return zero, ErrPositionOutOfRange(c.st.position, len(c.st.buffer))
	}
	row, err := c.mapRow(c.st.buffer[c.st.position])
	if err != nil {
		return zero, ErrRowMapping(c.st.position, err)
	}
	return row, nil
}

// Next advances the position
func (c *Cursor[T]) Next() {
	c.st.position++
}

// Key returns the current position
func (c *Cursor[T]) Key() int {
	return c.st.position
}

// Rewind moves back to the first buffered row. It never refetches.
func (c *Cursor[T]) Rewind() {
	c.st.position = 0
}

// Rows iterates from the current position to the end of the result,
// fetching batches as needed. Iteration stops after the first error.
func (c *Cursor[T]) Rows(ctx context.Context) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		for {
			ok, err := c.Valid(ctx)
			if err != nil {
				var zero T
				yield(zero, err)
				return
			}
			if !ok {
				return
			}

			row, err := c.Current()
			c.Next()
			if !yield(row, err) || err != nil {
				return
			}
		}
	}
}

// All collects every remaining row.
func (c *Cursor[T]) All(ctx context.Context) ([]T, error) {
	var rows []T
	for row, err := range c.Rows(ctx) {
		if err != nil {
			return rows, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// Each calls fn for every remaining row and stops at the first error.
func (c *Cursor[T]) Each(ctx context.Context, fn func(T) error) error {
	for row, err := range c.Rows(ctx) {
		if err != nil {
			return err
		}
		if err := fn(row); err != nil {
			return err
		}
	}
	return nil
}

// ID returns the server-side cursor id, if one is held
func (c *Cursor[T]) ID() (string, bool) {
	return string(c.st.id), c.st.id != ""
}

// HasMore reports whether the server holds unfetched rows
func (c *Cursor[T]) HasMore() bool {
	return c.st.hasMore
}

// FetchCount returns the number of round trips that returned rows, create included
func (c *Cursor[T]) FetchCount() int {
	return c.st.fetchCount
}

// Count returns the total row count when the server reported one
func (c *Cursor[T]) Count() (int, bool) {
	if c.st.count == nil {
		return 0, false
	}
	return *c.st.count, true
}

// Cached reports whether the last batch came from the server query cache
func (c *Cursor[T]) Cached() bool {
	return c.st.cached
}

// Extra returns the server's extra section of the last batch
func (c *Cursor[T]) Extra() map[string]interface{} {
	return c.st.extra
}

// Buffered returns the number of rows held in the buffer
func (c *Cursor[T]) Buffered() int {
	return len(c.st.buffer)
}

// State returns the lifecycle state
func (c *Cursor[T]) State() State {
	return c.states.GetState()
}

// TraceID returns the id carried in logs and request contexts
func (c *Cursor[T]) TraceID() string {
	return c.traceID
}

// Kind returns the request builder kind
func (c *Cursor[T]) Kind() string {
	return c.builder.Kind()
}

func (c *Cursor[T]) transition(to State) error {
	return c.states.TransitionTo(to, map[string]interface{}{
		"traceId":    c.traceID,
		"kind":       c.builder.Kind(),
		"fetchCount": c.st.fetchCount,
		"buffered":   len(c.st.buffer),
	})
}

// roundTrip sends req and decodes the cursor response. Delete responses are
// only checked for success.
func (c *Cursor[T]) roundTrip(ctx context.Context, req *transport.Request, operation string) (*protocol.CursorResponse, error) {
	ctx = ContextWithTraceID(ctx, c.traceID)

	resp, err := c.requester.Do(ctx, req)
	if err != nil {
		return nil, ErrRequestFailed(operation, err)
	}
	if !resp.IsSuccess() {
		return nil, ErrRequestFailed(operation, c.codec.DecodeError(resp.StatusCode, resp.Body))
	}
	if req.Method == http.MethodDelete {
		return nil, nil
	}

	decoded, err := c.codec.DecodeCursor(resp.Body)
	if err != nil {
		return nil, ErrRequestFailed(operation, protocol.NewTransportError(protocol.ErrorCodeProtocolError, "malformed cursor response", nil, err))
	}
	if decoded.Error {
		return nil, ErrRequestFailed(operation, c.codec.DecodeError(resp.StatusCode, resp.Body))
	}
	return decoded, nil
}
