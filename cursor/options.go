package cursor

import (
	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"go.uber.org/zap"

	"github.com/dan-strohschein/aql-driver/protocol"
)

// QueryOptions are sent with statement and collection cursors. Zero-valued
// fields take the documented defaults.
type QueryOptions struct {
	// Cache asks the server to use its query result cache
	Cache bool `default:"false"`

	// MemoryLimit caps server memory for the query in bytes; 0 means unlimited
	MemoryLimit int64 `default:"0"`

	// TTL is the server-side lifetime in seconds of an unreleased cursor
	TTL int `default:"60"`

	// BatchSize is the number of rows per round trip; 0 uses the server default
	BatchSize int

	// Count asks the server for the total row count
	Count bool
}

// ExportOptions are sent with export cursors.
type ExportOptions struct {
	Flush     *bool `default:"true"`
	FlushWait int   `default:"10"`
	Count     *bool `default:"true"`
	Limit     int   `default:"0"`
	TTL       int   `default:"60"`
	BatchSize int

	// Restrict limits the returned attributes
	Restrict *protocol.ExportRestrict
}

// Bool returns a pointer to b for optional option fields.
func Bool(b bool) *bool {
	return &b
}

// WithDefaults returns a copy of o with unset fields defaulted.
func (o QueryOptions) WithDefaults() (QueryOptions, error) {
	if err := defaults.Set(&o); err != nil {
		return o, errors.Wrap(err, "apply query option defaults")
	}
	return o, nil
}

// WithDefaults returns a copy of o with unset fields defaulted.
func (o ExportOptions) WithDefaults() (ExportOptions, error) {
	if err := defaults.Set(&o); err != nil {
		return o, errors.Wrap(err, "apply export option defaults")
	}
	if o.Restrict != nil && o.Restrict.Type != "include" && o.Restrict.Type != "exclude" {
		return o, errors.Newf("export restrict type must be include or exclude, got %q", o.Restrict.Type)
	}
	return o, nil
}

// Option configures a Cursor
type Option func(*cursorOptions)

type cursorOptions struct {
	logger   *zap.Logger
	metrics  *Metrics
	codec    protocol.Codec
	handlers []StateChangeHandler
	traceID  string
}

func defaultCursorOptions() cursorOptions {
	return cursorOptions{
		logger: zap.NewNop(),
		codec:  protocol.NewCodec(),
	}
}

// WithLogger sets the logger used for cursor round trips
func WithLogger(logger *zap.Logger) Option {
	return func(o *cursorOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMetrics records cursor activity in m
func WithMetrics(m *Metrics) Option {
	return func(o *cursorOptions) {
		o.metrics = m
	}
}

// WithCodec replaces the JSON codec
func WithCodec(codec protocol.Codec) Option {
	return func(o *cursorOptions) {
		if codec != nil {
			o.codec = codec
		}
	}
}

// WithStateHandler registers a handler for state transitions
func WithStateHandler(handler StateChangeHandler) Option {
	return func(o *cursorOptions) {
		o.handlers = append(o.handlers, handler)
	}
}

// WithTraceID overrides the generated trace id
func WithTraceID(id string) Option {
	return func(o *cursorOptions) {
		o.traceID = id
	}
}
