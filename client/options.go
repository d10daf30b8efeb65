package client

import (
	"crypto/tls"
	"time"

	"github.com/creasty/defaults"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/dan-strohschein/aql-driver/cursor"
	"github.com/dan-strohschein/aql-driver/transport"
)

// ClientOptions configures the client behavior.
type ClientOptions struct {
	// Endpoint is the server base URL. TLS settings may be appended as query
	// parameters: ?tls=true&tlsCAFile=/path&tlsCert=/path&tlsKey=/path&tlsInsecureSkipVerify=true
	// Default: "http://127.0.0.1:8529"
	Endpoint string `default:"http://127.0.0.1:8529"`

	// Database selects the database every route is prefixed with.
	// Empty selects the server default.
	Database string

	// Username and Password are sent as basic authentication.
	Username string
	Password string

	// Token is sent as a bearer token and takes precedence over basic authentication.
	Token string

	// DefaultTimeoutMs bounds every request whose context carries no deadline.
	// Default: 30000 (30 seconds)
	DefaultTimeoutMs int `default:"30000"`

	// DebugMode enables verbose error serialization and request/response logging.
	// Default: false
	DebugMode bool

	// RequestsPerSecond enables client-side rate limiting when > 0.
	// Default: 0 (unlimited)
	RequestsPerSecond float64

	// Burst is the rate limiter bucket size.
	// Default: 1
	Burst int `default:"1"`

	// MaxIdleConns is the number of idle HTTP connections kept for reuse.
	// Default: 10
	MaxIdleConns int `default:"10"`

	// IdleConnTimeout closes idle HTTP connections after this duration.
	// Default: 90s
	IdleConnTimeout time.Duration `default:"90s"`

	// DisableTracing skips OpenTelemetry instrumentation of the HTTP transport.
	DisableTracing bool

	// TLSConfig provides custom TLS configuration.
	// If nil, TLS is disabled unless TLSEnabled is true or the endpoint is https.
	TLSConfig *tls.Config

	// TLSEnabled enables TLS with default configuration.
	// Default: false
	TLSEnabled bool

	// TLSInsecureSkipVerify skips certificate validation (for development only).
	// Default: false
	TLSInsecureSkipVerify bool

	// TLSCAFile is the path to a custom CA certificate file.
	TLSCAFile string

	// TLSCertFile is the path to the client certificate file.
	TLSCertFile string

	// TLSKeyFile is the path to the client private key file.
	TLSKeyFile string

	// Logger is the logger implementation to use.
	// If nil, a JSON logger at LogLevel writing to stdout is used.
	Logger Logger

	// LogLevel sets the minimum log level (DEBUG, INFO, WARN, ERROR).
	// Default: "INFO"
	LogLevel string `default:"INFO"`

	// MetricsRegisterer receives the cursor metrics of every cursor the
	// client opens. Nil disables cursor metrics.
	MetricsRegisterer prometheus.Registerer

	// Hooks are registered in order when the client is created.
	Hooks []Hook

	// ServerSideBinding sends statement templates with bind variables
	// instead of resolved query text.
	// Default: false
	ServerSideBinding bool

	// OnCursorStateChange is called for every lifecycle transition of every
	// cursor the client opens.
	OnCursorStateChange cursor.StateChangeHandler

	// Transport replaces the HTTP transport. Endpoint, auth, TLS and rate
	// settings are ignored when set.
	Transport transport.Transport
}

// DefaultOptions returns ClientOptions with default values.
func DefaultOptions() ClientOptions {
	var opts ClientOptions
	_ = defaults.Set(&opts)
	return opts
}

// withDefaults fills unset fields of opts.
func (o ClientOptions) withDefaults() (ClientOptions, error) {
	if err := defaults.Set(&o); err != nil {
		return o, &ConnectionError{
			Code:    "INVALID_OPTIONS",
			Type:    "CONNECTION_ERROR",
			Message: "failed to apply option defaults",
			Cause:   err,
		}
	}
	return o, nil
}

// timeout returns the default request timeout.
func (o ClientOptions) timeout() time.Duration {
	return time.Duration(o.DefaultTimeoutMs) * time.Millisecond
}
