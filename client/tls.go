package client

import (
	"crypto/tls"
	"crypto/x509"
	"net/url"
	"os"
	"strings"

	"github.com/cockroachdb/errors"
)

// Endpoint query parameters that configure TLS, e.g.
// https://db:8529?tlsCAFile=/etc/ca.pem&tlsCert=/etc/client.pem&tlsKey=/etc/client.key
const (
	paramTLS                   = "tls"
	paramTLSCAFile             = "tlsCAFile"
	paramTLSCert               = "tlsCert"
	paramTLSKey                = "tlsKey"
	paramTLSInsecureSkipVerify = "tlsInsecureSkipVerify"
)

var tlsParams = []string{paramTLS, paramTLSCAFile, paramTLSCert, paramTLSKey, paramTLSInsecureSkipVerify}

// splitTLSOptions removes the TLS parameters from endpoint and returns them.
// Other query parameters stay on the endpoint. An unparsable endpoint is
// returned unchanged and rejected later by the transport.
func splitTLSOptions(endpoint string) (string, map[string]string) {
	u, err := url.Parse(endpoint)
	if err != nil || u.RawQuery == "" {
		return endpoint, map[string]string{}
	}

	query := u.Query()
	params := make(map[string]string)
	for _, name := range tlsParams {
		if query.Has(name) {
			params[name] = strings.TrimSpace(query.Get(name))
			query.Del(name)
		}
	}
	u.RawQuery = query.Encode()
	return u.String(), params
}

// applyTLSOptions moves endpoint TLS parameters into opts. An https endpoint
// enables TLS; enabling TLS on an http endpoint upgrades its scheme.
func applyTLSOptions(opts *ClientOptions, logger Logger) {
	endpoint, params := splitTLSOptions(opts.Endpoint)
	opts.Endpoint = endpoint

	switch params[paramTLS] {
	case "true", "require":
		opts.TLSEnabled = true
		logger.Info("TLS enabled via endpoint")
	}
	if v := params[paramTLSCAFile]; v != "" {
		opts.TLSCAFile = v
	}
	if v := params[paramTLSCert]; v != "" {
		opts.TLSCertFile = v
	}
	if v := params[paramTLSKey]; v != "" {
		opts.TLSKeyFile = v
	}
	if params[paramTLSInsecureSkipVerify] == "true" {
		opts.TLSInsecureSkipVerify = true
		logger.Warn("TLS certificate verification disabled - USE ONLY FOR TESTING")
	}

	switch {
	case strings.HasPrefix(opts.Endpoint, "https://"):
		opts.TLSEnabled = true
	case opts.TLSEnabled && strings.HasPrefix(opts.Endpoint, "http://"):
		opts.Endpoint = "https://" + strings.TrimPrefix(opts.Endpoint, "http://")
	}
}

// buildTLSConfig returns the client TLS configuration for serverName, or nil
// when TLS is off. A caller-supplied TLSConfig is used as is.
func buildTLSConfig(opts ClientOptions, serverName string) (*tls.Config, error) {
	if opts.TLSConfig != nil {
		return opts.TLSConfig, nil
	}
	if !opts.TLSEnabled {
		return nil, nil
	}

	cfg := &tls.Config{
		ServerName:         serverName,
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: opts.TLSInsecureSkipVerify,
	}

	if opts.TLSCAFile != "" {
		pem, err := os.ReadFile(opts.TLSCAFile)
		if err != nil {
			return nil, tlsError("TLS_CA_LOAD_FAILED", "failed to load CA certificate from "+opts.TLSCAFile, err,
				"caFile", opts.TLSCAFile)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, tlsError("TLS_CA_INVALID", "failed to parse CA certificate", nil,
				"caFile", opts.TLSCAFile)
		}
		cfg.RootCAs = pool
	}

	switch {
	case opts.TLSCertFile != "" && opts.TLSKeyFile != "":
		cert, err := tls.LoadX509KeyPair(opts.TLSCertFile, opts.TLSKeyFile)
		if err != nil {
			return nil, tlsError("TLS_CLIENT_CERT_FAILED", "failed to load client certificate and key", err,
				"certFile", opts.TLSCertFile, "keyFile", opts.TLSKeyFile)
		}
		cfg.Certificates = []tls.Certificate{cert}
	case opts.TLSCertFile != "" || opts.TLSKeyFile != "":
		return nil, tlsError("TLS_CLIENT_CERT_INCOMPLETE", "client certificate and key must be set together", nil,
			"certFile", opts.TLSCertFile, "keyFile", opts.TLSKeyFile)
	}

	return cfg, nil
}

// tlsError builds a ConnectionError; details are key, value pairs.
func tlsError(code, message string, cause error, details ...string) *ConnectionError {
	e := &ConnectionError{
		Code:    code,
		Type:    "CONNECTION_ERROR",
		Message: message,
		Cause:   cause,
	}
	if len(details) > 0 {
		e.Details = make(map[string]interface{}, len(details)/2)
		for i := 0; i+1 < len(details); i += 2 {
			e.Details[details[i]] = details[i+1]
		}
	}
	return e
}

// isTLSFailure reports whether a round trip failed in certificate
// verification or the handshake. Errors arrive wrapped in *url.Error.
func isTLSFailure(err error) bool {
	if err == nil {
		return false
	}

	var (
		verifyErr    *tls.CertificateVerificationError
		recordErr    tls.RecordHeaderError
		authorityErr x509.UnknownAuthorityError
		hostErr      x509.HostnameError
		invalidErr   x509.CertificateInvalidError
	)
	if errors.As(err, &verifyErr) || errors.As(err, &recordErr) || errors.As(err, &authorityErr) ||
		errors.As(err, &hostErr) || errors.As(err, &invalidErr) {
		return true
	}

	msg := err.Error()
	return strings.Contains(msg, "x509:") || strings.Contains(msg, "tls:")
}

// tlsFailures maps verification messages to error codes; first match wins.
var tlsFailures = []struct {
	match   string
	code    string
	message string
}{
	{"certificate has expired", "TLS_CERT_EXPIRED", "server certificate has expired"},
	{"certificate is not trusted", "TLS_CERT_UNTRUSTED", "server certificate is not trusted (try setting a custom CA or tlsInsecureSkipVerify for testing)"},
	{"doesn't match", "TLS_HOSTNAME_MISMATCH", "server certificate hostname doesn't match the endpoint host"},
	{"certificate is valid for", "TLS_HOSTNAME_MISMATCH", "server certificate hostname doesn't match the endpoint host"},
	{"unknown authority", "TLS_UNKNOWN_CA", "server certificate signed by unknown authority (try setting tlsCAFile)"},
}

// parseTLSError turns a TLS failure into a ConnectionError with a specific code.
func parseTLSError(err error) error {
	if err == nil {
		return nil
	}

	msg := err.Error()
	for _, f := range tlsFailures {
		if strings.Contains(msg, f.match) {
			return tlsError(f.code, f.message, err)
		}
	}
	return tlsError("TLS_HANDSHAKE_FAILED", "TLS handshake failed", err)
}
