// Package protocol provides error codes and types for the query cursor protocol
package protocol

import (
	"fmt"

	json "github.com/goccy/go-json"
)

// ErrorCode represents standardized client-side error codes for transport failures
type ErrorCode int

const (
	// Connection errors (1000-1099)
	ErrorCodeConnectionRefused ErrorCode = 1001
	ErrorCodeTimeout           ErrorCode = 1002
	ErrorCodeAuthFailed        ErrorCode = 1003
	ErrorCodeRateLimited       ErrorCode = 1010

	// Protocol errors (2000-2099)
	ErrorCodeProtocolError ErrorCode = 2001
)

// Server error numbers the driver reacts to. The full list is owned by the server.
const (
	ErrorNumDataSourceNotFound   = 1203
	ErrorNumQueryParse           = 1501
	ErrorNumBindParameterMissing = 1551
	ErrorNumCursorNotFound       = 1600
)

// TransportError represents a failure to complete a round trip
type TransportError struct {
	Code    ErrorCode              `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
	Cause   error                  `json:"-"`
}

// Error implements the error interface
func (e *TransportError) Error() string {
	msg := fmt.Sprintf("[%d] %s", e.Code, e.Message)
	if len(e.Details) > 0 {
		detailsJSON, _ := json.Marshal(e.Details)
		msg = fmt.Sprintf("%s (details: %s)", msg, string(detailsJSON))
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %s", msg, e.Cause.Error())
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *TransportError) Unwrap() error {
	return e.Cause
}

// NewTransportError creates a new transport error
func NewTransportError(code ErrorCode, message string, details map[string]interface{}, cause error) *TransportError {
	return &TransportError{
		Code:    code,
		Message: message,
		Details: details,
		Cause:   cause,
	}
}

// ConnectionError creates a connection-related transport error
func ConnectionError(message string, cause error) *TransportError {
	return NewTransportError(ErrorCodeConnectionRefused, message, nil, cause)
}

// TimeoutError creates a timeout transport error
func TimeoutError(message string, cause error) *TransportError {
	return NewTransportError(ErrorCodeTimeout, message, nil, cause)
}

// AuthError creates an authentication transport error
func AuthError(message string, details map[string]interface{}) *TransportError {
	return NewTransportError(ErrorCodeAuthFailed, message, details, nil)
}

// RateLimitedError creates an error for requests refused by the client-side limiter
func RateLimitedError(cause error) *TransportError {
	return NewTransportError(ErrorCodeRateLimited, "request rate limit wait failed", nil, cause)
}

// ServerError carries the message and error number of a non-success server response.
type ServerError struct {
	StatusCode int    `json:"code"`
	ErrorNum   int    `json:"errorNum"`
	Message    string `json:"errorMessage"`
}

// NewServerError creates a ServerError.
func NewServerError(statusCode, errorNum int, message string) *ServerError {
	return &ServerError{
		StatusCode: statusCode,
		ErrorNum:   errorNum,
		Message:    message,
	}
}

// Error implements the error interface
func (e *ServerError) Error() string {
	return fmt.Sprintf("server error %d (HTTP %d): %s", e.ErrorNum, e.StatusCode, e.Message)
}

// IsNotFound reports whether the server answered 404.
func (e *ServerError) IsNotFound() bool {
	return e.StatusCode == 404
}
