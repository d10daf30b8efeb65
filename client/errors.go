package client

import (
	"fmt"
	"runtime"
	"time"

	"github.com/cockroachdb/errors"
	json "github.com/goccy/go-json"

	"github.com/dan-strohschein/aql-driver/protocol"
)

// ConnectionError represents client setup and connection-related failures.
type ConnectionError struct {
	Code        string                 `json:"code"`
	Type        string                 `json:"type"`
	Message     string                 `json:"message"`
	Details     map[string]interface{} `json:"details"`
	Cause       error                  `json:"cause,omitempty"`
	StackTrace  []string               `json:"stack_trace,omitempty"`
	Timestamp   time.Time              `json:"timestamp,omitempty"`
	GoroutineID int                    `json:"goroutine_id,omitempty"`
}

// Error implements the error interface.
// Returns JSON format for backward compatibility.
// Use FormatError() for flexible formatting based on debug mode.
func (e *ConnectionError) Error() string {
	errorData := map[string]interface{}{
		"code":    e.Code,
		"type":    e.Type,
		"message": e.Message,
	}

	if len(e.Details) > 0 {
		errorData["details"] = e.Details
	}

	if e.Cause != nil {
		if cerr, ok := e.Cause.(*ConnectionError); ok {
			errorData["cause"] = map[string]interface{}{
				"code":    cerr.Code,
				"type":    cerr.Type,
				"message": cerr.Message,
			}
		} else {
			errorData["cause"] = map[string]interface{}{
				"message": e.Cause.Error(),
			}
		}
	}

	b, _ := json.Marshal(errorData)
	return string(b)
}

// FormatError returns "CODE: message" or, in debug mode, indented JSON
// with stack trace, timestamp and goroutine id.
func (e *ConnectionError) FormatError(debugMode bool) string {
	if !debugMode {
		return brief(e.Code, e.Message, e.Cause)
	}
	data := debugPayload(e.Code, e.Type, e.Message, e.Details, e.Cause, e.StackTrace, e.Timestamp)
	if e.GoroutineID > 0 {
		data["goroutine_id"] = e.GoroutineID
	}
	return indent(data)
}

// Unwrap returns the underlying cause error for errors.Is and errors.As compatibility.
func (e *ConnectionError) Unwrap() error {
	return e.Cause
}

// ProtocolError represents protocol-level errors (malformed responses, etc).
type ProtocolError struct {
	Code       string                 `json:"code"`
	Type       string                 `json:"type"`
	Message    string                 `json:"message"`
	Details    map[string]interface{} `json:"details"`
	Cause      error                  `json:"cause,omitempty"`
	StackTrace []string               `json:"stack_trace,omitempty"`
	Timestamp  time.Time              `json:"timestamp,omitempty"`
}

// Error implements the error interface.
func (e *ProtocolError) Error() string {
	return e.FormatError(false)
}

// FormatError formats the error based on debug mode.
func (e *ProtocolError) FormatError(debugMode bool) string {
	if !debugMode {
		return brief(e.Code, e.Message, e.Cause)
	}
	return indent(debugPayload(e.Code, e.Type, e.Message, e.Details, e.Cause, e.StackTrace, e.Timestamp))
}

// Unwrap returns the underlying cause error.
func (e *ProtocolError) Unwrap() error {
	return e.Cause
}

// DatabaseError reports a failed lookup of a database object such as a
// collection. Server failures keep the server's message and error number.
type DatabaseError struct {
	Code       string                 `json:"code"`
	Type       string                 `json:"type"`
	Message    string                 `json:"message"`
	Details    map[string]interface{} `json:"details"`
	ErrorNum   int                    `json:"errorNum,omitempty"`
	StatusCode int                    `json:"statusCode,omitempty"`
	Cause      error                  `json:"cause,omitempty"`
	StackTrace []string               `json:"stack_trace,omitempty"`
	Timestamp  time.Time              `json:"timestamp,omitempty"`
}

// Error implements the error interface.
func (e *DatabaseError) Error() string {
	return e.FormatError(false)
}

// FormatError formats the error based on debug mode. The server error
// number is part of both forms.
func (e *DatabaseError) FormatError(debugMode bool) string {
	if !debugMode {
		if e.ErrorNum != 0 {
			return fmt.Sprintf("%s: %s (errorNum %d)", e.Code, e.Message, e.ErrorNum)
		}
		return brief(e.Code, e.Message, nil)
	}

	data := debugPayload(e.Code, e.Type, e.Message, e.Details, e.Cause, e.StackTrace, e.Timestamp)
	if e.ErrorNum != 0 {
		data["errorNum"] = e.ErrorNum
	}
	if e.StatusCode != 0 {
		data["statusCode"] = e.StatusCode
	}
	return indent(data)
}

// Unwrap returns the underlying cause error.
func (e *DatabaseError) Unwrap() error {
	return e.Cause
}

// IsNotFound reports whether the object does not exist.
func (e *DatabaseError) IsNotFound() bool {
	return e.ErrorNum == protocol.ErrorNumDataSourceNotFound
}

func collectionError(code, name, message string, cause error) *DatabaseError {
	return &DatabaseError{
		Code:       code,
		Type:       "DATABASE_ERROR",
		Message:    message,
		Details:    map[string]interface{}{"collection": name},
		Cause:      cause,
		StackTrace: captureStackTrace(),
		Timestamp:  time.Now(),
	}
}

// ErrCollectionNotFound creates an error for a collection the server does not know.
func ErrCollectionNotFound(name string, cause error) *DatabaseError {
	e := collectionError("E_COLLECTION_NOT_FOUND", name, fmt.Sprintf("collection '%s' doesn't exist", name), cause)
	e.ErrorNum = protocol.ErrorNumDataSourceNotFound

	var serverErr *protocol.ServerError
	if errors.As(cause, &serverErr) {
		e.StatusCode = serverErr.StatusCode
	}
	return e
}

// ErrCollectionLookup wraps any other failure to describe a collection. A
// server error's message and numbers replace the generic message.
func ErrCollectionLookup(name string, cause error) *DatabaseError {
	e := collectionError("E_COLLECTION_LOOKUP_FAILED", name, fmt.Sprintf("failed to look up collection '%s'", name), cause)

	var serverErr *protocol.ServerError
	if errors.As(cause, &serverErr) {
		e.Message = serverErr.Message
		e.ErrorNum = serverErr.ErrorNum
		e.StatusCode = serverErr.StatusCode
	}
	return e
}

// ErrClientClosed creates an error for requests issued after Close.
func ErrClientClosed() *ConnectionError {
	return &ConnectionError{
		Code:        "CLIENT_CLOSED",
		Type:        "CONNECTION_ERROR",
		Message:     "client is closed",
		StackTrace:  captureStackTrace(),
		Timestamp:   time.Now(),
		GoroutineID: getGoroutineID(),
	}
}

// errMalformedResponse creates a ProtocolError for a 2xx body that does not decode.
func errMalformedResponse(path string, cause error) *ProtocolError {
	return &ProtocolError{
		Code:    "MALFORMED_RESPONSE",
		Type:    "PROTOCOL_ERROR",
		Message: fmt.Sprintf("malformed response from %s", path),
		Details: map[string]interface{}{
			"path": path,
		},
		Cause:      cause,
		StackTrace: captureStackTrace(),
		Timestamp:  time.Now(),
	}
}

func brief(code, message string, cause error) string {
	if cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %s)", code, message, cause.Error())
	}
	return code + ": " + message
}

// debugPayload collects the fields shared by every client error in debug output.
func debugPayload(code, typ, message string, details map[string]interface{}, cause error, stack []string, ts time.Time) map[string]interface{} {
	data := map[string]interface{}{
		"code":    code,
		"type":    typ,
		"message": message,
	}
	if len(details) > 0 {
		data["details"] = details
	}
	if cause != nil {
		data["cause"] = map[string]interface{}{"message": cause.Error()}
	}
	if len(stack) > 0 {
		data["stack_trace"] = stack
	}
	if !ts.IsZero() {
		data["timestamp"] = ts.Format(time.RFC3339Nano)
	}
	return data
}

func indent(data map[string]interface{}) string {
	b, _ := json.MarshalIndent(data, "", "  ")
	return string(b)
}

// captureStackTrace captures the current stack trace for error reporting.
func captureStackTrace() []string {
	const maxDepth = 32
	pcs := make([]uintptr, maxDepth)
	n := runtime.Callers(3, pcs) // Skip captureStackTrace, the error constructor, and runtime.Callers

	frames := make([]string, 0, n)
	callersFrames := runtime.CallersFrames(pcs[:n])

	for {
		frame, more := callersFrames.Next()

		// Format: function (file:line)
		frames = append(frames, fmt.Sprintf("%s (%s:%d)",
			frame.Function,
			frame.File,
			frame.Line,
		))

		if !more {
			break
		}
	}

	return frames
}

// getGoroutineID extracts the goroutine ID for debugging.
// Note: This uses runtime stack parsing and is intended for debug purposes only.
func getGoroutineID() int {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	// Stack trace format: "goroutine <id> [<status>]:"
	var id int
	fmt.Sscanf(string(buf[:n]), "goroutine %d ", &id)
	return id
}

// FormatError is a helper to format any error with debug mode support.
func FormatError(err error, debugMode bool) string {
	if err == nil {
		return ""
	}

	type debugFormatter interface {
		FormatError(bool) string
	}

	var formatter debugFormatter
	if errors.As(err, &formatter) {
		return formatter.FormatError(debugMode)
	}

	return err.Error()
}
