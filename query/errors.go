package query

import (
	"fmt"
	"runtime"
	"time"

	json "github.com/goccy/go-json"
)

// InvalidParameterError is returned when a bind value cannot be represented
// as a query literal.
type InvalidParameterError struct {
	Code       string                 `json:"code"`
	Type       string                 `json:"type"`
	Message    string                 `json:"message"`
	Details    map[string]interface{} `json:"details"`
	Parameter  string                 `json:"parameter,omitempty"`
	Cause      error                  `json:"cause,omitempty"`
	StackTrace []string               `json:"stack_trace,omitempty"`
	Timestamp  time.Time              `json:"timestamp,omitempty"`
}

// Error implements the error interface.
func (e *InvalidParameterError) Error() string {
	return e.FormatError(false)
}

// FormatError formats the error based on debug mode.
func (e *InvalidParameterError) FormatError(debugMode bool) string {
	if !debugMode {
		if e.Cause != nil {
			return fmt.Sprintf("%s: %s (caused by: %s)", e.Code, e.Message, e.Cause.Error())
		}
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}

	errorData := map[string]interface{}{
		"code":    e.Code,
		"type":    e.Type,
		"message": e.Message,
	}

	if e.Parameter != "" {
		errorData["parameter"] = e.Parameter
	}

	if len(e.Details) > 0 {
		errorData["details"] = e.Details
	}

	if e.Cause != nil {
		errorData["cause"] = map[string]interface{}{"message": e.Cause.Error()}
	}

	if len(e.StackTrace) > 0 {
		errorData["stack_trace"] = e.StackTrace
	}

	if !e.Timestamp.IsZero() {
		errorData["timestamp"] = e.Timestamp.Format(time.RFC3339Nano)
	}

	b, _ := json.MarshalIndent(errorData, "", "  ")
	return string(b)
}

// Unwrap returns the underlying cause error.
func (e *InvalidParameterError) Unwrap() error {
	return e.Cause
}

// StatementError is returned when a statement cannot be resolved into query text.
type StatementError struct {
	Code       string                 `json:"code"`
	Type       string                 `json:"type"`
	Message    string                 `json:"message"`
	Details    map[string]interface{} `json:"details"`
	Query      string                 `json:"query,omitempty"`
	Parameter  string                 `json:"parameter,omitempty"`
	StackTrace []string               `json:"stack_trace,omitempty"`
	Timestamp  time.Time              `json:"timestamp,omitempty"`
}

// Error implements the error interface.
func (e *StatementError) Error() string {
	return e.FormatError(false)
}

// FormatError formats the error based on debug mode.
func (e *StatementError) FormatError(debugMode bool) string {
	if !debugMode {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}

	errorData := map[string]interface{}{
		"code":    e.Code,
		"type":    e.Type,
		"message": e.Message,
	}

	if e.Query != "" {
		errorData["query"] = e.Query
	}

	if e.Parameter != "" {
		errorData["parameter"] = e.Parameter
	}

	if len(e.Details) > 0 {
		errorData["details"] = e.Details
	}

	if len(e.StackTrace) > 0 {
		errorData["stack_trace"] = e.StackTrace
	}

	if !e.Timestamp.IsZero() {
		errorData["timestamp"] = e.Timestamp.Format(time.RFC3339Nano)
	}

	b, _ := json.MarshalIndent(errorData, "", "  ")
	return string(b)
}

// ErrInvalidParameter creates an error for a value that is neither a primitive nor a document.
func ErrInvalidParameter(name string, value interface{}, reason string) *InvalidParameterError {
	return &InvalidParameterError{
		Code:      "E_INVALID_PARAMETER",
		Type:      "INVALID_PARAMETER",
		Message:   fmt.Sprintf("value for parameter '%s' is not a primitive or document: %s", name, reason),
		Parameter: name,
		Details: map[string]interface{}{
			"parameter": name,
			"goType":    fmt.Sprintf("%T", value),
		},
		StackTrace: captureStackTrace(),
		Timestamp:  time.Now(),
	}
}

// ErrUnboundParameter creates an error for a declared placeholder without a value.
func ErrUnboundParameter(query, name string) *StatementError {
	return &StatementError{
		Code:      "E_UNBOUND_PARAMETER",
		Type:      "STATEMENT_ERROR",
		Message:   fmt.Sprintf("no value bound for parameter '%s'", name),
		Query:     query,
		Parameter: name,
		Details: map[string]interface{}{
			"parameter": name,
		},
		StackTrace: captureStackTrace(),
		Timestamp:  time.Now(),
	}
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
		frames = append(frames, fmt.Sprintf("%s (%s:%d)", frame.Function, frame.File, frame.Line))
		if !more {
			break
		}
	}

	return frames
}
