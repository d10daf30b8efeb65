package cursor

import (
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	json "github.com/goccy/go-json"

	"github.com/dan-strohschein/aql-driver/protocol"
)

// CursorError reports a failed cursor operation. Server failures keep the
// server's message and error number.
type CursorError struct {
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
func (e *CursorError) Error() string {
	return e.FormatError(false)
}

// FormatError formats the error based on debug mode.
func (e *CursorError) FormatError(debugMode bool) string {
	if !debugMode {
		msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
		if e.ErrorNum != 0 {
			msg = fmt.Sprintf("%s (errorNum %d)", msg, e.ErrorNum)
		}
		var serverErr *protocol.ServerError
		if e.Cause != nil && !errors.As(e.Cause, &serverErr) {
			msg = fmt.Sprintf("%s (caused by: %s)", msg, e.Cause.Error())
		}
		return msg
	}

	errorData := map[string]interface{}{
		"code":    e.Code,
		"type":    e.Type,
		"message": e.Message,
	}

	if e.ErrorNum != 0 {
		errorData["errorNum"] = e.ErrorNum
	}

	if e.StatusCode != 0 {
		errorData["statusCode"] = e.StatusCode
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
func (e *CursorError) Unwrap() error {
	return e.Cause
}

// ErrCursorIDNull is returned by Fetch when the cursor holds no id.
func ErrCursorIDNull() *CursorError {
	return &CursorError{
		Code:       "E_CURSOR_ID_NULL",
		Type:       "CURSOR_ERROR",
		Message:    "Cursor id is null",
		StackTrace: captureStackTrace(),
		Timestamp:  time.Now(),
	}
}

// ErrInvalidState creates an error for an operation attempted in the wrong state.
func ErrInvalidState(operation string, actual State) *CursorError {
	return &CursorError{
		Code:    "E_INVALID_STATE",
		Type:    "STATE_ERROR",
		Message: fmt.Sprintf("cannot %s cursor in %s state", operation, actual),
		Details: map[string]interface{}{
			"operation":    operation,
			"currentState": actual.String(),
		},
		StackTrace: captureStackTrace(),
		Timestamp:  time.Now(),
	}
}

// ErrPositionOutOfRange is returned by Current past the buffered rows.
func ErrPositionOutOfRange(position, buffered int) *CursorError {
	return &CursorError{
		Code:    "E_POSITION_OUT_OF_RANGE",
		Type:    "CURSOR_ERROR",
		Message: fmt.Sprintf("position %d is outside the %d buffered rows", position, buffered),
		Details: map[string]interface{}{
			"position": position,
			"buffered": buffered,
		},
		Timestamp: time.Now(),
	}
}

// ErrRowMapping wraps a row mapper failure.
func ErrRowMapping(position int, cause error) *CursorError {
	return &CursorError{
		Code:    "E_ROW_MAPPING",
		Type:    "CURSOR_ERROR",
		Message: fmt.Sprintf("cannot map row %d", position),
		Details: map[string]interface{}{
			"position": position,
		},
		Cause:     cause,
		Timestamp: time.Now(),
	}
}

// ErrRequestFailed wraps a failed create, fetch or delete round trip.
func ErrRequestFailed(operation string, cause error) *CursorError {
	e := &CursorError{
		Code:    "E_CURSOR_" + strings.ToUpper(operation) + "_FAILED",
		Type:    "CURSOR_ERROR",
		Message: fmt.Sprintf("cursor %s failed", operation),
		Details: map[string]interface{}{
			"operation": operation,
		},
		Cause:      cause,
		StackTrace: captureStackTrace(),
		Timestamp:  time.Now(),
	}

	var serverErr *protocol.ServerError
	if errors.As(cause, &serverErr) {
		e.Message = serverErr.Message
		e.ErrorNum = serverErr.ErrorNum
		e.StatusCode = serverErr.StatusCode
	}
	return e
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
