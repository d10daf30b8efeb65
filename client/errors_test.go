package client

import (
	"errors"
	"net/http"
	"strings"
	"testing"

	json "github.com/goccy/go-json"

	"github.com/dan-strohschein/aql-driver/protocol"
	"github.com/dan-strohschein/aql-driver/query"
)

func TestConnectionError(t *testing.T) {
	err := &ConnectionError{
		Code:    "INVALID_ENDPOINT",
		Type:    "CONNECTION_ERROR",
		Message: "endpoint is not a valid URL",
		Details: map[string]interface{}{
			"endpoint": "http://[::1",
		},
	}

	errStr := err.Error()

	// Should be valid JSON
	var parsed map[string]interface{}
	if jsonErr := json.Unmarshal([]byte(errStr), &parsed); jsonErr != nil {
		t.Fatalf("error should be valid JSON: %v", jsonErr)
	}

	if parsed["code"] != "INVALID_ENDPOINT" {
		t.Errorf("expected code=INVALID_ENDPOINT, got %v", parsed["code"])
	}

	if parsed["type"] != "CONNECTION_ERROR" {
		t.Errorf("expected type=CONNECTION_ERROR, got %v", parsed["type"])
	}

	if parsed["message"] != "endpoint is not a valid URL" {
		t.Errorf("expected message='endpoint is not a valid URL', got %v", parsed["message"])
	}
}

func TestConnectionErrorWithCause(t *testing.T) {
	cause := &ConnectionError{
		Code:    "TLS_CA_LOAD_FAILED",
		Type:    "CONNECTION_ERROR",
		Message: "failed to read CA file",
		Details: map[string]interface{}{},
	}

	err := &ConnectionError{
		Code:    "INVALID_ENDPOINT",
		Type:    "CONNECTION_ERROR",
		Message: "endpoint is not a valid URL",
		Details: map[string]interface{}{},
		Cause:   cause,
	}

	errStr := err.Error()

	// Should contain cause
	if !strings.Contains(errStr, "cause") {
		t.Errorf("error should contain cause, got: %s", errStr)
	}

	var parsed map[string]interface{}
	json.Unmarshal([]byte(errStr), &parsed)

	if parsed["cause"] == nil {
		t.Error("expected cause field in JSON")
	}
}

func TestConnectionErrorUnwrap(t *testing.T) {
	cause := &ConnectionError{
		Code:    "TLS_CA_LOAD_FAILED",
		Type:    "CONNECTION_ERROR",
		Message: "failed to read CA file",
		Details: map[string]interface{}{},
	}

	err := &ConnectionError{
		Code:    "INVALID_ENDPOINT",
		Type:    "CONNECTION_ERROR",
		Message: "endpoint is not a valid URL",
		Details: map[string]interface{}{},
		Cause:   cause,
	}

	unwrapped := err.Unwrap()

	if unwrapped != cause {
		t.Errorf("expected unwrapped to be cause, got %v", unwrapped)
	}
}

func TestProtocolError(t *testing.T) {
	err := errMalformedResponse(protocol.PathVersion, errors.New("unexpected end of JSON input"))

	if err.Code != "MALFORMED_RESPONSE" {
		t.Errorf("expected code=MALFORMED_RESPONSE, got %s", err.Code)
	}

	expected := "MALFORMED_RESPONSE: malformed response from /_api/version (caused by: unexpected end of JSON input)"
	if err.Error() != expected {
		t.Errorf("expected %q, got %q", expected, err.Error())
	}

	var parsed map[string]interface{}
	if jsonErr := json.Unmarshal([]byte(err.FormatError(true)), &parsed); jsonErr != nil {
		t.Fatalf("debug output should be valid JSON: %v", jsonErr)
	}
	details := parsed["details"].(map[string]interface{})
	if details["path"] != protocol.PathVersion {
		t.Errorf("expected path detail, got %v", details["path"])
	}
}

func TestErrCollectionNotFound(t *testing.T) {
	cause := protocol.NewServerError(http.StatusNotFound, protocol.ErrorNumDataSourceNotFound, "collection or view not found")
	err := ErrCollectionNotFound("users", cause)

	if !err.IsNotFound() {
		t.Error("expected IsNotFound")
	}
	if err.StatusCode != http.StatusNotFound {
		t.Errorf("expected status 404, got %d", err.StatusCode)
	}
	if !strings.Contains(err.Error(), "collection 'users' doesn't exist") {
		t.Errorf("unexpected message: %s", err.Error())
	}

	var serverErr *protocol.ServerError
	if !errors.As(err, &serverErr) {
		t.Error("expected server error in the chain")
	}
}

func TestErrCollectionLookup(t *testing.T) {
	cause := protocol.NewServerError(http.StatusForbidden, 11, "not authorized to execute this request")
	err := ErrCollectionLookup("users", cause)

	if err.IsNotFound() {
		t.Error("forbidden lookup must not report not found")
	}
	if err.Message != "not authorized to execute this request" || err.ErrorNum != 11 {
		t.Errorf("expected server message and errorNum, got %q %d", err.Message, err.ErrorNum)
	}

	invalid := ErrCollectionLookup("", query.ErrInvalidParameter("collection", "", "collection name is empty"))
	var paramErr *query.InvalidParameterError
	if !errors.As(invalid, &paramErr) {
		t.Errorf("expected invalid parameter cause, got %v", invalid.Cause)
	}
	if invalid.Message != "failed to look up collection ''" {
		t.Errorf("unexpected message: %s", invalid.Message)
	}
}

func TestErrClientClosed(t *testing.T) {
	err := ErrClientClosed()
	if err.Code != "CLIENT_CLOSED" {
		t.Errorf("expected code=CLIENT_CLOSED, got %s", err.Code)
	}
	if err.GoroutineID <= 0 {
		t.Error("expected goroutine id")
	}
}
