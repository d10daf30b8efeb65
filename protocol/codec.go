// Package protocol provides encoding/decoding for the query cursor HTTP API
package protocol

import (
	"bytes"
	"net/http"
	"strconv"

	"github.com/cockroachdb/errors"
	json "github.com/goccy/go-json"
)

// Codec handles encoding and decoding of protocol messages
type Codec interface {
	// Encode serializes a request body
	Encode(body interface{}) ([]byte, error)

	// Decode parses a JSON response body into v
	Decode(data []byte, v interface{}) error

	// DecodeCursor parses the response to a cursor create or fetch request
	DecodeCursor(data []byte) (*CursorResponse, error)

	// DecodeError builds a ServerError from a non-success response
	DecodeError(statusCode int, data []byte) *ServerError
}

// CursorID is the server-side cursor handle. The server sends it as a
// string, older servers as a bare number; both decode to the same value.
type CursorID string

// UnmarshalJSON accepts a JSON string, number or null.
func (id *CursorID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}

	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return errors.Wrap(err, "decode cursor id")
		}
		*id = CursorID(s)
		return nil
	}

	n, err := strconv.ParseUint(string(data), 10, 64)
	if err != nil {
		return errors.Wrapf(err, "invalid cursor id %s", data)
	}
	*id = CursorID(strconv.FormatUint(n, 10))
	return nil
}

// CursorResponse is the body returned by POST /_api/cursor, PUT /_api/cursor/{id}
// and their export equivalents.
type CursorResponse struct {
	Error   bool                   `json:"error"`
	Code    int                    `json:"code"`
	Result  []json.RawMessage      `json:"result"`
	HasMore bool                   `json:"hasMore"`
	ID      CursorID               `json:"id,omitempty"`
	Count   *int                   `json:"count,omitempty"`
	Cached  bool                   `json:"cached"`
	Extra   map[string]interface{} `json:"extra,omitempty"`
}

// ErrorResponse is the body the server sends with any non-success status.
type ErrorResponse struct {
	Error        bool   `json:"error"`
	Code         int    `json:"code"`
	ErrorNum     int    `json:"errorNum"`
	ErrorMessage string `json:"errorMessage"`
}

// CursorRequest is the body of a statement-backed cursor create request.
type CursorRequest struct {
	Query       string                 `json:"query"`
	BindVars    map[string]interface{} `json:"bindVars"`
	Cache       bool                   `json:"cache"`
	MemoryLimit int64                  `json:"memoryLimit"`
	TTL         int                    `json:"ttl"`
	BatchSize   int                    `json:"batchSize,omitempty"`
	Count       bool                   `json:"count,omitempty"`
}

// ExportRequest is the body of an export cursor create request. It carries
// no query text.
type ExportRequest struct {
	Flush     bool            `json:"flush"`
	FlushWait int             `json:"flushWait"`
	Count     bool            `json:"count"`
	Limit     int             `json:"limit"`
	TTL       int             `json:"ttl"`
	BatchSize int             `json:"batchSize,omitempty"`
	Restrict  *ExportRestrict `json:"restrict,omitempty"`
}

// ExportRestrict limits the attributes returned by an export.
type ExportRestrict struct {
	Type   string   `json:"type"` // "include" or "exclude"
	Fields []string `json:"fields"`
}

// CollectionResponse describes a collection as returned by GET /_api/collection/{name}.
type CollectionResponse struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Type     int    `json:"type"`
	Status   int    `json:"status"`
	IsSystem bool   `json:"isSystem"`
}

// VersionResponse is returned by GET /_api/version.
type VersionResponse struct {
	Server  string `json:"server"`
	Version string `json:"version"`
	License string `json:"license,omitempty"`
}

// JSONCodec implements Codec with goccy/go-json
type JSONCodec struct{}

// NewCodec creates a new protocol codec
func NewCodec() Codec {
	return &JSONCodec{}
}

// Encode serializes a request body
func (c *JSONCodec) Encode(body interface{}) ([]byte, error) {
	if body == nil {
		return nil, nil
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, errors.Wrap(err, "encode request body")
	}
	return data, nil
}

// Decode parses a JSON response body into v
func (c *JSONCodec) Decode(data []byte, v interface{}) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return errors.New("empty response data")
	}
	if err := json.Unmarshal(data, v); err != nil {
		return errors.Wrap(err, "decode response body")
	}
	return nil
}

// DecodeCursor parses a cursor create or fetch response
func (c *JSONCodec) DecodeCursor(data []byte) (*CursorResponse, error) {
	var resp CursorResponse
	if err := c.Decode(data, &resp); err != nil {
		return nil, err
	}
	if resp.Result == nil {
		resp.Result = []json.RawMessage{}
	}
	return &resp, nil
}

// DecodeError builds a ServerError from a non-success response. Bodies that
// are not JSON keep the HTTP status text as message.
func (c *JSONCodec) DecodeError(statusCode int, data []byte) *ServerError {
	var resp ErrorResponse
	if len(bytes.TrimSpace(data)) > 0 && json.Unmarshal(data, &resp) == nil && resp.ErrorMessage != "" {
		return NewServerError(statusCode, resp.ErrorNum, resp.ErrorMessage)
	}

	message := http.StatusText(statusCode)
	if message == "" {
		message = "unexpected server response"
	}
	return NewServerError(statusCode, resp.ErrorNum, message)
}
