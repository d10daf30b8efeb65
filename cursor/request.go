package cursor

import (
	"net/http"
	"net/url"

	"github.com/cockroachdb/errors"

	"github.com/dan-strohschein/aql-driver/protocol"
	"github.com/dan-strohschein/aql-driver/query"
	"github.com/dan-strohschein/aql-driver/transport"
)

// CollectionStatement reads every document of the collection bound to @collection.
const CollectionStatement = "FOR doc IN @collection RETURN doc"

// Cursor kinds used in logs and metrics.
const (
	KindStatement  = "statement"
	KindCollection = "collection"
	KindExport     = "export"
)

// RequestBuilder produces the initial request of a cursor. Follow-up
// fetch and delete requests go to Route()/{id}.
type RequestBuilder interface {
	// Kind names the cursor family for logs and metrics
	Kind() string

	// Route is the base path of the cursor family
	Route() string

	// Build returns the create request
	Build(codec protocol.Codec) (*transport.Request, error)
}

// StatementRequest creates a cursor over the rows of a statement.
type StatementRequest struct {
	Statement *query.Statement
	Options   QueryOptions

	// ServerSideBinding sends the template and bind variables instead of
	// resolved query text
	ServerSideBinding bool
}

// Kind implements RequestBuilder
func (r *StatementRequest) Kind() string { return KindStatement }

// Route implements RequestBuilder
func (r *StatementRequest) Route() string { return protocol.PathCursor }

// Build implements RequestBuilder
func (r *StatementRequest) Build(codec protocol.Codec) (*transport.Request, error) {
	if r.Statement == nil {
		return nil, errors.New("statement request has no statement")
	}
	return buildStatementRequest(codec, r.Statement, r.Options, r.ServerSideBinding)
}

func buildStatementRequest(codec protocol.Codec, stmt *query.Statement, opts QueryOptions, serverSide bool) (*transport.Request, error) {
	opts, err := opts.WithDefaults()
	if err != nil {
		return nil, err
	}

	body := &protocol.CursorRequest{
		BindVars:    map[string]interface{}{},
		Cache:       opts.Cache,
		MemoryLimit: opts.MemoryLimit,
		TTL:         opts.TTL,
		BatchSize:   opts.BatchSize,
		Count:       opts.Count,
	}
	if serverSide {
		body.Query, body.BindVars, err = stmt.ServerSide()
	} else {
		body.Query, err = stmt.ToAQL()
	}
	if err != nil {
		return nil, err
	}

	data, err := codec.Encode(body)
	if err != nil {
		return nil, err
	}
	return &transport.Request{Method: http.MethodPost, Path: protocol.PathCursor, Body: data}, nil
}

// CollectionRequest creates a cursor over every document of a collection.
type CollectionRequest struct {
	Collection string
	Options    QueryOptions
}

// Kind implements RequestBuilder
func (r *CollectionRequest) Kind() string { return KindCollection }

// Route implements RequestBuilder
func (r *CollectionRequest) Route() string { return protocol.PathCursor }

// Build implements RequestBuilder
func (r *CollectionRequest) Build(codec protocol.Codec) (*transport.Request, error) {
	stmt := query.NewStatement(CollectionStatement)
	if _, err := stmt.BindValue(query.CollectionPlaceholder, r.Collection); err != nil {
		return nil, err
	}
	return buildStatementRequest(codec, stmt, r.Options, false)
}

// ExportRequest creates a bulk export cursor. It sends options only.
type ExportRequest struct {
	Collection string
	Options    ExportOptions
}

// Kind implements RequestBuilder
func (r *ExportRequest) Kind() string { return KindExport }

// Route implements RequestBuilder
func (r *ExportRequest) Route() string { return protocol.PathExport }

// Build implements RequestBuilder
func (r *ExportRequest) Build(codec protocol.Codec) (*transport.Request, error) {
	if r.Collection == "" {
		return nil, query.ErrInvalidParameter("collection", r.Collection, "collection name is empty")
	}
	opts, err := r.Options.WithDefaults()
	if err != nil {
		return nil, err
	}

	data, err := codec.Encode(&protocol.ExportRequest{
		Flush:     *opts.Flush,
		FlushWait: opts.FlushWait,
		Count:     *opts.Count,
		Limit:     opts.Limit,
		TTL:       opts.TTL,
		BatchSize: opts.BatchSize,
		Restrict:  opts.Restrict,
	})
	if err != nil {
		return nil, err
	}

	return &transport.Request{
		Method: http.MethodPost,
		Path:   protocol.PathExport,
		Query:  url.Values{"collection": []string{r.Collection}},
		Body:   data,
	}, nil
}
