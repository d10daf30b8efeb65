// Package mapper wraps raw cursor rows of a collection into documents and edges.
package mapper

import (
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	json "github.com/goccy/go-json"

	"github.com/dan-strohschein/aql-driver/cursor"
)

// System attribute names.
const (
	AttrKey  = "_key"
	AttrID   = "_id"
	AttrRev  = "_rev"
	AttrFrom = "_from"
	AttrTo   = "_to"
)

// CollectionType distinguishes document and edge collections.
type CollectionType int

const (
	CollectionTypeDocument CollectionType = 2
	CollectionTypeEdge     CollectionType = 3
)

// String returns the collection type name
func (t CollectionType) String() string {
	switch t {
	case CollectionTypeDocument:
		return "document"
	case CollectionTypeEdge:
		return "edge"
	default:
		return "unknown"
	}
}

// Row is a document read from a collection: a *Document or an *Edge.
type Row interface {
	Collection() string
	Key() string
	ID() string
	Rev() string
	Get(name string) (interface{}, bool)
	Attributes() map[string]interface{}
	IsEdge() bool
}

// Document is a row of a document collection.
type Document struct {
	collection string
	attrs      map[string]interface{}
}

// NewDocument wraps decoded attributes read from collection.
func NewDocument(collection string, attrs map[string]interface{}) *Document {
	if attrs == nil {
		attrs = map[string]interface{}{}
	}
	return &Document{collection: collection, attrs: attrs}
}

// Collection returns the owning collection name
func (d *Document) Collection() string { return d.collection }

// Key returns the _key attribute
func (d *Document) Key() string { return d.str(AttrKey) }

// ID returns the _id attribute
func (d *Document) ID() string { return d.str(AttrID) }

// Rev returns the _rev attribute
func (d *Document) Rev() string { return d.str(AttrRev) }

// IsEdge reports false for documents
func (d *Document) IsEdge() bool { return false }

// Get returns an attribute
func (d *Document) Get(name string) (interface{}, bool) {
	v, ok := d.attrs[name]
	return v, ok
}

// Attributes returns every attribute, system attributes included.
func (d *Document) Attributes() map[string]interface{} {
	return d.attrs
}

// UserAttributes returns the attributes whose names do not start with an underscore.
func (d *Document) UserAttributes() map[string]interface{} {
	out := make(map[string]interface{}, len(d.attrs))
	for k, v := range d.attrs {
		if !strings.HasPrefix(k, "_") {
			out[k] = v
		}
	}
	return out
}

// GetString returns an attribute coerced to a string
func (d *Document) GetString(name string) (string, error) {
	return ToString(d.attrs[name])
}

// GetInt returns an attribute coerced to an integer
func (d *Document) GetInt(name string) (int64, error) {
	return ToInt(d.attrs[name])
}

// GetFloat returns an attribute coerced to a float
func (d *Document) GetFloat(name string) (float64, error) {
	return ToFloat(d.attrs[name])
}

// GetBool returns an attribute coerced to a boolean
func (d *Document) GetBool(name string) (bool, error) {
	return ToBool(d.attrs[name])
}

// GetTime returns an attribute coerced to a time
func (d *Document) GetTime(name string) (time.Time, error) {
	return ToTime(d.attrs[name])
}

// Decode copies the attributes into v through JSON
func (d *Document) Decode(v interface{}) error {
	data, err := json.Marshal(d.attrs)
	if err != nil {
		return errors.Wrap(err, "encode document")
	}
	return errors.Wrap(json.Unmarshal(data, v), "decode document")
}

// MarshalJSON encodes the attributes
func (d *Document) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.attrs)
}

func (d *Document) str(name string) string {
	s, _ := d.attrs[name].(string)
	return s
}

// Edge is a row of an edge collection.
type Edge struct {
	*Document
}

// From returns the _from vertex id
func (e *Edge) From() string { return e.str(AttrFrom) }

// To returns the _to vertex id
func (e *Edge) To() string { return e.str(AttrTo) }

// IsEdge reports true for edges
func (e *Edge) IsEdge() bool { return true }

// NewRow wraps attrs as an *Edge for edge collections and a *Document otherwise.
func NewRow(collection string, kind CollectionType, attrs map[string]interface{}) (Row, error) {
	doc := NewDocument(collection, attrs)
	if kind != CollectionTypeEdge {
		return doc, nil
	}
	edge := &Edge{Document: doc}
	if edge.From() == "" || edge.To() == "" {
		return nil, errors.Newf("edge %q in %s lacks _from or _to", edge.Key(), collection)
	}
	return edge, nil
}

// RowsOf maps raw cursor rows of collection to documents or edges.
func RowsOf(collection string, kind CollectionType) cursor.RowMapper[Row] {
	mapObject := cursor.MapRows()
	return func(raw json.RawMessage) (Row, error) {
		attrs, err := mapObject(raw)
		if err != nil {
			return nil, err
		}
		return NewRow(collection, kind, attrs)
	}
}
