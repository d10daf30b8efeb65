package testutil

import (
	"fmt"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/dan-strohschein/aql-driver/mapper"
)

// Factory generates documents with customizable options.
type Factory interface {
	// Build creates a single document
	Build(options ...Option) map[string]interface{}

	// BuildList creates multiple documents
	BuildList(count int, options ...Option) []map[string]interface{}
}

// Option is a function that modifies factory behavior.
type Option func(map[string]interface{})

// BaseFactory provides common factory functionality. Default values that
// are functions are called once per built document.
type BaseFactory struct {
	collection string
	defaults   map[string]interface{}
}

// NewBaseFactory creates a factory of documents stored in collection.
func NewBaseFactory(collection string, defaults map[string]interface{}) *BaseFactory {
	return &BaseFactory{
		collection: collection,
		defaults:   defaults,
	}
}

// Build creates a single document with optional overrides. _key defaults to
// a random uuid and _id follows from it.
func (f *BaseFactory) Build(options ...Option) map[string]interface{} {
	data := make(map[string]interface{}, len(f.defaults)+3)
	data[mapper.AttrKey] = uuid.NewString
	for k, v := range f.defaults {
		data[k] = v
	}

	for _, opt := range options {
		opt(data)
	}

	resolved := make(map[string]interface{}, len(data))
	for k, v := range data {
		switch fn := v.(type) {
		case func() int64:
			resolved[k] = fn()
		case func() int:
			resolved[k] = fn()
		case func() string:
			resolved[k] = fn()
		case func() bool:
			resolved[k] = fn()
		case func() time.Time:
			resolved[k] = fn().UTC().Format(time.RFC3339)
		default:
			resolved[k] = v
		}
	}
	if _, ok := resolved[mapper.AttrID]; !ok {
		resolved[mapper.AttrID] = fmt.Sprintf("%s/%v", f.collection, resolved[mapper.AttrKey])
	}
	if _, ok := resolved[mapper.AttrRev]; !ok {
		resolved[mapper.AttrRev] = "_" + RandomString(8)
	}
	return resolved
}

// BuildList creates multiple documents.
func (f *BaseFactory) BuildList(count int, options ...Option) []map[string]interface{} {
	results := make([]map[string]interface{}, count)
	for i := 0; i < count; i++ {
		results[i] = f.Build(options...)
	}
	return results
}

// Collection returns the collection the factory builds documents for
func (f *BaseFactory) Collection() string {
	return f.collection
}

// Common option builders

// WithField sets a specific field value.
func WithField(name string, value interface{}) Option {
	return func(data map[string]interface{}) {
		data[name] = value
	}
}

// WithFields sets multiple field values.
func WithFields(fields map[string]interface{}) Option {
	return func(data map[string]interface{}) {
		for k, v := range fields {
			data[k] = v
		}
	}
}

// WithKey sets _key.
func WithKey(key string) Option {
	return WithField(mapper.AttrKey, key)
}

// Sequence generators for unique values

var (
	emailSequence    uint64
	usernameSequence uint64
	idSequence       uint64
)

// SequenceEmail generates unique email addresses.
func SequenceEmail() string {
	n := atomic.AddUint64(&emailSequence, 1)
	return fmt.Sprintf("user%d@example.com", n)
}

// SequenceUsername generates unique usernames.
func SequenceUsername() string {
	n := atomic.AddUint64(&usernameSequence, 1)
	return fmt.Sprintf("user%d", n)
}

// SequenceID generates unique IDs.
func SequenceID() int64 {
	return int64(atomic.AddUint64(&idSequence, 1))
}

// Random generators for realistic test data

var rng = rand.New(rand.NewSource(time.Now().UnixNano()))

// RandomString generates a random string of the specified length.
func RandomString(length int) string {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	b := make([]byte, length)
	for i := range b {
		b[i] = charset[rng.Intn(len(charset))]
	}
	return string(b)
}

// RandomInt generates a random integer between min and max (inclusive).
func RandomInt(min, max int) int {
	return min + rng.Intn(max-min+1)
}

// RandomBool generates a random boolean.
func RandomBool() bool {
	return rng.Intn(2) == 1
}

// Built-in Factories

// NewUserFactory creates a factory of user documents.
func NewUserFactory(collection string) *BaseFactory {
	return NewBaseFactory(collection, map[string]interface{}{
		"email":      SequenceEmail,
		"username":   SequenceUsername,
		"name":       "Test User",
		"age":        func() int { return RandomInt(18, 90) },
		"created_at": time.Now,
		"active":     true,
	})
}

// EdgeFactory creates edge documents connecting two vertex collections.
type EdgeFactory struct {
	*BaseFactory
}

// NewEdgeFactory creates a factory of edges stored in collection.
func NewEdgeFactory(collection string) *EdgeFactory {
	return &EdgeFactory{
		BaseFactory: NewBaseFactory(collection, map[string]interface{}{
			"weight":     func() int { return RandomInt(1, 10) },
			"created_at": time.Now,
		}),
	}
}

// Connect builds an edge from one document _id to another.
func (f *EdgeFactory) Connect(from, to string, options ...Option) map[string]interface{} {
	options = append([]Option{
		WithField(mapper.AttrFrom, from),
		WithField(mapper.AttrTo, to),
	}, options...)
	return f.Build(options...)
}

// Chain builds edges linking ids in order: ids[0]->ids[1]->...
func (f *EdgeFactory) Chain(ids ...string) []map[string]interface{} {
	if len(ids) < 2 {
		return nil
	}
	edges := make([]map[string]interface{}, 0, len(ids)-1)
	for i := 1; i < len(ids); i++ {
		edges = append(edges, f.Connect(ids[i-1], ids[i]))
	}
	return edges
}

// NumberedRows builds n documents {"n": 0..n-1} for batch tests.
func NumberedRows(n int) []interface{} {
	rows := make([]interface{}, n)
	for i := range rows {
		rows[i] = map[string]interface{}{"n": i}
	}
	return rows
}

// BuildUsers builds count user documents in collection.
func BuildUsers(collection string, count int, options ...Option) []map[string]interface{} {
	return NewUserFactory(collection).BuildList(count, options...)
}

// IDs returns the _id of every document.
func IDs(docs []map[string]interface{}) []string {
	ids := make([]string, len(docs))
	for i, doc := range docs {
		ids[i], _ = doc[mapper.AttrID].(string)
	}
	return ids
}
