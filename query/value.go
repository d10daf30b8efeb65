package query

import (
	"io"
	"math"
	"reflect"
	"regexp"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"
)

// Kind identifies the variant held by a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindIdentifier
	KindDocument
)

// String returns the kind name
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "NULL"
	case KindBool:
		return "BOOL"
	case KindInt:
		return "INT"
	case KindFloat:
		return "FLOAT"
	case KindString:
		return "STRING"
	case KindIdentifier:
		return "IDENTIFIER"
	case KindDocument:
		return "DOCUMENT"
	default:
		return "UNKNOWN"
	}
}

// Value is a bind value classified once, when it is bound. Its Kind alone
// decides how it is written into query text.
type Value struct {
	kind Kind
	b    bool
	i    int64
	f    float64
	s    string // string, identifier name or encoded document
}

var identifierPattern = regexp.MustCompile(`^[A-Za-z0-9_][A-Za-z0-9_\-]*$`)

var stringEscaper = strings.NewReplacer(`\`, `\\`, `'`, `\'`)

// Null returns the null value.
func Null() Value { return Value{kind: KindNull} }

// Bool returns a boolean value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Int returns an integer value.
func Int(i int64) Value { return Value{kind: KindInt, i: i} }

// Float returns a float value. Non-finite floats are rejected when bound.
func Float(f float64) Value { return Value{kind: KindFloat, f: f} }

// String returns a string value, written as a quoted literal.
func String(s string) Value { return Value{kind: KindString, s: s} }

// Identifier returns a raw identifier, written unquoted. Use it for
// collection and graph names.
func Identifier(name string) Value { return Value{kind: KindIdentifier, s: name} }

// Document encodes a slice, array or string-keyed map as a JSON literal.
func Document(v interface{}) (Value, error) {
	rv := reflect.ValueOf(v)
	if !rv.IsValid() {
		return Value{}, ErrInvalidParameter("", v, "document is nil")
	}
	switch rv.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map:
	default:
		return Value{}, ErrInvalidParameter("", v, "document must be an array or object")
	}
	return classify("", v)
}

// ValueOf classifies v as a Value.
func ValueOf(v interface{}) (Value, error) {
	return classify("", v)
}

// Kind returns the variant.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v is null.
func (v Value) IsNull() bool { return v.kind == KindNull }

// Literal renders v as query text.
func (v Value) Literal() string {
	switch v.kind {
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindFloat:
		return formatFloat(v.f)
	case KindString:
		return "'" + stringEscaper.Replace(v.s) + "'"
	case KindIdentifier, KindDocument:
		return v.s
	default:
		return "null"
	}
}

// Interface returns v as a JSON-native value for server-side binding.
func (v Value) Interface() interface{} {
	switch v.kind {
	case KindBool:
		return v.b
	case KindInt:
		return v.i
	case KindFloat:
		return v.f
	case KindString, KindIdentifier:
		return v.s
	case KindDocument:
		return json.RawMessage(v.s)
	default:
		return nil
	}
}

// String implements fmt.Stringer.
func (v Value) String() string {
	return v.Literal()
}

func formatFloat(f float64) string {
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

// classify turns a Go value into a Value, rejecting anything that is not a
// primitive or a document made of primitives.
func classify(name string, v interface{}) (Value, error) {
	switch x := v.(type) {
	case nil:
		return Null(), nil
	case Value:
		return validateValue(name, x)
	case bool:
		return Bool(x), nil
	case int:
		return Int(int64(x)), nil
	case int8:
		return Int(int64(x)), nil
	case int16:
		return Int(int64(x)), nil
	case int32:
		return Int(int64(x)), nil
	case int64:
		return Int(x), nil
	case uint:
		return uintValue(name, uint64(x))
	case uint8:
		return Int(int64(x)), nil
	case uint16:
		return Int(int64(x)), nil
	case uint32:
		return Int(int64(x)), nil
	case uint64:
		return uintValue(name, x)
	case float32:
		return floatValue(name, float64(x))
	case float64:
		return floatValue(name, x)
	case string:
		return String(x), nil
	case json.RawMessage:
		if !json.Valid(x) {
			return Value{}, ErrInvalidParameter(name, v, "raw message is not valid JSON")
		}
		return Value{kind: KindDocument, s: string(x)}, nil
	case io.Closer:
		return Value{}, ErrInvalidParameter(name, v, "resources cannot be bound")
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map:
		tree, err := normalize(name, rv)
		if err != nil {
			return Value{}, err
		}
		encoded, err := json.Marshal(tree)
		if err != nil {
			inv := ErrInvalidParameter(name, v, "document cannot be encoded")
			inv.Cause = err
			return Value{}, inv
		}
		return Value{kind: KindDocument, s: string(encoded)}, nil
	default:
		return Value{}, ErrInvalidParameter(name, v, "unsupported type "+rv.Kind().String())
	}
}

func validateValue(name string, v Value) (Value, error) {
	switch v.kind {
	case KindFloat:
		return floatValue(name, v.f)
	case KindIdentifier:
		if !identifierPattern.MatchString(v.s) {
			return Value{}, ErrInvalidParameter(name, v.s, "invalid identifier")
		}
	}
	return v, nil
}

func uintValue(name string, u uint64) (Value, error) {
	if u > math.MaxInt64 {
		return Value{}, ErrInvalidParameter(name, u, "integer overflows int64")
	}
	return Int(int64(u)), nil
}

func floatValue(name string, f float64) (Value, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return Value{}, ErrInvalidParameter(name, f, "float is not finite")
	}
	return Float(f), nil
}

// normalize walks a document and rebuilds it from primitives only.
func normalize(name string, rv reflect.Value) (interface{}, error) {
	switch rv.Kind() {
	case reflect.Interface:
		if rv.IsNil() {
			return nil, nil
		}
		return normalize(name, rv.Elem())
	case reflect.Slice:
		if rv.IsNil() {
			return []interface{}{}, nil
		}
		fallthrough
	case reflect.Array:
		out := make([]interface{}, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			item, err := normalize(name, rv.Index(i))
			if err != nil {
				return nil, err
			}
			out[i] = item
		}
		return out, nil
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, ErrInvalidParameter(name, rv.Interface(), "document keys must be strings")
		}
		out := make(map[string]interface{}, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			item, err := normalize(name, iter.Value())
			if err != nil {
				return nil, err
			}
			out[iter.Key().String()] = item
		}
		return out, nil
	}

	leaf, err := classify(name, rv.Interface())
	if err != nil {
		return nil, err
	}
	switch leaf.kind {
	case KindDocument:
		return json.RawMessage(leaf.s), nil
	case KindIdentifier:
		return nil, ErrInvalidParameter(name, leaf.s, "identifiers cannot be nested in documents")
	}
	return leaf.Interface(), nil
}

// identifierOf converts a primitive into a raw identifier.
func identifierOf(name string, v interface{}) (Value, error) {
	val, err := classify(name, v)
	if err != nil {
		return Value{}, err
	}
	var ident string
	switch val.kind {
	case KindIdentifier:
		return val, nil
	case KindString:
		ident = val.s
	case KindInt, KindBool:
		ident = val.Literal()
	default:
		return Value{}, ErrInvalidParameter(name, v, "identifier must be a string")
	}
	return validateValue(name, Identifier(ident))
}
