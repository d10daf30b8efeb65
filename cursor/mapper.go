package cursor

import (
	"github.com/cockroachdb/errors"
	json "github.com/goccy/go-json"
)

// RowMapper turns one raw result row into the caller-facing type.
type RowMapper[T any] func(raw json.RawMessage) (T, error)

// MapRows decodes each row as a JSON object.
func MapRows() RowMapper[map[string]interface{}] {
	return func(raw json.RawMessage) (map[string]interface{}, error) {
		var row map[string]interface{}
		if err := json.Unmarshal(raw, &row); err != nil {
			return nil, errors.Wrap(err, "row is not an object")
		}
		if row == nil {
			return nil, errors.New("row is null")
		}
		return row, nil
	}
}

// AnyRows decodes each row as any JSON value.
func AnyRows() RowMapper[interface{}] {
	return func(raw json.RawMessage) (interface{}, error) {
		var row interface{}
		if err := json.Unmarshal(raw, &row); err != nil {
			return nil, errors.Wrap(err, "decode row")
		}
		return row, nil
	}
}

// RawRows returns each row undecoded.
func RawRows() RowMapper[json.RawMessage] {
	return func(raw json.RawMessage) (json.RawMessage, error) {
		return raw, nil
	}
}

// DecodeRows unmarshals each row into a new T.
func DecodeRows[T any]() RowMapper[T] {
	return func(raw json.RawMessage) (T, error) {
		var row T
		if err := json.Unmarshal(raw, &row); err != nil {
			return row, errors.Wrapf(err, "decode row into %T", row)
		}
		return row, nil
	}
}
