package mapper

import (
	"math"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	json "github.com/goccy/go-json"
)

// Attribute coercions for decoded JSON values. Numbers arrive as float64
// (or json.Number), so integer accessors reject fractional values.

// ToString converts a scalar attribute to a string.
func ToString(value interface{}) (string, error) {
	switch v := value.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	case json.Number:
		return v.String(), nil
	case bool:
		return strconv.FormatBool(v), nil
	default:
		return "", errors.Newf("cannot convert %T to string", value)
	}
}

// ToInt converts a numeric or numeric-string attribute to an integer.
func ToInt(value interface{}) (int64, error) {
	switch v := value.(type) {
	case nil:
		return 0, errors.New("cannot convert nil to int")
	case float64:
		if v != math.Trunc(v) || v > math.MaxInt64 || v < math.MinInt64 {
			return 0, errors.Newf("cannot convert %v to int without loss", v)
		}
		return int64(v), nil
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case json.Number:
		i, err := v.Int64()
		if err != nil {
			return 0, errors.Wrapf(err, "cannot convert '%s' to int", v)
		}
		return i, nil
	case string:
		i, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, errors.Wrapf(err, "cannot convert '%s' to int", v)
		}
		return i, nil
	case bool:
		if v {
			return 1, nil
		}
		return 0, nil
	default:
		return 0, errors.Newf("cannot convert %T to int", value)
	}
}

// ToFloat converts a numeric or numeric-string attribute to a float.
func ToFloat(value interface{}) (float64, error) {
	switch v := value.(type) {
	case nil:
		return 0, errors.New("cannot convert nil to float")
	case float64:
		return v, nil
	case int64:
		return float64(v), nil
	case int:
		return float64(v), nil
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return 0, errors.Wrapf(err, "cannot convert '%s' to float", v)
		}
		return f, nil
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, errors.Wrapf(err, "cannot convert '%s' to float", v)
		}
		return f, nil
	default:
		return 0, errors.Newf("cannot convert %T to float", value)
	}
}

// ToBool converts an attribute to a boolean.
func ToBool(value interface{}) (bool, error) {
	switch v := value.(type) {
	case nil:
		return false, nil
	case bool:
		return v, nil
	case float64:
		return v != 0, nil
	case string:
		// Handle common boolean strings
		switch v {
		case "true", "1", "yes", "y", "on":
			return true, nil
		case "false", "0", "no", "n", "off", "":
			return false, nil
		default:
			return false, errors.Newf("cannot convert '%s' to boolean", v)
		}
	default:
		return false, errors.Newf("cannot convert %T to boolean", value)
	}
}

var timeFormats = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// ToTime converts an ISO 8601 string or a Unix timestamp in seconds to a time.
func ToTime(value interface{}) (time.Time, error) {
	switch v := value.(type) {
	case nil:
		return time.Time{}, errors.New("cannot convert nil to time")
	case string:
		for _, format := range timeFormats {
			if t, err := time.Parse(format, v); err == nil {
				return t, nil
			}
		}
		return time.Time{}, errors.Newf("cannot parse '%s' as time", v)
	case float64:
		sec, frac := math.Modf(v)
		return time.Unix(int64(sec), int64(frac*1e9)).UTC(), nil
	default:
		return time.Time{}, errors.Newf("cannot convert %T to time", value)
	}
}
