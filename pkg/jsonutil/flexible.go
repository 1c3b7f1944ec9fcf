// Package jsonutil coerces loosely-typed decoded values into Go scalars.
// Metadata payloads arrive from JSON (float64, json.Number) and YAML (int,
// float64) decoders, and older backends send numbers and booleans as strings.
package jsonutil

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// FlexibleString converts a decoded value to a string, handling cases where
// numbers or booleans are sent instead of strings. Returns false for
// nil, objects and arrays.
func FlexibleString(v any) (string, bool) {
	switch val := v.(type) {
	case nil:
		return "", false
	case string:
		return val, true
	case json.Number:
		return val.String(), true
	case bool:
		return strconv.FormatBool(val), true
	case float64:
		if val == math.Trunc(val) && math.Abs(val) < 1e18 {
			return strconv.FormatInt(int64(val), 10), true
		}
		return strconv.FormatFloat(val, 'g', -1, 64), true
	case float32:
		return FlexibleString(float64(val))
	case int, int32, int64, uint, uint32, uint64:
		return fmt.Sprintf("%d", val), true
	default:
		return "", false
	}
}

// FlexibleInt64 converts a decoded value to an int64. Fractional values are
// truncated. Numeric strings are accepted.
func FlexibleInt64(v any) (int64, bool) {
	switch val := v.(type) {
	case int:
		return int64(val), true
	case int32:
		return int64(val), true
	case int64:
		return val, true
	case uint:
		return int64(val), true
	case uint32:
		return int64(val), true
	case uint64:
		return int64(val), true
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return i, true
		}
		f, err := val.Float64()
		if err != nil {
			return 0, false
		}
		return int64(f), true
	case string:
		s := strings.TrimSpace(val)
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return i, true
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false
		}
		return int64(f), true
	default:
		f, ok := FlexibleFloat64(v)
		if !ok {
			return 0, false
		}
		return int64(f), true
	}
}

// FlexibleFloat64 converts a decoded value to a float64.
// NaN and infinities are rejected.
func FlexibleFloat64(v any) (float64, bool) {
	var f float64
	switch val := v.(type) {
	case float64:
		f = val
	case float32:
		f = float64(val)
	case int:
		f = float64(val)
	case int32:
		f = float64(val)
	case int64:
		f = float64(val)
	case uint:
		f = float64(val)
	case uint32:
		f = float64(val)
	case uint64:
		f = float64(val)
	case json.Number:
		parsed, err := val.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// FlexibleBool converts a decoded value to a bool. Accepts booleans,
// numbers (non-zero is true) and the strings true/false, yes/no, y/n, 1/0.
func FlexibleBool(v any) (bool, bool) {
	switch val := v.(type) {
	case bool:
		return val, true
	case string:
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "true", "yes", "y", "1", "t":
			return true, true
		case "false", "no", "n", "0", "f":
			return false, true
		}
		return false, false
	default:
		f, ok := FlexibleFloat64(v)
		if !ok {
			return false, false
		}
		return f != 0, true
	}
}

// FlexibleTime parses RFC3339 strings (with or without fractional seconds),
// "2006-01-02 15:04:05" timestamps and Unix epoch seconds.
func FlexibleTime(v any) (time.Time, bool) {
	if s, ok := v.(string); ok {
		s = strings.TrimSpace(s)
		for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05", "2006-01-02T15:04:05"} {
			if t, err := time.Parse(layout, s); err == nil {
				return t.UTC(), true
			}
		}
		return time.Time{}, false
	}
	secs, ok := FlexibleInt64(v)
	if !ok || secs <= 0 {
		return time.Time{}, false
	}
	return time.Unix(secs, 0).UTC(), true
}
