// Package settings holds the host-provided settings snapshot consumed by the
// daemon configuration writer and the launch step.
package settings

import (
	"fmt"
	"maps"
	"math"
	"strconv"
	"strings"

	ferrors "git.home.luguber.info/inful/stepd-host/internal/foundation/errors"
)

// Setting keys understood by the adapter.
const (
	KeyJerk     = "sjerk"
	KeyFormat   = "format"
	KeyTickRate = "tickrate"
	KeyBaud     = "baud"
	KeyPort     = "port"
	KeyBedX     = "bedx"
	KeyBedY     = "bedy"
)

// Defaults returns the plugin defaults applied when a key is absent.
func Defaults() map[string]any {
	return map[string]any{
		KeyJerk:     "1e8, 1e7, 1e6, 1e10",
		KeyFormat:   "SP_4x2_256",
		KeyTickRate: 61440,
		KeyBaud:     500000,
		KeyPort:     "/dev/ttyUSB0",
		KeyBedX:     200,
		KeyBedY:     200,
	}
}

// Settings is an immutable snapshot of the host settings mapping.
// The zero value is an empty snapshot where every lookup falls back to Defaults.
type Settings struct {
	values map[string]any
}

// Snapshot captures a copy of m. Later changes to m are not observed.
func Snapshot(m map[string]any) Settings {
	return Settings{values: maps.Clone(m)}
}

// WithDefaults captures m with Defaults filled in for missing keys.
func WithDefaults(m map[string]any) Settings {
	merged := Defaults()
	maps.Copy(merged, m)
	return Settings{values: merged}
}

// Lookup returns the raw value for key as captured.
func (s Settings) Lookup(key string) (any, bool) {
	v, ok := s.values[key]
	return v, ok
}

// Map returns a copy of the captured values.
func (s Settings) Map() map[string]any {
	return maps.Clone(s.values)
}

func (s Settings) value(key string) any {
	if v, ok := s.values[key]; ok && v != nil {
		return v
	}
	return Defaults()[key]
}

// String returns key as text, using the default when the key is absent.
func (s Settings) String(key string) string {
	v := s.value(key)
	if v == nil {
		return ""
	}
	if str, ok := v.(string); ok {
		return strings.TrimSpace(str)
	}
	return fmt.Sprint(v)
}

// Int returns key as an integer. Whole floats and numeric strings are accepted.
func (s Settings) Int(key string) (int, error) {
	switch v := s.value(key).(type) {
	case int:
		return v, nil
	case int64:
		if int64(int(v)) != v {
			return 0, fieldError(key, v, "out of range")
		}
		return int(v), nil
	case uint64:
		if v > math.MaxInt {
			return 0, fieldError(key, v, "out of range")
		}
		return int(v), nil
	case float64:
		return wholeNumber(key, v, v)
	case string:
		t := strings.TrimSpace(v)
		if n, err := strconv.Atoi(t); err == nil {
			return n, nil
		}
		f, err := strconv.ParseFloat(t, 64)
		if err != nil {
			return 0, fieldError(key, v, "not an integer")
		}
		return wholeNumber(key, v, f)
	case nil:
		return 0, fieldError(key, nil, "missing")
	default:
		return 0, fieldError(key, v, "unsupported type")
	}
}

func wholeNumber(key string, raw any, f float64) (int, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, fieldError(key, raw, "not a whole number")
	}
	if f < math.MinInt || f >= -math.MinInt {
		return 0, fieldError(key, raw, "out of range")
	}
	return int(f), nil
}

// Float returns key as a float64.
func (s Settings) Float(key string) (float64, error) {
	switch v := s.value(key).(type) {
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case uint64:
		return float64(v), nil
	case float64:
		if !finite(v) {
			return 0, fieldError(key, v, "not a finite number")
		}
		return v, nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, fieldError(key, v, "not a number")
		}
		if !finite(f) {
			return 0, fieldError(key, v, "not a finite number")
		}
		return f, nil
	case nil:
		return 0, fieldError(key, nil, "missing")
	default:
		return 0, fieldError(key, v, "unsupported type")
	}
}

// FloatList returns key as an ordered list of numbers. A string value is split on commas;
// a YAML sequence is accepted element-wise and a single number is a one-element list.
func (s Settings) FloatList(key string) ([]float64, error) {
	switch v := s.value(key).(type) {
	case string:
		return ParseFloatList(key, v)
	case int, int64, uint64, float64:
		f, err := s.Float(key)
		if err != nil {
			return nil, err
		}
		return []float64{f}, nil
	case []any:
		out := make([]float64, 0, len(v))
		for i, item := range v {
			f, err := Snapshot(map[string]any{key: item}).Float(key)
			if err != nil {
				if ce, ok := ferrors.AsClassified(err); ok {
					return nil, ce.WithContext("index", i)
				}
				return nil, err
			}
			out = append(out, f)
		}
		return out, nil
	case []float64:
		for i, f := range v {
			if !finite(f) {
				return nil, fieldError(key, v, fmt.Sprintf("element %d is not a finite number", i))
			}
		}
		return append([]float64(nil), v...), nil
	case nil:
		return nil, fieldError(key, nil, "missing")
	default:
		return nil, fieldError(key, v, "unsupported type")
	}
}

// ParseFloatList parses comma separated numeric text such as "1e8, 1e7".
// Empty elements are rejected.
func ParseFloatList(field, text string) ([]float64, error) {
	parts := strings.Split(text, ",")
	out := make([]float64, 0, len(parts))
	for i, p := range parts {
		p = strings.TrimSpace(p)
		f, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return nil, ferrors.ConfigError(fmt.Sprintf("malformed number %q at position %d in %s", p, i, field)).
				WithCause(err).
				WithContext("field", field).
				WithContext("value", text).
				Build()
		}
		if !finite(f) {
			return nil, ferrors.ConfigError(fmt.Sprintf("non-finite number %q at position %d in %s", p, i, field)).
				WithContext("field", field).
				WithContext("value", text).
				Build()
		}
		out = append(out, f)
	}
	return out, nil
}

// finite rejects NaN and the infinities, which JSON cannot carry.
func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

func fieldError(key string, v any, reason string) error {
	return ferrors.ConfigError(fmt.Sprintf("invalid setting %s: %s", key, reason)).
		WithContext("field", key).
		WithContext("value", v).
		Build()
}
