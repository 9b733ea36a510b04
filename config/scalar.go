package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrNotNumeric is returned when a value cannot be coerced to a number.
var ErrNotNumeric = errors.New("not numeric")

// ErrNotInteger is returned when a numeric value has a fractional part.
var ErrNotInteger = errors.New("not an integer")

// Scalar is a loosely typed configuration value. It keeps what the document
// contained and is coerced on demand, so a bad value is reported where it
// is used rather than when the document is parsed.
type Scalar struct {
	value any
}

// Number wraps a float.
func Number(v float64) Scalar { return Scalar{value: v} }

// Int wraps an int.
func Int(v int) Scalar { return Scalar{value: int64(v)} }

// Text wraps a string.
func Text(s string) Scalar { return Scalar{value: s} }

// IsSet reports whether the document supplied a non-null value.
func (s Scalar) IsSet() bool { return s.value != nil }

// Raw returns the underlying value.
func (s Scalar) Raw() any { return s.value }

// String formats the raw value for messages.
func (s Scalar) String() string {
	switch v := s.value.(type) {
	case nil:
		return "null"
	case string:
		return strconv.Quote(v)
	default:
		return fmt.Sprint(v)
	}
}

// Float coerces the value to a float64. Numeric strings are accepted;
// booleans, empty strings and non-finite values are not.
func (s Scalar) Float() (float64, error) {
	var f float64
	switch v := s.value.(type) {
	case float64:
		f = v
	case int64:
		f = float64(v)
	case int:
		f = float64(v)
	case json.Number:
		parsed, err := v.Float64()
		if err != nil {
			return 0, fmt.Errorf("%s: %w", s, ErrNotNumeric)
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, fmt.Errorf("%s: %w", s, ErrNotNumeric)
		}
		f = parsed
	default:
		return 0, fmt.Errorf("%s: %w", s, ErrNotNumeric)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%s: %w", s, ErrNotNumeric)
	}
	return f, nil
}

// Int coerces the value to an integer. Whole floats such as 3.0 are accepted,
// fractional ones are not.
func (s Scalar) Int() (int, error) {
	if v, ok := s.value.(int64); ok {
		if v > math.MaxInt32 || v < math.MinInt32 {
			return 0, fmt.Errorf("%s: out of range: %w", s, ErrNotInteger)
		}
		return int(v), nil
	}
	f, err := s.Float()
	if err != nil {
		return 0, err
	}
	if f != math.Trunc(f) {
		return 0, fmt.Errorf("%s: %w", s, ErrNotInteger)
	}
	if f > math.MaxInt32 || f < math.MinInt32 {
		return 0, fmt.Errorf("%s: out of range: %w", s, ErrNotInteger)
	}
	return int(f), nil
}

// Text returns the value as a string if it is one.
func (s Scalar) Text() (string, bool) {
	v, ok := s.value.(string)
	return v, ok
}

// UnmarshalJSON keeps numbers as json.Number so integers survive intact.
func (s *Scalar) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return err
	}
	s.value = v
	return nil
}

// MarshalJSON writes the raw value back out.
func (s Scalar) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.value)
}

// UnmarshalYAML decodes scalar nodes by their resolved tag. Sequences and
// mappings are kept as-is and fail coercion later.
func (s *Scalar) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		var v any
		if err := node.Decode(&v); err != nil {
			return err
		}
		s.value = v
		return nil
	}
	switch node.ShortTag() {
	case "!!null":
		s.value = nil
	case "!!int":
		var i int64
		if err := node.Decode(&i); err != nil {
			return err
		}
		s.value = i
	case "!!float":
		var f float64
		if err := node.Decode(&f); err != nil {
			return err
		}
		s.value = f
	case "!!bool":
		var b bool
		if err := node.Decode(&b); err != nil {
			return err
		}
		s.value = b
	default:
		s.value = node.Value
	}
	return nil
}

// MarshalYAML writes the raw value back out.
func (s Scalar) MarshalYAML() (any, error) {
	if n, ok := s.value.(json.Number); ok {
		if i, err := n.Int64(); err == nil {
			return i, nil
		}
		f, err := n.Float64()
		if err != nil {
			return n.String(), nil
		}
		return f, nil
	}
	return s.value, nil
}
