package common

import (
	"errors"
	"fmt"

	"github.com/pelletier/go-toml/v2"
)

// ErrMissingField is returned by the Document accessors when a required key is absent.
var ErrMissingField = errors.New("document: missing field")

// Document is the generic structured form used to persist engine configuration objects.
// Values are numbers, strings, bools, nested Documents or arrays of those.
type Document map[string]any

// Serializable is implemented by configuration objects that round-trip through a Document.
type Serializable interface {
	// Serialize returns the object's persisted fields.
	//
	// Returns:
	//   - Document: the serialized form
	Serialize() Document
}

// EncodeDocument encodes a Document as TOML.
//
// Parameters:
//   - doc: the document to encode
//
// Returns:
//   - []byte: the TOML bytes
//   - error: an error if encoding fails
func EncodeDocument(doc Document) ([]byte, error) {
	data, err := toml.Marshal(map[string]any(doc))
	if err != nil {
		return nil, fmt.Errorf("failed to encode document: %w", err)
	}
	return data, nil
}

// DecodeDocument decodes TOML bytes into a Document.
//
// Parameters:
//   - data: the TOML bytes
//
// Returns:
//   - Document: the decoded document
//   - error: an error if decoding fails
func DecodeDocument(data []byte) (Document, error) {
	var raw map[string]any
	if err := toml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode document: %w", err)
	}
	return normalizeDocument(raw), nil
}

// normalizeDocument converts nested map[string]any values into Document.
func normalizeDocument(raw map[string]any) Document {
	doc := make(Document, len(raw))
	for k, v := range raw {
		doc[k] = normalizeValue(v)
	}
	return doc
}

func normalizeValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return normalizeDocument(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = normalizeValue(e)
		}
		return out
	default:
		return v
	}
}

// Float returns the numeric value stored at key as a float64.
//
// Parameters:
//   - key: the field name
//
// Returns:
//   - float64: the value
//   - error: ErrMissingField if absent, or a type error
func (d Document) Float(key string) (float64, error) {
	v, ok := d[key]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrMissingField, key)
	}
	return toFloat(key, v)
}

// FloatOr returns the numeric value stored at key, or fallback if it is absent or not numeric.
func (d Document) FloatOr(key string, fallback float64) float64 {
	f, err := d.Float(key)
	if err != nil {
		return fallback
	}
	return f
}

// IntOr returns the numeric value stored at key truncated to int, or fallback.
func (d Document) IntOr(key string, fallback int) int {
	f, err := d.Float(key)
	if err != nil {
		return fallback
	}
	return int(f)
}

// StringOr returns the string stored at key, or fallback.
func (d Document) StringOr(key, fallback string) string {
	if s, ok := d[key].(string); ok {
		return s
	}
	return fallback
}

// BoolOr returns the bool stored at key, or fallback.
func (d Document) BoolOr(key string, fallback bool) bool {
	if b, ok := d[key].(bool); ok {
		return b
	}
	return fallback
}

// Strings returns the string array stored at key. Absent keys yield nil.
//
// Parameters:
//   - key: the field name
//
// Returns:
//   - []string: the values
//   - error: a type error if any element is not a string
func (d Document) Strings(key string) ([]string, error) {
	v, ok := d[key]
	if !ok {
		return nil, nil
	}
	switch t := v.(type) {
	case []string:
		return append([]string(nil), t...), nil
	case []any:
		out := make([]string, 0, len(t))
		for i, e := range t {
			s, ok := e.(string)
			if !ok {
				return nil, fmt.Errorf("document: %q[%d] is %T, not string", key, i, e)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("document: %q is %T, not an array", key, v)
	}
}

// Floats returns the numeric array stored at key as float32 values. Absent keys yield nil.
//
// Parameters:
//   - key: the field name
//
// Returns:
//   - []float32: the values
//   - error: a type error if any element is not numeric
func (d Document) Floats(key string) ([]float32, error) {
	v, ok := d[key]
	if !ok {
		return nil, nil
	}
	switch t := v.(type) {
	case []float32:
		return append([]float32(nil), t...), nil
	case []float64:
		out := make([]float32, len(t))
		for i, f := range t {
			out[i] = float32(f)
		}
		return out, nil
	case []any:
		out := make([]float32, 0, len(t))
		for _, e := range t {
			f, err := toFloat(key, e)
			if err != nil {
				return nil, err
			}
			out = append(out, float32(f))
		}
		return out, nil
	default:
		return nil, fmt.Errorf("document: %q is %T, not an array", key, v)
	}
}

// Sub returns the nested Document stored at key, or nil.
func (d Document) Sub(key string) Document {
	switch t := d[key].(type) {
	case Document:
		return t
	case map[string]any:
		return normalizeDocument(t)
	}
	return nil
}

func toFloat(key string, v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case uint32:
		return float64(n), nil
	case uint64:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("document: %q is %T, not a number", key, v)
	}
}
