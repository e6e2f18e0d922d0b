package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"sort"
	"strconv"
)

// ViolationError reports the first place a value departs from its schema.
type ViolationError struct {
	Path   string // JSON path, e.g. $.recommendations[1]
	Reason string
}

func (e *ViolationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Path, e.Reason)
}

// Validate checks a value decoded from JSON (maps, slices, strings, float64
// or json.Number, bool, nil) against s.
func (s *Schema) Validate(value any) error {
	return s.validate("$", value)
}

// ValidateJSON decodes data and validates the result.
func (s *Schema) ValidateJSON(data []byte) error {
	var v any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return &ViolationError{Path: "$", Reason: "invalid JSON: " + err.Error()}
	}
	if dec.More() {
		return &ViolationError{Path: "$", Reason: "trailing data after JSON value"}
	}
	return s.Validate(v)
}

func (s *Schema) validate(path string, value any) error {
	if value == nil {
		if s.Nullable {
			return nil
		}
		return violation(path, "expected %s, got null", s.Type)
	}

	switch s.Type {
	case TypeObject:
		obj, ok := value.(map[string]any)
		if !ok {
			return violation(path, "expected object, got %s", kindOf(value))
		}
		for _, name := range s.Required {
			if _, ok := obj[name]; !ok {
				return violation(path, "missing required property %q", name)
			}
		}
		// Iterate in a stable order so the reported violation is deterministic.
		names := make([]string, 0, len(obj))
		for name := range obj {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			child, ok := s.Properties[name]
			if !ok {
				continue
			}
			if err := child.validate(path+"."+name, obj[name]); err != nil {
				return err
			}
		}
	case TypeArray:
		arr, ok := value.([]any)
		if !ok {
			return violation(path, "expected array, got %s", kindOf(value))
		}
		if s.Items == nil {
			return nil
		}
		for i, item := range arr {
			if err := s.Items.validate(path+"["+strconv.Itoa(i)+"]", item); err != nil {
				return err
			}
		}
	case TypeString:
		str, ok := value.(string)
		if !ok {
			return violation(path, "expected string, got %s", kindOf(value))
		}
		if len(s.Enum) > 0 && !slices.Contains(s.Enum, str) {
			return violation(path, "value %q not in %v", str, s.Enum)
		}
	case TypeNumber:
		if _, ok := number(value); !ok {
			return violation(path, "expected number, got %s", kindOf(value))
		}
	case TypeInteger:
		f, ok := number(value)
		if !ok {
			return violation(path, "expected integer, got %s", kindOf(value))
		}
		if f != math.Trunc(f) {
			return violation(path, "expected integer, got %v", f)
		}
	case TypeBoolean:
		if _, ok := value.(bool); !ok {
			return violation(path, "expected boolean, got %s", kindOf(value))
		}
	default:
		return violation(path, "schema has unknown type %q", s.Type)
	}
	return nil
}

func violation(path, format string, args ...any) error {
	return &ViolationError{Path: path, Reason: fmt.Sprintf(format, args...)}
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

func kindOf(v any) string {
	switch v.(type) {
	case map[string]any:
		return "object"
	case []any:
		return "array"
	case string:
		return "string"
	case float64, json.Number:
		return "number"
	case bool:
		return "boolean"
	}
	return fmt.Sprintf("%T", v)
}
