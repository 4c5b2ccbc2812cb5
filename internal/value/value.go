package value

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Value is a sealed interface representing the constrained set of field
// value types a Record may hold.
//
// This is a sealed interface - only types in this package implement it.
// The marker method pattern prevents external implementations and enables
// exhaustive type switches in the compiler and the engine.
//
// Value types:
//   - Null:   absent/optional field
//   - String: text
//   - Int:    64-bit integer
//   - Float:  64-bit float (aggregate results such as averages need it)
//   - Bool:   boolean
//   - Time:   timestamp (stored as RFC 3339 text in SQLite)
type Value interface {
	value() // Marker method - seals interface to this package
}

// Kind identifies the semantic type of a Value or a schema field.
type Kind string

const (
	KindNull   Kind = "null"
	KindString Kind = "string"
	KindInt    Kind = "int"
	KindFloat  Kind = "float"
	KindBool   Kind = "bool"
	KindTime   Kind = "time"
)

// Null represents an absent value.
// Using an explicit type ensures all Values satisfy the sealed interface.
type Null struct{}

func (Null) value() {}

// String represents a text value.
type String string

func (String) value() {}

// Int represents an integer value. Always int64.
type Int int64

func (Int) value() {}

// Float represents a floating-point value.
// Produced by average aggregates; also a legal field kind.
type Float float64

func (Float) value() {}

// Bool represents a boolean value.
type Bool bool

func (Bool) value() {}

// Time represents a timestamp value.
type Time time.Time

func (Time) value() {}

// KindOf reports the Kind of a Value.
func KindOf(v Value) Kind {
	switch v.(type) {
	case nil, Null:
		return KindNull
	case String:
		return KindString
	case Int:
		return KindInt
	case Float:
		return KindFloat
	case Bool:
		return KindBool
	case Time:
		return KindTime
	default:
		return KindNull
	}
}

// Comparable reports whether two kinds may appear on the two sides of a
// comparison. Int and Float are mutually comparable (numeric); every other
// kind compares only with itself. Null is comparable with nothing - the
// is-null operator is the only way to test for absence.
func Comparable(a, b Kind) bool {
	if a == KindNull || b == KindNull {
		return false
	}
	if a == b {
		return true
	}
	numeric := func(k Kind) bool { return k == KindInt || k == KindFloat }
	return numeric(a) && numeric(b)
}

// Ordered reports whether a kind supports <, <=, >, >= and range operators.
func Ordered(k Kind) bool {
	switch k {
	case KindInt, KindFloat, KindString, KindTime:
		return true
	default:
		return false
	}
}

// Textual reports whether a kind supports contains/starts-with/ends-with.
func Textual(k Kind) bool {
	return k == KindString
}

// Compare orders two values of comparable kinds.
// Returns -1, 0, or 1. Comparing incomparable kinds is a programming error
// caught at plan-validation time; Compare returns an error as a backstop.
func Compare(a, b Value) (int, error) {
	ka, kb := KindOf(a), KindOf(b)
	if !Comparable(ka, kb) {
		return 0, fmt.Errorf("cannot compare %s with %s", ka, kb)
	}

	switch av := a.(type) {
	case Int:
		if bv, ok := b.(Int); ok {
			return cmpInt64(int64(av), int64(bv)), nil
		}
		return cmpFloat64(float64(av), float64(b.(Float))), nil
	case Float:
		if bv, ok := b.(Float); ok {
			return cmpFloat64(float64(av), float64(bv)), nil
		}
		return cmpFloat64(float64(av), float64(b.(Int))), nil
	case String:
		return strings.Compare(string(av), string(b.(String))), nil
	case Bool:
		bv := b.(Bool)
		if av == bv {
			return 0, nil
		}
		if !av {
			return -1, nil
		}
		return 1, nil
	case Time:
		bt := time.Time(b.(Time))
		at := time.Time(av)
		switch {
		case at.Before(bt):
			return -1, nil
		case at.After(bt):
			return 1, nil
		default:
			return 0, nil
		}
	default:
		return 0, fmt.Errorf("unsupported value type: %T", a)
	}
}

// Equal reports whether two values are equal under Compare semantics.
func Equal(a, b Value) bool {
	if KindOf(a) == KindNull && KindOf(b) == KindNull {
		return true
	}
	c, err := Compare(a, b)
	return err == nil && c == 0
}

func cmpInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func cmpFloat64(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// ToParam converts a Value to a Go native type suitable as a SQL parameter.
func ToParam(v Value) (any, error) {
	switch val := v.(type) {
	case nil, Null:
		return nil, nil
	case String:
		return string(val), nil
	case Int:
		return int64(val), nil
	case Float:
		return float64(val), nil
	case Bool:
		return bool(val), nil
	case Time:
		return time.Time(val).UTC().Format(time.RFC3339Nano), nil
	default:
		return nil, fmt.Errorf("unsupported value type for SQL parameter: %T", v)
	}
}

// FromDriver converts a raw value scanned from database/sql into a Value of
// the declared field kind. NULL becomes Null regardless of kind.
func FromDriver(raw any, kind Kind) (Value, error) {
	if raw == nil {
		return Null{}, nil
	}

	switch kind {
	case KindString:
		switch rv := raw.(type) {
		case string:
			return String(rv), nil
		case []byte:
			return String(rv), nil
		}
	case KindInt:
		if rv, ok := raw.(int64); ok {
			return Int(rv), nil
		}
	case KindFloat:
		switch rv := raw.(type) {
		case float64:
			return Float(rv), nil
		case int64:
			return Float(rv), nil
		}
	case KindBool:
		switch rv := raw.(type) {
		case bool:
			return Bool(rv), nil
		case int64:
			return Bool(rv != 0), nil
		}
	case KindTime:
		switch rv := raw.(type) {
		case time.Time:
			return Time(rv), nil
		case string:
			t, err := time.Parse(time.RFC3339Nano, rv)
			if err != nil {
				return nil, fmt.Errorf("parse time %q: %w", rv, err)
			}
			return Time(t), nil
		case []byte:
			t, err := time.Parse(time.RFC3339Nano, string(rv))
			if err != nil {
				return nil, fmt.Errorf("parse time %q: %w", rv, err)
			}
			return Time(t), nil
		}
	}
	return nil, fmt.Errorf("cannot convert %T to %s", raw, kind)
}

// MarshalJSON implements json.Marshaler for Null.
func (Null) MarshalJSON() ([]byte, error) {
	return []byte("null"), nil
}

// MarshalJSON implements json.Marshaler for Time using RFC 3339.
func (t Time) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Time(t).UTC().Format(time.RFC3339Nano))
}

// Marshal marshals any Value to JSON bytes.
// Uses type-switch dispatch to handle all Value types correctly.
func Marshal(v Value) ([]byte, error) {
	switch val := v.(type) {
	case nil, Null:
		return []byte("null"), nil
	case String:
		return json.Marshal(string(val))
	case Int:
		return json.Marshal(int64(val))
	case Float:
		return json.Marshal(float64(val))
	case Bool:
		return json.Marshal(bool(val))
	case Time:
		return val.MarshalJSON()
	default:
		return nil, fmt.Errorf("unknown value type: %T", v)
	}
}

// Format renders a Value for human-readable output (CLI text format).
func Format(v Value) string {
	switch val := v.(type) {
	case nil, Null:
		return "<null>"
	case String:
		return string(val)
	case Int:
		return fmt.Sprintf("%d", int64(val))
	case Float:
		return fmt.Sprintf("%g", float64(val))
	case Bool:
		return fmt.Sprintf("%t", bool(val))
	case Time:
		return time.Time(val).UTC().Format(time.RFC3339)
	default:
		return fmt.Sprintf("%v", v)
	}
}
