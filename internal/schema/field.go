package schema

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/albapepper/scoracle-lake/internal/model"
)

// Kind is the logical type of a field after coercion.
type Kind int

const (
	KindInt     Kind = iota + 1 // int64
	KindFloat                   // float64
	KindString                  // string
	KindBool                    // bool
	KindMinutes                 // float64 decimal minutes, accepts "MM:SS"
)

func (k Kind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindBool:
		return "bool"
	case KindMinutes:
		return "minutes"
	}
	return "unknown"
}

// FieldSpec describes one upstream field: its type, whether it may be
// absent, and the range or set of values it may take.
type FieldSpec struct {
	Name     string
	Aliases  []string // alternative upstream names, tried in order
	Kind     Kind
	Nullable bool

	Min, Max float64 // inclusive; checked when Min != Max
	Enum     []string
}

// Keys returns the field name followed by its aliases.
func (f FieldSpec) Keys() []string {
	return append([]string{f.Name}, f.Aliases...)
}

// Check validates an already coerced value. nil is accepted only for
// nullable fields. Enum values are returned in their canonical spelling.
func (f FieldSpec) Check(v any) (any, error) {
	if v == nil {
		if f.Nullable {
			return nil, nil
		}
		return nil, errors.New("required field is missing")
	}

	switch f.Kind {
	case KindInt:
		n, ok := v.(int64)
		if !ok {
			return nil, fmt.Errorf("want int, got %T", v)
		}
		if err := f.checkRange(float64(n)); err != nil {
			return nil, err
		}
	case KindFloat, KindMinutes:
		x, ok := v.(float64)
		if !ok {
			return nil, fmt.Errorf("want %s, got %T", f.Kind, v)
		}
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return nil, errors.New("not a finite number")
		}
		if err := f.checkRange(x); err != nil {
			return nil, err
		}
	case KindString:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("want string, got %T", v)
		}
		if len(f.Enum) > 0 {
			for _, e := range f.Enum {
				if enumKey(e) == enumKey(s) {
					return e, nil
				}
			}
			return nil, fmt.Errorf("not one of %s", strings.Join(f.Enum, "|"))
		}
		if s == "" && !f.Nullable {
			return nil, errors.New("required field is empty")
		}
	case KindBool:
		if _, ok := v.(bool); !ok {
			return nil, fmt.Errorf("want bool, got %T", v)
		}
	}
	return v, nil
}

// enumKey folds case and treats spaces and underscores alike, so
// "In Progress" matches "in_progress".
func enumKey(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), " ", "_")
}

func (f FieldSpec) checkRange(x float64) error {
	if f.Min == f.Max {
		return nil
	}
	if x < f.Min || x > f.Max {
		return fmt.Errorf("out of range [%g, %g]", f.Min, f.Max)
	}
	return nil
}

// ValidationError reports why a single row was rejected.
type ValidationError struct {
	Entity model.EntityType
	Field  string
	Value  any
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("invalid %s row: %s", e.Entity, e.Reason)
	}
	return fmt.Sprintf("invalid %s row: field %s=%v: %s", e.Entity, e.Field, e.Value, e.Reason)
}

// Values holds a row's coerced, validated fields keyed by FieldSpec.Name.
// Absent nullable fields map to nil.
type Values map[string]any

// Int returns an int field, or 0 when absent.
func (v Values) Int(name string) int64 {
	n, _ := v[name].(int64)
	return n
}

// Int32 returns an int field narrowed to int32.
func (v Values) Int32(name string) int32 { return int32(v.Int(name)) }

// IntPtr returns an int field, or nil when absent.
func (v Values) IntPtr(name string) *int64 {
	n, ok := v[name].(int64)
	if !ok {
		return nil
	}
	return &n
}

// Int32Ptr returns an int field narrowed to int32, or nil when absent.
func (v Values) Int32Ptr(name string) *int32 {
	n, ok := v[name].(int64)
	if !ok {
		return nil
	}
	m := int32(n)
	return &m
}

// Float returns a float or minutes field, or 0 when absent.
func (v Values) Float(name string) float64 {
	x, _ := v[name].(float64)
	return x
}

// FloatPtr returns a float field, or nil when absent.
func (v Values) FloatPtr(name string) *float64 {
	x, ok := v[name].(float64)
	if !ok {
		return nil
	}
	return &x
}

// String returns a string field, or "" when absent.
func (v Values) String(name string) string {
	s, _ := v[name].(string)
	return s
}

// Bool returns a bool field, or false when absent.
func (v Values) Bool(name string) bool {
	b, _ := v[name].(bool)
	return b
}

// Has reports whether a field is present.
func (v Values) Has(name string) bool { return v[name] != nil }
