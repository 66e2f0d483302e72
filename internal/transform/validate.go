// Package transform turns fetched upstream pages into validated, typed rows
// with derived metrics attached.
package transform

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	jsoniter "github.com/json-iterator/go"

	"github.com/albapepper/scoracle-lake/internal/model"
	"github.com/albapepper/scoracle-lake/internal/provider"
	"github.com/albapepper/scoracle-lake/internal/schema"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// DecodeRows decodes one page payload into dynamic row objects.
func DecodeRows(payload []byte) ([]map[string]any, error) {
	if len(payload) == 0 {
		return nil, nil
	}
	var rows []map[string]any
	if err := json.Unmarshal(payload, &rows); err != nil {
		return nil, fmt.Errorf("decode rows: %w", err)
	}
	return rows, nil
}

// ValidateRow coerces and validates one upstream row against the entity's
// schema. A failure is always a *schema.ValidationError.
func ValidateRow(entity model.EntityType, row map[string]any) (schema.Values, error) {
	s, ok := schema.For(entity)
	if !ok {
		return nil, &schema.ValidationError{Entity: entity, Reason: "no schema for entity"}
	}

	vals := make(schema.Values, len(s.Fields))
	for _, f := range s.Fields {
		raw := lookup(row, f.Keys())
		v, err := coerce(f, raw)
		if err == nil {
			v, err = f.Check(v)
		}
		if err != nil {
			return nil, &schema.ValidationError{Entity: entity, Field: f.Name, Value: raw, Reason: err.Error()}
		}
		vals[f.Name] = v
	}

	for _, c := range s.Checks {
		if err := c.Check(vals); err != nil {
			return nil, &schema.ValidationError{Entity: entity, Field: c.Field, Value: vals[c.Field], Reason: err.Error()}
		}
	}
	return vals, nil
}

// lookup returns the first present key. Dotted keys walk nested objects.
func lookup(row map[string]any, keys []string) any {
	for _, key := range keys {
		var cur any = row
		found := true
		for _, part := range strings.Split(key, ".") {
			m, ok := cur.(map[string]any)
			if !ok {
				found = false
				break
			}
			if cur, ok = m[part]; !ok {
				found = false
				break
			}
		}
		if found && cur != nil {
			return cur
		}
	}
	return nil
}

var errNotNumber = errors.New("not a number")

// coerce converts a dynamic value to the Go type of the field's kind.
// Blank strings count as absent for non-string fields.
func coerce(f schema.FieldSpec, raw any) (any, error) {
	if raw == nil {
		return nil, nil
	}
	if s, ok := raw.(string); ok && f.Kind != schema.KindString && strings.TrimSpace(s) == "" {
		return nil, nil
	}

	switch f.Kind {
	case schema.KindInt:
		x, ok := provider.ExtractValue(raw)
		if !ok {
			return nil, errNotNumber
		}
		if x != math.Trunc(x) {
			return nil, fmt.Errorf("%v is not an integer", x)
		}
		return int64(x), nil

	case schema.KindFloat:
		x, ok := provider.ExtractValue(raw)
		if !ok {
			return nil, errNotNumber
		}
		return x, nil

	case schema.KindMinutes:
		x, ok := provider.ParseMinutes(raw)
		if !ok {
			return nil, fmt.Errorf("%v is not a minutes value", raw)
		}
		return x, nil

	case schema.KindString:
		switch v := raw.(type) {
		case string:
			return strings.TrimSpace(v), nil
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64), nil
		case bool:
			return strconv.FormatBool(v), nil
		}
		return nil, fmt.Errorf("cannot read %T as string", raw)

	case schema.KindBool:
		switch v := raw.(type) {
		case bool:
			return v, nil
		case float64:
			if v == 0 || v == 1 {
				return v == 1, nil
			}
		case string:
			if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
				return b, nil
			}
		}
		return nil, fmt.Errorf("cannot read %v as bool", raw)
	}
	return nil, fmt.Errorf("unsupported field kind %s", f.Kind)
}
