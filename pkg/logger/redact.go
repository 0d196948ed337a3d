package logger

import (
	"encoding"
	"encoding/json"
	"reflect"
	"strings"
)

// RedactedValue replaces the value of every sensitive key.
const RedactedValue = "[REDACTED]"

// SensitiveKeys are matched as lowercase substrings of a field key.
var SensitiveKeys = []string{
	"authorization",
	"email",
	"pass",
	"password",
	"hash",
	"token",
	"cookie",
	"cookies",
	"phone",
}

func isSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, s := range SensitiveKeys {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}

// redactFields returns a copy of fields with sensitive values replaced at any depth.
// The caller's maps and slices are never modified.
func redactFields(fields []Field) []Field {
	out := make([]Field, len(fields))
	for i, f := range fields {
		out[i] = redactField(f)
	}
	return out
}

func redactField(f Field) Field {
	if isSensitiveKey(f.Key) {
		return Field{Key: f.Key, Value: RedactedValue}
	}
	return Field{Key: f.Key, Value: redactValue(f.Value)}
}

// fieldsToMap turns nested fields into a redacted object.
func fieldsToMap(fields []Field) map[string]any {
	out := make(map[string]any, len(fields))
	for _, f := range redactFields(fields) {
		out[f.Key] = f.Value
	}
	return out
}

func redactValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, inner := range val {
			if isSensitiveKey(k) {
				out[k] = RedactedValue
				continue
			}
			out[k] = redactValue(inner)
		}
		return out
	case map[string]string:
		out := make(map[string]string, len(val))
		for k, inner := range val {
			if isSensitiveKey(k) {
				out[k] = RedactedValue
				continue
			}
			out[k] = inner
		}
		return out
	case map[string][]string:
		out := make(map[string][]string, len(val))
		for k, inner := range val {
			if isSensitiveKey(k) {
				out[k] = []string{RedactedValue}
				continue
			}
			out[k] = inner
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, inner := range val {
			out[i] = redactValue(inner)
		}
		return out
	case []map[string]any:
		out := make([]map[string]any, len(val))
		for i, inner := range val {
			out[i], _ = redactValue(inner).(map[string]any)
		}
		return out
	case Field:
		return fieldsToMap([]Field{val})
	case []Field:
		return fieldsToMap(val)
	case nil, string, []byte, error:
		return v
	default:
		return redactReflect(reflect.ValueOf(v), 0)
	}
}

// maxRedactDepth stops the walk on self-referencing values.
const maxRedactDepth = 32

var (
	jsonMarshaler = reflect.TypeOf((*json.Marshaler)(nil)).Elem()
	textMarshaler = reflect.TypeOf((*encoding.TextMarshaler)(nil)).Elem()
)

// redactReflect walks maps with string keys, slices, arrays, pointers and
// structs of any type. Maps and structs come back as map[string]any, slices
// and arrays as []any. Values that marshal themselves (time.Time, uuid.UUID)
// are kept as they are.
func redactReflect(rv reflect.Value, depth int) any {
	if !rv.IsValid() {
		return nil
	}
	if depth > maxRedactDepth {
		return RedactedValue
	}
	if rv.Type().Implements(jsonMarshaler) || rv.Type().Implements(textMarshaler) {
		return rv.Interface()
	}

	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return nil
		}
		return redactReflect(rv.Elem(), depth+1)

	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return rv.Interface()
		}
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			k := iter.Key().String()
			if isSensitiveKey(k) {
				out[k] = RedactedValue
				continue
			}
			out[k] = redactNested(iter.Value(), depth)
		}
		return out

	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return nil
		}
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return rv.Interface()
		}
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = redactNested(rv.Index(i), depth)
		}
		return out

	case reflect.Struct:
		return redactStruct(rv, depth)

	default:
		return rv.Interface()
	}
}

// redactNested sends known types back through redactValue so Field and
// error values keep their rendering.
func redactNested(rv reflect.Value, depth int) any {
	if rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}
	if !rv.CanInterface() {
		return nil
	}
	switch v := rv.Interface().(type) {
	case map[string]any, map[string]string, map[string][]string, []any, []map[string]any, Field, []Field, string, error:
		return redactValue(v)
	}
	return redactReflect(rv, depth+1)
}

// redactStruct keys exported fields by their json name, or the field name
// when untagged. A struct without exported fields is kept as it is.
func redactStruct(rv reflect.Value, depth int) any {
	t := rv.Type()
	out := make(map[string]any, t.NumField())
	exported := 0

	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		exported++

		key := f.Name
		if tag, ok := f.Tag.Lookup("json"); ok {
			name, _, _ := strings.Cut(tag, ",")
			if name == "-" {
				continue
			}
			if name != "" {
				key = name
			}
		}

		if isSensitiveKey(key) || isSensitiveKey(f.Name) {
			out[key] = RedactedValue
			continue
		}
		out[key] = redactNested(rv.Field(i), depth)
	}

	if exported == 0 {
		return rv.Interface()
	}
	return out
}
