package logger

import "time"

// Field represents a key-value pair for structured logging.
type Field struct {
	Key   string
	Value any
}

// String creates a string field.
func String(key, value string) Field {
	return Field{Key: key, Value: value}
}

// Int creates an integer field.
func Int(key string, value int) Field {
	return Field{Key: key, Value: value}
}

// Bool creates a boolean field.
func Bool(key string, value bool) Field {
	return Field{Key: key, Value: value}
}

// Duration creates a field rendered as a human readable duration.
func Duration(key string, value time.Duration) Field {
	return Field{Key: key, Value: value.String()}
}

// Err creates an "error" field holding err's message.
func Err(err error) Field {
	if err == nil {
		return Field{Key: "error", Value: nil}
	}
	return Field{Key: "error", Value: err.Error()}
}

// Any creates a field with any value type. Maps are scanned for sensitive keys.
func Any(key string, value any) Field {
	return Field{Key: key, Value: value}
}

// merge concatenates groups of fields; a later key replaces an earlier one in place.
func merge(groups ...[]Field) []Field {
	size := 0
	for _, g := range groups {
		size += len(g)
	}

	out := make([]Field, 0, size)
	index := make(map[string]int, size)
	for _, g := range groups {
		for _, f := range g {
			if i, ok := index[f.Key]; ok {
				out[i] = f
				continue
			}
			index[f.Key] = len(out)
			out = append(out, f)
		}
	}
	return out
}
