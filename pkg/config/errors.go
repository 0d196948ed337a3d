package config

import (
	"errors"
	"reflect"
	"strings"
)

var ErrInvalidConfig = errors.New("invalid configuration")

// ValidationError lists every field that failed validation.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return ErrInvalidConfig.Error() + ": " + strings.Join(e.Fields, "; ")
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidConfig
}

// envTags maps section -> Go field -> env var, read once from the struct tags.
var envTags = map[string]map[string]string{
	"Postgres": tagsOf(reflect.TypeOf(Postgres{})),
	"App":      tagsOf(reflect.TypeOf(App{})),
}

func tagsOf(t reflect.Type) map[string]string {
	tags := make(map[string]string, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if tag := f.Tag.Get("envconfig"); tag != "" {
			tags[f.Name] = tag
		}
	}
	return tags
}
