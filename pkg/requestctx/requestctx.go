// Package requestctx carries per-request values, currently the request ID,
// through a context.Context so that any code handed that context (loggers,
// repositories, goroutines spawned for the request) can read them without an
// extra parameter.
//
// Each request derives its own context, so concurrently running requests never
// observe each other's values and no locking is needed.
package requestctx

import (
	"context"

	"github.com/google/uuid"
)

// HeaderRequestID is the HTTP header used to propagate the request ID.
const HeaderRequestID = "X-Request-ID"

type contextKey struct{}

// Context is the per-request record.
type Context struct {
	RequestID string
}

// Run calls fn with a context carrying rc. Values set by an outer Run are
// shadowed only inside fn; the caller's ctx is left untouched.
func Run(ctx context.Context, rc Context, fn func(ctx context.Context) error) error {
	return fn(WithContext(ctx, rc))
}

// WithContext returns a copy of ctx carrying rc.
func WithContext(ctx context.Context, rc Context) context.Context {
	return context.WithValue(ctx, contextKey{}, rc)
}

// Get returns the request context carried by ctx, or an empty Context.
func Get(ctx context.Context) Context {
	if ctx == nil {
		return Context{}
	}
	rc, _ := ctx.Value(contextKey{}).(Context)
	return rc
}

// RequestID returns the request ID carried by ctx.
func RequestID(ctx context.Context) (string, bool) {
	id := Get(ctx).RequestID
	return id, id != ""
}

// NewRequestID generates a fresh request identifier.
func NewRequestID() string {
	return uuid.NewString()
}
