package pgpool

import "time"

const (
	// DefaultMaxUses recycles a physical connection after this many borrows.
	DefaultMaxUses = 7500

	maxConnLifetime = time.Hour
	keepAlive       = 30 * time.Second
	tracerName      = "github.com/JailtonJunior94/pgkit-go/pkg/database/pgpool"
)

// Option customizes a Pool.
type Option func(*options)

type options struct {
	tracing      bool
	queryLogging bool
	maxUses      int64
	retries      int
	retryDelay   time.Duration
	drv          driver
}

func defaultOptions() options {
	return options{
		tracing:    true,
		maxUses:    DefaultMaxUses,
		retries:    DefaultRetries,
		retryDelay: DefaultRetryDelay,
	}
}

// WithTracing toggles an OpenTelemetry span per query. Enabled by default.
func WithTracing(enabled bool) Option {
	return func(o *options) {
		o.tracing = enabled
	}
}

// WithQueryLogging logs every statement and its outcome at debug level.
// Arguments are never logged.
func WithQueryLogging(enabled bool) Option {
	return func(o *options) {
		o.queryLogging = enabled
	}
}

// WithMaxUses sets how many borrows a physical connection serves before it
// is closed. Zero disables the limit.
func WithMaxUses(n int64) Option {
	return func(o *options) {
		o.maxUses = n
	}
}

// WithSessionRetry sets the retry policy for the session defaults applied to
// every new connection.
func WithSessionRetry(retries int, delay time.Duration) Option {
	return func(o *options) {
		o.retries = retries
		o.retryDelay = delay
	}
}

func withDriver(d driver) Option {
	return func(o *options) {
		o.drv = d
	}
}
