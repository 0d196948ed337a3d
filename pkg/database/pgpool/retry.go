package pgpool

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	// DefaultRetries is the number of extra attempts made by ApplyWithRetry.
	DefaultRetries = 1
	// DefaultRetryDelay is multiplied by the attempt number between attempts.
	DefaultRetryDelay = 150 * time.Millisecond
)

// linearBackOff waits step, 2*step, 3*step, ...
type linearBackOff struct {
	step    time.Duration
	attempt int64
}

func (b *linearBackOff) NextBackOff() time.Duration {
	b.attempt++
	return time.Duration(b.attempt) * b.step
}

func (b *linearBackOff) Reset() {
	b.attempt = 0
}

// ApplyWithRetry runs fn once and then up to retries more times while it fails,
// sleeping delay*attempt before each new attempt. The last error is returned.
// A canceled ctx stops the loop and its error is returned instead.
func ApplyWithRetry(ctx context.Context, fn func(ctx context.Context) error, retries int, delay time.Duration) error {
	if retries < 0 {
		retries = 0
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(&linearBackOff{step: delay}, uint64(retries)),
		ctx,
	)

	return backoff.Retry(func() error {
		return fn(ctx)
	}, policy)
}
