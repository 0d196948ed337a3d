// Package lifecycle starts and stops the process-wide connection pool.
package lifecycle

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/JailtonJunior94/pgkit-go/pkg/database/pgpool"
	"github.com/JailtonJunior94/pgkit-go/pkg/logger"
)

const (
	DefaultShutdownTimeout = 10 * time.Second
	DefaultProbeQuery      = "SELECT 1"
)

var (
	// ErrClosed is returned by InitDb once the pool has been shut down.
	ErrClosed = errors.New("lifecycle: pool already closed")

	// ErrShutdownTimeout is logged when the pool does not drain in time.
	ErrShutdownTimeout = errors.New("lifecycle: pool close timed out")
)

// State of the pool as seen by the controller.
type State int

const (
	Stopped State = iota
	Started
	Closed
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Started:
		return "started"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// Pool is what the controller needs from pgpool.Pool.
type Pool interface {
	Connect(ctx context.Context) (pgpool.Conn, error)
	Release(ctx context.Context, conn pgpool.Conn, broken bool)
	Close()
}

var _ Pool = (*pgpool.Pool)(nil)

// Option customizes a Controller.
type Option func(*Controller)

// WithShutdownTimeout bounds how long ShutDownDb waits for the pool to drain.
func WithShutdownTimeout(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.shutdownTimeout = d
		}
	}
}

// WithProbeQuery replaces the statement InitDb uses to check connectivity.
func WithProbeQuery(sql string) Option {
	return func(c *Controller) {
		if sql != "" {
			c.probe = sql
		}
	}
}

// Controller owns the Stopped -> Started -> Closed transitions of a pool.
// InitDb and ShutDownDb are serialized; State may be read at any time.
type Controller struct {
	pool            Pool
	log             logger.Logger
	shutdownTimeout time.Duration
	probe           string

	op    sync.Mutex
	mu    sync.RWMutex
	state State
}

// New returns a controller in the Stopped state.
func New(pool Pool, log logger.Logger, opts ...Option) *Controller {
	c := &Controller{
		pool:            pool,
		log:             log,
		shutdownTimeout: DefaultShutdownTimeout,
		probe:           DefaultProbeQuery,
		state:           Stopped,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// InitDb borrows one connection and runs the probe on it. A second call is a
// no-op. The controller is Started as soon as a connection was borrowed, even
// if the probe then fails; the probe error is returned and the connection is
// released as broken.
func (c *Controller) InitDb(ctx context.Context) error {
	c.op.Lock()
	defer c.op.Unlock()

	switch c.State() {
	case Started:
		c.log.Warn(ctx, "postgres already started")
		return nil
	case Closed:
		return ErrClosed
	}

	conn, err := c.pool.Connect(ctx)
	if err != nil {
		c.log.Error(ctx, "postgres connection failed", logger.Err(err))
		return err
	}
	c.setState(Started)

	broken := false
	defer func() {
		c.pool.Release(ctx, conn, broken)
	}()

	if _, err := conn.Exec(ctx, c.probe); err != nil {
		broken = true
		c.log.Error(ctx, "postgres connection check failed", logger.Err(err))
		return err
	}

	c.log.Info(ctx, "postgres connected")
	return nil
}

// ShutDownDb closes the pool, waiting at most the shutdown timeout. It is
// best effort: a timeout is logged, the state is left unchanged and nil is
// returned.
func (c *Controller) ShutDownDb(ctx context.Context) error {
	c.op.Lock()
	defer c.op.Unlock()

	if c.State() != Started {
		c.log.Info(ctx, "postgres pool closed")
		return nil
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		c.pool.Close()
	}()

	timer := time.NewTimer(c.shutdownTimeout)
	defer timer.Stop()

	select {
	case <-done:
		c.setState(Closed)
		c.log.Info(ctx, "postgres pool closed")
	case <-timer.C:
		c.log.Error(ctx, "postgres pool shutdown failed",
			logger.Err(ErrShutdownTimeout),
			logger.Duration("timeout", c.shutdownTimeout),
		)
	case <-ctx.Done():
		c.log.Error(ctx, "postgres pool shutdown failed", logger.Err(ctx.Err()))
	}

	return nil
}
