// Package pgpool wraps pgxpool with the session defaults, retry, release and
// error handling every borrowed connection goes through.
package pgpool

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/JailtonJunior94/pgkit-go/pkg/config"
	"github.com/JailtonJunior94/pgkit-go/pkg/logger"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
)

// Pool is the process-wide connection pool. It is created once at startup and
// shared; all methods are safe for concurrent use.
type Pool struct {
	drv          driver
	log          logger.Logger
	opts         options
	connTimeout  time.Duration
	queryTimeout time.Duration
	uses         *useCounter

	closed    atomic.Bool
	closeOnce sync.Once
}

// New builds the pool described by cfg. No connection is opened until the
// first borrow unless PG_POOL_MIN is above zero.
func New(ctx context.Context, cfg *config.Config, log logger.Logger, opts ...Option) (*Pool, error) {
	if cfg == nil {
		return nil, errors.New("pgpool: config cannot be nil")
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	p := &Pool{
		log:          log,
		opts:         o,
		connTimeout:  cfg.Postgres.ConnTimeout(),
		queryTimeout: cfg.Postgres.QueryTimeout(),
	}
	if o.maxUses > 0 {
		p.uses = newUseCounter(o.maxUses)
	}

	if o.drv != nil {
		p.drv = o.drv
		return p, nil
	}

	poolConfig, err := p.poolConfig(cfg)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("pgpool: create pool: %w", err)
	}
	p.drv = &pgxDriver{pool: pool}

	log.Debug(ctx, "postgres pool created",
		logger.String("target", cfg.Postgres.String()),
		logger.Int("max_conns", cfg.Postgres.PoolMax),
		logger.Int("min_conns", cfg.Postgres.PoolMin),
	)

	return p, nil
}

func (p *Pool) poolConfig(cfg *config.Config) (*pgxpool.Config, error) {
	pg := cfg.Postgres

	pc, err := pgxpool.ParseConfig(pg.DSN())
	if err != nil {
		return nil, fmt.Errorf("pgpool: parse config: %w", err)
	}

	pc.MaxConns = int32(pg.PoolMax)
	pc.MinConns = int32(pg.PoolMin)
	pc.MaxConnIdleTime = pg.IdleTimeout()
	pc.MaxConnLifetime = maxConnLifetime

	cc := pc.ConnConfig
	cc.ConnectTimeout = pg.ConnTimeout()
	cc.DialFunc = (&net.Dialer{Timeout: pg.ConnTimeout(), KeepAlive: keepAlive}).DialContext
	if cc.RuntimeParams == nil {
		cc.RuntimeParams = make(map[string]string)
	}
	cc.RuntimeParams["statement_timeout"] = strconv.Itoa(pg.StatementTimeoutMS)
	cc.RuntimeParams["application_name"] = cfg.App.Name
	cc.OnPgError = p.onPgError

	if p.opts.tracing {
		cc.Tracer = &otelTracer{tracer: otel.Tracer(tracerName)}
	}
	if p.opts.queryLogging {
		cc.Tracer = &queryLogger{next: cc.Tracer, log: p.log}
	}

	pc.AfterConnect = p.afterConnect
	if p.uses != nil {
		pc.AfterRelease = p.uses.afterRelease
		pc.BeforeClose = p.uses.forget
	}

	return pc, nil
}

// Connect borrows a connection, waiting at most the connection timeout.
// Every failure, pool saturation or dial error alike, wraps ErrPoolExhausted.
func (p *Pool) Connect(ctx context.Context) (Conn, error) {
	if p.closed.Load() {
		return nil, ErrPoolClosed
	}

	ctx, cancel := context.WithTimeout(ctx, p.connTimeout)
	defer cancel()

	conn, err := p.drv.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPoolExhausted, err)
	}
	return conn, nil
}

// Release hands conn back. A broken connection is closed and removed from
// the pool instead of being reused. Release never panics; failures are
// logged at warn level.
func (p *Pool) Release(ctx context.Context, conn Conn, broken bool) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Warn(ctx, "postgres client release failed",
				logger.String("error", fmt.Sprint(r)),
				logger.Bool("broken", broken),
			)
		}
	}()

	pc, ok := conn.(pooledConn)
	if !ok {
		p.log.Warn(ctx, "postgres client release failed",
			logger.Err(ErrForeignConn),
			logger.Bool("broken", broken),
		)
		return
	}

	if !broken {
		pc.Release()
		return
	}

	if p.uses != nil {
		p.uses.forget(pc.Raw())
	}
	if err := pc.Destroy(ctx); err != nil {
		p.log.Warn(ctx, "postgres client release failed",
			logger.Err(err),
			logger.Bool("broken", broken),
		)
	}
}

// Query borrows a connection, runs fn under the query timeout and releases
// the connection, marking it broken when fn failed at the connection level.
func (p *Pool) Query(ctx context.Context, fn func(ctx context.Context, conn Conn) error) error {
	conn, err := p.Connect(ctx)
	if err != nil {
		return err
	}

	qctx, cancel := context.WithTimeout(ctx, p.queryTimeout)
	defer cancel()

	err = fn(qctx, conn)
	p.Release(ctx, conn, IsConnectionError(err))
	return err
}

// Ping checks that a connection can be borrowed and answers.
func (p *Pool) Ping(ctx context.Context) error {
	return p.Query(ctx, func(ctx context.Context, conn Conn) error {
		return conn.Ping(ctx)
	})
}

// Close waits for borrowed connections to be released, then closes them all.
// Later calls return once the first one has finished.
func (p *Pool) Close() {
	p.closeOnce.Do(func() {
		p.closed.Store(true)
		p.drv.Close()
	})
}

// Closed reports whether Close has been called.
func (p *Pool) Closed() bool {
	return p.closed.Load()
}

// Stat returns a snapshot of the pool counters.
func (p *Pool) Stat() Stats {
	return p.drv.Stat()
}

// IsConnectionError reports whether err leaves the connection in an unknown
// state. SQL errors reported by the server and empty results do not.
func IsConnectionError(err error) bool {
	if err == nil || errors.Is(err, pgx.ErrNoRows) {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return isFatal(pgErr)
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, net.ErrClosed) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return pgconn.Timeout(err)
}
