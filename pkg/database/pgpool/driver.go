package pgpool

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Conn is a connection borrowed from the pool. It must be handed back with
// Pool.Release exactly once.
type Conn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
}

// pooledConn is what the driver hands out: a Conn that can go back to the
// pool or be destroyed.
type pooledConn interface {
	Conn
	Release()
	Destroy(ctx context.Context) error
	// Raw is the physical connection, the key pool hooks see.
	Raw() *pgx.Conn
}

// driver is the subset of pgxpool used by Pool.
type driver interface {
	Acquire(ctx context.Context) (pooledConn, error)
	Close()
	Stat() Stats
}

// Stats is a snapshot of pool counters.
type Stats struct {
	AcquiredConns        int32
	IdleConns            int32
	TotalConns           int32
	MaxConns             int32
	AcquireCount         int64
	EmptyAcquireCount    int64
	CanceledAcquireCount int64
}

type pgxDriver struct {
	pool *pgxpool.Pool
}

func (d *pgxDriver) Acquire(ctx context.Context) (pooledConn, error) {
	c, err := d.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	return &pgxConn{Conn: c}, nil
}

func (d *pgxDriver) Close() {
	d.pool.Close()
}

func (d *pgxDriver) Stat() Stats {
	s := d.pool.Stat()
	return Stats{
		AcquiredConns:        s.AcquiredConns(),
		IdleConns:            s.IdleConns(),
		TotalConns:           s.TotalConns(),
		MaxConns:             s.MaxConns(),
		AcquireCount:         s.AcquireCount(),
		EmptyAcquireCount:    s.EmptyAcquireCount(),
		CanceledAcquireCount: s.CanceledAcquireCount(),
	}
}

type pgxConn struct {
	*pgxpool.Conn
}

func (c *pgxConn) Raw() *pgx.Conn {
	return c.Conn.Conn()
}

// Destroy takes the physical connection out of the pool and closes it.
// Hijacked connections skip BeforeClose, so callers drop their own state first.
func (c *pgxConn) Destroy(ctx context.Context) error {
	return c.Hijack().Close(ctx)
}
