package pgpool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/JailtonJunior94/pgkit-go/pkg/config"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type fakeConn struct {
	released     atomic.Int32
	destroyed    atomic.Int32
	destroyErr   error
	releasePanic any
	pingErr      error
	raw          *pgx.Conn
}

func (c *fakeConn) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.NewCommandTag("SELECT 1"), nil
}

func (c *fakeConn) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}

func (c *fakeConn) QueryRow(context.Context, string, ...any) pgx.Row {
	return nil
}

func (c *fakeConn) Ping(context.Context) error {
	return c.pingErr
}

func (c *fakeConn) Release() {
	if c.releasePanic != nil {
		panic(c.releasePanic)
	}
	c.released.Add(1)
}

func (c *fakeConn) Raw() *pgx.Conn {
	return c.raw
}

func (c *fakeConn) Destroy(context.Context) error {
	c.destroyed.Add(1)
	return c.destroyErr
}

type fakeDriver struct {
	mu         sync.Mutex
	conn       *fakeConn
	acquireErr error
	block      bool
	closeDelay time.Duration
	closes     atomic.Int32
	stats      Stats
}

func (d *fakeDriver) Acquire(ctx context.Context) (pooledConn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if d.acquireErr != nil {
		return nil, d.acquireErr
	}
	return d.conn, nil
}

func (d *fakeDriver) Close() {
	time.Sleep(d.closeDelay)
	d.closes.Add(1)
}

func (d *fakeDriver) Stat() Stats {
	return d.stats
}

func testConfig() *config.Config {
	return &config.Config{
		Postgres: config.Postgres{
			Host:               "localhost",
			Port:               5432,
			Database:           "app",
			User:               "app",
			Password:           "secret",
			PoolMax:            4,
			PoolMin:            1,
			ConnTimeoutMS:      50,
			IdleTimeoutMS:      30000,
			StatementTimeoutMS: 15000,
			QueryTimeoutMS:     200,
		},
		App: config.App{Name: "orders-api", Env: config.EnvDevelopment},
	}
}
