package lifecycle

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/JailtonJunior94/pgkit-go/pkg/database/pgpool"
	"github.com/JailtonJunior94/pgkit-go/pkg/logger/fake"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

type fakeConn struct {
	execErr error
	queries []string
}

func (c *fakeConn) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	c.queries = append(c.queries, sql)
	return pgconn.NewCommandTag("SELECT 1"), c.execErr
}

func (c *fakeConn) Query(context.Context, string, ...any) (pgx.Rows, error) { return nil, nil }
func (c *fakeConn) QueryRow(context.Context, string, ...any) pgx.Row        { return nil }
func (c *fakeConn) Ping(context.Context) error                              { return nil }

type release struct {
	conn   pgpool.Conn
	broken bool
}

type fakePool struct {
	mu         sync.Mutex
	conn       *fakeConn
	connectErr error
	connects   int
	releases   []release
	closeDelay time.Duration
	closes     atomic.Int32
}

func (p *fakePool) Connect(context.Context) (pgpool.Conn, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.connects++
	if p.connectErr != nil {
		return nil, p.connectErr
	}
	return p.conn, nil
}

func (p *fakePool) Release(_ context.Context, conn pgpool.Conn, broken bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.releases = append(p.releases, release{conn: conn, broken: broken})
}

func (p *fakePool) Close() {
	time.Sleep(p.closeDelay)
	p.closes.Add(1)
}

func TestInitDb_Success(t *testing.T) {
	pool := &fakePool{conn: &fakeConn{}}
	log, logs := fake.NewLogger()
	c := New(pool, log)

	require.Equal(t, Stopped, c.State())
	require.NoError(t, c.InitDb(context.Background()))

	assert.Equal(t, Started, c.State())
	assert.Equal(t, []string{DefaultProbeQuery}, pool.conn.queries)
	require.Len(t, pool.releases, 1)
	assert.False(t, pool.releases[0].broken)
	assert.Len(t, logs.ByMessage("postgres connected"), 1)
}

func TestInitDb_Twice(t *testing.T) {
	pool := &fakePool{conn: &fakeConn{}}
	log, logs := fake.NewLogger()
	c := New(pool, log)
	ctx := context.Background()

	require.NoError(t, c.InitDb(ctx))
	require.NoError(t, c.InitDb(ctx))

	assert.Equal(t, 1, pool.connects, "second call must not borrow")
	assert.Equal(t, Started, c.State())

	warns := logs.ByLevel(zapcore.WarnLevel)
	require.Len(t, warns, 1)
	assert.Equal(t, "postgres already started", warns[0].Message)
}

func TestInitDb_ProbeFailure(t *testing.T) {
	probeErr := errors.New("relation does not exist")
	pool := &fakePool{conn: &fakeConn{execErr: probeErr}}
	log, logs := fake.NewLogger()
	c := New(pool, log, WithProbeQuery("SELECT 1 FROM missing"))

	err := c.InitDb(context.Background())
	require.ErrorIs(t, err, probeErr)

	assert.Equal(t, Started, c.State())
	assert.Equal(t, []string{"SELECT 1 FROM missing"}, pool.conn.queries)
	require.Len(t, pool.releases, 1)
	assert.True(t, pool.releases[0].broken)

	errs := logs.ByLevel(zapcore.ErrorLevel)
	require.Len(t, errs, 1)
	assert.Equal(t, "postgres connection check failed", errs[0].Message)
	assert.Equal(t, probeErr.Error(), errs[0].Fields["error"])
}

func TestInitDb_ConnectFailure(t *testing.T) {
	pool := &fakePool{connectErr: pgpool.ErrPoolExhausted}
	log, _ := fake.NewLogger()
	c := New(pool, log)

	err := c.InitDb(context.Background())
	require.ErrorIs(t, err, pgpool.ErrPoolExhausted)

	assert.Equal(t, Stopped, c.State())
	assert.Empty(t, pool.releases)

	pool.connectErr = nil
	pool.conn = &fakeConn{}
	require.NoError(t, c.InitDb(context.Background()), "a failed borrow can be retried")
}

func TestInitDb_AfterShutdown(t *testing.T) {
	pool := &fakePool{conn: &fakeConn{}}
	log, _ := fake.NewLogger()
	c := New(pool, log)
	ctx := context.Background()

	require.NoError(t, c.InitDb(ctx))
	require.NoError(t, c.ShutDownDb(ctx))

	assert.ErrorIs(t, c.InitDb(ctx), ErrClosed)
	assert.Equal(t, Closed, c.State())
}

func TestShutDownDb_BeforeInit(t *testing.T) {
	pool := &fakePool{conn: &fakeConn{}}
	log, logs := fake.NewLogger()
	c := New(pool, log)

	require.NoError(t, c.ShutDownDb(context.Background()))

	assert.EqualValues(t, 0, pool.closes.Load())
	assert.Equal(t, Stopped, c.State())
	infos := logs.ByLevel(zapcore.InfoLevel)
	require.Len(t, infos, 1)
	assert.Equal(t, "postgres pool closed", infos[0].Message)
}

func TestShutDownDb_Success(t *testing.T) {
	pool := &fakePool{conn: &fakeConn{}}
	log, logs := fake.NewLogger()
	c := New(pool, log)
	ctx := context.Background()

	require.NoError(t, c.InitDb(ctx))
	logs.Reset()

	require.NoError(t, c.ShutDownDb(ctx))
	assert.Equal(t, Closed, c.State())
	assert.EqualValues(t, 1, pool.closes.Load())
	assert.Len(t, logs.ByMessage("postgres pool closed"), 1)

	require.NoError(t, c.ShutDownDb(ctx))
	assert.EqualValues(t, 1, pool.closes.Load(), "closed pool is not closed again")
}

func TestShutDownDb_Timeout(t *testing.T) {
	pool := &fakePool{conn: &fakeConn{}, closeDelay: 500 * time.Millisecond}
	log, logs := fake.NewLogger()
	c := New(pool, log, WithShutdownTimeout(30*time.Millisecond))
	ctx := context.Background()

	require.NoError(t, c.InitDb(ctx))

	start := time.Now()
	require.NoError(t, c.ShutDownDb(ctx))
	elapsed := time.Since(start)

	assert.GreaterOrEqual(t, elapsed, 30*time.Millisecond)
	assert.Less(t, elapsed, 400*time.Millisecond)
	assert.Equal(t, Started, c.State())

	errs := logs.ByLevel(zapcore.ErrorLevel)
	require.Len(t, errs, 1)
	assert.Equal(t, "postgres pool shutdown failed", errs[0].Message)
	assert.Equal(t, ErrShutdownTimeout.Error(), errs[0].Fields["error"])
}

func TestShutDownDb_ContextCanceled(t *testing.T) {
	pool := &fakePool{conn: &fakeConn{}, closeDelay: 500 * time.Millisecond}
	log, logs := fake.NewLogger()
	c := New(pool, log)

	require.NoError(t, c.InitDb(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	require.NoError(t, c.ShutDownDb(ctx))
	assert.Equal(t, Started, c.State())
	assert.Len(t, logs.ByLevel(zapcore.ErrorLevel), 1)
}

func TestOptions_IgnoreZeroValues(t *testing.T) {
	log, _ := fake.NewLogger()
	c := New(&fakePool{}, log, WithShutdownTimeout(0), WithProbeQuery(""))

	assert.Equal(t, DefaultShutdownTimeout, c.shutdownTimeout)
	assert.Equal(t, DefaultProbeQuery, c.probe)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "stopped", Stopped.String())
	assert.Equal(t, "started", Started.String())
	assert.Equal(t, "closed", Closed.String())
	assert.Equal(t, "unknown", State(42).String())
}
