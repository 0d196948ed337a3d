package pgpool

import (
	"context"
	"fmt"
	"sync"

	"github.com/JailtonJunior94/pgkit-go/pkg/logger"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// SessionDefaults runs on every new physical connection before it is handed out.
const SessionDefaults = `SET TIME ZONE 'UTC';
SET idle_in_transaction_session_timeout = '30000ms';
SET lock_timeout = '5000ms';`

const (
	severityFatal = "FATAL"
	severityPanic = "PANIC"
)

// afterConnect applies SessionDefaults. A returned error makes pgxpool discard
// the connection so it never reaches a caller.
func (p *Pool) afterConnect(ctx context.Context, conn *pgx.Conn) error {
	return p.prepareSession(ctx, func(ctx context.Context) error {
		// simple protocol: several statements in one round trip
		_, err := conn.PgConn().Exec(ctx, SessionDefaults).ReadAll()
		return err
	})
}

func (p *Pool) prepareSession(ctx context.Context, apply func(ctx context.Context) error) error {
	if err := ApplyWithRetry(ctx, apply, p.opts.retries, p.opts.retryDelay); err != nil {
		p.log.Error(ctx, "failed to apply session defaults", logger.Err(err))
		return fmt.Errorf("apply session defaults: %w", err)
	}
	return nil
}

// onPgError sees every error the server sends on an established connection.
// Fatal ones are logged and the connection is dropped.
func (p *Pool) onPgError(_ *pgconn.PgConn, pgErr *pgconn.PgError) bool {
	if !isFatal(pgErr) {
		return true
	}

	p.log.Error(context.Background(), "unexpected postgres client error",
		logger.String("error", pgErr.Message),
		logger.String("code", pgErr.Code),
		logger.String("severity", pgErr.Severity),
	)
	return false
}

func isFatal(pgErr *pgconn.PgError) bool {
	return pgErr.Severity == severityFatal || pgErr.Severity == severityPanic
}

// useCounter closes physical connections after max borrows.
type useCounter struct {
	max  int64
	mu   sync.Mutex
	uses map[*pgx.Conn]int64
}

func newUseCounter(max int64) *useCounter {
	return &useCounter{max: max, uses: make(map[*pgx.Conn]int64)}
}

// afterRelease reports whether conn may go back to the idle set.
func (u *useCounter) afterRelease(conn *pgx.Conn) bool {
	u.mu.Lock()
	defer u.mu.Unlock()

	n := u.uses[conn] + 1
	if n >= u.max {
		delete(u.uses, conn)
		return false
	}
	u.uses[conn] = n
	return true
}

func (u *useCounter) forget(conn *pgx.Conn) {
	u.mu.Lock()
	delete(u.uses, conn)
	u.mu.Unlock()
}

func (u *useCounter) tracked() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.uses)
}
