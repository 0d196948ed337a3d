// Package migration applies file based schema migrations with golang-migrate
// before the pool starts serving.
package migration

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/JailtonJunior94/pgkit-go/pkg/config"
	"github.com/JailtonJunior94/pgkit-go/pkg/logger"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

// engine is the subset of *migrate.Migrate the Migrator drives.
type engine interface {
	Up() error
	Version() (uint, bool, error)
	Close() (error, error)
}

// Migrator runs migrations from a source URL against the configured database.
type Migrator struct {
	engine   engine
	log      logger.Logger
	database string
	timeout  time.Duration

	mu        sync.RWMutex
	closed    bool
	closeOnce sync.Once
	closeErr  error
}

// New opens the migration source and the database.
func New(cfg *config.Config, log logger.Logger, opts ...Option) (*Migrator, error) {
	if cfg.Postgres.MigrationsSource == "" {
		return nil, ErrMissingSource
	}

	o := options{
		timeout:          DefaultTimeout,
		statementTimeout: cfg.Postgres.StatementTimeout(),
		multiStatement:   true,
	}
	for _, opt := range opts {
		opt(&o)
	}

	m := &Migrator{
		engine:   o.engine,
		log:      log,
		database: cfg.Postgres.Database,
		timeout:  o.timeout,
	}

	if m.engine == nil {
		databaseURL, err := databaseURL(cfg.Postgres, o)
		if err != nil {
			return nil, err
		}

		e, err := migrate.New(cfg.Postgres.MigrationsSource, databaseURL)
		if err != nil {
			log.Error(context.Background(), "failed to open migrations",
				logger.Err(err),
				logger.String("source", cfg.Postgres.MigrationsSource),
			)
			return nil, fmt.Errorf("open migrations: %w", err)
		}
		m.engine = e
	}

	return m, nil
}

// databaseURL appends the golang-migrate driver parameters to the pool target.
func databaseURL(p config.Postgres, o options) (string, error) {
	u, err := url.Parse(p.URL(driverScheme))
	if err != nil {
		return "", fmt.Errorf("build migration url: %w", err)
	}

	q := u.Query()
	if o.statementTimeout > 0 {
		q.Set(statementTimeoutParam, strconv.FormatInt(o.statementTimeout.Milliseconds(), 10))
	}
	if o.table != "" {
		q.Set(migrationsTableParam, o.table)
	}
	if o.multiStatement {
		q.Set("x-multi-statement", "true")
		q.Set("x-multi-statement-max-size", strconv.Itoa(defaultMaxMultiStmt))
	}
	u.RawQuery = q.Encode()

	return u.String(), nil
}

// Up applies every pending migration. An up to date schema is not an error.
func (m *Migrator) Up(ctx context.Context) error {
	if err := m.checkClosed(); err != nil {
		return err
	}

	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- m.engine.Up()
	}()

	select {
	case <-ctx.Done():
		m.log.Error(ctx, "migration timed out",
			logger.String("database", m.database),
			logger.String("timeout", m.timeout.String()),
		)
		return fmt.Errorf("migration up: %w", ctx.Err())

	case err := <-done:
		duration := logger.String("duration", time.Since(start).String())

		switch {
		case errors.Is(err, migrate.ErrNoChange):
			m.log.Info(ctx, "schema is up to date", logger.String("database", m.database), duration)
			return nil
		case err != nil:
			version, dirty, _ := m.engine.Version()
			m.log.Error(ctx, "migration failed",
				logger.Err(err),
				logger.String("database", m.database),
				logger.Any("version", version),
				logger.Bool("dirty", dirty),
				duration,
			)
			var dirtyErr migrate.ErrDirty
			if errors.As(err, &dirtyErr) {
				return fmt.Errorf("%w: version %d", ErrDirtyDatabase, dirtyErr.Version)
			}
			return &Error{Operation: "up", Version: version, Err: err}
		}

		version, _, _ := m.engine.Version()
		m.log.Info(ctx, "migrations applied",
			logger.String("database", m.database),
			logger.Any("version", version),
			duration,
		)
		return nil
	}
}

// Version reports the applied version; (0, false, nil) before the first migration.
func (m *Migrator) Version() (uint, bool, error) {
	if err := m.checkClosed(); err != nil {
		return 0, false, err
	}

	version, dirty, err := m.engine.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("migration version: %w", err)
	}
	return version, dirty, nil
}

// Close releases the source and database handles. Safe to call twice.
func (m *Migrator) Close() error {
	m.closeOnce.Do(func() {
		m.mu.Lock()
		m.closed = true
		m.mu.Unlock()

		srcErr, dbErr := m.engine.Close()
		m.closeErr = errors.Join(srcErr, dbErr)
		if m.closeErr != nil {
			m.log.Warn(context.Background(), "failed to close migrator", logger.Err(m.closeErr))
		}
	})
	return m.closeErr
}

func (m *Migrator) checkClosed() error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return ErrClosed
	}
	return nil
}
