package migration

import "time"

const (
	DefaultTimeout        = 5 * time.Minute
	defaultMaxMultiStmt   = 10 * 1024 * 1024
	driverScheme          = "pgx5"
	migrationsTableParam  = "x-migrations-table"
	statementTimeoutParam = "x-statement-timeout"
)

type options struct {
	timeout          time.Duration
	statementTimeout time.Duration
	table            string
	multiStatement   bool
	engine           engine
}

type Option func(*options)

// WithTimeout bounds a whole Up run. Non-positive values are ignored.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithStatementTimeout bounds each migration statement.
func WithStatementTimeout(d time.Duration) Option {
	return func(o *options) {
		o.statementTimeout = d
	}
}

// WithTable overrides the schema_migrations bookkeeping table.
func WithTable(name string) Option {
	return func(o *options) {
		o.table = name
	}
}

// WithMultiStatement lets a migration file hold several statements.
func WithMultiStatement(enabled bool) Option {
	return func(o *options) {
		o.multiStatement = enabled
	}
}

func withEngine(e engine) Option {
	return func(o *options) {
		o.engine = e
	}
}
