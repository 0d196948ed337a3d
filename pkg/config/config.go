package config

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Config holds the process configuration read from the environment.
// It is built once at startup and must not be mutated afterwards.
type Config struct {
	Postgres Postgres
	App      App
}

// Postgres holds the PG_* variables.
type Postgres struct {
	Host     string `envconfig:"PG_HOST" required:"true" validate:"required"`
	Port     int    `envconfig:"PG_PORT" required:"true" validate:"gt=0,lte=65535"`
	Database string `envconfig:"PG_DATABASE" required:"true" validate:"required"`
	User     string `envconfig:"PG_USER" required:"true" validate:"required"`
	Password string `envconfig:"PG_PASSWORD"`
	SSL      bool   `envconfig:"PG_SSL" default:"false"`

	PoolMax int `envconfig:"PG_POOL_MAX" default:"1" validate:"gt=0"`
	PoolMin int `envconfig:"PG_POOL_MIN" default:"0" validate:"gte=0,ltefield=PoolMax"`

	ConnTimeoutMS      int `envconfig:"PG_CONN_TIMEOUT_MS" default:"5000" validate:"gt=0"`
	IdleTimeoutMS      int `envconfig:"PG_IDLE_TIMEOUT_MS" default:"30000" validate:"gt=0"`
	StatementTimeoutMS int `envconfig:"PG_STATEMENT_TIMEOUT_MS" default:"30000" validate:"gt=0"`
	QueryTimeoutMS     int `envconfig:"PG_QUERY_TIMEOUT_MS" default:"30000" validate:"gt=0"`

	// MigrationsSource is a golang-migrate source URL; empty skips migrations.
	MigrationsSource string `envconfig:"PG_MIGRATIONS_SOURCE" validate:"omitempty,startswith=file://"`
}

// App holds the process-level settings.
type App struct {
	Name              string `envconfig:"APP_NAME" default:"node-app" validate:"required"`
	Env               string `envconfig:"APP_ENV" default:"development" validate:"oneof=development production"`
	LogLevel          string `envconfig:"LOG_LEVEL" validate:"omitempty,oneof=debug info warn error"`
	LogDir            string `envconfig:"LOG_DIR" default:"logs" validate:"required"`
	HTTPAddr          string `envconfig:"HTTP_ADDR" default:":8080" validate:"required"`
	ShutdownTimeoutMS int    `envconfig:"SHUTDOWN_TIMEOUT_MS" default:"10000" validate:"gt=0"`
}

// IsProduction reports whether APP_ENV is production.
func (a App) IsProduction() bool {
	return a.Env == EnvProduction
}

// Level returns LOG_LEVEL, falling back to info in production and debug elsewhere.
func (a App) Level() string {
	if a.LogLevel != "" {
		return a.LogLevel
	}
	if a.IsProduction() {
		return "info"
	}
	return "debug"
}

func (a App) ShutdownTimeout() time.Duration {
	return ms(a.ShutdownTimeoutMS)
}

func (p Postgres) ConnTimeout() time.Duration      { return ms(p.ConnTimeoutMS) }
func (p Postgres) IdleTimeout() time.Duration      { return ms(p.IdleTimeoutMS) }
func (p Postgres) StatementTimeout() time.Duration { return ms(p.StatementTimeoutMS) }
func (p Postgres) QueryTimeout() time.Duration     { return ms(p.QueryTimeoutMS) }

// SSLMode maps PG_SSL onto a libpq sslmode.
func (p Postgres) SSLMode() string {
	if p.SSL {
		return "require"
	}
	return "disable"
}

// DSN builds a keyword/value connection string.
func (p Postgres) DSN() string {
	parts := []string{
		"host=" + quote(p.Host),
		fmt.Sprintf("port=%d", p.Port),
		"dbname=" + quote(p.Database),
		"user=" + quote(p.User),
		"sslmode=" + p.SSLMode(),
	}
	if p.Password != "" {
		parts = append(parts, "password="+quote(p.Password))
	}
	return strings.Join(parts, " ")
}

// URL builds a postgres URL with the given scheme, credentials included.
func (p Postgres) URL(scheme string) string {
	u := url.URL{
		Scheme:   scheme,
		Host:     p.Host + ":" + strconv.Itoa(p.Port),
		Path:     "/" + p.Database,
		RawQuery: url.Values{"sslmode": {p.SSLMode()}}.Encode(),
	}
	if p.Password != "" {
		u.User = url.UserPassword(p.User, p.Password)
	} else {
		u.User = url.User(p.User)
	}
	return u.String()
}

// String renders the connection target without credentials.
func (p Postgres) String() string {
	return fmt.Sprintf("postgres://%s@%s:%d/%s?sslmode=%s", p.User, p.Host, p.Port, p.Database, p.SSLMode())
}

func ms(v int) time.Duration {
	return time.Duration(v) * time.Millisecond
}

func quote(v string) string {
	if v == "" || strings.ContainsAny(v, ` '\`) {
		v = strings.ReplaceAll(v, `\`, `\\`)
		v = strings.ReplaceAll(v, `'`, `\'`)
		return "'" + v + "'"
	}
	return v
}
