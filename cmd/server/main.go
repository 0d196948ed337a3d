package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/JailtonJunior94/pgkit-go/pkg/config"
	"github.com/JailtonJunior94/pgkit-go/pkg/database/lifecycle"
	"github.com/JailtonJunior94/pgkit-go/pkg/database/migration"
	"github.com/JailtonJunior94/pgkit-go/pkg/database/pgpool"
	"github.com/JailtonJunior94/pgkit-go/pkg/httpserver"
	"github.com/JailtonJunior94/pgkit-go/pkg/logger"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "server: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	factory, err := logger.NewFactory(logger.Config{
		Production: cfg.App.IsProduction(),
		Level:      cfg.App.Level(),
		Dir:        cfg.App.LogDir,
	})
	if err != nil {
		return err
	}

	ctx := context.Background()
	defer func() {
		closeCtx, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		_ = factory.Close(closeCtx)
	}()
	// runs before Close so a panic still reaches the exception log
	defer factory.RecoverPanic()

	log := factory.CreateLogger(logger.String("service", "server"), logger.String("appName", cfg.App.Name))
	dbLog := factory.CreateLogger(logger.String("service", "DataBase"), logger.String("appName", cfg.App.Name))

	if cfg.Postgres.MigrationsSource != "" {
		if err := migrate(ctx, cfg, dbLog); err != nil {
			return err
		}
	}

	pool, err := pgpool.New(ctx, cfg, dbLog)
	if err != nil {
		log.Error(ctx, "failed to create postgres pool", logger.Err(err))
		return err
	}

	db := lifecycle.New(pool, dbLog, lifecycle.WithShutdownTimeout(cfg.App.ShutdownTimeout()))
	if err := db.InitDb(ctx); err != nil {
		_ = db.ShutDownDb(ctx)
		return err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		pool.Collector(cfg.App.Name),
	)

	srv, err := httpserver.New(log,
		httpserver.WithAddress(cfg.App.HTTPAddr),
		httpserver.WithServiceName(cfg.App.Name),
		httpserver.WithEnvironment(cfg.App.Env),
		httpserver.WithShutdownTimeout(cfg.App.ShutdownTimeout()),
		httpserver.WithHealthCheck("postgres", probe(pool)),
		httpserver.WithMetrics(registry),
		httpserver.WithRouters(&timeRouter{pool: pool, log: log}),
		httpserver.WithUnhandledErrors(factory.ReportUnhandled),
	)
	if err != nil {
		_ = db.ShutDownDb(ctx)
		return err
	}

	serveErr := srv.Start(ctx)

	shutdownCtx, cancel := context.WithTimeout(ctx, cfg.App.ShutdownTimeout()+time.Second)
	defer cancel()
	_ = db.ShutDownDb(shutdownCtx)

	if err := factory.Flush(shutdownCtx); err != nil {
		fmt.Fprintf(os.Stderr, "server: flush logs: %v\n", err)
	}

	return serveErr
}

func migrate(ctx context.Context, cfg *config.Config, log logger.Logger) error {
	m, err := migration.New(cfg, log)
	if err != nil {
		return err
	}
	defer m.Close()

	return m.Up(ctx)
}

// probe runs the connectivity query on a pooled connection.
func probe(pool *pgpool.Pool) httpserver.HealthCheckFunc {
	return func(ctx context.Context) error {
		return pool.Query(ctx, func(ctx context.Context, conn pgpool.Conn) error {
			_, err := conn.Exec(ctx, lifecycle.DefaultProbeQuery)
			return err
		})
	}
}

// timeRouter serves the database clock, the smallest round trip that
// exercises the session defaults.
type timeRouter struct {
	pool *pgpool.Pool
	log  logger.Logger
}

func (t *timeRouter) Register(r chi.Router) {
	r.Get("/v1/time", t.now)
}

func (t *timeRouter) now(w http.ResponseWriter, r *http.Request) {
	var (
		now      time.Time
		timezone string
	)

	err := t.pool.Query(r.Context(), func(ctx context.Context, conn pgpool.Conn) error {
		return conn.QueryRow(ctx, "SELECT now(), current_setting('TimeZone')").Scan(&now, &timezone)
	})
	switch {
	case errors.Is(err, pgpool.ErrPoolExhausted):
		t.log.Warn(r.Context(), "no database connection available", logger.Err(err))
		httpserver.WriteError(w, r, http.StatusServiceUnavailable, "database unavailable")
		return
	case err != nil:
		t.log.Error(r.Context(), "failed to read database time", logger.Err(err))
		httpserver.WriteError(w, r, http.StatusInternalServerError, "failed to read database time")
		return
	}

	t.log.Debug(r.Context(), "database time read", logger.String("timezone", timezone))

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{
		"now":      now.Format(time.RFC3339Nano),
		"timezone": timezone,
	})
}
