package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/JailtonJunior94/pgkit-go/pkg/logger"
	"github.com/prometheus/client_golang/prometheus"
)

// UnhandledErrorFunc receives errors raised where no caller is waiting.
type UnhandledErrorFunc func(ctx context.Context, err error, fields ...logger.Field)

// Option is a function that configures a Server.
type Option func(*Server)

// WithConfig sets the full configuration for the server.
func WithConfig(cfg Config) Option {
	return func(s *Server) {
		s.config = cfg
	}
}

// WithAddress sets the listen address, e.g. ":8080".
func WithAddress(addr string) Option {
	return func(s *Server) {
		s.config.Address = addr
	}
}

// WithShutdownTimeout bounds how long Start waits for in-flight requests after a signal.
func WithShutdownTimeout(timeout time.Duration) Option {
	return func(s *Server) {
		s.config.ShutdownTimeout = timeout
	}
}

// WithServiceName sets the service name reported by /health.
func WithServiceName(name string) Option {
	return func(s *Server) {
		s.config.ServiceName = name
	}
}

// WithEnvironment sets the environment reported by /health.
func WithEnvironment(env string) Option {
	return func(s *Server) {
		s.config.Environment = env
	}
}

// WithHealthCheck registers a named check run by /health and /ready.
func WithHealthCheck(name string, check HealthCheckFunc) Option {
	return func(s *Server) {
		s.healthChecks[name] = check
	}
}

// WithMetrics serves /metrics from gatherer.
func WithMetrics(gatherer prometheus.Gatherer) Option {
	return func(s *Server) {
		s.gatherer = gatherer
	}
}

// WithRouters registers application routes.
func WithRouters(routers ...Router) Option {
	return func(s *Server) {
		s.routers = append(s.routers, routers...)
	}
}

// WithMiddleware adds a custom middleware after the built-in ones.
func WithMiddleware(middleware func(http.Handler) http.Handler) Option {
	return func(s *Server) {
		s.customMiddlewares = append(s.customMiddlewares, middleware)
	}
}

// WithUnhandledErrors routes panics of the serve goroutine, and listener
// errors that arrive after shutdown has started, to report.
func WithUnhandledErrors(report UnhandledErrorFunc) Option {
	return func(s *Server) {
		s.reportUnhandled = report
	}
}
