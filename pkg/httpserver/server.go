// Package httpserver is the request entry point: a chi router whose
// middleware makes the request ID ambient for every handler and log record.
package httpserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"sync"
	"syscall"

	"github.com/JailtonJunior94/pgkit-go/pkg/logger"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Router registers application routes on the chi router.
type Router interface {
	Register(router chi.Router)
}

// RouterFunc adapts a function to Router.
type RouterFunc func(router chi.Router)

func (f RouterFunc) Register(router chi.Router) { f(router) }

// Server represents an HTTP server using the chi router.
type Server struct {
	router            chi.Router
	httpServer        *http.Server
	config            Config
	log               logger.Logger
	healthChecks      map[string]HealthCheckFunc
	gatherer          prometheus.Gatherer
	routers           []Router
	customMiddlewares []func(http.Handler) http.Handler
	reportUnhandled   UnhandledErrorFunc
	shutdownOnce      sync.Once
	shutdownErr       error
}

// New creates a new HTTP server with the given options.
func New(log logger.Logger, opts ...Option) (*Server, error) {
	srv := &Server{
		config:       DefaultConfig(),
		log:          log,
		healthChecks: make(map[string]HealthCheckFunc),
	}

	for _, opt := range opts {
		opt(srv)
	}

	if err := srv.config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid server configuration: %w", err)
	}

	srv.router = chi.NewRouter()
	srv.registerMiddlewares()
	srv.registerSupportEndpoints()
	for _, router := range srv.routers {
		router.Register(srv.router)
	}

	srv.httpServer = &http.Server{
		Addr:         srv.config.Address,
		Handler:      srv.router,
		ReadTimeout:  srv.config.ReadTimeout,
		WriteTimeout: srv.config.WriteTimeout,
		IdleTimeout:  srv.config.IdleTimeout,
	}

	return srv, nil
}

// Handler returns the root handler, middleware included.
func (s *Server) Handler() http.Handler {
	return s.router
}

// registerMiddlewares registers all middlewares in order. RequestID comes
// first so that recovery and access logs carry the request ID.
func (s *Server) registerMiddlewares() {
	s.router.Use(RequestID)
	s.router.Use(AccessLog(s.log))
	s.router.Use(Recover(s.log))
	s.router.Use(bodyLimit(s.config.BodyLimit))
	s.router.Use(securityHeadersMiddleware)

	for _, middleware := range s.customMiddlewares {
		s.router.Use(middleware)
	}
}

func (s *Server) registerSupportEndpoints() {
	s.router.Get("/health", healthHandler(s.config, s.healthChecks, s.log))
	s.router.Get("/ready", readyHandler(s.healthChecks))
	s.router.Get("/live", liveHandler)

	if s.gatherer != nil {
		s.router.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
}

// Start serves until ctx is done, SIGINT/SIGTERM arrives or the listener
// fails, then shuts the server down gracefully.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		s.log.Error(ctx, "server failed to start", logger.Err(err))
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve is Start on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.log.Info(ctx, "starting HTTP server",
		logger.String("address", ln.Addr().String()),
		logger.String("service", s.config.ServiceName),
		logger.String("environment", s.config.Environment),
	)

	serverErr := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				err := fmt.Errorf("http server panic: %v", r)
				s.report(ctx, err, logger.String("stack", string(debug.Stack())))
				serverErr <- err
			}
		}()

		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case err := <-serverErr:
		s.log.Error(ctx, "server stopped unexpectedly", logger.Err(err))
		return err
	case <-ctx.Done():
		s.log.Info(ctx, "context cancelled, initiating shutdown")
	case sig := <-sigChan:
		s.log.Info(ctx, "signal received, initiating shutdown", logger.String("signal", sig.String()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.config.ShutdownTimeout)
	defer cancel()

	err := s.Shutdown(shutdownCtx)

	select {
	case lateErr := <-serverErr:
		s.report(ctx, lateErr, logger.String("phase", "shutdown"))
	default:
	}

	return err
}

func (s *Server) report(ctx context.Context, err error, fields ...logger.Field) {
	if s.reportUnhandled != nil {
		s.reportUnhandled(ctx, err, fields...)
	}
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.shutdownOnce.Do(func() {
		s.log.Info(ctx, "initiating graceful shutdown")

		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.log.Error(ctx, "error shutting down HTTP server", logger.Err(err))
			s.shutdownErr = err
			return
		}

		s.log.Info(ctx, "HTTP server stopped")
	})

	return s.shutdownErr
}
