package httpserver

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/JailtonJunior94/pgkit-go/pkg/logger"
)

const (
	statusHealthy   = "healthy"
	statusUnhealthy = "unhealthy"

	healthCheckTimeout    = 5 * time.Second
	readinessCheckTimeout = 3 * time.Second
	maxConcurrentChecks   = 10
)

// HealthCheckFunc returns an error when the dependency it checks is unavailable.
// ctx carries a deadline; implementations must respect it.
type HealthCheckFunc func(ctx context.Context) error

// HealthStatus is the /health response body.
type HealthStatus struct {
	Status      string                 `json:"status"`
	Service     string                 `json:"service"`
	Environment string                 `json:"environment"`
	Timestamp   time.Time              `json:"timestamp"`
	Checks      map[string]CheckResult `json:"checks,omitempty"`
}

// CheckResult is the outcome of a single check.
type CheckResult struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// runChecks executes every check concurrently, at most maxConcurrent at a
// time, and reports whether any of them failed.
func runChecks(
	ctx context.Context,
	checks map[string]HealthCheckFunc,
	timeout time.Duration,
	maxConcurrent int,
) (map[string]CheckResult, bool) {
	if len(checks) == 0 {
		return nil, false
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	semaphore := make(chan struct{}, maxConcurrent)

	results := make(map[string]CheckResult, len(checks))
	var mu sync.Mutex
	var wg sync.WaitGroup
	failed := false

	record := func(name string, err error) {
		mu.Lock()
		defer mu.Unlock()

		if err != nil {
			results[name] = CheckResult{Status: statusUnhealthy, Error: err.Error()}
			failed = true
			return
		}
		results[name] = CheckResult{Status: statusHealthy}
	}

	for name, check := range checks {
		wg.Add(1)

		go func(name string, check HealthCheckFunc) {
			defer wg.Done()

			select {
			case semaphore <- struct{}{}:
				defer func() { <-semaphore }()
			case <-ctx.Done():
				record(name, ctx.Err())
				return
			}

			record(name, check(ctx))
		}(name, check)
	}

	wg.Wait()

	return results, failed
}

func healthHandler(cfg Config, checks map[string]HealthCheckFunc, log logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		results, failed := runChecks(r.Context(), checks, healthCheckTimeout, maxConcurrentChecks)

		status := statusHealthy
		code := http.StatusOK
		if failed {
			status = statusUnhealthy
			code = http.StatusServiceUnavailable

			for name, result := range results {
				if result.Status == statusUnhealthy {
					log.Warn(r.Context(), "health check failed",
						logger.String("check", name),
						logger.String("error", result.Error),
					)
				}
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)

		_ = json.NewEncoder(w).Encode(HealthStatus{
			Status:      status,
			Service:     cfg.ServiceName,
			Environment: cfg.Environment,
			Timestamp:   time.Now(),
			Checks:      results,
		})
	}
}

func readyHandler(checks map[string]HealthCheckFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, failed := runChecks(r.Context(), checks, readinessCheckTimeout, maxConcurrentChecks); failed {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("Service Unavailable"))
			return
		}

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	}
}

func liveHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}
