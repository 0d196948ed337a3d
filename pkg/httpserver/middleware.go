package httpserver

import (
	"fmt"
	"net/http"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/JailtonJunior94/pgkit-go/pkg/logger"
	"github.com/JailtonJunior94/pgkit-go/pkg/requestctx"
)

const maxRequestIDLength = 128

// responseWriter tracks the status code and whether headers were sent.
type responseWriter struct {
	http.ResponseWriter
	mu            sync.Mutex
	status        int
	headerWritten bool
}

func newResponseWriter(w http.ResponseWriter) *responseWriter {
	return &responseWriter{ResponseWriter: w, status: http.StatusOK}
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.mu.Lock()
	defer rw.mu.Unlock()

	if !rw.headerWritten {
		rw.headerWritten = true
		rw.status = code
		rw.ResponseWriter.WriteHeader(code)
	}
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	rw.mu.Lock()
	defer rw.mu.Unlock()

	rw.headerWritten = true
	return rw.ResponseWriter.Write(b)
}

func (rw *responseWriter) HeaderWritten() bool {
	rw.mu.Lock()
	defer rw.mu.Unlock()
	return rw.headerWritten
}

func (rw *responseWriter) Status() int {
	rw.mu.Lock()
	defer rw.mu.Unlock()
	return rw.status
}

// RequestID reuses the caller's X-Request-ID or generates one, echoes it in
// the response and makes it the ambient request ID for everything downstream.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := strings.TrimSpace(r.Header.Get(requestctx.HeaderRequestID))
		if requestID == "" || len(requestID) > maxRequestIDLength {
			requestID = requestctx.NewRequestID()
		}

		w.Header().Set(requestctx.HeaderRequestID, requestID)
		ctx := requestctx.WithContext(r.Context(), requestctx.Context{RequestID: requestID})

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Recover turns a handler panic into a 500 and logs it with the stack.
func Recover(log logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rw := newResponseWriter(w)

			defer func() {
				recovered := recover()
				if recovered == nil {
					return
				}
				if recovered == http.ErrAbortHandler {
					panic(recovered)
				}

				log.Error(r.Context(), "panic recovered",
					logger.String("path", r.URL.Path),
					logger.String("method", r.Method),
					logger.String("panic", fmt.Sprint(recovered)),
					logger.String("stack", string(debug.Stack())),
				)

				if !rw.HeaderWritten() {
					WriteError(rw, r, http.StatusInternalServerError, "Internal server error")
					return
				}
				log.Warn(r.Context(), "cannot send panic error response: headers already sent")
			}()

			next.ServeHTTP(rw, r)
		})
	}
}

// AccessLog writes one record per request. Headers go through the logger's
// redaction, so credentials never reach the sinks.
func AccessLog(log logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := newResponseWriter(w)

			next.ServeHTTP(rw, r)

			fields := []logger.Field{
				logger.String("method", r.Method),
				logger.String("path", r.URL.Path),
				logger.Int("status", rw.Status()),
				logger.Duration("duration", time.Since(start)),
				logger.Any("headers", map[string][]string(r.Header.Clone())),
			}

			switch {
			case rw.Status() >= http.StatusInternalServerError:
				log.Error(r.Context(), "request completed", fields...)
			case rw.Status() >= http.StatusBadRequest:
				log.Warn(r.Context(), "request completed", fields...)
			default:
				log.Info(r.Context(), "request completed", fields...)
			}
		})
	}
}

// bodyLimit enforces a maximum request body size.
func bodyLimit(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)

			if r.ContentLength > maxBytes {
				WriteError(w, r, http.StatusRequestEntityTooLarge,
					fmt.Sprintf("Request body exceeds maximum size of %d bytes", maxBytes))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

var securityHeaders = map[string]string{
	"X-Frame-Options":        "DENY",
	"X-Content-Type-Options": "nosniff",
	"Referrer-Policy":        "strict-origin-when-cross-origin",
}

func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for k, v := range securityHeaders {
			w.Header().Set(k, v)
		}
		next.ServeHTTP(w, r)
	})
}
