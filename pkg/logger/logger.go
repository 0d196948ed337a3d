package logger

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/JailtonJunior94/pgkit-go/pkg/requestctx"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	// RequestIDKey is the field carrying the ambient request ID.
	RequestIDKey = "requestId"

	closeGracePeriod = 25 * time.Millisecond
)

// Logger provides leveled structured logging. Every call merges the bound base
// fields, the call fields and the request ID found in ctx, then redacts
// sensitive keys before the record is written.
type Logger interface {
	Debug(ctx context.Context, msg string, fields ...Field)
	Info(ctx context.Context, msg string, fields ...Field)
	Warn(ctx context.Context, msg string, fields ...Field)
	Error(ctx context.Context, msg string, fields ...Field)

	// With returns a child logger that adds fields to every record.
	With(fields ...Field) Logger

	// Flush lets pending writes reach their sinks.
	Flush(ctx context.Context) error

	// Close flushes, stops accepting records and closes every sink.
	Close(ctx context.Context) error
}

// transport is one output sink owned by the factory.
type transport struct {
	name string
	ws   zapcore.WriteSyncer
}

// output is shared by every logger created from the same Factory.
type output struct {
	main       *zap.Logger
	exceptions *zap.Logger
	rejections *zap.Logger
	transports []transport
	closed     atomic.Bool
}

type zapLogger struct {
	out  *output
	dst  *zap.Logger
	base []Field
}

func (l *zapLogger) Debug(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, zapcore.DebugLevel, msg, fields)
}

func (l *zapLogger) Info(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, zapcore.InfoLevel, msg, fields)
}

func (l *zapLogger) Warn(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, zapcore.WarnLevel, msg, fields)
}

func (l *zapLogger) Error(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, zapcore.ErrorLevel, msg, fields)
}

func (l *zapLogger) With(fields ...Field) Logger {
	return &zapLogger{
		out:  l.out,
		dst:  l.dst,
		base: merge(l.base, fields),
	}
}

func (l *zapLogger) log(ctx context.Context, level zapcore.Level, msg string, fields []Field) {
	if l.out.closed.Load() {
		return
	}

	ce := l.dst.Check(level, msg)
	if ce == nil {
		return
	}

	all := redactFields(merge(contextFields(ctx), l.base, fields))
	ce.Write(toZapFields(all)...)
}

func (l *zapLogger) Flush(ctx context.Context) error {
	return l.out.flush(ctx)
}

func (l *zapLogger) Close(ctx context.Context) error {
	return l.out.close(ctx)
}

// contextFields extracts the request ID and, when present, the active span.
func contextFields(ctx context.Context) []Field {
	if ctx == nil {
		return nil
	}

	var fields []Field
	if id, ok := requestctx.RequestID(ctx); ok {
		fields = append(fields, String(RequestIDKey, id))
	}

	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		fields = append(fields,
			String("trace_id", sc.TraceID().String()),
			String("span_id", sc.SpanID().String()),
		)
	}

	return fields
}

func toZapFields(fields []Field) []zap.Field {
	out := make([]zap.Field, 0, len(fields))
	for _, f := range fields {
		switch v := f.Value.(type) {
		case error:
			out = append(out, zap.String(f.Key, v.Error()))
		case fmt.Stringer:
			out = append(out, zap.Stringer(f.Key, v))
		default:
			out = append(out, zap.Any(f.Key, v))
		}
	}
	return out
}

func (o *output) flush(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var errs []error
	for _, t := range o.transports {
		if err := t.ws.Sync(); err != nil && !isStdSyncError(t) {
			errs = append(errs, fmt.Errorf("sync %s: %w", t.name, err))
		}
	}
	// give goroutines blocked on a sink a chance to finish their write
	runtime.Gosched()

	return errors.Join(errs...)
}

// close never fails because of a sink: each one is ended independently.
func (o *output) close(ctx context.Context) error {
	if !o.closed.CompareAndSwap(false, true) {
		return nil
	}

	for _, zl := range []*zap.Logger{o.main, o.exceptions, o.rejections} {
		quietly(func() { _ = zl.Sync() })
	}

	for _, t := range o.transports {
		t := t
		quietly(func() { _ = t.ws.Sync() })
		if c, ok := t.ws.(interface{ Close() error }); ok {
			quietly(func() { _ = c.Close() })
		}
	}

	timer := time.NewTimer(closeGracePeriod)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-ctx.Done():
	}
	return nil
}

// quietly runs fn and discards any panic it raises.
func quietly(fn func()) {
	defer func() { _ = recover() }()
	fn()
}

// isStdSyncError reports whether t is a terminal stream, where fsync commonly
// fails with EINVAL or ENOTTY and can be ignored.
func isStdSyncError(t transport) bool {
	return t.name == consoleTransport
}
