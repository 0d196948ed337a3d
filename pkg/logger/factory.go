package logger

import (
	"context"
	"fmt"
	"io"
	"os"
	"runtime/debug"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const consoleTransport = "console"

// Config controls the sinks built by NewFactory.
type Config struct {
	// Production switches from colorized console output to JSON files plus console.
	Production bool
	// Level is one of debug, info, warn, error. Empty selects info in
	// production and debug otherwise.
	Level string
	// Dir receives the rotated files; created when missing. Default "logs".
	Dir string
	// Console receives the human readable stream. Default os.Stdout.
	Console io.Writer
}

// Option customizes a Factory.
type Option func(*factoryOptions)

type factoryOptions struct {
	core zapcore.Core
}

// WithCore replaces every sink with core. Intended for tests with zaptest/observer.
func WithCore(core zapcore.Core) Option {
	return func(o *factoryOptions) {
		o.core = core
	}
}

// Factory owns the sinks and hands out loggers bound to a base context.
type Factory struct {
	out *output
}

// NewFactory builds the sinks described by cfg.
func NewFactory(cfg Config, opts ...Option) (*Factory, error) {
	var o factoryOptions
	for _, opt := range opts {
		opt(&o)
	}

	if o.core != nil {
		zl := zap.New(o.core)
		return &Factory{out: &output{main: zl, exceptions: zl, rejections: zl}}, nil
	}

	level, err := parseLevel(cfg)
	if err != nil {
		return nil, err
	}

	if cfg.Console == nil {
		cfg.Console = os.Stdout
	}
	if cfg.Dir == "" {
		cfg.Dir = "logs"
	}

	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log directory %s: %w", cfg.Dir, err)
	}

	console := transport{name: consoleTransport, ws: zapcore.Lock(zapcore.AddSync(cfg.Console))}
	consoleCore := zapcore.NewCore(consoleEncoder(!cfg.Production), console.ws, level)

	out := &output{transports: []transport{console}}

	if !cfg.Production {
		out.main = zap.New(consoleCore)
		out.exceptions = out.main
		out.rejections = out.main
		return &Factory{out: out}, nil
	}

	errorFile := out.addFile(cfg.Dir, errorPolicy)
	combinedFile := out.addFile(cfg.Dir, combinedPolicy)
	exceptionFile := out.addFile(cfg.Dir, exceptionPolicy)
	rejectionFile := out.addFile(cfg.Dir, rejectionPolicy)

	errorLevel := zap.LevelEnablerFunc(func(l zapcore.Level) bool {
		return l >= zapcore.ErrorLevel && level.Enabled(l)
	})

	json := jsonEncoder()
	out.main = zap.New(zapcore.NewTee(
		consoleCore,
		zapcore.NewCore(json, errorFile, errorLevel),
		zapcore.NewCore(json, combinedFile, level),
	), zap.AddStacktrace(zapcore.ErrorLevel))

	out.exceptions = zap.New(zapcore.NewTee(
		consoleCore,
		zapcore.NewCore(json, exceptionFile, zapcore.DebugLevel),
	))
	out.rejections = zap.New(zapcore.NewTee(
		consoleCore,
		zapcore.NewCore(json, rejectionFile, zapcore.DebugLevel),
	))

	return &Factory{out: out}, nil
}

func (o *output) addFile(dir string, policy RotationPolicy) zapcore.WriteSyncer {
	w := newDailyWriter(dir, policy)
	o.transports = append(o.transports, transport{name: policy.Kind, ws: w})
	return w
}

func parseLevel(cfg Config) (zap.AtomicLevel, error) {
	name := cfg.Level
	if name == "" {
		name = "debug"
		if cfg.Production {
			name = "info"
		}
	}

	lvl, err := zapcore.ParseLevel(name)
	if err != nil {
		return zap.AtomicLevel{}, fmt.Errorf("invalid log level %q: %w", name, err)
	}
	return zap.NewAtomicLevelAt(lvl), nil
}

func consoleEncoder(color bool) zapcore.Encoder {
	ec := zap.NewDevelopmentEncoderConfig()
	ec.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000")
	ec.EncodeLevel = zapcore.CapitalLevelEncoder
	if color {
		ec.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	ec.ConsoleSeparator = " "
	return zapcore.NewConsoleEncoder(ec)
}

func jsonEncoder() zapcore.Encoder {
	ec := zap.NewProductionEncoderConfig()
	ec.TimeKey = "timestamp"
	ec.EncodeTime = zapcore.ISO8601TimeEncoder
	return zapcore.NewJSONEncoder(ec)
}

// CreateLogger returns a logger whose records always carry base.
func (f *Factory) CreateLogger(base ...Field) Logger {
	return &zapLogger{
		out:  f.out,
		dst:  f.out.main,
		base: merge(base),
	}
}

// RecoverPanic logs a panic to the exception stream and re-panics.
// It must be deferred directly:
//
//	defer factory.RecoverPanic()
func (f *Factory) RecoverPanic() {
	r := recover()
	if r == nil {
		return
	}

	f.out.exceptions.Error("uncaught panic",
		zap.Any("panic", r),
		zap.ByteString("stack", debug.Stack()),
	)
	_ = f.out.exceptions.Sync()
	panic(r)
}

// ReportUnhandled records an error that escaped a detached goroutine.
func (f *Factory) ReportUnhandled(ctx context.Context, err error, fields ...Field) {
	if err == nil || f.out.closed.Load() {
		return
	}

	all := redactFields(merge(contextFields(ctx), fields, []Field{Err(err)}))
	f.out.rejections.Error("unhandled error", toZapFields(all)...)
}

// Flush syncs every sink.
func (f *Factory) Flush(ctx context.Context) error {
	return f.out.flush(ctx)
}

// Close flushes and closes every sink, then waits a short grace period.
func (f *Factory) Close(ctx context.Context) error {
	return f.out.close(ctx)
}
