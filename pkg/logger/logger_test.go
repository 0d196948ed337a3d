package logger

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/JailtonJunior94/pgkit-go/pkg/requestctx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newObserved(t *testing.T) (*Factory, *observer.ObservedLogs) {
	t.Helper()

	core, logs := observer.New(zapcore.DebugLevel)
	f, err := NewFactory(Config{}, WithCore(core))
	require.NoError(t, err)
	return f, logs
}

func TestLogger_Levels(t *testing.T) {
	f, logs := newObserved(t)
	log := f.CreateLogger()
	ctx := context.Background()

	log.Debug(ctx, "d")
	log.Info(ctx, "i")
	log.Warn(ctx, "w")
	log.Error(ctx, "e")

	all := logs.All()
	require.Len(t, all, 4)
	assert.Equal(t, zapcore.DebugLevel, all[0].Level)
	assert.Equal(t, zapcore.InfoLevel, all[1].Level)
	assert.Equal(t, zapcore.WarnLevel, all[2].Level)
	assert.Equal(t, zapcore.ErrorLevel, all[3].Level)
	assert.Equal(t, "e", all[3].Message)
}

func TestLogger_InjectsRequestID(t *testing.T) {
	f, logs := newObserved(t)
	log := f.CreateLogger()

	err := requestctx.Run(context.Background(), requestctx.Context{RequestID: "req-42"}, func(ctx context.Context) error {
		log.Info(ctx, "inside")
		return nil
	})
	require.NoError(t, err)

	log.Info(context.Background(), "outside")

	all := logs.All()
	require.Len(t, all, 2)
	assert.Equal(t, "req-42", all[0].ContextMap()[RequestIDKey])
	assert.NotContains(t, all[1].ContextMap(), RequestIDKey)
}

func TestLogger_NilContext(t *testing.T) {
	f, logs := newObserved(t)
	log := f.CreateLogger(String("service", "api"))

	//nolint:staticcheck // nil context is tolerated
	log.Info(nil, "no context")

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "api", logs.All()[0].ContextMap()["service"])
}

func TestLogger_MergesBaseAndCallFields(t *testing.T) {
	f, logs := newObserved(t)
	log := f.CreateLogger(String("service", "api"), String("module", "db")).
		With(String("component", "pool"))

	log.Info(context.Background(), "merged", String("module", "override"), Int("attempt", 2))

	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "api", fields["service"])
	assert.Equal(t, "override", fields["module"])
	assert.Equal(t, "pool", fields["component"])
	assert.EqualValues(t, 2, fields["attempt"])
}

func TestLogger_CallFieldOverridesRequestID(t *testing.T) {
	f, logs := newObserved(t)
	log := f.CreateLogger()

	ctx := requestctx.WithContext(context.Background(), requestctx.Context{RequestID: "real"})
	log.Info(ctx, "msg", String(RequestIDKey, "explicit"))

	assert.Equal(t, "explicit", logs.All()[0].ContextMap()[RequestIDKey])
}

func TestLogger_RedactsSensitiveFields(t *testing.T) {
	f, logs := newObserved(t)
	log := f.CreateLogger(String("token", "base-secret"))

	body := map[string]any{
		"user": map[string]any{"email": "a@b.c", "name": "ana"},
	}
	log.Info(context.Background(), "login", String("password", "hunter2"), Any("body", body))

	fields := logs.All()[0].ContextMap()
	assert.Equal(t, RedactedValue, fields["token"])
	assert.Equal(t, RedactedValue, fields["password"])

	user := fields["body"].(map[string]any)["user"].(map[string]any)
	assert.Equal(t, RedactedValue, user["email"])
	assert.Equal(t, "ana", user["name"])

	// caller data is left intact
	assert.Equal(t, "a@b.c", body["user"].(map[string]any)["email"])
}

func TestLogger_ErrorValues(t *testing.T) {
	f, logs := newObserved(t)
	log := f.CreateLogger()

	log.Error(context.Background(), "failed", Err(errors.New("boom")), Any("cause", errors.New("inner")))

	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "boom", fields["error"])
	assert.Equal(t, "inner", fields["cause"])
}

func TestLogger_CloseDropsLaterRecords(t *testing.T) {
	f, logs := newObserved(t)
	log := f.CreateLogger()
	ctx := context.Background()

	log.Info(ctx, "before")
	require.NoError(t, log.Close(ctx))
	log.Info(ctx, "after")
	log.Error(ctx, "after")

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "before", logs.All()[0].Message)
}

func TestLogger_CloseIsIdempotent(t *testing.T) {
	f, _ := newObserved(t)
	ctx := context.Background()

	require.NoError(t, f.Close(ctx))
	require.NoError(t, f.Close(ctx))
}

func TestLogger_CloseWaitsGracePeriod(t *testing.T) {
	f, _ := newObserved(t)

	start := time.Now()
	require.NoError(t, f.Close(context.Background()))
	assert.GreaterOrEqual(t, time.Since(start), closeGracePeriod)
}

type failingSink struct {
	closed bool
}

func (s *failingSink) Write(p []byte) (int, error) { return len(p), nil }
func (s *failingSink) Sync() error                 { return errors.New("sync failed") }
func (s *failingSink) Close() error                { s.closed = true; return errors.New("close failed") }

type panickingSink struct{}

func (panickingSink) Write(p []byte) (int, error) { return len(p), nil }
func (panickingSink) Sync() error                 { panic("sync panic") }

func TestLogger_CloseToleratesFailingTransports(t *testing.T) {
	failing := &failingSink{}
	nop := zap.NewNop()
	out := &output{
		main:       nop,
		exceptions: nop,
		rejections: nop,
		transports: []transport{
			{name: "panicking", ws: panickingSink{}},
			{name: "failing", ws: failing},
		},
	}
	log := &zapLogger{out: out, dst: nop}

	assert.NotPanics(t, func() {
		require.NoError(t, log.Close(context.Background()))
	})
	assert.True(t, failing.closed, "every transport is closed even when an earlier one fails")
}

func TestLogger_FlushReportsSinkErrors(t *testing.T) {
	nop := zap.NewNop()
	out := &output{
		main:       nop,
		exceptions: nop,
		rejections: nop,
		transports: []transport{
			{name: consoleTransport, ws: &failingSink{}},
			{name: "combined", ws: &failingSink{}},
		},
	}

	err := out.flush(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sync combined")
	assert.NotContains(t, err.Error(), "sync console")
}

func TestLogger_FlushCanceledContext(t *testing.T) {
	f, _ := newObserved(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, f.Flush(ctx), context.Canceled)
}

func TestFactory_ReportUnhandled(t *testing.T) {
	f, logs := newObserved(t)
	ctx := requestctx.WithContext(context.Background(), requestctx.Context{RequestID: "r1"})

	f.ReportUnhandled(ctx, errors.New("lost"), String("job", "cleanup"))
	f.ReportUnhandled(ctx, nil)

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, zapcore.ErrorLevel, entry.Level)
	assert.Equal(t, "lost", entry.ContextMap()["error"])
	assert.Equal(t, "r1", entry.ContextMap()[RequestIDKey])
	assert.Equal(t, "cleanup", entry.ContextMap()["job"])
}

func TestFactory_RecoverPanic(t *testing.T) {
	f, logs := newObserved(t)

	assert.PanicsWithValue(t, "kaboom", func() {
		defer f.RecoverPanic()
		panic("kaboom")
	})

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "uncaught panic", logs.All()[0].Message)
	assert.Contains(t, logs.All()[0].ContextMap(), "stack")
}

func TestNewFactory_InvalidLevel(t *testing.T) {
	_, err := NewFactory(Config{Level: "verbose", Dir: t.TempDir(), Console: &bytes.Buffer{}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "verbose")
}

func TestNewFactory_DevelopmentConsoleOnly(t *testing.T) {
	dir := t.TempDir()
	var console bytes.Buffer

	f, err := NewFactory(Config{Dir: dir, Console: &console})
	require.NoError(t, err)

	log := f.CreateLogger(String("service", "api"))
	log.Debug(context.Background(), "debug visible", String("password", "x"))
	require.NoError(t, f.Close(context.Background()))

	out := console.String()
	assert.Contains(t, out, "debug visible")
	assert.Contains(t, out, RedactedValue)
	assert.NotContains(t, out, `"x"`)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestNewFactory_ProductionWritesFiles(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "logs")
	var console bytes.Buffer

	f, err := NewFactory(Config{Production: true, Dir: dir, Console: &console})
	require.NoError(t, err)

	log := f.CreateLogger(String("service", "api"))
	ctx := context.Background()
	log.Debug(ctx, "hidden debug")
	log.Info(ctx, "info record")
	log.Error(ctx, "error record", String("authorization", "Bearer abc"))
	require.NoError(t, f.Close(ctx))

	day := time.Now().UTC().Format(datePattern)

	combined, err := os.ReadFile(filepath.Join(dir, "combined-"+day+".log"))
	require.NoError(t, err)
	assert.Contains(t, string(combined), `"msg":"info record"`)
	assert.Contains(t, string(combined), `"msg":"error record"`)
	assert.Contains(t, string(combined), `"timestamp"`)
	assert.NotContains(t, string(combined), "hidden debug")
	assert.NotContains(t, string(combined), "Bearer abc")

	errorsLog, err := os.ReadFile(filepath.Join(dir, "error-"+day+".log"))
	require.NoError(t, err)
	assert.Contains(t, string(errorsLog), "error record")
	assert.NotContains(t, string(errorsLog), "info record")

	assert.NoFileExists(t, filepath.Join(dir, "exception-"+day+".log"))
	assert.True(t, strings.Contains(console.String(), "info record"))
}
