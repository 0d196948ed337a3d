// Package fake provides a logger that captures records for test assertions.
// Records pass through the real merge and redaction pipeline.
package fake

import (
	"github.com/JailtonJunior94/pgkit-go/pkg/logger"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// Logs captures every record written by the loggers returned from NewLogger.
type Logs struct {
	observed *observer.ObservedLogs
}

// LogEntry represents a captured log entry.
type LogEntry struct {
	Level   zapcore.Level
	Message string
	Fields  map[string]any
}

// NewLogger returns a debug-level logger and the record it writes to.
func NewLogger(base ...logger.Field) (logger.Logger, *Logs) {
	core, observed := observer.New(zapcore.DebugLevel)

	factory, err := logger.NewFactory(logger.Config{}, logger.WithCore(core))
	if err != nil {
		panic(err)
	}

	return factory.CreateLogger(base...), &Logs{observed: observed}
}

// GetEntries returns all captured log entries.
func (l *Logs) GetEntries() []LogEntry {
	all := l.observed.All()
	out := make([]LogEntry, 0, len(all))
	for _, e := range all {
		out = append(out, LogEntry{
			Level:   e.Level,
			Message: e.Message,
			Fields:  e.ContextMap(),
		})
	}
	return out
}

// ByLevel returns the captured entries at level.
func (l *Logs) ByLevel(level zapcore.Level) []LogEntry {
	var out []LogEntry
	for _, e := range l.GetEntries() {
		if e.Level == level {
			out = append(out, e)
		}
	}
	return out
}

// ByMessage returns the captured entries whose message equals msg.
func (l *Logs) ByMessage(msg string) []LogEntry {
	var out []LogEntry
	for _, e := range l.GetEntries() {
		if e.Message == msg {
			out = append(out, e)
		}
	}
	return out
}

// Len returns the number of captured entries.
func (l *Logs) Len() int {
	return l.observed.Len()
}

// Reset clears all captured log entries.
func (l *Logs) Reset() {
	_ = l.observed.TakeAll()
}
