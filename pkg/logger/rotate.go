package logger

import (
	"compress/gzip"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

const datePattern = "2006-01-02"

// RotationPolicy bounds one family of log files.
type RotationPolicy struct {
	// Kind is the file prefix: <kind>-<YYYY-MM-DD>.log
	Kind string
	// MaxSizeMB triggers a size rotation inside the same day.
	MaxSizeMB int
	// MaxAgeDays removes files, current-day backups included, older than this.
	MaxAgeDays int
	// Compress gzips rotated files.
	Compress bool
}

var (
	errorPolicy     = RotationPolicy{Kind: "error", MaxSizeMB: 10, MaxAgeDays: 30, Compress: true}
	combinedPolicy  = RotationPolicy{Kind: "combined", MaxSizeMB: 20, MaxAgeDays: 14, Compress: true}
	exceptionPolicy = RotationPolicy{Kind: "exception", MaxSizeMB: 10, MaxAgeDays: 30, Compress: true}
	rejectionPolicy = RotationPolicy{Kind: "rejection", MaxSizeMB: 10, MaxAgeDays: 30, Compress: true}
)

// dailyWriter writes to <dir>/<kind>-<date>.log and switches files when the
// date changes. Size rotation, in-day pruning and gzip of size-rotated backups
// are handled by lumberjack; finished day files are gzipped and pruned here.
type dailyWriter struct {
	mu     sync.Mutex
	dir    string
	policy RotationPolicy
	now    func() time.Time

	day     string
	current *lumberjack.Logger
	closed  bool
	bg      sync.WaitGroup
}

func newDailyWriter(dir string, policy RotationPolicy) *dailyWriter {
	return &dailyWriter{
		dir:    dir,
		policy: policy,
		now:    time.Now,
	}
}

func (w *dailyWriter) filename(day string) string {
	return filepath.Join(w.dir, w.policy.Kind+"-"+day+".log")
}

func (w *dailyWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return 0, os.ErrClosed
	}

	day := w.now().UTC().Format(datePattern)
	if w.current == nil || day != w.day {
		w.rollover(day)
	}

	return w.current.Write(p)
}

// rollover must be called with mu held.
func (w *dailyWriter) rollover(day string) {
	if w.current != nil {
		_ = w.current.Close()

		finished := w.filename(w.day)
		w.bg.Add(1)
		go func() {
			defer w.bg.Done()
			if w.policy.Compress {
				_ = gzipFile(finished)
			}
			w.prune(day)
		}()
	} else {
		// first write of this process: earlier days may be left over from a previous run
		w.bg.Add(1)
		go func() {
			defer w.bg.Done()
			if w.policy.Compress {
				w.archiveStale(day)
			}
			w.prune(day)
		}()
	}

	w.day = day
	w.current = &lumberjack.Logger{
		Filename: w.filename(day),
		MaxSize:  w.policy.MaxSizeMB,
		MaxAge:   w.policy.MaxAgeDays,
		Compress: w.policy.Compress,
	}
}

// prune removes day files of this kind older than MaxAgeDays, relative to today.
func (w *dailyWriter) prune(today string) {
	if w.policy.MaxAgeDays <= 0 {
		return
	}

	ref, err := time.Parse(datePattern, today)
	if err != nil {
		return
	}
	cutoff := ref.AddDate(0, 0, -w.policy.MaxAgeDays)

	matches, err := filepath.Glob(filepath.Join(w.dir, w.policy.Kind+"-*.log*"))
	if err != nil {
		return
	}

	prefix := w.policy.Kind + "-"
	for _, path := range matches {
		name := strings.TrimPrefix(filepath.Base(path), prefix)
		if len(name) < len(datePattern) {
			continue
		}
		day, err := time.Parse(datePattern, name[:len(datePattern)])
		if err != nil {
			continue
		}
		if day.Before(cutoff) {
			_ = os.Remove(path)
		}
	}
}

// archiveStale gzips uncompressed files of this kind dated before today.
func (w *dailyWriter) archiveStale(today string) {
	matches, err := filepath.Glob(filepath.Join(w.dir, w.policy.Kind+"-*.log"))
	if err != nil {
		return
	}

	prefix := w.policy.Kind + "-"
	for _, path := range matches {
		name := strings.TrimPrefix(filepath.Base(path), prefix)
		if len(name) < len(datePattern) {
			continue
		}
		day := name[:len(datePattern)]
		if _, err := time.Parse(datePattern, day); err != nil || day >= today {
			continue
		}
		_ = gzipFile(path)
	}
}

// Sync is a no-op: lumberjack writes straight to the file.
func (w *dailyWriter) Sync() error {
	return nil
}

// Close closes the current file and waits for pending archive work.
func (w *dailyWriter) Close() error {
	w.mu.Lock()
	w.closed = true
	var err error
	if w.current != nil {
		err = w.current.Close()
		w.current = nil
	}
	w.mu.Unlock()

	w.bg.Wait()
	return err
}

func gzipFile(path string) (err error) {
	src, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	defer src.Close()

	dst, err := os.OpenFile(path+".gz", os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := dst.Close(); err == nil {
			err = cerr
		}
	}()

	zw := gzip.NewWriter(dst)
	if _, err = io.Copy(zw, src); err != nil {
		return err
	}
	if err = zw.Close(); err != nil {
		return err
	}

	return os.Remove(path)
}
