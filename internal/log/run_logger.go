package log

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// LogFilePrefix is the prefix of every per-run log file name.
const LogFilePrefix = "ghprofile_"

// fanoutHandler forwards each record to every handler that accepts its level.
type fanoutHandler struct {
	handlers []slog.Handler
}

// Enabled reports whether at least one handler accepts level.
func (f *fanoutHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f.handlers {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

// Handle forwards a clone of the record to every enabled handler.
func (f *fanoutHandler) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range f.handlers {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// WithAttrs applies attrs to every handler.
func (f *fanoutHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := make([]slog.Handler, len(f.handlers))
	for i, h := range f.handlers {
		next[i] = h.WithAttrs(attrs)
	}
	return &fanoutHandler{handlers: next}
}

// WithGroup applies the group to every handler.
func (f *fanoutHandler) WithGroup(name string) slog.Handler {
	next := make([]slog.Handler, len(f.handlers))
	for i, h := range f.handlers {
		next[i] = h.WithGroup(name)
	}
	return &fanoutHandler{handlers: next}
}

// NewRunLogger creates the logger for a single run.
//
// Console output uses Info level (Debug when verbose). The file sink, when
// non-nil, always records Debug so the log file keeps the full trace of the
// run. Both sinks are sanitized.
func NewRunLogger(console, file io.Writer, verbose bool) *slog.Logger {
	handlers := []slog.Handler{
		slog.NewTextHandler(console, &slog.HandlerOptions{Level: levelFor(verbose)}),
	}
	if file != nil {
		handlers = append(handlers, slog.NewTextHandler(file, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
	if len(handlers) == 1 {
		return slog.New(NewSecureHandler(handlers[0]))
	}
	return slog.New(NewSecureHandler(&fanoutHandler{handlers: handlers}))
}

// LogFileName returns the file name used for a run started at t,
// e.g. "ghprofile_20250102_150405.log".
func LogFileName(t time.Time) string {
	return LogFilePrefix + t.Format("20060102_150405") + ".log"
}

// CreateLogFile creates the per-run log file inside dir.
// The directory is created if needed and the file is only readable by the owner.
func CreateLogFile(dir string, t time.Time) (*os.File, error) {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	path := filepath.Join(dir, LogFileName(t))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600) //nolint:gosec // path built from a user-chosen log directory
	if err != nil {
		return nil, fmt.Errorf("failed to create log file: %w", err)
	}
	return f, nil
}
