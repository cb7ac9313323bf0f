// ABOUTME: Structured logging built on log/slog
// ABOUTME: Text output at debug level in development, JSON at info otherwise
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Logger wraps slog.Logger for structured logging.
type Logger struct {
	*slog.Logger
}

// New creates a logger for the given environment writing to stderr.
func New(env string) *Logger {
	return NewWithWriter(env, os.Stderr)
}

// NewWithWriter creates a logger for the given environment writing to w.
func NewWithWriter(env string, w io.Writer) *Logger {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}

	if strings.EqualFold(env, "development") {
		opts.Level = slog.LevelDebug
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}

	return &Logger{
		Logger: slog.New(handler),
	}
}

// Discard returns a logger that drops everything. Used by tests and library callers
// that did not configure logging.
func Discard() *Logger {
	return &Logger{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

// WithRun returns a logger tagged with a sync run id.
func (l *Logger) WithRun(runID string) *Logger {
	return &Logger{
		Logger: l.With(slog.String("run_id", runID)),
	}
}

// WithContact returns a logger tagged with a contact email.
func (l *Logger) WithContact(email string) *Logger {
	return &Logger{
		Logger: l.With(slog.String("email", email)),
	}
}

// ProviderError logs a failed provider call.
func (l *Logger) ProviderError(op string, err error) {
	l.Warn("provider_error",
		slog.String("op", op),
		slog.String("error", err.Error()),
	)
}

// Checkpoint logs a ledger checkpoint save.
func (l *Logger) Checkpoint(processed int) {
	l.Info("checkpoint",
		slog.Int("processed", processed),
	)
}

// RateLimited logs a batch abort caused by provider throttling.
func (l *Logger) RateLimited(email string, remaining int) {
	l.Warn("rate_limited",
		slog.String("email", email),
		slog.Int("remaining", remaining),
	)
}

// PersistenceError logs a failed write of durable state.
func (l *Logger) PersistenceError(operation string, err error) {
	l.Error("persistence_error",
		slog.String("operation", operation),
		slog.String("error", err.Error()),
	)
}
