// Package logger provides the process-wide structured logger and
// context-scoped loggers for per-connection fields.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

type ctxKey struct{}

// L is the global logger. Init replaces it.
var (
	L      = slog.Default()
	logKey = ctxKey{}
)

// Init configures the global logger. format is "json" or "text".
func Init(level, format string) {
	InitWriter(os.Stdout, level, format)
}

// InitWriter is Init with an explicit destination.
func InitWriter(w io.Writer, level, format string) {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}

	var handler slog.Handler
	if strings.EqualFold(format, "json") {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	L = slog.New(handler)
	slog.SetDefault(L)
}

// Component returns the global logger tagged with a component name.
func Component(name string) *slog.Logger {
	return L.With(slog.String("component", name))
}

// FromContext returns the logger stored in ctx, or the global logger.
func FromContext(ctx context.Context) *slog.Logger {
	if ctx != nil {
		if l, ok := ctx.Value(logKey).(*slog.Logger); ok {
			return l
		}
	}
	return L
}

// WithContext stores l in ctx.
func WithContext(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, logKey, l)
}

// ParseLevel maps a config string to a slog level. Unknown values are info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Discard returns a logger that drops everything. Used by tests.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
