package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"headlines/internal/config"
)

var (
	defaultLogger *slog.Logger
	once          sync.Once
)

// Init initializes the default logger with a JSON handler writing to os.Stdout.
// It ensures that the logger is initialized only once.
func Init() {
	once.Do(func() {
		defaultLogger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))
		slog.SetDefault(defaultLogger)
	})
}

// Setup replaces the default logger with one built from the logging configuration.
func Setup(cfg config.Logging) *slog.Logger {
	Init()
	defaultLogger = New(cfg, os.Stdout)
	slog.SetDefault(defaultLogger)
	return defaultLogger
}

// New builds a logger from the logging configuration.
// The "console" format renders records through zerolog's ConsoleWriter.
func New(cfg config.Logging, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(cfg.Level)}

	if cfg.Format == "console" {
		opts.ReplaceAttr = consoleAttrs
		return slog.New(slog.NewJSONHandler(zerolog.ConsoleWriter{
			Out:        w,
			TimeFormat: time.Kitchen,
		}, opts))
	}

	return slog.New(slog.NewJSONHandler(w, opts))
}

// consoleAttrs maps slog's built-in keys onto the field names zerolog's console writer expects.
func consoleAttrs(groups []string, a slog.Attr) slog.Attr {
	if len(groups) > 0 {
		return a
	}
	switch a.Key {
	case slog.MessageKey:
		a.Key = zerolog.MessageFieldName
	case slog.LevelKey:
		a.Key = zerolog.LevelFieldName
		a.Value = slog.StringValue(strings.ToLower(a.Value.String()))
	case slog.TimeKey:
		a.Key = zerolog.TimestampFieldName
	}
	return a
}

// ParseLevel converts a configured level name into a slog level, defaulting to info.
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

// OrDiscard returns log, or a logger that drops every record when log is nil.
func OrDiscard(log *slog.Logger) *slog.Logger {
	if log != nil {
		return log
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
