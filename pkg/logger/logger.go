package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/getsentry/sentry-go"
	sentryslog "github.com/getsentry/sentry-go/slog"
	"github.com/natefinch/lumberjack"
)

// New builds a logger from cfg. A Sentry init failure is logged and Sentry is skipped.
func New(cfg Config, extractors ...ContextExtractor) *slog.Logger {
	level := ParseLevel(cfg.Level)

	var sinks []io.Writer
	if !cfg.NoStdout {
		sinks = append(sinks, os.Stdout)
	}
	if cfg.File != "" {
		sinks = append(sinks, &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   true,
		})
	}
	if len(sinks) == 0 {
		sinks = append(sinks, io.Discard)
	}

	handlers := []slog.Handler{newHandler(cfg.Format, io.MultiWriter(sinks...), level)}
	if cfg.SentryDSN != "" {
		if h, err := sentryHandler(cfg); err != nil {
			slog.New(handlers[0]).Error("sentry init failed", slog.String("error", err.Error()))
		} else {
			handlers = append(handlers, h)
		}
	}

	var h slog.Handler = handlers[0]
	if len(handlers) > 1 {
		h = fanout(handlers)
	}
	return slog.New(WithExtractors(h, extractors...))
}

// NewNope returns a logger that discards everything.
func NewNope() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Flush waits for buffered Sentry events.
func Flush(timeout time.Duration) {
	sentry.Flush(timeout)
}

func newHandler(format string, w io.Writer, level slog.Level) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}
	if format == "text" {
		return slog.NewTextHandler(w, opts)
	}
	return slog.NewJSONHandler(w, opts)
}

func sentryHandler(cfg Config) (slog.Handler, error) {
	if err := sentry.Init(sentry.ClientOptions{
		Dsn:         cfg.SentryDSN,
		Environment: cfg.SentryEnvironment,
		EnableLogs:  true,
	}); err != nil {
		return nil, err
	}

	logLevels := []slog.Level{slog.LevelWarn, slog.LevelError}
	if ParseLevel(cfg.SentryLevel) >= slog.LevelError {
		logLevels = []slog.Level{slog.LevelError}
	}
	return sentryslog.Option{
		EventLevel: []slog.Level{slog.LevelError},
		LogLevel:   logLevels,
	}.NewSentryHandler(context.Background()), nil
}
