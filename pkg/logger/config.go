package logger

import (
	"log/slog"
	"strings"
)

// Config controls the handler chain. Fields load from KILN_LOG_* variables.
type Config struct {
	Level  string `env:"KILN_LOG_LEVEL" envDefault:"info"`
	Format string `env:"KILN_LOG_FORMAT" envDefault:"json"`

	// File enables a rotating file sink in addition to stdout.
	File       string `env:"KILN_LOG_FILE"`
	MaxSizeMB  int    `env:"KILN_LOG_MAX_SIZE_MB" envDefault:"100"`
	MaxBackups int    `env:"KILN_LOG_MAX_BACKUPS" envDefault:"5"`
	MaxAgeDays int    `env:"KILN_LOG_MAX_AGE_DAYS" envDefault:"28"`
	NoStdout   bool   `env:"KILN_LOG_NO_STDOUT"`

	SentryDSN         string `env:"SENTRY_DSN"`
	SentryEnvironment string `env:"SENTRY_ENVIRONMENT" envDefault:"production"`
	SentryLevel       string `env:"SENTRY_LEVEL" envDefault:"warn"`
}

// ParseLevel maps debug/info/warn/error to a slog.Level, defaulting to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
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
