package db

import "time"

// Config holds PostgreSQL pool settings. Fields load from KILN_DATABASE_* variables.
type Config struct {
	URL string `env:"KILN_DATABASE_URL,required"`

	HealthCheckPeriod time.Duration `env:"KILN_DATABASE_HEALTHCHECK_PERIOD" envDefault:"1m"`
	MaxConnIdleTime   time.Duration `env:"KILN_DATABASE_MAX_CONN_IDLE_TIME" envDefault:"10m"`
	MaxConnLifetime   time.Duration `env:"KILN_DATABASE_MAX_CONN_LIFETIME" envDefault:"30m"`

	// Attempt n waits n*RetryInterval before the next try.
	RetryAttempts int           `env:"KILN_DATABASE_RETRY_ATTEMPTS" envDefault:"3"`
	RetryInterval time.Duration `env:"KILN_DATABASE_RETRY_INTERVAL" envDefault:"5s"`

	MaxConns int32 `env:"KILN_DATABASE_MAX_CONNS" envDefault:"10"`
	MinConns int32 `env:"KILN_DATABASE_MIN_CONNS" envDefault:"2"`
}
