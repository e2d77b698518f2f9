package redis

import "time"

// Config holds client settings. Fields load from KILN_REDIS_* variables.
type Config struct {
	URL string `env:"KILN_REDIS_URL,required"`

	PoolSize      int           `env:"KILN_REDIS_POOL_SIZE" envDefault:"10"`
	MinIdleConns  int           `env:"KILN_REDIS_MIN_IDLE_CONNS" envDefault:"2"`
	MaxIdleTime   time.Duration `env:"KILN_REDIS_MAX_IDLE_TIME" envDefault:"10m"`
	MaxActiveTime time.Duration `env:"KILN_REDIS_MAX_ACTIVE_TIME" envDefault:"30m"`
	ReadTimeout   time.Duration `env:"KILN_REDIS_READ_TIMEOUT" envDefault:"3s"`
	WriteTimeout  time.Duration `env:"KILN_REDIS_WRITE_TIMEOUT" envDefault:"3s"`
	DialTimeout   time.Duration `env:"KILN_REDIS_DIAL_TIMEOUT" envDefault:"5s"`

	RetryAttempts int           `env:"KILN_REDIS_RETRY_ATTEMPTS" envDefault:"3"`
	RetryInterval time.Duration `env:"KILN_REDIS_RETRY_INTERVAL" envDefault:"2s"`
}
