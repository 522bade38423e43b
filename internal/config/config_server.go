package config

import "time"

type ServerConfig struct {
	Host            string        `yaml:"host"`
	HTTPPort        int           `yaml:"http_port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// MaxBodyBytes limits the size of a chat request body.
	MaxBodyBytes int64 `yaml:"max_body_bytes"`

	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// RateLimitConfig throttles chat requests per caller.
type RateLimitConfig struct {
	Enabled           bool    `yaml:"enabled"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	BurstSize         int     `yaml:"burst_size"`
}

type DatabaseConfig struct {
	// Driver is one of "memory", "postgres" or "sqlite".
	Driver string `yaml:"driver"`

	// URL is the PostgreSQL DSN or the SQLite file path.
	URL string `yaml:"url"`

	// Fixtures is a YAML fixture file loaded into the memory backend at startup.
	Fixtures string `yaml:"fixtures"`

	MaxConnections     int           `yaml:"max_connections"`
	MaxIdleConnections int           `yaml:"max_idle_connections"`
	ConnMaxLifetime    time.Duration `yaml:"conn_max_lifetime"`
	QueryTimeout       time.Duration `yaml:"query_timeout"`
}
