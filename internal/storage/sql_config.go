package storage

import (
	"time"

	"github.com/haasonsaas/opsassist/internal/observability"
)

// SQLConfig configures connection pooling and query limits.
type SQLConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	ConnectTimeout  time.Duration

	// QueryTimeout bounds every Find and Insert; 0 disables it.
	QueryTimeout time.Duration

	// Metrics records query latency per table when set.
	Metrics *observability.Metrics

	// Tracer opens a client span per query when set.
	Tracer *observability.Tracer
}

// DefaultSQLConfig returns default connection pool settings.
func DefaultSQLConfig() *SQLConfig {
	return &SQLConfig{
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		ConnMaxIdleTime: 2 * time.Minute,
		ConnectTimeout:  10 * time.Second,
		QueryTimeout:    10 * time.Second,
	}
}
