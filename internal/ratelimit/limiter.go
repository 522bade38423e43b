// Package ratelimit throttles chat requests per caller with token buckets.
package ratelimit

import (
	"sync"
	"time"
)

// Config configures per-caller limits.
type Config struct {
	// RequestsPerSecond is the sustained rate allowed per key.
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	// BurstSize is the number of requests a fresh key may send at once.
	BurstSize int `yaml:"burst_size"`
	// Enabled controls whether limiting is active.
	Enabled bool `yaml:"enabled"`
}

// DefaultConfig allows a short burst of questions and one every two seconds
// after that.
func DefaultConfig() Config {
	return Config{
		RequestsPerSecond: 0.5,
		BurstSize:         5,
		Enabled:           false,
	}
}

// Bucket is a token bucket.
type Bucket struct {
	mu         sync.Mutex
	tokens     float64
	maxTokens  float64
	refillRate float64
	lastRefill time.Time
	now        func() time.Time
}

func newBucket(config Config, now func() time.Time) *Bucket {
	return &Bucket{
		tokens:     float64(config.BurstSize),
		maxTokens:  float64(config.BurstSize),
		refillRate: config.RequestsPerSecond,
		lastRefill: now(),
		now:        now,
	}
}

// reserve consumes a token when one is available. Otherwise it reports how
// long until one will be.
func (b *Bucket) reserve() (bool, time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refill()
	if b.tokens >= 1 {
		b.tokens--
		return true, 0
	}
	needed := 1 - b.tokens
	return false, time.Duration(needed / b.refillRate * float64(time.Second))
}

func (b *Bucket) full() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refill()
	return b.tokens >= b.maxTokens
}

// refill must be called with mu held.
func (b *Bucket) refill() {
	now := b.now()
	elapsed := now.Sub(b.lastRefill).Seconds()
	b.lastRefill = now
	b.tokens = min(b.maxTokens, b.tokens+elapsed*b.refillRate)
}

// Limiter keeps one bucket per key.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*Bucket
	config  Config
	maxKeys int
	now     func() time.Time
}

// NewLimiter creates a limiter. Non-positive settings fall back to
// DefaultConfig values.
func NewLimiter(config Config) *Limiter {
	defaults := DefaultConfig()
	if config.RequestsPerSecond <= 0 {
		config.RequestsPerSecond = defaults.RequestsPerSecond
	}
	if config.BurstSize <= 0 {
		config.BurstSize = defaults.BurstSize
	}
	return &Limiter{
		buckets: make(map[string]*Bucket),
		config:  config,
		maxKeys: 10000,
		now:     time.Now,
	}
}

// WithClock replaces the time source.
func (l *Limiter) WithClock(now func() time.Time) *Limiter {
	if now != nil {
		l.now = now
	}
	return l
}

// Allow consumes a token for key. When the request is rejected it returns
// the wait before the next token. A nil or disabled limiter allows
// everything.
func (l *Limiter) Allow(key string) (bool, time.Duration) {
	if l == nil || !l.config.Enabled {
		return true, 0
	}
	return l.bucket(key).reserve()
}

func (l *Limiter) bucket(key string) *Bucket {
	l.mu.Lock()
	defer l.mu.Unlock()

	if b, ok := l.buckets[key]; ok {
		return b
	}
	if len(l.buckets) >= l.maxKeys {
		l.prune()
	}
	b := newBucket(l.config, l.now)
	l.buckets[key] = b
	return b
}

// prune drops idle keys, whose buckets have refilled completely. Must be
// called with mu held.
func (l *Limiter) prune() {
	for key, b := range l.buckets {
		if b.full() {
			delete(l.buckets, key)
		}
	}
}

// Len returns the number of tracked keys.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}
