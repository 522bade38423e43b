package config

import "time"

// IdentityConfig controls how the caller's default store is resolved.
type IdentityConfig struct {
	// JWTSecret enables HS256 bearer tokens when set.
	JWTSecret   string        `yaml:"jwt_secret"`
	TokenExpiry time.Duration `yaml:"token_expiry"`

	// TrustHeaders accepts X-User-Id, X-Store-Id and X-Store-Name from a
	// trusted upstream proxy.
	TrustHeaders bool `yaml:"trust_headers"`

	// DefaultStoreID and DefaultStoreName apply when the request carries no
	// identity.
	DefaultStoreID   string `yaml:"default_store_id"`
	DefaultStoreName string `yaml:"default_store_name"`
}
