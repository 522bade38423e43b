// Package config loads the opsassist configuration from YAML or JSON5 files
// with environment overrides.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Config is the main configuration structure for opsassist.
type Config struct {
	Version       int                 `yaml:"version"`
	Server        ServerConfig        `yaml:"server"`
	Database      DatabaseConfig      `yaml:"database"`
	LLM           LLMConfig           `yaml:"llm"`
	Assistant     AssistantConfig     `yaml:"assistant"`
	Identity      IdentityConfig      `yaml:"identity"`
	Policy        PolicyConfig        `yaml:"policy"`
	Logging       LoggingConfig       `yaml:"logging"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// Load reads the configuration file at path, applies environment overrides
// and defaults, and validates the result. An empty path yields a config built
// from defaults and the environment only.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if strings.TrimSpace(path) != "" {
		raw, err := LoadRaw(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		cfg, err = decodeStrict(raw)
		if err != nil {
			return nil, err
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// PathFromEnv returns the config path named by OPSASSIST_CONFIG, if any.
func PathFromEnv() string {
	return strings.TrimSpace(os.Getenv("OPSASSIST_CONFIG"))
}

func applyDefaults(cfg *Config) {
	if cfg.Version == 0 {
		cfg.Version = CurrentVersion
	}

	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.HTTPPort == 0 {
		cfg.Server.HTTPPort = 8080
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 30 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 5 * time.Minute
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 15 * time.Second
	}
	if cfg.Server.MaxBodyBytes == 0 {
		cfg.Server.MaxBodyBytes = 1 << 20
	}
	if cfg.Server.RateLimit.RequestsPerSecond == 0 {
		cfg.Server.RateLimit.RequestsPerSecond = 0.5
	}
	if cfg.Server.RateLimit.BurstSize == 0 {
		cfg.Server.RateLimit.BurstSize = 5
	}

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "memory"
	}
	if cfg.Database.MaxConnections == 0 {
		cfg.Database.MaxConnections = 25
	}
	if cfg.Database.MaxIdleConnections == 0 {
		cfg.Database.MaxIdleConnections = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 5 * time.Minute
	}
	if cfg.Database.QueryTimeout == 0 {
		cfg.Database.QueryTimeout = 10 * time.Second
	}

	if cfg.LLM.DefaultProvider == "" {
		cfg.LLM.DefaultProvider = "anthropic"
	}

	if cfg.Assistant.MaxRounds == 0 {
		cfg.Assistant.MaxRounds = 5
	}
	if cfg.Assistant.MaxTokens == 0 {
		cfg.Assistant.MaxTokens = 1024
	}
	if cfg.Assistant.ModelTimeout == 0 {
		cfg.Assistant.ModelTimeout = 60 * time.Second
	}
	if cfg.Assistant.OperationTimeout == 0 {
		cfg.Assistant.OperationTimeout = 15 * time.Second
	}
	if cfg.Assistant.MaxConcurrency == 0 {
		cfg.Assistant.MaxConcurrency = 5
	}
	if cfg.Assistant.OperationRetries == nil {
		retries := 2
		cfg.Assistant.OperationRetries = &retries
	}
	if cfg.Assistant.Timezone == "" {
		cfg.Assistant.Timezone = "Asia/Seoul"
	}

	if cfg.Identity.TokenExpiry == 0 {
		cfg.Identity.TokenExpiry = 24 * time.Hour
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.Observability.Metrics.Enabled == nil {
		enabled := true
		cfg.Observability.Metrics.Enabled = &enabled
	}
	if cfg.Observability.Metrics.Path == "" {
		cfg.Observability.Metrics.Path = "/metrics"
	}
	if cfg.Observability.Tracing.ServiceName == "" {
		cfg.Observability.Tracing.ServiceName = "opsassist"
	}
}
