package config

import (
	"fmt"
	"sort"
	"strings"

	"github.com/haasonsaas/opsassist/internal/datetime"
)

// CurrentVersion is the file layout this build reads. An omitted version
// means current.
const CurrentVersion = 1

// KnownProviders are the reasoning-engine adapters built into opsassist.
var KnownProviders = []string{"anthropic", "google", "openai"}

// ConfigValidationError lists every problem found in a configuration.
type ConfigValidationError struct {
	Issues []string
}

func (e *ConfigValidationError) Error() string {
	if e == nil || len(e.Issues) == 0 {
		return "invalid config"
	}
	return "invalid config:\n  - " + strings.Join(e.Issues, "\n  - ")
}

// Validate checks the configuration after defaults are applied.
func (c *Config) Validate() error {
	var issues []string
	add := func(format string, args ...any) {
		issues = append(issues, fmt.Sprintf(format, args...))
	}

	switch {
	case c.Version > CurrentVersion:
		add("version %d is newer than this build, which reads %d; upgrade opsassist", c.Version, CurrentVersion)
	case c.Version < CurrentVersion:
		add("version must be %d, got %d", CurrentVersion, c.Version)
	}

	if c.Server.HTTPPort < 1 || c.Server.HTTPPort > 65535 {
		add("server.http_port must be between 1 and 65535, got %d", c.Server.HTTPPort)
	}
	if c.Server.MaxBodyBytes < 0 {
		add("server.max_body_bytes must not be negative")
	}
	if c.Server.RateLimit.RequestsPerSecond < 0 || c.Server.RateLimit.BurstSize < 0 {
		add("server.rate_limit values must not be negative")
	}

	switch strings.ToLower(c.Database.Driver) {
	case "memory":
	case "postgres", "postgresql", "sqlite", "sqlite3":
		if strings.TrimSpace(c.Database.URL) == "" {
			add("database.url is required for driver %q", c.Database.Driver)
		}
	default:
		add("database.driver must be one of memory, postgres, sqlite; got %q", c.Database.Driver)
	}

	if !isKnownProvider(c.LLM.DefaultProvider) {
		add("llm.default_provider must be one of %s; got %q", strings.Join(KnownProviders, ", "), c.LLM.DefaultProvider)
	} else if len(c.LLM.Providers) > 0 {
		if _, ok := c.LLM.Providers[c.LLM.DefaultProvider]; !ok {
			add("llm.default_provider %q has no entry under llm.providers", c.LLM.DefaultProvider)
		}
	}
	names := make([]string, 0, len(c.LLM.Providers))
	for name := range c.LLM.Providers {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if !isKnownProvider(name) {
			add("llm.providers.%s is not a known provider", name)
		}
	}

	if c.Assistant.MaxRounds < 1 || c.Assistant.MaxRounds > 20 {
		add("assistant.max_rounds must be between 1 and 20, got %d", c.Assistant.MaxRounds)
	}
	if c.Assistant.MaxConcurrency < 1 {
		add("assistant.max_concurrency must be positive")
	}
	if c.Assistant.OperationRetries != nil && *c.Assistant.OperationRetries < 0 {
		add("assistant.operation_retries must not be negative")
	}
	if _, err := datetime.LoadLocation(c.Assistant.Timezone); err != nil {
		add("assistant.timezone: %v", err)
	}

	if c.Identity.TokenExpiry < 0 {
		add("identity.token_expiry must not be negative")
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		add("logging.level must be debug, info, warn or error; got %q", c.Logging.Level)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "json", "text":
	default:
		add("logging.format must be json or text; got %q", c.Logging.Format)
	}

	if rate := c.Observability.Tracing.SamplingRate; rate < 0 || rate > 1 {
		add("observability.tracing.sampling_rate must be between 0 and 1, got %v", rate)
	}
	if !strings.HasPrefix(c.Observability.Metrics.Path, "/") {
		add("observability.metrics.path must start with /")
	}

	if len(issues) > 0 {
		return &ConfigValidationError{Issues: issues}
	}
	return nil
}

func isKnownProvider(name string) bool {
	for _, p := range KnownProviders {
		if p == name {
			return true
		}
	}
	return false
}
