package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix prefixes every environment override, e.g. OPSASSIST_HTTP_PORT.
const EnvPrefix = "opsassist"

// envOverrides lists the settings that may be replaced from the environment.
// Unset variables leave the file value untouched.
type envOverrides struct {
	ServerHost *string `envconfig:"SERVER_HOST"`
	HTTPPort   *int    `envconfig:"HTTP_PORT"`

	DatabaseDriver *string `envconfig:"DATABASE_DRIVER"`
	DatabaseURL    *string `envconfig:"DATABASE_URL"`

	LLMProvider     *string `envconfig:"LLM_PROVIDER"`
	LLMModel        *string `envconfig:"LLM_MODEL"`
	AnthropicAPIKey *string `envconfig:"ANTHROPIC_API_KEY"`
	OpenAIAPIKey    *string `envconfig:"OPENAI_API_KEY"`
	GoogleAPIKey    *string `envconfig:"GOOGLE_API_KEY"`

	MaxRounds *int    `envconfig:"MAX_ROUNDS"`
	Timezone  *string `envconfig:"TIMEZONE"`

	JWTSecret *string `envconfig:"JWT_SECRET"`

	LogLevel  *string `envconfig:"LOG_LEVEL"`
	LogFormat *string `envconfig:"LOG_FORMAT"`

	OTLPEndpoint *string `envconfig:"OTLP_ENDPOINT"`
}

func applyEnvOverrides(cfg *Config) error {
	var env envOverrides
	if err := envconfig.Process(EnvPrefix, &env); err != nil {
		return fmt.Errorf("failed to process environment overrides: %w", err)
	}

	setString(&cfg.Server.Host, env.ServerHost)
	setInt(&cfg.Server.HTTPPort, env.HTTPPort)
	setString(&cfg.Database.Driver, env.DatabaseDriver)
	setString(&cfg.Database.URL, env.DatabaseURL)
	setString(&cfg.LLM.DefaultProvider, env.LLMProvider)
	setString(&cfg.Assistant.Model, env.LLMModel)
	setInt(&cfg.Assistant.MaxRounds, env.MaxRounds)
	setString(&cfg.Assistant.Timezone, env.Timezone)
	setString(&cfg.Identity.JWTSecret, env.JWTSecret)
	setString(&cfg.Logging.Level, env.LogLevel)
	setString(&cfg.Logging.Format, env.LogFormat)
	setString(&cfg.Observability.Tracing.Endpoint, env.OTLPEndpoint)

	setAPIKey(cfg, "anthropic", env.AnthropicAPIKey)
	setAPIKey(cfg, "openai", env.OpenAIAPIKey)
	setAPIKey(cfg, "google", env.GoogleAPIKey)
	return nil
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = strings.TrimSpace(*v)
	}
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

func setAPIKey(cfg *Config, provider string, key *string) {
	if key == nil || strings.TrimSpace(*key) == "" {
		return
	}
	if cfg.LLM.Providers == nil {
		cfg.LLM.Providers = map[string]LLMProviderConfig{}
	}
	p := cfg.LLM.Providers[provider]
	p.APIKey = strings.TrimSpace(*key)
	cfg.LLM.Providers[provider] = p
}

var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(:-([^}]*))?\}`)

// expandEnv replaces ${VAR} references. ${VAR:-fallback} uses fallback when
// VAR is unset or empty. Bare $NAME is left alone so keys like $include
// survive.
func expandEnv(s string) string {
	return envRef.ReplaceAllStringFunc(s, func(ref string) string {
		m := envRef.FindStringSubmatch(ref)
		if v := os.Getenv(m[1]); v != "" || m[2] == "" {
			return v
		}
		return m[3]
	})
}
