package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/haasonsaas/opsassist/internal/agent"
	"github.com/haasonsaas/opsassist/internal/agent/providers"
	"github.com/haasonsaas/opsassist/internal/catalog"
	"github.com/haasonsaas/opsassist/internal/config"
	"github.com/haasonsaas/opsassist/internal/datetime"
	"github.com/haasonsaas/opsassist/internal/identity"
	"github.com/haasonsaas/opsassist/internal/observability"
	"github.com/haasonsaas/opsassist/internal/operations"
	"github.com/haasonsaas/opsassist/internal/reply"
	"github.com/haasonsaas/opsassist/internal/storage"
)

// defaultConfigFile is picked up from the working directory when neither the
// flag nor OPSASSIST_CONFIG names a file.
const defaultConfigFile = "opsassist.yaml"

// resolveConfigPath applies flag > OPSASSIST_CONFIG > ./opsassist.yaml. An
// empty result means built-in defaults plus environment overrides.
func resolveConfigPath(flagValue string) string {
	if path := strings.TrimSpace(flagValue); path != "" {
		return path
	}
	if path := config.PathFromEnv(); path != "" {
		return path
	}
	if _, err := os.Stat(defaultConfigFile); err == nil {
		return defaultConfigFile
	}
	return ""
}

func newLogger(cfg config.LoggingConfig, output io.Writer, debug bool) *slog.Logger {
	level := cfg.Level
	if debug {
		level = "debug"
	}
	return observability.NewLogger(observability.LogConfig{
		Level:     level,
		Format:    cfg.Format,
		Output:    output,
		AddSource: cfg.AddSource,
	}).Slog()
}

func newTracer(cfg config.TracingConfig) (*observability.Tracer, func(context.Context) error) {
	serviceVersion := cfg.ServiceVersion
	if serviceVersion == "" {
		serviceVersion = version
	}
	return observability.NewTracer(observability.TraceConfig{
		ServiceName:    cfg.ServiceName,
		ServiceVersion: serviceVersion,
		Environment:    cfg.Environment,
		Endpoint:       cfg.Endpoint,
		SamplingRate:   cfg.SamplingRate,
		Attributes:     cfg.Attributes,
		EnableInsecure: cfg.Insecure,
	})
}

// storageConfig maps the database section onto storage settings.
func storageConfig(cfg config.DatabaseConfig, metrics *observability.Metrics, tracer *observability.Tracer) storage.Config {
	pool := storage.DefaultSQLConfig()
	pool.MaxOpenConns = cfg.MaxConnections
	pool.MaxIdleConns = cfg.MaxIdleConnections
	pool.ConnMaxLifetime = cfg.ConnMaxLifetime
	pool.QueryTimeout = cfg.QueryTimeout
	pool.Metrics = metrics
	pool.Tracer = tracer
	return storage.Config{
		Driver:   cfg.Driver,
		DSN:      cfg.URL,
		Fixtures: cfg.Fixtures,
		Pool:     pool,
	}
}

// openStores opens the configured backend and applies the schema.
func openStores(ctx context.Context, cfg config.DatabaseConfig, metrics *observability.Metrics, tracer *observability.Tracer) (storage.StoreSet, error) {
	stores, err := storage.Open(ctx, storageConfig(cfg, metrics, tracer))
	if err != nil {
		return storage.StoreSet{}, fmt.Errorf("open store: %w", err)
	}
	if err := stores.Migrate(ctx); err != nil {
		_ = stores.Close()
		return storage.StoreSet{}, fmt.Errorf("migrate store: %w", err)
	}
	return stores, nil
}

func newDateResolver(timezone string) (*datetime.Resolver, error) {
	loc, err := datetime.LoadLocation(timezone)
	if err != nil {
		return nil, err
	}
	return datetime.NewResolver(loc), nil
}

// newProvider builds the configured default reasoning engine.
func newProvider(cfg config.LLMConfig) (agent.LLMProvider, error) {
	name, pc := cfg.Provider()
	switch name {
	case "anthropic":
		return providers.NewAnthropicProvider(providers.AnthropicConfig{
			APIKey:       pc.APIKey,
			BaseURL:      pc.BaseURL,
			MaxRetries:   pc.MaxRetries,
			RetryDelay:   pc.RetryDelay,
			DefaultModel: pc.DefaultModel,
		})
	case "openai":
		return providers.NewOpenAIProvider(providers.OpenAIConfig{
			APIKey:       pc.APIKey,
			BaseURL:      pc.BaseURL,
			MaxRetries:   pc.MaxRetries,
			RetryDelay:   pc.RetryDelay,
			DefaultModel: pc.DefaultModel,
		})
	case "google":
		return providers.NewGoogleProvider(providers.GoogleConfig{
			APIKey:       pc.APIKey,
			BaseURL:      pc.BaseURL,
			MaxRetries:   pc.MaxRetries,
			RetryDelay:   pc.RetryDelay,
			DefaultModel: pc.DefaultModel,
		})
	default:
		return nil, fmt.Errorf("unsupported llm provider %q", name)
	}
}

func loopConfig(cfg config.AssistantConfig) *agent.LoopConfig {
	lc := agent.DefaultLoopConfig()
	lc.MaxRounds = cfg.MaxRounds
	lc.MaxTokens = cfg.MaxTokens
	lc.ModelTimeout = cfg.ModelTimeout
	lc.Model = cfg.Model
	lc.Executor.MaxConcurrency = cfg.MaxConcurrency
	lc.Executor.OperationTimeout = cfg.OperationTimeout
	if cfg.OperationRetries != nil {
		lc.Executor.Retries = *cfg.OperationRetries
	}
	return lc
}

func replyPolicy(cfg config.PolicyConfig) reply.Policy {
	return reply.Policy{
		RefusalMessage:     cfg.RefusalMessage,
		ApologyMessage:     cfg.ApologyMessage,
		NoAnswerMessage:    cfg.NoAnswerMessage,
		UnsupportedPhrases: cfg.UnsupportedPhrases,
	}.WithDefaults()
}

func newIdentityResolver(cfg config.IdentityConfig) (*identity.Resolver, *identity.TokenService) {
	tokens := identity.NewTokenService(cfg.JWTSecret, cfg.TokenExpiry)
	fallback := identity.Caller{StoreID: cfg.DefaultStoreID, StoreName: cfg.DefaultStoreName}
	return identity.NewResolver(tokens, cfg.TrustHeaders, fallback), tokens
}

// backend is everything needed to execute operations.
type backend struct {
	catalog  *catalog.Catalog
	dates    *datetime.Resolver
	stores   storage.StoreSet
	operator *operations.Executor
}

func newBackend(ctx context.Context, cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics, tracer *observability.Tracer) (*backend, error) {
	dates, err := newDateResolver(cfg.Assistant.Timezone)
	if err != nil {
		return nil, err
	}
	stores, err := openStores(ctx, cfg.Database, metrics, tracer)
	if err != nil {
		return nil, err
	}
	cat := catalog.Default()
	operator, err := operations.New(cat, stores, dates, operations.WithLogger(logger))
	if err != nil {
		_ = stores.Close()
		return nil, err
	}
	return &backend{catalog: cat, dates: dates, stores: stores, operator: operator}, nil
}

func (b *backend) Close() error {
	return b.stores.Close()
}

// assistant is a backend plus the conversation loop on top of it.
type assistant struct {
	*backend
	loop       *agent.Loop
	vocabulary *agent.Vocabulary
	identity   *identity.Resolver
	tokens     *identity.TokenService
}

type assistantDeps struct {
	logger   *slog.Logger
	metrics  *observability.Metrics
	tracer   *observability.Tracer
	provider agent.LLMProvider
}

func newAssistant(ctx context.Context, cfg *config.Config, deps assistantDeps) (*assistant, error) {
	if deps.logger == nil {
		deps.logger = slog.Default()
	}
	if deps.provider == nil {
		provider, err := newProvider(cfg.LLM)
		if err != nil {
			return nil, err
		}
		deps.provider = provider
	}

	b, err := newBackend(ctx, cfg, deps.logger, deps.metrics, deps.tracer)
	if err != nil {
		return nil, err
	}

	vocabulary, err := agent.NewVocabulary(cfg.Assistant.VocabularyFile, deps.logger)
	if err != nil {
		_ = b.Close()
		return nil, fmt.Errorf("load vocabulary: %w", err)
	}

	prompt := agent.NewPromptBuilder(b.catalog, b.dates, replyPolicy(cfg.Policy), vocabulary)
	loop, err := agent.NewLoop(deps.provider, b.operator, prompt, loopConfig(cfg.Assistant),
		agent.WithLogger(deps.logger),
		agent.WithMetrics(deps.metrics),
		agent.WithTracer(deps.tracer),
	)
	if err != nil {
		_ = b.Close()
		return nil, err
	}

	resolver, tokens := newIdentityResolver(cfg.Identity)
	return &assistant{
		backend:    b,
		loop:       loop,
		vocabulary: vocabulary,
		identity:   resolver,
		tokens:     tokens,
	}, nil
}

func (a *assistant) Close() error {
	return errors.Join(a.vocabulary.Close(), a.backend.Close())
}
