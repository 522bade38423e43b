package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/haasonsaas/opsassist/internal/catalog"
	"github.com/haasonsaas/opsassist/internal/config"
	"github.com/haasonsaas/opsassist/internal/datetime"
	"github.com/haasonsaas/opsassist/internal/gateway"
	"github.com/haasonsaas/opsassist/internal/identity"
	"github.com/haasonsaas/opsassist/internal/observability"
	"github.com/haasonsaas/opsassist/internal/ratelimit"
	"github.com/haasonsaas/opsassist/internal/storage"
	"github.com/haasonsaas/opsassist/pkg/models"
)

// =============================================================================
// Serve Command Handler
// =============================================================================

// runServe loads configuration, wires the assistant and serves HTTP until a
// shutdown signal arrives.
func runServe(ctx context.Context, configPath string, debug bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := newLogger(cfg.Logging, os.Stderr, debug)
	slog.SetDefault(logger)
	provider, _ := cfg.LLM.Provider()
	logger.Info("starting opsassist",
		"version", version,
		"commit", commit,
		"config", configPath,
		"llm_provider", provider,
		"database", cfg.Database.Driver,
	)

	var metrics *observability.Metrics
	if cfg.Observability.Metrics.MetricsEnabled() {
		metrics = observability.NewMetrics()
	}
	tracer, shutdownTracer := newTracer(cfg.Observability.Tracing)
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracer(flushCtx); err != nil {
			logger.Warn("failed to flush traces", "error", err)
		}
	}()

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	app, err := newAssistant(ctx, cfg, assistantDeps{logger: logger, metrics: metrics, tracer: tracer})
	if err != nil {
		return fmt.Errorf("failed to initialize assistant: %w", err)
	}
	defer func() {
		if err := app.Close(); err != nil {
			logger.Warn("failed to close assistant", "error", err)
		}
	}()

	if err := app.vocabulary.Watch(ctx); err != nil {
		logger.Warn("vocabulary hot reload disabled", "error", err)
	}

	server, err := gateway.New(gateway.Config{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.HTTPPort,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		MaxBodyBytes:    cfg.Server.MaxBodyBytes,
		MetricsPath:     cfg.Observability.Metrics.Path,
	}, app.loop, app.catalog, app.identity,
		gateway.WithLogger(logger),
		gateway.WithMetrics(metrics),
		gateway.WithTracer(tracer),
		gateway.WithHealthCheck(app.stores.Ping),
		gateway.WithRateLimiter(ratelimit.NewLimiter(ratelimit.Config{
			Enabled:           cfg.Server.RateLimit.Enabled,
			RequestsPerSecond: cfg.Server.RateLimit.RequestsPerSecond,
			BurstSize:         cfg.Server.RateLimit.BurstSize,
		})),
	)
	if err != nil {
		return fmt.Errorf("failed to initialize gateway: %w", err)
	}
	if err := server.Start(ctx); err != nil {
		return err
	}
	logger.Info("opsassist started", "addr", server.Addr(), "store_backend", app.stores.Backend())

	<-ctx.Done()
	logger.Info("shutdown signal received, initiating graceful shutdown")

	if err := server.Stop(context.Background()); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	logger.Info("opsassist stopped gracefully")
	return nil
}

// =============================================================================
// Chat Command Handler
// =============================================================================

type chatOptions struct {
	configPath  string
	storeID     string
	storeName   string
	userID      string
	historyFile string
	jsonOutput  bool
}

func runChat(cmd *cobra.Command, message string, opts chatOptions) error {
	if strings.TrimSpace(message) == "" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return fmt.Errorf("read message: %w", err)
		}
		message = string(data)
	}
	message = strings.TrimSpace(message)
	if message == "" {
		return errors.New("message is required")
	}

	history, err := loadHistory(opts.historyFile)
	if err != nil {
		return err
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	logger := newLogger(cfg.Logging, cmd.ErrOrStderr(), false)

	ctx := cmd.Context()
	app, err := newAssistant(ctx, cfg, assistantDeps{logger: logger})
	if err != nil {
		return err
	}
	defer app.Close()

	caller := identity.Caller{
		UserID:    opts.userID,
		StoreID:   firstNonEmpty(opts.storeID, cfg.Identity.DefaultStoreID),
		StoreName: firstNonEmpty(opts.storeName, cfg.Identity.DefaultStoreName),
	}
	outcome, err := app.loop.Run(ctx, caller, history, message)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if opts.jsonOutput {
		return writeIndentedJSON(out, outcome)
	}
	fmt.Fprintln(out, outcome.FinalMessage)
	return nil
}

func loadHistory(path string) ([]models.Turn, error) {
	if strings.TrimSpace(path) == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}
	var history []models.Turn
	if err := json.Unmarshal(data, &history); err != nil {
		return nil, fmt.Errorf("parse history: %w", err)
	}
	return history, nil
}

// =============================================================================
// Operations Command Handlers
// =============================================================================

func runOperationsList(cmd *cobra.Command, jsonOutput bool) error {
	defs := catalog.Default().List()
	out := cmd.OutOrStdout()
	if jsonOutput {
		return writeIndentedJSON(out, defs)
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tKIND\tPARAMETERS")
	for _, def := range defs {
		kind := "read"
		if def.Mutating {
			kind = "write"
		}
		params := make([]string, 0, len(def.Params))
		for _, p := range def.Params {
			name := p.Name
			if p.Required {
				name += "*"
			}
			params = append(params, name)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", def.Name, kind, strings.Join(params, ", "))
	}
	return w.Flush()
}

func runOperationsSchema(cmd *cobra.Command, name string) error {
	def, ok := catalog.Default().Lookup(name)
	if !ok {
		return fmt.Errorf("unknown operation %q", name)
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, def.JSONSchema(), "", "  "); err != nil {
		return err
	}
	buf.WriteByte('\n')
	_, err := buf.WriteTo(cmd.OutOrStdout())
	return err
}

func runOperationsRun(cmd *cobra.Command, configPath, storeID, name, input string) error {
	if !json.Valid([]byte(input)) {
		return errors.New("input must be a JSON object")
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	logger := newLogger(cfg.Logging, cmd.ErrOrStderr(), false)

	b, err := newBackend(cmd.Context(), cfg, logger, nil, nil)
	if err != nil {
		return err
	}
	defer b.Close()

	caller := identity.Caller{StoreID: firstNonEmpty(storeID, cfg.Identity.DefaultStoreID)}
	result := b.operator.Execute(cmd.Context(), caller, models.OperationCall{
		CallID: "cli",
		Name:   name,
		Input:  json.RawMessage(input),
	})

	var buf bytes.Buffer
	if err := json.Indent(&buf, result.Payload, "", "  "); err != nil {
		buf.Reset()
		buf.Write(result.Payload)
	}
	buf.WriteByte('\n')
	if _, err := buf.WriteTo(cmd.OutOrStdout()); err != nil {
		return err
	}
	if result.IsError {
		return fmt.Errorf("operation %s failed", name)
	}
	return nil
}

// =============================================================================
// Period Command Handler
// =============================================================================

func runPeriod(cmd *cobra.Command, token, timezone, start, end, at string) error {
	period := datetime.Period(strings.TrimSpace(token))
	if !slices.Contains(datetime.Periods(), period) {
		return fmt.Errorf("unknown period %q", token)
	}
	resolver, err := newDateResolver(timezone)
	if err != nil {
		return err
	}

	ref := resolver.Now()
	if at != "" {
		ref, err = time.Parse(time.RFC3339, at)
		if err != nil {
			return fmt.Errorf("invalid --at: %w", err)
		}
	}

	r := resolver.ResolveAt(period, start, end, ref)
	fmt.Fprintf(cmd.OutOrStdout(), "start: %s\nend:   %s\n", r.Start, r.End)
	return nil
}

// =============================================================================
// Database Command Handlers
// =============================================================================

func runMigrate(cmd *cobra.Command, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	stores, err := openStores(cmd.Context(), cfg.Database, nil, nil)
	if err != nil {
		return err
	}
	defer stores.Close()

	if stores.Backend() == "memory" {
		fmt.Fprintln(cmd.OutOrStdout(), "memory backend: no schema to apply")
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "schema applied (%s)\n", stores.Backend())
	return nil
}

func runSeed(cmd *cobra.Command, configPath, fixturesPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	fixtures, err := storage.LoadFixtures(fixturesPath)
	if err != nil {
		return err
	}
	stores, err := openStores(cmd.Context(), cfg.Database, nil, nil)
	if err != nil {
		return err
	}
	defer stores.Close()

	inserted, err := storage.Seed(cmd.Context(), stores, fixtures)
	if err != nil {
		return fmt.Errorf("seed: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "inserted %d of %d rows (%s)\n", inserted, fixtures.Count(), stores.Backend())
	return nil
}

// =============================================================================
// Token Command Handler
// =============================================================================

func runTokenIssue(cmd *cobra.Command, configPath string, opts tokenOptions) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	expiry := cfg.Identity.TokenExpiry
	if opts.expiry > 0 {
		expiry = opts.expiry
	}
	tokens := identity.NewTokenService(cfg.Identity.JWTSecret, expiry)
	token, err := tokens.Issue(identity.Caller{
		UserID:    opts.userID,
		StoreID:   opts.storeID,
		StoreName: opts.storeName,
	})
	if errors.Is(err, identity.ErrTokensDisabled) {
		return errors.New("identity.jwt_secret is not configured")
	}
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}

// =============================================================================
// Config Command Handlers
// =============================================================================

func runConfigSchema(cmd *cobra.Command) error {
	schema, err := config.JSONSchema()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if _, err := out.Write(schema); err != nil {
		return err
	}
	_, err = fmt.Fprintln(out)
	return err
}

func runConfigValidate(cmd *cobra.Command, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	provider, _ := cfg.LLM.Provider()
	source := configPath
	if source == "" {
		source = "defaults"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: ok (provider=%s, database=%s, max_rounds=%d, timezone=%s)\n",
		source, provider, cfg.Database.Driver, cfg.Assistant.MaxRounds, cfg.Assistant.Timezone)
	return nil
}

// =============================================================================
// Helpers
// =============================================================================

func writeIndentedJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
