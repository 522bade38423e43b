// Package gateway is the HTTP surface of opsassist: the chat endpoint, the
// operation catalog, health and metrics.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/haasonsaas/opsassist/internal/agent"
	"github.com/haasonsaas/opsassist/internal/catalog"
	"github.com/haasonsaas/opsassist/internal/identity"
	"github.com/haasonsaas/opsassist/internal/observability"
	"github.com/haasonsaas/opsassist/internal/ratelimit"
	"github.com/haasonsaas/opsassist/pkg/models"
)

// Assistant answers one chat message. *agent.Loop implements it.
type Assistant interface {
	Run(ctx context.Context, caller identity.Caller, history []models.Turn, message string) (*agent.Outcome, error)
}

// Config configures the HTTP server.
type Config struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration

	// MaxBodyBytes limits chat request bodies. Default: 1 MiB
	MaxBodyBytes int64

	// MetricsPath serves Prometheus metrics when metrics are configured.
	// Default: /metrics
	MetricsPath string
}

// Server serves the assistant over HTTP.
type Server struct {
	config    Config
	assistant Assistant
	catalog   *catalog.Catalog
	identity  *identity.Resolver
	health    func(context.Context) error
	limiter   *ratelimit.Limiter

	logger  *slog.Logger
	metrics *observability.Metrics
	tracer  *observability.Tracer

	mu           sync.Mutex
	httpServer   *http.Server
	httpListener net.Listener
}

// Option customizes a Server.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics records request metrics and serves them at Config.MetricsPath.
func WithMetrics(metrics *observability.Metrics) Option {
	return func(s *Server) { s.metrics = metrics }
}

// WithTracer starts a server span per request.
func WithTracer(tracer *observability.Tracer) Option {
	return func(s *Server) {
		if tracer != nil {
			s.tracer = tracer
		}
	}
}

// WithHealthCheck makes /healthz report 503 when check fails.
func WithHealthCheck(check func(context.Context) error) Option {
	return func(s *Server) { s.health = check }
}

// WithRateLimiter throttles chat requests per caller.
func WithRateLimiter(limiter *ratelimit.Limiter) Option {
	return func(s *Server) { s.limiter = limiter }
}

// New creates a server. resolver may be nil, in which case every request runs
// as an anonymous caller without a default store.
func New(config Config, assistant Assistant, cat *catalog.Catalog, resolver *identity.Resolver, opts ...Option) (*Server, error) {
	if assistant == nil {
		return nil, errors.New("gateway: assistant is required")
	}
	if cat == nil {
		return nil, errors.New("gateway: catalog is required")
	}
	if config.MaxBodyBytes <= 0 {
		config.MaxBodyBytes = 1 << 20
	}
	if config.MetricsPath == "" {
		config.MetricsPath = "/metrics"
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = 15 * time.Second
	}
	if resolver == nil {
		resolver = identity.NewResolver(nil, false, identity.Caller{})
	}

	s := &Server{
		config:    config,
		assistant: assistant,
		catalog:   cat,
		identity:  resolver,
		logger:    slog.Default(),
		tracer:    observability.NoopTracer(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Handler returns the routed handler wrapped in the middleware chain.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/chat", s.handleChat)
	mux.HandleFunc("GET /api/operations", s.handleOperations)
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	if s.metrics != nil {
		mux.Handle("GET "+s.config.MetricsPath, s.metrics.Handler())
	}

	return chain(mux,
		requestIDMiddleware,
		tracingMiddleware(s.tracer),
		loggingMiddleware(s.logger, s.metrics),
		recoveryMiddleware(s.logger, s.metrics),
	)
}

// Start listens on the configured address and serves in the background.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.httpServer != nil {
		return errors.New("gateway: already started")
	}

	addr := net.JoinHostPort(s.config.Host, fmt.Sprint(s.config.Port))
	listener, err := (&net.ListenConfig{}).Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("http listen: %w", err)
	}

	server := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       s.config.ReadTimeout,
		WriteTimeout:      s.config.WriteTimeout,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}
	s.httpServer = server
	s.httpListener = listener

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server error", "error", err)
		}
	}()

	s.logger.Info("starting http server", "addr", listener.Addr().String())
	return nil
}

// Addr returns the listening address once started.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.httpListener == nil {
		return ""
	}
	return s.httpListener.Addr().String()
}

// Stop drains in-flight requests for up to ShutdownTimeout.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	server := s.httpServer
	s.httpServer = nil
	s.httpListener = nil
	s.mu.Unlock()
	if server == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.config.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("http server shutdown error", "error", err)
		return err
	}
	return nil
}
