// Package observability provides the logging, metrics and tracing used by
// every opsassist component.
//
// # Logging
//
// NewLogger builds an slog-based logger whose handler redacts secrets
// (API keys, JWTs, DSN passwords) and adds request_id, user_id and store_id
// from the context. Components accept the *slog.Logger returned by Slog:
//
//	logger := observability.NewLogger(observability.LogConfig{Level: "info"})
//	ctx = observability.AddRequestID(ctx, requestID)
//	logger.Slog().InfoContext(ctx, "chat completed", "rounds", 2)
//
// # Metrics
//
// NewMetrics registers Prometheus collectors on a private registry; Handler
// serves it at /metrics. Model calls, operation dispatches, conversation
// outcomes, HTTP requests and store queries are recorded. A nil *Metrics
// records nothing, so components never need to check.
//
// Useful queries:
//
//	# reasoning engine latency (p95)
//	histogram_quantile(0.95, rate(opsassist_llm_request_duration_seconds_bucket[5m]))
//
//	# conversations hitting the round budget
//	rate(opsassist_conversations_total{state="ABORTED_LIMIT"}[1h])
//
// # Tracing
//
// NewTracer exports spans over OTLP/gRPC when an endpoint is configured and
// otherwise falls back to the global (no-op) provider. Each chat request
// yields a conversation span with child spans per model call and per
// operation dispatch.
package observability
