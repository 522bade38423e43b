package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides a centralized interface for collecting assistant metrics.
//
// The metrics system is built on Prometheus and tracks:
//   - Reasoning engine call latency, status and token usage
//   - Operation dispatch outcomes, latency and retries
//   - Conversation outcomes and round counts
//   - HTTP request rates and latencies
//   - Store query latency by table
//
// Every collector is registered on a private registry so several instances
// can coexist (tests build one per case). Handler exposes that registry.
//
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	// LLMRequestDuration measures reasoning engine call latency in seconds.
	// Labels: provider, model
	LLMRequestDuration *prometheus.HistogramVec

	// LLMRequestCounter counts reasoning engine calls.
	// Labels: provider, model, status (success|error)
	LLMRequestCounter *prometheus.CounterVec

	// LLMTokensUsed tracks token consumption.
	// Labels: provider, model, type (prompt|completion)
	LLMTokensUsed *prometheus.CounterVec

	// OperationCounter counts operation dispatches.
	// Labels: operation, status (success|error|timeout|panic)
	OperationCounter *prometheus.CounterVec

	// OperationDuration measures operation latency in seconds, retries included.
	// Labels: operation
	OperationDuration *prometheus.HistogramVec

	// OperationRetries counts retry attempts beyond the first.
	// Labels: operation
	OperationRetries *prometheus.CounterVec

	// ConversationCounter counts finished conversation loops.
	// Labels: state (DONE|ABORTED_LIMIT|ERROR)
	ConversationCounter *prometheus.CounterVec

	// ConversationRounds observes executed tool rounds per conversation.
	ConversationRounds prometheus.Histogram

	// ErrorCounter tracks errors by component and type.
	// Labels: component (agent|operation|gateway|storage), error_type
	ErrorCounter *prometheus.CounterVec

	// HTTPRequestDuration measures HTTP API request latency.
	// Labels: method, path, status_code
	HTTPRequestDuration *prometheus.HistogramVec

	// HTTPRequestCounter counts HTTP requests.
	// Labels: method, path, status_code
	HTTPRequestCounter *prometheus.CounterVec

	// DatabaseQueryDuration measures store query latency.
	// Labels: operation (select|insert), table
	DatabaseQueryDuration *prometheus.HistogramVec

	// DatabaseQueryCounter counts store queries.
	// Labels: operation, table, status (success|error)
	DatabaseQueryCounter *prometheus.CounterVec
}

// NewMetrics creates every collector on a fresh registry that also carries
// the Go runtime and process collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		LLMRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "opsassist_llm_request_duration_seconds",
				Help:    "Duration of reasoning engine calls in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"provider", "model"},
		),

		LLMRequestCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "opsassist_llm_requests_total",
				Help: "Total number of reasoning engine calls by provider, model, and status",
			},
			[]string{"provider", "model", "status"},
		),

		LLMTokensUsed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "opsassist_llm_tokens_total",
				Help: "Total number of tokens used by provider, model, and type",
			},
			[]string{"provider", "model", "type"},
		),

		OperationCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "opsassist_operations_total",
				Help: "Total number of operation dispatches by operation and status",
			},
			[]string{"operation", "status"},
		),

		OperationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "opsassist_operation_duration_seconds",
				Help:    "Duration of operation dispatches in seconds",
				Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 15},
			},
			[]string{"operation"},
		),

		OperationRetries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "opsassist_operation_retries_total",
				Help: "Total number of operation retry attempts",
			},
			[]string{"operation"},
		),

		ConversationCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "opsassist_conversations_total",
				Help: "Total number of conversation loops by final state",
			},
			[]string{"state"},
		),

		ConversationRounds: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "opsassist_conversation_rounds",
				Help:    "Executed tool rounds per conversation loop",
				Buckets: []float64{0, 1, 2, 3, 4, 5},
			},
		),

		ErrorCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "opsassist_errors_total",
				Help: "Total number of errors by component and error type",
			},
			[]string{"component", "error_type"},
		),

		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "opsassist_http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
			},
			[]string{"method", "path", "status_code"},
		),

		HTTPRequestCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "opsassist_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status_code"},
		),

		DatabaseQueryDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "opsassist_database_query_duration_seconds",
				Help:    "Duration of store queries in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"operation", "table"},
		),

		DatabaseQueryCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "opsassist_database_queries_total",
				Help: "Total number of store queries",
			},
			[]string{"operation", "table", "status"},
		),
	}
}

// Registry returns the registry holding every collector.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RecordLLMRequest records metrics for a reasoning engine call.
//
// Example:
//
//	start := time.Now()
//	// ... call the model ...
//	metrics.RecordLLMRequest("anthropic", "claude-sonnet-4", "success", time.Since(start).Seconds(), 100, 500)
func (m *Metrics) RecordLLMRequest(provider, model, status string, durationSeconds float64, promptTokens, completionTokens int) {
	if m == nil {
		return
	}
	m.LLMRequestCounter.WithLabelValues(provider, model, status).Inc()
	m.LLMRequestDuration.WithLabelValues(provider, model).Observe(durationSeconds)
	if promptTokens > 0 {
		m.LLMTokensUsed.WithLabelValues(provider, model, "prompt").Add(float64(promptTokens))
	}
	if completionTokens > 0 {
		m.LLMTokensUsed.WithLabelValues(provider, model, "completion").Add(float64(completionTokens))
	}
}

// RecordOperation records one settled operation dispatch.
func (m *Metrics) RecordOperation(operation, status string, durationSeconds float64, attempts int) {
	if m == nil {
		return
	}
	m.OperationCounter.WithLabelValues(operation, status).Inc()
	m.OperationDuration.WithLabelValues(operation).Observe(durationSeconds)
	if attempts > 1 {
		m.OperationRetries.WithLabelValues(operation).Add(float64(attempts - 1))
	}
}

// RecordConversation records a finished conversation loop.
func (m *Metrics) RecordConversation(state string, rounds int) {
	if m == nil {
		return
	}
	m.ConversationCounter.WithLabelValues(state).Inc()
	m.ConversationRounds.Observe(float64(rounds))
}

// RecordError increments the error counter for a given component and error type.
//
// Example:
//
//	metrics.RecordError("agent", "llm_timeout")
func (m *Metrics) RecordError(component, errorType string) {
	if m == nil {
		return
	}
	m.ErrorCounter.WithLabelValues(component, errorType).Inc()
}

// RecordHTTPRequest records metrics for an HTTP request.
//
// Example:
//
//	metrics.RecordHTTPRequest("POST", "/api/chat", "200", time.Since(start).Seconds())
func (m *Metrics) RecordHTTPRequest(method, path, statusCode string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.HTTPRequestCounter.WithLabelValues(method, path, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path, statusCode).Observe(durationSeconds)
}

// RecordDatabaseQuery records metrics for a store query.
//
// Example:
//
//	metrics.RecordDatabaseQuery("select", "orders", "success", time.Since(start).Seconds())
func (m *Metrics) RecordDatabaseQuery(operation, table, status string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.DatabaseQueryCounter.WithLabelValues(operation, table, status).Inc()
	m.DatabaseQueryDuration.WithLabelValues(operation, table).Observe(durationSeconds)
}
