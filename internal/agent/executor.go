package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/haasonsaas/opsassist/internal/catalog"
	"github.com/haasonsaas/opsassist/internal/identity"
	"github.com/haasonsaas/opsassist/internal/observability"
	"github.com/haasonsaas/opsassist/pkg/models"
)

// Operator runs one operation call. Implementations report every failure in
// the result payload and set IsError; they do not return Go errors.
type Operator interface {
	Execute(ctx context.Context, caller identity.Caller, call models.OperationCall) models.OperationResult
}

// ExecutorConfig configures parallel operation dispatch.
type ExecutorConfig struct {
	// MaxConcurrency limits the number of operations running at once.
	// Default: 5
	MaxConcurrency int `yaml:"max_concurrency" json:"max_concurrency"`

	// OperationTimeout bounds a single attempt of one operation.
	// Default: 15s
	OperationTimeout time.Duration `yaml:"operation_timeout" json:"operation_timeout"`

	// Retries is the number of extra attempts for retryable failures of
	// read-only operations.
	// Default: 2
	Retries int `yaml:"retries" json:"retries"`

	// RetryBackoff is the initial backoff between attempts.
	// Default: 100ms
	RetryBackoff time.Duration `yaml:"retry_backoff" json:"retry_backoff"`

	// MaxRetryBackoff caps the exponential backoff.
	// Default: 2s
	MaxRetryBackoff time.Duration `yaml:"max_retry_backoff" json:"max_retry_backoff"`
}

// DefaultExecutorConfig returns the default executor configuration.
func DefaultExecutorConfig() *ExecutorConfig {
	return &ExecutorConfig{
		MaxConcurrency:   5,
		OperationTimeout: 15 * time.Second,
		Retries:          2,
		RetryBackoff:     100 * time.Millisecond,
		MaxRetryBackoff:  2 * time.Second,
	}
}

func sanitizeExecutorConfig(config *ExecutorConfig) *ExecutorConfig {
	defaults := DefaultExecutorConfig()
	if config == nil {
		return defaults
	}
	cfg := *config
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = defaults.MaxConcurrency
	}
	if cfg.OperationTimeout <= 0 {
		cfg.OperationTimeout = defaults.OperationTimeout
	}
	if cfg.Retries < 0 {
		cfg.Retries = 0
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = defaults.RetryBackoff
	}
	if cfg.MaxRetryBackoff <= 0 {
		cfg.MaxRetryBackoff = defaults.MaxRetryBackoff
	}
	return &cfg
}

// Executor fans a round of operation calls out to an Operator with bounded
// concurrency, per-attempt timeouts, retries and panic recovery.
type Executor struct {
	operator Operator
	catalog  *catalog.Catalog
	config   *ExecutorConfig
	logger   *slog.Logger
	metrics  *observability.Metrics
	tracer   *observability.Tracer

	// Semaphore for concurrency limiting
	sem chan struct{}

	stats *ExecutorMetrics
}

// ExecutorMetrics tracks dispatch counts for the lifetime of an Executor.
type ExecutorMetrics struct {
	mu              sync.Mutex
	TotalExecutions int64
	TotalRetries    int64
	TotalFailures   int64
	TotalTimeouts   int64
	TotalPanics     int64
}

// ExecutorMetricsSnapshot is a copy of ExecutorMetrics at a point in time.
type ExecutorMetricsSnapshot struct {
	TotalExecutions int64 `json:"total_executions"`
	TotalRetries    int64 `json:"total_retries"`
	TotalFailures   int64 `json:"total_failures"`
	TotalTimeouts   int64 `json:"total_timeouts"`
	TotalPanics     int64 `json:"total_panics"`
}

// NewExecutor creates an executor. The catalog decides which operations are
// mutating; a nil catalog treats every operation as mutating and disables
// retries.
func NewExecutor(operator Operator, cat *catalog.Catalog, config *ExecutorConfig) *Executor {
	config = sanitizeExecutorConfig(config)
	return &Executor{
		operator: operator,
		catalog:  cat,
		config:   config,
		logger:   slog.Default(),
		sem:      make(chan struct{}, config.MaxConcurrency),
		stats:    &ExecutorMetrics{},
	}
}

// dispatch is the outcome of one call, kept alongside the wire result for
// logging and metrics.
type dispatch struct {
	result   models.OperationResult
	err      *ToolError
	attempts int
	duration time.Duration
}

// ExecuteAll runs every call concurrently and returns exactly one result per
// call, in call order. Independent failures never block siblings.
func (e *Executor) ExecuteAll(ctx context.Context, caller identity.Caller, calls []models.OperationCall) []models.OperationResult {
	if len(calls) == 0 {
		return nil
	}

	results := make([]models.OperationResult, len(calls))
	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Add(1)
		go func(idx int, call models.OperationCall) {
			defer wg.Done()
			results[idx] = e.execute(ctx, caller, call).result
		}(i, call)
	}
	wg.Wait()
	return results
}

// execute runs one call with retry and timeout handling.
func (e *Executor) execute(ctx context.Context, caller identity.Caller, call models.OperationCall) dispatch {
	start := time.Now()
	ctx, span := e.tracer.TraceOperation(ctx, call.Name, call.CallID)
	defer span.End()

	out := dispatch{result: models.OperationResult{CallID: call.CallID}}

	select {
	case e.sem <- struct{}{}:
		defer func() { <-e.sem }()
	case <-ctx.Done():
		out.err = NewToolError(call.Name, ctx.Err()).
			WithType(ToolErrorTimeout).
			WithCallID(call.CallID).
			WithMessage("요청이 취소되었습니다")
		out.result = errorResult(call.CallID, out.err)
		out.duration = time.Since(start)
		e.record(ctx, call, out)
		return out
	}

	maxRetries := e.config.Retries
	if e.mutating(call.Name) {
		maxRetries = 0
	}
	backoff := e.config.RetryBackoff

attempts:
	for attempt := 0; attempt <= maxRetries; attempt++ {
		out.attempts = attempt + 1
		result, err := e.executeWithTimeout(ctx, caller, call)
		out.result, out.err = result, err

		retryable := false
		switch {
		case err != nil:
			retryable = err.Retryable
		case result.IsError:
			retryable = payloadRetryable(result.Payload)
		}
		if !retryable || ctx.Err() != nil || attempt >= maxRetries {
			break attempts
		}

		sleep := backoff * time.Duration(1<<uint(attempt))
		if sleep > e.config.MaxRetryBackoff {
			sleep = e.config.MaxRetryBackoff
		}
		e.logger.DebugContext(ctx, "retrying operation",
			"operation", call.Name,
			"call_id", call.CallID,
			"attempt", attempt+1,
			"backoff", sleep)

		timer := time.NewTimer(sleep)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			break attempts
		}
	}

	if out.err != nil {
		out.err.Attempts = out.attempts
		out.result = errorResult(call.CallID, out.err)
		e.tracer.RecordError(span, out.err)
	}
	out.duration = time.Since(start)
	e.record(ctx, call, out)
	return out
}

// executeWithTimeout runs one attempt. The Operator runs in its own goroutine
// so a hung store call cannot hold the round past the timeout.
func (e *Executor) executeWithTimeout(ctx context.Context, caller identity.Caller, call models.OperationCall) (models.OperationResult, *ToolError) {
	execCtx, cancel := context.WithTimeout(ctx, e.config.OperationTimeout)
	defer cancel()

	type execResult struct {
		result models.OperationResult
		err    *ToolError
	}
	resultCh := make(chan execResult, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				e.logger.Error("operation panicked",
					"operation", call.Name,
					"call_id", call.CallID,
					"panic", r,
					"stack", string(debug.Stack()))
				err := NewToolError(call.Name, fmt.Errorf("%w: %v", ErrOperationPanic, r)).
					WithType(ToolErrorPanic).
					WithCallID(call.CallID).
					WithMessage("작업 실행 중 내부 오류가 발생했습니다")
				resultCh <- execResult{err: err}
			}
		}()
		resultCh <- execResult{result: e.operator.Execute(execCtx, caller, call)}
	}()

	select {
	case res := <-resultCh:
		res.result.CallID = call.CallID
		return res.result, res.err
	case <-execCtx.Done():
		if ctx.Err() != nil {
			return models.OperationResult{}, NewToolError(call.Name, ctx.Err()).
				WithType(ToolErrorTimeout).
				WithCallID(call.CallID).
				WithMessage("요청이 취소되었습니다")
		}
		return models.OperationResult{}, NewToolError(call.Name, ErrOperationTimeout).
			WithType(ToolErrorTimeout).
			WithCallID(call.CallID).
			WithMessage(fmt.Sprintf("작업 시간이 초과되었습니다 (%s)", e.config.OperationTimeout))
	}
}

func (e *Executor) mutating(name string) bool {
	if e.catalog == nil {
		return true
	}
	def, ok := e.catalog.Lookup(name)
	if !ok {
		// Unknown operations fail fast inside the operator.
		return true
	}
	return def.Mutating
}

func (e *Executor) record(ctx context.Context, call models.OperationCall, out dispatch) {
	status := "success"
	switch {
	case out.err != nil && out.err.Type == ToolErrorTimeout:
		status = "timeout"
	case out.err != nil && out.err.Type == ToolErrorPanic:
		status = "panic"
	case out.result.IsError:
		status = "error"
	}

	e.stats.mu.Lock()
	e.stats.TotalExecutions++
	if out.attempts > 1 {
		e.stats.TotalRetries += int64(out.attempts - 1)
	}
	if status != "success" {
		e.stats.TotalFailures++
	}
	if status == "timeout" {
		e.stats.TotalTimeouts++
	}
	if status == "panic" {
		e.stats.TotalPanics++
	}
	e.stats.mu.Unlock()

	e.metrics.RecordOperation(call.Name, status, out.duration.Seconds(), out.attempts)
	e.logger.DebugContext(ctx, "operation settled",
		"operation", call.Name,
		"call_id", call.CallID,
		"status", status,
		"attempts", out.attempts,
		"duration_ms", out.duration.Milliseconds())
}

// Metrics returns a snapshot of the executor counters.
func (e *Executor) Metrics() *ExecutorMetricsSnapshot {
	e.stats.mu.Lock()
	defer e.stats.mu.Unlock()
	return &ExecutorMetricsSnapshot{
		TotalExecutions: e.stats.TotalExecutions,
		TotalRetries:    e.stats.TotalRetries,
		TotalFailures:   e.stats.TotalFailures,
		TotalTimeouts:   e.stats.TotalTimeouts,
		TotalPanics:     e.stats.TotalPanics,
	}
}

// errorPayload mirrors the message/error fields of operation payloads.
type errorPayload struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

func errorResult(callID string, err *ToolError) models.OperationResult {
	detail := err.Message
	if err.Cause != nil {
		detail = err.Cause.Error()
	}
	payload, _ := json.Marshal(errorPayload{Message: err.Message, Error: detail})
	return models.OperationResult{CallID: callID, Payload: payload, IsError: true}
}

// payloadRetryable classifies an operator-reported failure from the error
// text in its payload.
func payloadRetryable(payload json.RawMessage) bool {
	var p struct {
		Error       string `json:"error"`
		Unsupported bool   `json:"unsupported"`
	}
	if err := json.Unmarshal(payload, &p); err != nil || p.Unsupported || p.Error == "" {
		return false
	}
	return classifyMessage(p.Error).IsRetryable()
}
