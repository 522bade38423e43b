package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/haasonsaas/opsassist/internal/identity"
	"github.com/haasonsaas/opsassist/internal/observability"
	"github.com/haasonsaas/opsassist/internal/reply"
	"github.com/haasonsaas/opsassist/pkg/models"
)

// LoopConfig configures the conversation loop.
type LoopConfig struct {
	// MaxRounds is the number of tool rounds executed before the loop forces
	// an apology.
	// Default: 5
	MaxRounds int `yaml:"max_rounds" json:"max_rounds"`

	// MaxTokens is the response limit for every model call.
	// Default: 1024
	MaxTokens int `yaml:"max_tokens" json:"max_tokens"`

	// ModelTimeout bounds each reasoning engine call.
	// Default: 60s
	ModelTimeout time.Duration `yaml:"model_timeout" json:"model_timeout"`

	// Model overrides the provider's default model.
	Model string `yaml:"model" json:"model"`

	// Executor configures operation dispatch.
	Executor *ExecutorConfig `yaml:"executor" json:"executor"`
}

// DefaultLoopConfig returns the default loop configuration.
func DefaultLoopConfig() *LoopConfig {
	return &LoopConfig{
		MaxRounds:    5,
		MaxTokens:    1024,
		ModelTimeout: 60 * time.Second,
		Executor:     DefaultExecutorConfig(),
	}
}

func sanitizeLoopConfig(config *LoopConfig) *LoopConfig {
	defaults := DefaultLoopConfig()
	if config == nil {
		return defaults
	}
	cfg := *config
	if cfg.MaxRounds <= 0 {
		cfg.MaxRounds = defaults.MaxRounds
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaults.MaxTokens
	}
	if cfg.ModelTimeout <= 0 {
		cfg.ModelTimeout = defaults.ModelTimeout
	}
	cfg.Executor = sanitizeExecutorConfig(cfg.Executor)
	return &cfg
}

// Outcome is the result of one Run.
type Outcome struct {
	// FinalMessage is the user-visible answer after policy is applied.
	FinalMessage string `json:"message"`

	// Conversation is the repaired history plus every turn of this run.
	// Its last turn is the assistant turn carrying FinalMessage.
	Conversation []models.Turn `json:"conversation"`

	// State is DONE or ABORTED_LIMIT.
	State models.LoopState `json:"state"`

	// Rounds is the number of tool rounds executed.
	Rounds int `json:"rounds"`
}

// Loop drives the multi-round exchange with the reasoning engine:
//
//	AWAITING_MODEL ──calls──▶ EXECUTING_TOOLS ──results──▶ AWAITING_MODEL
//	      │                          │
//	      │ text                     │ error/unsupported result
//	      ▼                          ▼
//	    DONE ◀──────────── closing call (tool choice none)
//
//	rounds == MaxRounds and the model still asks for calls
//	      └──▶ forced apology call (tool choice none) ──▶ ABORTED_LIMIT
//
// A Loop holds no per-request state and is safe for concurrent use.
type Loop struct {
	provider LLMProvider
	executor *Executor
	tools    []Tool
	prompt   *PromptBuilder
	policy   reply.Policy
	config   *LoopConfig

	logger  *slog.Logger
	metrics *observability.Metrics
	tracer  *observability.Tracer
}

// LoopOption customizes a Loop.
type LoopOption func(*Loop)

// WithLogger sets the logger for the loop and its executor.
func WithLogger(logger *slog.Logger) LoopOption {
	return func(l *Loop) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithMetrics records model calls, operations and outcomes.
func WithMetrics(metrics *observability.Metrics) LoopOption {
	return func(l *Loop) { l.metrics = metrics }
}

// WithTracer emits spans for conversations, model calls and operations.
func WithTracer(tracer *observability.Tracer) LoopOption {
	return func(l *Loop) {
		if tracer != nil {
			l.tracer = tracer
		}
	}
}

// NewLoop creates a conversation loop. Operations offered to the model and
// the refusal/apology wording come from prompt.
func NewLoop(provider LLMProvider, operator Operator, prompt *PromptBuilder, config *LoopConfig, opts ...LoopOption) (*Loop, error) {
	if provider == nil {
		return nil, ErrNoProvider
	}
	if operator == nil {
		return nil, ErrNoOperator
	}
	if prompt == nil || prompt.catalog == nil {
		return nil, errors.New("prompt builder with catalog is required")
	}
	config = sanitizeLoopConfig(config)

	l := &Loop{
		provider: provider,
		tools:    ToolsFromCatalog(prompt.catalog),
		prompt:   prompt,
		policy:   prompt.policy,
		config:   config,
		logger:   slog.Default(),
		tracer:   observability.NoopTracer(),
	}
	for _, opt := range opts {
		opt(l)
	}

	l.executor = NewExecutor(operator, prompt.catalog, config.Executor)
	l.executor.logger = l.logger
	l.executor.metrics = l.metrics
	l.executor.tracer = l.tracer
	return l, nil
}

// ExecutorMetrics returns dispatch counters accumulated by this loop.
func (l *Loop) ExecutorMetrics() *ExecutorMetricsSnapshot {
	return l.executor.Metrics()
}

// modelResponse is one fully collected model reply.
type modelResponse struct {
	text         string
	calls        []models.OperationCall
	inputTokens  int
	outputTokens int
}

// Run answers message in the context of history. It returns an error only
// when the reasoning engine fails or ctx ends; operation failures are part
// of the normal flow.
func (l *Loop) Run(ctx context.Context, caller identity.Caller, history []models.Turn, message string) (*Outcome, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, &LoopError{Phase: PhaseInit, Cause: ErrEmptyMessage}
	}

	start := time.Now()
	ctx, span := l.tracer.TraceConversation(ctx, caller.StoreID)
	defer span.End()

	system := l.prompt.Build(caller)
	conv := append(repairTranscript(append([]models.Turn(nil), history...)), models.UserTurn(message))

	state := models.StateAwaitingModel
	rounds := 0
	var text string
	var last []models.OperationResult

	for !state.Terminal() {
		resp, err := l.complete(ctx, system, conv, ToolChoiceAuto, rounds+1)
		if err != nil {
			return nil, l.fail(ctx, span, PhaseModel, rounds, err)
		}

		if len(resp.calls) == 0 {
			text = resp.text
			state = models.StateDone
			break
		}

		if rounds >= l.config.MaxRounds {
			l.logger.WarnContext(ctx, "round budget exhausted",
				"rounds", rounds,
				"pending_calls", len(resp.calls))
			resp, err := l.complete(ctx, system+l.prompt.ApologyInstruction(), conv, ToolChoiceNone, rounds+1)
			if err != nil {
				return nil, l.fail(ctx, span, PhaseClosing, rounds, err)
			}
			text = resp.text
			state = models.StateAbortedLimit
			break
		}

		state = models.StateExecutingTools
		calls := withCallIDs(resp.calls)
		conv = append(conv, models.AssistantCalls(calls))

		last = l.executor.ExecuteAll(ctx, caller, calls)
		rounds++
		conv = append(conv, models.ToolTurn(last))
		if err := ctx.Err(); err != nil {
			return nil, l.fail(ctx, span, PhaseExecute, rounds, err)
		}
		state = models.StateAwaitingModel

		if sig := l.policy.Signals(last); sig.Terminal() {
			l.tracer.AddEvent(span, "closing_round", "error", sig.Error, "unsupported", sig.Unsupported)
			resp, err := l.complete(ctx, system+l.prompt.ClosingInstruction(), conv, ToolChoiceNone, rounds+1)
			if err != nil {
				return nil, l.fail(ctx, span, PhaseClosing, rounds, err)
			}
			text = resp.text
			state = models.StateDone
		}
	}

	final := l.policy.Finalize(state, text, last, reply.WantsTable(message))
	conv = append(conv, models.AssistantText(final))

	l.metrics.RecordConversation(string(state), rounds)
	l.tracer.SetAttributes(span, "state", string(state), "rounds", rounds)
	l.logger.InfoContext(ctx, "conversation finished",
		"state", state,
		"rounds", rounds,
		"duration_ms", time.Since(start).Milliseconds())

	return &Outcome{
		FinalMessage: final,
		Conversation: conv,
		State:        state,
		Rounds:       rounds,
	}, nil
}

// complete performs one bounded model call and collects the stream. The
// operation surface is always sent; choice decides whether calls are allowed.
func (l *Loop) complete(ctx context.Context, system string, conv []models.Turn, choice ToolChoice, round int) (*modelResponse, error) {
	callCtx, cancel := context.WithTimeout(ctx, l.config.ModelTimeout)
	defer cancel()

	model := l.config.Model
	callCtx, span := l.tracer.TraceLLMRequest(callCtx, l.provider.Name(), model, round)
	defer span.End()

	req := &CompletionRequest{
		Model:     model,
		System:    system,
		Messages:  turnsToMessages(conv),
		Tools:      l.tools,
		ToolChoice: choice,
		MaxTokens:  l.config.MaxTokens,
	}

	start := time.Now()
	resp, err := l.collect(callCtx, req)
	if err != nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		err = fmt.Errorf("model call timed out after %s: %w", l.config.ModelTimeout, err)
	}

	status := "success"
	if err != nil {
		status = "error"
		l.tracer.RecordError(span, err)
	}
	l.metrics.RecordLLMRequest(l.provider.Name(), model, status, time.Since(start).Seconds(), resp.inputTokens, resp.outputTokens)
	if err != nil {
		return nil, err
	}

	if choice == ToolChoiceNone && len(resp.calls) > 0 {
		l.logger.WarnContext(ctx, "ignoring operation calls from a call that forbids them", "calls", len(resp.calls))
		resp.calls = nil
	}
	l.logger.DebugContext(ctx, "model call completed",
		"round", round,
		"calls", len(resp.calls),
		"text_len", len(resp.text),
		"duration_ms", time.Since(start).Milliseconds())
	return resp, nil
}

func (l *Loop) collect(ctx context.Context, req *CompletionRequest) (*modelResponse, error) {
	resp := &modelResponse{}
	stream, err := l.provider.Complete(ctx, req)
	if err != nil {
		return resp, err
	}

	var text strings.Builder
	for {
		select {
		case <-ctx.Done():
			return resp, ctx.Err()
		case chunk, ok := <-stream:
			if !ok {
				resp.text = strings.TrimSpace(text.String())
				return resp, nil
			}
			if chunk == nil {
				continue
			}
			if chunk.Error != nil {
				return resp, chunk.Error
			}
			text.WriteString(chunk.Text)
			if chunk.Call != nil {
				resp.calls = append(resp.calls, *chunk.Call)
			}
			if chunk.InputTokens > 0 {
				resp.inputTokens = chunk.InputTokens
			}
			if chunk.OutputTokens > 0 {
				resp.outputTokens = chunk.OutputTokens
			}
			if chunk.Done {
				resp.text = strings.TrimSpace(text.String())
				return resp, nil
			}
		}
	}
}

func (l *Loop) fail(ctx context.Context, span trace.Span, phase LoopPhase, round int, err error) error {
	l.metrics.RecordConversation("ERROR", round)
	l.metrics.RecordError("agent", string(phase))
	l.tracer.RecordError(span, err)
	l.logger.ErrorContext(ctx, "conversation failed", "phase", phase, "round", round, "error", err)
	return &LoopError{Phase: phase, Round: round, Cause: err}
}

// withCallIDs copies calls so that every call has an id unique within the
// round. Missing and repeated ids are replaced with fresh ones.
func withCallIDs(calls []models.OperationCall) []models.OperationCall {
	out := make([]models.OperationCall, len(calls))
	seen := make(map[string]bool, len(calls))
	for i, call := range calls {
		if call.CallID == "" || seen[call.CallID] {
			call.CallID = uuid.NewString()
		}
		seen[call.CallID] = true
		out[i] = call
	}
	return out
}
