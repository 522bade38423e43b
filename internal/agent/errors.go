package agent

import (
	"errors"
	"fmt"
	"strings"
)

// Common sentinel errors for loop operations
var (
	// ErrMaxRounds indicates the round budget was exhausted
	ErrMaxRounds = errors.New("max rounds exceeded")

	// ErrNoProvider indicates no LLM provider is configured
	ErrNoProvider = errors.New("no provider configured")

	// ErrNoOperator indicates no operation executor is configured
	ErrNoOperator = errors.New("no operation executor configured")

	// ErrEmptyMessage indicates a blank user message
	ErrEmptyMessage = errors.New("message is empty")

	// ErrOperationTimeout indicates an operation exceeded its timeout
	ErrOperationTimeout = errors.New("operation timed out")

	// ErrOperationPanic indicates an operation panicked
	ErrOperationPanic = errors.New("operation panicked")
)

// ToolErrorType categorizes operation failures for retry decisions.
type ToolErrorType string

const (
	ToolErrorInvalidInput ToolErrorType = "invalid_input"
	ToolErrorTimeout      ToolErrorType = "timeout"
	ToolErrorNetwork      ToolErrorType = "network"
	ToolErrorRateLimit    ToolErrorType = "rate_limit"
	ToolErrorExecution    ToolErrorType = "execution"
	ToolErrorPanic        ToolErrorType = "panic"
	ToolErrorUnsupported  ToolErrorType = "unsupported"
	ToolErrorUnknown      ToolErrorType = "unknown"
)

// IsRetryable returns true if retrying may succeed.
func (t ToolErrorType) IsRetryable() bool {
	switch t {
	case ToolErrorTimeout, ToolErrorNetwork, ToolErrorRateLimit:
		return true
	default:
		return false
	}
}

// ToolError is a structured operation failure.
type ToolError struct {
	Type      ToolErrorType
	Operation string
	CallID    string
	Message   string
	Cause     error
	Retryable bool
	Attempts  int
}

// Error implements the error interface.
func (e *ToolError) Error() string {
	var parts []string
	parts = append(parts, fmt.Sprintf("[operation:%s]", e.Type))
	if e.Operation != "" {
		parts = append(parts, e.Operation)
	}
	if e.Message != "" {
		parts = append(parts, e.Message)
	} else if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}
	if e.Attempts > 1 {
		parts = append(parts, fmt.Sprintf("(attempts=%d)", e.Attempts))
	}
	return strings.Join(parts, " ")
}

// Unwrap returns the underlying error.
func (e *ToolError) Unwrap() error {
	return e.Cause
}

// NewToolError creates a ToolError classified from cause.
func NewToolError(operation string, cause error) *ToolError {
	err := &ToolError{
		Operation: operation,
		Cause:     cause,
		Type:      ToolErrorUnknown,
		Attempts:  1,
	}
	if cause != nil {
		err.Message = cause.Error()
		err.Type = classifyToolError(cause)
		err.Retryable = err.Type.IsRetryable()
	}
	return err
}

// WithType sets the error type and updates the retryable flag.
func (e *ToolError) WithType(t ToolErrorType) *ToolError {
	e.Type = t
	e.Retryable = t.IsRetryable()
	return e
}

// WithCallID sets the call id.
func (e *ToolError) WithCallID(id string) *ToolError {
	e.CallID = id
	return e
}

// WithMessage sets the message.
func (e *ToolError) WithMessage(msg string) *ToolError {
	e.Message = msg
	return e
}

// classifyToolError infers the type from sentinels and message text.
func classifyToolError(err error) ToolErrorType {
	if err == nil {
		return ToolErrorUnknown
	}
	if errors.Is(err, ErrOperationTimeout) {
		return ToolErrorTimeout
	}
	if errors.Is(err, ErrOperationPanic) {
		return ToolErrorPanic
	}
	return classifyMessage(err.Error())
}

func classifyMessage(msg string) ToolErrorType {
	s := strings.ToLower(msg)
	switch {
	case strings.Contains(s, "timeout"),
		strings.Contains(s, "timed out"),
		strings.Contains(s, "deadline exceeded"):
		return ToolErrorTimeout
	case strings.Contains(s, "connection"),
		strings.Contains(s, "network"),
		strings.Contains(s, "refused"),
		strings.Contains(s, "broken pipe"),
		strings.Contains(s, "database is locked"):
		return ToolErrorNetwork
	case strings.Contains(s, "rate limit"),
		strings.Contains(s, "too many"):
		return ToolErrorRateLimit
	case strings.Contains(s, "unknown operation"):
		return ToolErrorUnsupported
	case strings.Contains(s, "invalid"),
		strings.Contains(s, "required"),
		strings.Contains(s, "missing"):
		return ToolErrorInvalidInput
	}
	return ToolErrorExecution
}

// GetToolError extracts a ToolError from an error chain.
func GetToolError(err error) (*ToolError, bool) {
	var toolErr *ToolError
	if errors.As(err, &toolErr) {
		return toolErr, true
	}
	return nil, false
}

// LoopError is a fatal loop failure with the phase and round it occurred in.
type LoopError struct {
	Phase   LoopPhase
	Round   int
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *LoopError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("loop error at %s (round %d): %s", e.Phase, e.Round, e.Message)
	}
	if e.Cause != nil {
		return fmt.Sprintf("loop error at %s (round %d): %v", e.Phase, e.Round, e.Cause)
	}
	return fmt.Sprintf("loop error at %s (round %d)", e.Phase, e.Round)
}

// Unwrap returns the underlying error.
func (e *LoopError) Unwrap() error {
	return e.Cause
}

// LoopPhase is a step of the loop lifecycle.
type LoopPhase string

const (
	// PhaseInit builds the prompt and repairs history
	PhaseInit LoopPhase = "init"

	// PhaseModel calls the reasoning engine
	PhaseModel LoopPhase = "model"

	// PhaseExecute dispatches operation calls
	PhaseExecute LoopPhase = "execute"

	// PhaseClosing is the final call with tool use forbidden
	PhaseClosing LoopPhase = "closing"
)
