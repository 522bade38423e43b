package providers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Reason is the failure class of a model request. The retry wrapper only
// asks whether a class is worth another attempt.
type Reason string

const (
	ReasonRateLimit      Reason = "rate_limit"
	ReasonTimeout        Reason = "timeout"
	ReasonServerError    Reason = "server_error"
	ReasonAuth           Reason = "auth"
	ReasonInvalidRequest Reason = "invalid_request"
	ReasonUnknown        Reason = "unknown"
)

// IsRetryable reports whether resending the same request may succeed.
func (r Reason) IsRetryable() bool {
	return r == ReasonRateLimit || r == ReasonTimeout || r == ReasonServerError
}

// ProviderError is a failed model request.
type ProviderError struct {
	Reason    Reason
	Provider  string
	Model     string
	Status    int    // HTTP status, 0 for transport failures
	Code      string // vendor error type or code
	Message   string
	RequestID string
	Cause     error
}

func (e *ProviderError) Error() string {
	msg := e.Message
	if msg == "" && e.Cause != nil {
		msg = e.Cause.Error()
	}
	head := fmt.Sprintf("%s %s (%s", e.Provider, e.Reason, e.Model)
	if e.Status != 0 {
		head += fmt.Sprintf(", status %d", e.Status)
	}
	return head + "): " + msg
}

func (e *ProviderError) Unwrap() error { return e.Cause }

// reasonHints maps lowercase fragments of vendor codes and error text to a
// reason. The first matching row wins.
var reasonHints = []struct {
	reason Reason
	hints  []string
}{
	{ReasonTimeout, []string{"timeout", "deadline exceeded", "etimedout"}},
	{ReasonRateLimit, []string{"rate limit", "rate_limit", "too many requests", "resource exhausted", "429"}},
	{ReasonAuth, []string{"unauthorized", "unauthenticated", "permission denied", "invalid api key", "invalid_api_key", "authentication", "401", "403"}},
	{ReasonServerError, []string{"overloaded", "unavailable", "internal", "server error", "server_error", "api_error", "connection reset", "connection refused", "no such host", "500", "502", "503", "504"}},
	{ReasonInvalidRequest, []string{"invalid_request"}},
}

func reasonFromText(text string) Reason {
	text = strings.ToLower(text)
	if text == "" {
		return ReasonUnknown
	}
	for _, row := range reasonHints {
		for _, hint := range row.hints {
			if strings.Contains(text, hint) {
				return row.reason
			}
		}
	}
	return ReasonUnknown
}

func reasonFromStatus(status int) Reason {
	switch {
	case status == http.StatusTooManyRequests:
		return ReasonRateLimit
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ReasonAuth
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return ReasonTimeout
	case status >= 500:
		return ReasonServerError
	case status >= 400:
		return ReasonInvalidRequest
	}
	return ReasonUnknown
}

// ClassifyError derives a reason from an error's text.
func ClassifyError(err error) Reason {
	if err == nil {
		return ReasonUnknown
	}
	return reasonFromText(err.Error())
}

// NewProviderError wraps a failure that carries no HTTP response.
func NewProviderError(provider, model string, cause error) *ProviderError {
	err := &ProviderError{Provider: provider, Model: model, Cause: cause, Reason: ClassifyError(cause)}
	if cause != nil {
		err.Message = cause.Error()
	}
	return err
}

// newHTTPError wraps a vendor HTTP failure. The status decides the reason,
// then the vendor code, then the message. cause is stored unformatted.
func newHTTPError(provider, model string, status int, code, message string, cause error) *ProviderError {
	err := &ProviderError{
		Reason:   ReasonUnknown,
		Provider: provider,
		Model:    model,
		Status:   status,
		Code:     code,
		Message:  message,
		Cause:    cause,
	}
	for _, reason := range []Reason{reasonFromStatus(status), reasonFromText(code), reasonFromText(message)} {
		if reason != ReasonUnknown {
			err.Reason = reason
			break
		}
	}
	return err
}

// GetProviderError extracts a ProviderError from an error chain.
func GetProviderError(err error) (*ProviderError, bool) {
	var providerErr *ProviderError
	if errors.As(err, &providerErr) {
		return providerErr, true
	}
	return nil, false
}

// IsRetryable reports whether a Complete failure should be retried.
func IsRetryable(err error) bool {
	if providerErr, ok := GetProviderError(err); ok {
		return providerErr.Reason.IsRetryable()
	}
	return ClassifyError(err).IsRetryable()
}
