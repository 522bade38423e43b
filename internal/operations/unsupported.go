package operations

import (
	"context"
	"strings"
)

type unsupportedRequest struct {
	Reason string `json:"reason"`
}

func (r *unsupportedRequest) validate() error {
	if strings.TrimSpace(r.Reason) == "" {
		return invalid("reason is required")
	}
	return nil
}

func (r *unsupportedRequest) run(_ context.Context, _ *env) (*Envelope, error) {
	return &Envelope{
		Message:     UnsupportedPhrase + ": " + strings.TrimSpace(r.Reason),
		DataType:    "unsupported",
		Unsupported: true,
	}, nil
}
