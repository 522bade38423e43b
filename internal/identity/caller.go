// Package identity resolves who is calling the assistant and which store
// they default to. The result is only used to default store filters; it is
// never an authorization decision.
package identity

import (
	"context"
	"strings"
)

// Caller is the authenticated actor's default scope.
type Caller struct {
	UserID    string `json:"user_id,omitempty"`
	StoreID   string `json:"store_id,omitempty"`
	StoreName string `json:"store_name,omitempty"`
}

// HasStore reports whether the caller carries a default store.
func (c Caller) HasStore() bool {
	return strings.TrimSpace(c.StoreID) != ""
}

type callerContextKey struct{}

// WithCaller attaches a caller to the context.
func WithCaller(ctx context.Context, caller Caller) context.Context {
	return context.WithValue(ctx, callerContextKey{}, caller)
}

// CallerFromContext retrieves the caller attached by WithCaller.
func CallerFromContext(ctx context.Context) (Caller, bool) {
	caller, ok := ctx.Value(callerContextKey{}).(Caller)
	return caller, ok
}
