package identity

import (
	"net/http"
	"strings"
)

// Header names used when header identity is trusted.
const (
	HeaderUserID    = "X-User-Id"
	HeaderStoreID   = "X-Store-Id"
	HeaderStoreName = "X-Store-Name"
)

// Resolver derives the caller for an HTTP request.
type Resolver struct {
	tokens       *TokenService
	trustHeaders bool
	fallback     Caller
}

// NewResolver creates a resolver. tokens may be nil; fallback is the
// configured default caller used when the request carries no identity.
func NewResolver(tokens *TokenService, trustHeaders bool, fallback Caller) *Resolver {
	return &Resolver{tokens: tokens, trustHeaders: trustHeaders, fallback: fallback}
}

// Resolve checks, in order, a bearer token, trusted headers and the configured
// default. A bearer token that fails verification is an error; missing
// identity is not.
func (r *Resolver) Resolve(req *http.Request) (Caller, error) {
	if token := bearerToken(req.Header.Get("Authorization")); token != "" && r.tokens.Enabled() {
		caller, err := r.tokens.Verify(token)
		if err != nil {
			return Caller{}, err
		}
		return r.fillDefaults(caller), nil
	}

	if r.trustHeaders {
		caller := Caller{
			UserID:    strings.TrimSpace(req.Header.Get(HeaderUserID)),
			StoreID:   strings.TrimSpace(req.Header.Get(HeaderStoreID)),
			StoreName: strings.TrimSpace(req.Header.Get(HeaderStoreName)),
		}
		if caller.UserID != "" || caller.StoreID != "" {
			return r.fillDefaults(caller), nil
		}
	}

	return r.fallback, nil
}

func (r *Resolver) fillDefaults(c Caller) Caller {
	if c.StoreID == "" {
		c.StoreID = r.fallback.StoreID
		c.StoreName = r.fallback.StoreName
	}
	return c
}

func bearerToken(header string) string {
	header = strings.TrimSpace(header)
	if len(header) < 7 || !strings.EqualFold(header[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(header[7:])
}
