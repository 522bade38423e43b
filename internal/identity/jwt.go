package identity

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrTokensDisabled = errors.New("token verification disabled")
	ErrInvalidToken   = errors.New("invalid token")
)

// Claims are the JWT claims carrying a caller's default store.
type Claims struct {
	StoreID   string `json:"store_id,omitempty"`
	StoreName string `json:"store_name,omitempty"`
	jwt.RegisteredClaims
}

// TokenService signs and verifies HS256 caller tokens.
type TokenService struct {
	secret []byte
	expiry time.Duration
}

// NewTokenService builds a token helper with the given secret and expiry.
func NewTokenService(secret string, expiry time.Duration) *TokenService {
	return &TokenService{secret: []byte(secret), expiry: expiry}
}

// Enabled reports whether a secret is configured.
func (s *TokenService) Enabled() bool {
	return s != nil && len(s.secret) > 0
}

// Issue signs a token for the caller.
func (s *TokenService) Issue(caller Caller) (string, error) {
	if !s.Enabled() {
		return "", ErrTokensDisabled
	}
	if strings.TrimSpace(caller.UserID) == "" {
		return "", errors.New("user id required")
	}

	claims := Claims{
		StoreID:   strings.TrimSpace(caller.StoreID),
		StoreName: strings.TrimSpace(caller.StoreName),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   caller.UserID,
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(s.expiry)),
		},
	}
	if s.expiry <= 0 {
		claims.ExpiresAt = nil
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Verify parses and validates a token and returns the caller embedded in it.
func (s *TokenService) Verify(token string) (Caller, error) {
	if !s.Enabled() {
		return Caller{}, ErrTokensDisabled
	}

	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return Caller{}, ErrInvalidToken
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || strings.TrimSpace(claims.Subject) == "" {
		return Caller{}, ErrInvalidToken
	}
	return Caller{
		UserID:    claims.Subject,
		StoreID:   strings.TrimSpace(claims.StoreID),
		StoreName: strings.TrimSpace(claims.StoreName),
	}, nil
}
