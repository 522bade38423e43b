package identity

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenService_IssueVerify(t *testing.T) {
	svc := NewTokenService("secret", time.Hour)
	token, err := svc.Issue(Caller{UserID: "u1", StoreID: "s1", StoreName: "강남점"})
	require.NoError(t, err)

	caller, err := svc.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, Caller{UserID: "u1", StoreID: "s1", StoreName: "강남점"}, caller)

	_, err = NewTokenService("other", time.Hour).Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = NewTokenService("", 0).Issue(Caller{UserID: "u1"})
	assert.ErrorIs(t, err, ErrTokensDisabled)
}

func TestResolver_Resolve(t *testing.T) {
	tokens := NewTokenService("secret", time.Hour)
	fallback := Caller{UserID: "system", StoreID: "s0", StoreName: "본점"}
	good, err := tokens.Issue(Caller{UserID: "u1", StoreID: "s1", StoreName: "강남점"})
	require.NoError(t, err)
	storeless, err := tokens.Issue(Caller{UserID: "u2"})
	require.NoError(t, err)

	tests := []struct {
		name         string
		trustHeaders bool
		headers      map[string]string
		want         Caller
		wantErr      error
	}{
		{
			name:    "bearer token",
			headers: map[string]string{"Authorization": "Bearer " + good},
			want:    Caller{UserID: "u1", StoreID: "s1", StoreName: "강남점"},
		},
		{
			name:    "token without store gets default store",
			headers: map[string]string{"Authorization": "bearer " + storeless},
			want:    Caller{UserID: "u2", StoreID: "s0", StoreName: "본점"},
		},
		{
			name:    "invalid token",
			headers: map[string]string{"Authorization": "Bearer nope"},
			wantErr: ErrInvalidToken,
		},
		{
			name:         "trusted headers",
			trustHeaders: true,
			headers:      map[string]string{HeaderStoreID: "s9", HeaderStoreName: "역삼점"},
			want:         Caller{StoreID: "s9", StoreName: "역삼점"},
		},
		{
			name:    "headers ignored when untrusted",
			headers: map[string]string{HeaderStoreID: "s9"},
			want:    fallback,
		},
		{
			name: "fallback",
			want: fallback,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/api/chat", nil)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			got, err := NewResolver(tokens, tt.trustHeaders, fallback).Resolve(req)
			if tt.wantErr != nil {
				assert.True(t, errors.Is(err, tt.wantErr))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCallerContext(t *testing.T) {
	_, ok := CallerFromContext(context.Background())
	assert.False(t, ok)

	ctx := WithCaller(context.Background(), Caller{StoreID: "s1"})
	caller, ok := CallerFromContext(ctx)
	assert.True(t, ok)
	assert.True(t, caller.HasStore())
}
