package sso

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tokenProvider(t *testing.T, handler http.HandlerFunc) *Provider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewProvider(Config{
		ClientID:     testClientID,
		ClientSecret: "secret",
		TokenURL:     srv.URL,
	})
}

func TestRefreshSuccess(t *testing.T) {
	p := tokenProvider(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.PostForm.Get("grant_type"))
		assert.Equal(t, "old-refresh", r.PostForm.Get("refresh_token"))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "new-access",
			"refresh_token": "new-refresh",
			"expires_in":    1200,
		})
	})

	pair, err := p.Refresh(context.Background(), "old-refresh")
	require.NoError(t, err)
	assert.Equal(t, "new-access", pair.AccessToken)
	assert.Equal(t, "new-refresh", pair.RefreshToken)
}

func TestRefreshInvalidGrant(t *testing.T) {
	p := tokenProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "invalid_grant"})
	})

	_, err := p.Refresh(context.Background(), "revoked")
	assert.ErrorIs(t, err, ErrInvalidGrant)
}

func TestRefreshServerErrorIsNotInvalidGrant(t *testing.T) {
	p := tokenProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := p.Refresh(context.Background(), "refresh")
	assert.ErrorIs(t, err, ErrTokenExchangeFailed)
	assert.NotErrorIs(t, err, ErrInvalidGrant)
}

func TestRefreshBadRequestWithoutInvalidGrant(t *testing.T) {
	p := tokenProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "invalid_request"})
	})

	_, err := p.Refresh(context.Background(), "refresh")
	assert.ErrorIs(t, err, ErrTokenExchangeFailed)
	assert.NotErrorIs(t, err, ErrInvalidGrant)
}

func TestExchangeSendsCode(t *testing.T) {
	p := tokenProvider(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "authorization_code", r.PostForm.Get("grant_type"))
		assert.Equal(t, "the-code", r.PostForm.Get("code"))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "access",
			"expires_in":   1200,
		})
	})

	pair, err := p.Exchange(context.Background(), "the-code")
	require.NoError(t, err)
	assert.Equal(t, "access", pair.AccessToken)
}
