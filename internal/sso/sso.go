// Package sso talks to the EVE Online single sign-on: it builds authorize
// URLs, exchanges and refreshes OAuth codes, and verifies the identity
// token returned by the provider against its JWKS.
package sso

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/evecore/evecore/internal/observability/logger"
)

// Config holds the provider endpoints and client credentials.
type Config struct {
	ClientID     string
	ClientSecret string
	CallbackURL  string
	AuthorizeURL string
	TokenURL     string
	JWKSURL      string
	Issuer       string
	Audience     string
}

// TokenPair is the result of a code exchange or a refresh.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

var (
	// ErrTokenExchangeFailed covers any transport or non-2xx failure while
	// trading a code or refresh token. Deliberately a single class: the
	// user only ever sees a generic retryable failure.
	ErrTokenExchangeFailed = errors.New("sso: token exchange failed")

	// ErrInvalidGrant is the provider's definitive revocation answer on a
	// refresh. Only this error may invalidate a stored token; everything
	// else is treated as transient.
	ErrInvalidGrant = errors.New("sso: invalid grant")

	// ErrIdentityVerifyFailed covers signature, claim, and key-fetch
	// failures during identity verification, again as one class to avoid
	// oracle leakage.
	ErrIdentityVerifyFailed = errors.New("sso: identity verification failed")
)

// Provider is the HTTP client for the SSO. Safe for concurrent use; the
// JWKS snapshot is the only shared mutable state.
type Provider struct {
	cfg  Config
	http *http.Client
	keys *jwksCache
}

func NewProvider(cfg Config) *Provider {
	hc := &http.Client{Timeout: 15 * time.Second}
	return &Provider{
		cfg:  cfg,
		http: hc,
		keys: newJWKSCache(cfg.JWKSURL, hc),
	}
}

// AuthorizeURL returns the provider URL to redirect the browser to.
func (p *Provider) AuthorizeURL(state string, scopes []string) string {
	q := url.Values{}
	q.Set("response_type", "code")
	q.Set("redirect_uri", p.cfg.CallbackURL)
	q.Set("client_id", p.cfg.ClientID)
	q.Set("state", state)
	if len(scopes) > 0 {
		q.Set("scope", strings.Join(scopes, " "))
	}
	return p.cfg.AuthorizeURL + "?" + q.Encode()
}

// Exchange trades an authorization code for a token pair.
func (p *Provider) Exchange(ctx context.Context, code string) (*TokenPair, error) {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	return p.tokenRequest(ctx, form)
}

// Refresh trades a refresh token for a fresh pair. An "invalid_grant"
// answer means the token was revoked: the caller must flip the character's
// valid-token flag.
func (p *Provider) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)
	return p.tokenRequest(ctx, form)
}

func (p *Provider) tokenRequest(ctx context.Context, form url.Values) (*TokenPair, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.TokenURL,
		strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenExchangeFailed, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(url.QueryEscape(p.cfg.ClientID), url.QueryEscape(p.cfg.ClientSecret))

	resp, err := p.http.Do(req)
	if err != nil {
		logger.From(ctx).Warn("token request failed", logger.Component("sso"), logger.Err(err))
		return nil, fmt.Errorf("%w: %v", ErrTokenExchangeFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var oauthErr struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&oauthErr)
		logger.From(ctx).Warn("token request rejected",
			logger.Component("sso"), logger.Status(resp.StatusCode))
		if resp.StatusCode == http.StatusBadRequest && oauthErr.Error == "invalid_grant" {
			return nil, fmt.Errorf("%w: status %d", ErrInvalidGrant, resp.StatusCode)
		}
		return nil, fmt.Errorf("%w: status %d", ErrTokenExchangeFailed, resp.StatusCode)
	}

	var body struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresIn    int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenExchangeFailed, err)
	}
	if body.AccessToken == "" {
		return nil, fmt.Errorf("%w: empty access token", ErrTokenExchangeFailed)
	}
	return &TokenPair{
		AccessToken:  body.AccessToken,
		RefreshToken: body.RefreshToken,
		ExpiresAt:    time.Now().Add(time.Duration(body.ExpiresIn) * time.Second),
	}, nil
}
