package sso

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testIssuer   = "https://login.example.com"
	testAudience = "EVE Online"
	testClientID = "client-id"
	testKID      = "JWT-Signature-Key"
)

type ssoFixture struct {
	provider *Provider
	key      *rsa.PrivateKey
	jwks     *httptest.Server
}

func newSSOFixture(t *testing.T) *ssoFixture {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	jwks := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		doc := map[string]any{"keys": []map[string]string{{
			"kid": testKID,
			"kty": "RSA",
			"n":   base64.RawURLEncoding.EncodeToString(key.PublicKey.N.Bytes()),
			"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.PublicKey.E)).Bytes()),
		}}}
		_ = json.NewEncoder(w).Encode(doc)
	}))
	t.Cleanup(jwks.Close)

	provider := NewProvider(Config{
		ClientID: testClientID,
		JWKSURL:  jwks.URL,
		Issuer:   testIssuer,
		Audience: testAudience,
	})
	return &ssoFixture{provider: provider, key: key, jwks: jwks}
}

func (f *ssoFixture) sign(t *testing.T, claims jwtv5.MapClaims) string {
	t.Helper()
	tok := jwtv5.NewWithClaims(jwtv5.SigningMethodRS256, claims)
	tok.Header["kid"] = testKID
	signed, err := tok.SignedString(f.key)
	require.NoError(t, err)
	return signed
}

func validClaims() jwtv5.MapClaims {
	return jwtv5.MapClaims{
		"iss":   testIssuer,
		"aud":   []string{testClientID, testAudience},
		"exp":   time.Now().Add(15 * time.Minute).Unix(),
		"sub":   "CHARACTER:EVE:100",
		"name":  "Pilot",
		"owner": "owner-hash",
		"scp":   []string{"esi-scope.one.v1", "esi-scope.two.v1"},
	}
}

func TestVerifyIdentity(t *testing.T) {
	f := newSSOFixture(t)

	id, err := f.provider.VerifyIdentity(context.Background(), f.sign(t, validClaims()))
	require.NoError(t, err)
	assert.Equal(t, int64(100), id.CharacterID)
	assert.Equal(t, "Pilot", id.CharacterName)
	assert.Equal(t, "owner-hash", id.OwnerHash)
	assert.Equal(t, []string{"esi-scope.one.v1", "esi-scope.two.v1"}, id.Scopes)
}

func TestVerifyIdentitySingleScopeString(t *testing.T) {
	f := newSSOFixture(t)
	claims := validClaims()
	claims["scp"] = "esi-scope.one.v1"

	id, err := f.provider.VerifyIdentity(context.Background(), f.sign(t, claims))
	require.NoError(t, err)
	assert.Equal(t, []string{"esi-scope.one.v1"}, id.Scopes)
}

func TestVerifyIdentityNoScopes(t *testing.T) {
	f := newSSOFixture(t)
	claims := validClaims()
	delete(claims, "scp")

	id, err := f.provider.VerifyIdentity(context.Background(), f.sign(t, claims))
	require.NoError(t, err)
	assert.Empty(t, id.Scopes)
}

func TestVerifyIdentityFailures(t *testing.T) {
	f := newSSOFixture(t)

	alter := func(mutate func(jwtv5.MapClaims)) string {
		claims := validClaims()
		mutate(claims)
		return f.sign(t, claims)
	}

	tests := []struct {
		name  string
		token string
	}{
		{"garbage", "not-a-jwt"},
		{"expired", alter(func(c jwtv5.MapClaims) { c["exp"] = time.Now().Add(-time.Minute).Unix() })},
		{"no expiry", alter(func(c jwtv5.MapClaims) { delete(c, "exp") })},
		{"wrong issuer", alter(func(c jwtv5.MapClaims) { c["iss"] = "https://evil.example.com" })},
		{"wrong audience", alter(func(c jwtv5.MapClaims) { c["aud"] = []string{"someone-else"} })},
		{"bad subject", alter(func(c jwtv5.MapClaims) { c["sub"] = "USER:EVE:100" })},
		{"bad character id", alter(func(c jwtv5.MapClaims) { c["sub"] = "CHARACTER:EVE:zero" })},
		{"missing name", alter(func(c jwtv5.MapClaims) { delete(c, "name") })},
		{"missing owner", alter(func(c jwtv5.MapClaims) { delete(c, "owner") })},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.provider.VerifyIdentity(context.Background(), tt.token)
			assert.ErrorIs(t, err, ErrIdentityVerifyFailed)
		})
	}
}

func TestVerifyIdentityRejectsUnsignedAlg(t *testing.T) {
	f := newSSOFixture(t)

	tok := jwtv5.NewWithClaims(jwtv5.SigningMethodHS256, validClaims())
	tok.Header["kid"] = testKID
	signed, err := tok.SignedString([]byte("shared-secret"))
	require.NoError(t, err)

	_, err = f.provider.VerifyIdentity(context.Background(), signed)
	assert.ErrorIs(t, err, ErrIdentityVerifyFailed)
}

func TestVerifyIdentityWrongKey(t *testing.T) {
	f := newSSOFixture(t)

	other, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	tok := jwtv5.NewWithClaims(jwtv5.SigningMethodRS256, validClaims())
	tok.Header["kid"] = testKID
	signed, err := tok.SignedString(other)
	require.NoError(t, err)

	_, err = f.provider.VerifyIdentity(context.Background(), signed)
	assert.ErrorIs(t, err, ErrIdentityVerifyFailed)
}

func TestAuthorizeURL(t *testing.T) {
	p := NewProvider(Config{
		ClientID:     testClientID,
		CallbackURL:  "https://core.example.com/login-callback",
		AuthorizeURL: "https://login.example.com/v2/oauth/authorize",
	})

	u := p.AuthorizeURL("core.default*abc", []string{"esi-scope.one.v1"})
	assert.Contains(t, u, "response_type=code")
	assert.Contains(t, u, "state=core.default%2Aabc")
	assert.Contains(t, u, "scope=esi-scope.one.v1")
	assert.Contains(t, u, "client_id="+testClientID)
}
