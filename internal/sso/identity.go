package sso

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	jwtv5 "github.com/golang-jwt/jwt/v5"

	"github.com/evecore/evecore/internal/observability/logger"
)

// Identity is the verified character identity carried by the provider's
// access token.
type Identity struct {
	CharacterID   int64
	CharacterName string
	OwnerHash     string
	Scopes        []string
}

// IdentityVerifier is implemented by Provider and faked in tests.
type IdentityVerifier interface {
	VerifyIdentity(ctx context.Context, accessToken string) (*Identity, error)
}

// VerifyIdentity validates the access token's signature, issuer, audience
// and expiry against the cached JWKS and extracts the identity claims.
// Every failure mode maps to ErrIdentityVerifyFailed.
func (p *Provider) VerifyIdentity(ctx context.Context, accessToken string) (*Identity, error) {
	log := logger.From(ctx).With(logger.Component("sso"), logger.Op("VerifyIdentity"))

	keyfunc := func(t *jwtv5.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, fmt.Errorf("token has no kid")
		}
		return p.keys.Key(kid)
	}

	tk, err := jwtv5.Parse(accessToken, keyfunc,
		jwtv5.WithValidMethods([]string{"RS256", "ES256"}),
		jwtv5.WithIssuer(p.cfg.Issuer),
		jwtv5.WithExpirationRequired(),
	)
	if err != nil || !tk.Valid {
		log.Warn("token validation failed", logger.Err(err))
		return nil, ErrIdentityVerifyFailed
	}

	claims, ok := tk.Claims.(jwtv5.MapClaims)
	if !ok {
		return nil, ErrIdentityVerifyFailed
	}

	// The provider puts both the client id and a fixed audience string into
	// aud; accepting either is enough to bind the token to us.
	if !hasAudience(claims, p.cfg.Audience, p.cfg.ClientID) {
		log.Warn("audience mismatch")
		return nil, ErrIdentityVerifyFailed
	}

	id, err := identityFromClaims(claims)
	if err != nil {
		log.Warn("malformed identity claims", logger.Err(err))
		return nil, ErrIdentityVerifyFailed
	}
	return id, nil
}

func identityFromClaims(claims jwtv5.MapClaims) (*Identity, error) {
	sub, _ := claims["sub"].(string)
	// sub is "CHARACTER:EVE:<id>"
	parts := strings.Split(sub, ":")
	if len(parts) != 3 || parts[0] != "CHARACTER" {
		return nil, fmt.Errorf("unexpected subject %q", sub)
	}
	charID, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil || charID <= 0 {
		return nil, fmt.Errorf("bad character id in subject %q", sub)
	}

	name, _ := claims["name"].(string)
	if name == "" {
		return nil, fmt.Errorf("missing name claim")
	}
	owner, _ := claims["owner"].(string)
	if owner == "" {
		return nil, fmt.Errorf("missing owner claim")
	}

	return &Identity{
		CharacterID:   charID,
		CharacterName: name,
		OwnerHash:     owner,
		Scopes:        scopesFromClaim(claims["scp"]),
	}, nil
}

// scopesFromClaim handles the provider quirk of scp being a string for a
// single scope and an array otherwise.
func scopesFromClaim(v any) []string {
	switch s := v.(type) {
	case string:
		if s == "" {
			return nil
		}
		return []string{s}
	case []any:
		out := make([]string, 0, len(s))
		for _, e := range s {
			if str, ok := e.(string); ok && str != "" {
				out = append(out, str)
			}
		}
		return out
	default:
		return nil
	}
}

func hasAudience(claims jwtv5.MapClaims, accepted ...string) bool {
	auds, err := claims.GetAudience()
	if err != nil {
		return false
	}
	for _, aud := range auds {
		for _, want := range accepted {
			if want != "" && aud == want {
				return true
			}
		}
	}
	return false
}
