package account

import (
	"context"
	"errors"
	"time"

	"github.com/evecore/evecore/internal/domain"
	"github.com/evecore/evecore/internal/login"
	"github.com/evecore/evecore/internal/metrics"
	"github.com/evecore/evecore/internal/observability/logger"
	"github.com/evecore/evecore/internal/sso"
)

// ErrTokenInvalid means the refresh token was rejected upstream; the
// character has to log in again to repair it.
var ErrTokenInvalid = errors.New("account: refresh token invalid")

// Refresher renews an access token from its refresh token.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (*sso.TokenPair, error)
}

// TokenService hands out access tokens, refreshing lazily. A refresh
// rejected with invalid_grant flips the token invalid and, for the primary
// login, the character's valid-token flag that the group engine reads.
// Transient refresh failures leave the stored token untouched.
type TokenService struct {
	store domain.Store
	sso   Refresher

	// leeway before the recorded expiry at which a token counts as stale
	leeway time.Duration
}

func NewTokenService(store domain.Store, refresher Refresher) *TokenService {
	return &TokenService{store: store, sso: refresher, leeway: time.Minute}
}

// ValidAccessToken returns a usable access token for (characterID, variant),
// refreshing first when stale.
func (s *TokenService) ValidAccessToken(ctx context.Context, characterID int64, eveLogin string) (string, error) {
	tok, err := s.store.EsiTokens().Get(ctx, characterID, eveLogin)
	if err != nil {
		return "", err
	}
	if !tok.Valid {
		return "", ErrTokenInvalid
	}
	if time.Until(tok.ExpiresAt) > s.leeway {
		return tok.AccessToken, nil
	}

	pair, err := s.sso.Refresh(ctx, tok.RefreshToken)
	if err != nil {
		metrics.TokenRefreshes.WithLabelValues("failure").Inc()
		if !errors.Is(err, sso.ErrInvalidGrant) {
			// Transient failure: keep the stored token, let the caller retry.
			logger.From(ctx).Warn("token refresh failed",
				logger.Component("account"),
				logger.CharacterID(characterID),
				logger.String("login", eveLogin),
				logger.Err(err),
			)
			return "", err
		}
		if markErr := s.markInvalid(ctx, tok); markErr != nil {
			return "", markErr
		}
		logger.From(ctx).Info("refresh token invalidated",
			logger.Component("account"),
			logger.CharacterID(characterID),
			logger.String("login", eveLogin),
			logger.Err(err),
		)
		return "", ErrTokenInvalid
	}

	tok.AccessToken = pair.AccessToken
	if pair.RefreshToken != "" {
		tok.RefreshToken = pair.RefreshToken
	}
	tok.ExpiresAt = pair.ExpiresAt
	tok.Valid = true
	tok.ValidChanged = time.Now()
	if err := s.store.EsiTokens().Upsert(ctx, tok); err != nil {
		return "", err
	}
	metrics.TokenRefreshes.WithLabelValues("success").Inc()
	return tok.AccessToken, nil
}

func (s *TokenService) markInvalid(ctx context.Context, tok *domain.EsiToken) error {
	tok.Valid = false
	tok.ValidChanged = time.Now()
	if err := s.store.EsiTokens().Upsert(ctx, tok); err != nil {
		return err
	}
	if tok.EveLogin != login.NameDefault && tok.EveLogin != login.NameManaged {
		return nil
	}
	char, err := s.store.Characters().Get(ctx, tok.CharacterID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		return err
	}
	if !char.ValidToken {
		return nil
	}
	char.ValidToken = false
	char.ValidTokenTime = time.Now()
	return s.store.Characters().Update(ctx, char)
}
