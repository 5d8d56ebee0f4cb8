package account

import (
	"context"
	"errors"

	"github.com/evecore/evecore/internal/domain"
	"github.com/evecore/evecore/internal/security/password"
	"github.com/evecore/evecore/internal/session"
)

var (
	errNotAuthenticated = errors.New("account: session not authenticated")

	// ErrInvalidCredentials covers both unknown account and wrong password
	// so callers cannot distinguish the two.
	ErrInvalidCredentials = errors.New("account: invalid credentials")
)

// currentPlayer loads the player owning the session's character. Returns
// errNotAuthenticated when the session carries no character id.
func currentPlayer(ctx context.Context, s domain.Store, sess *session.Session) (*domain.Player, error) {
	charID, ok := sess.GetInt64(session.KeyCharacterID)
	if !ok || charID == 0 {
		return nil, errNotAuthenticated
	}
	char, err := s.Characters().Get(ctx, charID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, errNotAuthenticated
		}
		return nil, err
	}
	return s.Players().Get(ctx, char.PlayerID)
}

// CurrentPlayer is the exported variant for HTTP handlers.
func CurrentPlayer(ctx context.Context, s domain.Store, sess *session.Session) (*domain.Player, error) {
	p, err := currentPlayer(ctx, s, sess)
	if errors.Is(err, errNotAuthenticated) {
		return nil, domain.ErrNotFound
	}
	return p, err
}

// PasswordLogin authenticates a player by account name and password. It is
// the SSO-outage fallback; only accounts that set a password can use it.
func PasswordLogin(ctx context.Context, s domain.Store, name, pass string) (*domain.Player, error) {
	player, err := s.Players().FindByName(ctx, name)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if player.PasswordHash == "" {
		return nil, ErrInvalidCredentials
	}
	if !password.Verify(pass, player.PasswordHash) {
		return nil, ErrInvalidCredentials
	}
	return player, nil
}

// SetPassword hashes and stores a new password for the player.
func SetPassword(ctx context.Context, s domain.Store, playerID int64, pass string) error {
	player, err := s.Players().Get(ctx, playerID)
	if err != nil {
		return err
	}
	hash, err := password.Hash(password.Default, pass)
	if err != nil {
		return err
	}
	player.PasswordHash = hash
	return s.Players().Update(ctx, player)
}
