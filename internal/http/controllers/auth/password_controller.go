package auth

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/evecore/evecore/internal/account"
	"github.com/evecore/evecore/internal/domain"
	httperrors "github.com/evecore/evecore/internal/http/errors"
	"github.com/evecore/evecore/internal/observability/logger"
	"github.com/evecore/evecore/internal/security/token"
	"github.com/evecore/evecore/internal/session"
)

// PasswordController is the SSO-outage fallback login.
type PasswordController struct {
	store domain.Store
}

func NewPasswordController(store domain.Store) *PasswordController {
	return &PasswordController{store: store}
}

type passwordLoginRequest struct {
	Name     string `json:"name"`
	Password string `json:"password"`
}

// Login handles POST /auth/password-login. On success the session is bound
// to the account's main character and the CSRF token rotates.
func (c *PasswordController) Login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("PasswordController.Login"))

	var req passwordLoginRequest
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
		httperrors.WriteError(w, httperrors.ErrBadRequest.WithDetail("invalid json"))
		return
	}
	if req.Name == "" || req.Password == "" {
		httperrors.WriteError(w, httperrors.ErrBadRequest.WithDetail("name and password required"))
		return
	}

	player, err := account.PasswordLogin(ctx, c.store, req.Name, req.Password)
	if err != nil {
		if errors.Is(err, account.ErrInvalidCredentials) {
			httperrors.WriteError(w, httperrors.ErrUnauthorized.WithDetail("invalid credentials"))
			return
		}
		log.Error("password login failed", logger.Err(err))
		httperrors.WriteError(w, httperrors.ErrInternal.WithCause(err))
		return
	}

	main, err := mainCharacterID(r, c.store, player.ID)
	if err != nil {
		log.Error("no main character", logger.PlayerID(player.ID), logger.Err(err))
		httperrors.WriteError(w, httperrors.ErrInternal.WithCause(err))
		return
	}

	sess := session.FromContext(ctx)
	if err := sess.Set(session.KeyCharacterID, main); err != nil {
		httperrors.WriteError(w, httperrors.ErrInternal.WithCause(err))
		return
	}
	// rotate the CSRF token on privilege change
	t, err := token.GenerateOpaque(32)
	if err == nil {
		err = sess.Set(session.KeyCSRFToken, t)
	}
	if err != nil {
		httperrors.WriteError(w, httperrors.ErrInternal.WithCause(err))
		return
	}

	httperrors.WriteJSON(w, http.StatusOK, AuthResult{Success: true, Message: "Login successful."})
}

func mainCharacterID(r *http.Request, store domain.Store, playerID int64) (int64, error) {
	chars, err := store.Characters().ListByPlayer(r.Context(), playerID)
	if err != nil {
		return 0, err
	}
	for _, ch := range chars {
		if ch.Main {
			return ch.ID, nil
		}
	}
	return 0, domain.ErrNotFound
}
