package auth

import (
	"net/http"

	httperrors "github.com/evecore/evecore/internal/http/errors"
	"github.com/evecore/evecore/internal/observability/logger"
	"github.com/evecore/evecore/internal/security/token"
	"github.com/evecore/evecore/internal/session"
)

const noLoginMessage = "No login attempt recorded."

// SessionController serves the session-scoped endpoints: login result,
// CSRF token, logout.
type SessionController struct{}

func NewSessionController() *SessionController { return &SessionController{} }

// Result handles GET /auth/result. Reading the slot does not consume it.
func (c *SessionController) Result(w http.ResponseWriter, r *http.Request) {
	sess := session.FromContext(r.Context())

	var res AuthResult
	ok, err := sess.Get(session.KeyAuthResult, &res)
	if err != nil {
		logger.From(r.Context()).Error("read auth result failed", logger.Err(err))
	}
	if !ok {
		res = AuthResult{Success: false, Message: noLoginMessage}
	}
	httperrors.WriteJSON(w, http.StatusOK, res)
}

// CSRFToken handles GET /auth/csrf-token: returns the session token,
// generating it on first use. The token is stable until rotated at
// authentication time.
func (c *SessionController) CSRFToken(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess := session.FromContext(ctx)

	t := sess.GetString(session.KeyCSRFToken)
	if t == "" {
		var err error
		t, err = token.GenerateOpaque(32)
		if err != nil {
			httperrors.WriteError(w, httperrors.ErrInternal.WithCause(err))
			return
		}
		if err := sess.Set(session.KeyCSRFToken, t); err != nil {
			httperrors.WriteError(w, httperrors.ErrInternal.WithCause(err))
			return
		}
	}
	httperrors.WriteJSON(w, http.StatusOK, t)
}

// Logout handles POST /auth/logout: destroys the session. 403 when there is
// no authenticated character, matching the result of calling it twice.
func (c *SessionController) Logout(w http.ResponseWriter, r *http.Request) {
	sess := session.FromContext(r.Context())

	if _, ok := sess.GetInt64(session.KeyCharacterID); !ok {
		httperrors.WriteError(w, httperrors.ErrForbidden.WithDetail("not logged in"))
		return
	}
	sess.Destroy()
	w.WriteHeader(http.StatusNoContent)
}
