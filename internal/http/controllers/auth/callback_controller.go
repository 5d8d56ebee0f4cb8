package auth

import (
	"context"
	"net/http"

	"github.com/evecore/evecore/internal/account"
	"github.com/evecore/evecore/internal/observability/logger"
	"github.com/evecore/evecore/internal/session"
)

// CallbackHandler runs the full resolver state machine.
type CallbackHandler interface {
	HandleCallback(ctx context.Context, sess *session.Session, state, code string) *account.Result
}

// CallbackController handles the provider redirect back to us. It always
// answers with a 302; the outcome is only readable through the session
// result slot.
type CallbackController struct {
	resolver CallbackHandler
}

func NewCallbackController(resolver CallbackHandler) *CallbackController {
	return &CallbackController{resolver: resolver}
}

// AuthResult is the session result slot payload.
type AuthResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Callback handles GET /login-callback?state&code.
func (c *CallbackController) Callback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess := session.FromContext(ctx)

	q := r.URL.Query()
	res := c.resolver.HandleCallback(ctx, sess, q.Get("state"), q.Get("code"))

	if err := sess.Set(session.KeyAuthResult, AuthResult{Success: res.Success, Message: res.Message}); err != nil {
		logger.From(ctx).Error("write auth result failed", logger.Err(err))
	}
	if res.Success && res.CharacterID != 0 {
		if err := sess.Set(session.KeyCharacterID, res.CharacterID); err != nil {
			logger.From(ctx).Error("write character id failed", logger.Err(err))
		}
	}

	http.Redirect(w, r, res.RedirectPath, http.StatusFound)
}
