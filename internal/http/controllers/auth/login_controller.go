// Package auth holds the login and session controllers.
package auth

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	httperrors "github.com/evecore/evecore/internal/http/errors"
	"github.com/evecore/evecore/internal/login"
	"github.com/evecore/evecore/internal/observability/logger"
	"github.com/evecore/evecore/internal/session"
)

// AuthorizeURLBuilder builds the provider authorize redirect.
type AuthorizeURLBuilder interface {
	AuthorizeURL(state string, scopes []string) string
}

// LoginController starts an SSO flow for a named login variant.
type LoginController struct {
	registry *login.Registry
	sso      AuthorizeURLBuilder
}

func NewLoginController(registry *login.Registry, sso AuthorizeURLBuilder) *LoginController {
	return &LoginController{registry: registry, sso: sso}
}

// Login handles GET /login/{name}: issues a fresh state bound to the
// session and redirects to the authorize URL. The forbidden/unknown checks
// run before any state is written.
func (c *LoginController) Login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("LoginController.Login"))

	name := chi.URLParam(r, "name")
	variant, err := c.registry.Lookup(ctx, name)
	if err != nil {
		writeLookupError(ctx, w, name, err)
		return
	}

	sess := session.FromContext(ctx)
	state, err := login.IssueState(sess, variant.Name)
	if err != nil {
		log.Error("issue state failed", logger.Variant(name), logger.Err(err))
		httperrors.WriteError(w, httperrors.ErrInternal.WithCause(err))
		return
	}

	http.Redirect(w, r, c.sso.AuthorizeURL(state, variant.Scopes), http.StatusFound)
}

func writeLookupError(ctx context.Context, w http.ResponseWriter, name string, err error) {
	log := logger.From(ctx)
	switch {
	case errors.Is(err, login.ErrVariantForbidden):
		log.Warn("login variant forbidden", logger.Variant(name))
		httperrors.WriteError(w, httperrors.ErrForbidden.WithDetail("login is disabled"))
	case errors.Is(err, login.ErrUnknownVariant):
		log.Warn("unknown login variant", logger.Variant(name))
		httperrors.WriteError(w, httperrors.ErrNotFound.WithDetail("unknown login"))
	default:
		log.Error("variant lookup failed", logger.Variant(name), logger.Err(err))
		httperrors.WriteError(w, httperrors.ErrInternal.WithCause(err))
	}
}
