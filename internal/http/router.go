// Package http wires the controllers, middlewares and server.
package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/evecore/evecore/internal/http/controllers/auth"
	"github.com/evecore/evecore/internal/http/controllers/health"
	"github.com/evecore/evecore/internal/http/middlewares"
	"github.com/evecore/evecore/internal/rate"
	"github.com/evecore/evecore/internal/session"
)

// RouterDeps carries everything the routes need.
type RouterDeps struct {
	Sessions *session.Manager
	// LoginLimiter guards the login surface against brute force. Optional.
	LoginLimiter rate.Limiter
	// CORSOrigins are the allowed front-end origins. Empty disables CORS.
	CORSOrigins []string

	Login    *auth.LoginController
	Callback *auth.CallbackController
	Session  *auth.SessionController
	Password *auth.PasswordController
	Health   *health.Controller
}

// NewRouter builds the full route table. Session and CSRF middleware wrap
// only the routes that need them; /metrics and /healthz stay bare.
func NewRouter(d RouterDeps) http.Handler {
	r := chi.NewRouter()

	// Mounted on the mux so the access log and the request metric can read
	// the matched route template after the handler ran.
	r.Use(middlewares.WithRequestID())
	r.Use(middlewares.WithLogging())
	r.Use(middlewares.WithRecover())

	withSession := func(h http.HandlerFunc) http.Handler {
		return d.Sessions.Middleware(h)
	}
	withCSRF := func(h http.HandlerFunc) http.Handler {
		return d.Sessions.Middleware(middlewares.Chain(h, middlewares.WithCSRF()))
	}

	limited := func(h http.Handler) http.Handler {
		if d.LoginLimiter == nil {
			return h
		}
		return middlewares.WithRateLimit(d.LoginLimiter)(h)
	}

	r.Method(http.MethodGet, "/login/{name}", limited(withSession(d.Login.Login)))
	r.Method(http.MethodGet, "/login-callback", withSession(d.Callback.Callback))

	r.Method(http.MethodGet, "/auth/result", withSession(d.Session.Result))
	r.Method(http.MethodGet, "/auth/csrf-token", withSession(d.Session.CSRFToken))
	r.Method(http.MethodPost, "/auth/logout", withCSRF(d.Session.Logout))
	r.Method(http.MethodPost, "/auth/password-login", limited(withSession(d.Password.Login)))

	r.Get("/healthz", d.Health.Healthz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	// CORS wraps outside the mux so preflight requests are answered even
	// for paths that never route.
	if len(d.CORSOrigins) > 0 {
		return middlewares.WithCORS(d.CORSOrigins)(r)
	}
	return r
}
