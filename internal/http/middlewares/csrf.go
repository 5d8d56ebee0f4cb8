package middlewares

import (
	"crypto/subtle"
	"net/http"
	"strings"

	httperrors "github.com/evecore/evecore/internal/http/errors"
	"github.com/evecore/evecore/internal/session"
)

// WithCSRF enforces a double-submit check on unsafe methods: the
// X-CSRF-Token header must match the token stored in the session. Safe
// methods pass through.
func WithCSRF() Middleware {
	isUnsafe := func(m string) bool {
		switch strings.ToUpper(m) {
		case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
			return true
		default:
			return false
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !isUnsafe(r.Method) {
				next.ServeHTTP(w, r)
				return
			}

			sess := session.FromContext(r.Context())
			if sess == nil {
				httperrors.WriteError(w, httperrors.ErrForbidden.WithDetail("no session"))
				return
			}
			want := sess.GetString(session.KeyCSRFToken)
			got := strings.TrimSpace(r.Header.Get("X-CSRF-Token"))
			if want == "" || got == "" ||
				subtle.ConstantTimeCompare([]byte(want), []byte(got)) != 1 {
				httperrors.WriteError(w, httperrors.ErrForbidden.WithDetail("csrf token mismatch"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
