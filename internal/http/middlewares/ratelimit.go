package middlewares

import (
	"net"
	"net/http"
	"strconv"

	httperrors "github.com/evecore/evecore/internal/http/errors"
	"github.com/evecore/evecore/internal/observability/logger"
	"github.com/evecore/evecore/internal/rate"
)

// WithRateLimit applies a per-client-IP limit. Limiter errors fail open:
// an unreachable redis must not take logins down with it.
func WithRateLimit(limiter rate.Limiter) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			host, _, err := net.SplitHostPort(r.RemoteAddr)
			if err != nil {
				host = r.RemoteAddr
			}
			res, err := limiter.Allow(r.Context(), host)
			if err != nil {
				logger.From(r.Context()).Warn("rate limiter unavailable", logger.Err(err))
				next.ServeHTTP(w, r)
				return
			}
			if !res.Allowed {
				w.Header().Set("Retry-After", strconv.Itoa(int(res.RetryAfter.Seconds())))
				httperrors.WriteError(w, httperrors.New(http.StatusTooManyRequests,
					"RATE_LIMITED", "Too many attempts, slow down."))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
