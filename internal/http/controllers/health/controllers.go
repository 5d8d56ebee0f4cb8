// Package health serves the liveness endpoint.
package health

import (
	"context"
	"net/http"

	httperrors "github.com/evecore/evecore/internal/http/errors"
)

// Pinger checks the storage backend.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Controller struct {
	db Pinger
}

func NewController(db Pinger) *Controller { return &Controller{db: db} }

// Healthz handles GET /healthz.
func (c *Controller) Healthz(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	code := http.StatusOK
	if c.db != nil {
		if err := c.db.Ping(r.Context()); err != nil {
			status = "degraded"
			code = http.StatusServiceUnavailable
		}
	}
	httperrors.WriteJSON(w, code, map[string]string{"status": status})
}
