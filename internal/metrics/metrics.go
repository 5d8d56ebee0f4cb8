// Package metrics defines the Prometheus collectors. They live in a
// standalone package to avoid import cycles between the services and the
// HTTP layer.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	LoginAttempts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "login_attempts_total",
		Help: "SSO callback outcomes by login variant.",
	}, []string{"variant", "outcome"})

	LoginDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "login_callback_duration_seconds",
		Help:    "Wall time of the SSO callback state machine.",
		Buckets: prometheus.DefBuckets,
	})

	GroupSyncPasses = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "group_sync_passes",
		Help:    "Constraint passes needed for one group sync to converge.",
		Buckets: []float64{1, 2, 3, 4, 5, 6},
	})

	TokenRefreshes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "esi_token_refreshes_total",
		Help: "Lazy token refreshes by outcome.",
	}, []string{"outcome"})

	HTTPRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "HTTP requests by route and status class.",
	}, []string{"route", "status"})
)

// Register registers all collectors on reg (or the default registerer when
// nil). Repeated registration is tolerated for tests.
func Register(reg prometheus.Registerer) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	for _, c := range []prometheus.Collector{
		LoginAttempts, LoginDuration, GroupSyncPasses, TokenRefreshes, HTTPRequests,
	} {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return err
			}
		}
	}
	return nil
}
