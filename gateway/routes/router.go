// Package routes assembles the gateway's HTTP surface.
package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"l2resolver/gateway"
	"l2resolver/gateway/middleware"
)

// LookupRateLimitKey names the rate limit applied to CCIP-read lookups.
const LookupRateLimitKey = "lookup"

type Config struct {
	Lookup        *gateway.Handler
	Ready         func(*http.Request) error
	RateLimiter   *middleware.RateLimiter
	Observability *middleware.Observability
	CORS          middleware.CORSConfig
}

// New mounts the lookup endpoints under / alongside /healthz, /readyz and
// /metrics.
func New(cfg Config) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.CORS(cfg.CORS))

	obs := cfg.Observability
	if obs != nil {
		r.Use(obs.Middleware("root"))
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if cfg.Ready != nil {
			if err := cfg.Ready(r); err != nil {
				http.Error(w, err.Error(), http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})
	if obs != nil {
		r.Handle("/metrics", obs.MetricsHandler())
	}

	if cfg.Lookup != nil {
		r.Group(func(sr chi.Router) {
			if cfg.RateLimiter != nil {
				sr.Use(cfg.RateLimiter.Middleware(LookupRateLimitKey))
			}
			cfg.Lookup.Mount(sr)
		})
	}
	return r
}
