// Package httptransport assembles the chi router: the middleware chain,
// public verification routes, admin routes behind the admin token, health
// endpoints and the metrics endpoint.
package httptransport

import (
	"log/slog"
	"net/http"
	"net/netip"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"attest/internal/platform/health"
	"attest/internal/platform/metrics"
	"attest/pkg/platform/middleware/admin"
	"attest/pkg/platform/middleware/metadata"
	"attest/pkg/platform/middleware/request"
	"attest/pkg/platform/middleware/requesttime"
)

// RouteRegistrar is implemented by each feature handler.
type RouteRegistrar interface {
	Register(r chi.Router)
}

type Config struct {
	AdminToken     string
	TrustedProxies []netip.Prefix
	RequestTimeout time.Duration
}

type Dependencies struct {
	Logger         *slog.Logger
	Registry       *prometheus.Registry
	RequestMetrics *request.Metrics
	Health         *health.Handler
	Verification   RouteRegistrar
	Credentials    RouteRegistrar
}

func NewRouter(cfg Config, deps Dependencies) http.Handler {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}

	r := chi.NewRouter()
	r.Use(request.Recovery(deps.Logger))
	r.Use(request.RequestID)
	r.Use(requesttime.Middleware)
	r.Use(metadata.NewMiddleware(cfg.TrustedProxies).Handler)
	r.Use(request.Logger(deps.Logger))
	if deps.RequestMetrics != nil {
		r.Use(request.Latency(deps.RequestMetrics))
	}

	deps.Health.Routes(r)
	if deps.Registry != nil {
		r.Handle("/metrics", metrics.Handler(deps.Registry))
	}

	r.Group(func(r chi.Router) {
		r.Use(chimiddleware.Timeout(cfg.RequestTimeout))
		r.Use(request.ContentTypeJSON)
		deps.Verification.Register(r)

		r.Group(func(r chi.Router) {
			r.Use(admin.RequireAdminToken(cfg.AdminToken, deps.Logger))
			deps.Credentials.Register(r)
		})
	})

	return r
}
