// Package httptransport assembles the HTTP surface: public tenant
// registration, the admin lifecycle API, and tenant-scoped routes that
// run against the tenant's own schema.
package httptransport

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"kopra/internal/platform/health"
	"kopra/internal/schemaclient"
	"kopra/internal/session"
	"kopra/internal/tenant/handler"
	"kopra/internal/tenant/resolver"
	"kopra/pkg/platform/middleware/admin"
	request "kopra/pkg/platform/middleware/request"
)

const maxBodyBytes = 1 << 20 // 1 MiB

// Deps carries everything the router needs. All fields are required
// except Health, which is skipped when nil.
type Deps struct {
	Tenants    *handler.Handler
	Resolver   *resolver.Resolver
	Clients    *schemaclient.Cache
	Sessions   *session.Service
	Health     *health.Handler
	AdminToken string
	Logger     *slog.Logger
}

// NewRouter wires all endpoints with the shared middleware stack.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(request.Recovery(deps.Logger))
	r.Use(request.RequestID)
	r.Use(request.Logger(deps.Logger))
	r.Use(request.Timeout(30 * time.Second))
	r.Use(request.BodyLimit(maxBodyBytes))
	r.Use(request.ContentTypeJSON)

	if deps.Health != nil {
		deps.Health.Register(r)
	}
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	// Tenant self-registration, no authentication.
	deps.Tenants.RegisterPublic(r)

	// Back-office lifecycle API.
	r.Route("/admin", func(ar chi.Router) {
		ar.Use(admin.RequireAdminToken(deps.AdminToken, deps.Logger))
		deps.Tenants.RegisterAdmin(ar)
	})

	// Tenant-scoped routes. The subdomain comes from the path; each
	// request holds a schema client lease for its duration.
	r.Route("/t/{subdomain}", func(tr chi.Router) {
		tr.Use(TenantContext(deps.Resolver, deps.Clients, deps.Logger))
		tr.Get("/ping", handleTenantPing)
	})

	// Session-token routes for member-facing clients: the tenant comes
	// from the token claim rather than the URL.
	r.Route("/api", func(sr chi.Router) {
		sr.Use(SessionSubdomain(deps.Sessions))
		sr.Use(TenantContext(deps.Resolver, deps.Clients, deps.Logger))
		sr.Get("/ping", handleTenantPing)
	})

	return r
}
