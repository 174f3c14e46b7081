package httptransport

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"kopra/internal/schemaclient"
	"kopra/internal/tenant/resolver"
	"kopra/pkg/platform/httputil"
	"kopra/pkg/requestcontext"
)

type tenantCtxKey struct{}

type tenantContext struct {
	resolution *resolver.Resolution
	handle     *schemaclient.Handle
}

// ResolutionFromContext returns the resolved tenant for the request.
func ResolutionFromContext(ctx context.Context) (*resolver.Resolution, bool) {
	tc, ok := ctx.Value(tenantCtxKey{}).(*tenantContext)
	if !ok {
		return nil, false
	}
	return tc.resolution, true
}

// HandleFromContext returns the schema client leased to the request.
func HandleFromContext(ctx context.Context) (*schemaclient.Handle, bool) {
	tc, ok := ctx.Value(tenantCtxKey{}).(*tenantContext)
	if !ok {
		return nil, false
	}
	return tc.handle, true
}

// TenantContext resolves the tenant for every request under a tenant-scoped
// route and leases it a schema client for the duration of the request. The
// lease is released exactly once on every exit path - normal return, error
// response, or panic (the recovery middleware sits outside and the deferred
// release still runs while the panic unwinds).
//
// The subdomain comes from the route when present, otherwise from the
// session token claim set by SessionSubdomain.
func TenantContext(res *resolver.Resolver, clients *schemaclient.Cache, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			subdomain := chi.URLParam(r, "subdomain")
			if subdomain == "" {
				subdomain = requestcontext.Subdomain(ctx)
			}

			resolution, err := res.ResolveActive(ctx, subdomain)
			if err != nil {
				httputil.WriteError(w, err)
				return
			}

			handle, err := clients.Acquire(ctx, resolution.SchemaName)
			if err != nil {
				logger.WarnContext(ctx, "schema client acquisition failed",
					"subdomain", subdomain,
					"schema", resolution.SchemaName,
					"request_id", requestcontext.RequestID(ctx),
					"error", err,
				)
				httputil.WriteError(w, err)
				return
			}
			defer handle.Release()

			ctx = context.WithValue(ctx, tenantCtxKey{}, &tenantContext{
				resolution: resolution,
				handle:     handle,
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
