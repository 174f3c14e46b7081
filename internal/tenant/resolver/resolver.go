// Package resolver maps request subdomains onto tenant schemas. It sits on
// the hot path of every tenant-scoped request, so lookups go through a
// short-TTL cache; a status change becomes visible at most one TTL later.
package resolver

import (
	"context"
	"errors"
	"log/slog"
	"time"

	tenantmetrics "kopra/internal/tenant/metrics"
	"kopra/internal/tenant/models"
	id "kopra/pkg/domain"
	dErrors "kopra/pkg/domain-errors"
	"kopra/pkg/platform/sentinel"
)

// Resolution is the cached outcome of a subdomain lookup.
type Resolution struct {
	TenantID   id.TenantID         `json:"tenant_id"`
	Subdomain  string              `json:"subdomain"`
	SchemaName string              `json:"schema_name"`
	Status     models.TenantStatus `json:"status"`
}

// TenantFinder is the registry lookup the resolver needs.
type TenantFinder interface {
	FindBySubdomain(ctx context.Context, subdomain string) (*models.Tenant, error)
}

// Cache stores resolutions for a bounded time. Implementations must be safe
// for concurrent use.
type Cache interface {
	Get(ctx context.Context, subdomain string) (*Resolution, bool)
	Set(ctx context.Context, subdomain string, res *Resolution)
	Invalidate(ctx context.Context, subdomain string)
}

// Resolver resolves subdomains to schema-qualified tenant identities.
type Resolver struct {
	finder  TenantFinder
	cache   Cache
	logger  *slog.Logger
	metrics *tenantmetrics.Metrics
}

type Option func(*Resolver)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) { r.logger = logger }
}

func WithMetrics(m *tenantmetrics.Metrics) Option {
	return func(r *Resolver) { r.metrics = m }
}

func New(finder TenantFinder, cache Cache, opts ...Option) *Resolver {
	r := &Resolver{finder: finder, cache: cache}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve looks up the tenant behind a subdomain. It returns the resolution
// regardless of lifecycle status; callers decide whether a non-active
// tenant may proceed. Unknown subdomains yield CodeNotFound.
func (r *Resolver) Resolve(ctx context.Context, subdomain string) (*Resolution, error) {
	if subdomain == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "subdomain is required")
	}
	start := time.Now()
	defer func() {
		if r.metrics != nil {
			r.metrics.ObserveResolve(start)
		}
	}()

	if res, ok := r.cache.Get(ctx, subdomain); ok {
		return res, nil
	}

	tenant, err := r.finder.FindBySubdomain(ctx, subdomain)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "unknown tenant")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "tenant lookup failed")
	}

	res := &Resolution{
		TenantID:   tenant.ID,
		Subdomain:  tenant.Subdomain,
		SchemaName: tenant.SchemaName,
		Status:     tenant.Status,
	}
	r.cache.Set(ctx, subdomain, res)
	return res, nil
}

// ResolveActive resolves the subdomain and additionally requires the tenant
// to be active. Transport middleware uses this on tenant-scoped routes.
func (r *Resolver) ResolveActive(ctx context.Context, subdomain string) (*Resolution, error) {
	res, err := r.Resolve(ctx, subdomain)
	if err != nil {
		return nil, err
	}
	if res.Status != models.TenantStatusActive {
		return nil, dErrors.New(dErrors.CodeTenantNotActive,
			"tenant is "+string(res.Status))
	}
	return res, nil
}

// Invalidate drops a cached resolution so the next request re-reads the
// registry. Called after operator lifecycle actions.
func (r *Resolver) Invalidate(ctx context.Context, subdomain string) {
	r.cache.Invalidate(ctx, subdomain)
	if r.logger != nil {
		r.logger.DebugContext(ctx, "resolution cache invalidated", "subdomain", subdomain)
	}
}
