package store

import (
	"context"

	"kopra/internal/tenant/models"
	id "kopra/pkg/domain"
)

// TenantStore persists the control-plane tenant registry.
type TenantStore interface {
	// CreateIfSubdomainAvailable atomically creates the tenant unless the
	// subdomain is already taken.
	CreateIfSubdomainAvailable(ctx context.Context, tenant *models.Tenant) error
	Update(ctx context.Context, tenant *models.Tenant) error
	FindByID(ctx context.Context, tenantID id.TenantID) (*models.Tenant, error)
	FindBySubdomain(ctx context.Context, subdomain string) (*models.Tenant, error)
	ListByStatus(ctx context.Context, status models.TenantStatus, limit, offset int) ([]*models.Tenant, error)
	Count(ctx context.Context) (int, error)
}

// RegistrationStore persists applicant details captured at sign-up.
type RegistrationStore interface {
	Create(ctx context.Context, reg *models.Registration) error
	FindByTenantID(ctx context.Context, tenantID id.TenantID) (*models.Registration, error)
}
