package tenant

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"kopra/internal/tenant/models"
	"kopra/internal/tenant/store"
	id "kopra/pkg/domain"
	"kopra/pkg/platform/sentinel"
)

var _ store.TenantStore = (*InMemory)(nil)

// InMemory stores tenants in memory for tests and the demo environment.
// Records are copied on the way in and out so callers can mutate a tenant
// and persist it explicitly via Update, mirroring the SQL store.
type InMemory struct {
	mu           sync.RWMutex
	tenants      map[string]*models.Tenant
	subdomainIdx map[string]string
}

// NewInMemory creates an in-memory tenant store.
func NewInMemory() *InMemory {
	return &InMemory{
		tenants:      make(map[string]*models.Tenant),
		subdomainIdx: make(map[string]string),
	}
}

// CreateIfSubdomainAvailable atomically creates the tenant if the subdomain
// is not already taken.
func (s *InMemory) CreateIfSubdomainAvailable(_ context.Context, t *models.Tenant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.subdomainIdx[t.Subdomain]; exists {
		return fmt.Errorf("subdomain must be unique: %w", sentinel.ErrAlreadyUsed)
	}
	key := t.ID.String()
	s.tenants[key] = copyTenant(t)
	s.subdomainIdx[t.Subdomain] = key
	return nil
}

// Update persists lifecycle changes to an existing tenant.
func (s *InMemory) Update(_ context.Context, t *models.Tenant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := t.ID.String()
	stored, ok := s.tenants[key]
	if !ok {
		return sentinel.ErrNotFound
	}
	stored.Status = t.Status
	stored.RejectionReason = t.RejectionReason
	stored.UpdatedAt = t.UpdatedAt
	return nil
}

// FindByID retrieves a tenant by its UUID.
func (s *InMemory) FindByID(_ context.Context, tenantID id.TenantID) (*models.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if t, ok := s.tenants[tenantID.String()]; ok {
		return copyTenant(t), nil
	}
	return nil, sentinel.ErrNotFound
}

// FindBySubdomain retrieves a tenant by its subdomain.
func (s *InMemory) FindBySubdomain(_ context.Context, subdomain string) (*models.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if key, ok := s.subdomainIdx[subdomain]; ok {
		return copyTenant(s.tenants[key]), nil
	}
	return nil, sentinel.ErrNotFound
}

// ListByStatus returns tenants in the given status ordered oldest first.
func (s *InMemory) ListByStatus(_ context.Context, status models.TenantStatus, limit, offset int) ([]*models.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*models.Tenant
	for _, t := range s.tenants {
		if t.Status == status {
			matched = append(matched, copyTenant(t))
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.Before(matched[j].CreatedAt)
	})
	if offset >= len(matched) {
		return nil, nil
	}
	matched = matched[offset:]
	if limit > 0 && limit < len(matched) {
		matched = matched[:limit]
	}
	return matched, nil
}

// Count returns the total number of tenants.
func (s *InMemory) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tenants), nil
}

func copyTenant(t *models.Tenant) *models.Tenant {
	c := *t
	return &c
}
