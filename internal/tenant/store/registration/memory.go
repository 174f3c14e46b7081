package registration

import (
	"context"
	"fmt"
	"sync"

	"kopra/internal/tenant/models"
	"kopra/internal/tenant/store"
	id "kopra/pkg/domain"
	"kopra/pkg/platform/sentinel"
)

var _ store.RegistrationStore = (*InMemory)(nil)

// InMemory stores registrations in memory for tests and the demo environment.
type InMemory struct {
	mu       sync.RWMutex
	byTenant map[string]*models.Registration
}

// NewInMemory creates an in-memory registration store.
func NewInMemory() *InMemory {
	return &InMemory{byTenant: make(map[string]*models.Registration)}
}

// Create inserts the registration. Each tenant has at most one.
func (s *InMemory) Create(_ context.Context, reg *models.Registration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := reg.TenantID.String()
	if _, exists := s.byTenant[key]; exists {
		return fmt.Errorf("tenant already has a registration: %w", sentinel.ErrAlreadyUsed)
	}
	c := *reg
	c.DocumentURLs = append([]string(nil), reg.DocumentURLs...)
	s.byTenant[key] = &c
	return nil
}

// FindByTenantID retrieves the registration for a tenant.
func (s *InMemory) FindByTenantID(_ context.Context, tenantID id.TenantID) (*models.Registration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	reg, ok := s.byTenant[tenantID.String()]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	c := *reg
	c.DocumentURLs = append([]string(nil), reg.DocumentURLs...)
	return &c, nil
}
