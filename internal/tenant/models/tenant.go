package models

import (
	"fmt"
	"time"

	dErrors "kopra/pkg/domain-errors"
	"kopra/pkg/domain"
	"kopra/pkg/validation"
)

// SchemaPrefix is prepended to the subdomain to form the Postgres schema
// name owned by a tenant. Subdomains are restricted to lowercase
// alphanumerics starting with a letter, so the derived name is always a
// safe SQL identifier.
const SchemaPrefix = "tenant_"

// Tenant is a registered cooperative and the anchor of its isolated schema.
type Tenant struct {
	ID              domain.TenantID
	Name            string
	Subdomain       string
	SchemaName      string
	Status          TenantStatus
	RejectionReason string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// NewTenant builds a pending tenant from a registration request. The
// schema name is derived from the subdomain and never changes afterwards.
func NewTenant(name, subdomain string, now time.Time) (*Tenant, error) {
	if name == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "name is required")
	}
	if !validation.IsSubdomain(subdomain) {
		return nil, dErrors.New(dErrors.CodeValidation,
			"subdomain must be 3-30 lowercase alphanumeric characters starting with a letter")
	}
	return &Tenant{
		ID:         domain.NewTenantID(),
		Name:       name,
		Subdomain:  subdomain,
		SchemaName: SchemaPrefix + subdomain,
		Status:     TenantStatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// IsActive reports whether requests for this tenant may be served.
func (t *Tenant) IsActive() bool {
	return t.Status == TenantStatusActive
}

// Activate flips a pending tenant to active. Called only after the
// tenant's schema has been fully provisioned. Activating an already
// active tenant is a no-op so that provisioning retries stay idempotent.
func (t *Tenant) Activate(now time.Time) error {
	switch t.Status {
	case TenantStatusActive:
		return nil
	case TenantStatusPending:
		t.Status = TenantStatusActive
		t.UpdatedAt = now
		return nil
	default:
		return t.transitionError("activate")
	}
}

// Reject marks a pending tenant as rejected. Rejection is terminal.
func (t *Tenant) Reject(reason string, now time.Time) error {
	if t.Status != TenantStatusPending {
		return t.transitionError("reject")
	}
	t.Status = TenantStatusRejected
	t.RejectionReason = reason
	t.UpdatedAt = now
	return nil
}

// Suspend takes an active tenant out of service.
func (t *Tenant) Suspend(now time.Time) error {
	if t.Status != TenantStatusActive {
		return t.transitionError("suspend")
	}
	t.Status = TenantStatusSuspended
	t.UpdatedAt = now
	return nil
}

// Reinstate returns a suspended tenant to service. The schema was already
// provisioned before the suspension, so no re-provisioning happens.
func (t *Tenant) Reinstate(now time.Time) error {
	if t.Status != TenantStatusSuspended {
		return t.transitionError("reinstate")
	}
	t.Status = TenantStatusActive
	t.UpdatedAt = now
	return nil
}

func (t *Tenant) transitionError(action string) error {
	return dErrors.New(dErrors.CodeInvalidState,
		fmt.Sprintf("cannot %s tenant in status %q", action, t.Status))
}
