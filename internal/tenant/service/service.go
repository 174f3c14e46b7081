package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	tenantmetrics "kopra/internal/tenant/metrics"
	"kopra/internal/tenant/models"
	id "kopra/pkg/domain"
	dErrors "kopra/pkg/domain-errors"
	"kopra/pkg/platform/audit"
	admin "kopra/pkg/platform/middleware/admin"
	request "kopra/pkg/platform/middleware/request"
	"kopra/pkg/platform/sentinel"
	limits "kopra/pkg/platform/validation"
	"kopra/pkg/requestcontext"
	"kopra/pkg/validation"
)

// TenantStore persists the control-plane tenant registry.
type TenantStore interface {
	CreateIfSubdomainAvailable(ctx context.Context, tenant *models.Tenant) error
	Update(ctx context.Context, tenant *models.Tenant) error
	FindByID(ctx context.Context, tenantID id.TenantID) (*models.Tenant, error)
	FindBySubdomain(ctx context.Context, subdomain string) (*models.Tenant, error)
	ListByStatus(ctx context.Context, status models.TenantStatus, limit, offset int) ([]*models.Tenant, error)
	Count(ctx context.Context) (int, error)
}

// RegistrationStore persists applicant details.
type RegistrationStore interface {
	Create(ctx context.Context, reg *models.Registration) error
	FindByTenantID(ctx context.Context, tenantID id.TenantID) (*models.Registration, error)
}

// Provisioner builds a tenant's schema: creates it, applies the baseline
// migrations, seeds the default roles, and flips the tenant to active.
type Provisioner interface {
	Provision(ctx context.Context, tenant *models.Tenant) error
}

// AuditPublisher forwards lifecycle events to the audit trail.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Service orchestrates the tenant registration and review lifecycle.
type Service struct {
	tenants       TenantStore
	registrations RegistrationStore
	provisioner   Provisioner
	tx            StoreTx
	logger        *slog.Logger
	audit         AuditPublisher
	metrics       *tenantmetrics.Metrics
}

type Option func(s *Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) { s.audit = publisher }
}

func WithMetrics(m *tenantmetrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithStoreTx(tx StoreTx) Option {
	return func(s *Service) { s.tx = tx }
}

func New(tenants TenantStore, registrations RegistrationStore, provisioner Provisioner, opts ...Option) *Service {
	s := &Service{tenants: tenants, registrations: registrations, provisioner: provisioner}
	for _, opt := range opts {
		opt(s)
	}
	if s.tx == nil {
		s.tx = NewInMemoryStoreTx()
	}
	return s
}

// Register accepts a cooperative's sign-up and creates a pending tenant
// together with its registration record. The tenant stays pending until an
// operator approves it; no schema exists yet.
func (s *Service) Register(ctx context.Context, cmd RegisterTenantCommand) (*models.Tenant, error) {
	cmd.Normalize()
	if !validation.IsSubdomain(cmd.Subdomain) {
		return nil, dErrors.New(dErrors.CodeValidation,
			"subdomain must be 3-30 lowercase alphanumeric characters starting with a letter")
	}

	now := requestcontext.Now(ctx)
	tenant, err := models.NewTenant(cmd.Name, cmd.Subdomain, now)
	if err != nil {
		return nil, err
	}
	reg, err := models.NewRegistration(tenant.ID, cmd.PICName, cmd.PICEmail, cmd.PICPhone,
		cmd.Province, cmd.City, cmd.Address, cmd.Password, cmd.DocumentURLs, now)
	if err != nil {
		return nil, err
	}

	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.tenants.CreateIfSubdomainAvailable(txCtx, tenant); err != nil {
			return err
		}
		return s.registrations.Create(txCtx, reg)
	})
	if err != nil {
		if errors.Is(err, sentinel.ErrAlreadyUsed) {
			return nil, dErrors.New(dErrors.CodeConflict, "subdomain is already taken")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to register tenant")
	}

	s.logAudit(ctx, audit.EventTenantRegistered, tenant, "")
	if s.metrics != nil {
		s.metrics.IncrementRegistered()
	}
	return tenant, nil
}

// Approve provisions the tenant's schema and activates it. Approval is
// idempotent: approving an already active tenant is a no-op, and a failed
// provisioning run leaves the tenant pending so the operator can retry.
func (s *Service) Approve(ctx context.Context, tenantID id.TenantID) (*models.Tenant, error) {
	if tenantID.IsNil() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "tenant ID required")
	}
	tenant, err := s.tenants.FindByID(ctx, tenantID)
	if err != nil {
		return nil, wrapTenantErr(err, "failed to load tenant")
	}

	switch tenant.Status {
	case models.TenantStatusActive:
		return tenant, nil
	case models.TenantStatusPending:
	default:
		return nil, dErrors.New(dErrors.CodeInvalidState,
			"only pending tenants can be approved")
	}

	start := time.Now()
	if err := s.provisioner.Provision(ctx, tenant); err != nil {
		// Status stays pending; the schema work that did complete is
		// picked up by the next attempt.
		return nil, dErrors.Wrap(err, dErrors.CodeProvisionFailed, "schema provisioning failed")
	}
	if s.metrics != nil {
		s.metrics.ObserveProvision(start)
		s.metrics.IncrementApproved()
	}

	tenant, err = s.tenants.FindByID(ctx, tenantID)
	if err != nil {
		return nil, wrapTenantErr(err, "failed to reload tenant")
	}

	s.logAudit(ctx, audit.EventTenantApproved, tenant, "")
	return tenant, nil
}

// Reject declines a pending registration. A reason is mandatory and is
// surfaced to the applicant; rejection is terminal.
func (s *Service) Reject(ctx context.Context, tenantID id.TenantID, reason string) (*models.Tenant, error) {
	if tenantID.IsNil() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "tenant ID required")
	}
	if len(reason) < limits.MinReasonLength {
		return nil, dErrors.New(dErrors.CodeValidation, "rejection reason is too short")
	}
	if len(reason) > limits.MaxReasonLength {
		return nil, dErrors.New(dErrors.CodeValidation, "rejection reason is too long")
	}

	tenant, err := s.tenants.FindByID(ctx, tenantID)
	if err != nil {
		return nil, wrapTenantErr(err, "failed to load tenant")
	}
	if err := tenant.Reject(reason, requestcontext.Now(ctx)); err != nil {
		return nil, err
	}
	if err := s.tenants.Update(ctx, tenant); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to update tenant")
	}

	s.logAudit(ctx, audit.EventTenantRejected, tenant, reason)
	if s.metrics != nil {
		s.metrics.IncrementRejected()
	}
	return tenant, nil
}

// Suspend takes an active tenant out of service. Its schema and data stay
// intact; requests are refused until the tenant is reinstated.
func (s *Service) Suspend(ctx context.Context, tenantID id.TenantID) (*models.Tenant, error) {
	return s.transition(ctx, tenantID, audit.EventTenantSuspended,
		func(t *models.Tenant, now time.Time) error { return t.Suspend(now) })
}

// Reinstate returns a suspended tenant to service.
func (s *Service) Reinstate(ctx context.Context, tenantID id.TenantID) (*models.Tenant, error) {
	return s.transition(ctx, tenantID, audit.EventTenantReinstated,
		func(t *models.Tenant, now time.Time) error { return t.Reinstate(now) })
}

func (s *Service) transition(ctx context.Context, tenantID id.TenantID, event string, apply func(*models.Tenant, time.Time) error) (*models.Tenant, error) {
	if tenantID.IsNil() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "tenant ID required")
	}
	tenant, err := s.tenants.FindByID(ctx, tenantID)
	if err != nil {
		return nil, wrapTenantErr(err, "failed to load tenant")
	}
	if err := apply(tenant, requestcontext.Now(ctx)); err != nil {
		return nil, err
	}
	if err := s.tenants.Update(ctx, tenant); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to update tenant")
	}
	s.logAudit(ctx, event, tenant, "")
	return tenant, nil
}

// ListPending returns registrations awaiting review, oldest first.
func (s *Service) ListPending(ctx context.Context, limit, offset int) ([]*models.Tenant, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	tenants, err := s.tenants.ListByStatus(ctx, models.TenantStatusPending, limit, offset)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list pending tenants")
	}
	return tenants, nil
}

// TenantDetails combines the tenant record with its registration.
type TenantDetails struct {
	Tenant       *models.Tenant
	Registration *models.Registration
}

// GetTenant fetches a tenant and its registration for operator review.
func (s *Service) GetTenant(ctx context.Context, tenantID id.TenantID) (*TenantDetails, error) {
	if tenantID.IsNil() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "tenant ID required")
	}
	tenant, err := s.tenants.FindByID(ctx, tenantID)
	if err != nil {
		return nil, wrapTenantErr(err, "failed to load tenant")
	}
	reg, err := s.registrations.FindByTenantID(ctx, tenantID)
	if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load registration")
	}
	return &TenantDetails{Tenant: tenant, Registration: reg}, nil
}

// GetBySubdomain fetches a tenant by subdomain. Used by the resolver.
func (s *Service) GetBySubdomain(ctx context.Context, subdomain string) (*models.Tenant, error) {
	tenant, err := s.tenants.FindBySubdomain(ctx, subdomain)
	if err != nil {
		return nil, wrapTenantErr(err, "failed to load tenant")
	}
	return tenant, nil
}

func (s *Service) logAudit(ctx context.Context, event string, tenant *models.Tenant, reason string) {
	requestID := request.GetRequestID(ctx)
	actor := admin.GetAdminActorID(ctx)

	if s.logger != nil {
		s.logger.InfoContext(ctx, event,
			"event", event,
			"log_type", "audit",
			"tenant_id", tenant.ID,
			"subdomain", tenant.Subdomain,
			"actor", actor,
			"request_id", requestID,
		)
	}
	if s.audit == nil {
		return
	}
	err := s.audit.Emit(ctx, audit.Event{
		TenantID:  tenant.ID.String(),
		Subdomain: tenant.Subdomain,
		Action:    event,
		Actor:     actor,
		Reason:    reason,
		RequestID: requestID,
	})
	if err != nil && s.logger != nil {
		s.logger.WarnContext(ctx, "failed to emit audit event",
			"event", event,
			"tenant_id", tenant.ID,
			"error", err,
		)
	}
}

func wrapTenantErr(err error, action string) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, "tenant not found")
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, action)
}
