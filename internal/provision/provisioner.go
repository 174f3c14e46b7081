// Package provision builds tenant schemas. A provisioning run creates the
// schema, applies the baseline migrations, seeds the default roles, and
// flips the tenant to active. Every step is idempotent, so a run that died
// halfway is simply re-run; the status flip happens last, inside the same
// transaction as the seed, so an active tenant always has a complete schema.
package provision

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"kopra/internal/platform/migrate"
	"kopra/internal/tenant/models"
	id "kopra/pkg/domain"
	txcontext "kopra/pkg/platform/tx"
	"kopra/pkg/requestcontext"
)

// TenantStore is the registry access the provisioner needs.
type TenantStore interface {
	FindByID(ctx context.Context, tenantID id.TenantID) (*models.Tenant, error)
	Update(ctx context.Context, tenant *models.Tenant) error
}

// StepError reports which provisioning step failed so operators can tell a
// DDL problem from a seed problem at a glance.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string { return fmt.Sprintf("provision step %s: %v", e.Step, e.Err) }
func (e *StepError) Unwrap() error { return e.Err }

// Provisioner executes schema provisioning runs.
type Provisioner struct {
	db         *sql.DB
	tenants    TenantStore
	migrations fs.FS
	logger     *slog.Logger
	tracer     trace.Tracer
}

type Option func(*Provisioner)

func WithLogger(logger *slog.Logger) Option {
	return func(p *Provisioner) { p.logger = logger }
}

// New creates a provisioner that applies the given baseline migration set.
// The db handle must connect as a role allowed to create schemas.
func New(db *sql.DB, tenants TenantStore, migrations fs.FS, opts ...Option) *Provisioner {
	p := &Provisioner{
		db:         db,
		tenants:    tenants,
		migrations: migrations,
		tracer:     otel.Tracer("kopra/provision"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Provision runs the full provisioning sequence for the tenant. Re-running
// after a failure resumes where the previous run stopped: existing schemas,
// applied migrations and seeded roles are all skipped. Provisioning an
// already active tenant is a no-op.
func (p *Provisioner) Provision(ctx context.Context, tenant *models.Tenant) error {
	ctx, span := p.tracer.Start(ctx, "provision.tenant", trace.WithAttributes(
		attribute.String("tenant.id", tenant.ID.String()),
		attribute.String("tenant.schema", tenant.SchemaName),
	))
	defer span.End()

	// Work from the stored record so a concurrent run or stale caller
	// cannot re-provision an active tenant.
	current, err := p.tenants.FindByID(ctx, tenant.ID)
	if err != nil {
		return p.fail(span, &StepError{Step: "load_tenant", Err: err})
	}
	if current.Status == models.TenantStatusActive {
		span.AddEvent("already active")
		return nil
	}

	if err := p.step(ctx, span, "create_schema", func(ctx context.Context) error {
		return migrate.EnsureSchema(ctx, p.db, current.SchemaName)
	}); err != nil {
		return err
	}

	if err := p.step(ctx, span, "apply_migrations", func(ctx context.Context) error {
		applied, err := migrate.Apply(ctx, p.db, current.SchemaName, p.migrations, p.logger)
		if err != nil {
			return err
		}
		span.SetAttributes(attribute.Int("migrations.applied", applied))
		return nil
	}); err != nil {
		return err
	}

	if err := p.step(ctx, span, "seed_and_activate", func(ctx context.Context) error {
		return p.seedAndActivate(ctx, current)
	}); err != nil {
		return err
	}

	if p.logger != nil {
		p.logger.InfoContext(ctx, "tenant provisioned",
			"tenant_id", current.ID,
			"schema", current.SchemaName,
		)
	}
	return nil
}

func (p *Provisioner) step(ctx context.Context, parent trace.Span, name string, fn func(ctx context.Context) error) error {
	ctx, span := p.tracer.Start(ctx, "provision."+name)
	err := fn(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.End()
		return p.fail(parent, &StepError{Step: name, Err: err})
	}
	span.End()
	return nil
}

func (p *Provisioner) fail(span trace.Span, err *StepError) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Step)
	if p.logger != nil {
		p.logger.Error("provisioning failed", "step", err.Step, "error", err.Err)
	}
	return err
}

// seedAndActivate inserts the default roles and flips the tenant to active
// in one transaction. If either part fails the tenant stays pending and the
// whole run is retryable.
func (p *Provisioner) seedAndActivate(ctx context.Context, tenant *models.Tenant) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	seed := fmt.Sprintf("INSERT INTO %s.roles (name) VALUES ($1) ON CONFLICT (name) DO NOTHING", tenant.SchemaName)
	for _, role := range models.DefaultRoles {
		if _, err := tx.ExecContext(ctx, seed, role); err != nil {
			return fmt.Errorf("seed role %s: %w", role, err)
		}
	}

	if err := tenant.Activate(requestcontext.Now(ctx)); err != nil {
		return err
	}
	if err := p.tenants.Update(txcontext.WithTx(ctx, tx), tenant); err != nil {
		return fmt.Errorf("activate tenant: %w", err)
	}

	return tx.Commit()
}
