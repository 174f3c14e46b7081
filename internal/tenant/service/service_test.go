package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kopra/internal/tenant/models"
	registrationstore "kopra/internal/tenant/store/registration"
	tenantstore "kopra/internal/tenant/store/tenant"
	"kopra/pkg/domain"
	dErrors "kopra/pkg/domain-errors"
	"kopra/pkg/platform/audit"
	"kopra/pkg/requestcontext"
)

// fakeProvisioner mimics the real provisioner's contract: on success the
// tenant has been flipped to active in the store.
type fakeProvisioner struct {
	store *tenantstore.InMemory
	fail  error
	calls int
}

func (p *fakeProvisioner) Provision(ctx context.Context, tenant *models.Tenant) error {
	p.calls++
	if p.fail != nil {
		return p.fail
	}
	stored, err := p.store.FindByID(ctx, tenant.ID)
	if err != nil {
		return err
	}
	if err := stored.Activate(requestcontext.Now(ctx)); err != nil {
		return err
	}
	return p.store.Update(ctx, stored)
}

type captureAudit struct {
	mu     sync.Mutex
	events []audit.Event
}

func (c *captureAudit) Emit(_ context.Context, event audit.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
	return nil
}

func (c *captureAudit) actions() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.events))
	for i, e := range c.events {
		out[i] = e.Action
	}
	return out
}

type fixture struct {
	svc         *Service
	tenants     *tenantstore.InMemory
	provisioner *fakeProvisioner
	audit       *captureAudit
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	tenants := tenantstore.NewInMemory()
	regs := registrationstore.NewInMemory()
	prov := &fakeProvisioner{store: tenants}
	sink := &captureAudit{}
	svc := New(tenants, regs, prov, WithAuditPublisher(sink))
	return &fixture{svc: svc, tenants: tenants, provisioner: prov, audit: sink}
}

func registerCmd(subdomain string) RegisterTenantCommand {
	return RegisterTenantCommand{
		Name:         "Koperasi Maju Jaya",
		Subdomain:    subdomain,
		PICName:      "Budi Santoso",
		PICEmail:     "budi@majujaya.example",
		PICPhone:     "+628111222333",
		Province:     "Jawa Barat",
		City:         "Bandung",
		Address:      "Jl. Merdeka 10",
		Password:     "s3cret-pass",
		DocumentURLs: []string{"https://docs.example/akta.pdf"},
	}
}

func TestService_Register(t *testing.T) {
	ctx := context.Background()

	t.Run("creates pending tenant and registration", func(t *testing.T) {
		f := newFixture(t)
		tenant, err := f.svc.Register(ctx, registerCmd("majujaya"))
		require.NoError(t, err)

		assert.Equal(t, models.TenantStatusPending, tenant.Status)
		assert.Equal(t, "tenant_majujaya", tenant.SchemaName)

		details, err := f.svc.GetTenant(ctx, tenant.ID)
		require.NoError(t, err)
		require.NotNil(t, details.Registration)
		assert.Equal(t, "budi@majujaya.example", details.Registration.PICEmail)
		assert.True(t, details.Registration.VerifyPassword("s3cret-pass"))

		assert.Equal(t, []string{audit.EventTenantRegistered}, f.audit.actions())
	})

	t.Run("normalizes subdomain case", func(t *testing.T) {
		f := newFixture(t)
		cmd := registerCmd("majujaya")
		cmd.Subdomain = "  MajuJaya  "
		tenant, err := f.svc.Register(ctx, cmd)
		require.NoError(t, err)
		assert.Equal(t, "majujaya", tenant.Subdomain)
	})

	t.Run("duplicate subdomain conflicts", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.Register(ctx, registerCmd("majujaya"))
		require.NoError(t, err)

		_, err = f.svc.Register(ctx, registerCmd("majujaya"))
		assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))
	})

	t.Run("invalid subdomain rejected before any write", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.Register(ctx, registerCmd("no-hyphens-here"))
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))

		count, err := f.tenants.Count(ctx)
		require.NoError(t, err)
		assert.Zero(t, count)
	})
}

func TestService_Approve(t *testing.T) {
	ctx := context.Background()

	t.Run("provisions and activates", func(t *testing.T) {
		f := newFixture(t)
		tenant, err := f.svc.Register(ctx, registerCmd("majujaya"))
		require.NoError(t, err)

		approved, err := f.svc.Approve(ctx, tenant.ID)
		require.NoError(t, err)
		assert.Equal(t, models.TenantStatusActive, approved.Status)
		assert.Equal(t, 1, f.provisioner.calls)
		assert.Contains(t, f.audit.actions(), audit.EventTenantApproved)
	})

	t.Run("approve of active tenant is a no-op", func(t *testing.T) {
		f := newFixture(t)
		tenant, err := f.svc.Register(ctx, registerCmd("majujaya"))
		require.NoError(t, err)
		_, err = f.svc.Approve(ctx, tenant.ID)
		require.NoError(t, err)

		again, err := f.svc.Approve(ctx, tenant.ID)
		require.NoError(t, err)
		assert.Equal(t, models.TenantStatusActive, again.Status)
		assert.Equal(t, 1, f.provisioner.calls, "no second provisioning run")
	})

	t.Run("failed provisioning leaves tenant pending and retryable", func(t *testing.T) {
		f := newFixture(t)
		tenant, err := f.svc.Register(ctx, registerCmd("majujaya"))
		require.NoError(t, err)

		f.provisioner.fail = errors.New("create schema: connection refused")
		_, err = f.svc.Approve(ctx, tenant.ID)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeProvisionFailed))

		stored, err := f.tenants.FindByID(ctx, tenant.ID)
		require.NoError(t, err)
		assert.Equal(t, models.TenantStatusPending, stored.Status)

		f.provisioner.fail = nil
		approved, err := f.svc.Approve(ctx, tenant.ID)
		require.NoError(t, err)
		assert.Equal(t, models.TenantStatusActive, approved.Status)
	})

	t.Run("rejected tenant cannot be approved", func(t *testing.T) {
		f := newFixture(t)
		tenant, err := f.svc.Register(ctx, registerCmd("majujaya"))
		require.NoError(t, err)
		_, err = f.svc.Reject(ctx, tenant.ID, "documents are incomplete")
		require.NoError(t, err)

		_, err = f.svc.Approve(ctx, tenant.ID)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidState))
		assert.Zero(t, f.provisioner.calls)
	})
}

func TestService_Reject(t *testing.T) {
	ctx := context.Background()

	t.Run("records reason", func(t *testing.T) {
		f := newFixture(t)
		tenant, err := f.svc.Register(ctx, registerCmd("majujaya"))
		require.NoError(t, err)

		rejected, err := f.svc.Reject(ctx, tenant.ID, "documents are incomplete")
		require.NoError(t, err)
		assert.Equal(t, models.TenantStatusRejected, rejected.Status)
		assert.Equal(t, "documents are incomplete", rejected.RejectionReason)
		assert.Contains(t, f.audit.actions(), audit.EventTenantRejected)
	})

	t.Run("reason length is enforced", func(t *testing.T) {
		f := newFixture(t)
		tenant, err := f.svc.Register(ctx, registerCmd("majujaya"))
		require.NoError(t, err)

		_, err = f.svc.Reject(ctx, tenant.ID, "no")
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))

		long := make([]byte, 1001)
		for i := range long {
			long[i] = 'x'
		}
		_, err = f.svc.Reject(ctx, tenant.ID, string(long))
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

func TestService_SuspendReinstate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	tenant, err := f.svc.Register(ctx, registerCmd("majujaya"))
	require.NoError(t, err)
	_, err = f.svc.Approve(ctx, tenant.ID)
	require.NoError(t, err)

	suspended, err := f.svc.Suspend(ctx, tenant.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TenantStatusSuspended, suspended.Status)

	_, err = f.svc.Suspend(ctx, tenant.ID)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidState))

	reinstated, err := f.svc.Reinstate(ctx, tenant.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TenantStatusActive, reinstated.Status)
	assert.Equal(t, 1, f.provisioner.calls, "reinstatement never re-provisions")
}

func TestService_ListPending(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	for i, sub := range []string{"alpha", "bravo", "delta"} {
		_, err := f.svc.Register(requestcontext.WithNow(ctx, base.Add(time.Duration(i)*time.Minute)), registerCmd(sub))
		require.NoError(t, err)
	}

	pending, err := f.svc.ListPending(ctx, 2, 0)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "alpha", pending[0].Subdomain)
	assert.Equal(t, "bravo", pending[1].Subdomain)

	pending, err = f.svc.ListPending(ctx, 2, 2)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "delta", pending[0].Subdomain)
}

func TestService_GetTenant_NotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.GetTenant(context.Background(), domain.NewTenantID())
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
}
