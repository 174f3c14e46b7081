package tenant

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kopra/internal/tenant/models"
	"kopra/pkg/platform/sentinel"
	"kopra/pkg/testutil"
)

func newTenant(t *testing.T, subdomain string, createdAt time.Time) *models.Tenant {
	t.Helper()
	tenant, err := models.NewTenant("Koperasi "+subdomain, subdomain, createdAt)
	require.NoError(t, err)
	return tenant
}

func TestInMemory_CreateIfSubdomainAvailable(t *testing.T) {
	ctx := context.Background()
	store := NewInMemory()
	now := time.Now().UTC()

	require.NoError(t, store.CreateIfSubdomainAvailable(ctx, newTenant(t, "majujaya", now)))

	err := store.CreateIfSubdomainAvailable(ctx, newTenant(t, "majujaya", now))
	assert.ErrorIs(t, err, sentinel.ErrAlreadyUsed)

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestInMemory_FindBySubdomain(t *testing.T) {
	ctx := context.Background()
	store := NewInMemory()
	tenant := newTenant(t, "majujaya", time.Now().UTC())
	require.NoError(t, store.CreateIfSubdomainAvailable(ctx, tenant))

	found, err := store.FindBySubdomain(ctx, "majujaya")
	require.NoError(t, err)
	assert.Equal(t, tenant.ID, found.ID)
	assert.Equal(t, "tenant_majujaya", found.SchemaName)

	_, err = store.FindBySubdomain(ctx, "missing")
	assert.True(t, errors.Is(err, sentinel.ErrNotFound))
}

func TestInMemory_UpdateIsExplicit(t *testing.T) {
	ctx := context.Background()
	store := NewInMemory()
	now := time.Now().UTC()
	tenant := newTenant(t, "majujaya", now)
	require.NoError(t, store.CreateIfSubdomainAvailable(ctx, tenant))

	// Mutating the returned copy must not change the stored record.
	found, err := store.FindByID(ctx, tenant.ID)
	require.NoError(t, err)
	require.NoError(t, found.Activate(now.Add(time.Minute)))

	stored, err := store.FindByID(ctx, tenant.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TenantStatusPending, stored.Status)

	require.NoError(t, store.Update(ctx, found))
	stored, err = store.FindByID(ctx, tenant.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TenantStatusActive, stored.Status)
}

func TestInMemory_UpdateMissing(t *testing.T) {
	store := NewInMemory()
	tenant := newTenant(t, "majujaya", time.Now().UTC())
	err := store.Update(context.Background(), tenant)
	assert.True(t, errors.Is(err, sentinel.ErrNotFound))
}

func TestInMemory_ListByStatus(t *testing.T) {
	ctx := context.Background()
	store := NewInMemory()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	subdomains := []string{"alpha", "bravo", "delta", "gamma"}
	for i, sub := range subdomains {
		require.NoError(t, store.CreateIfSubdomainAvailable(ctx, newTenant(t, sub, base.Add(time.Duration(i)*time.Minute))))
	}

	listed, err := store.ListByStatus(ctx, models.TenantStatusPending, 2, 1)
	require.NoError(t, err)
	require.Len(t, listed, 2)
	assert.Equal(t, "bravo", listed[0].Subdomain)
	assert.Equal(t, "delta", listed[1].Subdomain)

	listed, err = store.ListByStatus(ctx, models.TenantStatusActive, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, listed)

	listed, err = store.ListByStatus(ctx, models.TenantStatusPending, 10, 99)
	require.NoError(t, err)
	assert.Empty(t, listed)
}

func TestInMemory_ConcurrentSubdomainClaim(t *testing.T) {
	ctx := context.Background()
	store := NewInMemory()
	now := time.Now().UTC()

	result := testutil.RunConcurrent(16, func(int) error {
		return store.CreateIfSubdomainAvailable(ctx, newTenant(t, "majujaya", now))
	})

	assert.Equal(t, int32(1), result.Successes)
	assert.Equal(t, int32(15), result.Conflicts)

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
