//go:build integration

package provision_test

import (
	"context"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/suite"

	"kopra/internal/provision"
	"kopra/internal/tenant/models"
	tenantstore "kopra/internal/tenant/store/tenant"
	"kopra/migrations/tenantbase"
	"kopra/pkg/testutil/containers"
)

type ProvisionerSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *tenantstore.PostgresStore
}

func TestProvisionerSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(ProvisionerSuite))
}

func (s *ProvisionerSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.postgres = mgr.GetPostgres(s.T())
	s.store = tenantstore.NewPostgres(s.postgres.DB)
}

func (s *ProvisionerSuite) SetupTest() {
	ctx := context.Background()
	s.Require().NoError(s.postgres.DropTenantSchemas(ctx))
	s.Require().NoError(s.postgres.TruncateControlTables(ctx))
}

func (s *ProvisionerSuite) createPendingTenant(subdomain string) *models.Tenant {
	tenant, err := models.NewTenant("Koperasi "+subdomain, subdomain, time.Now().UTC())
	s.Require().NoError(err)
	s.Require().NoError(s.store.CreateIfSubdomainAvailable(context.Background(), tenant))
	return tenant
}

func (s *ProvisionerSuite) TestProvisionCreatesSchemaRolesAndActivates() {
	ctx := context.Background()
	tenant := s.createPendingTenant("majujaya")

	p := provision.New(s.postgres.DB, s.store, tenantbase.FS)
	s.Require().NoError(p.Provision(ctx, tenant))

	stored, err := s.store.FindByID(ctx, tenant.ID)
	s.Require().NoError(err)
	s.Equal(models.TenantStatusActive, stored.Status)

	var roles int
	err = s.postgres.QueryRow(ctx, "SELECT COUNT(*) FROM tenant_majujaya.roles").Scan(&roles)
	s.Require().NoError(err)
	s.Equal(len(models.DefaultRoles), roles)

	for _, name := range models.DefaultRoles {
		var found bool
		err = s.postgres.QueryRow(ctx,
			"SELECT EXISTS (SELECT 1 FROM tenant_majujaya.roles WHERE name = $1)", name).Scan(&found)
		s.Require().NoError(err)
		s.Truef(found, "role %s must be seeded", name)
	}

	// Baseline tables exist in the tenant schema, not in public.
	var inTenant bool
	err = s.postgres.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM information_schema.tables
		WHERE table_schema = 'tenant_majujaya' AND table_name = 'members')`).Scan(&inTenant)
	s.Require().NoError(err)
	s.True(inTenant)

	var inPublic bool
	err = s.postgres.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM information_schema.tables
		WHERE table_schema = 'public' AND table_name = 'members')`).Scan(&inPublic)
	s.Require().NoError(err)
	s.False(inPublic)
}

func (s *ProvisionerSuite) TestProvisionIsIdempotent() {
	ctx := context.Background()
	tenant := s.createPendingTenant("majujaya")

	p := provision.New(s.postgres.DB, s.store, tenantbase.FS)
	s.Require().NoError(p.Provision(ctx, tenant))
	s.Require().NoError(p.Provision(ctx, tenant))

	var roles int
	err := s.postgres.QueryRow(ctx, "SELECT COUNT(*) FROM tenant_majujaya.roles").Scan(&roles)
	s.Require().NoError(err)
	s.Equal(len(models.DefaultRoles), roles, "re-run must not duplicate seeds")
}

// TestProvisionResumesAfterPartialFailure simulates a run that died after
// migrations but before the seed step, then verifies a clean retry.
func (s *ProvisionerSuite) TestProvisionResumesAfterPartialFailure() {
	ctx := context.Background()
	tenant := s.createPendingTenant("majujaya")

	// First attempt fails mid-way: the second migration file is broken.
	broken := fstest.MapFS{
		"0001_roles.up.sql": &fstest.MapFile{Data: readBaseline(s.T(), "0001_roles.up.sql")},
		"0002_members.up.sql": &fstest.MapFile{
			Data: []byte("CREATE TABLE members (id UUID PRIMARY KEY, syntax error here"),
		},
	}
	p := provision.New(s.postgres.DB, s.store, broken)
	err := p.Provision(ctx, tenant)
	s.Require().Error(err)

	stored, err := s.store.FindByID(ctx, tenant.ID)
	s.Require().NoError(err)
	s.Equal(models.TenantStatusPending, stored.Status, "tenant stays pending after a failed run")

	var roles int
	err = s.postgres.QueryRow(ctx, "SELECT COUNT(*) FROM tenant_majujaya.roles").Scan(&roles)
	s.Require().NoError(err)
	s.Zero(roles, "seed step must not have run")

	// Retry with the real baseline resumes: version 1 is already applied.
	p = provision.New(s.postgres.DB, s.store, tenantbase.FS)
	s.Require().NoError(p.Provision(ctx, tenant))

	stored, err = s.store.FindByID(ctx, tenant.ID)
	s.Require().NoError(err)
	s.Equal(models.TenantStatusActive, stored.Status)
}

func readBaseline(t *testing.T, name string) []byte {
	t.Helper()
	data, err := tenantbase.FS.ReadFile(name)
	if err != nil {
		t.Fatalf("read baseline migration %s: %v", name, err)
	}
	return data
}
