package httptransport_test

import (
	"bytes"
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"kopra/internal/platform/config"
	"kopra/internal/platform/health"
	"kopra/internal/schemaclient"
	"kopra/internal/session"
	"kopra/internal/tenant/handler"
	"kopra/internal/tenant/models"
	"kopra/internal/tenant/resolver"
	"kopra/internal/tenant/service"
	registrationstore "kopra/internal/tenant/store/registration"
	tenantstore "kopra/internal/tenant/store/tenant"
	httptransport "kopra/internal/transport/http"
	"kopra/pkg/requestcontext"
)

const testAdminToken = "test-admin-token"

// schemaConnector backs a *sql.DB whose every query answers with the
// schema it was opened for, which is enough for the ping endpoint.
type schemaConnector struct {
	schema string
}

func (c schemaConnector) Connect(context.Context) (driver.Conn, error) { return schemaConn(c), nil }
func (c schemaConnector) Driver() driver.Driver                        { return nil }

type schemaConn struct {
	schema string
}

func (schemaConn) Prepare(string) (driver.Stmt, error) { return nil, driver.ErrSkip }
func (schemaConn) Close() error                        { return nil }
func (schemaConn) Begin() (driver.Tx, error)           { return nil, driver.ErrSkip }

func (c schemaConn) QueryContext(context.Context, string, []driver.NamedValue) (driver.Rows, error) {
	return &schemaRows{schema: c.schema}, nil
}

type schemaRows struct {
	schema string
	done   bool
}

func (r *schemaRows) Columns() []string { return []string{"current_schema"} }
func (r *schemaRows) Close() error      { return nil }

func (r *schemaRows) Next(dest []driver.Value) error {
	if r.done {
		return io.EOF
	}
	r.done = true
	dest[0] = r.schema
	return nil
}

type fakeProvisioner struct {
	store *tenantstore.InMemory
}

func (p *fakeProvisioner) Provision(ctx context.Context, tenant *models.Tenant) error {
	stored, err := p.store.FindByID(ctx, tenant.ID)
	if err != nil {
		return err
	}
	if err := stored.Activate(requestcontext.Now(ctx)); err != nil {
		return err
	}
	return p.store.Update(ctx, stored)
}

type RouterSuite struct {
	suite.Suite
	router   http.Handler
	tenants  *tenantstore.InMemory
	clients  *schemaclient.Cache
	sessions *session.Service
}

func TestRouterSuite(t *testing.T) {
	suite.Run(t, new(RouterSuite))
}

func (s *RouterSuite) SetupTest() {
	logger := slog.New(slog.NewTextHandler(bytes.NewBuffer(nil), nil))

	s.tenants = tenantstore.NewInMemory()
	registrations := registrationstore.NewInMemory()
	svc := service.New(s.tenants, registrations, &fakeProvisioner{store: s.tenants}, service.WithLogger(logger))

	res := resolver.New(s.tenants, resolver.NewMemoryCache(time.Minute), resolver.WithLogger(logger))

	factory := func(_ context.Context, schemaName string) (*sql.DB, error) {
		return sql.OpenDB(schemaConnector{schema: schemaName}), nil
	}
	s.clients = schemaclient.New(factory, config.CacheConfig{
		MaxClients:       1,
		IdleTTL:          time.Minute,
		ConstructTimeout: time.Second,
		Backpressure:     config.BackpressureReject,
	}, schemaclient.WithLogger(logger))
	s.T().Cleanup(func() { s.clients.Close() })

	s.sessions = session.NewService("test-signing-key", "kopra", time.Hour)

	s.router = httptransport.NewRouter(httptransport.Deps{
		Tenants:    handler.New(svc, logger),
		Resolver:   res,
		Clients:    s.clients,
		Sessions:   s.sessions,
		Health:     health.New("test"),
		AdminToken: testAdminToken,
		Logger:     logger,
	})
}

func (s *RouterSuite) seedTenant(subdomain string, status models.TenantStatus) {
	tenant, err := models.NewTenant("Koperasi "+subdomain, subdomain, time.Now())
	s.Require().NoError(err)
	tenant.Status = status
	s.Require().NoError(s.tenants.CreateIfSubdomainAvailable(context.Background(), tenant))
}

func (s *RouterSuite) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *RouterSuite) get(path string) *httptest.ResponseRecorder {
	return s.do(httptest.NewRequest(http.MethodGet, path, nil))
}

func (s *RouterSuite) TestRegisterApprovePing() {
	body := map[string]any{
		"name":      "Koperasi Maju Jaya",
		"subdomain": "majujaya",
		"pic_name":  "Budi Santoso",
		"pic_email": "budi@majujaya.co.id",
		"pic_phone": "081234567890",
		"province":  "Jawa Barat",
		"city":      "Bandung",
		"address":   "Jl. Merdeka 1",
		"password":  "s3cret-password",
	}
	payload, err := json.Marshal(body)
	s.Require().NoError(err)

	req := httptest.NewRequest(http.MethodPost, "/public/register", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := s.do(req)
	s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())

	var created struct {
		ID string `json:"id"`
	}
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &created))

	approve := httptest.NewRequest(http.MethodPost, "/admin/tenants/"+created.ID+"/approve", nil)
	approve.Header.Set("X-Admin-Token", testAdminToken)
	rec = s.do(approve)
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())

	rec = s.get("/t/majujaya/ping")
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())

	var ping struct {
		Status string `json:"status"`
		Schema string `json:"schema"`
	}
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &ping))
	s.Equal("ok", ping.Status)
	s.Equal("tenant_majujaya", ping.Schema)
}

func (s *RouterSuite) TestPingSuspendedTenantForbidden() {
	s.seedTenant("dorman", models.TenantStatusSuspended)

	rec := s.get("/t/dorman/ping")
	s.Equal(http.StatusForbidden, rec.Code, rec.Body.String())
}

func (s *RouterSuite) TestPingUnknownTenantNotFound() {
	rec := s.get("/t/nosuchtenant/ping")
	s.Equal(http.StatusNotFound, rec.Code, rec.Body.String())
}

// With a single client slot, the second tenant's request only succeeds if
// the first request released its lease on the way out.
func (s *RouterSuite) TestLeaseReleasedAfterRequest() {
	s.seedTenant("pertama", models.TenantStatusActive)
	s.seedTenant("kedua", models.TenantStatusActive)

	rec := s.get("/t/pertama/ping")
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())

	rec = s.get("/t/kedua/ping")
	s.Equal(http.StatusOK, rec.Code, rec.Body.String())
}

func (s *RouterSuite) TestSessionTokenRoutesToTenant() {
	s.seedTenant("majujaya", models.TenantStatusActive)

	token, err := s.sessions.Issue(context.Background(), "majujaya", "member-1", "Anggota")
	s.Require().NoError(err)

	req := httptest.NewRequest(http.MethodGet, "/api/ping", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := s.do(req)
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())

	var ping struct {
		Schema string `json:"schema"`
	}
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &ping))
	s.Equal("tenant_majujaya", ping.Schema)
}

func (s *RouterSuite) TestSessionTokenInvalid() {
	req := httptest.NewRequest(http.MethodGet, "/api/ping", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	rec := s.do(req)
	s.Equal(http.StatusUnauthorized, rec.Code, rec.Body.String())
}

func (s *RouterSuite) TestSessionTokenMissing() {
	rec := s.get("/api/ping")
	s.Equal(http.StatusBadRequest, rec.Code, rec.Body.String())
}

func (s *RouterSuite) TestAdminRequiresToken() {
	rec := s.get("/admin/tenants/pending")
	s.Equal(http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/admin/tenants/pending", nil)
	req.Header.Set("X-Admin-Token", testAdminToken)
	rec = s.do(req)
	s.Equal(http.StatusOK, rec.Code, rec.Body.String())
}

func (s *RouterSuite) TestMetricsExposed() {
	rec := s.get("/metrics")
	s.Equal(http.StatusOK, rec.Code)
}

func (s *RouterSuite) TestHealthEndpoints() {
	rec := s.get("/health/live")
	s.Equal(http.StatusOK, rec.Code)
}
