package tenant

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"kopra/internal/tenant/models"
	"kopra/internal/tenant/store"
	id "kopra/pkg/domain"
	"kopra/pkg/platform/sentinel"
	txcontext "kopra/pkg/platform/tx"
)

// PostgresStore persists tenants in the control schema.
type PostgresStore struct {
	db *sql.DB
}

var _ store.TenantStore = (*PostgresStore)(nil)

// NewPostgres constructs a PostgreSQL-backed tenant store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

// CreateIfSubdomainAvailable atomically creates the tenant if the subdomain
// is not already taken. Uniqueness is enforced by the database so that
// concurrent registrations cannot both win.
func (s *PostgresStore) CreateIfSubdomainAvailable(ctx context.Context, tenant *models.Tenant) error {
	if tenant == nil {
		return fmt.Errorf("tenant is required")
	}
	query := `
		INSERT INTO tenants (id, name, subdomain, schema_name, status, rejection_reason, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := s.execer(ctx).ExecContext(ctx, query,
		uuid.UUID(tenant.ID),
		tenant.Name,
		tenant.Subdomain,
		tenant.SchemaName,
		string(tenant.Status),
		nullString(tenant.RejectionReason),
		tenant.CreatedAt,
		tenant.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("subdomain must be unique: %w", sentinel.ErrAlreadyUsed)
		}
		return fmt.Errorf("create tenant: %w", err)
	}
	return nil
}

// Update persists lifecycle changes to an existing tenant. Name, subdomain
// and schema name are immutable after creation.
func (s *PostgresStore) Update(ctx context.Context, tenant *models.Tenant) error {
	if tenant == nil {
		return fmt.Errorf("tenant is required")
	}
	query := `
		UPDATE tenants
		SET status = $2, rejection_reason = $3, updated_at = $4
		WHERE id = $1
	`
	res, err := s.execer(ctx).ExecContext(ctx, query,
		uuid.UUID(tenant.ID),
		string(tenant.Status),
		nullString(tenant.RejectionReason),
		tenant.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update tenant: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update tenant rows: %w", err)
	}
	if rows == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

// FindByID retrieves a tenant by its UUID.
func (s *PostgresStore) FindByID(ctx context.Context, tenantID id.TenantID) (*models.Tenant, error) {
	query := selectTenant + ` WHERE id = $1`
	tenant, err := scanTenant(s.execer(ctx).QueryRowContext(ctx, query, uuid.UUID(tenantID)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find tenant by id: %w", err)
	}
	return tenant, nil
}

// FindBySubdomain retrieves a tenant by its subdomain. Subdomains are
// stored lowercase, so the lookup is exact.
func (s *PostgresStore) FindBySubdomain(ctx context.Context, subdomain string) (*models.Tenant, error) {
	query := selectTenant + ` WHERE subdomain = $1`
	tenant, err := scanTenant(s.execer(ctx).QueryRowContext(ctx, query, subdomain))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find tenant by subdomain: %w", err)
	}
	return tenant, nil
}

// ListByStatus returns tenants in the given status ordered oldest first,
// so operators review registrations in arrival order.
func (s *PostgresStore) ListByStatus(ctx context.Context, status models.TenantStatus, limit, offset int) ([]*models.Tenant, error) {
	query := selectTenant + ` WHERE status = $1 ORDER BY created_at ASC LIMIT $2 OFFSET $3`
	rows, err := s.execer(ctx).QueryContext(ctx, query, string(status), limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list tenants by status: %w", err)
	}
	defer rows.Close()

	var tenants []*models.Tenant
	for rows.Next() {
		tenant, err := scanTenant(rows)
		if err != nil {
			return nil, fmt.Errorf("scan tenant: %w", err)
		}
		tenants = append(tenants, tenant)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list tenants by status: %w", err)
	}
	return tenants, nil
}

// Count returns the total number of tenants.
func (s *PostgresStore) Count(ctx context.Context) (int, error) {
	var count int
	if err := s.execer(ctx).QueryRowContext(ctx, `SELECT COUNT(*) FROM tenants`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count tenants: %w", err)
	}
	return count, nil
}

const selectTenant = `
	SELECT id, name, subdomain, schema_name, status, rejection_reason, created_at, updated_at
	FROM tenants`

type tenantRow interface {
	Scan(dest ...any) error
}

func scanTenant(row tenantRow) (*models.Tenant, error) {
	var tenant models.Tenant
	var tenantID uuid.UUID
	var status string
	var reason sql.NullString
	if err := row.Scan(&tenantID, &tenant.Name, &tenant.Subdomain, &tenant.SchemaName,
		&status, &reason, &tenant.CreatedAt, &tenant.UpdatedAt); err != nil {
		return nil, err
	}
	tenant.ID = id.TenantID(tenantID)
	tenant.Status = models.TenantStatus(status)
	tenant.RejectionReason = reason.String
	return &tenant, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
