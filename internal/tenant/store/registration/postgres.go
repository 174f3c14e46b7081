package registration

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	"kopra/internal/tenant/models"
	"kopra/internal/tenant/store"
	id "kopra/pkg/domain"
	"kopra/pkg/platform/sentinel"
	txcontext "kopra/pkg/platform/tx"
)

// PostgresStore persists registration applications in the control schema.
type PostgresStore struct {
	db *sql.DB
}

var _ store.RegistrationStore = (*PostgresStore)(nil)

// NewPostgres constructs a PostgreSQL-backed registration store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

// Create inserts the registration. Each tenant has at most one.
func (s *PostgresStore) Create(ctx context.Context, reg *models.Registration) error {
	if reg == nil {
		return fmt.Errorf("registration is required")
	}
	query := `
		INSERT INTO tenant_registrations
			(id, tenant_id, pic_name, pic_email, pic_phone, province, city, address, document_urls, password_hash, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := s.execer(ctx).ExecContext(ctx, query,
		uuid.UUID(reg.ID),
		uuid.UUID(reg.TenantID),
		reg.PICName,
		reg.PICEmail,
		reg.PICPhone,
		reg.Province,
		reg.City,
		reg.Address,
		pq.Array(reg.DocumentURLs),
		reg.PasswordHash,
		reg.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("tenant already has a registration: %w", sentinel.ErrAlreadyUsed)
		}
		return fmt.Errorf("create registration: %w", err)
	}
	return nil
}

// FindByTenantID retrieves the registration for a tenant.
func (s *PostgresStore) FindByTenantID(ctx context.Context, tenantID id.TenantID) (*models.Registration, error) {
	query := `
		SELECT id, tenant_id, pic_name, pic_email, pic_phone, province, city, address, document_urls, password_hash, created_at
		FROM tenant_registrations
		WHERE tenant_id = $1
	`
	var reg models.Registration
	var regID, tID uuid.UUID
	var urls pq.StringArray
	err := s.execer(ctx).QueryRowContext(ctx, query, uuid.UUID(tenantID)).Scan(
		&regID, &tID, &reg.PICName, &reg.PICEmail, &reg.PICPhone,
		&reg.Province, &reg.City, &reg.Address, &urls, &reg.PasswordHash, &reg.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find registration by tenant id: %w", err)
	}
	reg.ID = id.RegistrationID(regID)
	reg.TenantID = id.TenantID(tID)
	reg.DocumentURLs = []string(urls)
	return &reg, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
