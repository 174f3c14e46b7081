package models

import (
	"time"

	"golang.org/x/crypto/bcrypt"

	dErrors "kopra/pkg/domain-errors"
	"kopra/pkg/domain"
)

// Registration holds the applicant details captured alongside a pending
// tenant. It is control-plane data, separate from the tenant's own schema.
type Registration struct {
	ID           domain.RegistrationID
	TenantID     domain.TenantID
	PICName      string
	PICEmail     string
	PICPhone     string
	Province     string
	City         string
	Address      string
	DocumentURLs []string
	PasswordHash string
	CreatedAt    time.Time
}

// NewRegistration hashes the applicant's password and binds the record to
// its tenant. The plaintext password never leaves this constructor.
func NewRegistration(tenantID domain.TenantID, picName, picEmail, picPhone, province, city, address, password string, documentURLs []string, now time.Time) (*Registration, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "hash password")
	}
	return &Registration{
		ID:           domain.NewRegistrationID(),
		TenantID:     tenantID,
		PICName:      picName,
		PICEmail:     picEmail,
		PICPhone:     picPhone,
		Province:     province,
		City:         city,
		Address:      address,
		DocumentURLs: documentURLs,
		PasswordHash: string(hash),
		CreatedAt:    now,
	}, nil
}

// VerifyPassword reports whether the plaintext matches the stored hash.
func (r *Registration) VerifyPassword(password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(r.PasswordHash), []byte(password)) == nil
}
