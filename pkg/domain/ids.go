// Package domain provides type-safe identifiers to prevent mixing up IDs at compile time.
package domain

import (
	"github.com/google/uuid"

	dErrors "kopra/pkg/domain-errors"
)

// Distinct ID types - compiler prevents passing a RegistrationID where a
// TenantID is expected.
type (
	TenantID       uuid.UUID
	RegistrationID uuid.UUID
	MemberID       uuid.UUID
)

// New functions - generate fresh identifiers.

func NewTenantID() TenantID             { return TenantID(uuid.New()) }
func NewRegistrationID() RegistrationID { return RegistrationID(uuid.New()) }
func NewMemberID() MemberID             { return MemberID(uuid.New()) }

// Parse functions - use at trust boundaries (handlers, API inputs).

func ParseTenantID(s string) (TenantID, error) {
	id, err := parseUUID(s, "tenant ID")
	return TenantID(id), err
}

func ParseRegistrationID(s string) (RegistrationID, error) {
	id, err := parseUUID(s, "registration ID")
	return RegistrationID(id), err
}

func ParseMemberID(s string) (MemberID, error) {
	id, err := parseUUID(s, "member ID")
	return MemberID(id), err
}

// String methods - for logging and debugging.

func (id TenantID) String() string       { return uuid.UUID(id).String() }
func (id RegistrationID) String() string { return uuid.UUID(id).String() }
func (id MemberID) String() string       { return uuid.UUID(id).String() }

// Text marshaling - IDs appear as canonical UUID strings in JSON payloads.

func (id TenantID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }

func (id *TenantID) UnmarshalText(b []byte) error {
	parsed, err := ParseTenantID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func (id RegistrationID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }

func (id *RegistrationID) UnmarshalText(b []byte) error {
	parsed, err := ParseRegistrationID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// IsNil reports whether the ID is the zero UUID.

func (id TenantID) IsNil() bool       { return uuid.UUID(id) == uuid.Nil }
func (id RegistrationID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id MemberID) IsNil() bool       { return uuid.UUID(id) == uuid.Nil }

func parseUUID(s, label string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, label+" cannot be empty")
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+label)
	}
	return id, nil
}
