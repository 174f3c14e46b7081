package models

// TenantStatus is the lifecycle state of a cooperative's tenancy.
//
// Transitions:
//
//	pending  --approve(success)--> active
//	pending  --approve(failure)--> pending   (retryable)
//	pending  --reject(reason)----> rejected  (terminal)
//	active   --suspend-----------> suspended
//	suspended --reinstate--------> active
type TenantStatus string

const (
	TenantStatusPending   TenantStatus = "pending"
	TenantStatusActive    TenantStatus = "active"
	TenantStatusRejected  TenantStatus = "rejected"
	TenantStatusSuspended TenantStatus = "suspended"
)

// Valid reports whether s is a known status value. Used when scanning rows.
func (s TenantStatus) Valid() bool {
	switch s {
	case TenantStatusPending, TenantStatusActive, TenantStatusRejected, TenantStatusSuspended:
		return true
	}
	return false
}

// Default role set seeded into every provisioned tenant schema. The
// authorization layer depends on these names existing.
var DefaultRoles = []string{"Pengurus", "Anggota", "Pengawas"}
