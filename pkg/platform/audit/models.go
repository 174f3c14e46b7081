package audit

import (
	"time"
)

// Event is emitted from domain logic to capture key control-plane actions.
// Keep it transport-agnostic so sinks (log, Kafka) can fan out.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	TenantID  string    `json:"tenant_id"`
	Subdomain string    `json:"subdomain,omitempty"`
	Action    string    `json:"action"`
	Actor     string    `json:"actor,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	RequestID string    `json:"request_id,omitempty"`
}

// Tenant lifecycle actions recorded in the audit trail.
const (
	EventTenantRegistered  = "tenant_registered"
	EventTenantApproved    = "tenant_approved"
	EventTenantRejected    = "tenant_rejected"
	EventTenantSuspended   = "tenant_suspended"
	EventTenantReinstated  = "tenant_reinstated"
	EventSchemaProvisioned = "schema_provisioned"
)
