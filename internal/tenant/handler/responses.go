package handler

import (
	"time"

	"kopra/internal/tenant/models"
	"kopra/internal/tenant/service"
)

type TenantResponse struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Subdomain       string    `json:"subdomain"`
	SchemaName      string    `json:"schema_name"`
	Status          string    `json:"status"`
	RejectionReason string    `json:"rejection_reason,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func toTenantResponse(t *models.Tenant) TenantResponse {
	return TenantResponse{
		ID:              t.ID.String(),
		Name:            t.Name,
		Subdomain:       t.Subdomain,
		SchemaName:      t.SchemaName,
		Status:          string(t.Status),
		RejectionReason: t.RejectionReason,
		CreatedAt:       t.CreatedAt,
		UpdatedAt:       t.UpdatedAt,
	}
}

type RegistrationResponse struct {
	PICName      string    `json:"pic_name"`
	PICEmail     string    `json:"pic_email"`
	PICPhone     string    `json:"pic_phone"`
	Province     string    `json:"province"`
	City         string    `json:"city"`
	Address      string    `json:"address"`
	DocumentURLs []string  `json:"document_urls,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

type TenantDetailsResponse struct {
	Tenant       TenantResponse        `json:"tenant"`
	Registration *RegistrationResponse `json:"registration,omitempty"`
}

// Password hashes never leave the service; the registration view carries
// only reviewable applicant details.
func toTenantDetailsResponse(d *service.TenantDetails) TenantDetailsResponse {
	res := TenantDetailsResponse{Tenant: toTenantResponse(d.Tenant)}
	if d.Registration != nil {
		res.Registration = &RegistrationResponse{
			PICName:      d.Registration.PICName,
			PICEmail:     d.Registration.PICEmail,
			PICPhone:     d.Registration.PICPhone,
			Province:     d.Registration.Province,
			City:         d.Registration.City,
			Address:      d.Registration.Address,
			DocumentURLs: d.Registration.DocumentURLs,
			CreatedAt:    d.Registration.CreatedAt,
		}
	}
	return res
}

type TenantListResponse struct {
	Tenants []TenantResponse `json:"tenants"`
	Limit   int              `json:"limit"`
	Offset  int              `json:"offset"`
}

func toTenantListResponse(tenants []*models.Tenant, limit, offset int) TenantListResponse {
	out := TenantListResponse{Tenants: make([]TenantResponse, 0, len(tenants)), Limit: limit, Offset: offset}
	for _, t := range tenants {
		out.Tenants = append(out.Tenants, toTenantResponse(t))
	}
	return out
}
