package handler

import (
	"strings"

	"kopra/internal/tenant/service"
	dErrors "kopra/pkg/domain-errors"
	strutil "kopra/pkg/platform/strings"
	limits "kopra/pkg/platform/validation"
	"kopra/pkg/validation"
)

// HTTP Request DTOs - contain JSON tags for API serialization.
// These are converted to service commands before processing.

type RegisterTenantRequest struct {
	Name         string   `json:"name" validate:"required,notblank,max=128"`
	Subdomain    string   `json:"subdomain" validate:"required,subdomain"`
	PICName      string   `json:"pic_name" validate:"required,notblank,max=128"`
	PICEmail     string   `json:"pic_email" validate:"required,email"`
	PICPhone     string   `json:"pic_phone" validate:"required,min=8,max=20"`
	Province     string   `json:"province" validate:"required,notblank"`
	City         string   `json:"city" validate:"required,notblank"`
	Address      string   `json:"address" validate:"required,notblank"`
	Password     string   `json:"password" validate:"required,min=8,max=72"`
	DocumentURLs []string `json:"document_urls"`
}

func (r *RegisterTenantRequest) Normalize() {
	if r == nil {
		return
	}
	r.Name = strings.TrimSpace(r.Name)
	r.Subdomain = strings.ToLower(strings.TrimSpace(r.Subdomain))
	r.PICName = strings.TrimSpace(r.PICName)
	r.PICEmail = strings.ToLower(strings.TrimSpace(r.PICEmail))
	r.PICPhone = strings.TrimSpace(r.PICPhone)
	r.Province = strings.TrimSpace(r.Province)
	r.City = strings.TrimSpace(r.City)
	r.Address = strings.TrimSpace(r.Address)
	r.DocumentURLs = strutil.DedupeAndTrim(r.DocumentURLs)
}

func (r *RegisterTenantRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	if err := limits.CheckSliceCount("document URLs", len(r.DocumentURLs), limits.MaxDocumentURLs); err != nil {
		return err
	}
	if err := limits.CheckEachStringLength("document URL", r.DocumentURLs, limits.MaxDocumentURLLength); err != nil {
		return err
	}
	return validation.Validate(r)
}

func (r *RegisterTenantRequest) ToCommand() service.RegisterTenantCommand {
	return service.RegisterTenantCommand{
		Name:         r.Name,
		Subdomain:    r.Subdomain,
		PICName:      r.PICName,
		PICEmail:     r.PICEmail,
		PICPhone:     r.PICPhone,
		Province:     r.Province,
		City:         r.City,
		Address:      r.Address,
		Password:     r.Password,
		DocumentURLs: r.DocumentURLs,
	}
}

type RejectTenantRequest struct {
	Reason string `json:"reason"`
}

func (r *RejectTenantRequest) Normalize() {
	if r == nil {
		return
	}
	r.Reason = strings.TrimSpace(r.Reason)
}

func (r *RejectTenantRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	if len(r.Reason) < limits.MinReasonLength {
		return dErrors.New(dErrors.CodeValidation, "reason is required and must explain the rejection")
	}
	if len(r.Reason) > limits.MaxReasonLength {
		return dErrors.New(dErrors.CodeValidation, "reason is too long")
	}
	return nil
}
