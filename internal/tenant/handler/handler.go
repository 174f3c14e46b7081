package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"kopra/internal/tenant/models"
	"kopra/internal/tenant/service"
	id "kopra/pkg/domain"
	dErrors "kopra/pkg/domain-errors"
	"kopra/pkg/platform/httputil"
	request "kopra/pkg/platform/middleware/request"
)

// Service defines the tenant lifecycle operations the handler exposes.
// Returns domain objects, not HTTP response DTOs.
type Service interface {
	Register(ctx context.Context, cmd service.RegisterTenantCommand) (*models.Tenant, error)
	Approve(ctx context.Context, tenantID id.TenantID) (*models.Tenant, error)
	Reject(ctx context.Context, tenantID id.TenantID, reason string) (*models.Tenant, error)
	Suspend(ctx context.Context, tenantID id.TenantID) (*models.Tenant, error)
	Reinstate(ctx context.Context, tenantID id.TenantID) (*models.Tenant, error)
	ListPending(ctx context.Context, limit, offset int) ([]*models.Tenant, error)
	GetTenant(ctx context.Context, tenantID id.TenantID) (*service.TenantDetails, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// RegisterPublic mounts the unauthenticated sign-up endpoint.
func (h *Handler) RegisterPublic(r chi.Router) {
	r.Post("/public/register", h.HandleRegister)
}

// RegisterAdmin mounts the operator review endpoints. The caller wraps the
// router with admin authentication.
func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Get("/tenants/pending", h.HandleListPending)
	r.Get("/tenants/{id}", h.HandleGetTenant)
	r.Post("/tenants/{id}/approve", h.HandleApprove)
	r.Post("/tenants/{id}/reject", h.HandleReject)
	r.Post("/tenants/{id}/suspend", h.HandleSuspend)
	r.Post("/tenants/{id}/reinstate", h.HandleReinstate)
}

// HandleRegister accepts a cooperative's registration application.
func (h *Handler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := request.GetRequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[RegisterTenantRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	tenant, err := h.service.Register(ctx, req.ToCommand())
	if err != nil {
		h.logger.ErrorContext(ctx, "register tenant failed", "error", err, "request_id", requestID)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, toTenantResponse(tenant))
}

// HandleListPending lists registrations awaiting review.
func (h *Handler) HandleListPending(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	limit := queryInt(r, "limit", 20)
	offset := queryInt(r, "offset", 0)

	tenants, err := h.service.ListPending(ctx, limit, offset)
	if err != nil {
		h.logger.ErrorContext(ctx, "list pending tenants failed", "error", err, "request_id", request.GetRequestID(ctx))
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, toTenantListResponse(tenants, limit, offset))
}

// HandleGetTenant returns a tenant with its registration details.
func (h *Handler) HandleGetTenant(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID, ok := h.tenantIDParam(w, r)
	if !ok {
		return
	}

	details, err := h.service.GetTenant(ctx, tenantID)
	if err != nil {
		h.logger.ErrorContext(ctx, "get tenant failed", "error", err,
			"request_id", request.GetRequestID(ctx), "tenant_id", tenantID)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, toTenantDetailsResponse(details))
}

// HandleApprove provisions the tenant's schema and activates it.
func (h *Handler) HandleApprove(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID, ok := h.tenantIDParam(w, r)
	if !ok {
		return
	}

	tenant, err := h.service.Approve(ctx, tenantID)
	if err != nil {
		h.logger.ErrorContext(ctx, "approve tenant failed", "error", err,
			"request_id", request.GetRequestID(ctx), "tenant_id", tenantID)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, toTenantResponse(tenant))
}

// HandleReject declines a pending registration with a reason.
func (h *Handler) HandleReject(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := request.GetRequestID(ctx)
	tenantID, ok := h.tenantIDParam(w, r)
	if !ok {
		return
	}

	req, ok := httputil.DecodeAndPrepare[RejectTenantRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	tenant, err := h.service.Reject(ctx, tenantID, req.Reason)
	if err != nil {
		h.logger.ErrorContext(ctx, "reject tenant failed", "error", err,
			"request_id", requestID, "tenant_id", tenantID)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, toTenantResponse(tenant))
}

// HandleSuspend takes an active tenant out of service.
func (h *Handler) HandleSuspend(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, h.service.Suspend, "suspend tenant failed")
}

// HandleReinstate returns a suspended tenant to service.
func (h *Handler) HandleReinstate(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, h.service.Reinstate, "reinstate tenant failed")
}

func (h *Handler) lifecycle(w http.ResponseWriter, r *http.Request, op func(context.Context, id.TenantID) (*models.Tenant, error), logMsg string) {
	ctx := r.Context()
	tenantID, ok := h.tenantIDParam(w, r)
	if !ok {
		return
	}

	tenant, err := op(ctx, tenantID)
	if err != nil {
		h.logger.ErrorContext(ctx, logMsg, "error", err,
			"request_id", request.GetRequestID(ctx), "tenant_id", tenantID)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, toTenantResponse(tenant))
}

func (h *Handler) tenantIDParam(w http.ResponseWriter, r *http.Request) (id.TenantID, bool) {
	tenantID, err := id.ParseTenantID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid tenant id"))
		return id.TenantID{}, false
	}
	return tenantID, true
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}
