package httptransport

import (
	"net/http"

	dErrors "kopra/pkg/domain-errors"
	"kopra/pkg/platform/httputil"
)

type pingResponse struct {
	Status    string `json:"status"`
	TenantID  string `json:"tenant_id"`
	Subdomain string `json:"subdomain"`
	Schema    string `json:"schema"`
}

// handleTenantPing answers through the tenant's schema-scoped connection,
// reporting the schema the database session is actually bound to.
func handleTenantPing(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	resolution, ok := ResolutionFromContext(ctx)
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInternal, "tenant context missing"))
		return
	}
	handle, ok := HandleFromContext(ctx)
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInternal, "tenant context missing"))
		return
	}

	var schema string
	if err := handle.DB().QueryRowContext(ctx, "SELECT current_schema()").Scan(&schema); err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeUnavailable, "tenant database unreachable"))
		return
	}

	httputil.WriteJSON(w, http.StatusOK, pingResponse{
		Status:    "ok",
		TenantID:  resolution.TenantID.String(),
		Subdomain: resolution.Subdomain,
		Schema:    schema,
	})
}
