package httptransport

import (
	"net/http"
	"strings"

	"kopra/internal/session"
	dErrors "kopra/pkg/domain-errors"
	"kopra/pkg/platform/httputil"
	"kopra/pkg/requestcontext"
)

// SessionSubdomain validates a bearer session token and binds its tenant
// subdomain to the request context. Requests without an Authorization
// header pass through unchanged; tenant-scoped routes downstream will
// reject them for lack of a subdomain.
func SessionSubdomain(sessions *session.Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				next.ServeHTTP(w, r)
				return
			}

			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok {
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "malformed authorization header"))
				return
			}

			claims, err := sessions.Validate(token)
			if err != nil {
				httputil.WriteError(w, err)
				return
			}

			ctx := requestcontext.WithSubdomain(r.Context(), claims.Subdomain)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
