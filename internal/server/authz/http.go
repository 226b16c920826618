package authz

import (
	"encoding/json"
	"net/http"

	"github.com/dmitrijs2005/gatekeeper/internal/common"
	"github.com/dmitrijs2005/gatekeeper/internal/server/metrics"
)

// Middleware runs the filter and then the policy in front of next.
// Anonymous requests to protected routes get 401 with a Bearer challenge.
func Middleware(f *Filter, p *Policy) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := f.Authorize(r.Context(), r.Header.Get(common.AuthorizationHeaderName))

			if !p.Permits(ctx, r.URL.Path) {
				f.metrics.RecordAuthz(f.transport, metrics.OutcomeRejected)
				w.Header().Set("WWW-Authenticate", p.Challenge())
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_ = json.NewEncoder(w).Encode(map[string]string{"error": "unauthenticated"})
				return
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
