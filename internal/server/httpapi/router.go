package httpapi

import (
	"net/http"
	"time"

	"github.com/dmitrijs2005/gatekeeper/internal/server/authz"
	"github.com/dmitrijs2005/gatekeeper/internal/server/metrics"
	"github.com/gorilla/mux"
)

// DefaultPolicy lists the routes reachable without a principal. Everything
// else is protected.
func DefaultPolicy(realm string) *authz.Policy {
	return authz.NewPolicy(realm,
		authz.Rule{Pattern: "/api/v1/auth/**", Access: authz.Public},
		authz.Rule{Pattern: "/healthz", Access: authz.Public},
		authz.Rule{Pattern: "/metrics", Access: authz.Public},
	)
}

// NewRouter builds the full handler chain: the authorization filter and the
// route policy run in front of the mux so unmatched protected paths are also
// challenged.
func NewRouter(h *Handlers, filter *authz.Filter, policy *authz.Policy, m *metrics.Metrics) http.Handler {
	router := mux.NewRouter()
	router.Use(instrument(m))
	h.RegisterRoutes(router)
	router.Handle("/metrics", m.Handler()).Methods(http.MethodGet)

	return authz.Middleware(filter, policy)(router)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func instrument(m *metrics.Metrics) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			route := r.URL.Path
			if cr := mux.CurrentRoute(r); cr != nil {
				if tpl, err := cr.GetPathTemplate(); err == nil {
					route = tpl
				}
			}
			m.RecordHTTPRequest(r.Method, route, rec.status, time.Since(start))
		})
	}
}
