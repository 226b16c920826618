// Package metrics holds the Prometheus collectors exported by the server.
// A nil *Metrics is valid and records nothing, so components can be
// constructed without a registry in tests.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Authorization filter outcomes.
const (
	OutcomeAuthenticated = "authenticated"
	OutcomeAnonymous     = "anonymous"
	OutcomeInvalidToken  = "invalid_token"
	OutcomeUnknownUser   = "unknown_subject"
	OutcomeStoreError    = "store_error"
	OutcomeRejected      = "rejected"
)

// Coordinator operation results.
const (
	ResultSuccess        = "success"
	ResultInvalidInput   = "invalid_input"
	ResultDuplicate      = "duplicate"
	ResultBadCredentials = "bad_credentials"
	ResultForbidden      = "forbidden"
	ResultNotFound       = "not_found"
	ResultError          = "error"
)

type Metrics struct {
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	AuthzDecisionsTotal *prometheus.CounterVec
	AccountOpsTotal     *prometheus.CounterVec
	TokensIssuedTotal   prometheus.Counter

	OutboxDeliveriesTotal *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewMetrics creates all collectors and registers them with registry.
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gatekeeper_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gatekeeper_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		AuthzDecisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gatekeeper_authz_decisions_total",
				Help: "Authorization filter and policy outcomes",
			},
			[]string{"transport", "outcome"},
		),
		AccountOpsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gatekeeper_account_operations_total",
				Help: "Account operations by result",
			},
			[]string{"operation", "result"},
		),
		TokensIssuedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "gatekeeper_tokens_issued_total",
				Help: "Total number of signed tokens issued",
			},
		),
		OutboxDeliveriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gatekeeper_outbox_deliveries_total",
				Help: "Cleanup notification delivery attempts",
			},
			[]string{"result"},
		),
		registry: registry,
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.AuthzDecisionsTotal,
		m.AccountOpsTotal,
		m.TokensIssuedTotal,
		m.OutboxDeliveriesTotal,
	)

	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) RecordHTTPRequest(method, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

func (m *Metrics) RecordAuthz(transport, outcome string) {
	if m == nil {
		return
	}
	m.AuthzDecisionsTotal.WithLabelValues(transport, outcome).Inc()
}

func (m *Metrics) RecordAccountOp(operation, result string) {
	if m == nil {
		return
	}
	m.AccountOpsTotal.WithLabelValues(operation, result).Inc()
}

func (m *Metrics) RecordTokenIssued() {
	if m == nil {
		return
	}
	m.TokensIssuedTotal.Inc()
}

func (m *Metrics) RecordDelivery(result string) {
	if m == nil {
		return
	}
	m.OutboxDeliveriesTotal.WithLabelValues(result).Inc()
}
