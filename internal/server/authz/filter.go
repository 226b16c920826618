package authz

import (
	"context"
	"errors"
	"strings"

	"github.com/dmitrijs2005/gatekeeper/internal/common"
	"github.com/dmitrijs2005/gatekeeper/internal/logging"
	"github.com/dmitrijs2005/gatekeeper/internal/server/metrics"
	"github.com/dmitrijs2005/gatekeeper/internal/server/models"
)

// TokenVerifier is the part of auth.TokenService the filter relies on.
type TokenVerifier interface {
	SubjectOf(token string) (string, error)
	Verify(token, expectedSubject string) bool
}

// AccountLookup loads the active account named by a token subject.
type AccountLookup interface {
	FindActiveByEmail(ctx context.Context, email string) (*models.Account, error)
}

// Filter runs once per inbound request and installs a Principal when the
// request carries a valid bearer token for an active account. It never
// rejects a request: that is the Policy's job.
type Filter struct {
	transport string
	tokens    TokenVerifier
	accounts  AccountLookup
	logger    logging.Logger
	metrics   *metrics.Metrics
}

func NewFilter(transport string, tokens TokenVerifier, accounts AccountLookup, logger logging.Logger, m *metrics.Metrics) *Filter {
	return &Filter{
		transport: transport,
		tokens:    tokens,
		accounts:  accounts,
		logger:    logger.With("module", "authz", "transport", transport),
		metrics:   m,
	}
}

// Authorize inspects the raw Authorization header value and returns ctx,
// possibly extended with a Principal.
func (f *Filter) Authorize(ctx context.Context, header string) context.Context {
	if !strings.HasPrefix(header, common.BearerPrefix) {
		f.metrics.RecordAuthz(f.transport, metrics.OutcomeAnonymous)
		return ctx
	}
	token := header[len(common.BearerPrefix):]

	subject, err := f.tokens.SubjectOf(token)
	if err != nil {
		f.logger.Debug(ctx, "bearer token rejected", "error", err)
		f.metrics.RecordAuthz(f.transport, metrics.OutcomeInvalidToken)
		return ctx
	}

	if _, ok := PrincipalFromContext(ctx); ok {
		return ctx
	}

	account, err := f.accounts.FindActiveByEmail(ctx, subject)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			f.logger.Debug(ctx, "token subject has no active account", "subject", subject)
			f.metrics.RecordAuthz(f.transport, metrics.OutcomeUnknownUser)
		} else {
			f.logger.Error(ctx, "account lookup failed", "subject", subject, "error", err)
			f.metrics.RecordAuthz(f.transport, metrics.OutcomeStoreError)
		}
		return ctx
	}

	if !f.tokens.Verify(token, account.Email) {
		f.logger.Debug(ctx, "bearer token failed verification", "subject", subject)
		f.metrics.RecordAuthz(f.transport, metrics.OutcomeInvalidToken)
		return ctx
	}

	f.metrics.RecordAuthz(f.transport, metrics.OutcomeAuthenticated)
	return WithPrincipal(ctx, principalFor(account))
}
