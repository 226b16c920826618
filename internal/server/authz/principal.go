// Package authz turns bearer tokens into request principals and decides
// which routes may be reached without one.
package authz

import (
	"context"
	"slices"

	"github.com/dmitrijs2005/gatekeeper/internal/server/models"
)

// Principal is the authenticated identity attached to a single request.
type Principal struct {
	Subject     string
	AccountID   string
	Role        models.Role
	Authorities []models.Authority
}

func (p *Principal) HasAuthority(a models.Authority) bool {
	if p == nil {
		return false
	}
	return slices.Contains(p.Authorities, a)
}

type principalKey struct{}

// WithPrincipal returns a child context carrying p. An existing principal is
// never replaced.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	if _, ok := PrincipalFromContext(ctx); ok {
		return ctx
	}
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFromContext returns the principal installed by the filter, if any.
func PrincipalFromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(*Principal)
	return p, ok && p != nil
}

func principalFor(a *models.Account) *Principal {
	return &Principal{
		Subject:     a.Email,
		AccountID:   a.ID,
		Role:        a.Role,
		Authorities: a.Role.Authorities(),
	}
}
