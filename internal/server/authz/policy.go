package authz

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/dmitrijs2005/gatekeeper/internal/common"
)

// Access classifies a route.
type Access int

const (
	Protected Access = iota
	Public
)

func (a Access) String() string {
	if a == Public {
		return "public"
	}
	return "protected"
}

// Rule binds a route pattern to an access level. A pattern ending in "/**"
// matches the prefix and everything below it; any other pattern is matched
// with path.Match, so plain paths match exactly.
type Rule struct {
	Pattern string
	Access  Access
}

// Policy is a static route table. Routes matching no rule are Protected.
type Policy struct {
	realm string
	rules []Rule
}

func NewPolicy(realm string, rules ...Rule) *Policy {
	return &Policy{realm: realm, rules: append([]Rule(nil), rules...)}
}

// AccessFor returns the access level of the first rule matching route.
func (p *Policy) AccessFor(route string) Access {
	for _, r := range p.rules {
		if matches(r.Pattern, route) {
			return r.Access
		}
	}
	return Protected
}

// Permits reports whether the request may proceed to its handler.
func (p *Policy) Permits(ctx context.Context, route string) bool {
	if p.AccessFor(route) == Public {
		return true
	}
	_, ok := PrincipalFromContext(ctx)
	return ok
}

// Challenge is the WWW-Authenticate value sent with a rejection.
func (p *Policy) Challenge() string {
	return fmt.Sprintf("%s realm=%q", common.BearerScheme, p.realm)
}

func matches(pattern, route string) bool {
	if prefix, ok := strings.CutSuffix(pattern, "/**"); ok {
		return route == prefix || strings.HasPrefix(route, prefix+"/")
	}
	ok, err := path.Match(pattern, route)
	return err == nil && ok
}
