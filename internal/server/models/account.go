package models

import "time"

// Role is the closed set of roles an account can hold.
type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

// Authority is a capability granted by a role.
type Authority string

const (
	AuthorityReadProfile    Authority = "profile:read"
	AuthorityDeactivateSelf Authority = "account:deactivate:self"
	AuthorityDeactivateAny  Authority = "account:deactivate:any"
)

var roleAuthorities = map[Role][]Authority{
	RoleUser:  {AuthorityReadProfile, AuthorityDeactivateSelf},
	RoleAdmin: {AuthorityReadProfile, AuthorityDeactivateSelf, AuthorityDeactivateAny},
}

// ParseRole maps a stored or claimed role name onto the closed set.
func ParseRole(s string) (Role, bool) {
	r := Role(s)
	_, ok := roleAuthorities[r]
	return r, ok
}

// Valid reports whether r belongs to the closed role set.
func (r Role) Valid() bool {
	_, ok := roleAuthorities[r]
	return ok
}

// Authorities returns a copy of the capabilities granted to r. Unknown roles
// grant nothing.
func (r Role) Authorities() []Authority {
	granted := roleAuthorities[r]
	out := make([]Authority, len(granted))
	copy(out, granted)
	return out
}

// Account is the identity record owned by the credential store. Email is the
// login subject and is unique among active accounts.
type Account struct {
	ID           string
	Username     string
	FirstName    string
	LastName     string
	PhoneNumber  string
	Email        string
	PasswordHash string
	Role         Role
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
