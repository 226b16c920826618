// Package common defines shared constants and sentinel errors used across
// server and client layers of gatekeeper. Callers should use errors.Is to
// match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Service-level errors.
	ErrorForbidden = errors.New("forbidden")

	// Account errors.
	ErrorDuplicateAccount   = errors.New("account already exists")
	ErrorAccountNotFound    = errors.New("account not found")
	ErrorInvalidCredentials = errors.New("invalid credentials")
	ErrorInvalidInput       = errors.New("invalid input")

	// Token errors.
	ErrMalformedToken = errors.New("malformed token")
)

// CredentialsIncorrect is the only message ever shown to a caller whose
// authentication failed, whatever the internal reason.
const CredentialsIncorrect = "credentials incorrect"

// IsBadCredentials reports whether err is one of the authentication failures
// that must be presented to the caller as CredentialsIncorrect.
func IsBadCredentials(err error) bool {
	return errors.Is(err, ErrorAccountNotFound) || errors.Is(err, ErrorInvalidCredentials)
}
