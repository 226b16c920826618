// Package common contains shared constants and sentinel errors used across
// gatekeeper components.
package common

const (
	// AuthorizationHeaderName is the HTTP header (and lower-cased gRPC metadata
	// key) that carries the bearer token.
	AuthorizationHeaderName = "Authorization"

	// BearerPrefix is the literal prefix expected in front of the token.
	BearerPrefix = "Bearer "

	// BearerScheme is the challenge scheme announced on 401 responses.
	BearerScheme = "Bearer"
)
