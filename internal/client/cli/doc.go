// Package cli implements the gatekeeper command-line client.
//
// Commands:
//
//	register          prompt for profile fields and a password, create the account
//	login             prompt for email and password, print a bearer token
//	whoami            show the principal bound to the configured token
//	delete <email>    deactivate an account (self, or any account as ADMIN)
//
// The token for protected commands comes from -t or GATEKEEPER_TOKEN.
package cli
