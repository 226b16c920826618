// Package config loads runtime configuration for the gatekeeper CLI.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file selected via -c or -config.
//  3. Environment: GATEKEEPER_SERVER_URL, GATEKEEPER_TOKEN, GATEKEEPER_TIMEOUT.
//  4. Command-line flags, which override earlier values.
//
// Supported flags
//
//	-a string   base URL of the gatekeeper HTTP API
//	-t string   bearer token for protected commands
//	-w int      request timeout (seconds)
//
// # JSON schema
//
//	{
//	  "server_url": "http://127.0.0.1:8080",
//	  "request_timeout": "10s"
//	}
//
// The token is deliberately not read from the JSON file.
package config
