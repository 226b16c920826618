package config

import (
	"flag"
	"fmt"
	"time"

	"github.com/dmitrijs2005/gatekeeper/internal/flagx"
)

// Flags lists every flag the CLI understands, including -c/-config.
var Flags = []string{"-a", "-t", "-w", "-c", "-config"}

// parseFlags populates Config fields from command-line flags.
//
//	-a string   base URL of the HTTP API
//	-t string   bearer token
//	-w int      request timeout in seconds
func parseFlags(cfg *Config, args []string) error {
	args = flagx.FilterArgs(args, []string{"-a", "-t", "-w"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.ServerURL, "a", cfg.ServerURL, "base URL of the gatekeeper API")
	fs.StringVar(&cfg.Token, "t", cfg.Token, "bearer token")
	timeout := fs.Int("w", int(cfg.RequestTimeout.Seconds()), "request timeout (in seconds)")

	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("parse flags: %w", err)
	}

	cfg.RequestTimeout = time.Duration(*timeout) * time.Second
	return nil
}
