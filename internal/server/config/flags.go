package config

import (
	"flag"
	"fmt"
	"time"

	"github.com/dmitrijs2005/gatekeeper/internal/flagx"
)

// parseFlags populates server Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   HTTP bind address (e.g., ":8080")
//	-g string   gRPC bind address (e.g., ":50051")
//	-d string   PostgreSQL DSN
//	-s string   HMAC secret key
//	-t int      token validity, minutes
//	-k int      bcrypt cost
//	-r string   WWW-Authenticate realm
//	-n string   cleanup notification endpoint
//	-i int      cleanup dispatch interval, seconds
//	-l string   log level
//
// args are filtered with flagx.FilterArgs first, so -c/-config and unknown
// flags do not break parsing.
func parseFlags(config *Config, args []string) error {
	args = flagx.FilterArgs(args, []string{"-a", "-g", "-d", "-s", "-t", "-k", "-r", "-n", "-i", "-l"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddrHTTP, "a", config.EndpointAddrHTTP, "HTTP address and port to run server")
	fs.StringVar(&config.EndpointAddrGRPC, "g", config.EndpointAddrGRPC, "gRPC address and port to run server")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")

	tokenValidity := fs.Int("t", int(config.TokenValidityDuration.Minutes()), "token_validity_duration (in minutes)")

	fs.IntVar(&config.BcryptCost, "k", config.BcryptCost, "bcrypt cost")
	fs.StringVar(&config.Realm, "r", config.Realm, "authentication realm")
	fs.StringVar(&config.CleanupEndpoint, "n", config.CleanupEndpoint, "cleanup notification endpoint")

	cleanupInterval := fs.Int("i", int(config.CleanupInterval.Seconds()), "cleanup_interval (in seconds)")

	fs.StringVar(&config.LogLevel, "l", config.LogLevel, "log level")

	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("parse flags: %w", err)
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "t":
			config.TokenValidityDuration = time.Duration(*tokenValidity) * time.Minute
		case "i":
			config.CleanupInterval = time.Duration(*cleanupInterval) * time.Second
		}
	})
	return nil
}
