package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds runtime settings for the gatekeeper CLI.
type Config struct {
	ServerURL      string        `env:"GATEKEEPER_SERVER_URL"`
	Token          string        `env:"GATEKEEPER_TOKEN"`
	RequestTimeout time.Duration `env:"GATEKEEPER_TIMEOUT"`
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerURL = "http://127.0.0.1:8080"
	c.Token = ""
	c.RequestTimeout = 10 * time.Second
}

// LoadConfig applies defaults, JSON, environment and flags, in that order.
func LoadConfig() (*Config, error) {
	return load(os.Args[1:])
}

func load(args []string) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()
	if err := parseJson(cfg, args); err != nil {
		return nil, err
	}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := parseFlags(cfg, args); err != nil {
		return nil, err
	}
	return cfg, nil
}
