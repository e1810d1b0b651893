// Package config handles configuration for the development server,
// including defaults, a TOML overlay, and command-line flags.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Config holds runtime settings for the development server.
//
// Fields:
//   - Addr: HTTP bind address.
//   - BasePath: prefix every API route is mounted under.
//   - SecretKey: HMAC secret for signing JWTs (HS256). Do not use test defaults in prod.
//   - AccessTokenValidityDuration / RefreshTokenValidityDuration: token lifetimes.
//   - CookieName: session cookie set by create-session.
//   - RequireEmailVerification: refuse logins until the account is verified.
//   - PingInterval: keep-alive period of the notes event stream.
//   - RateLimit / RateBurst: per-user token bucket; zero disables limiting.
//   - DatabaseDSN: SQLite database for accounts; empty keeps them in memory.
type Config struct {
	Addr                         string
	DatabaseDSN                  string
	BasePath                     string
	SecretKey                    string
	AccessTokenValidityDuration  time.Duration
	RefreshTokenValidityDuration time.Duration
	CookieName                   string
	RequireEmailVerification     bool
	PingInterval                 time.Duration
	RateLimit                    float64
	RateBurst                    int
	ShutdownTimeout              time.Duration
	LogLevel                     string
	LogFormat                    string
}

// LoadDefaults populates Config with development defaults.
// NOTE: These values are insecure for production and should be overridden.
func (c *Config) LoadDefaults() {
	c.Addr = ":8080"
	c.BasePath = "/api"
	c.SecretKey = "secretKey"
	c.AccessTokenValidityDuration = time.Hour
	c.RefreshTokenValidityDuration = 24 * time.Hour
	c.CookieName = "auth-token"
	c.RequireEmailVerification = false
	c.PingInterval = 30 * time.Second
	c.RateLimit = 20
	c.RateBurst = 40
	c.ShutdownTimeout = 5 * time.Second
	c.LogLevel = "info"
	c.LogFormat = "json"
}

// Validate rejects settings the server cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Addr == "" {
		errs = append(errs, errors.New("addr is empty"))
	}
	if c.BasePath != "" && !strings.HasPrefix(c.BasePath, "/") {
		errs = append(errs, fmt.Errorf("base path %q must start with /", c.BasePath))
	}
	if c.SecretKey == "" {
		errs = append(errs, errors.New("secret key is empty"))
	}
	if c.AccessTokenValidityDuration <= 0 {
		errs = append(errs, errors.New("access token validity must be positive"))
	}
	if c.RefreshTokenValidityDuration <= 0 {
		errs = append(errs, errors.New("refresh token validity must be positive"))
	}
	if c.PingInterval <= 0 {
		errs = append(errs, errors.New("ping interval must be positive"))
	}
	if c.RateLimit < 0 || c.RateBurst < 0 {
		errs = append(errs, errors.New("rate limit settings must not be negative"))
	}
	return errors.Join(errs...)
}

// LoadConfig builds a Config by applying defaults, then overlaying values
// from an optional TOML file (-c path) and finally from command-line flags.
func LoadConfig(args []string) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()
	if err := parseTOML(cfg, args); err != nil {
		return nil, err
	}
	if err := parseFlags(cfg, args); err != nil {
		return nil, fmt.Errorf("parse flags: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
