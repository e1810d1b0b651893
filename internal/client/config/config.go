package config

import (
	"errors"
	"fmt"
	"os"
	"time"
)

// Config holds runtime settings for the studyctl CLI.
type Config struct {
	ServerURL      string
	CachePath      string
	RequestTimeout time.Duration
	LogLevel       string
	LogFormat      string

	// StaleAfter bounds how old a cached credential may be when it stands
	// in for an unreachable remote.
	StaleAfter        time.Duration
	MonitorInterval   time.Duration
	LoginAttempts     int
	LoginRetryDelay   time.Duration
	SessionAttempts   int
	SessionRetryDelay time.Duration

	PushPath        string
	PushBaseDelay   time.Duration
	PushMaxAttempts int

	// RateLimit is outbound requests per second; zero disables limiting.
	RateLimit float64
	RateBurst int

	MetricsAddr string
}

// LoadDefaults populates c with defaults suitable for a local dev server.
func (c *Config) LoadDefaults() {
	c.ServerURL = "http://127.0.0.1:8080/api"
	c.CachePath = "studyctl.db"
	c.RequestTimeout = 10 * time.Second
	c.LogLevel = "warn"
	c.LogFormat = "text"

	c.StaleAfter = 10 * time.Minute
	c.MonitorInterval = 5 * time.Minute
	c.LoginAttempts = 3
	c.LoginRetryDelay = time.Second
	c.SessionAttempts = 3
	c.SessionRetryDelay = 500 * time.Millisecond

	c.PushPath = "/notes/ws"
	c.PushBaseDelay = time.Second
	c.PushMaxAttempts = 5

	c.RateLimit = 20
	c.RateBurst = 10

	c.MetricsAddr = ""
}

// Validate reports the first setting that cannot work.
func (c *Config) Validate() error {
	switch {
	case c.ServerURL == "":
		return errors.New("server_url is required")
	case c.CachePath == "":
		return errors.New("cache_path is required")
	case c.RequestTimeout <= 0:
		return errors.New("request_timeout must be positive")
	case c.StaleAfter <= 0:
		return errors.New("stale_after must be positive")
	case c.MonitorInterval <= 0:
		return errors.New("monitor_interval must be positive")
	case c.LoginAttempts < 1 || c.SessionAttempts < 1:
		return errors.New("login_attempts and session_attempts must be at least 1")
	case c.PushMaxAttempts < 0:
		return errors.New("push_max_attempts must not be negative")
	case c.RateLimit < 0 || c.RateBurst < 0:
		return errors.New("rate_limit and rate_burst must not be negative")
	}
	return nil
}

// LoadConfig constructs a Config from args (without the program name):
// defaults first, then the TOML file named by -c, then flags. Later sources
// take precedence over earlier ones.
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

// MustLoad is LoadConfig over os.Args for use in main.
func MustLoad() *Config {
	cfg, err := LoadConfig(os.Args[1:])
	if err != nil {
		panic(err)
	}
	return cfg
}
