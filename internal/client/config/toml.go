package config

import (
	"fmt"
	"os"
	"time"

	toml "github.com/pelletier/go-toml/v2"

	"github.com/dmitrijs2005/studyctl/internal/flagx"
)

// duration lets TOML carry intervals as "10s"-style strings.
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// fileConfig is the on-disk shape. Pointers distinguish a key that is
// absent from one set to its zero value.
type fileConfig struct {
	ServerURL      *string   `toml:"server_url"`
	CachePath      *string   `toml:"cache_path"`
	RequestTimeout *duration `toml:"request_timeout"`
	LogLevel       *string   `toml:"log_level"`
	LogFormat      *string   `toml:"log_format"`

	StaleAfter        *duration `toml:"stale_after"`
	MonitorInterval   *duration `toml:"monitor_interval"`
	LoginAttempts     *int      `toml:"login_attempts"`
	LoginRetryDelay   *duration `toml:"login_retry_delay"`
	SessionAttempts   *int      `toml:"session_attempts"`
	SessionRetryDelay *duration `toml:"session_retry_delay"`

	PushPath        *string   `toml:"push_path"`
	PushBaseDelay   *duration `toml:"push_base_delay"`
	PushMaxAttempts *int      `toml:"push_max_attempts"`

	RateLimit *float64 `toml:"rate_limit"`
	RateBurst *int     `toml:"rate_burst"`

	MetricsAddr *string `toml:"metrics_addr"`
}

// parseTOML overlays cfg with the file named by -c / -config in args.
// Without that flag nothing is loaded. Unknown keys are rejected so a typo
// does not silently fall back to a default.
func parseTOML(cfg *Config, args []string) error {
	path := flagx.ConfigPath(args)
	if path == "" {
		return nil
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	var fc fileConfig
	dec := toml.NewDecoder(f).DisallowUnknownFields()
	if err := dec.Decode(&fc); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	fc.apply(cfg)
	return nil
}

func (fc *fileConfig) apply(cfg *Config) {
	setString(&cfg.ServerURL, fc.ServerURL)
	setString(&cfg.CachePath, fc.CachePath)
	setDuration(&cfg.RequestTimeout, fc.RequestTimeout)
	setString(&cfg.LogLevel, fc.LogLevel)
	setString(&cfg.LogFormat, fc.LogFormat)

	setDuration(&cfg.StaleAfter, fc.StaleAfter)
	setDuration(&cfg.MonitorInterval, fc.MonitorInterval)
	setInt(&cfg.LoginAttempts, fc.LoginAttempts)
	setDuration(&cfg.LoginRetryDelay, fc.LoginRetryDelay)
	setInt(&cfg.SessionAttempts, fc.SessionAttempts)
	setDuration(&cfg.SessionRetryDelay, fc.SessionRetryDelay)

	setString(&cfg.PushPath, fc.PushPath)
	setDuration(&cfg.PushBaseDelay, fc.PushBaseDelay)
	setInt(&cfg.PushMaxAttempts, fc.PushMaxAttempts)

	if fc.RateLimit != nil {
		cfg.RateLimit = *fc.RateLimit
	}
	setInt(&cfg.RateBurst, fc.RateBurst)

	setString(&cfg.MetricsAddr, fc.MetricsAddr)
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

func setDuration(dst *time.Duration, v *duration) {
	if v != nil {
		*dst = v.Duration
	}
}
