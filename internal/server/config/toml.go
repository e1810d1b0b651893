package config

import (
	"fmt"
	"os"
	"time"

	toml "github.com/pelletier/go-toml/v2"

	"github.com/dmitrijs2005/studyctl/internal/flagx"
)

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

type fileConfig struct {
	Addr                     *string   `toml:"addr"`
	BasePath                 *string   `toml:"base_path"`
	DatabaseDSN              *string   `toml:"database_dsn"`
	SecretKey                *string   `toml:"secret_key"`
	AccessTokenValidity      *duration `toml:"access_token_validity"`
	RefreshTokenValidity     *duration `toml:"refresh_token_validity"`
	CookieName               *string   `toml:"cookie_name"`
	RequireEmailVerification *bool     `toml:"require_email_verification"`
	PingInterval             *duration `toml:"ping_interval"`
	RateLimit                *float64  `toml:"rate_limit"`
	RateBurst                *int      `toml:"rate_burst"`
	ShutdownTimeout          *duration `toml:"shutdown_timeout"`
	LogLevel                 *string   `toml:"log_level"`
	LogFormat                *string   `toml:"log_format"`
}

// parseTOML overlays config with the file named by -c / -config in args.
func parseTOML(config *Config, args []string) error {
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
	if err := toml.NewDecoder(f).DisallowUnknownFields().Decode(&fc); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	set(&config.Addr, fc.Addr)
	set(&config.BasePath, fc.BasePath)
	set(&config.DatabaseDSN, fc.DatabaseDSN)
	set(&config.SecretKey, fc.SecretKey)
	setDuration(&config.AccessTokenValidityDuration, fc.AccessTokenValidity)
	setDuration(&config.RefreshTokenValidityDuration, fc.RefreshTokenValidity)
	set(&config.CookieName, fc.CookieName)
	set(&config.RequireEmailVerification, fc.RequireEmailVerification)
	setDuration(&config.PingInterval, fc.PingInterval)
	set(&config.RateLimit, fc.RateLimit)
	set(&config.RateBurst, fc.RateBurst)
	setDuration(&config.ShutdownTimeout, fc.ShutdownTimeout)
	set(&config.LogLevel, fc.LogLevel)
	set(&config.LogFormat, fc.LogFormat)
	return nil
}

func set[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}

func setDuration(dst *time.Duration, v *duration) {
	if v != nil {
		*dst = v.Duration
	}
}
