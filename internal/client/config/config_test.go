package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaults() Config {
	var c Config
	c.LoadDefaults()
	return c
}

func TestLoadDefaults(t *testing.T) {
	c := defaults()

	assert.Equal(t, "http://127.0.0.1:8080/api", c.ServerURL)
	assert.Equal(t, "studyctl.db", c.CachePath)
	assert.Equal(t, 10*time.Minute, c.StaleAfter)
	assert.Equal(t, 5*time.Minute, c.MonitorInterval)
	assert.Equal(t, 3, c.LoginAttempts)
	assert.Equal(t, "/notes/ws", c.PushPath)
	assert.Equal(t, time.Second, c.PushBaseDelay)
	assert.Equal(t, 5, c.PushMaxAttempts)
	assert.Empty(t, c.MetricsAddr)
	assert.NoError(t, c.Validate())
}

func TestLoadConfig_UsesDefaultsWithoutSources(t *testing.T) {
	cfg, err := LoadConfig(nil)
	require.NoError(t, err)

	want := defaults()
	assert.Equal(t, &want, cfg)
}

func TestLoadConfig_Precedence(t *testing.T) {
	path := writeTempTOML(t, `
server_url = "http://file:9000/api"
log_level  = "debug"
`)

	cfg, err := LoadConfig([]string{"-c", path, "-a", "http://flag:9001/api", "whoami"})
	require.NoError(t, err)

	assert.Equal(t, "http://flag:9001/api", cfg.ServerURL, "flags override the file")
	assert.Equal(t, "debug", cfg.LogLevel, "file overrides defaults")
	assert.Equal(t, "studyctl.db", cfg.CachePath, "untouched keys keep defaults")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty server", func(c *Config) { c.ServerURL = "" }},
		{"empty cache path", func(c *Config) { c.CachePath = "" }},
		{"zero timeout", func(c *Config) { c.RequestTimeout = 0 }},
		{"zero stale window", func(c *Config) { c.StaleAfter = 0 }},
		{"zero login attempts", func(c *Config) { c.LoginAttempts = 0 }},
		{"negative push attempts", func(c *Config) { c.PushMaxAttempts = -1 }},
		{"negative rate", func(c *Config) { c.RateLimit = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := defaults()
			tt.mutate(&c)
			assert.Error(t, c.Validate())
		})
	}
}

func TestLoadConfig_RejectsInvalidResult(t *testing.T) {
	path := writeTempTOML(t, `login_attempts = 0`)
	_, err := LoadConfig([]string{"-c", path})
	assert.ErrorContains(t, err, "login_attempts")
}

func writeTempTOML(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "studyctl.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}
