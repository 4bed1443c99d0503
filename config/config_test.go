package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_YAMLThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pano.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 8081
  cors_origins: ["https://pano.example"]
jwt:
  secret: "yaml-secret-0123456789"
presence:
  typing_quiet_period: 3s
notify:
  workers: 2
`), 0o600))

	t.Setenv("PANO_CONFIG", path)
	t.Setenv("NOTIFY_WORKERS", "8")
	t.Setenv("TYPING_QUIET_PERIOD", "1500ms")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8081, cfg.Server.Port)
	assert.Equal(t, []string{"https://pano.example"}, cfg.Server.CORSOrigins)
	assert.Equal(t, "yaml-secret-0123456789", cfg.JWT.Secret)
	assert.Equal(t, 8, cfg.Notify.Workers, "env overrides yaml")
	assert.Equal(t, 1500*time.Millisecond, cfg.Presence.TypingQuietPeriod)
	assert.Equal(t, 5, cfg.Database.RetryAttempts, "untouched defaults survive")
}

func TestLoad_InvalidEnv(t *testing.T) {
	t.Setenv("PANO_CONFIG", "")
	t.Setenv("JWT_SECRET", "env-secret-0123456789")
	t.Setenv("SERVER_PORT", "not-a-number")

	_, err := Load()
	assert.ErrorContains(t, err, "SERVER_PORT")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"short secret", func(c *Config) { c.JWT.Secret = "short" }, "JWT_SECRET"},
		{"no workers", func(c *Config) { c.Notify.Workers = 0 }, "workers"},
		{"resend without sender", func(c *Config) { c.Push.ResendAPIKey = "re_x" }, "RESEND_FROM_EMAIL"},
		{"negative reconcile", func(c *Config) { c.Reconcile.Interval = -time.Second }, "reconcile"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Defaults()
			c.JWT.Secret = "0123456789abcdef"
			tt.mutate(&c)

			err := c.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}
