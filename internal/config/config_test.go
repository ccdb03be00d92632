package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `
app:
  env: dev
server:
  address: ":8080"
  allowed_origins: ["http://localhost:3000"]
database:
  driver: Postgres
  url: postgres://rider@localhost/rider
auth:
  jwt_secret: file-secret
pricing:
  base_fee: 80
  per_km_rate: 30
  min_charge: 100
presence:
  inactivity_timeout: 2m
  city: almaty
ledger:
  retry_attempts: 6
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadFileAndEnv(t *testing.T) {
	t.Setenv("JWT_SECRET", "env-secret")
	t.Setenv("RIDER_LOCATION_INTERVAL", "30s")
	t.Setenv("SERVER_ALLOWED_ORIGINS", "https://a.kz,https://b.kz")
	t.Setenv("RIDER_RETRY_BASE_DELAY", "200ms")

	cfg, err := Load(writeConfig(t, sample))
	require.NoError(t, err)

	assert.True(t, cfg.IsDev())
	assert.Equal(t, ":8080", cfg.Server.Address)
	assert.Equal(t, []string{"https://a.kz", "https://b.kz"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, DriverPostgres, cfg.Database.Driver)
	assert.Equal(t, "env-secret", cfg.Auth.JWTSecret)
	assert.Equal(t, Pricing{BaseFee: 80, PerKMRate: 30, MinCharge: 100}, cfg.Pricing)
	assert.Equal(t, 2*time.Minute, cfg.Presence.InactivityTimeout)
	assert.Equal(t, 30*time.Second, cfg.Presence.LocationInterval)
	assert.Equal(t, "almaty", cfg.Presence.City)
	assert.Equal(t, 6, cfg.Ledger.RetryAttempts)
	assert.Equal(t, 200*time.Millisecond, cfg.Ledger.RetryBaseDelay)

	// untouched keys keep their defaults
	assert.Equal(t, 64, cfg.Events.Buffer)
	assert.Equal(t, time.Minute, cfg.Ledger.ReconcileInterval)
	assert.Equal(t, 5*time.Second, cfg.Ledger.RetryMaxDelay)
	assert.Equal(t, "statements", cfg.Statement.Folder)
}

func TestLoadWithoutFile(t *testing.T) {
	t.Setenv("DB_DRIVER", "memory")
	t.Setenv("JWT_SECRET", "s")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, DriverMemory, cfg.Database.Driver)
	assert.Equal(t, 5*time.Minute, cfg.Presence.InactivityTimeout)
}

func TestValidate(t *testing.T) {
	base := func() Config {
		c := Default()
		c.Database.Driver = DriverMemory
		c.Auth.JWTSecret = "s"
		return c
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		msg    string
	}{
		{"unknown driver", func(c *Config) { c.Database.Driver = "oracle" }, "unknown database driver"},
		{"missing url", func(c *Config) { c.Database.Driver = DriverMySQL }, "database url"},
		{"missing secret", func(c *Config) { c.Auth.JWTSecret = "" }, "JWT_SECRET"},
		{"negative fee", func(c *Config) { c.Pricing.MinCharge = -1 }, "pricing"},
		{"zero timeout", func(c *Config) { c.Presence.InactivityTimeout = 0 }, "inactivity_timeout"},
		{"zero buffer", func(c *Config) { c.Events.Buffer = 0 }, "buffer"},
		{"no retry attempts", func(c *Config) { c.Ledger.RetryAttempts = 0 }, "retry_attempts"},
		{"negative retry delay", func(c *Config) { c.Ledger.RetryBaseDelay = -time.Second }, "retry delays"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base()
			tt.mutate(&c)
			assert.ErrorContains(t, c.Validate(), tt.msg)
		})
	}

	c := base()
	assert.NoError(t, c.Validate())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
