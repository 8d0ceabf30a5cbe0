package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 24*time.Hour, cfg.SessionTTL)
	assert.Equal(t, 5*time.Second, cfg.TickInterval)
	assert.Equal(t, 5*time.Second, cfg.DBTimeout)
	assert.Equal(t, "*", cfg.CORSOrigins)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("SESSION_TTL", "1h")
	t.Setenv("METRICS_INTERVAL", "250ms")
	t.Setenv("ADMIN_DOMAIN", "Corp.Example")

	cfg := Load()
	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, time.Hour, cfg.SessionTTL)
	assert.Equal(t, 250*time.Millisecond, cfg.TickInterval)
	assert.Equal(t, "corp.example", cfg.AdminDomain)
}

func TestLoadBadDurationFallsBack(t *testing.T) {
	t.Setenv("SESSION_TTL", "not-a-duration")

	cfg := Load()
	assert.Equal(t, 24*time.Hour, cfg.SessionTTL)
}

func TestDSNPrefersExplicit(t *testing.T) {
	cfg := &Config{PGDSN: "postgres://u:p@db:5432/opsdeck"}
	assert.Equal(t, "postgres://u:p@db:5432/opsdeck", cfg.DSN())
}

func TestDSNAssembled(t *testing.T) {
	cfg := &Config{
		DBHost: "db", DBPort: "5433", DBUser: "ops",
		DBPassword: "secret", DBName: "opsdeck", DBSSLMode: "require",
	}
	dsn := cfg.DSN()
	assert.Contains(t, dsn, "host=db")
	assert.Contains(t, dsn, "port=5433")
	assert.Contains(t, dsn, "sslmode=require")
}
