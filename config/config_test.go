package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, DriverMongo, cfg.StoreDriver)
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, 5*time.Minute, cfg.Analytics.MaxStaleness)
	assert.Equal(t, 8, cfg.Sync.MaxAttempts)
	assert.Equal(t, uint32(3), cfg.Breaker.ConsecutiveFailures)
	assert.False(t, cfg.Cassandra.Enabled)
	assert.Equal(t, []string{"127.0.0.1"}, cfg.Cassandra.Hosts)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("STORE_DRIVER", DriverMemory)
	t.Setenv("SYNC_CONCURRENCY", "9")
	t.Setenv("SYNC_BASE_BACKOFF", "250ms")
	t.Setenv("CASS_DB", "10.0.0.1, 10.0.0.2,")
	t.Setenv("POSTGRES_AUTO_MIGRATE", "false")
	t.Setenv("SERVER_PORT", "9000")
	t.Setenv("SYNC_BATCH_SIZE", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, DriverMemory, cfg.StoreDriver)
	assert.Equal(t, 9, cfg.Sync.Concurrency)
	assert.Equal(t, 250*time.Millisecond, cfg.Sync.BaseBackoff)
	assert.Equal(t, 50, cfg.Sync.BatchSize)
	assert.Equal(t, []string{"10.0.0.1", "10.0.0.2"}, cfg.Cassandra.Hosts)
	assert.False(t, cfg.Postgres.AutoMigrate)
	assert.Equal(t, "9000", cfg.Server.Port)
}

func TestLoad_Invalid(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	t.Setenv("STORE_DRIVER", "sqlite")
	t.Setenv("SYNC_MAX_ATTEMPTS", "0")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_SECRET is not set")
	assert.Contains(t, err.Error(), "STORE_DRIVER")
	assert.Contains(t, err.Error(), "SYNC_MAX_ATTEMPTS")
}

func TestPostgresConfig_DSN(t *testing.T) {
	p := PostgresConfig{Host: "db", Port: "5433", User: "u", Password: "p", DBName: "analytics", SSLMode: "disable", TimeZone: "UTC"}
	dsn := p.DSN()
	assert.Contains(t, dsn, "host=db")
	assert.Contains(t, dsn, "port=5433")
	assert.Contains(t, dsn, "dbname=analytics")
}
