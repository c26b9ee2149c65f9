package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("LOCAL_STORE", "")
	t.Setenv("REMOTE_STORE", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, []string{"*"}, cfg.Server.CORSOrigins)
	assert.Equal(t, BackendMemory, cfg.Storage.Backend)
	assert.Equal(t, BackendMemory, cfg.Remote.Backend)
	assert.Equal(t, 30*time.Second, cfg.Connectivity.ProbeInterval)
	assert.Equal(t, float64(5), cfg.Sync.ReplayRPS)
	assert.False(t, cfg.IsProduction())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("LOCAL_STORE", "Redis")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("REMOTE_STORE", "postgres")
	t.Setenv("DB_DSN", "postgres://localhost/mezmur")
	t.Setenv("PROBE_INTERVAL", "5s")
	t.Setenv("QUEUE_REPLAY_RPS", "2.5")
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example,")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, BackendRedis, cfg.Storage.Backend)
	assert.Equal(t, 3, cfg.Storage.RedisDB)
	assert.Equal(t, 5*time.Second, cfg.Connectivity.ProbeInterval)
	assert.Equal(t, 2.5, cfg.Sync.ReplayRPS)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("REDIS_DB", "x")
	t.Setenv("PROBE_INTERVAL", "soon")
	t.Setenv("QUEUE_REPLAY_RPS", "fast")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 0, cfg.Storage.RedisDB)
	assert.Equal(t, 30*time.Second, cfg.Connectivity.ProbeInterval)
	assert.Equal(t, float64(5), cfg.Sync.ReplayRPS)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			Server:       ServerConfig{Port: "8080"},
			Storage:      StorageConfig{Backend: BackendMemory},
			Remote:       RemoteConfig{Backend: BackendMemory},
			Connectivity: ConnectivityConfig{ProbeInterval: time.Second},
		}
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing port", func(c *Config) { c.Server.Port = "" }},
		{"unknown local store", func(c *Config) { c.Storage.Backend = "etcd" }},
		{"sqlite without path", func(c *Config) { c.Storage.Backend = BackendSQLite }},
		{"unknown remote store", func(c *Config) { c.Remote.Backend = "dynamo" }},
		{"postgres without dsn", func(c *Config) { c.Remote.Backend = BackendPostgres }},
		{"firestore without project", func(c *Config) { c.Remote.Backend = BackendFirestore }},
		{"zero probe interval", func(c *Config) { c.Connectivity.ProbeInterval = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
	assert.NoError(t, base().Validate())
}

func TestLoad_DSNFromParts(t *testing.T) {
	t.Setenv("DB_DSN", "")
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("DB_PORT", "6432")
	t.Setenv("DB_USER", "mezmur")
	t.Setenv("DB_PASSWORD", "secret")
	t.Setenv("DB_NAME", "")
	t.Setenv("DB_SSLMODE", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "host=db.internal port=6432 user=mezmur password=secret dbname=mezmur sslmode=disable", cfg.Remote.DSN)
}

func TestLoad_DSNWinsOverParts(t *testing.T) {
	t.Setenv("DB_DSN", "postgres://localhost/mezmur")
	t.Setenv("DB_HOST", "db.internal")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "postgres://localhost/mezmur", cfg.Remote.DSN)
}
