package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("ERP_BASE_URL", "https://b1.example.test:50000")
	t.Setenv("ERP_USERNAME", "manager")
	t.Setenv("ERP_PASSWORD", "secret")
}

func TestLoadConfigDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := LoadConfig()
	require.NoError(t, err)

	require.Equal(t, ":8080", cfg.AppAddr)
	require.Equal(t, int32(16), cfg.PGMaxConns)
	require.Equal(t, int32(2), cfg.PGMinConns)
	require.Equal(t, 100, cfg.ValidationChunkSize)
	require.Equal(t, 4, cfg.ValidationConcurrency)
	require.Equal(t, 3, cfg.PostMaxAttempts)
	require.Equal(t, 30*time.Second, cfg.PostRetryBackoff)
	require.Equal(t, 24*time.Hour, cfg.LookupCacheTTL)
	require.False(t, cfg.IsProduction())
}

func TestLoadConfigOverrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("APP_ENV", "production")
	t.Setenv("PG_MAX_CONNS", "32")
	t.Setenv("VALIDATION_CHUNK_SIZE", "50")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	require.True(t, cfg.IsProduction())
	require.Equal(t, int32(32), cfg.PGMaxConns)
	require.Equal(t, 50, cfg.ValidationChunkSize)
}

func TestLoadConfigRejectsBadTuning(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("VALIDATION_CONCURRENCY", "0")

	_, err := LoadConfig()
	require.Error(t, err)
}
