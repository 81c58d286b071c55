package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, EnvDevelopment, cfg.Env)
	assert.Equal(t, "/api/v1", cfg.APIPrefix)
	assert.Equal(t, StorageDriverLocal, cfg.Evidence.Driver)
	assert.Equal(t, 6, cfg.Auth.MinPasswordLength)
	assert.Equal(t, 8*time.Hour, cfg.JWT.Expiration)
	assert.False(t, cfg.Redis.Enabled)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("ENV", EnvProduction)
	t.Setenv("JWT_EXPIRATION", "30m")
	t.Setenv("EVIDENCE_DRIVER", "S3")
	t.Setenv("EVIDENCE_ALLOWED_MIME_TYPES", "image/png, application/pdf ,")
	t.Setenv("REDIS_ENABLED", "true")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, EnvProduction, cfg.Env)
	assert.Equal(t, 30*time.Minute, cfg.JWT.Expiration)
	assert.Equal(t, StorageDriverS3, cfg.Evidence.Driver)
	assert.Equal(t, []string{"image/png", "application/pdf"}, cfg.Evidence.AllowedMIMEs)
	assert.True(t, cfg.Redis.Enabled)
}

func TestParseDurationFallback(t *testing.T) {
	assert.Equal(t, time.Second, parseDuration("", time.Second))
	assert.Equal(t, time.Second, parseDuration("soon", time.Second))
	assert.Equal(t, 2*time.Minute, parseDuration("2m", time.Second))
}
