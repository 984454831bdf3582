package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, EnvDevelopment, cfg.Env)
	assert.Equal(t, "/api/v1", cfg.APIPrefix)
	assert.Equal(t, 24*time.Hour, cfg.JWT.Expiration)
	assert.Equal(t, "@every 10m", cfg.Certificates.ReconcileSchedule)
	assert.False(t, cfg.Telemetry.Enabled)
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("ALLOWED_ORIGINS", "http://localhost:3000, https://learnify.app ,")
	t.Setenv("CACHE_TTL", "not-a-duration")
	t.Setenv("OTEL_SAMPLER_RATIO", "4")
	t.Setenv("OTEL_EXPORTER_OTLP_HEADERS", "x-api-key=abc,broken,=empty")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, []string{"http://localhost:3000", "https://learnify.app"}, cfg.CORS.AllowedOrigins)
	assert.Equal(t, 10*time.Minute, cfg.Cache.TTL)
	assert.Equal(t, 1.0, cfg.Telemetry.SampleRatio)
	assert.Equal(t, map[string]string{"x-api-key": "abc"}, cfg.Telemetry.Headers)
}
