package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg, err := Load(nil)
	require.NoError(t, err)

	assert.Equal(t, 5000, cfg.Port)
	assert.Equal(t, "*", cfg.AllowedOrigin)
	assert.Equal(t, 500*time.Millisecond, cfg.DebounceDelay)
	assert.Equal(t, 10, cfg.TailSize)
	assert.Equal(t, 30*time.Minute, cfg.IdleEviction)
	assert.Equal(t, 30*time.Second, cfg.ShutdownDrain)
	assert.Equal(t, "file", cfg.StoreBackend)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("PORT", "8080")
	t.Setenv("DEBOUNCE_DELAY_MS", "250")
	t.Setenv("TAIL_SIZE", "20")
	t.Setenv("STORE_BACKEND", "redis")
	t.Setenv("ALLOWED_ORIGIN", "https://editor.example.com")

	cfg, err := Load(nil)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, 250*time.Millisecond, cfg.DebounceDelay)
	assert.Equal(t, 20, cfg.TailSize)
	assert.Equal(t, "redis", cfg.StoreBackend)
	assert.Equal(t, "https://editor.example.com", cfg.AllowedOrigin)
}

func TestFlagsWinOverEnvironment(t *testing.T) {
	t.Setenv("PORT", "8080")

	cfg, err := Load([]string{"-port", "9000", "-store", "mongo"})
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.Port)
	assert.Equal(t, "mongo", cfg.StoreBackend)
}

func TestMalformedEnvFallsBack(t *testing.T) {
	t.Setenv("PORT", "not-a-number")

	cfg, err := Load(nil)
	require.NoError(t, err)
	assert.Equal(t, 5000, cfg.Port)
}

func TestValidation(t *testing.T) {
	_, err := Load([]string{"-port", "0"})
	assert.Error(t, err)

	_, err = Load([]string{"-store", "cassandra"})
	assert.Error(t, err)

	_, err = Load([]string{"-tail-size", "0"})
	assert.Error(t, err)
}
