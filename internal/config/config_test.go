package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"CONFIG_FILE", "PORT", "ALLOWED_ORIGIN", "DATABASE_URL", "REDIS_ADDR", "REDIS_PASSWORD",
		"REDIS_DB", "CATALOG_CACHE_TTL_SECONDS", "AUTH_SECRET", "ADMIN_TOKEN_TTL_MINUTES",
		"ORDER_TOKEN_TTL_MINUTES", "ADMIN_USERNAME", "ADMIN_PASSWORD", "APP_ENV", "COOKIE_SECURE",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadDoesNotInjectWeakAuthDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Empty(t, cfg.AuthSecret)
	assert.Empty(t, cfg.AdminPassword)
	assert.Equal(t, 60, cfg.OrderTokenTTLMinutes)
	assert.True(t, cfg.CookieSecure)
	assert.Equal(t, ":8080", cfg.Address())
}

func TestLoadLayersYAMLUnderEnv(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "arafims.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
port: "9090"
redis_addr: cache:6379
order_token_ttl_minutes: 30
cookie_secure: false
app_env: development
`), 0o600))

	t.Setenv("CONFIG_FILE", path)
	t.Setenv("PORT", "7070")
	t.Setenv("CATALOG_CACHE_TTL_SECONDS", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "7070", cfg.Port)
	assert.Equal(t, "cache:6379", cfg.RedisAddr)
	assert.Equal(t, 30, cfg.OrderTokenTTLMinutes)
	assert.Equal(t, 30, cfg.CatalogCacheTTLSeconds)
	assert.False(t, cfg.CookieSecure)
	assert.True(t, cfg.Development())
}

func TestLoadRejectsBrokenYAML(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("port: [unterminated"), 0o600))
	t.Setenv("CONFIG_FILE", path)

	_, err := Load()
	assert.Error(t, err)
}
