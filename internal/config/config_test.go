package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	t.Setenv(EnvGoogleKey, "")
	t.Setenv(EnvDatabase, "")
	t.Setenv(EnvPort, "")
	path := writeConfig(t, `{
		"databases": {"sqlite3": {"dsn": "data/shop.db"}},
		"providers": {"gemini": {"model": "gemini-1.5-flash", "api_key": "k"}}
	}`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, DefaultServerAddress, cfg.BasicConfig.ServerAddress)
	assert.Equal(t, []string{"*"}, cfg.BasicConfig.AllowedOrigins)
	assert.Equal(t, DefaultDatabase, cfg.Database)
	assert.Equal(t, DefaultProvider, cfg.Agent.Provider)
	assert.Equal(t, DefaultMaxAttempts, cfg.Agent.MaxAttempts)
	assert.Equal(t, DefaultMaxSteps, cfg.Agent.MaxSteps)
	assert.Equal(t, DefaultDimensions, cfg.Embedding.Dimensions)
	assert.Equal(t, DefaultEmbedModel, cfg.Embedding.Model)
	require.NotNil(t, cfg.Agent.Temperature)
	assert.Zero(t, *cfg.Agent.Temperature)
	assert.Equal(t, filepath.Join(filepath.Dir(path), "data/shop.db"), cfg.Databases["sqlite3"].DSN)
	assert.False(t, cfg.RedisEnabled())
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv(EnvGoogleKey, "env-key")
	t.Setenv(EnvDatabase, "mysql")
	t.Setenv(EnvPort, "9090")
	path := writeConfig(t, `{
		"databases": {"mysql": {"host": "127.0.0.1", "port": 3306}},
		"providers": {"gemini": {"model": "gemini-1.5-flash"}},
		"redis": {"host": "127.0.0.1"}
	}`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "mysql", cfg.Database)
	assert.Equal(t, ":9090", cfg.BasicConfig.ServerAddress)
	assert.Equal(t, "env-key", cfg.Providers["gemini"].APIKey)
	assert.Equal(t, "env-key", cfg.Embedding.APIKey)
	assert.True(t, cfg.RedisEnabled())
	assert.Equal(t, DefaultRedisTTL, cfg.Redis.TTLMinutes)
}

func TestLoadRejectsUnknownProvider(t *testing.T) {
	t.Setenv(EnvDatabase, "")
	path := writeConfig(t, `{
		"databases": {"sqlite3": {"dsn": ":memory:"}},
		"providers": {"openai": {"model": "gpt-4o-mini"}},
		"agent": {"provider": "claude"}
	}`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "provider claude not configured")
}
