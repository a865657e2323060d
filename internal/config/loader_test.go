package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func isolateConfig(t *testing.T) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("XDG_DATA_HOME", t.TempDir())
	SetConfigFile("")
	t.Cleanup(func() { SetConfigFile("") })
}

func TestLoad(t *testing.T) {
	ctx := context.Background()

	// Test basic config loading with defaults
	t.Run("LoadDefaults", func(t *testing.T) {
		isolateConfig(t)

		cfg, err := Load(ctx)
		require.NoError(t, err)
		require.NotNil(t, cfg)

		// Verify API defaults
		assert.Equal(t, "https://api.mapbox.com", cfg.API.BaseURL)
		assert.Equal(t, "https://events.mapbox.com/events/v2", cfg.API.EventsURL)
		assert.Equal(t, "", cfg.API.AccessToken)
		assert.True(t, cfg.API.RequireAccessToken)

		// Verify device defaults
		assert.Equal(t, 1.0, cfg.Device.PixelRatio)
		assert.False(t, cfg.Device.SupportsWebP)

		// Verify turnstile defaults
		assert.True(t, cfg.Turnstile.Enabled)
		assert.Equal(t, 10*time.Second, cfg.Turnstile.Timeout)
		assert.Equal(t, "cartolens", cfg.SDK.Identifier)

		// Verify server defaults
		assert.Equal(t, "localhost", cfg.Server.Host)
		assert.Equal(t, 8080, cfg.Server.Port)
		assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
		assert.Equal(t, 120*time.Second, cfg.Server.IdleTimeout)
		assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)

		// Verify store defaults
		assert.Equal(t, "libsql", cfg.Store.Driver)
		assert.Equal(t, "cartolens.db", filepath.Base(cfg.Store.Path))

		// Verify logging, metrics and health defaults
		assert.Equal(t, "info", cfg.Logging.Level)
		assert.True(t, cfg.Metrics.Enabled)
		assert.Equal(t, 9090, cfg.Metrics.Port)
		assert.True(t, cfg.Health.Enabled)
	})

	// Test runtime overrides
	t.Run("RuntimeOverrides", func(t *testing.T) {
		isolateConfig(t)

		overrides := map[string]any{
			"api": map[string]any{
				"access_token": "pk.override",
			},
			"device": map[string]any{
				"pixel_ratio":   2.0,
				"supports_webp": true,
			},
		}

		cfg, err := Load(ctx, overrides)
		require.NoError(t, err)

		assert.Equal(t, "pk.override", cfg.API.AccessToken)
		assert.Equal(t, 2.0, cfg.Device.PixelRatio)
		assert.True(t, cfg.Device.SupportsWebP)

		// Verify non-overridden values remain default
		assert.Equal(t, "https://api.mapbox.com", cfg.API.BaseURL)
	})

	// Test environment variable overrides
	t.Run("EnvOverrides", func(t *testing.T) {
		isolateConfig(t)
		t.Setenv("CARTOLENS_ACCESS_TOKEN", "pk.env")
		t.Setenv("CARTOLENS_API_URL", "http://localhost:9000/api")
		t.Setenv("CARTOLENS_REQUIRE_ACCESS_TOKEN", "false")
		t.Setenv("CARTOLENS_PIXEL_RATIO", "3")
		t.Setenv("CARTOLENS_TURNSTILE_TIMEOUT", "2s")

		cfg, err := Load(ctx)
		require.NoError(t, err)

		assert.Equal(t, "pk.env", cfg.API.AccessToken)
		assert.Equal(t, "http://localhost:9000/api", cfg.API.BaseURL)
		assert.False(t, cfg.API.RequireAccessToken)
		assert.Equal(t, 3.0, cfg.Device.PixelRatio)
		assert.Equal(t, 2*time.Second, cfg.Turnstile.Timeout)
	})

	// Test config precedence: runtime > env > file > defaults
	t.Run("ConfigPrecedence", func(t *testing.T) {
		isolateConfig(t)

		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 3000\n  host: 0.0.0.0\napi:\n  access_token: pk.file\n"), 0o600))
		SetConfigFile(path)

		t.Setenv("CARTOLENS_PORT", "4000")

		cfg, err := Load(ctx, map[string]any{"server": map[string]any{"port": 5000}})
		require.NoError(t, err)

		assert.Equal(t, 5000, cfg.Server.Port)
		assert.Equal(t, "0.0.0.0", cfg.Server.Host)
		assert.Equal(t, "pk.file", cfg.API.AccessToken)
	})

	t.Run("MissingExplicitFile", func(t *testing.T) {
		isolateConfig(t)
		SetConfigFile(filepath.Join(t.TempDir(), "missing.yaml"))

		_, err := Load(ctx)
		require.Error(t, err)
	})
}

func TestGetConfig(t *testing.T) {
	isolateConfig(t)

	cfg, err := Load(context.Background())
	require.NoError(t, err)

	retrieved := GetConfig()
	require.NotNil(t, retrieved)
	assert.Equal(t, cfg.Server.Port, retrieved.Server.Port)
	assert.Equal(t, cfg.API.BaseURL, retrieved.API.BaseURL)
}

func TestEnvSpecs(t *testing.T) {
	envVarNames := make(map[string]string)
	for _, spec := range getEnvSpecs() {
		envVarNames[spec.Name] = spec.Key
	}

	assert.Equal(t, "api.access_token", envVarNames["CARTOLENS_ACCESS_TOKEN"])
	assert.Equal(t, "api.base_url", envVarNames["CARTOLENS_API_URL"])
	assert.Equal(t, "logging.level", envVarNames["CARTOLENS_LOG_LEVEL"])
	assert.Equal(t, "store.path", envVarNames["CARTOLENS_DB_PATH"])
}

func TestFlattenOverrides(t *testing.T) {
	flat := flattenOverrides("", map[string]any{
		"API":    map[string]any{"base_url": "x"},
		"server": map[string]any{"port": 1},
		"top":    true,
	})

	assert.Equal(t, map[string]any{
		"api.base_url": "x",
		"server.port":  1,
		"top":          true,
	}, flat)
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cartolens.env")
	require.NoError(t, os.WriteFile(path, []byte("CARTOLENS_DOTENV_TOKEN=pk.dotenv\nCARTOLENS_DOTENV_KEEP=from-file\n"), 0o600))

	t.Setenv("CARTOLENS_DOTENV_KEEP", "from-env")
	t.Cleanup(func() { _ = os.Unsetenv("CARTOLENS_DOTENV_TOKEN") })

	require.NoError(t, LoadDotEnv(path))
	assert.Equal(t, "pk.dotenv", os.Getenv("CARTOLENS_DOTENV_TOKEN"))
	assert.Equal(t, "from-env", os.Getenv("CARTOLENS_DOTENV_KEEP"))

	assert.Error(t, LoadDotEnv(filepath.Join(dir, "missing.env")))
}

func TestLoadDotEnvDefaultIsOptional(t *testing.T) {
	t.Chdir(t.TempDir())
	assert.NoError(t, LoadDotEnv(""))
}
