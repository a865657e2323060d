// Package config provides centralized configuration management for cartolens.
// Values are layered in this order, later layers winning:
// Layer 1: built-in defaults (SetDefaults)
// Layer 2: the user config file (XDG config dir or --config)
// Layer 3: CARTOLENS_* environment variables (optionally seeded from .env)
// Layer 4: runtime overrides passed to Load
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	gfconfig "github.com/fulmenhq/gofulmen/config"
	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	// AppName names the config, data and binary paths.
	AppName = "cartolens"

	// EnvPrefix prefixes every environment variable the loader reads.
	EnvPrefix = "CARTOLENS"
)

var (
	// appConfig holds the current application configuration
	appConfig *Config
	configMu  sync.RWMutex

	configFile   string
	configFileMu sync.RWMutex
)

// EnvVarSpec maps an environment variable to a dotted config key.
type EnvVarSpec struct {
	Name string
	Key  string
}

// SetConfigFile pins the config file used by Load. An empty path restores
// discovery in the XDG config directory.
func SetConfigFile(path string) {
	configFileMu.Lock()
	defer configFileMu.Unlock()
	configFile = strings.TrimSpace(path)
}

func currentConfigFile() string {
	configFileMu.RLock()
	defer configFileMu.RUnlock()
	return configFile
}

// LoadDotEnv copies KEY=VALUE pairs from an env file into the process
// environment. Variables that are already set win. With an empty path,
// ./.env is read when it exists.
func LoadDotEnv(path string) error {
	explicit := strings.TrimSpace(path) != ""
	if !explicit {
		path = ".env"
	}

	if _, err := os.Stat(path); err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("env file %s: %w", path, err)
	}

	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

// Load builds the configuration from all layers and stores it for GetConfig.
//
// This function is safe to call multiple times (e.g., for config reload)
func Load(ctx context.Context, runtimeOverrides ...map[string]any) (*Config, error) {
	if ctx != nil {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}

	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, spec := range getEnvSpecs() {
		if err := v.BindEnv(spec.Key, spec.Name); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", spec.Name, err)
		}
	}

	if err := readConfigFile(v); err != nil {
		return nil, err
	}

	for _, overrides := range runtimeOverrides {
		for key, value := range flattenOverrides("", overrides) {
			v.Set(key, value)
		}
	}

	cfg, err := decode(v.AllSettings())
	if err != nil {
		return nil, err
	}

	if strings.TrimSpace(cfg.Store.URL) == "" && strings.TrimSpace(cfg.Store.Path) == "" {
		cfg.Store.Path = DefaultStorePath()
	}

	setConfig(cfg)

	return cfg, nil
}

// SetDefaults registers built-in defaults on v.
func SetDefaults(v *viper.Viper) {
	// API defaults
	v.SetDefault("api.base_url", "https://api.mapbox.com")
	v.SetDefault("api.events_url", "https://events.mapbox.com/events/v2")
	v.SetDefault("api.access_token", "")
	v.SetDefault("api.require_access_token", true)

	// Device defaults
	v.SetDefault("device.pixel_ratio", 1.0)
	v.SetDefault("device.supports_webp", false)

	// SDK identity reported in turnstile events
	v.SetDefault("sdk.identifier", AppName)
	v.SetDefault("sdk.version", "dev")

	// Turnstile defaults
	v.SetDefault("turnstile.enabled", true)
	v.SetDefault("turnstile.timeout", "10s")

	// Server defaults
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.admin_token", "")

	// Store defaults
	v.SetDefault("store.driver", "libsql")
	v.SetDefault("store.path", "")
	v.SetDefault("store.url", "")
	v.SetDefault("store.auth_token", "")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.profile", "SIMPLE")

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 9090)

	// Health check defaults
	v.SetDefault("health.enabled", true)
}

// GetConfig returns the current application configuration (thread-safe)
func GetConfig() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return appConfig
}

// setConfig updates the current configuration (thread-safe)
func setConfig(cfg *Config) {
	configMu.Lock()
	defer configMu.Unlock()
	appConfig = cfg
}

func readConfigFile(v *viper.Viper) error {
	if path := currentConfigFile(); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config file %s: %w", path, err)
		}
		return nil
	}

	dir := gfconfig.GetAppConfigDir(AppName)
	if strings.TrimSpace(dir) == "" {
		return nil
	}

	v.AddConfigPath(dir)
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("read config file: %w", err)
	}
	return nil
}

func decode(settings map[string]any) (*Config, error) {
	cfg := &Config{}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           cfg,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
			mapstructure.StringToFloat64HookFunc(),
		),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create decoder: %w", err)
	}

	if err := decoder.Decode(settings); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return cfg, nil
}

// flattenOverrides turns nested override maps into dotted viper keys.
func flattenOverrides(prefix string, values map[string]any) map[string]any {
	flat := make(map[string]any)
	for key, value := range values {
		full := strings.ToLower(key)
		if prefix != "" {
			full = prefix + "." + full
		}
		if nested, ok := value.(map[string]any); ok {
			for k, v := range flattenOverrides(full, nested) {
				flat[k] = v
			}
			continue
		}
		flat[full] = value
	}
	return flat
}

// getEnvSpecs returns the short environment variable aliases. Every key is
// also reachable as CARTOLENS_<SECTION>_<KEY> through AutomaticEnv.
func getEnvSpecs() []EnvVarSpec {
	prefix := EnvPrefix + "_"

	return []EnvVarSpec{
		// API config
		{Name: prefix + "API_URL", Key: "api.base_url"},
		{Name: prefix + "EVENTS_URL", Key: "api.events_url"},
		{Name: prefix + "ACCESS_TOKEN", Key: "api.access_token"},
		{Name: prefix + "REQUIRE_ACCESS_TOKEN", Key: "api.require_access_token"},

		// Device config
		{Name: prefix + "PIXEL_RATIO", Key: "device.pixel_ratio"},
		{Name: prefix + "SUPPORTS_WEBP", Key: "device.supports_webp"},

		// Turnstile config
		{Name: prefix + "TURNSTILE_ENABLED", Key: "turnstile.enabled"},

		// Server config
		{Name: prefix + "HOST", Key: "server.host"},
		{Name: prefix + "PORT", Key: "server.port"},
		// Duration fields are parsed as strings and converted by mapstructure decode hook
		{Name: prefix + "READ_TIMEOUT", Key: "server.read_timeout"},
		{Name: prefix + "WRITE_TIMEOUT", Key: "server.write_timeout"},
		{Name: prefix + "IDLE_TIMEOUT", Key: "server.idle_timeout"},
		{Name: prefix + "SHUTDOWN_TIMEOUT", Key: "server.shutdown_timeout"},
		{Name: prefix + "ADMIN_TOKEN", Key: "server.admin_token"},

		// Logging config
		{Name: prefix + "LOG_LEVEL", Key: "logging.level"},
		{Name: prefix + "LOG_PROFILE", Key: "logging.profile"},

		// Store config
		{Name: prefix + "DB_DRIVER", Key: "store.driver"},
		{Name: prefix + "DB_PATH", Key: "store.path"},
		{Name: prefix + "DB_URL", Key: "store.url"},
		{Name: prefix + "DB_AUTH_TOKEN", Key: "store.auth_token"},

		// Metrics config
		{Name: prefix + "METRICS_ENABLED", Key: "metrics.enabled"},
		{Name: prefix + "METRICS_PORT", Key: "metrics.port"},

		// Health config
		{Name: prefix + "HEALTH_ENABLED", Key: "health.enabled"},
	}
}

// DefaultConfigPath returns the XDG-compliant path to the user config file.
func DefaultConfigPath() string {
	configDir := gfconfig.GetAppConfigDir(AppName)
	if strings.TrimSpace(configDir) == "" {
		return ""
	}
	return filepath.Join(configDir, "config.yaml")
}

// DefaultStorePath returns the XDG-compliant path to the database file.
func DefaultStorePath() string {
	dataDir := gfconfig.GetAppDataDir(AppName)
	if strings.TrimSpace(dataDir) == "" {
		return "./" + AppName + ".db"
	}
	return filepath.Join(dataDir, AppName+".db")
}
