package config

import "time"

// Config represents the complete application configuration. Values are
// layered: built-in defaults, then the optional config file, then
// CARTOLENS_* environment variables, then runtime overrides.
type Config struct {
	API       APIConfig       `mapstructure:"api"`
	Device    DeviceConfig    `mapstructure:"device"`
	SDK       SDKConfig       `mapstructure:"sdk"`
	Turnstile TurnstileConfig `mapstructure:"turnstile"`
	Server    ServerConfig    `mapstructure:"server"`
	Store     StoreConfig     `mapstructure:"store"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Health    HealthConfig    `mapstructure:"health"`
}

// APIConfig describes the backend that mapbox: locators resolve against.
type APIConfig struct {
	// BaseURL is the API host, optionally with a path prefix.
	BaseURL string `mapstructure:"base_url"`

	// EventsURL receives turnstile events.
	EventsURL string `mapstructure:"events_url"`

	// AccessToken is the default public token (pk.*).
	AccessToken string `mapstructure:"access_token"`

	// RequireAccessToken controls whether resolved API URLs carry a token.
	RequireAccessToken bool `mapstructure:"require_access_token"`
}

// DeviceConfig describes the rendering device the URLs are built for.
type DeviceConfig struct {
	PixelRatio   float64 `mapstructure:"pixel_ratio"`
	SupportsWebP bool    `mapstructure:"supports_webp"`
}

// SDKConfig identifies the client in turnstile events.
type SDKConfig struct {
	Identifier string `mapstructure:"identifier"`
	Version    string `mapstructure:"version"`
}

// TurnstileConfig controls the daily usage ping.
type TurnstileConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	AdminToken      string        `mapstructure:"admin_token"`
}

// StoreConfig contains database configuration for libsql/Turso
type StoreConfig struct {
	Driver    string `mapstructure:"driver"`
	Path      string `mapstructure:"path"`
	URL       string `mapstructure:"url"`
	AuthToken string `mapstructure:"auth_token"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	// Level controls the minimum log level
	// Valid values: trace, debug, info, warn, error
	Level string `mapstructure:"level"`

	// Profile selects the logging complexity level
	// Valid values: SIMPLE, STRUCTURED
	Profile string `mapstructure:"profile"`
}

// MetricsConfig contains Prometheus metrics configuration
type MetricsConfig struct {
	// Enabled controls whether metrics are exposed
	Enabled bool `mapstructure:"enabled"`

	// Port is the dedicated metrics endpoint port (Prometheus format)
	Port int `mapstructure:"port"`
}

// HealthConfig contains health check configuration
type HealthConfig struct {
	// Enabled controls whether health endpoints are exposed
	Enabled bool `mapstructure:"enabled"`
}
