// Package config handles configuration loading, validation, and management for telegate.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Version is the current configuration schema version.
const Version = 1

// Platform variants.
const (
	VariantWeb     = "web"
	VariantDesktop = "desktop"
)

// Config holds the complete telegate configuration.
type Config struct {
	// Version is the configuration schema version.
	Version int `toml:"version" json:"version" yaml:"version"`

	// Platform describes the host the dispatcher runs inside.
	Platform PlatformConfig `toml:"platform" json:"platform" yaml:"platform"`

	// Build carries the build-time flags of the host client.
	Build BuildConfig `toml:"build" json:"build" yaml:"build"`

	// Analytics configures the web-analytics backend.
	Analytics AnalyticsConfig `toml:"analytics" json:"analytics" yaml:"analytics"`

	// Crash configures the crash-telemetry backend.
	Crash CrashConfig `toml:"crash" json:"crash" yaml:"crash"`

	// EventAPI configures the first-party event API.
	EventAPI EventAPIConfig `toml:"event_api" json:"event_api" yaml:"event_api"`

	// Consent optionally drives the consent toggles for hosts without a settings screen.
	Consent ConsentConfig `toml:"consent" json:"consent" yaml:"consent"`

	// Storage configuration for persisted consent.
	Storage StorageConfig `toml:"storage" json:"storage" yaml:"storage"`

	// Logging configuration.
	Logging LoggingConfig `toml:"logging" json:"logging" yaml:"logging"`

	// Observability configures OpenTelemetry export of telegate's own metrics and traces.
	Observability ObservabilityConfig `toml:"observability" json:"observability" yaml:"observability"`
}

// PlatformConfig holds host platform settings.
type PlatformConfig struct {
	// Variant is "web" or "desktop".
	Variant string `toml:"variant" json:"variant" yaml:"variant"`

	// InitialURL is the URL the client was opened with. It supplies the
	// traffic source and the first page view.
	InitialURL string `toml:"initial_url" json:"initial_url" yaml:"initial_url"`

	// SiteOrigin is reported as the analytics location on desktop.
	SiteOrigin string `toml:"site_origin" json:"site_origin" yaml:"site_origin"`

	// AppVersion is the desktop application version.
	AppVersion string `toml:"app_version" json:"app_version" yaml:"app_version"`
}

// BuildConfig holds build flags.
type BuildConfig struct {
	// Production marks a production build. Most backends only receive
	// data from production builds.
	Production bool `toml:"production" json:"production" yaml:"production"`

	// DevAPIOverride marks a development build pointed at a custom API.
	DevAPIOverride bool `toml:"dev_api_override" json:"dev_api_override" yaml:"dev_api_override"`
}

// AnalyticsConfig holds web-analytics settings.
type AnalyticsConfig struct {
	// Endpoint is the measurement protocol collect URL.
	Endpoint string `toml:"endpoint" json:"endpoint" yaml:"endpoint"`

	// WebTrackerID is the default channel on the web variant.
	WebTrackerID string `toml:"web_tracker_id" json:"web_tracker_id" yaml:"web_tracker_id"`

	// SecondaryTrackerID is the named channel on the web variant.
	SecondaryTrackerID string `toml:"secondary_tracker_id" json:"secondary_tracker_id" yaml:"secondary_tracker_id"`

	// DesktopTrackerID is the default channel on the desktop variant.
	DesktopTrackerID string `toml:"desktop_tracker_id" json:"desktop_tracker_id" yaml:"desktop_tracker_id"`

	// QueueSize bounds the number of hits waiting to be sent.
	QueueSize int `toml:"queue_size" json:"queue_size" yaml:"queue_size"`

	// TimeoutMs is the HTTP timeout for a single hit.
	TimeoutMs int `toml:"timeout_ms" json:"timeout_ms" yaml:"timeout_ms"`
}

// CrashConfig holds crash-telemetry settings.
type CrashConfig struct {
	// DSN is the crash service project DSN. Empty disables transport.
	DSN string `toml:"dsn" json:"dsn" yaml:"dsn"`

	// Environment tags every report.
	Environment string `toml:"environment" json:"environment" yaml:"environment"`

	// Release tags every report.
	Release string `toml:"release" json:"release" yaml:"release"`
}

// EventAPIConfig holds first-party API settings.
type EventAPIConfig struct {
	// BaseURL is the API root; calls go to {BaseURL}/{namespace}/{action}.
	BaseURL string `toml:"base_url" json:"base_url" yaml:"base_url"`

	// AuthToken is sent with every call when set.
	AuthToken string `toml:"auth_token" json:"auth_token" yaml:"auth_token"`

	// TimeoutMs is the HTTP timeout for a single call.
	TimeoutMs int `toml:"timeout_ms" json:"timeout_ms" yaml:"timeout_ms"`
}

// ConsentConfig holds consent toggles. Nil leaves the flag untouched.
type ConsentConfig struct {
	ShareInternal   *bool `toml:"share_internal,omitempty" json:"share_internal,omitempty" yaml:"share_internal,omitempty"`
	ShareThirdParty *bool `toml:"share_third_party,omitempty" json:"share_third_party,omitempty" yaml:"share_third_party,omitempty"`
}

// StorageConfig holds persistence configuration.
type StorageConfig struct {
	// Path is the SQLite settings database used by the desktop variant.
	Path string `toml:"path" json:"path" yaml:"path"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the log level: "debug", "info", "warn", "error".
	Level string `toml:"level" json:"level" yaml:"level"`

	// Format is the log format: "text" or "json".
	Format string `toml:"format" json:"format" yaml:"format"`

	// Output is the log output: "stdout" or "stderr".
	Output string `toml:"output" json:"output" yaml:"output"`
}

// ObservabilityConfig holds OpenTelemetry settings.
type ObservabilityConfig struct {
	Enabled      bool    `toml:"enabled" json:"enabled" yaml:"enabled"`
	OTLPEndpoint string  `toml:"otlp_endpoint" json:"otlp_endpoint" yaml:"otlp_endpoint"`
	Insecure     bool    `toml:"insecure" json:"insecure" yaml:"insecure"`
	SampleRate   float64 `toml:"sample_rate" json:"sample_rate" yaml:"sample_rate"`
	ServiceName  string  `toml:"service_name" json:"service_name" yaml:"service_name"`
}

// DefaultConfig returns a configuration for a web, non-production client.
func DefaultConfig() *Config {
	return &Config{
		Version: Version,
		Platform: PlatformConfig{
			Variant:    VariantWeb,
			SiteOrigin: "https://lbry.tv",
		},
		Analytics: AnalyticsConfig{
			Endpoint:           "https://www.google-analytics.com/collect",
			WebTrackerID:       "UA-60403362-12",
			SecondaryTrackerID: "UA-60403362-16",
			DesktopTrackerID:   "UA-60403362-13",
			QueueSize:          256,
			TimeoutMs:          5000,
		},
		Crash: CrashConfig{
			Environment: "development",
		},
		EventAPI: EventAPIConfig{
			BaseURL:   "https://api.lbry.com",
			TimeoutMs: 10000,
		},
		Storage: StorageConfig{
			Path: filepath.Join(TelegateDir(), "settings.db"),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Observability: ObservabilityConfig{
			SampleRate:  1.0,
			ServiceName: "telegate",
		},
	}
}

// ConfigPath returns the default configuration file path.
func ConfigPath() string {
	return filepath.Join(PlatformConfigDir(), "config.toml")
}

// TelegateDir returns the base telegate data directory.
// TELEGATE_DATA_DIR overrides the platform default.
func TelegateDir() string {
	if envDir := os.Getenv("TELEGATE_DATA_DIR"); envDir != "" {
		return envDir
	}
	return PlatformDataDir()
}

// Load reads configuration from the specified path.
// If the file doesn't exist, returns default configuration.
// Supports TOML, JSON, and YAML formats based on file extension.
func Load(path string) (*Config, error) {
	if path == "" {
		path = ConfigPath()
	}

	cfg, err := loadConfigFromFile(path)
	if err != nil {
		return nil, err
	}

	cfg.ApplyEnvOverrides()
	return cfg, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	return ValidateConfig(c)
}

// EnsureDirectories creates the directories the configuration points at.
func (c *Config) EnsureDirectories() error {
	if c.Platform.Variant != VariantDesktop || c.Storage.Path == "" {
		return nil
	}
	dir := filepath.Dir(c.Storage.Path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("create directory %s: %w", dir, err)
	}
	return nil
}

// ApplyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables are prefixed with TELEGATE_. NODE_ENV=production marks a
// production build and a non-empty LBRY_API_URL is a developer API override.
func (c *Config) ApplyEnvOverrides() {
	// Platform overrides
	if v := os.Getenv("TELEGATE_VARIANT"); v != "" {
		c.Platform.Variant = strings.ToLower(v)
	}
	if v := os.Getenv("TELEGATE_INITIAL_URL"); v != "" {
		c.Platform.InitialURL = v
	}
	if v := os.Getenv("TELEGATE_APP_VERSION"); v != "" {
		c.Platform.AppVersion = v
	}

	// Build flags
	if os.Getenv("NODE_ENV") == "production" {
		c.Build.Production = true
	}
	if v, ok := envBool("TELEGATE_PRODUCTION"); ok {
		c.Build.Production = v
	}
	if v := os.Getenv("LBRY_API_URL"); v != "" {
		c.EventAPI.BaseURL = v
		c.Build.DevAPIOverride = true
	}

	// Backends
	if v := os.Getenv("TELEGATE_ANALYTICS_ENDPOINT"); v != "" {
		c.Analytics.Endpoint = v
	}
	if v := os.Getenv("TELEGATE_SENTRY_DSN"); v != "" {
		c.Crash.DSN = v
	}
	if v := os.Getenv("TELEGATE_API_URL"); v != "" {
		c.EventAPI.BaseURL = v
	}
	if v := os.Getenv("TELEGATE_AUTH_TOKEN"); v != "" {
		c.EventAPI.AuthToken = v
	}

	// Storage overrides
	if v := os.Getenv("TELEGATE_STORAGE_PATH"); v != "" {
		c.Storage.Path = v
	}

	// Logging overrides
	if v := os.Getenv("TELEGATE_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("TELEGATE_LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}

	// Observability overrides
	if v := os.Getenv("TELEGATE_OTLP_ENDPOINT"); v != "" {
		c.Observability.OTLPEndpoint = v
		c.Observability.Enabled = true
	}
}

// Clone returns a copy of the configuration.
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}

// IsDesktop reports whether the configured variant is desktop.
func (c *Config) IsDesktop() bool {
	return c.Platform.Variant == VariantDesktop
}

func envBool(key string) (bool, bool) {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return false, false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return v, true
}
