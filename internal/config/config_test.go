package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv blanks every variable ApplyEnvOverrides reads.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"TELEGATE_VARIANT", "TELEGATE_INITIAL_URL", "TELEGATE_APP_VERSION",
		"NODE_ENV", "TELEGATE_PRODUCTION", "LBRY_API_URL",
		"TELEGATE_ANALYTICS_ENDPOINT", "TELEGATE_SENTRY_DSN", "TELEGATE_API_URL",
		"TELEGATE_AUTH_TOKEN", "TELEGATE_STORAGE_PATH", "TELEGATE_LOG_LEVEL",
		"TELEGATE_LOG_FORMAT", "TELEGATE_OTLP_ENDPOINT",
	} {
		t.Setenv(k, "")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NotNil(t, cfg)

	assert.Equal(t, VariantWeb, cfg.Platform.Variant)
	assert.False(t, cfg.Build.Production)
	assert.Equal(t, "UA-60403362-12", cfg.Analytics.WebTrackerID)
	assert.Equal(t, "UA-60403362-16", cfg.Analytics.SecondaryTrackerID)
	assert.Equal(t, "UA-60403362-13", cfg.Analytics.DesktopTrackerID)
	assert.True(t, strings.HasSuffix(cfg.Storage.Path, "settings.db"))
	assert.NoError(t, cfg.Validate())
}

func TestConfigPath(t *testing.T) {
	path := ConfigPath()
	assert.True(t, strings.HasSuffix(path, "config.toml"), path)
	assert.Contains(t, path, "telegate")
}

func TestTelegateDirOverride(t *testing.T) {
	t.Setenv("TELEGATE_DATA_DIR", "/var/lib/telegate-test")
	assert.Equal(t, "/var/lib/telegate-test", TelegateDir())
}

func TestLoadNonexistent(t *testing.T) {
	clearEnv(t)
	cfg, err := Load("/nonexistent/path/config.toml")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Analytics, cfg.Analytics)
}

func TestLoadTOML(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
version = 1

[platform]
variant = "desktop"
initial_url = "https://lbry.tv/index.html/$/discover?t=1"

[build]
production = true

[analytics]
queue_size = 32

[logging]
level = "debug"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, VariantDesktop, cfg.Platform.Variant)
	assert.True(t, cfg.IsDesktop())
	assert.True(t, cfg.Build.Production)
	assert.Equal(t, 32, cfg.Analytics.QueueSize)
	assert.Equal(t, "debug", cfg.Logging.Level)
	// Unset fields keep their defaults.
	assert.Equal(t, "UA-60403362-13", cfg.Analytics.DesktopTrackerID)
	assert.NoError(t, cfg.Validate())
}

func TestLoadConsentSection(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[consent]\nshare_third_party = true\n"), 0600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Nil(t, cfg.Consent.ShareInternal)
	require.NotNil(t, cfg.Consent.ShareThirdParty)
	assert.True(t, *cfg.Consent.ShareThirdParty)
}

func TestLoadJSONAndYAML(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()

	jsonPath := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(`{"platform":{"variant":"desktop"},"crash":{"environment":"staging"}}`), 0600))
	cfg, err := Load(jsonPath)
	require.NoError(t, err)
	assert.Equal(t, VariantDesktop, cfg.Platform.Variant)
	assert.Equal(t, "staging", cfg.Crash.Environment)

	yamlPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte("event_api:\n  base_url: http://localhost:5279\nbuild:\n  dev_api_override: true\n"), 0600))
	cfg, err = Load(yamlPath)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:5279", cfg.EventAPI.BaseURL)
	assert.True(t, cfg.Build.DevAPIOverride)
}

func TestLoadInvalidTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("this is not valid toml {{{"), 0600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestApplyEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("NODE_ENV", "production")
	t.Setenv("TELEGATE_VARIANT", "DESKTOP")
	t.Setenv("TELEGATE_SENTRY_DSN", "https://key@sentry.example/42")
	t.Setenv("TELEGATE_LOG_LEVEL", "warn")

	cfg := DefaultConfig()
	cfg.ApplyEnvOverrides()

	assert.True(t, cfg.Build.Production)
	assert.False(t, cfg.Build.DevAPIOverride)
	assert.Equal(t, VariantDesktop, cfg.Platform.Variant)
	assert.Equal(t, "https://key@sentry.example/42", cfg.Crash.DSN)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestApplyEnvOverridesDevAPI(t *testing.T) {
	clearEnv(t)
	t.Setenv("LBRY_API_URL", "http://127.0.0.1:8080")

	cfg := DefaultConfig()
	cfg.ApplyEnvOverrides()

	assert.True(t, cfg.Build.DevAPIOverride)
	assert.Equal(t, "http://127.0.0.1:8080", cfg.EventAPI.BaseURL)
}

func TestApplyEnvOverridesProductionFlagWins(t *testing.T) {
	clearEnv(t)
	t.Setenv("NODE_ENV", "production")
	t.Setenv("TELEGATE_PRODUCTION", "false")

	cfg := DefaultConfig()
	cfg.ApplyEnvOverrides()
	assert.False(t, cfg.Build.Production)
}

func TestValidateErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"bad variant", func(c *Config) { c.Platform.Variant = "mobile" }, "platform.variant"},
		{"bad tracker", func(c *Config) { c.Analytics.WebTrackerID = "G-123" }, "analytics.web_tracker_id"},
		{"zero queue", func(c *Config) { c.Analytics.QueueSize = 0 }, "analytics.queue_size"},
		{"bad endpoint", func(c *Config) { c.Analytics.Endpoint = "ftp://x" }, "analytics.endpoint"},
		{"bad api url", func(c *Config) { c.EventAPI.BaseURL = "" }, "event_api.base_url"},
		{"desktop without storage", func(c *Config) {
			c.Platform.Variant = VariantDesktop
			c.Storage.Path = ""
		}, "storage.path"},
		{"bad log level", func(c *Config) { c.Logging.Level = "trace" }, "logging.level"},
		{"otel without endpoint", func(c *Config) { c.Observability.Enabled = true }, "observability.otlp_endpoint"},
		{"sample rate", func(c *Config) { c.Observability.SampleRate = 2 }, "observability.sample_rate"},
		{"version", func(c *Config) { c.Version = 9 }, "version"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidConfig))

			var verrs ValidationErrors
			require.True(t, errors.As(err, &verrs))
			var fields []string
			for _, e := range verrs {
				fields = append(fields, e.Field)
			}
			assert.Contains(t, fields, tt.field)
		})
	}
}

func TestSaveConfigRoundTrip(t *testing.T) {
	clearEnv(t)
	for _, ext := range SupportedConfigFormats() {
		t.Run(ext, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "nested", "config."+ext)
			cfg := DefaultConfig()
			cfg.Platform.Variant = VariantDesktop
			cfg.Analytics.QueueSize = 7

			require.NoError(t, SaveConfig(cfg, path))

			info, err := os.Stat(path)
			require.NoError(t, err)
			assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

			loaded, err := Load(path)
			require.NoError(t, err)
			assert.Equal(t, VariantDesktop, loaded.Platform.Variant)
			assert.Equal(t, 7, loaded.Analytics.QueueSize)
		})
	}
}

func TestLoadOrCreate(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.toml")

	cfg, created, err := LoadOrCreate(path)
	require.NoError(t, err)
	assert.True(t, created)
	require.NotNil(t, cfg)

	_, created, err = LoadOrCreate(path)
	require.NoError(t, err)
	assert.False(t, created)
}

func TestEnsureDirectories(t *testing.T) {
	tmpDir := t.TempDir()
	cfg := DefaultConfig()
	cfg.Platform.Variant = VariantDesktop
	cfg.Storage.Path = filepath.Join(tmpDir, "a", "b", "settings.db")

	require.NoError(t, cfg.EnsureDirectories())
	_, err := os.Stat(filepath.Join(tmpDir, "a", "b"))
	assert.NoError(t, err)
}

func TestLoaderRejectsInvalid(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[platform]\nvariant = \"tv\"\n"), 0600))

	_, err := NewLoader(path).Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "platform.variant")
}

func TestLoaderWatchReloads(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[build]\nproduction = false\n"), 0600))

	l := NewLoader(path)
	defer l.Close()

	cfg, err := l.Load()
	require.NoError(t, err)
	assert.False(t, cfg.Build.Production)

	changed := make(chan *Config, 1)
	l.OnChange(func(c *Config) {
		select {
		case changed <- c:
		default:
		}
	})
	require.NoError(t, l.Watch())

	require.NoError(t, os.WriteFile(path, []byte("[build]\nproduction = true\n"), 0600))

	select {
	case c := <-changed:
		assert.True(t, c.Build.Production)
		assert.True(t, l.Config().Build.Production)
	case err := <-l.Errors():
		t.Fatalf("watch error: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for reload")
	}
}
