package config

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// Loader handles configuration loading, watching, and hot-reloading.
type Loader struct {
	path     string
	config   *Config
	mu       sync.RWMutex
	watcher  *fsnotify.Watcher
	onChange []func(*Config)
	ctx      context.Context
	cancel   context.CancelFunc
	errChan  chan error
}

// NewLoader creates a new configuration loader.
func NewLoader(path string) *Loader {
	ctx, cancel := context.WithCancel(context.Background())
	return &Loader{
		path:    path,
		errChan: make(chan error, 1),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Load reads, overrides and validates the configuration file.
func (l *Loader) Load() (*Config, error) {
	cfg, err := loadConfigFromFile(l.path)
	if err != nil {
		return nil, err
	}

	cfg.ApplyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	l.mu.Lock()
	l.config = cfg
	l.mu.Unlock()
	return cfg, nil
}

// Config returns the current configuration.
func (l *Loader) Config() *Config {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.config
}

// Watch starts watching the configuration file for changes.
// When changes are detected, the configuration is reloaded and
// registered callbacks are invoked.
func (l *Loader) Watch() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	l.watcher = watcher

	// Editors replace files, so watch the directory.
	dir := filepath.Dir(l.path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("watch directory: %w", err)
	}

	go l.watchLoop()

	return nil
}

func (l *Loader) watchLoop() {
	var debounceTimer *time.Timer
	debounceDelay := 100 * time.Millisecond

	for {
		select {
		case <-l.ctx.Done():
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			return

		case event, ok := <-l.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != filepath.Base(l.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}

			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(debounceDelay, l.reload)

		case err, ok := <-l.watcher.Errors:
			if !ok {
				return
			}
			l.sendErr(err)
		}
	}
}

func (l *Loader) reload() {
	newCfg, err := loadConfigFromFile(l.path)
	if err != nil {
		l.sendErr(fmt.Errorf("reload config: %w", err))
		return
	}

	newCfg.ApplyEnvOverrides()

	if err := newCfg.Validate(); err != nil {
		l.sendErr(fmt.Errorf("validate new config: %w", err))
		return
	}

	l.mu.Lock()
	l.config = newCfg
	callbacks := append([]func(*Config){}, l.onChange...)
	l.mu.Unlock()

	for _, cb := range callbacks {
		cb(newCfg)
	}
}

func (l *Loader) sendErr(err error) {
	select {
	case l.errChan <- err:
	default:
	}
}

// OnChange registers a callback to be invoked when the configuration changes.
func (l *Loader) OnChange(cb func(*Config)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onChange = append(l.onChange, cb)
}

// Errors returns a channel for receiving errors that occur during watching.
func (l *Loader) Errors() <-chan error {
	return l.errChan
}

// Close stops the watcher and releases resources.
func (l *Loader) Close() error {
	l.cancel()
	if l.watcher != nil {
		return l.watcher.Close()
	}
	return nil
}

// loadConfigFromFile reads and parses a config file based on its extension.
func loadConfigFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := DefaultConfig()

	switch filepath.Ext(path) {
	case ".toml":
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return nil, fmt.Errorf("decode TOML: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("decode JSON: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("decode YAML: %w", err)
		}
	default:
		if err := autoDetectAndParse(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	return cfg, nil
}

// autoDetectAndParse attempts to parse the config in multiple formats.
func autoDetectAndParse(data []byte, cfg *Config) error {
	if _, err := toml.Decode(string(data), cfg); err == nil {
		return nil
	}
	if err := json.Unmarshal(data, cfg); err == nil {
		return nil
	}
	if err := yaml.Unmarshal(data, cfg); err == nil {
		return nil
	}
	return fmt.Errorf("unable to parse config file (tried TOML, JSON, YAML)")
}

// LoadOrCreate loads the configuration from path, writing a default
// configuration file first when none exists. The bool reports creation.
func LoadOrCreate(path string) (*Config, bool, error) {
	if path == "" {
		path = ConfigPath()
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := DefaultConfig()
		if err := SaveConfig(cfg, path); err != nil {
			return nil, false, fmt.Errorf("create default config: %w", err)
		}
		cfg.ApplyEnvOverrides()
		return cfg, true, nil
	}

	cfg, err := NewLoader(path).Load()
	if err != nil {
		return nil, false, err
	}
	return cfg, false, nil
}

// SaveConfig writes the configuration to path in the format implied by its extension.
func SaveConfig(cfg *Config, path string) error {
	var (
		data []byte
		err  error
	)

	switch filepath.Ext(path) {
	case ".json":
		data, err = json.MarshalIndent(cfg, "", "  ")
	case ".yaml", ".yml":
		data, err = yaml.Marshal(cfg)
	default:
		var buf bytes.Buffer
		err = toml.NewEncoder(&buf).Encode(cfg)
		data = buf.Bytes()
	}
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	// The file may carry the auth token and DSN.
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
