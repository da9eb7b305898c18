package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// PlatformDataDir returns the platform-specific data directory.
//
// Platform paths:
//   - macOS:   ~/Library/Application Support/telegate/
//   - Linux:   ~/.local/share/telegate/
//   - Windows: %APPDATA%\telegate\
//
// Falls back to ~/.telegate if platform detection fails.
func PlatformDataDir() string {
	switch runtime.GOOS {
	case "darwin":
		return macOSDataDir()
	case "linux":
		if xdgData := os.Getenv("XDG_DATA_HOME"); xdgData != "" {
			return filepath.Join(xdgData, "telegate")
		}
		return filepath.Join(homeDir(), ".local", "share", "telegate")
	case "windows":
		return windowsDataDir()
	default:
		return filepath.Join(homeDir(), ".telegate")
	}
}

// PlatformConfigDir returns the platform-specific config directory.
func PlatformConfigDir() string {
	switch runtime.GOOS {
	case "darwin":
		return macOSDataDir()
	case "linux":
		if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
			return filepath.Join(xdgConfig, "telegate")
		}
		return filepath.Join(homeDir(), ".config", "telegate")
	case "windows":
		return windowsDataDir()
	default:
		return filepath.Join(homeDir(), ".telegate")
	}
}

func macOSDataDir() string {
	return filepath.Join(homeDir(), "Library", "Application Support", "telegate")
}

func windowsDataDir() string {
	if appData := os.Getenv("APPDATA"); appData != "" {
		return filepath.Join(appData, "telegate")
	}
	return filepath.Join(homeDir(), "AppData", "Roaming", "telegate")
}

func homeDir() string {
	if home := os.Getenv("HOME"); home != "" {
		return home
	}
	home, _ := os.UserHomeDir()
	return home
}

// SupportedConfigFormats returns the list of supported config file formats.
func SupportedConfigFormats() []string {
	return []string{"toml", "json", "yaml", "yml"}
}

// FindConfigFile searches the current directory, then the config directory,
// for config.<ext>. Returns "" when nothing is found.
func FindConfigFile() string {
	for _, dir := range []string{".", PlatformConfigDir()} {
		for _, ext := range SupportedConfigFormats() {
			path := filepath.Join(dir, "config."+ext)
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
	}
	return ""
}
