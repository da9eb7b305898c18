// Package logging provides structured logging with slog for telegate.
//
// Features:
//   - JSON and text output formats
//   - Log levels (debug, info, warn, error)
//   - Component-scoped child loggers
//   - Sensitive data redaction
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// Level represents a logging level.
type Level = slog.Level

// Log levels.
const (
	LevelDebug = slog.LevelDebug
	LevelInfo  = slog.LevelInfo
	LevelWarn  = slog.LevelWarn
	LevelError = slog.LevelError
)

// Format represents the output format for logs.
type Format int

const (
	// FormatText outputs human-readable text logs.
	FormatText Format = iota
	// FormatJSON outputs JSON-structured logs.
	FormatJSON
)

// Config holds the logging configuration.
type Config struct {
	// Level is the minimum log level to output.
	Level Level

	// Format is the output format (text or JSON).
	Format Format

	// Output specifies where logs are written.
	// Can be "stdout", "stderr" or "discard".
	Output string

	// Writer overrides Output when set.
	Writer io.Writer

	// AddSource adds source file and line to log entries.
	AddSource bool

	// Component is the name of the component using this logger.
	Component string
}

// DefaultConfig returns a default logging configuration.
func DefaultConfig() *Config {
	return &Config{
		Level:     LevelInfo,
		Format:    FormatText,
		Output:    "stderr",
		Component: "telegate",
	}
}

// Logger wraps slog.Logger with additional functionality.
type Logger struct {
	*slog.Logger
	config *Config
}

var (
	defaultLogger *Logger
	loggerOnce    sync.Once
)

// Default returns the default global logger.
func Default() *Logger {
	loggerOnce.Do(func() {
		if defaultLogger != nil {
			return
		}
		l, err := New(DefaultConfig())
		if err != nil {
			l = &Logger{Logger: slog.Default(), config: DefaultConfig()}
		}
		defaultLogger = l
	})
	return defaultLogger
}

// SetDefault sets the default global logger.
func SetDefault(l *Logger) {
	defaultLogger = l
	slog.SetDefault(l.Logger)
}

// Discard returns a logger that drops every record.
func Discard() *Logger {
	cfg := DefaultConfig()
	cfg.Output = "discard"
	l, _ := New(cfg)
	return l
}

// New creates a new Logger with the given configuration.
func New(cfg *Config) (*Logger, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	w, err := writerFor(cfg)
	if err != nil {
		return nil, fmt.Errorf("setup writer: %w", err)
	}

	opts := &slog.HandlerOptions{
		Level:     cfg.Level,
		AddSource: cfg.AddSource,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if shouldRedact(a.Key) {
				a.Value = slog.StringValue("[REDACTED]")
			}
			return a
		},
	}

	var handler slog.Handler
	switch cfg.Format {
	case FormatJSON:
		handler = slog.NewJSONHandler(w, opts)
	default:
		handler = slog.NewTextHandler(w, opts)
	}

	if cfg.Component != "" {
		handler = handler.WithAttrs([]slog.Attr{
			slog.String("component", cfg.Component),
		})
	}

	return &Logger{Logger: slog.New(handler), config: cfg}, nil
}

func writerFor(cfg *Config) (io.Writer, error) {
	if cfg.Writer != nil {
		return cfg.Writer, nil
	}
	switch strings.ToLower(cfg.Output) {
	case "stdout":
		return os.Stdout, nil
	case "stderr", "":
		return os.Stderr, nil
	case "discard":
		return io.Discard, nil
	default:
		return nil, fmt.Errorf("unknown log output: %s", cfg.Output)
	}
}

// shouldRedact checks if an attribute key contains sensitive data.
func shouldRedact(key string) bool {
	sensitiveKeys := []string{
		"password", "secret", "token", "credential", "dsn",
		"private", "auth", "cookie", "api_key",
		"apikey", "bearer",
	}

	keyLower := strings.ToLower(key)
	for _, sensitive := range sensitiveKeys {
		if strings.Contains(keyLower, sensitive) {
			return true
		}
	}
	return false
}

// WithComponent returns a new logger with a different component name.
func (l *Logger) WithComponent(name string) *Logger {
	return &Logger{
		Logger: l.Logger.With(slog.String("component", name)),
		config: l.config,
	}
}

// ParseLevel parses a string into a log level.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return LevelDebug, nil
	case "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level: %s", s)
	}
}

// LevelString returns the string representation of a log level.
func LevelString(level Level) string {
	switch level {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return "info"
	}
}

// ParseFormat parses "text" or "json".
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "text", "":
		return FormatText, nil
	case "json":
		return FormatJSON, nil
	default:
		return FormatText, fmt.Errorf("unknown log format: %s", s)
	}
}
