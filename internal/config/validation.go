package config

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Unwrap lets errors.Is match ErrInvalidConfig.
func (e ValidationErrors) Unwrap() error {
	return ErrInvalidConfig
}

// ErrInvalidConfig is returned when validation fails.
var ErrInvalidConfig = errors.New("invalid configuration")

var trackerIDPattern = regexp.MustCompile(`^UA-\d+-\d+$`)

// ValidateConfig performs comprehensive validation of the configuration.
func ValidateConfig(c *Config) error {
	var errs ValidationErrors

	if c.Version < 1 || c.Version > Version {
		errs = append(errs, ValidationError{
			Field:   "version",
			Message: fmt.Sprintf("unsupported version %d (current: %d)", c.Version, Version),
		})
	}

	errs = append(errs, validatePlatform(&c.Platform)...)
	errs = append(errs, validateAnalytics(&c.Analytics)...)
	errs = append(errs, validateCrash(&c.Crash)...)
	errs = append(errs, validateEventAPI(&c.EventAPI)...)
	if c.Platform.Variant == VariantDesktop && c.Storage.Path == "" {
		errs = append(errs, *RequiredFieldError("storage.path"))
	}
	errs = append(errs, validateLogging(&c.Logging)...)
	errs = append(errs, validateObservability(&c.Observability)...)

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func validatePlatform(p *PlatformConfig) ValidationErrors {
	var errs ValidationErrors

	switch p.Variant {
	case VariantWeb, VariantDesktop:
	default:
		errs = append(errs, ValidationError{
			Field:   "platform.variant",
			Message: fmt.Sprintf("invalid variant: %q (valid: web, desktop)", p.Variant),
		})
	}

	if p.InitialURL != "" {
		if _, err := url.Parse(p.InitialURL); err != nil {
			errs = append(errs, ValidationError{
				Field:   "platform.initial_url",
				Message: fmt.Sprintf("unparseable URL: %v", err),
			})
		}
	}

	if p.Variant == VariantDesktop && p.SiteOrigin != "" && !isValidURL(p.SiteOrigin) {
		errs = append(errs, ValidationError{
			Field:   "platform.site_origin",
			Message: "must be an http(s) URL",
		})
	}

	return errs
}

func validateAnalytics(a *AnalyticsConfig) ValidationErrors {
	var errs ValidationErrors

	if !isValidURL(a.Endpoint) {
		errs = append(errs, ValidationError{
			Field:   "analytics.endpoint",
			Message: "must be an http(s) URL",
		})
	}

	ids := map[string]string{
		"analytics.web_tracker_id":       a.WebTrackerID,
		"analytics.secondary_tracker_id": a.SecondaryTrackerID,
		"analytics.desktop_tracker_id":   a.DesktopTrackerID,
	}
	for field, id := range ids {
		if !trackerIDPattern.MatchString(id) {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("invalid tracker id %q (expected UA-<account>-<property>)", id),
			})
		}
	}

	if a.QueueSize < 1 {
		errs = append(errs, *RangeError("analytics.queue_size", 1, "unbounded"))
	}
	if a.TimeoutMs < 0 {
		errs = append(errs, ValidationError{
			Field:   "analytics.timeout_ms",
			Message: "timeout cannot be negative",
		})
	}

	return errs
}

func validateCrash(c *CrashConfig) ValidationErrors {
	var errs ValidationErrors
	if c.DSN != "" && !isValidURL(c.DSN) {
		errs = append(errs, ValidationError{
			Field:   "crash.dsn",
			Message: "must be an http(s) URL",
		})
	}
	return errs
}

func validateEventAPI(e *EventAPIConfig) ValidationErrors {
	var errs ValidationErrors
	if !isValidURL(e.BaseURL) {
		errs = append(errs, ValidationError{
			Field:   "event_api.base_url",
			Message: "must be an http(s) URL",
		})
	}
	if e.TimeoutMs < 0 {
		errs = append(errs, ValidationError{
			Field:   "event_api.timeout_ms",
			Message: "timeout cannot be negative",
		})
	}
	return errs
}

func validateLogging(l *LoggingConfig) ValidationErrors {
	var errs ValidationErrors

	switch l.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Message: fmt.Sprintf("invalid log level: %s (valid: debug, info, warn, error)", l.Level),
		})
	}

	switch l.Format {
	case "text", "json":
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.format",
			Message: fmt.Sprintf("invalid log format: %s (valid: text, json)", l.Format),
		})
	}

	switch l.Output {
	case "stdout", "stderr":
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.output",
			Message: fmt.Sprintf("invalid log output: %s (valid: stdout, stderr)", l.Output),
		})
	}

	return errs
}

func validateObservability(o *ObservabilityConfig) ValidationErrors {
	var errs ValidationErrors
	if o.SampleRate < 0 || o.SampleRate > 1 {
		errs = append(errs, *RangeError("observability.sample_rate", 0, 1))
	}
	if o.Enabled && o.OTLPEndpoint == "" {
		errs = append(errs, ValidationError{
			Field:   "observability.otlp_endpoint",
			Message: "endpoint is required when observability is enabled",
		})
	}
	return errs
}

func isValidURL(rawURL string) bool {
	if rawURL == "" {
		return false
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return u.Scheme == "http" || u.Scheme == "https"
}

// RequiredFieldError creates a validation error for a required field.
func RequiredFieldError(field string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: "required field is missing",
	}
}

// RangeError creates a validation error for an out-of-range value.
func RangeError(field string, min, max interface{}) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: fmt.Sprintf("value must be between %v and %v", min, max),
	}
}
