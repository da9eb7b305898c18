package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"telegate/internal/config"
	"telegate/internal/crashreport"
	"telegate/internal/eventapi"
	"telegate/internal/health"
	"telegate/internal/logging"
	"telegate/internal/observability"
	"telegate/internal/platform"
	"telegate/internal/store"
	"telegate/internal/telemetry"
	"telegate/internal/tracker"
	"telegate/internal/webanalytics"
)

// app holds everything a command needs, built from one configuration.
type app struct {
	cfg       *config.Config
	logger    *logging.Logger
	session   *telemetry.Session
	settings  *store.SQLite
	analytics *webanalytics.HTTPClient
	crash     *crashreport.SentryReporter
	obs       *observability.Provider
}

// resolveConfigPath picks the -config flag, then a discovered file, then the default.
func resolveConfigPath(flagPath string) string {
	if flagPath != "" {
		return flagPath
	}
	if found := config.FindConfigFile(); found != "" {
		return found
	}
	return config.ConfigPath()
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.NewLoader(path).Load()
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) (*logging.Logger, error) {
	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return nil, err
	}
	format, err := logging.ParseFormat(cfg.Logging.Format)
	if err != nil {
		return nil, err
	}
	lc := logging.DefaultConfig()
	lc.Level = level
	lc.Format = format
	lc.Output = cfg.Logging.Output
	return logging.New(lc)
}

// openApp wires the backends described by cfg into a telemetry session.
func openApp(ctx context.Context, cfg *config.Config) (*app, error) {
	logger, err := newLogger(cfg)
	if err != nil {
		return nil, fmt.Errorf("init logging: %w", err)
	}
	logging.SetDefault(logger)

	a := &app{cfg: cfg, logger: logger}
	ok := false
	defer func() {
		if !ok {
			_ = a.close(context.Background())
		}
	}()

	adapter, err := a.openAdapter()
	if err != nil {
		return nil, err
	}

	a.obs, err = observability.New(ctx, &observability.Config{
		ServiceName:    cfg.Observability.ServiceName,
		ServiceVersion: versionOr(cfg.Platform.AppVersion, "dev"),
		Environment:    cfg.Crash.Environment,
		OTLPEndpoint:   cfg.Observability.OTLPEndpoint,
		SampleRate:     cfg.Observability.SampleRate,
		Enabled:        cfg.Observability.Enabled,
		Insecure:       cfg.Observability.Insecure,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("init observability: %w", err)
	}

	a.analytics = webanalytics.NewHTTPClient(webanalytics.Config{
		Endpoint:  cfg.Analytics.Endpoint,
		QueueSize: cfg.Analytics.QueueSize,
		Timeout:   time.Duration(cfg.Analytics.TimeoutMs) * time.Millisecond,
	}, logger)
	a.analytics.Start(ctx)

	a.crash, err = crashreport.NewSentry(crashreport.Options{
		DSN:         cfg.Crash.DSN,
		Environment: cfg.Crash.Environment,
		Release:     cfg.Crash.Release,
	})
	if err != nil {
		return nil, fmt.Errorf("init crash reporting: %w", err)
	}

	api, err := eventapi.NewHTTPClient(eventapi.Config{
		BaseURL:   cfg.EventAPI.BaseURL,
		AuthToken: cfg.EventAPI.AuthToken,
		Timeout:   time.Duration(cfg.EventAPI.TimeoutMs) * time.Millisecond,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("init event api: %w", err)
	}

	a.session, err = telemetry.NewSession(ctx, telemetry.Options{
		Adapter:        adapter,
		Analytics:      a.analytics,
		Crash:          a.crash,
		API:            api,
		Production:     cfg.Build.Production,
		DevAPIOverride: cfg.Build.DevAPIOverride,
		InitialURL:     cfg.Platform.InitialURL,
		SiteOrigin:     cfg.Platform.SiteOrigin,
		TrackerIDs: tracker.IDs{
			Web:       cfg.Analytics.WebTrackerID,
			Secondary: cfg.Analytics.SecondaryTrackerID,
			Desktop:   cfg.Analytics.DesktopTrackerID,
		},
		Logger:        logger,
		Observability: a.obs,
	})
	if err != nil {
		return nil, err
	}

	ok = true
	return a, nil
}

func (a *app) openAdapter() (platform.Adapter, error) {
	variant, err := platform.ParseVariant(a.cfg.Platform.Variant)
	if err != nil {
		return nil, err
	}
	if variant == platform.VariantWeb {
		return platform.NewWeb(), nil
	}

	if err := a.cfg.EnsureDirectories(); err != nil {
		return nil, err
	}
	a.settings, err = store.Open(a.cfg.Storage.Path)
	if err != nil {
		return nil, fmt.Errorf("open settings: %w", err)
	}

	var version platform.VersionSource
	if a.cfg.Platform.AppVersion != "" {
		version = platform.StaticVersion(a.cfg.Platform.AppVersion)
	}
	return platform.NewDesktop(a.settings, version), nil
}

// applyConsent sets the consent flags the configuration names.
func (a *app) applyConsent(c config.ConsentConfig) error {
	var errs []error
	if c.ShareInternal != nil {
		errs = append(errs, a.session.Consent().SetInternal(*c.ShareInternal))
	}
	if c.ShareThirdParty != nil {
		errs = append(errs, a.session.Consent().SetThirdParty(*c.ShareThirdParty))
	}
	return errors.Join(errs...)
}

// checker returns health checks for the backends this app opened.
func (a *app) checker() *health.Checker {
	c := health.NewChecker()
	if a.settings != nil {
		c.RegisterFunc("settings", true, health.PingCheck(a.settings.Ping))
	}
	c.RegisterFunc("analytics_queue", false, health.QueueCheck(a.analytics.Stats, 0.1))
	c.RegisterFunc("consent", false, health.ConsentCheck(func() (bool, bool) {
		f := a.session.Consent().Get()
		return f.Internal, f.ThirdParty
	}))
	return c
}

// close drains queued telemetry and releases every backend.
func (a *app) close(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var errs []error
	if a.session != nil {
		if err := a.session.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	} else if a.analytics != nil {
		if err := a.analytics.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if a.crash != nil {
		a.crash.Flush(2 * time.Second)
	}
	if a.obs != nil {
		if err := a.obs.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if a.settings != nil {
		if err := a.settings.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close settings: %w", err))
		}
	}
	return errors.Join(errs...)
}

func versionOr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
