// Package telemetry gates and routes a client's telemetry. A Session owns the
// consent flags and tracker registry for one process; the Dispatcher,
// ErrorReporter and RemoteEvents it hands out read them on every call.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"telegate/internal/consent"
	"telegate/internal/crashreport"
	"telegate/internal/eventapi"
	"telegate/internal/logging"
	"telegate/internal/observability"
	"telegate/internal/platform"
	"telegate/internal/tracker"
	"telegate/internal/webanalytics"
)

// Options configure a Session. Adapter, Analytics, Crash and API are required.
type Options struct {
	Adapter   platform.Adapter
	Analytics webanalytics.Client
	Crash     crashreport.Reporter
	API       eventapi.Caller

	Production     bool
	DevAPIOverride bool

	// InitialURL is the URL the client was opened with. It selects the
	// traffic source and the first page view.
	InitialURL string
	// SiteOrigin replaces the analytics location on desktop.
	SiteOrigin string
	TrackerIDs tracker.IDs

	Logger        *logging.Logger
	Observability *observability.Provider
}

// Location is a router location.
type Location struct {
	Path  string
	Query string // including the leading "?", if any
}

// Session is the telemetry state of one running client.
type Session struct {
	adapter    platform.Adapter
	analytics  webanalytics.Client
	consent    *consent.Store
	registry   *tracker.Registry
	dispatcher *Dispatcher
	errors     *ErrorReporter
	remote     *RemoteEvents
	bg         *background
	logger     *logging.Logger
}

// NewSession builds the registry and consent flags, initializes the analytics
// client and sends the initial page view.
func NewSession(ctx context.Context, opts Options) (*Session, error) {
	switch {
	case opts.Adapter == nil:
		return nil, errors.New("telemetry: platform adapter is required")
	case opts.Analytics == nil:
		return nil, errors.New("telemetry: analytics client is required")
	case opts.Crash == nil:
		return nil, errors.New("telemetry: crash reporter is required")
	case opts.API == nil:
		return nil, errors.New("telemetry: event api is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	logger = logger.WithComponent("telemetry")
	obs := opts.Observability
	if obs == nil {
		obs = observability.Noop()
	}

	initial, err := url.Parse(opts.InitialURL)
	if err != nil {
		logger.Warn("unparseable initial url", "url", opts.InitialURL, "error", err)
		initial = &url.URL{Path: "/"}
	}

	registry := tracker.Build(opts.Adapter.Variant(), tracker.ParseTrafficSource(opts.InitialURL), opts.TrackerIDs)
	flags := consent.New(opts.Adapter, logger)
	bg := newBackground(ctx, logger)

	s := &Session{
		adapter:   opts.Adapter,
		analytics: opts.Analytics,
		consent:   flags,
		registry:  registry,
		bg:        bg,
		logger:    logger,
	}
	s.dispatcher = &Dispatcher{
		consent:    flags,
		client:     opts.Analytics,
		adapter:    opts.Adapter,
		production: opts.Production,
		obs:        obs,
		logger:     logger,
		bg:         bg,
	}
	s.errors = &ErrorReporter{
		consent:    flags,
		production: opts.Production,
		api:        opts.API,
		crash:      opts.Crash,
		obs:        obs,
		logger:     logger,
	}
	s.remote = &RemoteEvents{
		consent:        flags,
		adapter:        opts.Adapter,
		api:            opts.API,
		production:     opts.Production,
		devAPIOverride: opts.DevAPIOverride,
		obs:            obs,
		logger:         logger,
		bg:             bg,
	}

	err = opts.Analytics.Initialize(registry.Descriptors(), webanalytics.InitOptions{
		TestMode:            !opts.Production,
		CookieDomain:        "auto",
		SiteSpeedSampleRate: 100,
	})
	if err != nil {
		bg.Stop()
		return nil, fmt.Errorf("telemetry: initialize analytics: %w", err)
	}
	if opts.Adapter.Variant() == platform.VariantDesktop && opts.SiteOrigin != "" {
		opts.Analytics.Set(map[string]string{webanalytics.FieldLocation: opts.SiteOrigin})
	}

	logger.Info("session started",
		"variant", opts.Adapter.Variant(),
		"trackers", registry.Len(),
		"production", opts.Production,
		"internal", flags.Internal(),
		"third_party", flags.ThirdParty(),
	)

	s.dispatcher.PageView(opts.Adapter.InitialPath(initial))
	return s, nil
}

func (s *Session) Consent() *consent.Store     { return s.consent }
func (s *Session) Registry() *tracker.Registry { return s.registry }
func (s *Session) Dispatcher() *Dispatcher     { return s.dispatcher }
func (s *Session) Errors() *ErrorReporter      { return s.errors }
func (s *Session) Remote() *RemoteEvents       { return s.remote }
func (s *Session) Adapter() platform.Adapter   { return s.adapter }

// LocationChanged sends one page view for the new location.
func (s *Session) LocationChanged(loc Location) {
	s.dispatcher.PageView(loc.Path + loc.Query)
}

// Wait blocks until outstanding fire-and-forget calls finish or ctx is done.
func (s *Session) Wait(ctx context.Context) error {
	return s.bg.Wait(ctx)
}

// Close stops accepting fire-and-forget calls, waits for outstanding ones, then drains the analytics send queue if
// the client has one.
func (s *Session) Close(ctx context.Context) error {
	var errs []error
	if err := s.bg.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("wait for background calls: %w", err))
	}

	if c, ok := s.analytics.(interface{ Close(context.Context) error }); ok {
		if err := c.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close analytics: %w", err))
		}
	}
	s.logger.Debug("session closed")
	return errors.Join(errs...)
}
