package telemetry

import (
	"context"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"telegate/internal/eventapi"
	"telegate/internal/observability"
	"telegate/internal/platform"
	"telegate/internal/store"
	"telegate/internal/webanalytics"
)

type apiCall struct {
	Namespace string
	Action    string
	Params    map[string]any
}

type fakeAPI struct {
	mu    sync.Mutex
	calls []apiCall
	err   error
	empty bool
}

func (f *fakeAPI) Call(_ context.Context, namespace, action string, params map[string]any) (eventapi.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, apiCall{Namespace: namespace, Action: action, Params: params})
	if f.err != nil {
		return nil, f.err
	}
	if f.empty {
		return nil, nil
	}
	return eventapi.Result(`{"ok":true}`), nil
}

func (f *fakeAPI) all() []apiCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]apiCall(nil), f.calls...)
}

type fakeCrash struct {
	mu     sync.Mutex
	errs   []error
	extras []map[string]any
}

func (f *fakeCrash) CaptureWithExtras(err error, extras map[string]any) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs = append(f.errs, err)
	f.extras = append(f.extras, extras)
	return "evt-" + strconv.Itoa(len(f.errs))
}

func (f *fakeCrash) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.errs)
}

type harness struct {
	session   *Session
	analytics *webanalytics.Recorder
	api       *fakeAPI
	crash     *fakeCrash
	settings  *store.Memory
}

const (
	webURL     = "https://lbry.tv/"
	desktopURL = "file:///opt/LBRY/resources/app.asar/index.html#/"
)

// newHarness starts a session and forgets the calls made while starting it.
func newHarness(t *testing.T, variant platform.Variant, production bool, mutate ...func(*Options)) *harness {
	t.Helper()
	h := &harness{
		analytics: webanalytics.NewRecorder(),
		api:       &fakeAPI{},
		crash:     &fakeCrash{},
		settings:  store.NewMemory(),
	}

	opts := Options{
		Adapter:    platform.NewWeb(),
		Analytics:  h.analytics,
		Crash:      h.crash,
		API:        h.api,
		Production: production,
		InitialURL: webURL,
		SiteOrigin: "https://lbry.tv",
	}
	if variant == platform.VariantDesktop {
		opts.Adapter = platform.NewDesktop(h.settings, platform.StaticVersion("v0.53.2"))
		opts.InitialURL = desktopURL
	}
	for _, fn := range mutate {
		fn(&opts)
	}

	s, err := NewSession(context.Background(), opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close(context.Background()) })

	h.session = s
	h.analytics.Reset()
	return h
}

// wait drains fire-and-forget calls.
func (h *harness) wait(t *testing.T) {
	t.Helper()
	require.NoError(t, h.session.Wait(context.Background()))
}

func withMetrics(t *testing.T) (func(*Options), *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	p, err := observability.NewWithProviders(tracenoop.NewTracerProvider(), mp, nil)
	require.NoError(t, err)
	return func(o *Options) { o.Observability = p }, reader
}

// dispatchCounts returns telegate.dispatch.total keyed by "kind/outcome".
func dispatchCounts(t *testing.T, reader *sdkmetric.ManualReader) map[string]int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	got := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "telegate.dispatch.total" {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok)
			for _, dp := range sum.DataPoints {
				kind, _ := dp.Attributes.Value("kind")
				outcome, _ := dp.Attributes.Value("outcome")
				got[kind.AsString()+"/"+outcome.AsString()] = dp.Value
			}
		}
	}
	return got
}
