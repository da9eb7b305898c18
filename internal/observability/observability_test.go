package observability

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func newTestProvider(t *testing.T) (*Provider, *sdkmetric.ManualReader, *tracetest.SpanRecorder) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	spans := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(spans))

	p, err := NewWithProviders(tp, mp, nil)
	require.NoError(t, err)
	return p, reader, spans
}

func collect(t *testing.T, reader *sdkmetric.ManualReader, name string) *metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

func TestRecordDispatch(t *testing.T) {
	p, reader, _ := newTestProvider(t)
	ctx := context.Background()

	p.RecordDispatch(ctx, "pageview", OutcomeSent)
	p.RecordDispatch(ctx, "pageview", OutcomeSent)
	p.RecordDispatch(ctx, "event", OutcomeSkipped)

	m := collect(t, reader, "telegate.dispatch.total")
	require.NotNil(t, m)
	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok)

	got := map[string]int64{}
	for _, dp := range sum.DataPoints {
		kind, _ := dp.Attributes.Value(attribute.Key("kind"))
		outcome, _ := dp.Attributes.Value(attribute.Key("outcome"))
		got[kind.AsString()+"/"+outcome.AsString()] = dp.Value
	}
	assert.Equal(t, map[string]int64{"pageview/sent": 2, "event/skipped": 1}, got)
}

func TestTrackCall(t *testing.T) {
	p, reader, spans := newTestProvider(t)

	_, done := p.TrackCall(context.Background(), "eventapi.file/view")
	done(nil)
	_, done = p.TrackCall(context.Background(), "crash.capture")
	done(errors.New("transport closed"))

	ended := spans.Ended()
	require.Len(t, ended, 2)
	assert.Equal(t, "eventapi.file/view", ended[0].Name())
	assert.Empty(t, ended[0].Events())
	assert.NotEmpty(t, ended[1].Events(), "error should be recorded on the span")

	m := collect(t, reader, "telegate.backend.duration")
	require.NotNil(t, m)
	hist, ok := m.Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	assert.Len(t, hist.DataPoints, 2)
}

func TestNewDisabledIsNoop(t *testing.T) {
	p, err := New(context.Background(), DefaultConfig(), nil)
	require.NoError(t, err)

	p.RecordDispatch(context.Background(), "event", OutcomeSent)
	_, done := p.TrackCall(context.Background(), "noop")
	done(nil)
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestNoop(t *testing.T) {
	p := Noop()
	require.NotNil(t, p)
	assert.NotNil(t, p.Tracer())
	assert.NotNil(t, p.Meter())
}
