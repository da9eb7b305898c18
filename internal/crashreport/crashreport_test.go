package crashreport

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captured struct {
	mu     sync.Mutex
	events []*sentry.Event
}

func (c *captured) beforeSend(ev *sentry.Event, _ *sentry.EventHint) *sentry.Event {
	c.mu.Lock()
	c.events = append(c.events, ev)
	c.mu.Unlock()
	return ev
}

func (c *captured) all() []*sentry.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*sentry.Event(nil), c.events...)
}

func TestCaptureWithExtras(t *testing.T) {
	rec := &captured{}
	r, err := NewSentry(Options{Environment: "test", Release: "0.45.1", BeforeSend: rec.beforeSend})
	require.NoError(t, err)

	id := r.CaptureWithExtras(errors.New("render failed"), map[string]any{"componentStack": "at Video"})
	assert.NotEmpty(t, id)

	events := rec.all()
	require.Len(t, events, 1)
	assert.Equal(t, id, string(events[0].EventID))
	assert.Equal(t, "at Video", events[0].Extra["componentStack"])
	assert.Equal(t, "test", events[0].Environment)
	require.NotEmpty(t, events[0].Exception)
	assert.Equal(t, "render failed", events[0].Exception[0].Value)
}

func TestExtrasDoNotLeakBetweenCaptures(t *testing.T) {
	rec := &captured{}
	r, err := NewSentry(Options{BeforeSend: rec.beforeSend})
	require.NoError(t, err)

	r.CaptureWithExtras(errors.New("first"), map[string]any{"route": "/$/discover"})
	r.CaptureWithExtras(errors.New("second"), nil)

	events := rec.all()
	require.Len(t, events, 2)
	_, leaked := events[1].Extra["route"]
	assert.False(t, leaked)
}

func TestDroppedEventHasNoID(t *testing.T) {
	r, err := NewSentry(Options{BeforeSend: func(*sentry.Event, *sentry.EventHint) *sentry.Event { return nil }})
	require.NoError(t, err)

	assert.Empty(t, r.CaptureWithExtras(errors.New("dropped"), nil))
	assert.True(t, r.Flush(10*time.Millisecond))
}

func TestInvalidDSN(t *testing.T) {
	_, err := NewSentry(Options{DSN: "not a dsn"})
	assert.Error(t, err)
}

func TestPanicError(t *testing.T) {
	cause := errors.New("nil claim")
	pe := NewPanicError(cause)
	assert.Equal(t, "panic: nil claim", pe.Error())
	assert.True(t, errors.Is(pe, cause))
	assert.NotEmpty(t, pe.Stack)

	assert.Nil(t, NewPanicError("boom").Unwrap())
}
