// Package crashreport forwards exceptions to a crash-telemetry service.
package crashreport

import (
	"fmt"
	"runtime/debug"
	"time"

	"github.com/getsentry/sentry-go"
)

// Reporter captures an error together with extra context and returns the
// id assigned to the report, or "" when nothing was recorded.
type Reporter interface {
	CaptureWithExtras(err error, extras map[string]any) string
}

// Options configure a SentryReporter.
type Options struct {
	DSN         string
	Environment string
	Release     string
	// BeforeSend may inspect or drop events before transport.
	BeforeSend func(*sentry.Event, *sentry.EventHint) *sentry.Event
	// Transport overrides the HTTP transport.
	Transport sentry.Transport
}

// SentryReporter reports through an isolated sentry hub.
type SentryReporter struct {
	hub *sentry.Hub
}

var _ Reporter = (*SentryReporter)(nil)

// NewSentry builds a reporter with its own client. An empty DSN yields a
// reporter that processes events but never transmits them.
func NewSentry(opts Options) (*SentryReporter, error) {
	client, err := sentry.NewClient(sentry.ClientOptions{
		Dsn:              opts.DSN,
		Environment:      opts.Environment,
		Release:          opts.Release,
		BeforeSend:       opts.BeforeSend,
		Transport:        opts.Transport,
		AttachStacktrace: true,
	})
	if err != nil {
		return nil, fmt.Errorf("crashreport: new client: %w", err)
	}
	return &SentryReporter{hub: sentry.NewHub(client, sentry.NewScope())}, nil
}

// NewWithHub wraps an existing hub.
func NewWithHub(hub *sentry.Hub) *SentryReporter {
	return &SentryReporter{hub: hub}
}

// CaptureWithExtras captures err in a scope carrying extras. The scope does
// not leak into later captures.
func (r *SentryReporter) CaptureWithExtras(err error, extras map[string]any) string {
	var id string
	r.hub.WithScope(func(scope *sentry.Scope) {
		if len(extras) > 0 {
			scope.SetExtras(extras)
		}
		if eventID := r.hub.CaptureException(err); eventID != nil {
			id = string(*eventID)
		}
	})
	return id
}

// Flush waits up to timeout for buffered events to be sent.
func (r *SentryReporter) Flush(timeout time.Duration) bool {
	return r.hub.Flush(timeout)
}

// PanicError is a recovered panic value with the stack it was raised on.
type PanicError struct {
	Value any
	Stack []byte
}

// NewPanicError captures the current goroutine's stack.
func NewPanicError(v any) *PanicError {
	return &PanicError{Value: v, Stack: debug.Stack()}
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// Unwrap exposes a panicked error value.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}
