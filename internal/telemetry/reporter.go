package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"

	"telegate/internal/consent"
	"telegate/internal/crashreport"
	"telegate/internal/eventapi"
	"telegate/internal/logging"
	"telegate/internal/observability"
)

// ErrorReporter sends user-facing errors to the event API and exceptions to
// the crash service. Both need the internal flag and a production build.
type ErrorReporter struct {
	consent    *consent.Store
	production bool
	api        eventapi.Caller
	crash      crashreport.Reporter
	obs        *observability.Provider
	logger     *logging.Logger
}

func (r *ErrorReporter) allowed() bool {
	return r.production && r.consent.Internal()
}

// ReportUserError records message as a desktop_error event. It reports whether
// the call was made; a backend failure is logged and still counts as made.
func (r *ErrorReporter) ReportUserError(ctx context.Context, message string) bool {
	if !r.allowed() {
		r.obs.RecordDispatch(ctx, "user_error", observability.OutcomeSkipped)
		return false
	}

	ctx, done := r.obs.TrackCall(ctx, "eventapi.event/desktop_error")
	_, err := r.api.Call(ctx, "event", "desktop_error", map[string]any{"error_message": message})
	done(err)
	if err != nil {
		r.logger.Warn("report user error", "error", err)
		r.obs.RecordDispatch(ctx, "user_error", observability.OutcomeFailed)
		return true
	}
	r.obs.RecordDispatch(ctx, "user_error", observability.OutcomeSent)
	return true
}

// ReportException captures err with extras in its own scope and returns the
// crash event id. ok is false when reporting is not allowed.
func (r *ErrorReporter) ReportException(ctx context.Context, err error, extras map[string]any) (eventID string, ok bool) {
	if !r.allowed() || err == nil {
		r.obs.RecordDispatch(ctx, "exception", observability.OutcomeSkipped)
		return "", false
	}

	_, done := r.obs.TrackCall(ctx, "crash.capture", attribute.Int("extras", len(extras)))
	eventID = r.crash.CaptureWithExtras(err, extras)
	done(nil)

	outcome := observability.OutcomeSent
	if eventID == "" {
		outcome = observability.OutcomeFailed
	}
	r.obs.RecordDispatch(ctx, "exception", outcome)
	return eventID, true
}

// Recover runs fn. A panic is reported as a *crashreport.PanicError with the
// goroutine stack added to extras, then swallowed and returned.
func (r *ErrorReporter) Recover(ctx context.Context, extras map[string]any, fn func()) (perr *crashreport.PanicError) {
	defer func() {
		v := recover()
		if v == nil {
			return
		}
		perr = crashreport.NewPanicError(v)
		merged := make(map[string]any, len(extras)+1)
		for k, val := range extras {
			merged[k] = val
		}
		merged["stack"] = string(perr.Stack)

		r.logger.Error("recovered panic", "panic", perr.Value)
		r.ReportException(ctx, perr, merged)
	}()
	fn()
	return nil
}
