package telemetry

import (
	"context"
	"strconv"

	"telegate/internal/consent"
	"telegate/internal/eventapi"
	"telegate/internal/logging"
	"telegate/internal/observability"
	"telegate/internal/platform"
)

// ViewParams describe one file view. TimeToStart is in milliseconds.
type ViewParams struct {
	URI         string
	Outpoint    string
	ClaimID     string
	TimeToStart *int64
}

func (v ViewParams) params(withTiming bool) map[string]any {
	p := map[string]any{
		"uri":      v.URI,
		"outpoint": v.Outpoint,
		"claim_id": v.ClaimID,
	}
	if withTiming && v.TimeToStart != nil {
		p["time_to_start"] = *v.TimeToStart
	}
	return p
}

// ChannelRef points at the channel that signed a claim.
type ChannelRef struct {
	ClaimID string
}

// Claim is the subset of a published claim reported to the event API.
type Claim struct {
	PermanentURL   string
	ClaimID        string
	TxID           string
	Nout           int
	SigningChannel *ChannelRef
}

// PublishParams are the event/publish parameters derived from a Claim.
type PublishParams struct {
	URI            string
	ClaimID        string
	Outpoint       string
	ChannelClaimID *string
}

// PublishParamsFor builds the publish parameters for c.
func PublishParamsFor(c Claim) PublishParams {
	p := PublishParams{
		URI:      c.PermanentURL,
		ClaimID:  c.ClaimID,
		Outpoint: c.TxID + ":" + strconv.Itoa(c.Nout),
	}
	if c.SigningChannel != nil {
		id := c.SigningChannel.ClaimID
		p.ChannelClaimID = &id
	}
	return p
}

func (p PublishParams) params() map[string]any {
	m := map[string]any{
		"uri":      p.URI,
		"claim_id": p.ClaimID,
		"outpoint": p.Outpoint,
	}
	if p.ChannelClaimID != nil {
		m["channel_claim_id"] = *p.ChannelClaimID
	}
	return m
}

// RemoteEvents reports views, publishes and searches to the first-party API.
// LogView returns the backend result; the other methods are fire-and-forget.
type RemoteEvents struct {
	consent        *consent.Store
	adapter        platform.Adapter
	api            eventapi.Caller
	production     bool
	devAPIOverride bool
	obs            *observability.Provider
	logger         *logging.Logger
	bg             *background
}

// LogView reports a file view. reported is false, with no error, when
// reporting is not allowed; the result may be empty even when reported.
func (e *RemoteEvents) LogView(ctx context.Context, v ViewParams) (res eventapi.Result, reported bool, err error) {
	if !e.consent.Internal() || !(e.production || e.devAPIOverride) {
		e.obs.RecordDispatch(ctx, "view", observability.OutcomeSkipped)
		return nil, false, nil
	}
	params := v.params(e.adapter.Variant() != platform.VariantWeb)
	res, err = e.call(ctx, "view", "file", "view", params)
	return res, true, err
}

// LogPublish reports a new publish. The result may be discarded.
func (e *RemoteEvents) LogPublish(c Claim) {
	if !e.consent.Internal() || !e.production {
		e.obs.RecordDispatch(context.Background(), "publish", observability.OutcomeSkipped)
		return
	}
	params := PublishParamsFor(c).params()
	e.bg.Go("event/publish", func(ctx context.Context) error {
		_, err := e.call(ctx, "publish", "event", "publish", params)
		return err
	})
}

// LogSearch reports that a search ran. The result may be discarded.
func (e *RemoteEvents) LogSearch() {
	if !e.consent.Internal() || !e.production {
		e.obs.RecordDispatch(context.Background(), "search", observability.OutcomeSkipped)
		return
	}
	e.bg.Go("event/search", func(ctx context.Context) error {
		_, err := e.call(ctx, "search", "event", "search", nil)
		return err
	})
}

// LogSearchFeedback reports a vote on a search result. It is sent on any
// production build regardless of consent. The result may be discarded.
func (e *RemoteEvents) LogSearchFeedback(query string, vote int) {
	if !e.production {
		e.obs.RecordDispatch(context.Background(), "search_feedback", observability.OutcomeSkipped)
		return
	}
	params := map[string]any{"query": query, "vote": vote}
	e.bg.Go("feedback/search", func(ctx context.Context) error {
		_, err := e.call(ctx, "search_feedback", "feedback", "search", params)
		return err
	})
}

func (e *RemoteEvents) call(ctx context.Context, kind, namespace, action string, params map[string]any) (eventapi.Result, error) {
	ctx, done := e.obs.TrackCall(ctx, "eventapi."+namespace+"/"+action)
	res, err := e.api.Call(ctx, namespace, action, params)
	done(err)
	if err != nil {
		e.obs.RecordDispatch(ctx, kind, observability.OutcomeFailed)
		return nil, err
	}
	e.obs.RecordDispatch(ctx, kind, observability.OutcomeSent)
	return res, nil
}
