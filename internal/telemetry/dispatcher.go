package telemetry

import (
	"context"
	"time"

	"telegate/internal/consent"
	"telegate/internal/logging"
	"telegate/internal/observability"
	"telegate/internal/platform"
	"telegate/internal/tracker"
	"telegate/internal/webanalytics"
)

// Dispatch kinds recorded in telegate.dispatch.total.
const (
	kindPageView = "pageview"
	kindEvent    = "event"
	kindTiming   = "timing"
	kindSetUser  = "set_user"
)

// Page views, events and timings address the named secondary channel only.
// A client without that channel drops them.
func secondary() []string { return []string{tracker.SecondaryName} }

// Dispatcher forwards page views, events and timings to the web-analytics
// client. Methods never block on the network and never fail; anything the
// current consent does not allow is dropped silently.
type Dispatcher struct {
	consent    *consent.Store
	client     webanalytics.Client
	adapter    platform.Adapter
	production bool
	obs        *observability.Provider
	logger     *logging.Logger
	bg         *background
}

// PageView records a page view on the secondary channel.
func (d *Dispatcher) PageView(path string) {
	if !d.consent.ThirdParty() {
		d.skip(kindPageView)
		return
	}
	d.client.PageView(path, secondary())
	d.sent(kindPageView)
}

func (d *Dispatcher) event(category, action string, label *string, value *int64) {
	if !d.consent.ThirdParty() || !d.production {
		d.skip(kindEvent)
		return
	}
	d.client.Event(webanalytics.Event{
		Category: category,
		Action:   action,
		Label:    optionalLabel(label),
		Value:    value,
	}, secondary())
	d.sent(kindEvent)
}

// TimingEvent records a duration of valueMs milliseconds.
func (d *Dispatcher) TimingEvent(category, variable string, valueMs int64, label *string) {
	if !d.consent.ThirdParty() || !d.production {
		d.skip(kindTiming)
		return
	}
	d.client.Timing(webanalytics.Timing{
		Category: category,
		Variable: variable,
		Value:    valueMs,
		Label:    optionalLabel(label),
	}, secondary())
	d.sent(kindTiming)
}

// VideoStart records how long a stream took to start playing.
func (d *Dispatcher) VideoStart(claimID string, timeToStart time.Duration) {
	d.TimingEvent("Media", "TimeToStart", millis(timeToStart), &claimID)
}

// VideoBuffer records the playback position at which a stream buffered.
func (d *Dispatcher) VideoBuffer(claimID string, position time.Duration) {
	d.TimingEvent("Media", "BufferTimestamp", millis(position), &claimID)
}

func (d *Dispatcher) TagFollow(tag string, following bool) {
	category := "Tag-Unfollow"
	if following {
		category = "Tag-Follow"
	}
	d.event(category, tag, nil, nil)
}

func (d *Dispatcher) ChannelBlock(uri string, blocked bool) {
	category := "Channel-Unhidden"
	if blocked {
		category = "Channel-Hidden"
	}
	d.event(category, uri, nil, nil)
}

func (d *Dispatcher) EmailProvided()  { d.event("Engagement", "Email-Provided", nil, nil) }
func (d *Dispatcher) EmailVerified()  { d.event("Engagement", "Email-Verified", nil, nil) }
func (d *Dispatcher) RewardEligible() { d.event("Engagement", "Reward-Eligible", nil, nil) }

func (d *Dispatcher) OpenURL(url string) { d.event("Engagement", "Open-Url", &url, nil) }

func (d *Dispatcher) Startup() { d.event("Startup", "Startup", nil, nil) }

// Ready records that the app finished loading, as an event and a timing.
func (d *Dispatcher) Ready(timeToReady time.Duration) {
	d.event("Startup", "App-Ready", nil, nil)
	d.TimingEvent("Startup", "App-Ready", millis(timeToReady), nil)
}

// SetUser attaches userID to the default channel. On desktop it also reports
// the installed app version once it is known.
func (d *Dispatcher) SetUser(userID string) {
	if !d.consent.ThirdParty() || userID == "" {
		d.skip(kindSetUser)
		return
	}
	d.client.Set(map[string]string{webanalytics.FieldUserID: userID})
	d.sent(kindSetUser)

	if d.adapter.Variant() != platform.VariantDesktop {
		return
	}
	d.bg.Go("app version", func(ctx context.Context) error {
		version, err := d.adapter.AppVersion(ctx)
		if err != nil {
			return err
		}
		d.event("Desktop-Version", version, nil, nil)
		return nil
	})
}

func (d *Dispatcher) sent(kind string) {
	d.obs.RecordDispatch(context.Background(), kind, observability.OutcomeSent)
}

func (d *Dispatcher) skip(kind string) {
	d.obs.RecordDispatch(context.Background(), kind, observability.OutcomeSkipped)
	d.logger.Debug("dispatch skipped", "kind", kind)
}

// optionalLabel treats an empty label as unset.
func optionalLabel(label *string) *string {
	if label == nil || *label == "" {
		return nil
	}
	return label
}

func millis(d time.Duration) int64 {
	return d.Round(time.Millisecond).Milliseconds()
}
