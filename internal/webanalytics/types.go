// Package webanalytics sends page views, events and timings to a web-analytics
// service using Measurement Protocol v1 hits.
package webanalytics

import (
	"net/url"

	"telegate/internal/tracker"
)

// Event is a categorized user action. Nil optionals are not sent.
type Event struct {
	Category string
	Action   string
	Label    *string
	Value    *int64
}

// Timing is a duration measurement in milliseconds.
type Timing struct {
	Category string
	Variable string
	Value    int64
	Label    *string
}

// InitOptions configure a client session.
type InitOptions struct {
	// TestMode records hits instead of sending them.
	TestMode            bool
	CookieDomain        string
	SiteSpeedSampleRate int
}

// Fields accepted by Set.
const (
	FieldUserID   = "uid"
	FieldLocation = "dl"
)

// Client is the web-analytics backend. Calls return immediately; hits are
// delivered in call order. An empty trackers list addresses the default channel.
type Client interface {
	Initialize(trackers []tracker.Descriptor, opts InitOptions) error
	PageView(path string, trackers []string)
	Event(ev Event, trackers []string)
	Timing(t Timing, trackers []string)
	// Set attaches fields to every later hit of the default channel.
	Set(fields map[string]string)
}

// Hit is one encoded measurement-protocol request.
type Hit struct {
	TrackerID string
	Type      string
	Params    url.Values
}

// String returns a pointer to s, for optional fields.
func String(s string) *string { return &s }

// Int64 returns a pointer to v, for optional fields.
func Int64(v int64) *int64 { return &v }
