package webanalytics

import (
	"sync"

	"telegate/internal/tracker"
)

// Call is one method invocation captured by a Recorder.
type Call struct {
	Method   string // "initialize", "pageview", "event", "timing" or "set"
	Trackers []string
	Path     string
	Event    *Event
	Timing   *Timing
	Fields   map[string]string
	Init     []tracker.Descriptor
	Options  InitOptions
}

// Recorder is a Client that stores every call synchronously. It sends nothing.
type Recorder struct {
	mu    sync.Mutex
	calls []Call
}

var _ Client = (*Recorder)(nil)

// NewRecorder returns an empty recorder.
func NewRecorder() *Recorder { return &Recorder{} }

func (r *Recorder) add(c Call) {
	r.mu.Lock()
	r.calls = append(r.calls, c)
	r.mu.Unlock()
}

func (r *Recorder) Initialize(trackers []tracker.Descriptor, opts InitOptions) error {
	r.add(Call{Method: "initialize", Init: append([]tracker.Descriptor(nil), trackers...), Options: opts})
	return nil
}

func (r *Recorder) PageView(path string, trackers []string) {
	r.add(Call{Method: "pageview", Path: path, Trackers: trackers})
}

func (r *Recorder) Event(ev Event, trackers []string) {
	r.add(Call{Method: "event", Event: &ev, Trackers: trackers})
}

func (r *Recorder) Timing(t Timing, trackers []string) {
	r.add(Call{Method: "timing", Timing: &t, Trackers: trackers})
}

func (r *Recorder) Set(fields map[string]string) {
	cp := make(map[string]string, len(fields))
	for k, v := range fields {
		cp[k] = v
	}
	r.add(Call{Method: "set", Fields: cp})
}

// Calls returns a copy of every recorded call in order.
func (r *Recorder) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Call(nil), r.calls...)
}

// Outbound returns only the hit-producing calls: page views, events and timings.
func (r *Recorder) Outbound() []Call {
	var out []Call
	for _, c := range r.Calls() {
		switch c.Method {
		case "pageview", "event", "timing":
			out = append(out, c)
		}
	}
	return out
}

// Reset forgets all recorded calls.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.calls = nil
	r.mu.Unlock()
}
