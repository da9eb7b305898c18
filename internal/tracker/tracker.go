// Package tracker builds the ordered list of web-analytics channels for a session.
package tracker

import (
	"net/url"

	"telegate/internal/platform"
)

// SecondaryName is the name of the named channel on the web variant.
const SecondaryName = "tracker2"

// excludedSource is the traffic source whose visitors never get the
// secondary channel. It is not configurable.
const excludedSource = "PB"

// Default tracker ids.
const (
	DefaultWebID       = "UA-60403362-12"
	DefaultSecondaryID = "UA-60403362-16"
	DefaultDesktopID   = "UA-60403362-13"
)

// Descriptor is one analytics channel. An empty Name is the default channel.
type Descriptor struct {
	ID   string
	Name string
}

// IDs are the tracker ids a registry is built from.
type IDs struct {
	Web       string
	Secondary string
	Desktop   string
}

// DefaultIDs returns the production tracker ids.
func DefaultIDs() IDs {
	return IDs{Web: DefaultWebID, Secondary: DefaultSecondaryID, Desktop: DefaultDesktopID}
}

// TrafficSource is the campaign source the client was opened from.
type TrafficSource struct {
	UTMSource string
}

// ParseTrafficSource reads utm_source from the query of rawURL. An
// unparseable URL yields the zero source.
func ParseTrafficSource(rawURL string) TrafficSource {
	u, err := url.Parse(rawURL)
	if err != nil {
		return TrafficSource{}
	}
	return TrafficSource{UTMSource: u.Query().Get("utm_source")}
}

// Excluded reports whether visitors from this source are kept off the secondary channel.
func (s TrafficSource) Excluded() bool {
	return s.UTMSource == excludedSource
}

// Registry is an immutable, ordered set of channels. Index 0 is the default.
type Registry struct {
	descriptors []Descriptor
}

// Build returns the channels for variant and traffic source. Empty ids fall
// back to the defaults.
func Build(variant platform.Variant, src TrafficSource, ids IDs) *Registry {
	def := DefaultIDs()
	if ids.Web == "" {
		ids.Web = def.Web
	}
	if ids.Secondary == "" {
		ids.Secondary = def.Secondary
	}
	if ids.Desktop == "" {
		ids.Desktop = def.Desktop
	}

	if variant == platform.VariantDesktop {
		return &Registry{descriptors: []Descriptor{{ID: ids.Desktop}}}
	}

	ds := []Descriptor{{ID: ids.Web}}
	if !src.Excluded() {
		ds = append(ds, Descriptor{ID: ids.Secondary, Name: SecondaryName})
	}
	return &Registry{descriptors: ds}
}

// Descriptors returns a copy of the channels in order.
func (r *Registry) Descriptors() []Descriptor {
	return append([]Descriptor(nil), r.descriptors...)
}

// Default returns the default channel.
func (r *Registry) Default() Descriptor {
	return r.descriptors[0]
}

// Secondary returns the name of the named channel, if the registry has one.
func (r *Registry) Secondary() (string, bool) {
	for _, d := range r.descriptors {
		if d.Name != "" {
			return d.Name, true
		}
	}
	return "", false
}

// Len returns the number of channels.
func (r *Registry) Len() int { return len(r.descriptors) }
