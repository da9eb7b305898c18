package platform

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/Masterminds/semver/v3"

	"telegate/internal/store"
)

// VersionSource reports the running application version, e.g. "v0.45.1".
type VersionSource func(ctx context.Context) (string, error)

// StaticVersion returns a VersionSource that always reports v.
func StaticVersion(v string) VersionSource {
	return func(context.Context) (string, error) { return v, nil }
}

// Desktop is the desktop-embedded build. Consent starts off and is
// persisted in a local settings store.
type Desktop struct {
	settings store.Settings
	version  VersionSource
}

// NewDesktop returns a desktop adapter over settings. A nil version source
// makes AppVersion return ErrUnsupported.
func NewDesktop(settings store.Settings, version VersionSource) *Desktop {
	return &Desktop{settings: settings, version: version}
}

func (*Desktop) Variant() Variant { return VariantDesktop }

func (*Desktop) DefaultConsent() bool { return false }

// PersistFlag stores value as "true" or "false".
func (d *Desktop) PersistFlag(key string, value bool) error {
	if err := d.settings.Set(key, strconv.FormatBool(value)); err != nil {
		return fmt.Errorf("persist %s: %w", key, err)
	}
	return nil
}

// ReadPersistedFlag reports true only for the exact stored string "true".
func (d *Desktop) ReadPersistedFlag(key string) (bool, bool, error) {
	raw, ok, err := d.settings.Get(key)
	if err != nil {
		return false, false, fmt.Errorf("read %s: %w", key, err)
	}
	if !ok {
		return false, false, nil
	}
	return raw == "true", true, nil
}

// AppVersion returns the normalized semantic version of the application.
func (d *Desktop) AppVersion(ctx context.Context) (string, error) {
	if d.version == nil {
		return "", ErrUnsupported
	}
	raw, err := d.version(ctx)
	if err != nil {
		return "", fmt.Errorf("query app version: %w", err)
	}
	v, err := semver.NewVersion(raw)
	if err != nil {
		return "", fmt.Errorf("parse app version %q: %w", raw, err)
	}
	return v.String(), nil
}

// InitialPath takes the route after the bundled ".html" page plus the query.
// When that is empty the client was opened on a hash route instead.
func (*Desktop) InitialPath(u *url.URL) string {
	if u == nil {
		return "/"
	}
	var route string
	if _, after, found := strings.Cut(u.EscapedPath(), ".html"); found {
		route = after
	}
	if p := withQuery(route, u); p != "" {
		return p
	}
	return hashRoute(u.Fragment)
}

func hashRoute(fragment string) string {
	fragment = strings.TrimPrefix(fragment, "#")
	if fragment == "" {
		return "/"
	}
	if !strings.HasPrefix(fragment, "/") {
		return "/" + fragment
	}
	return fragment
}
