// Package platform describes the host a telemetry session runs inside and
// exposes the few capabilities that differ between the web and desktop builds.
package platform

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Variant identifies the host build.
type Variant int

const (
	VariantWeb Variant = iota
	VariantDesktop
)

func (v Variant) String() string {
	switch v {
	case VariantWeb:
		return "web"
	case VariantDesktop:
		return "desktop"
	default:
		return fmt.Sprintf("variant(%d)", int(v))
	}
}

// ParseVariant parses "web" or "desktop".
func ParseVariant(s string) (Variant, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "web":
		return VariantWeb, nil
	case "desktop", "app":
		return VariantDesktop, nil
	default:
		return VariantWeb, fmt.Errorf("unknown platform variant: %q", s)
	}
}

// Persisted consent keys.
const (
	KeyShareInternal   = "shareInternal"
	KeyShareThirdParty = "shareThirdParty"
)

// ErrUnsupported is returned by capabilities the variant does not have.
var ErrUnsupported = errors.New("platform: not supported on this variant")

// Adapter is the capability set a telemetry session needs from its host.
type Adapter interface {
	Variant() Variant

	// DefaultConsent is the value both consent flags start from.
	DefaultConsent() bool

	// PersistFlag stores a consent flag under key.
	PersistFlag(key string, value bool) error

	// ReadPersistedFlag returns the stored flag. ok is false when nothing is stored.
	ReadPersistedFlag(key string) (value, ok bool, err error)

	// AppVersion returns the host application version.
	AppVersion(ctx context.Context) (string, error)

	// InitialPath derives the first page-view path from the URL the client was opened with.
	InitialPath(u *url.URL) string
}

func withQuery(path string, u *url.URL) string {
	if u.RawQuery == "" {
		return path
	}
	return path + "?" + u.RawQuery
}
