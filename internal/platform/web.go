package platform

import (
	"context"
	"net/url"
)

// Web is the browser-hosted build. Consent is always granted and nothing is persisted.
type Web struct{}

// NewWeb returns the web adapter.
func NewWeb() *Web { return &Web{} }

func (*Web) Variant() Variant { return VariantWeb }

func (*Web) DefaultConsent() bool { return true }

func (*Web) PersistFlag(string, bool) error { return nil }

func (*Web) ReadPersistedFlag(string) (bool, bool, error) { return false, false, nil }

func (*Web) AppVersion(context.Context) (string, error) { return "", ErrUnsupported }

// InitialPath is the URL path followed by its query.
func (*Web) InitialPath(u *url.URL) string {
	if u == nil {
		return "/"
	}
	return withQuery(u.EscapedPath(), u)
}
