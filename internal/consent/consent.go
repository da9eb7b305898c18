// Package consent holds the two user consent flags that gate telemetry.
package consent

import (
	"fmt"
	"sync/atomic"

	"telegate/internal/logging"
	"telegate/internal/platform"
)

// Flags is a snapshot of both consent flags.
type Flags struct {
	// Internal allows sending to first-party and crash backends.
	Internal bool
	// ThirdParty allows sending to the web-analytics backend.
	ThirdParty bool
}

// Store holds the live consent flags. Reads and writes are lock-free; the
// two flags are independent and a snapshot may mix old and new values.
type Store struct {
	adapter    platform.Adapter
	logger     *logging.Logger
	internal   atomic.Bool
	thirdParty atomic.Bool
}

// New seeds a store from the adapter's default and, on desktop, from the
// persisted values. A read failure is logged and leaves the default.
func New(adapter platform.Adapter, logger *logging.Logger) *Store {
	if logger == nil {
		logger = logging.Discard()
	}
	s := &Store{adapter: adapter, logger: logger.WithComponent("consent")}

	def := adapter.DefaultConsent()
	s.internal.Store(def)
	s.thirdParty.Store(def)

	if adapter.Variant() == platform.VariantDesktop {
		s.seed(platform.KeyShareInternal, &s.internal)
		s.seed(platform.KeyShareThirdParty, &s.thirdParty)
	}
	return s
}

func (s *Store) seed(key string, flag *atomic.Bool) {
	v, ok, err := s.adapter.ReadPersistedFlag(key)
	if err != nil {
		s.logger.Warn("read persisted consent", "key", key, "error", err)
		return
	}
	if ok && v {
		flag.Store(true)
	}
}

// Get returns the current flags.
func (s *Store) Get() Flags {
	return Flags{
		Internal:   s.internal.Load(),
		ThirdParty: s.thirdParty.Load(),
	}
}

// Internal reports the internal-sharing flag.
func (s *Store) Internal() bool { return s.internal.Load() }

// ThirdParty reports the third-party-sharing flag.
func (s *Store) ThirdParty() bool { return s.thirdParty.Load() }

// SetInternal changes the internal-sharing flag. It is a no-op on web.
func (s *Store) SetInternal(enabled bool) error {
	return s.set(platform.KeyShareInternal, &s.internal, enabled)
}

// SetThirdParty changes the third-party-sharing flag. It is a no-op on web.
func (s *Store) SetThirdParty(enabled bool) error {
	return s.set(platform.KeyShareThirdParty, &s.thirdParty, enabled)
}

// set updates memory first, then persists. A persistence failure is returned
// but the in-memory value stays changed.
func (s *Store) set(key string, flag *atomic.Bool, enabled bool) error {
	if s.adapter.Variant() != platform.VariantDesktop {
		return nil
	}
	flag.Store(enabled)
	if err := s.adapter.PersistFlag(key, enabled); err != nil {
		s.logger.Error("persist consent", "key", key, "enabled", enabled, "error", err)
		return fmt.Errorf("consent: %w", err)
	}
	s.logger.Debug("consent changed", "key", key, "enabled", enabled)
	return nil
}
