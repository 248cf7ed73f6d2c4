package health

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrWong99/aiprof/internal/kv"
	"github.com/MrWong99/aiprof/internal/resilience"
)

// ErrNotConfigured is reported by [ProviderConfigured] for an empty provider.
var ErrNotConfigured = errors.New("not configured")

// StoreChecker pings the session store. A store outage makes the service
// unready.
func StoreChecker(s kv.Store) Checker {
	return Checker{
		Name:  "store",
		Check: s.Ping,
	}
}

// BreakerChecker fails while cb is open. It is optional: an open breaker
// only degrades content analysis.
func BreakerChecker(cb *resilience.CircuitBreaker) Checker {
	return Checker{
		Name: "analysis",
		Check: func(context.Context) error {
			if st := cb.State(); st == resilience.StateOpen {
				return fmt.Errorf("circuit %s is %s", cb.Name(), st)
			}
			return nil
		},
		Optional: true,
	}
}

// ProviderConfigured reports whether a provider of the given kind has a
// name set.
func ProviderConfigured(kind, name string, optional bool) Checker {
	return Checker{
		Name: "provider." + kind,
		Check: func(context.Context) error {
			if name == "" {
				return ErrNotConfigured
			}
			return nil
		},
		Optional: optional,
	}
}
