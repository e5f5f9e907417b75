package cache

import (
	"time"

	"github.com/jonwraymond/resultcache/store"
)

// Policy configures entry lifetimes.
type Policy struct {
	// DefaultTTL is the TTL to use when none is specified.
	// store.NoExpiration keeps entries until invalidated or evicted.
	DefaultTTL time.Duration

	// MaxTTL is the maximum allowed TTL. Override TTLs are clamped to this.
	// If zero, no maximum is enforced.
	MaxTTL time.Duration
}

// DefaultPolicy returns the default lifetime policy.
// DefaultTTL: 5 minutes, MaxTTL: none
func DefaultPolicy() Policy {
	return Policy{
		DefaultTTL: 5 * time.Minute,
	}
}

// Validate checks both durations.
func (p Policy) Validate() error {
	if store.ValidateTTL(p.DefaultTTL) != nil || p.MaxTTL < 0 {
		return ErrInvalidTTL
	}
	return nil
}

// EffectiveTTL returns the TTL to use, applying defaults and clamping.
// A zero override selects DefaultTTL. store.NoExpiration is clamped to
// MaxTTL when one is set.
func (p Policy) EffectiveTTL(override time.Duration) time.Duration {
	ttl := override
	if ttl == 0 {
		ttl = p.DefaultTTL
	}

	if ttl == store.NoExpiration {
		if p.MaxTTL > 0 {
			return p.MaxTTL
		}
		return ttl
	}

	if p.MaxTTL > 0 && ttl > p.MaxTTL {
		ttl = p.MaxTTL
	}
	return ttl
}
