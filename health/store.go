package health

import (
	"context"
	"fmt"

	"github.com/jonwraymond/resultcache/store"
)

// StatsSource reports entry counts. store.Store implements it; a source that
// also implements store.Pinger is pinged.
type StatsSource interface {
	Stats() store.Stats
}

// StoreCheckerConfig configures the store health checker.
type StoreCheckerConfig struct {
	// Name is returned by Name.
	// Default: "store"
	Name string

	// MaxEntries is the store's capacity bound. Zero disables the
	// capacity check.
	MaxEntries int

	// WarningThreshold is the fraction of MaxEntries that triggers
	// degraded status. Value should be between 0 and 1. Default: 0.9
	WarningThreshold float64
}

// StoreChecker checks an entry store.
type StoreChecker struct {
	source StatsSource
	config StoreCheckerConfig
}

// NewStoreChecker creates a checker for source.
func NewStoreChecker(source StatsSource, config StoreCheckerConfig) *StoreChecker {
	if config.Name == "" {
		config.Name = "store"
	}
	if config.WarningThreshold <= 0 || config.WarningThreshold > 1 {
		config.WarningThreshold = 0.9
	}
	return &StoreChecker{source: source, config: config}
}

// Name returns the name of this checker.
func (s *StoreChecker) Name() string {
	return s.config.Name
}

// Ping pings the store when it supports it.
func (s *StoreChecker) Ping(ctx context.Context) error {
	if p, ok := s.source.(store.Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

// Check performs the store health check.
func (s *StoreChecker) Check(ctx context.Context) Result {
	if r, done := cancelled(ctx); done {
		return r
	}

	if err := s.Ping(ctx); err != nil {
		return Unhealthy("store unreachable", err)
	}

	stats := s.source.Stats()
	details := map[string]any{
		"entries":     stats.Entries,
		"in_flight":   stats.InFlight,
		"evictions":   stats.Evictions,
		"discarded":   stats.Discarded,
		"unavailable": stats.Unavailable,
	}

	if s.config.MaxEntries > 0 {
		used := float64(stats.Entries+stats.InFlight) / float64(s.config.MaxEntries)
		details["max_entries"] = s.config.MaxEntries
		details["usage_percent"] = used * 100
		if used >= s.config.WarningThreshold {
			return Degraded(fmt.Sprintf("store near capacity: %.1f%%", used*100)).WithDetails(details)
		}
	}

	return Healthy("store available").WithDetails(details)
}

// Ensure StoreChecker implements PingChecker
var _ PingChecker = (*StoreChecker)(nil)
