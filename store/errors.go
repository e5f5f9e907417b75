package store

import "errors"

// Sentinel errors for store operations.
var (
	// ErrTimeout is returned by AwaitReady when its deadline expires.
	// The entry is left untouched.
	ErrTimeout = errors.New("store: await deadline exceeded")

	// ErrCapacityBlocked is returned when MaxEntries is reached, nothing is
	// evictable, and the capacity wait elapsed.
	ErrCapacityBlocked = errors.New("store: capacity exhausted")

	// ErrUnavailable indicates the backing could not be read or written.
	ErrUnavailable = errors.New("store: backing unavailable")

	// ErrNotOwner indicates Publish or Fail with a reservation the store
	// does not hold (already finished, or the store was closed).
	ErrNotOwner = errors.New("store: reservation not held")

	// ErrClosed indicates the store has been closed.
	ErrClosed = errors.New("store: closed")

	// ErrInvalidTTL indicates a negative TTL other than NoExpiration.
	ErrInvalidTTL = errors.New("store: invalid ttl")
)
