package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/jonwraymond/resultcache/fingerprint"
)

// NoExpiration is the TTL of an entry that never expires.
const NoExpiration time.Duration = -1

// State is the lifecycle state of an entry.
type State int

const (
	// StateEmpty means no value is cached and nothing is computing.
	StateEmpty State = iota
	// StateComputing means a reservation holder is producing the value.
	StateComputing
	// StateReady means a fresh value is cached.
	StateReady
	// StateFailed means the last computation failed. It is never cached;
	// the next GetOrReserve treats it as StateEmpty.
	StateFailed
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateComputing:
		return "computing"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Snapshot is a point-in-time copy of an entry.
// Value or Object is set only for StateReady and Err only for StateFailed.
type Snapshot struct {
	Key   fingerprint.Key
	State State
	Value []byte
	// Object is the produced value itself, kept by an ObjectPublisher
	// instead of an encoded Value.
	Object    any
	Err       error
	CreatedAt time.Time
	// ExpiresAt is zero for entries that never expire.
	ExpiresAt time.Time
	Waiters   int
	// Flight is the in-process computation a StateComputing snapshot was
	// taken from. Nil when the key is computing in another process.
	Flight *Flight
}

// Fresh reports whether the snapshot holds a value that is valid at now.
func (s Snapshot) Fresh(now time.Time) bool {
	if s.State != StateReady {
		return false
	}
	return !Expired(s.ExpiresAt, now)
}

// Expired reports whether an entry expiring at expiresAt is stale at now.
func Expired(expiresAt, now time.Time) bool {
	return !expiresAt.IsZero() && !now.Before(expiresAt)
}

// ExpiresAt computes the expiry for a value published at now with ttl.
// NoExpiration yields the zero time.
func ExpiresAt(now time.Time, ttl time.Duration) time.Time {
	if ttl == NoExpiration {
		return time.Time{}
	}
	return now.Add(ttl)
}

// ValidateTTL rejects negative TTLs other than NoExpiration.
func ValidateTTL(ttl time.Duration) error {
	if ttl < 0 && ttl != NoExpiration {
		return ErrInvalidTTL
	}
	return nil
}

// Reservation is proof that the holder owns the COMPUTING state of Key.
type Reservation struct {
	Key   fingerprint.Key
	Token string
	At    time.Time
}

// NewReservation creates a reservation with a fresh owner token.
func NewReservation(key fingerprint.Key, now time.Time) *Reservation {
	return &Reservation{Key: key, Token: uuid.NewString(), At: now}
}

// Stats is a point-in-time summary of a store.
type Stats struct {
	// Entries is the number of READY entries.
	Entries int
	// InFlight is the number of COMPUTING entries owned by this process.
	InFlight int
	// Evictions counts entries removed by capacity pressure or expiry.
	Evictions int64
	// Discarded counts publishes dropped because the key was invalidated
	// while computing.
	Discarded int64
	// Unavailable counts backing I/O failures that degraded to a miss.
	Unavailable int64
}

// Store holds entries addressed by key. All operations are atomic with
// respect to one another.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Context: GetOrReserve and AwaitReady block and must honor cancellation;
//   an AwaitReady deadline returns ErrTimeout.
// - Ownership: Publish and Fail require the Reservation returned by
//   GetOrReserve; stale reservations return ErrNotOwner.
// - Errors: read-path I/O problems surface as a miss, not an error.
type Store interface {
	// GetOrReserve returns the current snapshot, or a non-nil Reservation
	// when the entry was EMPTY, FAILED or expired and is now COMPUTING for
	// the caller.
	GetOrReserve(ctx context.Context, key fingerprint.Key) (Snapshot, *Reservation, error)

	// Publish moves a reserved entry to READY and wakes all waiters.
	Publish(ctx context.Context, r *Reservation, payload []byte, ttl time.Duration) (Snapshot, error)

	// Fail moves a reserved entry to FAILED and wakes all waiters.
	Fail(ctx context.Context, r *Reservation, cause error) error

	// AwaitReady blocks while the entry is COMPUTING and returns the
	// outcome of that computation.
	AwaitReady(ctx context.Context, key fingerprint.Key) (Snapshot, error)

	// Invalidate empties a non-computing entry, or marks a computing one so
	// its publish is discarded.
	Invalidate(ctx context.Context, key fingerprint.Key) error

	// InvalidateAll invalidates every entry. In-flight work is not cancelled.
	InvalidateAll(ctx context.Context) error

	// EvictExpired removes READY entries expired at now and returns how many.
	EvictExpired(ctx context.Context, now time.Time) (int, error)

	// Stats returns current counters.
	Stats() Stats

	// Close releases resources and fails in-flight reservations.
	Close() error
}

// ObjectPublisher is implemented by in-process stores that keep produced
// values as they are. Snapshots of such entries carry Object, not Value.
type ObjectPublisher interface {
	PublishObject(ctx context.Context, r *Reservation, v any, ttl time.Duration) (Snapshot, error)
}

// Await waits for the outcome of the computation snap was taken from. A
// snapshot that carries its Flight is waited on directly, so the caller
// receives that computation's outcome even if it finished in between.
func Await(ctx context.Context, s Store, snap Snapshot) (Snapshot, error) {
	if f := snap.Flight; f != nil {
		f.AddWaiter()
		defer f.RemoveWaiter()
		return f.Wait(ctx)
	}
	return s.AwaitReady(ctx, snap.Key)
}

// Pinger is implemented by stores with an external backing that can be probed.
type Pinger interface {
	Ping(ctx context.Context) error
}
