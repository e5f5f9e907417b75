package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/jonwraymond/resultcache/fingerprint"
)

// Flight is one computation of one key. Waiters block on it and all of them
// observe the same outcome, even if a new computation for the key starts
// before they are scheduled. It is released together with the computation.
type Flight struct {
	token   string
	done    chan struct{}
	once    sync.Once
	result  Snapshot
	waiters atomic.Int64
	discard atomic.Bool
}

// NewFlight creates a flight owned by the reservation token.
func NewFlight(token string) *Flight {
	return &Flight{token: token, done: make(chan struct{})}
}

// Token returns the owning reservation token.
func (f *Flight) Token() string { return f.token }

// Done is closed once the flight has finished.
func (f *Flight) Done() <-chan struct{} { return f.done }

// Finish records the outcome and releases every waiter. Only the first call
// has any effect; it reports whether it was that call.
func (f *Flight) Finish(s Snapshot) bool {
	finished := false
	f.once.Do(func() {
		f.result = s
		close(f.done)
		finished = true
	})
	return finished
}

// Wait blocks until the flight finishes or ctx ends. A flight that finished
// concurrently with the deadline still returns its result.
func (f *Flight) Wait(ctx context.Context) (Snapshot, error) {
	select {
	case <-f.done:
		return f.result, nil
	case <-ctx.Done():
		select {
		case <-f.done:
			return f.result, nil
		default:
		}
		return Snapshot{}, ContextError(ctx)
	}
}

// AddWaiter registers a waiter and returns the new count.
func (f *Flight) AddWaiter() int { return int(f.waiters.Add(1)) }

// RemoveWaiter unregisters a waiter.
func (f *Flight) RemoveWaiter() { f.waiters.Add(-1) }

// Waiters returns the number of callers blocked on the flight.
func (f *Flight) Waiters() int { return int(f.waiters.Load()) }

// MarkDiscard asks the owner's publish to hand its value out without storing it.
func (f *Flight) MarkDiscard() { f.discard.Store(true) }

// Discarded reports whether MarkDiscard was called.
func (f *Flight) Discarded() bool { return f.discard.Load() }

// ContextError maps a finished context to the store's error vocabulary:
// deadline expiry becomes ErrTimeout, cancellation stays context.Canceled.
func ContextError(ctx context.Context) error {
	err := ctx.Err()
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	}
	return err
}

// Flights tracks the in-process flights of a backing whose entries live
// outside process memory.
type Flights struct {
	mu sync.Mutex
	m  map[fingerprint.Key]*Flight
}

// NewFlights creates an empty registry.
func NewFlights() *Flights {
	return &Flights{m: make(map[fingerprint.Key]*Flight)}
}

// Start registers a flight for r. It returns false if key already has one.
func (g *Flights) Start(r *Reservation) (*Flight, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if f, ok := g.m[r.Key]; ok {
		return f, false
	}
	f := NewFlight(r.Token)
	g.m[r.Key] = f
	return f, true
}

// Get returns the flight for key, or nil.
func (g *Flights) Get(key fingerprint.Key) *Flight {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.m[key]
}

// Owned returns the flight for r if r still owns it.
func (g *Flights) Owned(r *Reservation) (*Flight, bool) {
	if r == nil {
		return nil, false
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	f, ok := g.m[r.Key]
	if !ok || f.token != r.Token {
		return nil, false
	}
	return f, true
}

// Finish removes the flight owned by r and releases its waiters with s.
func (g *Flights) Finish(r *Reservation, s Snapshot) bool {
	if r == nil {
		return false
	}
	g.mu.Lock()
	f, ok := g.m[r.Key]
	if !ok || f.token != r.Token {
		g.mu.Unlock()
		return false
	}
	delete(g.m, r.Key)
	g.mu.Unlock()

	s.Waiters = f.Waiters()
	return f.Finish(s)
}

// MarkDiscard marks the flight for key, if any.
func (g *Flights) MarkDiscard(key fingerprint.Key) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	f, ok := g.m[key]
	if ok {
		f.MarkDiscard()
	}
	return ok
}

// MarkAllDiscard marks every flight and returns how many there were.
func (g *Flights) MarkAllDiscard() int {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, f := range g.m {
		f.MarkDiscard()
	}
	return len(g.m)
}

// Len returns the number of flights.
func (g *Flights) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.m)
}

// Drain removes every flight, fails its waiters with cause, and returns the
// reservations that were outstanding.
func (g *Flights) Drain(cause error) []*Reservation {
	g.mu.Lock()
	drained := g.m
	g.m = make(map[fingerprint.Key]*Flight)
	g.mu.Unlock()

	out := make([]*Reservation, 0, len(drained))
	for key, f := range drained {
		f.Finish(Snapshot{Key: key, State: StateFailed, Err: cause, Waiters: f.Waiters()})
		out = append(out, &Reservation{Key: key, Token: f.token})
	}
	return out
}
