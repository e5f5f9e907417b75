package store

import (
	"context"
	"sync"
	"time"
)

// Notifier is a broadcast signal: every Broadcast wakes everyone holding a
// channel obtained from C before it.
type Notifier struct {
	mu sync.Mutex
	ch chan struct{}
}

// NewNotifier creates a notifier.
func NewNotifier() *Notifier {
	return &Notifier{ch: make(chan struct{})}
}

// C returns the channel closed by the next Broadcast.
func (n *Notifier) C() <-chan struct{} {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.ch
}

// Broadcast wakes all current holders of C.
func (n *Notifier) Broadcast() {
	n.mu.Lock()
	defer n.mu.Unlock()
	close(n.ch)
	n.ch = make(chan struct{})
}

// WaitFor calls try until it reports done. Between attempts it sleeps until
// n broadcasts, poll elapses (when positive), or wait elapses, in which case
// it returns ErrCapacityBlocked. The channel is taken before each attempt so
// a broadcast racing with try is never lost.
func WaitFor[T any](ctx context.Context, n *Notifier, wait, poll time.Duration, try func() (T, bool, error)) (T, error) {
	var zero T

	var deadline <-chan time.Time
	if wait > 0 {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		deadline = timer.C
	}

	for {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		signal := n.C()
		v, done, err := try()
		if err != nil {
			return zero, err
		}
		if done {
			return v, nil
		}
		if wait <= 0 {
			return zero, ErrCapacityBlocked
		}

		var tick <-chan time.Time
		if poll > 0 {
			tick = time.After(poll)
		}

		select {
		case <-signal:
		case <-tick:
		case <-deadline:
			return zero, ErrCapacityBlocked
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}
}
