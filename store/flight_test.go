package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlight_FinishOnce(t *testing.T) {
	f := NewFlight("tok")
	assert.True(t, f.Finish(Snapshot{State: StateReady, Value: []byte("a")}))
	assert.False(t, f.Finish(Snapshot{State: StateFailed}))

	snap, err := f.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateReady, snap.State)
	assert.Equal(t, []byte("a"), snap.Value)
}

func TestFlight_FinishedBeatsExpiredContext(t *testing.T) {
	f := NewFlight("tok")
	f.Finish(Snapshot{State: StateReady})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	snap, err := f.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, StateReady, snap.State)
}

// Waiters of a finished computation keep its outcome even when the key has
// already been reserved again.
func TestMemoryStore_WaitersKeepTheirGeneration(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestMemoryStore(t, MemoryConfig{})
	key := testKey(t, 1)
	boom := errors.New("first attempt")

	_, first, err := s.GetOrReserve(ctx, key)
	require.NoError(t, err)

	s.mu.Lock()
	flight := s.entries[key].flight
	flight.AddWaiter()
	s.mu.Unlock()

	require.NoError(t, s.Fail(ctx, first, boom))

	_, second, err := s.GetOrReserve(ctx, key)
	require.NoError(t, err)
	require.NotNil(t, second)

	snap, err := flight.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, StateFailed, snap.State)
	assert.ErrorIs(t, snap.Err, boom)
}

func TestFlights_Lifecycle(t *testing.T) {
	g := NewFlights()
	key := testKey(t, 1)
	r := NewReservation(key, epoch)

	f, ok := g.Start(r)
	require.True(t, ok)
	_, ok = g.Start(NewReservation(key, epoch))
	assert.False(t, ok, "second flight for the same key")

	owned, ok := g.Owned(r)
	require.True(t, ok)
	assert.Same(t, f, owned)

	_, ok = g.Owned(&Reservation{Key: key, Token: "other"})
	assert.False(t, ok)

	assert.True(t, g.MarkDiscard(key))
	assert.True(t, f.Discarded())

	assert.True(t, g.Finish(r, Snapshot{Key: key, State: StateReady}))
	assert.False(t, g.Finish(r, Snapshot{Key: key, State: StateReady}))
	assert.Nil(t, g.Get(key))
	assert.Equal(t, 0, g.Len())
}

func TestFlights_Drain(t *testing.T) {
	g := NewFlights()
	r1 := NewReservation(testKey(t, 1), epoch)
	r2 := NewReservation(testKey(t, 2), epoch)
	f1, _ := g.Start(r1)
	g.Start(r2)

	drained := g.Drain(ErrClosed)
	assert.Len(t, drained, 2)
	assert.Equal(t, 0, g.Len())

	snap, err := f1.Wait(context.Background())
	require.NoError(t, err)
	assert.ErrorIs(t, snap.Err, ErrClosed)
}

func TestWaitFor_ImmediateWhenNoWait(t *testing.T) {
	n := NewNotifier()
	calls := 0
	_, err := WaitFor(context.Background(), n, 0, 0, func() (int, bool, error) {
		calls++
		return 0, false, nil
	})
	assert.ErrorIs(t, err, ErrCapacityBlocked)
	assert.Equal(t, 1, calls)
}

func TestWaitFor_WakesOnBroadcast(t *testing.T) {
	n := NewNotifier()
	ready := make(chan struct{})
	attempts := 0

	go func() {
		<-ready
		n.Broadcast()
	}()

	v, err := WaitFor(context.Background(), n, 5*time.Second, 0, func() (string, bool, error) {
		attempts++
		if attempts == 1 {
			close(ready)
			return "", false, nil
		}
		return "ok", true, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
	assert.Equal(t, 2, attempts)
}

func TestWaitFor_ContextCancel(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := WaitFor(ctx, NewNotifier(), time.Minute, 0, func() (int, bool, error) {
		return 0, false, nil
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestManualClock(t *testing.T) {
	c := NewManualClock(epoch)
	assert.Equal(t, epoch, c.Now())
	c.Advance(time.Minute)
	assert.Equal(t, epoch.Add(time.Minute), c.Now())
	c.Set(epoch)
	assert.Equal(t, epoch, c.Now())
}

func TestSnapshot_Fresh(t *testing.T) {
	tests := []struct {
		name string
		snap Snapshot
		now  time.Time
		want bool
	}{
		{"ready before expiry", Snapshot{State: StateReady, ExpiresAt: epoch.Add(time.Second)}, epoch, true},
		{"ready at expiry", Snapshot{State: StateReady, ExpiresAt: epoch}, epoch, false},
		{"ready never expires", Snapshot{State: StateReady}, epoch.Add(1000 * time.Hour), true},
		{"computing", Snapshot{State: StateComputing}, epoch, false},
		{"failed", Snapshot{State: StateFailed}, epoch, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.snap.Fresh(tt.now))
		})
	}
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "empty", StateEmpty.String())
	assert.Equal(t, "computing", StateComputing.String())
	assert.Equal(t, "ready", StateReady.String())
	assert.Equal(t, "failed", StateFailed.String())
	assert.Equal(t, "unknown", State(99).String())
}
