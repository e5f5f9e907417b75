package store

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/jonwraymond/resultcache/fingerprint"
)

// DefaultCapacityWait is how long a reservation waits for capacity when
// the configured wait is zero.
const DefaultCapacityWait = 10 * time.Second

// MemoryConfig configures a MemoryStore.
type MemoryConfig struct {
	// MaxEntries bounds the number of entries. Zero means unbounded.
	MaxEntries int

	// CapacityWait is how long GetOrReserve waits for an evictable entry
	// before returning ErrCapacityBlocked.
	// Default: 10 seconds
	CapacityWait time.Duration

	// Clock supplies timestamps.
	// Default: SystemClock
	Clock Clock
}

// entry is READY (flight == nil, elem != nil) or COMPUTING (flight != nil).
// FAILED and EMPTY entries are not stored.
type entry struct {
	state     State
	value     []byte
	object    any
	createdAt time.Time
	expiresAt time.Time
	flight    *Flight
	elem      *list.Element
}

// MemoryStore is an in-process Store guarded by a single mutex.
type MemoryStore struct {
	config   MemoryConfig
	capacity *Notifier

	mu        sync.Mutex
	entries   map[fingerprint.Key]*entry
	ready     *list.List // READY keys, oldest created first
	evictions int64
	discarded int64
	closed    bool
}

// NewMemoryStore creates an in-memory store.
func NewMemoryStore(config MemoryConfig) *MemoryStore {
	if config.MaxEntries < 0 {
		config.MaxEntries = 0
	}
	if config.CapacityWait <= 0 {
		config.CapacityWait = DefaultCapacityWait
	}
	if config.Clock == nil {
		config.Clock = SystemClock
	}

	return &MemoryStore{
		config:   config,
		capacity: NewNotifier(),
		entries:  make(map[fingerprint.Key]*entry),
		ready:    list.New(),
	}
}

type reserveResult struct {
	snap Snapshot
	res  *Reservation
}

// GetOrReserve implements Store.
func (m *MemoryStore) GetOrReserve(ctx context.Context, key fingerprint.Key) (Snapshot, *Reservation, error) {
	out, err := WaitFor(ctx, m.capacity, m.config.CapacityWait, 0, func() (reserveResult, bool, error) {
		return m.tryReserve(key)
	})
	if err != nil {
		return Snapshot{Key: key}, nil, err
	}
	return out.snap, out.res, nil
}

func (m *MemoryStore) tryReserve(key fingerprint.Key) (reserveResult, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return reserveResult{}, false, ErrClosed
	}

	now := m.config.Clock.Now()
	if e, ok := m.entries[key]; ok {
		if e.state == StateComputing {
			return reserveResult{snap: Snapshot{
				Key:       key,
				State:     StateComputing,
				CreatedAt: e.createdAt,
				Waiters:   e.flight.Waiters(),
				Flight:    e.flight,
			}}, true, nil
		}
		if !Expired(e.expiresAt, now) {
			return reserveResult{snap: e.snapshot(key)}, true, nil
		}
		m.removeLocked(key, e)
		m.evictions++
	}

	if m.config.MaxEntries > 0 && len(m.entries) >= m.config.MaxEntries {
		if !m.evictOldestLocked(now) {
			return reserveResult{}, false, nil
		}
	}

	r := NewReservation(key, now)
	m.entries[key] = &entry{
		state:     StateComputing,
		createdAt: now,
		flight:    NewFlight(r.Token),
	}
	return reserveResult{snap: Snapshot{Key: key, State: StateComputing, CreatedAt: now}, res: r}, true, nil
}

// evictOldestLocked drops an expired READY entry if there is one, else the
// READY entry created first. READY entries never have waiters; those hang
// off COMPUTING flights.
func (m *MemoryStore) evictOldestLocked(now time.Time) bool {
	victim := m.ready.Front()
	if victim == nil {
		return false
	}
	for el := victim; el != nil; el = el.Next() {
		if Expired(m.entries[el.Value.(fingerprint.Key)].expiresAt, now) {
			victim = el
			break
		}
	}
	key := victim.Value.(fingerprint.Key)
	m.removeLocked(key, m.entries[key])
	m.evictions++
	return true
}

func (m *MemoryStore) removeLocked(key fingerprint.Key, e *entry) {
	if e.elem != nil {
		m.ready.Remove(e.elem)
	}
	delete(m.entries, key)
}

// owned returns the COMPUTING entry held by r.
func (m *MemoryStore) owned(r *Reservation) (*entry, bool) {
	if r == nil {
		return nil, false
	}
	e, ok := m.entries[r.Key]
	if !ok || e.flight == nil || e.flight.Token() != r.Token {
		return nil, false
	}
	return e, true
}

// Publish implements Store. A zero TTL or a discarded flight hands the
// value to the owner and waiters without caching it.
func (m *MemoryStore) Publish(ctx context.Context, r *Reservation, payload []byte, ttl time.Duration) (Snapshot, error) {
	return m.publish(ctx, r, payload, nil, ttl)
}

// PublishObject implements ObjectPublisher. v is handed to waiters and
// later readers as it is.
func (m *MemoryStore) PublishObject(ctx context.Context, r *Reservation, v any, ttl time.Duration) (Snapshot, error) {
	return m.publish(ctx, r, nil, v, ttl)
}

func (m *MemoryStore) publish(ctx context.Context, r *Reservation, payload []byte, object any, ttl time.Duration) (Snapshot, error) {
	if err := ValidateTTL(ttl); err != nil {
		_ = m.Fail(ctx, r, err)
		return Snapshot{}, err
	}

	m.mu.Lock()
	e, ok := m.owned(r)
	if !ok {
		m.mu.Unlock()
		return Snapshot{}, ErrNotOwner
	}

	now := m.config.Clock.Now()
	f := e.flight
	snap := Snapshot{
		Key:       r.Key,
		State:     StateReady,
		Value:     payload,
		Object:    object,
		CreatedAt: now,
		ExpiresAt: ExpiresAt(now, ttl),
		Waiters:   f.Waiters(),
	}

	switch {
	case f.Discarded():
		m.removeLocked(r.Key, e)
		m.discarded++
	case ttl == 0:
		m.removeLocked(r.Key, e)
	default:
		e.state = StateReady
		e.value = payload
		e.object = object
		e.createdAt = snap.CreatedAt
		e.expiresAt = snap.ExpiresAt
		e.flight = nil
		e.elem = m.ready.PushBack(r.Key)
	}
	f.Finish(snap)
	m.mu.Unlock()

	m.capacity.Broadcast()
	return snap, nil
}

// Fail implements Store. The entry is dropped so the next call retries.
func (m *MemoryStore) Fail(ctx context.Context, r *Reservation, cause error) error {
	m.mu.Lock()
	e, ok := m.owned(r)
	if !ok {
		m.mu.Unlock()
		return ErrNotOwner
	}
	f := e.flight
	m.removeLocked(r.Key, e)
	f.Finish(Snapshot{Key: r.Key, State: StateFailed, Err: cause, Waiters: f.Waiters()})
	m.mu.Unlock()

	m.capacity.Broadcast()
	return nil
}

// AwaitReady implements Store.
func (m *MemoryStore) AwaitReady(ctx context.Context, key fingerprint.Key) (Snapshot, error) {
	m.mu.Lock()
	e, ok := m.entries[key]
	if !ok {
		m.mu.Unlock()
		return Snapshot{Key: key, State: StateEmpty}, nil
	}
	if e.state == StateReady {
		if Expired(e.expiresAt, m.config.Clock.Now()) {
			m.removeLocked(key, e)
			m.evictions++
			m.mu.Unlock()
			m.capacity.Broadcast()
			return Snapshot{Key: key, State: StateEmpty}, nil
		}
		snap := e.snapshot(key)
		m.mu.Unlock()
		return snap, nil
	}
	f := e.flight
	f.AddWaiter()
	m.mu.Unlock()

	defer f.RemoveWaiter()
	return f.Wait(ctx)
}

// Invalidate implements Store.
func (m *MemoryStore) Invalidate(ctx context.Context, key fingerprint.Key) error {
	m.mu.Lock()
	e, ok := m.entries[key]
	if !ok {
		m.mu.Unlock()
		return nil
	}
	if e.state == StateComputing {
		e.flight.MarkDiscard()
		m.mu.Unlock()
		return nil
	}
	m.removeLocked(key, e)
	m.mu.Unlock()

	m.capacity.Broadcast()
	return nil
}

// InvalidateAll implements Store.
func (m *MemoryStore) InvalidateAll(ctx context.Context) error {
	m.mu.Lock()
	for key, e := range m.entries {
		if e.state == StateComputing {
			e.flight.MarkDiscard()
			continue
		}
		delete(m.entries, key)
	}
	m.ready.Init()
	m.mu.Unlock()

	m.capacity.Broadcast()
	return nil
}

// EvictExpired implements Store.
func (m *MemoryStore) EvictExpired(ctx context.Context, now time.Time) (int, error) {
	m.mu.Lock()
	n := 0
	for key, e := range m.entries {
		if e.state == StateReady && Expired(e.expiresAt, now) {
			m.removeLocked(key, e)
			n++
		}
	}
	m.evictions += int64(n)
	m.mu.Unlock()

	if n > 0 {
		m.capacity.Broadcast()
	}
	return n, nil
}

// Stats implements Store.
func (m *MemoryStore) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	return Stats{
		Entries:   m.ready.Len(),
		InFlight:  len(m.entries) - m.ready.Len(),
		Evictions: m.evictions,
		Discarded: m.discarded,
	}
}

// Close implements Store. In-flight reservations fail with ErrClosed.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	for key, e := range m.entries {
		if e.flight != nil {
			e.flight.Finish(Snapshot{Key: key, State: StateFailed, Err: ErrClosed, Waiters: e.flight.Waiters()})
		}
	}
	m.entries = make(map[fingerprint.Key]*entry)
	m.ready.Init()
	m.mu.Unlock()

	m.capacity.Broadcast()
	return nil
}

func (e *entry) snapshot(key fingerprint.Key) Snapshot {
	return Snapshot{
		Key:       key,
		State:     e.state,
		Value:     e.value,
		Object:    e.object,
		CreatedAt: e.createdAt,
		ExpiresAt: e.expiresAt,
	}
}

var (
	_ Store           = (*MemoryStore)(nil)
	_ ObjectPublisher = (*MemoryStore)(nil)
)
