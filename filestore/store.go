package filestore

import (
	"container/list"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/jellydator/ttlcache/v3"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/jonwraymond/resultcache/fingerprint"
	"github.com/jonwraymond/resultcache/observe"
	"github.com/jonwraymond/resultcache/resilience"
	"github.com/jonwraymond/resultcache/store"
)

const (
	valueSuffix = ".v"
	lockSuffix  = ".lock"
	tempPrefix  = ".tmp-"

	// DefaultAbandonedLockAfter is the age at which a lock file is
	// considered abandoned.
	DefaultAbandonedLockAfter = 10 * time.Minute

	// removeParallelism bounds concurrent file removals.
	removeParallelism = 8
)

// Config configures a file Store.
type Config struct {
	// Root is the directory holding entries. Created if missing.
	Root string

	// AbandonedLockAfter is the age after which a lock file is removed.
	// Default: 10 minutes
	AbandonedLockAfter time.Duration

	// MaxEntries bounds the number of entries. Zero means unbounded.
	MaxEntries int

	// CapacityWait is how long GetOrReserve waits for an evictable entry.
	// Default: store.DefaultCapacityWait
	CapacityWait time.Duration

	// HotEntries keeps up to this many decoded records in memory.
	// Zero disables the hot layer.
	HotEntries int

	// PollInterval is the first delay between checks of a lock held by
	// another process. Delays double up to MaxPollInterval.
	// Default: 10ms
	PollInterval time.Duration

	// MaxPollInterval caps the delay between lock checks.
	// Default: 500ms
	MaxPollInterval time.Duration

	// Breaker guards disk I/O.
	Breaker resilience.CircuitBreakerConfig

	// WriteRetry retries failed value writes.
	// Default: 3 attempts starting at 10ms
	WriteRetry resilience.RetryConfig

	// Clock supplies timestamps.
	// Default: store.SystemClock
	Clock store.Clock

	// Logger receives I/O warnings and recovery notices.
	// Default: no-op
	Logger observe.Logger
}

// Store is a store.Store keeping one value file and at most one lock file
// per key under a root directory.
type Store struct {
	config  Config
	root    string
	host    string
	clock   store.Clock
	logger  observe.Logger
	breaker *resilience.CircuitBreaker
	writes  *resilience.Retry
	poll    *resilience.Retry

	flights  *store.Flights
	changes  *store.Notifier
	capacity *store.Notifier
	reads    singleflight.Group
	hot      *ttlcache.Cache[fingerprint.Key, record]
	watcher  *fsnotify.Watcher
	wg       sync.WaitGroup

	mu    sync.Mutex
	index map[fingerprint.Key]*list.Element
	order *list.List // of indexed, oldest created first

	evictions   atomic.Int64
	discarded   atomic.Int64
	unavailable atomic.Int64
	closed      atomic.Bool
}

type indexed struct {
	key       fingerprint.Key
	createdAt time.Time
	expiresAt time.Time
}

// Open opens the store rooted at config.Root. Abandoned lock files and
// leftover temporary files are removed, and existing value files are indexed.
func Open(config Config) (*Store, error) {
	if config.Root == "" {
		return nil, ErrRootRequired
	}
	if config.AbandonedLockAfter <= 0 {
		config.AbandonedLockAfter = DefaultAbandonedLockAfter
	}
	if config.MaxEntries < 0 {
		config.MaxEntries = 0
	}
	if config.CapacityWait <= 0 {
		config.CapacityWait = store.DefaultCapacityWait
	}
	if config.PollInterval <= 0 {
		config.PollInterval = 10 * time.Millisecond
	}
	if config.MaxPollInterval < config.PollInterval {
		config.MaxPollInterval = max(500*time.Millisecond, config.PollInterval)
	}
	if config.Clock == nil {
		config.Clock = store.SystemClock
	}
	if config.Logger == nil {
		config.Logger = observe.NopLogger()
	}
	if config.Breaker.Name == "" {
		config.Breaker.Name = "filestore:" + config.Root
	}
	if config.Breaker.IsFailure == nil {
		config.Breaker.IsFailure = isIOFailure
	}
	logger := config.Logger.With(observe.Field{Key: "cache.backing", Value: "file"})
	if config.Breaker.OnStateChange == nil {
		config.Breaker.OnStateChange = func(name string, from, to resilience.State) {
			logger.Warn(context.Background(), "disk circuit changed state",
				observe.Field{Key: "circuit", Value: name},
				observe.Field{Key: "from", Value: from.String()},
				observe.Field{Key: "to", Value: to.String()})
		}
	}
	if config.WriteRetry.InitialDelay <= 0 {
		config.WriteRetry.InitialDelay = 10 * time.Millisecond
	}

	if err := os.MkdirAll(config.Root, 0o755); err != nil {
		return nil, fmt.Errorf("%w: %w", store.ErrUnavailable, err)
	}

	host, _ := os.Hostname()
	s := &Store{
		config:   config,
		root:     config.Root,
		host:     host,
		clock:    config.Clock,
		logger:   logger,
		breaker:  resilience.NewCircuitBreaker(config.Breaker),
		writes:   resilience.NewRetry(config.WriteRetry),
		flights:  store.NewFlights(),
		changes:  store.NewNotifier(),
		capacity: store.NewNotifier(),
		index:    make(map[fingerprint.Key]*list.Element),
		order:    list.New(),
		poll: resilience.NewRetry(resilience.RetryConfig{
			InitialDelay: config.PollInterval,
			MaxDelay:     config.MaxPollInterval,
			Jitter:       true,
		}),
	}

	if config.HotEntries > 0 {
		s.hot = ttlcache.New[fingerprint.Key, record](
			ttlcache.WithCapacity[fingerprint.Key, record](uint64(config.HotEntries)),
			ttlcache.WithDisableTouchOnHit[fingerprint.Key, record](),
		)
	}

	if err := s.sweep(); err != nil {
		return nil, fmt.Errorf("%w: %w", store.ErrUnavailable, err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err == nil {
		err = watcher.Add(s.root)
		if err != nil {
			_ = watcher.Close()
		}
	}
	if err != nil {
		s.logger.Warn(context.Background(), "file watcher unavailable, polling only",
			observe.Field{Key: "error", Value: err})
	} else {
		s.watcher = watcher
		s.wg.Add(1)
		go s.watch()
	}

	return s, nil
}

// isIOFailure counts errors that indicate a sick disk. Lock contention and
// missing files are normal outcomes.
func isIOFailure(err error) bool {
	if err == nil {
		return false
	}
	switch {
	case errors.Is(err, fs.ErrExist), errors.Is(err, fs.ErrNotExist),
		errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return false
	}
	return true
}

// sweep cleans the root: abandoned locks and temporary files are removed,
// value files are indexed by creation time.
func (s *Store) sweep() error {
	dirents, err := os.ReadDir(s.root)
	if err != nil {
		return err
	}

	var (
		found   []indexed
		removed int
		now     = s.clock.Now()
	)
	for _, de := range dirents {
		name := de.Name()
		switch {
		case strings.HasPrefix(name, tempPrefix):
			_ = os.Remove(filepath.Join(s.root, name))

		case strings.HasSuffix(name, lockSuffix):
			if _, ok := parseName(name, lockSuffix); !ok {
				continue
			}
			path := filepath.Join(s.root, name)
			info, err := readLock(path)
			if err != nil {
				continue
			}
			if s.abandoned(info, now) {
				if err := removeLockIf(path, info.Token); err == nil {
					removed++
				}
			}

		case strings.HasSuffix(name, valueSuffix):
			key, ok := parseName(name, valueSuffix)
			if !ok {
				continue
			}
			data, err := os.ReadFile(filepath.Join(s.root, name))
			if err != nil {
				continue
			}
			rec, err := decodeRecord(data)
			if err != nil {
				s.logger.Warn(context.Background(), "removing malformed value file",
					observe.Field{Key: "cache.key", Value: key.Short()},
					observe.Field{Key: "error", Value: err})
				_ = os.Remove(filepath.Join(s.root, name))
				continue
			}
			found = append(found, indexed{key: key, createdAt: rec.CreatedAt, expiresAt: rec.ExpiresAt})
		}
	}

	sort.Slice(found, func(i, j int) bool {
		return found[i].createdAt.Before(found[j].createdAt)
	})
	for _, it := range found {
		s.index[it.key] = s.order.PushBack(it)
	}

	s.logger.Info(context.Background(), "file store opened",
		observe.Field{Key: "root", Value: s.root},
		observe.Field{Key: "entries", Value: len(found)},
		observe.Field{Key: "abandoned_locks", Value: removed})
	return nil
}

func parseName(name, suffix string) (fingerprint.Key, bool) {
	key, err := fingerprint.ParseKey(strings.TrimSuffix(name, suffix))
	return key, err == nil
}

func (s *Store) valuePath(key fingerprint.Key) string {
	return filepath.Join(s.root, key.String()+valueSuffix)
}

func (s *Store) lockPath(key fingerprint.Key) string {
	return filepath.Join(s.root, key.String()+lockSuffix)
}

func (s *Store) abandoned(info lockInfo, now time.Time) bool {
	return now.Sub(info.CreatedAt) >= s.config.AbandonedLockAfter
}

type reserveResult struct {
	snap store.Snapshot
	res  *store.Reservation
}

// GetOrReserve implements store.Store. An I/O failure while taking the lock
// returns an error matching store.ErrUnavailable.
func (s *Store) GetOrReserve(ctx context.Context, key fingerprint.Key) (store.Snapshot, *store.Reservation, error) {
	out, err := store.WaitFor(ctx, s.capacity, s.config.CapacityWait, s.config.MaxPollInterval,
		func() (reserveResult, bool, error) {
			return s.tryReserve(ctx, key)
		})
	if err != nil {
		return store.Snapshot{Key: key}, nil, err
	}
	return out.snap, out.res, nil
}

func (s *Store) tryReserve(ctx context.Context, key fingerprint.Key) (reserveResult, bool, error) {
	if s.closed.Load() {
		return reserveResult{}, false, store.ErrClosed
	}
	if f := s.flights.Get(key); f != nil {
		return reserveResult{snap: computing(key, f)}, true, nil
	}

	now := s.clock.Now()
	if rec, ok := s.load(ctx, key); ok {
		if !store.Expired(rec.ExpiresAt, now) {
			return reserveResult{snap: rec.snapshot(key)}, true, nil
		}
		if s.drop(key) == nil {
			s.evictions.Add(1)
		}
	}

	if s.config.MaxEntries > 0 && s.count() >= s.config.MaxEntries {
		if !s.evictOldest(now) {
			return reserveResult{}, false, nil
		}
	}

	r := store.NewReservation(key, now)
	f, started := s.flights.Start(r)
	if !started {
		return reserveResult{snap: computing(key, f)}, true, nil
	}

	held, holder, err := s.acquireLock(r)
	if err != nil {
		s.flights.Finish(r, store.Snapshot{Key: key, State: store.StateEmpty})
		return reserveResult{}, false, fmt.Errorf("%w: %w", store.ErrUnavailable, err)
	}
	if !held {
		s.flights.Finish(r, store.Snapshot{Key: key, State: store.StateEmpty})
		return reserveResult{snap: store.Snapshot{
			Key:       key,
			State:     store.StateComputing,
			CreatedAt: holder.CreatedAt,
		}}, true, nil
	}

	// Another process may have published between the read and the lock.
	if rec, ok := s.load(ctx, key); ok && !store.Expired(rec.ExpiresAt, s.clock.Now()) {
		s.releaseLock(r)
		snap := rec.snapshot(key)
		s.flights.Finish(r, snap)
		return reserveResult{snap: snap}, true, nil
	}

	return reserveResult{
		snap: store.Snapshot{Key: key, State: store.StateComputing, CreatedAt: now},
		res:  r,
	}, true, nil
}

func computing(key fingerprint.Key, f *store.Flight) store.Snapshot {
	return store.Snapshot{Key: key, State: store.StateComputing, Waiters: f.Waiters(), Flight: f}
}

// acquireLock creates the lock file for r. It reports false and the current
// holder when another owner holds a live lock; an abandoned one is taken over.
func (s *Store) acquireLock(r *store.Reservation) (bool, lockInfo, error) {
	path := s.lockPath(r.Key)
	mine := lockInfo{Token: r.Token, PID: os.Getpid(), Host: s.host, CreatedAt: r.At}

	var holder lockInfo
	for attempt := 0; attempt < 3; attempt++ {
		err := s.breaker.Execute(context.Background(), func(context.Context) error {
			return createLock(path, mine)
		})
		switch {
		case err == nil:
			return true, mine, nil
		case errors.Is(err, fs.ErrNotExist):
			// Root was removed underneath us.
			if err := os.MkdirAll(s.root, 0o755); err != nil {
				return false, lockInfo{}, err
			}
			continue
		case !errors.Is(err, fs.ErrExist):
			return false, lockInfo{}, err
		}

		holder, err = readLock(path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return false, lockInfo{}, err
		}
		if !s.abandoned(holder, s.clock.Now()) {
			return false, holder, nil
		}
		s.logger.Warn(context.Background(), "taking over abandoned lock",
			observe.Field{Key: "cache.key", Value: r.Key.Short()},
			observe.Field{Key: "holder_pid", Value: holder.PID},
			observe.Field{Key: "holder_host", Value: holder.Host})
		if err := removeLockIf(path, holder.Token); err != nil {
			return false, lockInfo{}, err
		}
	}
	return false, holder, nil
}

func (s *Store) releaseLock(r *store.Reservation) {
	if err := removeLockIf(s.lockPath(r.Key), r.Token); err != nil {
		s.logger.Warn(context.Background(), "failed to remove lock file",
			observe.Field{Key: "cache.key", Value: r.Key.Short()},
			observe.Field{Key: "error", Value: err})
	}
}

// readValue reads the value file for key through the breaker. A missing
// file yields nil data and no error.
func (s *Store) readValue(ctx context.Context, key fingerprint.Key) ([]byte, error) {
	return resilience.Guard(ctx, s.breaker, func(context.Context) ([]byte, error) {
		data, err := os.ReadFile(s.valuePath(key))
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return data, err
	})
}

// load returns the record for key, from the hot layer when possible.
// Concurrent loads of one key share a single read.
func (s *Store) load(ctx context.Context, key fingerprint.Key) (record, bool) {
	if s.hot != nil {
		if item := s.hot.Get(key); item != nil {
			return item.Value(), true
		}
	}

	v, err, _ := s.reads.Do(key.String(), func() (any, error) {
		data, err := s.readValue(ctx, key)
		if err != nil || data == nil {
			return nil, err
		}
		rec, err := decodeRecord(data)
		if err != nil {
			return nil, err
		}
		s.hotPut(key, rec)
		return rec, nil
	})
	if err != nil {
		s.unavailable.Add(1)
		s.logger.Warn(ctx, "value file unreadable, treating as miss",
			observe.Field{Key: "cache.key", Value: key.Short()},
			observe.Field{Key: "error", Value: err})
		return record{}, false
	}
	rec, ok := v.(record)
	return rec, ok
}

func (s *Store) hotPut(key fingerprint.Key, rec record) {
	if s.hot == nil {
		return
	}
	ttl := ttlcache.NoTTL
	if !rec.ExpiresAt.IsZero() {
		ttl = rec.ExpiresAt.Sub(s.clock.Now())
		if ttl <= 0 {
			return
		}
	}
	s.hot.Set(key, rec, ttl)
}

// writeRecord writes rec to a temporary file and renames it over the value
// file.
func (s *Store) writeRecord(key fingerprint.Key, rec record) error {
	tmp, err := os.CreateTemp(s.root, tempPrefix+key.Short()+"-*")
	if errors.Is(err, fs.ErrNotExist) {
		if err := os.MkdirAll(s.root, 0o755); err != nil {
			return err
		}
		tmp, err = os.CreateTemp(s.root, tempPrefix+key.Short()+"-*")
	}
	if err != nil {
		return err
	}

	_, werr := tmp.Write(encodeRecord(rec))
	cerr := tmp.Close()
	if err := errors.Join(werr, cerr); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), s.valuePath(key)); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return nil
}

// Publish implements store.Store. Write failures are retried; when they
// persist the reservation fails with store.ErrUnavailable.
func (s *Store) Publish(ctx context.Context, r *store.Reservation, payload []byte, ttl time.Duration) (store.Snapshot, error) {
	if err := store.ValidateTTL(ttl); err != nil {
		_ = s.Fail(ctx, r, err)
		return store.Snapshot{}, err
	}

	f, ok := s.flights.Owned(r)
	if !ok {
		return store.Snapshot{}, store.ErrNotOwner
	}

	now := s.clock.Now()
	snap := store.Snapshot{
		Key:       r.Key,
		State:     store.StateReady,
		Value:     payload,
		CreatedAt: now,
		ExpiresAt: store.ExpiresAt(now, ttl),
	}

	switch {
	case f.Discarded():
		s.discarded.Add(1)
	case ttl == 0:
	default:
		rec := record{CreatedAt: now, ExpiresAt: snap.ExpiresAt, Payload: payload}
		err := s.writes.Execute(ctx, func(ctx context.Context) error {
			return s.breaker.Execute(ctx, func(context.Context) error {
				return s.writeRecord(r.Key, rec)
			})
		})
		if err != nil {
			cause := fmt.Errorf("%w: %w", store.ErrUnavailable, err)
			s.unavailable.Add(1)
			s.logger.Error(ctx, "failed to write value file",
				observe.Field{Key: "cache.key", Value: r.Key.Short()},
				observe.Field{Key: "error", Value: err})
			s.releaseLock(r)
			s.flights.Finish(r, store.Snapshot{Key: r.Key, State: store.StateFailed, Err: cause})
			s.capacity.Broadcast()
			return store.Snapshot{}, cause
		}

		if f.Discarded() {
			// Invalidated while the record was being written.
			_ = s.drop(r.Key)
			s.discarded.Add(1)
		} else {
			s.indexPut(r.Key, now, rec.ExpiresAt)
			s.hotPut(r.Key, rec)
		}
	}

	snap.Waiters = f.Waiters()
	s.releaseLock(r)
	s.flights.Finish(r, snap)
	s.capacity.Broadcast()
	return snap, nil
}

// Fail implements store.Store.
func (s *Store) Fail(ctx context.Context, r *store.Reservation, cause error) error {
	if _, ok := s.flights.Owned(r); !ok {
		return store.ErrNotOwner
	}
	s.releaseLock(r)
	s.flights.Finish(r, store.Snapshot{Key: r.Key, State: store.StateFailed, Err: cause})
	s.capacity.Broadcast()
	return nil
}

// AwaitReady implements store.Store. A computation in another process ends
// with READY when it left a fresh value file and EMPTY otherwise; its error,
// if any, is not visible here.
func (s *Store) AwaitReady(ctx context.Context, key fingerprint.Key) (store.Snapshot, error) {
	for attempt := 1; ; attempt++ {
		if s.closed.Load() {
			return store.Snapshot{}, store.ErrClosed
		}
		if f := s.flights.Get(key); f != nil {
			f.AddWaiter()
			defer f.RemoveWaiter()
			return f.Wait(ctx)
		}

		changed := s.changes.C()
		info, err := readLock(s.lockPath(key))
		switch {
		case errors.Is(err, fs.ErrNotExist):
			return s.current(ctx, key), nil
		case err != nil:
			s.unavailable.Add(1)
			return s.current(ctx, key), nil
		case s.abandoned(info, s.clock.Now()):
			if err := removeLockIf(s.lockPath(key), info.Token); err != nil {
				s.logger.Warn(ctx, "failed to remove abandoned lock",
					observe.Field{Key: "cache.key", Value: key.Short()},
					observe.Field{Key: "error", Value: err})
			}
			return store.Snapshot{Key: key, State: store.StateEmpty}, nil
		}

		timer := time.NewTimer(s.poll.Delay(attempt))
		select {
		case <-changed:
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return store.Snapshot{}, store.ContextError(ctx)
		}
		timer.Stop()
	}
}

// current returns the READY snapshot for key, or EMPTY.
func (s *Store) current(ctx context.Context, key fingerprint.Key) store.Snapshot {
	rec, ok := s.load(ctx, key)
	if !ok || store.Expired(rec.ExpiresAt, s.clock.Now()) {
		return store.Snapshot{Key: key, State: store.StateEmpty}
	}
	return rec.snapshot(key)
}

// Invalidate implements store.Store.
func (s *Store) Invalidate(ctx context.Context, key fingerprint.Key) error {
	if s.flights.MarkDiscard(key) {
		return nil
	}
	if err := s.drop(key); err != nil {
		return fmt.Errorf("%w: %w", store.ErrUnavailable, err)
	}
	s.capacity.Broadcast()
	return nil
}

// InvalidateAll implements store.Store.
func (s *Store) InvalidateAll(ctx context.Context) error {
	s.flights.MarkAllDiscard()

	keys, err := s.valueKeys()
	if err != nil {
		return fmt.Errorf("%w: %w", store.ErrUnavailable, err)
	}

	var g errgroup.Group
	g.SetLimit(removeParallelism)
	for _, key := range keys {
		g.Go(func() error {
			return s.drop(key)
		})
	}
	err = g.Wait()

	if s.hot != nil {
		s.hot.DeleteAll()
	}
	s.mu.Lock()
	clear(s.index)
	s.order.Init()
	s.mu.Unlock()

	s.capacity.Broadcast()
	if err != nil {
		return fmt.Errorf("%w: %w", store.ErrUnavailable, err)
	}
	return nil
}

// EvictExpired implements store.Store.
func (s *Store) EvictExpired(ctx context.Context, now time.Time) (int, error) {
	keys, err := s.valueKeys()
	if err != nil {
		return 0, fmt.Errorf("%w: %w", store.ErrUnavailable, err)
	}

	var (
		n atomic.Int64
		g errgroup.Group
	)
	g.SetLimit(removeParallelism)
	for _, key := range keys {
		g.Go(func() error {
			data, err := s.readValue(ctx, key)
			if err != nil {
				s.unavailable.Add(1)
				return nil
			}
			if data == nil {
				return nil
			}
			rec, err := decodeRecord(data)
			if err != nil || !store.Expired(rec.ExpiresAt, now) {
				return nil
			}
			if err := s.drop(key); err != nil {
				return err
			}
			n.Add(1)
			return nil
		})
	}
	err = g.Wait()

	evicted := n.Load()
	s.evictions.Add(evicted)
	if evicted > 0 {
		s.capacity.Broadcast()
	}
	if err != nil {
		return int(evicted), fmt.Errorf("%w: %w", store.ErrUnavailable, err)
	}
	return int(evicted), nil
}

// valueKeys lists the keys that have a value file. A missing root has none.
func (s *Store) valueKeys() ([]fingerprint.Key, error) {
	dirents, err := os.ReadDir(s.root)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	keys := make([]fingerprint.Key, 0, len(dirents))
	for _, de := range dirents {
		if key, ok := parseName(de.Name(), valueSuffix); ok && strings.HasSuffix(de.Name(), valueSuffix) {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

// drop removes the value file of key and forgets it.
func (s *Store) drop(key fingerprint.Key) error {
	if s.hot != nil {
		s.hot.Delete(key)
	}
	s.indexRemove(key)

	if err := os.Remove(s.valuePath(key)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func (s *Store) indexPut(key fingerprint.Key, createdAt, expiresAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if elem, ok := s.index[key]; ok {
		s.order.Remove(elem)
	}
	it := indexed{key: key, createdAt: createdAt, expiresAt: expiresAt}
	mark := s.order.Back()
	for mark != nil && mark.Value.(indexed).createdAt.After(createdAt) {
		mark = mark.Prev()
	}
	if mark == nil {
		s.index[key] = s.order.PushFront(it)
	} else {
		s.index[key] = s.order.InsertAfter(it, mark)
	}
}

func (s *Store) indexRemove(key fingerprint.Key) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if elem, ok := s.index[key]; ok {
		s.order.Remove(elem)
		delete(s.index, key)
	}
}

// count is the number of entries held against MaxEntries.
func (s *Store) count() int {
	s.mu.Lock()
	n := len(s.index)
	s.mu.Unlock()
	return n + s.flights.Len()
}

// evictOldest drops an expired value file if the index knows one, else the
// value file created first.
func (s *Store) evictOldest(now time.Time) bool {
	s.mu.Lock()
	victim := s.order.Front()
	if victim == nil {
		s.mu.Unlock()
		return false
	}
	for el := victim; el != nil; el = el.Next() {
		if store.Expired(el.Value.(indexed).expiresAt, now) {
			victim = el
			break
		}
	}
	key := victim.Value.(indexed).key
	s.mu.Unlock()

	if err := s.drop(key); err != nil {
		s.unavailable.Add(1)
		return false
	}
	s.evictions.Add(1)
	return true
}

// Stats implements store.Store.
func (s *Store) Stats() store.Stats {
	s.mu.Lock()
	entries := len(s.index)
	s.mu.Unlock()

	return store.Stats{
		Entries:     entries,
		InFlight:    s.flights.Len(),
		Evictions:   s.evictions.Load(),
		Discarded:   s.discarded.Load(),
		Unavailable: s.unavailable.Load(),
	}
}

// Ping implements store.Pinger by creating and removing a file in the root.
func (s *Store) Ping(ctx context.Context) error {
	err := s.breaker.Execute(ctx, func(context.Context) error {
		f, err := os.CreateTemp(s.root, tempPrefix+"ping-*")
		if err != nil {
			return err
		}
		name := f.Name()
		return errors.Join(f.Close(), os.Remove(name))
	})
	if err != nil {
		return fmt.Errorf("%w: %w", store.ErrUnavailable, err)
	}
	return nil
}

// Close implements store.Store. Local in-flight reservations fail with
// store.ErrClosed and their lock files are removed.
func (s *Store) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}

	for _, r := range s.flights.Drain(store.ErrClosed) {
		s.releaseLock(r)
	}

	var err error
	if s.watcher != nil {
		err = s.watcher.Close()
		s.wg.Wait()
	}
	if s.hot != nil {
		s.hot.DeleteAll()
	}

	s.changes.Broadcast()
	s.capacity.Broadcast()
	return err
}

// Root returns the store's root directory.
func (s *Store) Root() string { return s.root }

// Ensure Store implements the store interfaces
var (
	_ store.Store  = (*Store)(nil)
	_ store.Pinger = (*Store)(nil)
)
