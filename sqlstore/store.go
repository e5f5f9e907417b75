package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/jonwraymond/resultcache/fingerprint"
	"github.com/jonwraymond/resultcache/observe"
	"github.com/jonwraymond/resultcache/resilience"
	"github.com/jonwraymond/resultcache/store"
)

// DefaultAbandonedLockAfter is the age at which a COMPUTING row is
// considered abandoned.
const DefaultAbandonedLockAfter = 10 * time.Minute

// Config configures a SQLite Store.
type Config struct {
	// DSN is the SQLite data source, a file path or ":memory:".
	DSN string

	// AbandonedLockAfter is the age after which a COMPUTING row may be
	// taken over.
	// Default: 10 minutes
	AbandonedLockAfter time.Duration

	// MaxEntries bounds the number of rows. Zero means unbounded.
	MaxEntries int

	// CapacityWait is how long GetOrReserve waits for an evictable row.
	// Default: store.DefaultCapacityWait
	CapacityWait time.Duration

	// PollInterval is the first delay between checks of a row reserved by
	// another process. Delays double up to MaxPollInterval.
	// Default: 10ms
	PollInterval time.Duration

	// MaxPollInterval caps the delay between row checks.
	// Default: 500ms
	MaxPollInterval time.Duration

	// Breaker guards database access.
	Breaker resilience.CircuitBreakerConfig

	// WriteRetry retries failed publishes.
	// Default: 3 attempts starting at 10ms
	WriteRetry resilience.RetryConfig

	// Clock supplies timestamps.
	// Default: store.SystemClock
	Clock store.Clock

	// Logger receives database warnings.
	// Default: no-op
	Logger observe.Logger
}

// Store is a store.Store persisting entries in a SQLite table.
type Store struct {
	config  Config
	db      *gorm.DB
	clock   store.Clock
	logger  observe.Logger
	breaker *resilience.CircuitBreaker
	writes  *resilience.Retry
	poll    *resilience.Retry

	flights  *store.Flights
	capacity *store.Notifier

	evictions   atomic.Int64
	discarded   atomic.Int64
	unavailable atomic.Int64
	closed      atomic.Bool
}

// Open opens the database at config.DSN, migrates the schema and removes
// abandoned COMPUTING rows.
func Open(config Config) (*Store, error) {
	if config.DSN == "" {
		return nil, ErrDSNRequired
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
		config.Breaker.Name = "sqlstore:" + config.DSN
	}
	if config.Breaker.IsFailure == nil {
		config.Breaker.IsFailure = isDBFailure
	}
	log := config.Logger.With(observe.Field{Key: "cache.backing", Value: "sqlite"})
	if config.Breaker.OnStateChange == nil {
		config.Breaker.OnStateChange = func(name string, from, to resilience.State) {
			log.Warn(context.Background(), "database circuit changed state",
				observe.Field{Key: "circuit", Value: name},
				observe.Field{Key: "from", Value: from.String()},
				observe.Field{Key: "to", Value: to.String()})
		}
	}
	if config.WriteRetry.InitialDelay <= 0 {
		config.WriteRetry.InitialDelay = 10 * time.Millisecond
	}

	db, err := gorm.Open(sqlite.Open(config.DSN), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", store.ErrUnavailable, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", store.ErrUnavailable, err)
	}
	// SQLite allows one writer; a single connection also keeps ":memory:"
	// databases shared across calls.
	sqlDB.SetMaxOpenConns(1)

	if err := db.Exec("PRAGMA busy_timeout = 5000").Error; err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("%w: %w", store.ErrUnavailable, err)
	}
	if err := db.AutoMigrate(&entryRow{}); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("%w: migrate: %w", store.ErrUnavailable, err)
	}

	s := &Store{
		config:   config,
		db:       db,
		clock:    config.Clock,
		logger:   log,
		breaker:  resilience.NewCircuitBreaker(config.Breaker),
		writes:   resilience.NewRetry(config.WriteRetry),
		flights:  store.NewFlights(),
		capacity: store.NewNotifier(),
		poll: resilience.NewRetry(resilience.RetryConfig{
			InitialDelay: config.PollInterval,
			MaxDelay:     config.MaxPollInterval,
			Jitter:       true,
		}),
	}

	if err := s.sweep(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("%w: %w", store.ErrUnavailable, err)
	}
	return s, nil
}

// isDBFailure counts errors that indicate a sick database. Missing rows and
// caller cancellation are normal outcomes.
func isDBFailure(err error) bool {
	if err == nil {
		return false
	}
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound),
		errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return false
	}
	return true
}

// sweep deletes COMPUTING rows whose reservation is abandoned.
func (s *Store) sweep() error {
	cutoff := s.clock.Now().Add(-s.config.AbandonedLockAfter).UnixNano()
	res := s.db.Where("state = ? AND locked_at <= ?", store.StateComputing, cutoff).Delete(&entryRow{})
	if res.Error != nil {
		return res.Error
	}

	var entries int64
	if err := s.db.Model(&entryRow{}).Where("state = ?", store.StateReady).Count(&entries).Error; err != nil {
		return err
	}
	s.logger.Info(context.Background(), "sqlite store opened",
		observe.Field{Key: "entries", Value: entries},
		observe.Field{Key: "abandoned_locks", Value: res.RowsAffected})
	return nil
}

func (s *Store) abandoned(row entryRow, now time.Time) bool {
	return now.Sub(time.Unix(0, row.Locked)) >= s.config.AbandonedLockAfter
}

type reserveResult struct {
	snap store.Snapshot
	res  *store.Reservation
}

// attempt is the outcome of one reservation transaction.
type attempt struct {
	snap     store.Snapshot
	reserved bool
	full     bool
	evicted  int64
}

// GetOrReserve implements store.Store. A database failure returns an error
// matching store.ErrUnavailable.
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

	r := store.NewReservation(key, s.clock.Now())
	f, started := s.flights.Start(r)
	if !started {
		return reserveResult{snap: computing(key, f)}, true, nil
	}

	a, err := resilience.Guard(ctx, s.breaker, func(ctx context.Context) (attempt, error) {
		return s.reserve(ctx, r)
	})
	if err != nil {
		s.unavailable.Add(1)
		s.flights.Finish(r, store.Snapshot{Key: key, State: store.StateEmpty})
		return reserveResult{}, false, fmt.Errorf("%w: %w", store.ErrUnavailable, err)
	}
	s.evictions.Add(a.evicted)

	switch {
	case a.full:
		s.flights.Finish(r, store.Snapshot{Key: key, State: store.StateEmpty})
		return reserveResult{}, false, nil
	case !a.reserved:
		s.flights.Finish(r, store.Snapshot{Key: key, State: store.StateEmpty})
		return reserveResult{snap: a.snap}, true, nil
	}
	return reserveResult{snap: a.snap, res: r}, true, nil
}

func computing(key fingerprint.Key, f *store.Flight) store.Snapshot {
	return store.Snapshot{Key: key, State: store.StateComputing, Waiters: f.Waiters(), Flight: f}
}

// reserve reads the row for r.Key and, unless it is fresh or reserved by a
// live owner, writes a COMPUTING row for r in the same transaction.
func (s *Store) reserve(ctx context.Context, r *store.Reservation) (attempt, error) {
	var out attempt
	id := r.Key.String()

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		out = attempt{}

		var row entryRow
		err := tx.Where("entry_key = ?", id).Take(&row).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
		case err != nil:
			return err
		case row.State == store.StateReady && !store.Expired(row.expiresAt(), r.At):
			out.snap = row.snapshot(r.Key)
			return nil
		case row.State == store.StateReady:
			out.evicted++
		case !s.abandoned(row, r.At):
			out.snap = store.Snapshot{
				Key:       r.Key,
				State:     store.StateComputing,
				CreatedAt: time.Unix(0, row.Locked),
			}
			return nil
		default:
			s.logger.Warn(ctx, "taking over abandoned reservation",
				observe.Field{Key: "cache.key", Value: r.Key.Short()})
		}

		if s.config.MaxEntries > 0 {
			var n int64
			if err := tx.Model(&entryRow{}).Where("entry_key <> ?", id).Count(&n).Error; err != nil {
				return err
			}
			if int(n) >= s.config.MaxEntries {
				var victim entryRow
				err := tx.Where("state = ? AND entry_key <> ?", store.StateReady, id).
					Order(clause.OrderBy{Expression: clause.Expr{
						SQL:  "CASE WHEN expires_at <> 0 AND expires_at <= ? THEN 0 ELSE 1 END, created_at",
						Vars: []any{r.At.UnixNano()},
					}}).
					Take(&victim).Error
				if errors.Is(err, gorm.ErrRecordNotFound) {
					out.full = true
					return nil
				}
				if err != nil {
					return err
				}
				if err := tx.Delete(&victim).Error; err != nil {
					return err
				}
				out.evicted++
			}
		}

		mine := entryRow{
			Key:    id,
			State:  store.StateComputing,
			Owner:  r.Token,
			Locked: r.At.UnixNano(),
		}
		if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&mine).Error; err != nil {
			return err
		}
		out.reserved = true
		out.snap = store.Snapshot{Key: r.Key, State: store.StateComputing, CreatedAt: r.At}
		return nil
	})
	return out, err
}

// deleteOwned removes the COMPUTING row held by r.
func (s *Store) deleteOwned(ctx context.Context, r *store.Reservation) {
	err := s.breaker.Execute(ctx, func(ctx context.Context) error {
		return s.db.WithContext(ctx).
			Where("entry_key = ? AND owner = ?", r.Key.String(), r.Token).
			Delete(&entryRow{}).Error
	})
	if err != nil {
		s.unavailable.Add(1)
		s.logger.Warn(ctx, "failed to release reservation row",
			observe.Field{Key: "cache.key", Value: r.Key.Short()},
			observe.Field{Key: "error", Value: err})
	}
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
		s.deleteOwned(ctx, r)
	case ttl == 0:
		s.deleteOwned(ctx, r)
	default:
		updated, err := resilience.Do(ctx, s.writes, func(ctx context.Context) (int64, error) {
			return resilience.Guard(ctx, s.breaker, func(ctx context.Context) (int64, error) {
				res := s.db.WithContext(ctx).Model(&entryRow{}).
					Where("entry_key = ? AND owner = ? AND state = ?", r.Key.String(), r.Token, store.StateComputing).
					Updates(map[string]any{
						"state":      store.StateReady,
						"owner":      "",
						"payload":    payload,
						"created_at": now.UnixNano(),
						"expires_at": unixNanos(snap.ExpiresAt),
						"locked_at":  0,
					})
				return res.RowsAffected, res.Error
			})
		})
		if err != nil {
			cause := fmt.Errorf("%w: %w", store.ErrUnavailable, err)
			s.unavailable.Add(1)
			s.logger.Error(ctx, "failed to write entry row",
				observe.Field{Key: "cache.key", Value: r.Key.Short()},
				observe.Field{Key: "error", Value: err})
			s.deleteOwned(context.WithoutCancel(ctx), r)
			s.flights.Finish(r, store.Snapshot{Key: r.Key, State: store.StateFailed, Err: cause})
			s.capacity.Broadcast()
			return store.Snapshot{}, cause
		}

		switch {
		case updated == 0:
			// The row was taken over as abandoned; the value is handed out
			// but not stored.
			s.discarded.Add(1)
			s.logger.Warn(ctx, "reservation lost before publish",
				observe.Field{Key: "cache.key", Value: r.Key.Short()})
		case f.Discarded():
			// Invalidated while the row was being written.
			_ = s.deleteReady(ctx, r.Key)
			s.discarded.Add(1)
		}
	}

	snap.Waiters = f.Waiters()
	s.flights.Finish(r, snap)
	s.capacity.Broadcast()
	return snap, nil
}

// Fail implements store.Store.
func (s *Store) Fail(ctx context.Context, r *store.Reservation, cause error) error {
	if _, ok := s.flights.Owned(r); !ok {
		return store.ErrNotOwner
	}
	s.deleteOwned(context.WithoutCancel(ctx), r)
	s.flights.Finish(r, store.Snapshot{Key: r.Key, State: store.StateFailed, Err: cause})
	s.capacity.Broadcast()
	return nil
}

// AwaitReady implements store.Store. A computation in another process ends
// with READY when it left a fresh row and EMPTY otherwise.
func (s *Store) AwaitReady(ctx context.Context, key fingerprint.Key) (store.Snapshot, error) {
	for n := 1; ; n++ {
		if s.closed.Load() {
			return store.Snapshot{}, store.ErrClosed
		}
		if f := s.flights.Get(key); f != nil {
			f.AddWaiter()
			defer f.RemoveWaiter()
			return f.Wait(ctx)
		}

		row, found, err := s.load(ctx, key)
		now := s.clock.Now()
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return store.Snapshot{}, store.ContextError(ctx)
			}
			s.unavailable.Add(1)
			return store.Snapshot{Key: key, State: store.StateEmpty}, nil
		case !found:
			return store.Snapshot{Key: key, State: store.StateEmpty}, nil
		case row.State == store.StateReady:
			if store.Expired(row.expiresAt(), now) {
				return store.Snapshot{Key: key, State: store.StateEmpty}, nil
			}
			return row.snapshot(key), nil
		case s.abandoned(row, now):
			s.deleteOwned(ctx, &store.Reservation{Key: key, Token: row.Owner})
			return store.Snapshot{Key: key, State: store.StateEmpty}, nil
		}

		timer := time.NewTimer(s.poll.Delay(n))
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return store.Snapshot{}, store.ContextError(ctx)
		}
	}
}

// load reads the row for key through the breaker.
func (s *Store) load(ctx context.Context, key fingerprint.Key) (entryRow, bool, error) {
	row, err := resilience.Guard(ctx, s.breaker, func(ctx context.Context) (entryRow, error) {
		var row entryRow
		err := s.db.WithContext(ctx).Where("entry_key = ?", key.String()).Take(&row).Error
		return row, err
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return entryRow{}, false, nil
	}
	if err != nil {
		return entryRow{}, false, err
	}
	return row, true, nil
}

func (s *Store) deleteReady(ctx context.Context, key fingerprint.Key) error {
	return s.breaker.Execute(ctx, func(ctx context.Context) error {
		return s.db.WithContext(ctx).
			Where("entry_key = ? AND state = ?", key.String(), store.StateReady).
			Delete(&entryRow{}).Error
	})
}

// Invalidate implements store.Store.
func (s *Store) Invalidate(ctx context.Context, key fingerprint.Key) error {
	if s.flights.MarkDiscard(key) {
		return nil
	}
	if err := s.deleteReady(ctx, key); err != nil {
		return fmt.Errorf("%w: %w", store.ErrUnavailable, err)
	}
	s.capacity.Broadcast()
	return nil
}

// InvalidateAll implements store.Store.
func (s *Store) InvalidateAll(ctx context.Context) error {
	s.flights.MarkAllDiscard()

	err := s.breaker.Execute(ctx, func(ctx context.Context) error {
		return s.db.WithContext(ctx).Where("state = ?", store.StateReady).Delete(&entryRow{}).Error
	})
	s.capacity.Broadcast()
	if err != nil {
		return fmt.Errorf("%w: %w", store.ErrUnavailable, err)
	}
	return nil
}

// EvictExpired implements store.Store.
func (s *Store) EvictExpired(ctx context.Context, now time.Time) (int, error) {
	n, err := resilience.Guard(ctx, s.breaker, func(ctx context.Context) (int64, error) {
		res := s.db.WithContext(ctx).
			Where("state = ? AND expires_at <> 0 AND expires_at <= ?", store.StateReady, now.UnixNano()).
			Delete(&entryRow{})
		return res.RowsAffected, res.Error
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %w", store.ErrUnavailable, err)
	}
	s.evictions.Add(n)
	if n > 0 {
		s.capacity.Broadcast()
	}
	return int(n), nil
}

// Stats implements store.Store. Entries counts READY rows across all
// processes sharing the database.
func (s *Store) Stats() store.Stats {
	var entries int64
	if !s.closed.Load() {
		if err := s.db.Model(&entryRow{}).Where("state = ?", store.StateReady).Count(&entries).Error; err != nil {
			s.unavailable.Add(1)
		}
	}

	return store.Stats{
		Entries:     int(entries),
		InFlight:    s.flights.Len(),
		Evictions:   s.evictions.Load(),
		Discarded:   s.discarded.Load(),
		Unavailable: s.unavailable.Load(),
	}
}

// Ping implements store.Pinger.
func (s *Store) Ping(ctx context.Context) error {
	err := s.breaker.Execute(ctx, func(ctx context.Context) error {
		sqlDB, err := s.db.DB()
		if err != nil {
			return err
		}
		return sqlDB.PingContext(ctx)
	})
	if err != nil {
		return fmt.Errorf("%w: %w", store.ErrUnavailable, err)
	}
	return nil
}

// Close implements store.Store. Local in-flight reservations fail with
// store.ErrClosed and their rows are deleted.
func (s *Store) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}

	for _, r := range s.flights.Drain(store.ErrClosed) {
		s.deleteOwned(context.Background(), r)
	}
	s.capacity.Broadcast()

	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Ensure Store implements the store interfaces
var (
	_ store.Store  = (*Store)(nil)
	_ store.Pinger = (*Store)(nil)
)
