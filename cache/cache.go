package cache

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"github.com/jonwraymond/resultcache/filestore"
	"github.com/jonwraymond/resultcache/fingerprint"
	"github.com/jonwraymond/resultcache/health"
	"github.com/jonwraymond/resultcache/observe"
	"github.com/jonwraymond/resultcache/resilience"
	"github.com/jonwraymond/resultcache/sqlstore"
	"github.com/jonwraymond/resultcache/store"
)

// Cache coordinates producers over a store.
//
// Contract:
// - Concurrency: safe for concurrent use; a producer runs at most once at a
//   time per key within the process.
// - Context: calls honor cancellation while waiting; a cancelled waiter does
//   not affect the computation it waited on.
// - Errors: failures are *Error values; producer errors are never cached.
type Cache struct {
	config     Config
	policy     Policy
	backing    string
	store      store.Store
	objects    store.ObjectPublisher // nil unless the store keeps values as they are
	keyer      fingerprint.Keyer
	clock      store.Clock
	middleware *observe.Middleware
	logger     observe.Logger
	limiter    *resilience.RateLimiter

	hits     atomic.Int64
	misses   atomic.Int64
	shared   atomic.Int64
	failures atomic.Int64

	evictMu         sync.Mutex
	evictionsLogged int64

	closed atomic.Bool
}

// Option configures a Cache.
type Option func(*options)

type options struct {
	store      store.Store
	objects    store.ObjectPublisher // nil unless the store keeps values as they are
	keyer      fingerprint.Keyer
	middleware *observe.Middleware
	logger     observe.Logger
}

// WithStore uses s instead of opening the configured backing. The cache
// takes ownership and closes s on Close.
func WithStore(s store.Store) Option {
	return func(o *options) { o.store = s }
}

// WithKeyer replaces the default fingerprint keyer.
func WithKeyer(k fingerprint.Keyer) Option {
	return func(o *options) { o.keyer = k }
}

// WithMiddleware wraps producer invocations with tracing, metrics, logging
// and error reporting.
func WithMiddleware(m *observe.Middleware) Option {
	return func(o *options) { o.middleware = m }
}

// WithLogger sets the logger for cache and store events. Defaults to the
// middleware's logger.
func WithLogger(l observe.Logger) Option {
	return func(o *options) { o.logger = l }
}

// New creates a cache for config.
func New(config Config, opts ...Option) (*Cache, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.middleware == nil {
		o.middleware = observe.NopMiddleware()
	}
	if o.logger == nil {
		o.logger = o.middleware.Logger()
	}
	if o.keyer == nil {
		o.keyer = fingerprint.NewDefaultKeyer()
	}

	backing := string(config.backing())
	if o.store == nil {
		s, err := openStore(config, o.logger)
		if err != nil {
			return nil, err
		}
		o.store = s
	} else {
		backing = fmt.Sprintf("%T", o.store)
	}

	c := &Cache{
		config:     config,
		policy:     config.policy(),
		backing:    backing,
		store:      o.store,
		keyer:      o.keyer,
		clock:      config.clock(),
		middleware: o.middleware,
		logger:     o.logger.With(observe.Field{Key: "cache.backing", Value: backing}),
	}
	if op, ok := o.store.(store.ObjectPublisher); ok {
		c.objects = op
	}
	if config.ProduceRate > 0 {
		burst := config.ProduceBurst
		if burst == 0 {
			burst = 1
		}
		c.limiter = resilience.NewRateLimiter(resilience.RateLimiterConfig{
			Rate:    config.ProduceRate,
			Burst:   burst,
			MaxWait: config.WaitTimeout,
		})
	}

	c.logger.Info(context.Background(), "cache opened",
		observe.Field{Key: "default_ttl", Value: c.policy.DefaultTTL.String()},
		observe.Field{Key: "max_entries", Value: config.MaxEntries})
	return c, nil
}

func openStore(config Config, logger observe.Logger) (store.Store, error) {
	switch config.backing() {
	case BackingFile:
		s, err := filestore.Open(filestore.Config{
			Root:               config.RootPath,
			AbandonedLockAfter: config.AbandonedLockAfter,
			MaxEntries:         config.MaxEntries,
			CapacityWait:       config.CapacityWait,
			HotEntries:         config.HotEntries,
			Clock:              config.clock(),
			Logger:             logger,
		})
		if err != nil {
			return nil, &Error{Kind: KindStoreUnavailable, Err: err}
		}
		return s, nil

	case BackingSQLite:
		if config.DSN == "" {
			if err := os.MkdirAll(config.RootPath, 0o755); err != nil {
				return nil, &Error{Kind: KindStoreUnavailable, Err: err}
			}
		}
		s, err := sqlstore.Open(sqlstore.Config{
			DSN:                config.dsn(),
			AbandonedLockAfter: config.AbandonedLockAfter,
			MaxEntries:         config.MaxEntries,
			CapacityWait:       config.CapacityWait,
			Clock:              config.clock(),
			Logger:             logger,
		})
		if err != nil {
			return nil, &Error{Kind: KindStoreUnavailable, Err: err}
		}
		return s, nil

	default:
		return store.NewMemoryStore(store.MemoryConfig{
			MaxEntries:   config.MaxEntries,
			CapacityWait: config.CapacityWait,
			Clock:        config.clock(),
		}), nil
	}
}

// storeError converts a store error into the cache vocabulary. Context
// errors and store.ErrClosed are returned unchanged.
func storeError(producer string, key fingerprint.Key, err error) error {
	var kind Kind
	switch {
	case errors.Is(err, store.ErrTimeout):
		kind = KindTimeout
	case errors.Is(err, store.ErrCapacityBlocked):
		kind = KindCapacityBlocked
	case errors.Is(err, store.ErrUnavailable):
		kind = KindStoreUnavailable
	default:
		return err
	}
	return &Error{Kind: kind, Producer: producer, Key: key, Err: err}
}

// Key derives the key of a call without touching the store.
func (c *Cache) Key(producerID string, args []any, kwargs map[string]any) (fingerprint.Key, error) {
	key, err := c.keyer.Key(producerID, args, kwargs)
	if err != nil {
		return key, &Error{Kind: KindUnhashableArgument, Producer: producerID, Err: err}
	}
	return key, nil
}

// Invalidate empties the entry of one call. An entry being computed is
// marked so its result is handed to its waiters but not stored.
func (c *Cache) Invalidate(ctx context.Context, producerID string, args []any, kwargs map[string]any) error {
	if c == nil {
		return ErrNilCache
	}
	key, err := c.Key(producerID, args, kwargs)
	if err != nil {
		return err
	}
	if err := c.store.Invalidate(ctx, key); err != nil {
		return storeError(producerID, key, err)
	}
	return nil
}

// InvalidateAll empties every entry. In-flight computations complete and
// their results are discarded.
func (c *Cache) InvalidateAll(ctx context.Context) error {
	if c == nil {
		return ErrNilCache
	}
	if err := c.store.InvalidateAll(ctx); err != nil {
		return storeError("", fingerprint.Key{}, err)
	}
	c.logger.Info(ctx, "cache invalidated")
	return nil
}

// EvictExpired removes expired entries now and returns how many went.
// Expiry is otherwise only checked when an entry is read.
func (c *Cache) EvictExpired(ctx context.Context) (int, error) {
	if c == nil {
		return 0, ErrNilCache
	}
	n, err := c.store.EvictExpired(ctx, c.clock.Now())
	c.recordEvictions(ctx, c.store.Stats().Evictions, int64(n))
	if err != nil {
		return n, storeError("", fingerprint.Key{}, err)
	}
	return n, nil
}

// recordEvictions reports evictions since the last call to metrics. total
// is the store's running count; expired of the new ones came from an
// explicit sweep, the rest were made while reserving, under capacity
// pressure or by replacing an expired entry.
func (c *Cache) recordEvictions(ctx context.Context, total, expired int64) {
	c.evictMu.Lock()
	delta := total - c.evictionsLogged
	c.evictionsLogged = total
	c.evictMu.Unlock()

	metrics := c.middleware.Metrics()
	if expired > 0 {
		metrics.RecordEvictions(ctx, observe.EvictExpired, expired)
	}
	if rest := delta - expired; rest > 0 {
		metrics.RecordEvictions(ctx, observe.EvictCapacity, rest)
	}
}

// Stats is a point-in-time summary of a cache.
type Stats struct {
	// Hits counts calls served from a fresh entry.
	Hits int64
	// Misses counts calls that ran the producer.
	Misses int64
	// Shared counts calls that received another caller's computation.
	Shared int64
	// Failures counts producer or publish failures seen by owners.
	Failures int64
	// InFlight is the number of computations running in this process.
	InFlight int
	// Entries is the number of READY entries.
	Entries int
	// Evictions counts entries removed by capacity pressure or expiry.
	Evictions int64
	// Discarded counts results dropped because of invalidation.
	Discarded int64
}

// Stats returns current counters.
func (c *Cache) Stats() Stats {
	s := c.store.Stats()
	c.recordEvictions(context.Background(), s.Evictions, 0)
	return Stats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Shared:    c.shared.Load(),
		Failures:  c.failures.Load(),
		InFlight:  s.InFlight,
		Entries:   s.Entries,
		Evictions: s.Evictions,
		Discarded: s.Discarded,
	}
}

// Health returns an aggregate of the store and process memory checks.
func (c *Cache) Health() *health.Aggregator {
	agg := health.NewAggregator()
	agg.Register("store", health.NewStoreChecker(c.store, health.StoreCheckerConfig{
		Name:       "store:" + c.backing,
		MaxEntries: c.config.MaxEntries,
	}))
	agg.Register("memory", health.NewMemoryChecker(health.MemoryCheckerConfig{}))
	return agg
}

// Store returns the underlying store.
func (c *Cache) Store() store.Store { return c.store }

// Close closes the store. Computations still running fail with
// store.ErrClosed for their waiters.
func (c *Cache) Close() error {
	if c == nil {
		return ErrNilCache
	}
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	c.logger.Info(context.Background(), "cache closed")
	return c.store.Close()
}
