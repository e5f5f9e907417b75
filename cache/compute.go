package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonwraymond/resultcache/fingerprint"
	"github.com/jonwraymond/resultcache/observe"
	"github.com/jonwraymond/resultcache/store"
)

// CallOption configures one GetOrCompute call.
type CallOption func(*callOptions)

type callOptions struct {
	ttl         time.Duration
	ttlSet      bool
	waitTimeout time.Duration
}

// WithTTL sets the lifetime of the value this call produces. Zero hands the
// value to the caller and its concurrent waiters without caching it;
// store.NoExpiration keeps it until invalidated. MaxTTL still applies.
func WithTTL(ttl time.Duration) CallOption {
	return func(o *callOptions) {
		o.ttl = ttl
		o.ttlSet = true
	}
}

// WithWaitTimeout bounds how long this call waits for another caller's
// computation, overriding Config.WaitTimeout.
func WithWaitTimeout(d time.Duration) CallOption {
	return func(o *callOptions) {
		o.waitTimeout = d
	}
}

func (c *Cache) ttlFor(producerTTL time.Duration, o callOptions) (time.Duration, error) {
	override := producerTTL
	if o.ttlSet {
		if o.ttl == 0 {
			return 0, nil
		}
		override = o.ttl
	}
	if store.ValidateTTL(override) != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidTTL, override)
	}
	return c.policy.EffectiveTTL(override), nil
}

// GetOrCompute returns the cached value of p for args and kwargs, or runs p
// to produce it. Concurrent calls with the same key share one invocation.
func GetOrCompute[T any](ctx context.Context, c *Cache, p *Producer[T], args []any, kwargs map[string]any, opts ...CallOption) (T, error) {
	var zero T
	if c == nil {
		return zero, ErrNilCache
	}
	if err := p.Validate(); err != nil {
		return zero, err
	}

	o := callOptions{waitTimeout: c.config.WaitTimeout}
	for _, opt := range opts {
		opt(&o)
	}
	ttl, err := c.ttlFor(p.ttl, o)
	if err != nil {
		return zero, err
	}

	key, err := c.Key(p.id, args, kwargs)
	if err != nil {
		return zero, err
	}

	k := &call[T]{
		cache:    c,
		producer: p,
		meta:     p.meta,
		key:      key,
		args:     args,
		kwargs:   kwargs,
		ttl:      ttl,
		wait:     o.waitTimeout,
	}
	k.meta.Backing = c.backing
	return k.run(ctx)
}

// call is one GetOrCompute invocation.
type call[T any] struct {
	cache    *Cache
	producer *Producer[T]
	meta     observe.ProducerMeta
	key      fingerprint.Key
	args     []any
	kwargs   map[string]any
	ttl      time.Duration
	wait     time.Duration
}

func (k *call[T]) run(ctx context.Context) (T, error) {
	var zero T
	c := k.cache
	redecoded := false

	for {
		snap, res, err := c.store.GetOrReserve(ctx, k.key)
		if errors.Is(err, store.ErrUnavailable) {
			c.logger.Warn(ctx, "store unavailable, computing without cache",
				observe.Field{Key: "producer.id", Value: k.producer.id},
				observe.Field{Key: "error", Value: err})
			return k.uncached(ctx)
		}
		if err != nil {
			return zero, storeError(k.producer.id, k.key, err)
		}

		if res != nil {
			c.misses.Add(1)
			c.middleware.Metrics().RecordLookup(ctx, k.meta, observe.LookupMiss)
			return k.produce(ctx, res)
		}

		lookup := observe.LookupHit
		if snap.State == store.StateComputing {
			snap, err = k.await(ctx, snap)
			if err != nil {
				return zero, storeError(k.producer.id, k.key, err)
			}
			switch snap.State {
			case store.StateEmpty:
				// Discarded or abandoned computation: try again.
				continue
			case store.StateFailed:
				return zero, k.failed(snap.Err)
			}
			lookup = observe.LookupShared
		}

		v, err := k.decode(snap)
		if err != nil {
			if lookup == observe.LookupShared || redecoded {
				return zero, &Error{Kind: KindProducerFailed, Producer: k.producer.id, Key: k.key,
					Err: fmt.Errorf("decode cached value: %w", err)}
			}
			c.logger.Warn(ctx, "cached value does not decode, recomputing",
				observe.Field{Key: "producer.id", Value: k.producer.id},
				observe.Field{Key: "cache.key", Value: k.key.Short()},
				observe.Field{Key: "error", Value: err})
			if err := c.store.Invalidate(ctx, k.key); err != nil {
				return zero, storeError(k.producer.id, k.key, err)
			}
			redecoded = true
			continue
		}

		if lookup == observe.LookupShared {
			c.shared.Add(1)
		} else {
			c.hits.Add(1)
		}
		c.middleware.Metrics().RecordLookup(ctx, k.meta, lookup)
		return v, nil
	}
}

// await waits, under the wait timeout, for the computation snap saw.
func (k *call[T]) await(ctx context.Context, snap store.Snapshot) (store.Snapshot, error) {
	if k.wait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, k.wait)
		defer cancel()
	}
	return store.Await(ctx, k.cache.store, snap)
}

// decode returns the value held by a READY snapshot. Stores that keep
// objects hand back the produced value itself; payloads go through the codec.
func (k *call[T]) decode(snap store.Snapshot) (T, error) {
	if snap.Object != nil {
		v, ok := snap.Object.(T)
		if !ok {
			return v, fmt.Errorf("cached value is %T", snap.Object)
		}
		return v, nil
	}
	if k.cache.objects != nil && snap.Value == nil {
		var zero T
		return zero, nil
	}
	return k.producer.codec.Decode(snap.Value)
}

// failed converts the outcome of a failed computation for a waiter.
func (k *call[T]) failed(cause error) error {
	if errors.Is(cause, store.ErrClosed) {
		return store.ErrClosed
	}
	return &Error{Kind: KindProducerFailed, Producer: k.producer.id, Key: k.key, Err: cause}
}

// invoke runs the producer through the middleware. With encode set the
// result is also encoded for the store.
func (k *call[T]) invoke(ctx context.Context, encode bool) (T, []byte, error) {
	var (
		value   T
		payload []byte
	)
	produce := k.cache.middleware.Wrap(func(ctx context.Context, _ observe.ProducerMeta, _ string) error {
		if l := k.cache.limiter; l != nil {
			if err := l.Wait(ctx); err != nil {
				return err
			}
		}
		v, err := k.producer.invoke(ctx, k.args, k.kwargs)
		if err != nil {
			return err
		}
		value = v
		if !encode {
			return nil
		}
		b, err := k.producer.codec.Encode(v)
		if err != nil {
			return fmt.Errorf("encode value: %w", err)
		}
		payload = b
		return nil
	})
	err := produce(ctx, k.meta, k.key.String())
	return value, payload, err
}

// produce runs the producer for a reservation and publishes the outcome.
// Cleanup ignores cancellation of ctx so the entry never stays COMPUTING.
func (k *call[T]) produce(ctx context.Context, res *store.Reservation) (T, error) {
	var zero T
	c := k.cache
	cleanup := context.WithoutCancel(ctx)

	value, payload, err := k.invoke(ctx, c.objects == nil)
	if err != nil {
		c.failures.Add(1)
		var pe *PanicError
		if errors.As(err, &pe) {
			k.report(ctx, err)
		}
		if ferr := c.store.Fail(cleanup, res, err); ferr != nil {
			c.logger.Warn(ctx, "failed to release reservation",
				observe.Field{Key: "producer.id", Value: k.producer.id},
				observe.Field{Key: "cache.key", Value: k.key.Short()},
				observe.Field{Key: "error", Value: ferr})
		}
		return zero, &Error{Kind: KindProducerFailed, Producer: k.producer.id, Key: k.key, Err: err}
	}

	if err := k.publish(cleanup, res, value, payload); err != nil {
		c.failures.Add(1)
		k.report(ctx, err)
		if errors.Is(err, store.ErrClosed) || (errors.Is(err, store.ErrNotOwner) && c.closed.Load()) {
			return zero, store.ErrClosed
		}
		return zero, &Error{Kind: KindProducerFailed, Producer: k.producer.id, Key: k.key, Err: err}
	}
	return value, nil
}

func (k *call[T]) publish(ctx context.Context, res *store.Reservation, value T, payload []byte) error {
	var err error
	if o := k.cache.objects; o != nil {
		_, err = o.PublishObject(ctx, res, value, k.ttl)
	} else {
		_, err = k.cache.store.Publish(ctx, res, payload, k.ttl)
	}
	return err
}

// uncached runs the producer without a reservation. Used when the store
// cannot be reached; concurrent callers are not coalesced.
func (k *call[T]) uncached(ctx context.Context) (T, error) {
	var zero T
	k.cache.misses.Add(1)
	k.cache.middleware.Metrics().RecordLookup(ctx, k.meta, observe.LookupMiss)

	value, _, err := k.invoke(ctx, false)
	if err != nil {
		k.cache.failures.Add(1)
		return zero, &Error{Kind: KindProducerFailed, Producer: k.producer.id, Key: k.key, Err: err}
	}
	return value, nil
}

func (k *call[T]) report(ctx context.Context, err error) {
	k.cache.middleware.Reporter().Report(ctx, err, map[string]string{
		"producer.id":   k.producer.id,
		"cache.backing": k.cache.backing,
	})
}
