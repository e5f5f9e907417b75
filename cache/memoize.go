package cache

import "context"

// Memoized binds a producer to a cache handle so call sites do not repeat
// both.
type Memoized[T any] struct {
	cache    *Cache
	producer *Producer[T]
}

// Memoize binds p to c.
func Memoize[T any](c *Cache, p *Producer[T]) *Memoized[T] {
	return &Memoized[T]{cache: c, producer: p}
}

// Get is GetOrCompute for the bound cache and producer.
func (m *Memoized[T]) Get(ctx context.Context, args []any, kwargs map[string]any, opts ...CallOption) (T, error) {
	return GetOrCompute(ctx, m.cache, m.producer, args, kwargs, opts...)
}

// Call is Get with positional arguments only.
func (m *Memoized[T]) Call(ctx context.Context, args ...any) (T, error) {
	return GetOrCompute(ctx, m.cache, m.producer, args, nil)
}

// Invalidate empties the entry for args and kwargs.
func (m *Memoized[T]) Invalidate(ctx context.Context, args []any, kwargs map[string]any) error {
	if m.cache == nil {
		return ErrNilCache
	}
	return m.cache.Invalidate(ctx, m.producer.ID(), args, kwargs)
}

// Producer returns the bound producer.
func (m *Memoized[T]) Producer() *Producer[T] { return m.producer }
