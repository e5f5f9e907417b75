// Package cache is the keyed result cache: it runs a producer at most once
// per distinct call at a time and serves its result to every caller until
// the entry expires.
//
// A call is identified by its producer ID, positional arguments and keyword
// arguments, reduced to a fingerprint.Key. The first caller for a key
// reserves it and runs the producer; concurrent callers wait for that
// computation and receive its outcome. Successful results are published to
// the store with a TTL; failures are handed to the owner and its waiters and
// never cached.
//
// # Basic Usage
//
//	c, err := cache.New(cache.Config{DefaultTTL: time.Minute})
//	if err != nil {
//	    return err
//	}
//	defer c.Close()
//
//	totals := cache.NewProducer("reports.DailyTotals",
//	    func(ctx context.Context, args []any, kwargs map[string]any) (int, error) {
//	        return computeTotals(ctx, args[0].(string))
//	    })
//
//	n, err := cache.GetOrCompute(ctx, c, totals, []any{"2025-03-01"}, nil)
//
// # Backings
//
// Config.Backing selects where entries live: "memory" (default), "file"
// (one value file and one lock file per key under RootPath) or "sqlite"
// (a table in an embedded database). Any store.Store can be supplied with
// WithStore.
//
// # Errors
//
// Failures are reported as *Error carrying a Kind. Use errors.Is with
// ErrUnhashableArgument, ErrProducerFailed, ErrTimeout, ErrStoreUnavailable
// or ErrCapacityBlocked to test the kind, and errors.Unwrap or errors.As to
// reach the cause.
package cache
