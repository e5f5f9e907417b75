// Package health reports whether a cache can serve.
//
// A Checker returns a Result with a Status of Healthy, Degraded or
// Unhealthy. NewStoreChecker probes an entry store: a failed Ping is
// unhealthy, and a store holding more than its warning fraction of
// MaxEntries is degraded. NewMemoryChecker watches the heap, where the
// memory backing keeps its payloads.
//
//	agg := health.NewAggregator()
//	agg.Register("store", health.NewStoreChecker(s, health.StoreCheckerConfig{
//	    MaxEntries: 10000,
//	}))
//	agg.Register("memory", health.NewMemoryChecker(health.MemoryCheckerConfig{}))
//
//	results := agg.CheckAll(ctx)
//	if agg.OverallStatus(results) == health.StatusUnhealthy {
//	    ...
//	}
//
// cache.Cache.Health returns an Aggregator with both checks registered.
package health
