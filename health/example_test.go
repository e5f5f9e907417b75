package health_test

import (
	"context"
	"errors"
	"fmt"

	"github.com/jonwraymond/resultcache/health"
	"github.com/jonwraymond/resultcache/store"
)

func ExampleNewStoreChecker() {
	s := store.NewMemoryStore(store.MemoryConfig{MaxEntries: 100})
	defer s.Close()

	checker := health.NewStoreChecker(s, health.StoreCheckerConfig{
		Name:       "store:memory",
		MaxEntries: 100,
	})

	result := checker.Check(context.Background())
	fmt.Println("Checker name:", checker.Name())
	fmt.Println("Status:", result.Status)
	fmt.Println("Message:", result.Message)
	// Output:
	// Checker name: store:memory
	// Status: healthy
	// Message: store available
}

func ExampleNewCheckerFunc() {
	root := health.NewCheckerFunc("cache-root", func(ctx context.Context) health.Result {
		return health.Degraded("root on a network mount")
	})

	result := root.Check(context.Background())
	fmt.Println(root.Name(), result.Status, result.Message)
	// Output:
	// cache-root degraded root on a network mount
}

func ExampleAggregator_CheckAll() {
	agg := health.NewAggregator()
	agg.Register("store", health.NewCheckerFunc("store", func(ctx context.Context) health.Result {
		return health.Healthy("store available")
	}))
	agg.Register("sqlite", health.NewCheckerFunc("sqlite", func(ctx context.Context) health.Result {
		return health.Unhealthy("store unreachable", errors.New("database is locked"))
	}))

	results := agg.CheckAll(context.Background())
	for _, name := range agg.CheckerNames() {
		fmt.Printf("%s: %s\n", name, results[name].Status)
	}
	fmt.Println("overall:", agg.OverallStatus(results))
	// Output:
	// store: healthy
	// sqlite: unhealthy
	// overall: unhealthy
}

func ExampleAggregator_Checker() {
	agg := health.NewAggregator()
	agg.Register("store", health.NewCheckerFunc("store", func(ctx context.Context) health.Result {
		return health.Degraded("store near capacity: 92.0%")
	}))

	result := agg.Checker().Check(context.Background())
	fmt.Println(result.Status, "-", result.Message)
	// Output:
	// degraded - some checks degraded
}
