package cache_test

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonwraymond/resultcache/cache"
)

func ExampleGetOrCompute() {
	c, err := cache.New(cache.DefaultConfig())
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	defer c.Close()

	square := cache.NewProducer("math.Square", func(ctx context.Context, args []any, kwargs map[string]any) (int, error) {
		fmt.Println("computing")
		n := args[0].(int)
		return n * n, nil
	})

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		v, _ := cache.GetOrCompute(ctx, c, square, []any{12}, nil)
		fmt.Println(v)
	}
	// Output:
	// computing
	// 144
	// 144
}

func ExampleMemoize() {
	c, _ := cache.New(cache.Config{DefaultTTL: time.Hour})
	defer c.Close()

	greet := cache.Memoize(c, cache.NewProducer("text.Greet", func(ctx context.Context, args []any, kwargs map[string]any) (string, error) {
		return fmt.Sprintf("hello, %s", args[0]), nil
	}))

	msg, _ := greet.Call(context.Background(), "gopher")
	fmt.Println(msg)
	// Output:
	// hello, gopher
}

func ExampleWithTTL() {
	c, _ := cache.New(cache.DefaultConfig())
	defer c.Close()

	calls := 0
	now := cache.NewProducer("clock.Tick", func(ctx context.Context, args []any, kwargs map[string]any) (int, error) {
		calls++
		return calls, nil
	})

	ctx := context.Background()
	// A zero TTL returns the value without keeping it.
	a, _ := cache.GetOrCompute(ctx, c, now, nil, nil, cache.WithTTL(0))
	b, _ := cache.GetOrCompute(ctx, c, now, nil, nil, cache.WithTTL(0))
	fmt.Println(a, b)
	// Output:
	// 1 2
}

func ExampleError() {
	c, _ := cache.New(cache.DefaultConfig())
	defer c.Close()

	lookup := cache.NewProducer("users.Lookup", func(ctx context.Context, args []any, kwargs map[string]any) (string, error) {
		return "", errors.New("user not found")
	})

	_, err := cache.GetOrCompute(context.Background(), c, lookup, []any{"u-1"}, nil)

	var cerr *cache.Error
	if errors.As(err, &cerr) {
		fmt.Println("kind:", cerr.Kind)
		fmt.Println("cause:", cerr.Err)
	}
	fmt.Println("producer failed:", errors.Is(err, cache.ErrProducerFailed))
	// Output:
	// kind: producer failed
	// cause: user not found
	// producer failed: true
}

func ExamplePolicy_EffectiveTTL() {
	p := cache.Policy{
		DefaultTTL: 5 * time.Minute,
		MaxTTL:     10 * time.Minute,
	}

	fmt.Println("default:", p.EffectiveTTL(0))
	fmt.Println("override:", p.EffectiveTTL(2*time.Minute))
	fmt.Println("clamped:", p.EffectiveTTL(time.Hour))
	// Output:
	// default: 5m0s
	// override: 2m0s
	// clamped: 10m0s
}

func ExampleCache_Invalidate() {
	c, _ := cache.New(cache.DefaultConfig())
	defer c.Close()

	calls := 0
	load := cache.NewProducer("config.Load", func(ctx context.Context, args []any, kwargs map[string]any) (int, error) {
		calls++
		return calls, nil
	})

	ctx := context.Background()
	first, _ := cache.GetOrCompute(ctx, c, load, []any{"app"}, nil)
	_ = c.Invalidate(ctx, load.ID(), []any{"app"}, nil)
	second, _ := cache.GetOrCompute(ctx, c, load, []any{"app"}, nil)
	fmt.Println(first, second)
	// Output:
	// 1 2
}
