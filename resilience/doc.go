// Package resilience guards the I/O of persistent store backings.
//
// The result cache never retries or times out a producer; a producer runs
// exactly once per reservation. What can fail transiently is the backing
// underneath: a full disk, an NFS hiccup, a locked SQLite database. This
// package provides the patterns the backings compose around those calls.
//
// # Patterns
//
//   - Circuit Breaker: stops touching a failing backing after a threshold
//     so reads degrade to misses quickly instead of stalling every caller.
//
//   - Retry: retries a failed write with configurable backoff
//     (exponential, linear, constant). Delay is also used as the polling
//     schedule when waiting on a computation owned by another process.
//
//   - Rate Limiter: bounds how often producers may start, built on
//     golang.org/x/time/rate.
//
// # Usage
//
//	cb := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
//	    MaxFailures:  5,
//	    ResetTimeout: 30 * time.Second,
//	})
//
//	retry := resilience.NewRetry(resilience.RetryConfig{
//	    MaxAttempts:  3,
//	    InitialDelay: 10 * time.Millisecond,
//	})
//
//	payload, err := resilience.Guard(ctx, cb, func(ctx context.Context) ([]byte, error) {
//	    return os.ReadFile(path)
//	})
//
//	err = retry.Execute(ctx, func(ctx context.Context) error {
//	    return cb.Execute(ctx, writeRecord)
//	})
package resilience
