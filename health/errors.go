package health

import "errors"

var (
	// ErrCheckFailed is the cause of an unhealthy threshold result.
	ErrCheckFailed = errors.New("health: check failed")

	// ErrCheckTimeout is the cause of a check cut short by the aggregator.
	ErrCheckTimeout = errors.New("health: check timeout")

	// ErrCheckerNotFound is returned by Aggregator.Check for an unknown name.
	ErrCheckerNotFound = errors.New("health: checker not found")
)
