package health

import (
	"context"
	"fmt"
	"runtime"
)

// MemoryCheckerConfig configures the heap checker.
type MemoryCheckerConfig struct {
	// MaxHeapBytes is the heap size treated as full. Zero compares against
	// the memory obtained from the OS.
	MaxHeapBytes uint64

	// WarningThreshold is the fraction of MaxHeapBytes that is degraded.
	// Default: 0.8
	WarningThreshold float64

	// CriticalThreshold is the fraction of MaxHeapBytes that is unhealthy.
	// Default: 0.95
	CriticalThreshold float64
}

// MemoryChecker reports heap usage. The memory backing and the file
// backing's hot layer both hold payloads on the heap.
type MemoryChecker struct {
	config MemoryCheckerConfig
}

// NewMemoryChecker creates a heap checker. Thresholds outside (0, 1) fall
// back to their defaults; a critical threshold below the warning threshold
// is raised to it.
func NewMemoryChecker(config MemoryCheckerConfig) *MemoryChecker {
	if config.WarningThreshold <= 0 || config.WarningThreshold >= 1 {
		config.WarningThreshold = 0.8
	}
	if config.CriticalThreshold <= 0 || config.CriticalThreshold >= 1 {
		config.CriticalThreshold = 0.95
	}
	config.CriticalThreshold = max(config.CriticalThreshold, config.WarningThreshold)
	return &MemoryChecker{config: config}
}

// Name implements Checker.
func (m *MemoryChecker) Name() string { return "memory" }

// Check implements Checker.
func (m *MemoryChecker) Check(ctx context.Context) Result {
	if r, done := cancelled(ctx); done {
		return r
	}

	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)

	limit := m.config.MaxHeapBytes
	if limit == 0 {
		limit = stats.Sys
	}
	details := map[string]any{
		"heap_alloc": stats.HeapAlloc,
		"heap_sys":   stats.HeapSys,
		"num_gc":     stats.NumGC,
		"goroutines": runtime.NumGoroutine(),
	}
	if limit == 0 {
		return Healthy("memory stats unavailable").WithDetails(details)
	}

	used := float64(stats.HeapAlloc) / float64(limit)
	details["limit_bytes"] = limit
	details["usage_percent"] = used * 100

	switch {
	case used >= m.config.CriticalThreshold:
		return Unhealthy(fmt.Sprintf("heap usage critical: %.1f%%", used*100), ErrCheckFailed).WithDetails(details)
	case used >= m.config.WarningThreshold:
		return Degraded(fmt.Sprintf("heap usage high: %.1f%%", used*100)).WithDetails(details)
	default:
		return Healthy(fmt.Sprintf("heap usage normal: %.1f%%", used*100)).WithDetails(details)
	}
}
