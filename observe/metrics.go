package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Lookup outcomes recorded on cache.lookup.total.
const (
	LookupHit    = "hit"    // fresh value served from the store
	LookupMiss   = "miss"   // caller reserved the key and ran the producer
	LookupShared = "shared" // caller waited on another caller's computation
)

// Eviction reasons recorded on cache.evictions.
const (
	EvictCapacity = "capacity"
	EvictExpired  = "expired"
)

// Metrics records cache activity.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Context: must honor cancellation/deadlines and return quickly.
// - Errors: implementations must not panic.
type Metrics interface {
	// RecordLookup counts one GetOrCompute call by outcome.
	RecordLookup(ctx context.Context, meta ProducerMeta, result string)

	// RecordProduce records a producer invocation with duration and error status.
	RecordProduce(ctx context.Context, meta ProducerMeta, duration time.Duration, err error)

	// RecordEvictions adds n evictions for reason.
	RecordEvictions(ctx context.Context, reason string, n int64)
}

// metricsImpl is the concrete implementation of Metrics.
type metricsImpl struct {
	meter        metric.Meter
	lookupCount  metric.Int64Counter
	totalCount   metric.Int64Counter
	errorCount   metric.Int64Counter
	durationHist metric.Float64Histogram
	evictCount   metric.Int64Counter
}

// NewMetrics creates a Metrics instance with the given meter.
func NewMetrics(meter metric.Meter) (Metrics, error) {
	return newMetrics(meter)
}

func newMetrics(meter metric.Meter) (*metricsImpl, error) {
	lookupCount, err := meter.Int64Counter(
		"cache.lookup.total",
		metric.WithDescription("Total number of cache lookups by result"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, err
	}

	totalCount, err := meter.Int64Counter(
		"cache.produce.total",
		metric.WithDescription("Total number of producer invocations"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, err
	}

	errorCount, err := meter.Int64Counter(
		"cache.produce.errors",
		metric.WithDescription("Total number of failed producer invocations"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	durationHist, err := meter.Float64Histogram(
		"cache.produce.duration_ms",
		metric.WithDescription("Producer invocation duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	evictCount, err := meter.Int64Counter(
		"cache.evictions",
		metric.WithDescription("Entries removed by capacity pressure or expiry"),
		metric.WithUnit("{entry}"),
	)
	if err != nil {
		return nil, err
	}

	return &metricsImpl{
		meter:        meter,
		lookupCount:  lookupCount,
		totalCount:   totalCount,
		errorCount:   errorCount,
		durationHist: durationHist,
		evictCount:   evictCount,
	}, nil
}

func producerAttrs(meta ProducerMeta) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String("cache.producer.id", meta.ProducerID()),
		attribute.String("cache.producer.name", meta.Name),
	}
	if meta.Namespace != "" {
		attrs = append(attrs, attribute.String("cache.producer.namespace", meta.Namespace))
	}
	if meta.Backing != "" {
		attrs = append(attrs, attribute.String("cache.backing", meta.Backing))
	}
	return attrs
}

// RecordLookup implements Metrics.
func (m *metricsImpl) RecordLookup(ctx context.Context, meta ProducerMeta, result string) {
	attrs := append(producerAttrs(meta), attribute.String("cache.result", result))
	m.lookupCount.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordProduce implements Metrics.
func (m *metricsImpl) RecordProduce(ctx context.Context, meta ProducerMeta, duration time.Duration, err error) {
	opt := metric.WithAttributes(producerAttrs(meta)...)

	m.totalCount.Add(ctx, 1, opt)
	if err != nil {
		m.errorCount.Add(ctx, 1, opt)
	}
	m.durationHist.Record(ctx, float64(duration.Milliseconds()), opt)
}

// RecordEvictions implements Metrics.
func (m *metricsImpl) RecordEvictions(ctx context.Context, reason string, n int64) {
	if n <= 0 {
		return
	}
	m.evictCount.Add(ctx, n, metric.WithAttributes(attribute.String("cache.reason", reason)))
}

// noopMetrics is a metrics implementation that does nothing.
type noopMetrics struct{}

func (m *noopMetrics) RecordLookup(ctx context.Context, meta ProducerMeta, result string) {}

func (m *noopMetrics) RecordProduce(ctx context.Context, meta ProducerMeta, duration time.Duration, err error) {
}

func (m *noopMetrics) RecordEvictions(ctx context.Context, reason string, n int64) {}
