package observe

import (
	"context"
	"time"
)

// ProduceFunc is the signature of one producer invocation as seen by the
// cache: it runs the producer for key and stores the result itself.
type ProduceFunc func(ctx context.Context, meta ProducerMeta, key string) error

// Middleware wraps producer invocations with tracing, metrics and logging.
//
// Contract:
//   - Concurrency: Wrap() returns a thread-safe ProduceFunc.
//   - Context: Propagates context through tracing spans.
//   - Errors: Errors from wrapped function are recorded and propagated unchanged.
type Middleware struct {
	tracer   Tracer
	metrics  Metrics
	logger   Logger
	reporter Reporter
}

// NewMiddleware creates a new Middleware with the given observability
// components. Nil components are replaced by no-ops.
func NewMiddleware(tracer Tracer, metrics Metrics, logger Logger, reporter Reporter) *Middleware {
	if tracer == nil {
		tracer = newNoopTracer()
	}
	if metrics == nil {
		metrics = &noopMetrics{}
	}
	if logger == nil {
		logger = &noopLogger{}
	}
	if reporter == nil {
		reporter = NoopReporter{}
	}
	return &Middleware{
		tracer:   tracer,
		metrics:  metrics,
		logger:   logger,
		reporter: reporter,
	}
}

// NopMiddleware returns a Middleware that records nothing.
func NopMiddleware() *Middleware {
	return NewMiddleware(nil, nil, nil, nil)
}

// Wrap wraps a ProduceFunc with tracing, metrics, and logging.
func (m *Middleware) Wrap(fn ProduceFunc) ProduceFunc {
	return func(ctx context.Context, meta ProducerMeta, key string) error {
		ctx, span := m.tracer.StartSpan(ctx, meta, key)

		start := time.Now()
		err := fn(ctx, meta, key)
		duration := time.Since(start)

		m.tracer.EndSpan(span, err)
		m.metrics.RecordProduce(ctx, meta, duration, err)

		producerLogger := m.logger.WithProducer(meta)
		fields := []Field{
			{Key: "cache.key", Value: key},
			{Key: "duration_ms", Value: float64(duration.Milliseconds())},
		}

		if err != nil {
			fields = append(fields, Field{Key: "error", Value: err.Error()})
			producerLogger.Error(ctx, "producer failed", fields...)
		} else {
			producerLogger.Debug(ctx, "producer completed", fields...)
		}

		return err
	}
}

// Metrics returns the metrics recorder.
func (m *Middleware) Metrics() Metrics { return m.metrics }

// Logger returns the logger.
func (m *Middleware) Logger() Logger { return m.logger }

// Reporter returns the error reporter.
func (m *Middleware) Reporter() Reporter { return m.reporter }

// MiddlewareFromObserver creates a Middleware from an Observer.
func MiddlewareFromObserver(obs Observer) (*Middleware, error) {
	if obs == nil {
		return nil, ErrNilObserver
	}

	metrics, err := newMetrics(obs.Meter())
	if err != nil {
		return nil, err
	}

	return NewMiddleware(NewTracer(obs.Tracer()), metrics, obs.Logger(), obs.Reporter()), nil
}
