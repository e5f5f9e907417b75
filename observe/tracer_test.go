package observe

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func newRecordingTracer() (*tracerImpl, *tracetest.SpanRecorder, *sdktrace.TracerProvider) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	return &tracerImpl{tracer: tp.Tracer("test")}, recorder, tp
}

func spanAttrs(s sdktrace.ReadOnlySpan) map[string]attribute.Value {
	m := make(map[string]attribute.Value)
	for _, a := range s.Attributes() {
		m[string(a.Key)] = a.Value
	}
	return m
}

// TestTracer_SpanAttributes verifies all attributes are present on span.
func TestTracer_SpanAttributes(t *testing.T) {
	tr, recorder, _ := newRecordingTracer()
	meta := ProducerMeta{ID: "reports.daily", Namespace: "reports", Name: "daily", Backing: "file"}

	_, span := tr.StartSpan(context.Background(), meta, "9f86d081884c7d65")
	tr.EndSpan(span, nil)

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	s := spans[0]

	if s.Name() != "cache.produce.reports.daily" {
		t.Errorf("expected span name 'cache.produce.reports.daily', got %q", s.Name())
	}

	attrs := spanAttrs(s)
	wantStrings := map[string]string{
		"cache.producer.id":        "reports.daily",
		"cache.producer.namespace": "reports",
		"cache.producer.name":      "daily",
		"cache.backing":            "file",
		"cache.key":                "9f86d081884c7d65",
	}
	for k, v := range wantStrings {
		if got, ok := attrs[k]; !ok || got.AsString() != v {
			t.Errorf("expected %s=%q, got %v", k, v, got)
		}
	}
	if v, ok := attrs["cache.error"]; !ok || v.AsBool() {
		t.Errorf("expected cache.error=false, got %v", v)
	}
	if s.Status().Code != codes.Ok {
		t.Errorf("expected ok status, got %v", s.Status().Code)
	}
}

// TestTracer_SpanAttributesMinimal verifies optional attributes are omitted.
func TestTracer_SpanAttributesMinimal(t *testing.T) {
	tr, recorder, _ := newRecordingTracer()

	_, span := tr.StartSpan(context.Background(), ProducerMeta{Name: "load"}, "k")
	tr.EndSpan(span, nil)

	attrs := spanAttrs(recorder.Ended()[0])
	if _, ok := attrs["cache.producer.namespace"]; ok {
		t.Error("expected no cache.producer.namespace")
	}
	if _, ok := attrs["cache.backing"]; ok {
		t.Error("expected no cache.backing")
	}
}

// TestTracer_ContextPropagation verifies parent span is propagated.
func TestTracer_ContextPropagation(t *testing.T) {
	tr, recorder, tp := newRecordingTracer()

	parentCtx, parentSpan := tp.Tracer("test").Start(context.Background(), "parent")
	_, childSpan := tr.StartSpan(parentCtx, ProducerMeta{Name: "child"}, "k")
	tr.EndSpan(childSpan, nil)
	parentSpan.End()

	var child sdktrace.ReadOnlySpan
	for _, s := range recorder.Ended() {
		if s.Name() == "cache.produce.child" {
			child = s
		}
	}
	if child == nil {
		t.Fatal("child span not found")
	}
	if child.Parent().TraceID() != parentSpan.SpanContext().TraceID() {
		t.Error("child span should have same trace ID as parent")
	}
	if child.Parent().SpanID() != parentSpan.SpanContext().SpanID() {
		t.Error("child span should point at the parent span")
	}
}

// TestTracer_ErrorRecording verifies error sets span status and attribute.
func TestTracer_ErrorRecording(t *testing.T) {
	tr, recorder, _ := newRecordingTracer()

	_, span := tr.StartSpan(context.Background(), ProducerMeta{Name: "failing"}, "k")
	tr.EndSpan(span, errors.New("upstream down"))

	s := recorder.Ended()[0]
	if s.Status().Code != codes.Error {
		t.Errorf("expected error status, got %v", s.Status().Code)
	}
	if s.Status().Description != "upstream down" {
		t.Errorf("expected status description, got %q", s.Status().Description)
	}
	if !spanAttrs(s)["cache.error"].AsBool() {
		t.Error("expected cache.error=true")
	}
	if len(s.Events()) == 0 {
		t.Error("expected a recorded exception event")
	}
}
