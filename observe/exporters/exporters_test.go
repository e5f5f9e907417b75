package exporters

import (
	"context"
	"errors"
	"testing"
)

// TestExporter_InvalidName verifies unknown exporter names are rejected.
func TestExporter_InvalidName(t *testing.T) {
	if _, err := NewTracingExporter(context.Background(), "invalid"); !errors.Is(err, ErrUnknownExporter) {
		t.Errorf("tracing err = %v, want ErrUnknownExporter", err)
	}
	if _, err := NewMetricsReader(context.Background(), "badvalue"); !errors.Is(err, ErrUnknownExporter) {
		t.Errorf("metrics err = %v, want ErrUnknownExporter", err)
	}
}

// TestExporter_Stdout verifies stdout exporters are created.
func TestExporter_Stdout(t *testing.T) {
	exp, err := NewTracingExporter(context.Background(), "stdout")
	if err != nil || exp == nil {
		t.Fatalf("stdout tracing exporter = %v, %v", exp, err)
	}

	reader, err := NewMetricsReader(context.Background(), "stdout")
	if err != nil || reader == nil {
		t.Fatalf("stdout metrics reader = %v, %v", reader, err)
	}
}

// TestExporter_MissingEndpoint verifies OTLP and Jaeger require an endpoint.
func TestExporter_MissingEndpoint(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	t.Setenv("OTEL_EXPORTER_OTLP_TRACES_ENDPOINT", "")
	t.Setenv("OTEL_EXPORTER_OTLP_METRICS_ENDPOINT", "")
	t.Setenv("OTEL_EXPORTER_JAEGER_ENDPOINT", "")

	tests := []struct {
		name string
		fn   func() error
	}{
		{"otlp traces", func() error { _, err := NewTracingExporter(context.Background(), "otlp"); return err }},
		{"jaeger", func() error { _, err := NewTracingExporter(context.Background(), "jaeger"); return err }},
		{"otlp metrics", func() error { _, err := NewMetricsReader(context.Background(), "otlp"); return err }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.fn(); !errors.Is(err, ErrEndpointNotConfigured) {
				t.Errorf("err = %v, want ErrEndpointNotConfigured", err)
			}
		})
	}
}

// TestExporter_OtlpWithEndpoint verifies OTLP with an endpoint succeeds.
func TestExporter_OtlpWithEndpoint(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "http://localhost:4317")

	exp, err := NewTracingExporter(context.Background(), "otlp")
	if err != nil {
		t.Fatalf("failed to create OTLP exporter with endpoint: %v", err)
	}
	if exp == nil {
		t.Fatal("expected non-nil exporter")
	}
}

// TestExporter_PrometheusReturnsReader verifies the Prometheus reader.
func TestExporter_PrometheusReturnsReader(t *testing.T) {
	reader, err := NewMetricsReader(context.Background(), "prometheus")
	if err != nil {
		t.Fatalf("failed to create Prometheus reader: %v", err)
	}
	if reader == nil {
		t.Fatal("expected non-nil reader")
	}
}

// TestExporter_None verifies "none" disables shipping.
func TestExporter_None(t *testing.T) {
	for _, name := range []string{"none", ""} {
		exp, err := NewTracingExporter(context.Background(), name)
		if err != nil || exp != nil {
			t.Errorf("NewTracingExporter(%q) = %v, %v; want nil, nil", name, exp, err)
		}
		reader, err := NewMetricsReader(context.Background(), name)
		if err != nil || reader != nil {
			t.Errorf("NewMetricsReader(%q) = %v, %v; want nil, nil", name, reader, err)
		}
	}
}
