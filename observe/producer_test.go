package observe

import (
	"errors"
	"testing"
)

// TestParseProducerID verifies namespace and name are split at the last dot of the final path segment.
func TestParseProducerID(t *testing.T) {
	tests := []struct {
		id        string
		namespace string
		name      string
	}{
		{"reports.daily", "reports", "daily"},
		{"a.b.c", "a.b", "c"},
		{"plain", "", "plain"},
		{"github.com/acme/reports.Daily", "github.com/acme/reports", "Daily"},
		{"github.com/acme/reports.(*Svc).Load", "github.com/acme/reports.(*Svc)", "Load"},
		{"example.com/v2/pkg", "", "example.com/v2/pkg"},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			meta := ParseProducerID(tt.id)
			if meta.ID != tt.id {
				t.Errorf("ID = %q, want %q", meta.ID, tt.id)
			}
			if meta.Namespace != tt.namespace {
				t.Errorf("Namespace = %q, want %q", meta.Namespace, tt.namespace)
			}
			if meta.Name != tt.name {
				t.Errorf("Name = %q, want %q", meta.Name, tt.name)
			}
		})
	}
}

// TestProducerMeta_ProducerID verifies ID construction with and without namespace.
func TestProducerMeta_ProducerID(t *testing.T) {
	tests := []struct {
		name string
		meta ProducerMeta
		want string
	}{
		{"explicit id", ProducerMeta{ID: "x.y", Namespace: "ignored", Name: "z"}, "x.y"},
		{"with namespace", ProducerMeta{Namespace: "reports", Name: "daily"}, "reports.daily"},
		{"without namespace", ProducerMeta{Name: "daily"}, "daily"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.meta.ProducerID(); got != tt.want {
				t.Errorf("ProducerID() = %q, want %q", got, tt.want)
			}
		})
	}
}

// TestProducerMeta_SpanName verifies the span naming scheme.
func TestProducerMeta_SpanName(t *testing.T) {
	if got := ParseProducerID("reports.daily").SpanName(); got != "cache.produce.reports.daily" {
		t.Errorf("SpanName() = %q", got)
	}
}

// TestProducerMeta_Validate verifies empty metadata is rejected.
func TestProducerMeta_Validate(t *testing.T) {
	if err := (ProducerMeta{}).Validate(); !errors.Is(err, ErrMissingProducerName) {
		t.Errorf("Validate() = %v, want ErrMissingProducerName", err)
	}
	if err := ParseProducerID("p").Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}
}
