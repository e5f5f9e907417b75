package health

import (
	"context"
	"errors"
	"testing"
)

func TestStatus_String(t *testing.T) {
	tests := []struct {
		status Status
		want   string
	}{
		{StatusHealthy, "healthy"},
		{StatusDegraded, "degraded"},
		{StatusUnhealthy, "unhealthy"},
		{Status(42), "unknown"},
	}

	for _, tt := range tests {
		if got := tt.status.String(); got != tt.want {
			t.Errorf("Status(%d).String() = %q, want %q", tt.status, got, tt.want)
		}
	}
}

// TestResultConstructors verifies status, message and timestamp of each
// constructor.
func TestResultConstructors(t *testing.T) {
	cause := errors.New("store unreachable")
	tests := []struct {
		name   string
		result Result
		status Status
		err    error
	}{
		{"healthy", Healthy("ok"), StatusHealthy, nil},
		{"degraded", Degraded("ok"), StatusDegraded, nil},
		{"unhealthy", Unhealthy("ok", cause), StatusUnhealthy, cause},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.result.Status != tt.status {
				t.Errorf("Status = %v, want %v", tt.result.Status, tt.status)
			}
			if tt.result.Message != "ok" {
				t.Errorf("Message = %q, want %q", tt.result.Message, "ok")
			}
			if tt.result.Timestamp.IsZero() {
				t.Error("Timestamp is zero")
			}
			if !errors.Is(tt.result.Error, tt.err) {
				t.Errorf("Error = %v, want %v", tt.result.Error, tt.err)
			}
		})
	}
}

func TestResult_WithDetails(t *testing.T) {
	base := Healthy("store available")
	r := base.WithDetails(map[string]any{"entries": 12})

	if r.Details["entries"] != 12 {
		t.Errorf("Details[entries] = %v, want 12", r.Details["entries"])
	}
	if base.Details != nil {
		t.Error("WithDetails modified the receiver")
	}
}

func TestCheckerFunc(t *testing.T) {
	var seen context.Context
	checker := NewCheckerFunc("store:file", func(ctx context.Context) Result {
		seen = ctx
		return Degraded("slow disk")
	})

	if checker.Name() != "store:file" {
		t.Errorf("Name() = %q, want %q", checker.Name(), "store:file")
	}

	ctx := context.WithValue(context.Background(), struct{}{}, "v")
	r := checker.Check(ctx)
	if r.Status != StatusDegraded || r.Message != "slow disk" {
		t.Errorf("Check() = %v %q, want degraded %q", r.Status, r.Message, "slow disk")
	}
	if seen != ctx {
		t.Error("Check() did not pass its context through")
	}
}
