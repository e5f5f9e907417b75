package observe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]any
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("failed to parse log line as JSON: %v\nLine: %s", err, line)
		}
		out = append(out, entry)
	}
	return out
}

// TestLogger_IncludesProducerFields verifies producer fields are present in log output.
func TestLogger_IncludesProducerFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter("info", &buf)

	meta := ParseProducerID("reports.daily_totals")
	meta.Backing = "file"
	logger.WithProducer(meta).Info(context.Background(), "test message")

	entries := decodeLines(t, &buf)
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	e := entries[0]

	want := map[string]string{
		"producer.id":        "reports.daily_totals",
		"producer.namespace": "reports",
		"producer.name":      "daily_totals",
		"cache.backing":      "file",
		"level":              "info",
		"msg":                "test message",
	}
	for k, v := range want {
		if got, ok := e[k].(string); !ok || got != v {
			t.Errorf("expected %s=%q, got %v", k, v, e[k])
		}
	}
	if _, ok := e["timestamp"]; !ok {
		t.Error("expected timestamp field")
	}
}

// TestLogger_ErrorLevel verifies error log level and error values rendered as strings.
func TestLogger_ErrorLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter("info", &buf)

	logger.Error(context.Background(), "publish failed",
		Field{Key: "error", Value: errors.New("disk full")},
	)

	e := decodeLines(t, &buf)[0]
	if e["level"] != "error" {
		t.Errorf("expected level=error, got %v", e["level"])
	}
	if e["error"] != "disk full" {
		t.Errorf("expected error='disk full', got %v", e["error"])
	}
}

// TestLogger_ArgumentsRedactedByDefault verifies producer arguments and payloads are not logged.
func TestLogger_ArgumentsRedactedByDefault(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter("debug", &buf)

	logger.Info(context.Background(), "call",
		Field{Key: "args", Value: []any{"4111-1111-1111-1111"}},
		Field{Key: "kwargs", Value: map[string]any{"ssn": "123-45-6789"}},
		Field{Key: "payload", Value: "secret-bytes"},
		Field{Key: "cache.key", Value: "abcd"},
	)

	output := buf.String()
	for _, leaked := range []string{"4111", "123-45", "secret-bytes"} {
		if strings.Contains(output, leaked) {
			t.Errorf("log output leaked %q: %s", leaked, output)
		}
	}

	e := decodeLines(t, &buf)[0]
	for _, k := range []string{"args", "kwargs", "payload"} {
		if e[k] != "[REDACTED]" {
			t.Errorf("expected %s to be redacted, got %v", k, e[k])
		}
	}
	if e["cache.key"] != "abcd" {
		t.Errorf("expected cache.key passthrough, got %v", e["cache.key"])
	}
}

// TestLogger_With verifies With attaches fields to every entry, redacted as well.
func TestLogger_With(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter("info", &buf).With(
		Field{Key: "cache.root", Value: "/var/cache/rc"},
		Field{Key: "token", Value: "owner-token"},
	)

	logger.Info(context.Background(), "one")
	logger.Warn(context.Background(), "two")

	entries := decodeLines(t, &buf)
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	for _, e := range entries {
		if e["cache.root"] != "/var/cache/rc" {
			t.Errorf("expected cache.root, got %v", e["cache.root"])
		}
		if e["token"] != "[REDACTED]" {
			t.Errorf("expected token redacted, got %v", e["token"])
		}
	}
}

// TestLogger_LevelFiltering verifies log level filtering.
func TestLogger_LevelFiltering(t *testing.T) {
	tests := []struct {
		level string
		want  []string
	}{
		{"debug", []string{"debug", "info", "warn", "error"}},
		{"info", []string{"info", "warn", "error"}},
		{"warn", []string{"warn", "error"}},
		{"error", []string{"error"}},
		{"bogus", []string{"info", "warn", "error"}},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			var buf bytes.Buffer
			logger := NewLoggerWithWriter(tt.level, &buf)
			ctx := context.Background()

			logger.Debug(ctx, "m")
			logger.Info(ctx, "m")
			logger.Warn(ctx, "m")
			logger.Error(ctx, "m")

			entries := decodeLines(t, &buf)
			if len(entries) != len(tt.want) {
				t.Fatalf("expected %d entries, got %d", len(tt.want), len(entries))
			}
			for i, e := range entries {
				if e["level"] != tt.want[i] {
					t.Errorf("entry %d level = %v, want %s", i, e["level"], tt.want[i])
				}
			}
		})
	}
}

// TestLogger_ConcurrentDerivedLoggers verifies derived loggers never interleave lines.
func TestLogger_ConcurrentDerivedLoggers(t *testing.T) {
	var buf bytes.Buffer
	root := NewLoggerWithWriter("info", &buf)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l := root.WithProducer(ProducerMeta{Name: "p"})
			for j := 0; j < 20; j++ {
				l.Info(context.Background(), "line")
			}
		}()
	}
	wg.Wait()

	if got := len(decodeLines(t, &buf)); got != 400 {
		t.Errorf("expected 400 lines, got %d", got)
	}
}

// TestParseLogLevel verifies level parsing and string round trip.
func TestParseLogLevel(t *testing.T) {
	for _, s := range []string{"debug", "info", "warn", "error"} {
		if got := ParseLogLevel(s).String(); got != s {
			t.Errorf("ParseLogLevel(%q).String() = %q", s, got)
		}
	}
	if ParseLogLevel("") != LevelInfo {
		t.Error("empty level should default to info")
	}
}
