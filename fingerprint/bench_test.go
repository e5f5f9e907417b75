package fingerprint

import (
	"fmt"
	"testing"
)

// BenchmarkDefaultKeyer_Scalars measures key derivation for scalar arguments.
func BenchmarkDefaultKeyer_Scalars(b *testing.B) {
	keyer := NewDefaultKeyer()
	args := []any{42, "user-1234", 3.14, true}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = keyer.Key("bench.Scalars", args, nil)
	}
}

// BenchmarkDefaultKeyer_Kwargs measures key derivation with sorted kwargs.
func BenchmarkDefaultKeyer_Kwargs(b *testing.B) {
	keyer := NewDefaultKeyer()
	kwargs := make(map[string]any, 16)
	for i := 0; i < 16; i++ {
		kwargs[fmt.Sprintf("opt%02d", i)] = i
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = keyer.Key("bench.Kwargs", nil, kwargs)
	}
}

// BenchmarkDefaultKeyer_Nested measures key derivation for nested structures.
func BenchmarkDefaultKeyer_Nested(b *testing.B) {
	keyer := NewDefaultKeyer()
	nested := map[string]any{
		"filters": []any{
			map[string]any{"field": "status", "op": "eq", "value": "open"},
			map[string]any{"field": "age", "op": "gt", "value": 30},
		},
		"sort":  []any{"created_at", "desc"},
		"limit": 100,
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = keyer.Key("bench.Nested", []any{nested}, nil)
	}
}
