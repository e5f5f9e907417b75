package cache

import (
	"errors"
	"testing"
	"time"

	"github.com/jonwraymond/resultcache/store"
)

func TestPolicy_DefaultTTL(t *testing.T) {
	p := Policy{
		DefaultTTL: 5 * time.Minute,
		MaxTTL:     10 * time.Minute,
	}

	got := p.EffectiveTTL(0)
	if got != 5*time.Minute {
		t.Errorf("EffectiveTTL(0) = %v, want %v", got, 5*time.Minute)
	}
}

func TestPolicy_OverrideTTL(t *testing.T) {
	p := Policy{
		DefaultTTL: 5 * time.Minute,
		MaxTTL:     10 * time.Minute,
	}

	got := p.EffectiveTTL(3 * time.Minute)
	if got != 3*time.Minute {
		t.Errorf("EffectiveTTL(3m) = %v, want %v", got, 3*time.Minute)
	}
}

func TestPolicy_MaxTTLClamping(t *testing.T) {
	p := Policy{
		DefaultTTL: 5 * time.Minute,
		MaxTTL:     10 * time.Minute,
	}

	got := p.EffectiveTTL(15 * time.Minute)
	if got != 10*time.Minute {
		t.Errorf("EffectiveTTL(15m) = %v, want %v (clamped to MaxTTL)", got, 10*time.Minute)
	}
}

func TestPolicy_DefaultPolicy(t *testing.T) {
	p := DefaultPolicy()

	if p.DefaultTTL != 5*time.Minute {
		t.Errorf("DefaultPolicy().DefaultTTL = %v, want %v", p.DefaultTTL, 5*time.Minute)
	}
	if p.MaxTTL != 0 {
		t.Errorf("DefaultPolicy().MaxTTL = %v, want 0", p.MaxTTL)
	}
	if err := p.Validate(); err != nil {
		t.Errorf("DefaultPolicy().Validate() = %v, want nil", err)
	}
}

func TestPolicy_TTLMatrix(t *testing.T) {
	tests := []struct {
		name       string
		defaultTTL time.Duration
		maxTTL     time.Duration
		override   time.Duration
		want       time.Duration
	}{
		{
			name:       "no override uses default",
			defaultTTL: 5 * time.Minute,
			maxTTL:     10 * time.Minute,
			override:   0,
			want:       5 * time.Minute,
		},
		{
			name:       "override within max",
			defaultTTL: 5 * time.Minute,
			maxTTL:     10 * time.Minute,
			override:   7 * time.Minute,
			want:       7 * time.Minute,
		},
		{
			name:       "override exceeds max, clamped",
			defaultTTL: 5 * time.Minute,
			maxTTL:     10 * time.Minute,
			override:   20 * time.Minute,
			want:       10 * time.Minute,
		},
		{
			name:       "default exceeds max, clamped",
			defaultTTL: 15 * time.Minute,
			maxTTL:     10 * time.Minute,
			override:   0,
			want:       10 * time.Minute,
		},
		{
			name:       "no max TTL, override used as-is",
			defaultTTL: 5 * time.Minute,
			maxTTL:     0,
			override:   1 * time.Hour,
			want:       1 * time.Hour,
		},
		{
			name:       "no expiration without max",
			defaultTTL: 5 * time.Minute,
			maxTTL:     0,
			override:   store.NoExpiration,
			want:       store.NoExpiration,
		},
		{
			name:       "no expiration clamped to max",
			defaultTTL: 5 * time.Minute,
			maxTTL:     time.Hour,
			override:   store.NoExpiration,
			want:       time.Hour,
		},
		{
			name:       "default no expiration",
			defaultTTL: store.NoExpiration,
			maxTTL:     0,
			override:   0,
			want:       store.NoExpiration,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Policy{
				DefaultTTL: tt.defaultTTL,
				MaxTTL:     tt.maxTTL,
			}
			got := p.EffectiveTTL(tt.override)
			if got != tt.want {
				t.Errorf("EffectiveTTL(%v) = %v, want %v", tt.override, got, tt.want)
			}
		})
	}
}

func TestPolicy_Validate(t *testing.T) {
	tests := []struct {
		name    string
		policy  Policy
		wantErr bool
	}{
		{"default", DefaultPolicy(), false},
		{"no expiration", Policy{DefaultTTL: store.NoExpiration}, false},
		{"negative default", Policy{DefaultTTL: -2 * time.Second}, true},
		{"negative max", Policy{DefaultTTL: time.Minute, MaxTTL: -time.Minute}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.policy.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidTTL) {
				t.Errorf("Validate() = %v, want ErrInvalidTTL", err)
			}
		})
	}
}
