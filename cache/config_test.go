package cache

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/jonwraymond/resultcache/store"
)

// TestConfig_Validate verifies configuration validation rules.
func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr error
	}{
		{"zero value", Config{}, nil},
		{"default", DefaultConfig(), nil},
		{"unknown backing", Config{Backing: "redis"}, ErrInvalidBacking},
		{"file without root", Config{Backing: BackingFile}, ErrRootPathRequired},
		{"file with root", Config{Backing: BackingFile, RootPath: "/tmp/x"}, nil},
		{"sqlite without location", Config{Backing: BackingSQLite}, ErrRootPathRequired},
		{"sqlite with dsn", Config{Backing: BackingSQLite, DSN: ":memory:"}, nil},
		{"sqlite with root", Config{Backing: BackingSQLite, RootPath: "/tmp/x"}, nil},
		{"negative ttl", Config{DefaultTTL: -time.Second}, ErrInvalidTTL},
		{"no expiration ttl", Config{DefaultTTL: store.NoExpiration}, nil},
		{"negative max ttl", Config{MaxTTL: -time.Second}, ErrInvalidTTL},
		{"negative max entries", Config{MaxEntries: -1}, ErrInvalidConfig},
		{"negative hot entries", Config{HotEntries: -1}, ErrInvalidConfig},
		{"negative wait", Config{WaitTimeout: -time.Second}, ErrInvalidConfig},
		{"negative capacity wait", Config{CapacityWait: -time.Second}, ErrInvalidConfig},
		{"negative rate", Config{ProduceRate: -1}, ErrInvalidConfig},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("Validate() = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_Defaults(t *testing.T) {
	var c Config

	if got := c.backing(); got != BackingMemory {
		t.Errorf("backing() = %q, want %q", got, BackingMemory)
	}
	if got := c.policy().DefaultTTL; got != DefaultTTL {
		t.Errorf("policy().DefaultTTL = %v, want %v", got, DefaultTTL)
	}
	if got := c.clock(); got != store.SystemClock {
		t.Errorf("clock() = %v, want SystemClock", got)
	}
}

func TestConfig_DSN(t *testing.T) {
	c := Config{Backing: BackingSQLite, RootPath: "/var/cache/app"}
	if got, want := c.dsn(), filepath.Join("/var/cache/app", "entries.db"); got != want {
		t.Errorf("dsn() = %q, want %q", got, want)
	}

	c.DSN = "file:other.db"
	if got := c.dsn(); got != "file:other.db" {
		t.Errorf("dsn() = %q, want explicit DSN", got)
	}
}
