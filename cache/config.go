package cache

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/jonwraymond/resultcache/store"
)

// Backing names a store implementation.
type Backing string

// Supported backings.
const (
	BackingMemory Backing = "memory"
	BackingFile   Backing = "file"
	BackingSQLite Backing = "sqlite"
)

var validBackings = map[Backing]bool{
	BackingMemory: true,
	BackingFile:   true,
	BackingSQLite: true,
	"":            true, // Empty selects memory
}

// DefaultTTL is the entry lifetime when Config.DefaultTTL is zero.
const DefaultTTL = 5 * time.Minute

// sqliteFile is the database created under RootPath when DSN is empty.
const sqliteFile = "entries.db"

// Config holds all configuration for a Cache.
type Config struct {
	// Backing selects the store: memory, file or sqlite.
	// Default: memory
	Backing Backing

	// RootPath is the entry directory (file) or the directory holding
	// entries.db (sqlite, when DSN is empty).
	RootPath string

	// DSN is the SQLite data source for the sqlite backing.
	// Default: <RootPath>/entries.db
	DSN string

	// DefaultTTL applies to calls without WithTTL.
	// Default: 5 minutes
	DefaultTTL time.Duration

	// MaxTTL clamps every TTL. Zero means no maximum.
	MaxTTL time.Duration

	// MaxEntries bounds the number of entries. Zero means unbounded.
	MaxEntries int

	// AbandonedLockAfter is the age at which a persistent reservation left
	// by a dead process is ignored.
	// Default: 10 minutes
	AbandonedLockAfter time.Duration

	// CapacityWait is how long a reservation waits for an evictable entry.
	// Default: 10 seconds
	CapacityWait time.Duration

	// WaitTimeout bounds how long a caller waits for another caller's
	// computation. Zero waits as long as the call context allows.
	WaitTimeout time.Duration

	// HotEntries keeps decoded file records in memory (file backing).
	HotEntries int

	// ProduceRate limits producer invocations per second. Zero disables
	// the limit.
	ProduceRate float64

	// ProduceBurst is the burst allowed above ProduceRate.
	// Default: 1
	ProduceBurst int

	// Clock supplies timestamps. Tests inject store.ManualClock.
	// Default: store.SystemClock
	Clock store.Clock
}

// DefaultConfig returns an in-memory configuration with default TTL.
func DefaultConfig() Config {
	return Config{
		Backing:    BackingMemory,
		DefaultTTL: DefaultTTL,
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if !validBackings[c.Backing] {
		return fmt.Errorf("%w: %q", ErrInvalidBacking, c.Backing)
	}

	switch c.Backing {
	case BackingFile:
		if c.RootPath == "" {
			return ErrRootPathRequired
		}
	case BackingSQLite:
		if c.RootPath == "" && c.DSN == "" {
			return fmt.Errorf("%w: set root path or dsn", ErrRootPathRequired)
		}
	}

	if err := c.policy().Validate(); err != nil {
		return err
	}

	switch {
	case c.MaxEntries < 0:
		return fmt.Errorf("%w: max entries must not be negative", ErrInvalidConfig)
	case c.HotEntries < 0:
		return fmt.Errorf("%w: hot entries must not be negative", ErrInvalidConfig)
	case c.AbandonedLockAfter < 0, c.CapacityWait < 0, c.WaitTimeout < 0:
		return fmt.Errorf("%w: durations must not be negative", ErrInvalidConfig)
	case c.ProduceRate < 0 || c.ProduceBurst < 0:
		return fmt.Errorf("%w: produce rate and burst must not be negative", ErrInvalidConfig)
	}

	return nil
}

func (c *Config) policy() Policy {
	ttl := c.DefaultTTL
	if ttl == 0 {
		ttl = DefaultTTL
	}
	return Policy{DefaultTTL: ttl, MaxTTL: c.MaxTTL}
}

func (c *Config) backing() Backing {
	if c.Backing == "" {
		return BackingMemory
	}
	return c.Backing
}

func (c *Config) clock() store.Clock {
	if c.Clock == nil {
		return store.SystemClock
	}
	return c.Clock
}

func (c *Config) dsn() string {
	if c.DSN != "" {
		return c.DSN
	}
	return filepath.Join(c.RootPath, sqliteFile)
}
