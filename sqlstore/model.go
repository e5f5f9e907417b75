package sqlstore

import (
	"time"

	"github.com/jonwraymond/resultcache/fingerprint"
	"github.com/jonwraymond/resultcache/store"
)

// entryRow is one row of result_entries. Timestamps are unix nanoseconds;
// Expires is zero for entries that never expire.
type entryRow struct {
	Key     string      `gorm:"column:entry_key;primaryKey;size:64"`
	State   store.State `gorm:"column:state;not null;index"`
	Owner   string      `gorm:"column:owner;size:36"`
	Created int64       `gorm:"column:created_at;index"`
	Expires int64       `gorm:"column:expires_at"`
	Locked  int64       `gorm:"column:locked_at"`
	Payload []byte      `gorm:"column:payload"`
}

// TableName specifies the table name for entryRow.
func (entryRow) TableName() string {
	return "result_entries"
}

func (r entryRow) expiresAt() time.Time {
	if r.Expires == 0 {
		return time.Time{}
	}
	return time.Unix(0, r.Expires)
}

func (r entryRow) snapshot(key fingerprint.Key) store.Snapshot {
	return store.Snapshot{
		Key:       key,
		State:     store.StateReady,
		Value:     r.Payload,
		CreatedAt: time.Unix(0, r.Created),
		ExpiresAt: r.expiresAt(),
	}
}

func unixNanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}
