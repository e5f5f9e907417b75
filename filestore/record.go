package filestore

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/jonwraymond/resultcache/fingerprint"
	"github.com/jonwraymond/resultcache/store"
)

const (
	recordVersion byte = 1
	headerSize         = 1 + 8 + 8

	// neverExpires is the on-disk expires_at of an entry without expiry.
	neverExpires int64 = math.MaxInt64
)

// record is the decoded contents of a value file.
type record struct {
	CreatedAt time.Time
	ExpiresAt time.Time // zero means never
	Payload   []byte
}

func (r record) snapshot(key fingerprint.Key) store.Snapshot {
	return store.Snapshot{
		Key:       key,
		State:     store.StateReady,
		Value:     r.Payload,
		CreatedAt: r.CreatedAt,
		ExpiresAt: r.ExpiresAt,
	}
}

// encodeRecord lays out version:u8, created_at:i64, expires_at:i64 (unix
// nanoseconds, big-endian) followed by the raw payload.
func encodeRecord(r record) []byte {
	buf := make([]byte, 0, headerSize+len(r.Payload))
	buf = append(buf, recordVersion)
	buf = binary.BigEndian.AppendUint64(buf, uint64(r.CreatedAt.UnixNano()))

	expires := neverExpires
	if !r.ExpiresAt.IsZero() {
		expires = r.ExpiresAt.UnixNano()
	}
	buf = binary.BigEndian.AppendUint64(buf, uint64(expires))
	return append(buf, r.Payload...)
}

func decodeRecord(data []byte) (record, error) {
	if len(data) < headerSize {
		return record{}, fmt.Errorf("%w: %d bytes", ErrMalformedRecord, len(data))
	}
	if data[0] != recordVersion {
		return record{}, fmt.Errorf("%w: version %d", ErrMalformedRecord, data[0])
	}

	created := int64(binary.BigEndian.Uint64(data[1:9]))
	expires := int64(binary.BigEndian.Uint64(data[9:17]))
	if expires != neverExpires && expires < created {
		return record{}, fmt.Errorf("%w: expires before created", ErrMalformedRecord)
	}

	r := record{
		CreatedAt: time.Unix(0, created),
		Payload:   data[headerSize:],
	}
	if expires != neverExpires {
		r.ExpiresAt = time.Unix(0, expires)
	}
	return r, nil
}
