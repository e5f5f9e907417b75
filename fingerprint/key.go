package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
)

// Size is the width of a Key in bytes.
const Size = sha256.Size

// Key is an opaque fixed-width cache key. Only equality is meaningful.
type Key [Size]byte

// String returns the lowercase hexadecimal form of the key.
func (k Key) String() string {
	return hex.EncodeToString(k[:])
}

// Short returns the first 16 hex characters, for log lines.
func (k Key) Short() string {
	return hex.EncodeToString(k[:8])
}

// IsZero reports whether k is the zero key.
func (k Key) IsZero() bool {
	return k == Key{}
}

// MarshalText implements encoding.TextMarshaler.
func (k Key) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Key) UnmarshalText(text []byte) error {
	parsed, err := ParseKey(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// ParseKey parses the output of Key.String.
func ParseKey(s string) (Key, error) {
	var k Key
	if len(s) != hex.EncodedLen(Size) {
		return k, ErrInvalidKey
	}
	if _, err := hex.Decode(k[:], []byte(s)); err != nil {
		return k, ErrInvalidKey
	}
	return k, nil
}
