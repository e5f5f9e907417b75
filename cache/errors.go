package cache

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jonwraymond/resultcache/fingerprint"
)

// Kind classifies a failed cache call.
type Kind int

const (
	// KindUnhashableArgument means an argument had no canonical encoding.
	KindUnhashableArgument Kind = iota + 1
	// KindProducerFailed means the producer, or storing its result, failed.
	KindProducerFailed
	// KindTimeout means waiting for another caller's computation timed out.
	KindTimeout
	// KindStoreUnavailable means the backing could not be used.
	KindStoreUnavailable
	// KindCapacityBlocked means MaxEntries was reached and nothing could be
	// evicted within the capacity wait.
	KindCapacityBlocked
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindUnhashableArgument:
		return "unhashable argument"
	case KindProducerFailed:
		return "producer failed"
	case KindTimeout:
		return "timeout"
	case KindStoreUnavailable:
		return "store unavailable"
	case KindCapacityBlocked:
		return "capacity blocked"
	default:
		return "unknown"
	}
}

// Kind sentinels. An *Error matches the sentinel of its Kind with errors.Is.
var (
	ErrUnhashableArgument = errors.New("cache: unhashable argument")
	ErrProducerFailed     = errors.New("cache: producer failed")
	ErrTimeout            = errors.New("cache: timeout")
	ErrStoreUnavailable   = errors.New("cache: store unavailable")
	ErrCapacityBlocked    = errors.New("cache: capacity blocked")
)

// Configuration and usage errors.
var (
	// ErrNilCache indicates a nil *Cache was used.
	ErrNilCache = errors.New("cache: cache is nil")

	// ErrInvalidProducer indicates a producer without an ID or function.
	ErrInvalidProducer = errors.New("cache: producer requires an id and a function")

	// ErrInvalidBacking indicates an unknown Config.Backing.
	ErrInvalidBacking = errors.New("cache: invalid backing")

	// ErrRootPathRequired indicates a persistent backing without a location.
	ErrRootPathRequired = errors.New("cache: root path is required")

	// ErrInvalidTTL indicates a negative TTL other than store.NoExpiration.
	ErrInvalidTTL = errors.New("cache: invalid ttl")

	// ErrInvalidConfig indicates a negative size, rate or duration.
	ErrInvalidConfig = errors.New("cache: invalid config")
)

func (k Kind) sentinel() error {
	switch k {
	case KindUnhashableArgument:
		return ErrUnhashableArgument
	case KindProducerFailed:
		return ErrProducerFailed
	case KindTimeout:
		return ErrTimeout
	case KindStoreUnavailable:
		return ErrStoreUnavailable
	case KindCapacityBlocked:
		return ErrCapacityBlocked
	default:
		return nil
	}
}

// Error is returned by cache calls that fail. Err is the opaque cause.
type Error struct {
	Kind     Kind
	Producer string
	Key      fingerprint.Key // zero when no key was derived
	Err      error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("cache: ")
	b.WriteString(e.Kind.String())
	if e.Producer != "" {
		fmt.Fprintf(&b, " (producer %s", e.Producer)
		if !e.Key.IsZero() {
			fmt.Fprintf(&b, ", key %s", e.Key.Short())
		}
		b.WriteString(")")
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap returns the cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel for e.Kind.
func (e *Error) Is(target error) bool {
	s := e.Kind.sentinel()
	return s != nil && target == s
}

// PanicError is the cause recorded when a producer panics.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("producer panicked: %v", e.Value)
}

// Unwrap returns the panic value when it is an error.
func (e *PanicError) Unwrap() error {
	err, _ := e.Value.(error)
	return err
}
