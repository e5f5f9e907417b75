package cache

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/jonwraymond/resultcache/fingerprint"
)

// TestError_Is verifies an *Error matches only the sentinel of its kind.
func TestError_Is(t *testing.T) {
	kinds := map[Kind]error{
		KindUnhashableArgument: ErrUnhashableArgument,
		KindProducerFailed:     ErrProducerFailed,
		KindTimeout:            ErrTimeout,
		KindStoreUnavailable:   ErrStoreUnavailable,
		KindCapacityBlocked:    ErrCapacityBlocked,
	}

	for kind, sentinel := range kinds {
		t.Run(kind.String(), func(t *testing.T) {
			err := fmt.Errorf("wrapped: %w", &Error{Kind: kind})
			if !errors.Is(err, sentinel) {
				t.Errorf("errors.Is(%v, %v) = false", err, sentinel)
			}
			for other, s := range kinds {
				if other != kind && errors.Is(err, s) {
					t.Errorf("%v also matches %v", kind, s)
				}
			}
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("database down")
	err := &Error{Kind: KindProducerFailed, Producer: "reports.Daily", Err: cause}

	if !errors.Is(err, cause) {
		t.Error("errors.Is(err, cause) = false")
	}
	if errors.Unwrap(err) != cause {
		t.Errorf("Unwrap() = %v, want %v", errors.Unwrap(err), cause)
	}
}

func TestError_Message(t *testing.T) {
	var key fingerprint.Key
	key[0] = 0xab

	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{
			name: "kind only",
			err:  &Error{Kind: KindTimeout},
			want: "cache: timeout",
		},
		{
			name: "producer and cause",
			err:  &Error{Kind: KindProducerFailed, Producer: "reports.Daily", Err: errors.New("boom")},
			want: "cache: producer failed (producer reports.Daily): boom",
		},
		{
			name: "with key",
			err:  &Error{Kind: KindCapacityBlocked, Producer: "p", Key: key},
			want: "cache: capacity blocked (producer p, key ab00000000000000)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestPanicError(t *testing.T) {
	cause := errors.New("nil map")
	err := &PanicError{Value: cause, Stack: []byte("goroutine 1")}

	if !strings.Contains(err.Error(), "nil map") {
		t.Errorf("Error() = %q, want panic value", err.Error())
	}
	if !errors.Is(err, cause) {
		t.Error("errors.Is(err, cause) = false for an error panic value")
	}

	if (&PanicError{Value: "text"}).Unwrap() != nil {
		t.Error("Unwrap() != nil for a non-error panic value")
	}
}

func TestKind_String(t *testing.T) {
	if got := Kind(0).String(); got != "unknown" {
		t.Errorf("Kind(0).String() = %q, want unknown", got)
	}
	if (&Error{Kind: Kind(99)}).Is(ErrTimeout) {
		t.Error("unknown kind matched a sentinel")
	}
}
