package cache

import (
	"context"
	"encoding/json"
	"reflect"
	"runtime"
	"runtime/debug"
	"time"

	"github.com/jonwraymond/resultcache/observe"
)

// ProducerFunc computes the value for one call. It must depend only on its
// arguments; state captured by a closure is not part of the key.
type ProducerFunc[T any] func(ctx context.Context, args []any, kwargs map[string]any) (T, error)

// Codec converts produced values to and from stored payloads. Only stores
// that persist bytes use it; the memory store keeps values as they are.
type Codec[T any] interface {
	Encode(v T) ([]byte, error)
	Decode(data []byte) (T, error)
}

// JSONCodec encodes values with encoding/json.
type JSONCodec[T any] struct{}

// Encode implements Codec.
func (JSONCodec[T]) Encode(v T) ([]byte, error) {
	return json.Marshal(v)
}

// Decode implements Codec.
func (JSONCodec[T]) Decode(data []byte) (T, error) {
	var v T
	err := json.Unmarshal(data, &v)
	return v, err
}

type bytesCodec struct{}

func (bytesCodec) Encode(v []byte) ([]byte, error) { return v, nil }

func (bytesCodec) Decode(data []byte) ([]byte, error) { return data, nil }

type stringCodec struct{}

func (stringCodec) Encode(v string) ([]byte, error) { return []byte(v), nil }

func (stringCodec) Decode(data []byte) (string, error) { return string(data), nil }

// DefaultCodec returns the codec used when a producer sets none: []byte and
// string pass through unchanged, everything else is JSON.
func DefaultCodec[T any]() Codec[T] {
	var zero T
	switch any(zero).(type) {
	case []byte:
		return any(bytesCodec{}).(Codec[T])
	case string:
		return any(stringCodec{}).(Codec[T])
	}
	return JSONCodec[T]{}
}

// Producer is a named producer function with its codec.
type Producer[T any] struct {
	id    string
	meta  observe.ProducerMeta
	fn    ProducerFunc[T]
	codec Codec[T]
	ttl   time.Duration
}

// ProducerOption configures a Producer.
type ProducerOption[T any] func(*Producer[T])

// WithCodec sets the payload codec.
func WithCodec[T any](codec Codec[T]) ProducerOption[T] {
	return func(p *Producer[T]) {
		if codec != nil {
			p.codec = codec
		}
	}
}

// WithProducerTTL sets the TTL of this producer's entries, overriding the
// cache default. Per-call WithTTL still takes precedence.
func WithProducerTTL[T any](ttl time.Duration) ProducerOption[T] {
	return func(p *Producer[T]) {
		p.ttl = ttl
	}
}

// NewProducer creates a producer. The id must be stable across restarts;
// "<package>.<function>" is the convention.
func NewProducer[T any](id string, fn ProducerFunc[T], opts ...ProducerOption[T]) *Producer[T] {
	p := &Producer[T]{
		id:    id,
		meta:  observe.ParseProducerID(id),
		fn:    fn,
		codec: DefaultCodec[T](),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ProducerOf creates a producer whose ID is the qualified name of fn.
// Anonymous functions get compiler-assigned names such as "pkg.Outer.func1",
// which change when the enclosing code changes.
func ProducerOf[T any](fn ProducerFunc[T], opts ...ProducerOption[T]) *Producer[T] {
	return NewProducer(funcName(fn), fn, opts...)
}

func funcName(fn any) string {
	v := reflect.ValueOf(fn)
	if v.Kind() != reflect.Func || v.IsNil() {
		return ""
	}
	f := runtime.FuncForPC(v.Pointer())
	if f == nil {
		return ""
	}
	return f.Name()
}

// ID returns the producer ID.
func (p *Producer[T]) ID() string { return p.id }

// Validate checks the producer has an ID and a function.
func (p *Producer[T]) Validate() error {
	if p == nil || p.id == "" || p.fn == nil {
		return ErrInvalidProducer
	}
	return nil
}

// invoke runs the producer, converting a panic into a *PanicError.
func (p *Producer[T]) invoke(ctx context.Context, args []any, kwargs map[string]any) (v T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	return p.fn(ctx, args, kwargs)
}
