package fingerprint

import (
	"bytes"
	"crypto/sha256"
	"encoding"
	"encoding/binary"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"
)

// Keyer derives cache keys from producer calls.
//
// Contract:
// - Determinism: same inputs must produce the same key across process restarts,
//   regardless of map iteration order or keyword argument order.
// - Concurrency: implementations must be safe for concurrent use.
// - Errors: arguments without a canonical encoding return an error matching
//   ErrUnhashableArgument; no key is produced for them.
type Keyer interface {
	// Key derives the key for a call of producerID with args and kwargs.
	Key(producerID string, args []any, kwargs map[string]any) (Key, error)
}

// DefaultKeyer generates SHA-256 keys over a typed canonical encoding.
type DefaultKeyer struct{}

// NewDefaultKeyer creates a new default keyer.
func NewDefaultKeyer() *DefaultKeyer {
	return &DefaultKeyer{}
}

// domain separates this encoding from any other use of the digest.
const domain = "resultcache/fingerprint/v1"

// maxDepth bounds nesting so hostile inputs cannot exhaust the stack.
const maxDepth = 256

// Encoding tags. Every value is prefixed by exactly one of these.
const (
	tagNil     byte = '0'
	tagFalse   byte = 'F'
	tagTrue    byte = 'T'
	tagInt     byte = 'i'
	tagUint    byte = 'u'
	tagFloat   byte = 'd'
	tagComplex byte = 'c'
	tagString  byte = 's'
	tagBytes   byte = 'b'
	tagList    byte = 'l'
	tagMap     byte = 'm'
	tagStruct  byte = 'S'
	tagPtr     byte = 'p'
	tagBinary  byte = 'B'
)

var (
	binaryMarshalerType = reflect.TypeFor[encoding.BinaryMarshaler]()
	textMarshalerType   = reflect.TypeFor[encoding.TextMarshaler]()
)

// Key derives a deterministic key.
// The digest covers: domain, producer ID, args as a list, kwargs as a sorted map.
func (k *DefaultKeyer) Key(producerID string, args []any, kwargs map[string]any) (Key, error) {
	if producerID == "" {
		return Key{}, ErrEmptyProducerID
	}

	enc := &encoder{}
	buf := make([]byte, 0, 256)
	buf = appendString(buf, domain)
	buf = appendString(buf, producerID)

	buf = append(buf, tagList)
	buf = appendLen(buf, len(args))
	for i, arg := range args {
		var err *UnhashableError
		buf, err = enc.append(buf, reflect.ValueOf(arg), 0)
		if err != nil {
			return Key{}, err.under("args[" + strconv.Itoa(i) + "]")
		}
	}

	names := make([]string, 0, len(kwargs))
	for name := range kwargs {
		names = append(names, name)
	}
	sort.Strings(names)

	buf = append(buf, tagMap)
	buf = appendLen(buf, len(names))
	for _, name := range names {
		buf = appendString(buf, name)
		var err *UnhashableError
		buf, err = enc.append(buf, reflect.ValueOf(kwargs[name]), 0)
		if err != nil {
			return Key{}, err.under("kwargs[" + strconv.Quote(name) + "]")
		}
	}

	return Key(sha256.Sum256(buf)), nil
}

// visit identifies a reference-typed value on the current encoding path.
type visit struct {
	ptr uintptr
	len int
	typ reflect.Type
}

// encoder tracks the references currently being walked so cycles are
// reported instead of recursing forever. Shared, acyclic references are fine.
type encoder struct {
	active map[visit]struct{}
}

func (e *encoder) enter(v visit) bool {
	if e.active == nil {
		e.active = make(map[visit]struct{})
	}
	if _, ok := e.active[v]; ok {
		return false
	}
	e.active[v] = struct{}{}
	return true
}

func (e *encoder) leave(v visit) {
	delete(e.active, v)
}

func (e *encoder) append(buf []byte, v reflect.Value, depth int) ([]byte, *UnhashableError) {
	if !v.IsValid() {
		return append(buf, tagNil), nil
	}
	if depth > maxDepth {
		return buf, unhashable(v, "nesting too deep")
	}

	t := v.Type()
	if marshals(t) && v.CanInterface() {
		if (t.Kind() == reflect.Pointer || t.Kind() == reflect.Interface) && v.IsNil() {
			return append(buf, tagNil), nil
		}
		return appendMarshaled(buf, v)
	}

	switch t.Kind() {
	case reflect.Bool:
		if v.Bool() {
			return append(buf, tagTrue), nil
		}
		return append(buf, tagFalse), nil

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		buf = append(buf, tagInt)
		return binary.AppendVarint(buf, v.Int()), nil

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		buf = append(buf, tagUint)
		return binary.AppendUvarint(buf, v.Uint()), nil

	case reflect.Float32, reflect.Float64:
		buf = append(buf, tagFloat)
		return binary.BigEndian.AppendUint64(buf, math.Float64bits(v.Float())), nil

	case reflect.Complex64, reflect.Complex128:
		c := v.Complex()
		buf = append(buf, tagComplex)
		buf = binary.BigEndian.AppendUint64(buf, math.Float64bits(real(c)))
		return binary.BigEndian.AppendUint64(buf, math.Float64bits(imag(c))), nil

	case reflect.String:
		buf = append(buf, tagString)
		return appendString(buf, v.String()), nil

	case reflect.Slice:
		if v.IsNil() {
			return append(buf, tagNil), nil
		}
		if t.Elem().Kind() == reflect.Uint8 {
			buf = append(buf, tagBytes)
			buf = appendLen(buf, v.Len())
			return append(buf, v.Bytes()...), nil
		}
		key := visit{ptr: v.Pointer(), len: v.Len(), typ: t}
		if !e.enter(key) {
			return buf, unhashable(v, "reference cycle")
		}
		defer e.leave(key)
		return e.appendList(buf, v, depth)

	case reflect.Array:
		if t.Elem().Kind() == reflect.Uint8 {
			buf = append(buf, tagBytes)
			buf = appendLen(buf, v.Len())
			for i := 0; i < v.Len(); i++ {
				buf = append(buf, byte(v.Index(i).Uint()))
			}
			return buf, nil
		}
		return e.appendList(buf, v, depth)

	case reflect.Map:
		if v.IsNil() {
			return append(buf, tagNil), nil
		}
		key := visit{ptr: v.Pointer(), typ: t}
		if !e.enter(key) {
			return buf, unhashable(v, "reference cycle")
		}
		defer e.leave(key)
		return e.appendMap(buf, v, depth)

	case reflect.Struct:
		return e.appendStruct(buf, v, depth)

	case reflect.Pointer:
		if v.IsNil() {
			return append(buf, tagNil), nil
		}
		key := visit{ptr: v.Pointer(), typ: t}
		if !e.enter(key) {
			return buf, unhashable(v, "reference cycle")
		}
		defer e.leave(key)
		buf = append(buf, tagPtr)
		return e.append(buf, v.Elem(), depth+1)

	case reflect.Interface:
		if v.IsNil() {
			return append(buf, tagNil), nil
		}
		return e.append(buf, v.Elem(), depth)

	case reflect.Func:
		return buf, unhashable(v, "func")
	case reflect.Chan:
		return buf, unhashable(v, "channel")
	case reflect.UnsafePointer, reflect.Uintptr:
		return buf, unhashable(v, "opaque pointer")
	default:
		return buf, unhashable(v, "unsupported kind "+t.Kind().String())
	}
}

func (e *encoder) appendList(buf []byte, v reflect.Value, depth int) ([]byte, *UnhashableError) {
	buf = append(buf, tagList)
	buf = appendLen(buf, v.Len())
	for i := 0; i < v.Len(); i++ {
		var err *UnhashableError
		buf, err = e.append(buf, v.Index(i), depth+1)
		if err != nil {
			return buf, err.under("[" + strconv.Itoa(i) + "]")
		}
	}
	return buf, nil
}

type mapEntry struct {
	key   []byte
	value []byte
}

// appendMap encodes entries sorted by their encoded key bytes, so the
// result never depends on map iteration order.
func (e *encoder) appendMap(buf []byte, v reflect.Value, depth int) ([]byte, *UnhashableError) {
	entries := make([]mapEntry, 0, v.Len())
	iter := v.MapRange()
	for iter.Next() {
		k, err := e.append(nil, iter.Key(), depth+1)
		if err != nil {
			return buf, err.under("[" + fmt.Sprint(iter.Key()) + " key]")
		}
		val, err := e.append(nil, iter.Value(), depth+1)
		if err != nil {
			return buf, err.under("[" + fmt.Sprint(iter.Key()) + "]")
		}
		entries = append(entries, mapEntry{key: k, value: val})
	}
	sort.Slice(entries, func(i, j int) bool {
		return bytes.Compare(entries[i].key, entries[j].key) < 0
	})

	buf = append(buf, tagMap)
	buf = appendLen(buf, len(entries))
	for _, entry := range entries {
		buf = append(buf, entry.key...)
		buf = append(buf, entry.value...)
	}
	return buf, nil
}

// appendStruct encodes fields by name, in declaration order. Structs with
// unexported fields carry state the encoding cannot see and are rejected
// unless they marshal themselves.
func (e *encoder) appendStruct(buf []byte, v reflect.Value, depth int) ([]byte, *UnhashableError) {
	t := v.Type()
	fields := make([]int, 0, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			if f.Name == "_" {
				continue
			}
			return buf, unhashable(v, "unexported field "+f.Name)
		}
		fields = append(fields, i)
	}

	buf = append(buf, tagStruct)
	buf = appendString(buf, typeName(t))
	buf = appendLen(buf, len(fields))
	for _, i := range fields {
		f := t.Field(i)
		buf = appendString(buf, f.Name)
		var err *UnhashableError
		buf, err = e.append(buf, v.Field(i), depth+1)
		if err != nil {
			return buf, err.under("." + f.Name)
		}
	}
	return buf, nil
}

func marshals(t reflect.Type) bool {
	return t.Implements(binaryMarshalerType) || t.Implements(textMarshalerType)
}

// appendMarshaled encodes a value through its own binary or text form,
// tagged with its type name so equal bytes from different types differ.
func appendMarshaled(buf []byte, v reflect.Value) ([]byte, *UnhashableError) {
	var (
		data []byte
		err  error
	)
	switch m := v.Interface().(type) {
	case encoding.BinaryMarshaler:
		data, err = m.MarshalBinary()
	case encoding.TextMarshaler:
		data, err = m.MarshalText()
	}
	if err != nil {
		return buf, unhashable(v, "marshal: "+err.Error())
	}
	buf = append(buf, tagBinary)
	buf = appendString(buf, typeName(v.Type()))
	buf = appendLen(buf, len(data))
	return append(buf, data...), nil
}

func appendLen(buf []byte, n int) []byte {
	return binary.AppendUvarint(buf, uint64(n))
}

func appendString(buf []byte, s string) []byte {
	buf = appendLen(buf, len(s))
	return append(buf, s...)
}

func typeName(t reflect.Type) string {
	if t.Name() != "" && t.PkgPath() != "" {
		return t.PkgPath() + "." + t.Name()
	}
	return t.String()
}

func unhashable(v reflect.Value, reason string) *UnhashableError {
	return &UnhashableError{Type: v.Type().String(), Reason: reason}
}

// Ensure DefaultKeyer implements Keyer
var _ Keyer = (*DefaultKeyer)(nil)
