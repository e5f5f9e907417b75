// Package fingerprint reduces a producer call to a fixed-width cache key.
//
// A call is identified by the producer's stable textual ID plus its
// positional and keyword arguments. DefaultKeyer walks the arguments,
// writes a typed, length-prefixed canonical encoding and hashes it with
// SHA-256. Keyword arguments are sorted, nil is distinct from an empty
// collection, and numeric representation is part of the key (1 and 1.0
// differ). Arguments that cannot be encoded deterministically (funcs,
// channels, unsafe pointers, reference cycles) are rejected with
// ErrUnhashableArgument instead of silently producing divergent keys.
package fingerprint
