// Package keys defines the closed primary-key type used by the MemTable and
// segment format. A key is one of: signed 64-bit integer, string, or byte
// string. The type is a small tagged union with a total, transitive ordering,
// so the MemTable's equality semantics and the segment's sort / binary search
// always agree.
package keys

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// Kind tags the variant held by a Key.
type Kind uint8

const (
	// KindInt64 is a signed 64-bit integer key.
	KindInt64 Kind = 1
	// KindString is a UTF-8 string key.
	KindString Kind = 2
	// KindBytes is an opaque byte-string key.
	KindBytes Kind = 3
)

// ErrBadKeyEncoding reports a key that cannot be decoded.
var ErrBadKeyEncoding = errors.New("keys: bad key encoding")

// Key is an immutable primary-key value. The zero Key is invalid; construct
// with Int64, String or Bytes. Key is comparable and safe to use as a map key:
// byte payloads are held in an immutable string.
type Key struct {
	kind Kind
	num  int64
	str  string
}

// Int64 returns an integer key.
func Int64(v int64) Key {
	return Key{kind: KindInt64, num: v}
}

// String returns a string key.
func String(s string) Key {
	return Key{kind: KindString, str: s}
}

// Bytes returns a byte-string key. The input is copied.
func Bytes(b []byte) Key {
	return Key{kind: KindBytes, str: string(b)}
}

// Kind reports which variant the key holds.
func (k Key) Kind() Kind { return k.kind }

// IsZero reports whether the key is the invalid zero value.
func (k Key) IsZero() bool { return k.kind == 0 }

// Int returns the integer payload. Valid only for KindInt64 keys.
func (k Key) Int() int64 { return k.num }

// Str returns the string payload. Valid for KindString and KindBytes keys.
func (k Key) Str() string { return k.str }

// String implements fmt.Stringer for logs and error messages.
func (k Key) String() string {
	switch k.kind {
	case KindInt64:
		return fmt.Sprintf("int:%d", k.num)
	case KindString:
		return fmt.Sprintf("str:%s", k.str)
	case KindBytes:
		return fmt.Sprintf("bytes:%x", k.str)
	default:
		return "invalid"
	}
}

// Compare returns -1, 0 or 1. Ordering is total and transitive: keys of
// different kinds order by kind tag (Int64 < String < Bytes), keys of the
// same kind order naturally within the kind.
func Compare(a, b Key) int {
	if a.kind != b.kind {
		if a.kind < b.kind {
			return -1
		}
		return 1
	}
	switch a.kind {
	case KindInt64:
		switch {
		case a.num < b.num:
			return -1
		case a.num > b.num:
			return 1
		}
		return 0
	default:
		return bytes.Compare([]byte(a.str), []byte(b.str))
	}
}

// Encode returns the key's binary form: one kind byte followed by the
// payload. Integers use big-endian with the sign bit flipped so the encoded
// bytes sort in the same order as the values; strings and byte strings are
// raw. Encoded keys therefore sort byte-wise exactly like Compare.
func (k Key) Encode() []byte {
	switch k.kind {
	case KindInt64:
		out := make([]byte, 9)
		out[0] = byte(KindInt64)
		binary.BigEndian.PutUint64(out[1:], uint64(k.num)^(1<<63))
		return out
	case KindString, KindBytes:
		out := make([]byte, 1+len(k.str))
		out[0] = byte(k.kind)
		copy(out[1:], k.str)
		return out
	default:
		return nil
	}
}

// Decode reconstructs a key from its complete binary form.
func Decode(b []byte) (Key, error) {
	if len(b) == 0 {
		return Key{}, ErrBadKeyEncoding
	}
	switch Kind(b[0]) {
	case KindInt64:
		if len(b) != 9 {
			return Key{}, fmt.Errorf("%w: int64 key is %d bytes", ErrBadKeyEncoding, len(b))
		}
		raw := binary.BigEndian.Uint64(b[1:])
		return Int64(int64(raw ^ (1 << 63))), nil
	case KindString:
		return String(string(b[1:])), nil
	case KindBytes:
		return Bytes(b[1:]), nil
	default:
		return Key{}, fmt.Errorf("%w: unknown kind %d", ErrBadKeyEncoding, b[0])
	}
}
