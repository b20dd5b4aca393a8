package memtable

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/hadro-db/hadro/pkg/keys"
	"github.com/hadro-db/hadro/pkg/schema"
)

// Fielder is the capability a record must implement to be appended: expose
// its fields as a name -> value map. No runtime attribute probing; a type
// either implements this or Append will not accept it.
type Fielder interface {
	Fields() map[string]any
}

// FieldMap is the plain-map adapter for callers that assemble records ad hoc.
type FieldMap map[string]any

// Fields implements Fielder.
func (m FieldMap) Fields() map[string]any { return m }

// ErrUnsupportedKeyType reports a primary-key value outside the closed key
// domain (signed integer, string, byte string).
var ErrUnsupportedKeyType = errors.New("memtable: unsupported primary key type")

// keyFromValue maps a field value onto the closed key type.
func keyFromValue(v any) (keys.Key, error) {
	switch x := v.(type) {
	case keys.Key:
		return x, nil
	case int:
		return keys.Int64(int64(x)), nil
	case int8:
		return keys.Int64(int64(x)), nil
	case int16:
		return keys.Int64(int64(x)), nil
	case int32:
		return keys.Int64(int64(x)), nil
	case int64:
		return keys.Int64(x), nil
	case uint:
		// uint is 64 bits on the platforms we build for; values past the
		// int64 range have no order-preserving key representation.
		if uint64(x) > math.MaxInt64 {
			return keys.Key{}, fmt.Errorf("%w: uint %d exceeds int64 range", ErrUnsupportedKeyType, x)
		}
		return keys.Int64(int64(x)), nil
	case uint8:
		return keys.Int64(int64(x)), nil
	case uint16:
		return keys.Int64(int64(x)), nil
	case uint32:
		return keys.Int64(int64(x)), nil
	case string:
		return keys.String(x), nil
	case []byte:
		return keys.Bytes(x), nil
	default:
		return keys.Key{}, fmt.Errorf("%w: %T", ErrUnsupportedKeyType, v)
	}
}

// canonicalValue normalizes one field value to a byte-stable primitive form
// before encoding. Times become integer epoch seconds; the zero time is the
// null sentinel, matching how missing temporal values are represented
// upstream. Everything else passes through to the encoder as-is.
func canonicalValue(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case time.Time:
		if x.IsZero() {
			return nil
		}
		return x.Unix()
	case *time.Time:
		if x == nil || x.IsZero() {
			return nil
		}
		return x.Unix()
	default:
		return v
	}
}

// encodeRecord serializes a record deterministically: field values ordered by
// the schema's sorted column names, canonicalized, packed as one msgpack
// array. Fields absent from the record encode as nil; fields outside the
// schema are ignored. Two records with identical field values always
// serialize to identical bytes.
func encodeRecord(s *schema.Schema, fields map[string]any) ([]byte, error) {
	ordered := make([]any, 0, s.NumColumns())
	for _, col := range s.SortedColumns() {
		ordered = append(ordered, canonicalValue(fields[col]))
	}

	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetSortMapKeys(true)
	if err := enc.Encode(ordered); err != nil {
		return nil, fmt.Errorf("memtable: serialize record: %w", err)
	}
	return buf.Bytes(), nil
}
