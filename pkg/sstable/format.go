// Package sstable implements the immutable segment format: one contiguous
// byte blob holding a header, the sorted record section, a dense
// binary-searchable key index, an embedded Bloom filter and a metadata block,
// closed by a CRC32 footer.
//
// Segment layout (format version 1, little-endian):
//
//	header (88 bytes):
//	  magic u32 | version u32 | entryCount u64 | createdAtNanos i64
//	  recordsOff u64 | recordsLen u64 | indexOff u64 | indexLen u64
//	  bloomOff  u64 | bloomLen  u64 | metaOff  u64 | metaLen  u64
//	records: per entry [keyLen u16][encodedKey][payloadLen u32][payload]
//	index:   [count u32] then per key [keyLen u16][encodedKey][recordOff u64]
//	bloom:   bloom.Filter marshaled form, built over hash.Sum32(encodedKey)
//	meta:    msgpack map[string]string, keys sorted
//	footer (4 bytes): crc32 IEEE over everything before it
//
// Offsets are absolute from the start of the blob. A segment is never mutated
// after it is written; readers may share one blob freely.
package sstable

import (
	"errors"

	"github.com/hadro-db/hadro/pkg/keys"
)

const (
	// Magic identifies a segment blob ("HSEG").
	Magic uint32 = 0x47455348
	// FormatVersion is the only version this package reads and writes.
	FormatVersion uint32 = 1

	headerSize = 88
	footerSize = 4

	// maxKeyLen bounds an encoded key to what the u16 length prefix can hold.
	maxKeyLen = 1<<16 - 1
)

// ErrCorruptSegment reports a blob that failed structural validation: bad
// magic, unknown version, checksum mismatch, offsets outside the buffer, or
// records that disagree with the index. Reads of such a blob must not guess;
// the whole segment is rejected.
var ErrCorruptSegment = errors.New("sstable: corrupt segment")

// ErrKeyTooLarge reports an encoded key longer than the format can store.
var ErrKeyTooLarge = errors.New("sstable: encoded key exceeds 64 KiB")

// Entry is one (key, payload) pair of a segment, returned by range lookups in
// ascending key order.
type Entry struct {
	Key     keys.Key
	Payload []byte
}

// Comparator selects which side of a boundary key a range lookup returns.
type Comparator int

const (
	// GT selects entries strictly greater than the boundary.
	GT Comparator = iota
	// GE selects entries greater than or equal to the boundary.
	GE
	// LT selects entries strictly less than the boundary.
	LT
	// LE selects entries less than or equal to the boundary.
	LE
)

// String implements fmt.Stringer for diagnostics.
func (c Comparator) String() string {
	switch c {
	case GT:
		return "GT"
	case GE:
		return "GE"
	case LT:
		return "LT"
	case LE:
		return "LE"
	default:
		return "UNKNOWN"
	}
}

// header is the decoded fixed-size segment header.
type header struct {
	magic          uint32
	version        uint32
	entryCount     uint64
	createdAtNanos int64
	recordsOff     uint64
	recordsLen     uint64
	indexOff       uint64
	indexLen       uint64
	bloomOff       uint64
	bloomLen       uint64
	metaOff        uint64
	metaLen        uint64
}

// Metadata carries the caller-supplied portion of a segment header. Creation
// time and identity are supplied here rather than sampled inside Create, so
// identical inputs always produce byte-identical segments.
type Metadata struct {
	// CreatedAtNanos is stamped into the header. The flush path passes its
	// flush timestamp.
	CreatedAtNanos int64
	// FilterFalsePositiveRate sizes the embedded Bloom filter; zero means
	// bloom.DefaultFalsePositiveRate.
	FilterFalsePositiveRate float64
	// Fields is free-form auxiliary metadata stored in the meta section,
	// e.g. "segment_id".
	Fields map[string]string
}
