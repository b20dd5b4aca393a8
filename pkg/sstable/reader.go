package sstable

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"sort"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/hadro-db/hadro/pkg/bloom"
	"github.com/hadro-db/hadro/pkg/hash"
	"github.com/hadro-db/hadro/pkg/keys"
)

// Reader gives lookup access to one validated segment blob. Open validates
// the whole structure up front, so the lookup methods are total: they never
// fail, they only find or miss. A Reader is safe for unbounded concurrent use
// because the underlying blob is immutable.
type Reader struct {
	blob    []byte
	hdr     header
	entries []readerEntry // ascending key order
	filter  *bloom.Filter
	meta    map[string]string
}

// readerEntry is one decoded index entry with its payload located in the blob.
type readerEntry struct {
	key        keys.Key
	encodedKey []byte
	payload    []byte
}

// Open validates blob and returns a Reader over it. Every structural defect
// (short buffer, bad magic, unknown version, checksum mismatch, out-of-range
// offsets, index/record disagreement, unsorted keys) is ErrCorruptSegment.
func Open(blob []byte) (*Reader, error) {
	if len(blob) < headerSize+footerSize {
		return nil, fmt.Errorf("%w: %d bytes is shorter than header and footer", ErrCorruptSegment, len(blob))
	}

	body := blob[:len(blob)-footerSize]
	storedCRC := binary.LittleEndian.Uint32(blob[len(blob)-footerSize:])
	if crc := crc32.ChecksumIEEE(body); crc != storedCRC {
		return nil, fmt.Errorf("%w: checksum mismatch (stored %08x, computed %08x)", ErrCorruptSegment, storedCRC, crc)
	}

	hdr, err := parseHeader(blob)
	if err != nil {
		return nil, err
	}

	if _, err := section(body, hdr.recordsOff, hdr.recordsLen, "records"); err != nil {
		return nil, err
	}
	indexSec, err := section(body, hdr.indexOff, hdr.indexLen, "index")
	if err != nil {
		return nil, err
	}
	bloomSec, err := section(body, hdr.bloomOff, hdr.bloomLen, "bloom")
	if err != nil {
		return nil, err
	}
	metaSec, err := section(body, hdr.metaOff, hdr.metaLen, "meta")
	if err != nil {
		return nil, err
	}
	entries, err := parseIndex(blob, hdr, indexSec)
	if err != nil {
		return nil, err
	}

	filter, err := bloom.UnmarshalBinary(bloomSec)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptSegment, err)
	}

	var meta map[string]string
	if err := msgpack.Unmarshal(metaSec, &meta); err != nil {
		return nil, fmt.Errorf("%w: metadata does not decode: %v", ErrCorruptSegment, err)
	}

	return &Reader{blob: blob, hdr: hdr, entries: entries, filter: filter, meta: meta}, nil
}

// parseHeader decodes and sanity-checks the fixed header.
func parseHeader(blob []byte) (header, error) {
	var h header
	h.magic = binary.LittleEndian.Uint32(blob[0:4])
	h.version = binary.LittleEndian.Uint32(blob[4:8])
	h.entryCount = binary.LittleEndian.Uint64(blob[8:16])
	h.createdAtNanos = int64(binary.LittleEndian.Uint64(blob[16:24]))
	h.recordsOff = binary.LittleEndian.Uint64(blob[24:32])
	h.recordsLen = binary.LittleEndian.Uint64(blob[32:40])
	h.indexOff = binary.LittleEndian.Uint64(blob[40:48])
	h.indexLen = binary.LittleEndian.Uint64(blob[48:56])
	h.bloomOff = binary.LittleEndian.Uint64(blob[56:64])
	h.bloomLen = binary.LittleEndian.Uint64(blob[64:72])
	h.metaOff = binary.LittleEndian.Uint64(blob[72:80])
	h.metaLen = binary.LittleEndian.Uint64(blob[80:88])

	if h.magic != Magic {
		return h, fmt.Errorf("%w: bad magic %08x", ErrCorruptSegment, h.magic)
	}
	if h.version != FormatVersion {
		return h, fmt.Errorf("%w: unsupported version %d", ErrCorruptSegment, h.version)
	}
	if h.recordsOff != headerSize {
		return h, fmt.Errorf("%w: records section does not follow header", ErrCorruptSegment)
	}
	return h, nil
}

// section bounds-checks one section and returns its bytes.
func section(body []byte, off, length uint64, name string) ([]byte, error) {
	end := off + length
	if off < headerSize || end < off || end > uint64(len(body)) {
		return nil, fmt.Errorf("%w: %s section [%d:%d] outside buffer of %d bytes",
			ErrCorruptSegment, name, off, end, len(body))
	}
	return body[off:end], nil
}

// parseIndex decodes the dense index and cross-checks every referenced record.
// Each index key must match the key stored at its record offset, keys must be
// strictly ascending, and every record must lie inside the records section.
func parseIndex(blob []byte, hdr header, indexSec []byte) ([]readerEntry, error) {
	if len(indexSec) < 4 {
		return nil, fmt.Errorf("%w: index section too short", ErrCorruptSegment)
	}
	count := binary.LittleEndian.Uint32(indexSec[0:4])
	if uint64(count) != hdr.entryCount {
		return nil, fmt.Errorf("%w: index holds %d keys, header claims %d", ErrCorruptSegment, count, hdr.entryCount)
	}

	recordsEnd := hdr.recordsOff + hdr.recordsLen
	entries := make([]readerEntry, 0, count)
	pos := 4

	for i := uint32(0); i < count; i++ {
		if pos+2 > len(indexSec) {
			return nil, fmt.Errorf("%w: index truncated at entry %d", ErrCorruptSegment, i)
		}
		keyLen := int(binary.LittleEndian.Uint16(indexSec[pos : pos+2]))
		pos += 2
		if pos+keyLen+8 > len(indexSec) {
			return nil, fmt.Errorf("%w: index truncated at entry %d", ErrCorruptSegment, i)
		}
		encodedKey := indexSec[pos : pos+keyLen]
		pos += keyLen
		recordOff := binary.LittleEndian.Uint64(indexSec[pos : pos+8])
		pos += 8

		key, err := keys.Decode(encodedKey)
		if err != nil {
			return nil, fmt.Errorf("%w: index entry %d: %v", ErrCorruptSegment, i, err)
		}

		payload, err := recordPayload(blob, recordOff, recordsEnd, encodedKey)
		if err != nil {
			return nil, fmt.Errorf("%w: entry %s: %v", ErrCorruptSegment, key, err)
		}

		if n := len(entries); n > 0 && keys.Compare(entries[n-1].key, key) >= 0 {
			return nil, fmt.Errorf("%w: keys not strictly ascending at %s", ErrCorruptSegment, key)
		}

		entries = append(entries, readerEntry{key: key, encodedKey: encodedKey, payload: payload})
	}

	if pos != len(indexSec) {
		return nil, fmt.Errorf("%w: %d trailing bytes after index", ErrCorruptSegment, len(indexSec)-pos)
	}
	return entries, nil
}

// recordPayload parses the record at off and returns its payload, verifying
// the stored key matches the index key and the record stays in bounds. Bounds
// are checked by comparing remaining length, never by adding to off, so a
// crafted offset near the uint64 maximum cannot wrap past the checks.
func recordPayload(blob []byte, off, recordsEnd uint64, wantKey []byte) ([]byte, error) {
	if off < headerSize || off > recordsEnd || recordsEnd-off < 2 {
		return nil, fmt.Errorf("record offset %d outside records section", off)
	}
	keyLen := uint64(binary.LittleEndian.Uint16(blob[off : off+2]))
	p := off + 2
	if keyLen+4 > recordsEnd-p {
		return nil, fmt.Errorf("record at %d truncated", off)
	}
	storedKey := blob[p : p+keyLen]
	p += keyLen
	if string(storedKey) != string(wantKey) {
		return nil, fmt.Errorf("record key disagrees with index")
	}
	payloadLen := uint64(binary.LittleEndian.Uint32(blob[p : p+4]))
	p += 4
	if payloadLen > recordsEnd-p {
		return nil, fmt.Errorf("record payload at %d overruns records section", off)
	}
	return blob[p : p+payloadLen], nil
}

// EntryCount returns the number of entries in the segment.
func (r *Reader) EntryCount() int { return len(r.entries) }

// CreatedAtNanos returns the creation timestamp stamped by the writer.
func (r *Reader) CreatedAtNanos() int64 { return r.hdr.createdAtNanos }

// MetaFields returns the auxiliary metadata map. Callers must not mutate it.
func (r *Reader) MetaFields() map[string]string { return r.meta }

// FilterStats returns the embedded Bloom filter's bit and hash counts.
func (r *Reader) FilterStats() (bits, hashes int) {
	return r.filter.BitCount(), r.filter.HashCount()
}

// search returns the position of the first entry >= key.
func (r *Reader) search(key keys.Key) int {
	return sort.Search(len(r.entries), func(i int) bool {
		return keys.Compare(r.entries[i].key, key) >= 0
	})
}

// FilterMayContain probes the embedded Bloom filter alone. A false answer is
// definitive; a true answer still needs the index.
func (r *Reader) FilterMayContain(key keys.Key) bool {
	return r.filter.PossiblyContains(hash.Sum32(key.Encode()))
}

// LookupEq returns the payload for key. The embedded Bloom filter is probed
// first; a negative answer short-circuits without touching the index. Absent
// keys report found=false, never an error.
func (r *Reader) LookupEq(key keys.Key) (payload []byte, found bool) {
	if !r.FilterMayContain(key) {
		return nil, false
	}
	i := r.search(key)
	if i == len(r.entries) || keys.Compare(r.entries[i].key, key) != 0 {
		return nil, false
	}
	return r.entries[i].payload, true
}

// LookupIn performs batched equality lookup. The result maps each found key
// to its payload; keys not present in the segment are omitted.
func (r *Reader) LookupIn(ks []keys.Key) map[keys.Key][]byte {
	out := make(map[keys.Key][]byte, len(ks))
	for _, k := range ks {
		if payload, ok := r.LookupEq(k); ok {
			out[k] = payload
		}
	}
	return out
}

// LookupRange returns every entry on the cmp side of the boundary key, in
// ascending key order. The boundary key itself need not be present. Range
// lookups never consult the Bloom filter; it only answers single-key
// membership.
func (r *Reader) LookupRange(boundary keys.Key, cmp Comparator) []Entry {
	i := r.search(boundary)
	boundaryPresent := i < len(r.entries) && keys.Compare(r.entries[i].key, boundary) == 0

	var lo, hi int // half-open [lo, hi)
	switch cmp {
	case GE:
		lo, hi = i, len(r.entries)
	case GT:
		lo, hi = i, len(r.entries)
		if boundaryPresent {
			lo = i + 1
		}
	case LT:
		lo, hi = 0, i
	case LE:
		lo, hi = 0, i
		if boundaryPresent {
			hi = i + 1
		}
	default:
		return nil
	}

	return r.collect(lo, hi)
}

// LookupBetween returns entries with lo <= key <= hi, ascending.
func (r *Reader) LookupBetween(lo, hi keys.Key) []Entry {
	if keys.Compare(lo, hi) > 0 {
		return nil
	}
	start := r.search(lo)
	end := r.search(hi)
	if end < len(r.entries) && keys.Compare(r.entries[end].key, hi) == 0 {
		end++
	}
	return r.collect(start, end)
}

// All returns every entry in ascending key order.
func (r *Reader) All() []Entry {
	return r.collect(0, len(r.entries))
}

func (r *Reader) collect(lo, hi int) []Entry {
	if lo >= hi {
		return nil
	}
	out := make([]Entry, 0, hi-lo)
	for i := lo; i < hi; i++ {
		out = append(out, Entry{Key: r.entries[i].key, Payload: r.entries[i].payload})
	}
	return out
}

// LookupEq is the blob-level form of Reader.LookupEq for callers holding raw
// segment bytes.
func LookupEq(blob []byte, key keys.Key) ([]byte, bool, error) {
	r, err := Open(blob)
	if err != nil {
		return nil, false, err
	}
	payload, found := r.LookupEq(key)
	return payload, found, nil
}

// LookupIn is the blob-level form of Reader.LookupIn.
func LookupIn(blob []byte, ks []keys.Key) (map[keys.Key][]byte, error) {
	r, err := Open(blob)
	if err != nil {
		return nil, err
	}
	return r.LookupIn(ks), nil
}

// LookupRange is the blob-level form of Reader.LookupRange.
func LookupRange(blob []byte, boundary keys.Key, cmp Comparator) ([]Entry, error) {
	r, err := Open(blob)
	if err != nil {
		return nil, err
	}
	return r.LookupRange(boundary, cmp), nil
}
