// Package memtable implements the bounded in-memory write buffer in front of
// durable segments. One exclusive writer owns a MemTable between construction
// and flush; there is no internal locking, and callers that share one across
// goroutines must serialize access themselves.
package memtable

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/hadro-db/hadro/pkg/keys"
	"github.com/hadro-db/hadro/pkg/schema"
	"github.com/hadro-db/hadro/pkg/sstable"
	"github.com/hadro-db/hadro/pkg/wal"
)

const (
	// DefaultMaxRecords bounds the buffer when the caller does not.
	DefaultMaxRecords = 50000

	// SegmentExt is the file extension of flushed segments.
	SegmentExt = ".hadro"
)

// ErrMissingPrimaryKey reports an appended record whose primary-key field is
// absent or null. The buffer is left untouched.
var ErrMissingPrimaryKey = errors.New("memtable: primary key missing or null")

// ErrStaleWAL reports a flush that succeeded but could not truncate the
// write-ahead log afterwards. The returned segment path is valid and the
// buffer is clear; the stale log entries are merely replayed and re-flushed
// on the next recovery.
var ErrStaleWAL = errors.New("memtable: write-ahead log not truncated after flush")

// AppendStatus tells the caller what an accepted append did to the buffer.
// Reaching capacity is a signal, not a failure: the record is already stored,
// and the caller is expected to flush before appending more.
type AppendStatus int

const (
	// Inserted means the record was stored and the buffer has room left.
	Inserted AppendStatus = iota
	// InsertedAndAtCapacity means the record was stored and the buffer has
	// reached its configured maximum; flush now.
	InsertedAndAtCapacity
)

// Entry is one buffered record: its append timestamp and serialized payload.
type Entry struct {
	TimestampNanos int64
	Payload        []byte
}

// Options configures a MemTable.
type Options struct {
	// MaxRecords is the buffer's record ceiling; 0 means DefaultMaxRecords.
	MaxRecords int
	// DataDir receives flushed segments.
	DataDir string
	// WAL, when non-nil, records every accepted append and is truncated
	// after each successful flush. Existing WAL contents are replayed into
	// the buffer at construction.
	WAL *wal.WAL
	// FilterFalsePositiveRate sizes each flushed segment's Bloom filter;
	// 0 means the bloom package default.
	FilterFalsePositiveRate float64
}

// MemTable is a mutable mapping from primary key to the latest serialized
// record. Last write wins per key; the running byte total always equals the
// sum of buffered payload lengths.
type MemTable struct {
	schema     *schema.Schema
	opts       Options
	buffer     map[keys.Key]Entry
	bufferSize int
}

// New creates an empty MemTable bound to an immutable schema. If opts.WAL is
// set, entries already in the log are replayed (last write per key wins).
func New(s *schema.Schema, opts Options) (*MemTable, error) {
	if s == nil {
		return nil, errors.New("memtable: nil schema")
	}
	if opts.MaxRecords <= 0 {
		opts.MaxRecords = DefaultMaxRecords
	}

	mt := &MemTable{
		schema: s,
		opts:   opts,
		buffer: make(map[keys.Key]Entry),
	}

	if opts.WAL != nil {
		if err := mt.replayWAL(); err != nil {
			return nil, err
		}
	}
	return mt, nil
}

// replayWAL rebuilds buffer state from the write-ahead log.
func (mt *MemTable) replayWAL() error {
	entries, err := wal.Replay(mt.opts.WAL.Path())
	if err != nil {
		return fmt.Errorf("memtable: recover: %w", err)
	}
	for _, e := range entries {
		key, err := keys.Decode(e.EncodedKey)
		if err != nil {
			// A key the log itself checksummed but we cannot decode means
			// the log was written by something else entirely.
			return fmt.Errorf("memtable: recover: %w", err)
		}
		mt.set(key, Entry{TimestampNanos: e.TimestampNanos, Payload: e.Payload})
	}
	return nil
}

// set stores an entry under key, keeping the byte total consistent when an
// existing entry is replaced.
func (mt *MemTable) set(key keys.Key, e Entry) {
	if old, ok := mt.buffer[key]; ok {
		mt.bufferSize -= len(old.Payload)
	}
	mt.buffer[key] = e
	mt.bufferSize += len(e.Payload)
}

// Append serializes a record and stores it under its primary key, replacing
// any previous record with the same key. The returned status is
// InsertedAndAtCapacity once the number of distinct keys has reached the
// configured maximum; the record is stored either way and nothing is dropped.
func (mt *MemTable) Append(rec Fielder) (AppendStatus, error) {
	if rec == nil {
		return Inserted, ErrMissingPrimaryKey
	}
	fields := rec.Fields()

	pkValue, ok := fields[mt.schema.PrimaryKey()]
	if !ok || pkValue == nil {
		return Inserted, ErrMissingPrimaryKey
	}
	key, err := keyFromValue(pkValue)
	if err != nil {
		return Inserted, err
	}

	payload, err := encodeRecord(mt.schema, fields)
	if err != nil {
		return Inserted, err
	}

	now := time.Now().UnixNano()

	if mt.opts.WAL != nil {
		if err := mt.opts.WAL.Append(key.Encode(), payload, now); err != nil {
			return Inserted, fmt.Errorf("memtable: log append: %w", err)
		}
	}

	mt.set(key, Entry{TimestampNanos: now, Payload: payload})

	if len(mt.buffer) >= mt.opts.MaxRecords {
		return InsertedAndAtCapacity, nil
	}
	return Inserted, nil
}

// Get returns the buffered entry for key. Only the buffer is consulted;
// segment lookups belong to the sstable package.
func (mt *MemTable) Get(key keys.Key) (Entry, bool) {
	e, ok := mt.buffer[key]
	return e, ok
}

// Len returns the number of buffered records.
func (mt *MemTable) Len() int { return len(mt.buffer) }

// Size returns the total serialized byte size of the buffer.
func (mt *MemTable) Size() int { return mt.bufferSize }

// AtCapacity reports whether the buffer has reached its record ceiling.
func (mt *MemTable) AtCapacity() bool { return len(mt.buffer) >= mt.opts.MaxRecords }

// Flush serializes the entire buffer into one new segment under the data
// directory, named by the hex-encoded flush timestamp, then clears the buffer
// and resets its size to zero. Failure to build or write the segment leaves
// the buffer exactly as it was. Returns the segment path; a non-empty path
// with ErrStaleWAL means the segment is durable and only the log cleanup
// failed.
func (mt *MemTable) Flush() (string, error) {
	now := time.Now().UnixNano()

	entries := make(map[keys.Key][]byte, len(mt.buffer))
	for k, e := range mt.buffer {
		entries[k] = e.Payload
	}

	meta := sstable.Metadata{
		CreatedAtNanos:          now,
		FilterFalsePositiveRate: mt.opts.FilterFalsePositiveRate,
		Fields: map[string]string{
			"segment_id":  uuid.NewString(),
			"primary_key": mt.schema.PrimaryKey(),
		},
	}

	blob, err := sstable.Create(entries, meta, 0)
	if err != nil {
		return "", fmt.Errorf("memtable: build segment: %w", err)
	}

	path := filepath.Join(mt.opts.DataDir, fmt.Sprintf("%016x%s", now, SegmentExt))
	if err := writeFileAtomic(path, blob); err != nil {
		return "", fmt.Errorf("memtable: write segment: %w", err)
	}

	mt.buffer = make(map[keys.Key]Entry)
	mt.bufferSize = 0

	if mt.opts.WAL != nil {
		if err := mt.opts.WAL.Truncate(); err != nil {
			// The segment is durable and the buffer is clear; stale log
			// entries would only be re-flushed on recovery.
			return path, fmt.Errorf("%w: %v", ErrStaleWAL, err)
		}
	}
	return path, nil
}

// writeFileAtomic writes data to a temp file in the target directory and
// renames it into place, so a crashed flush never leaves a half-written
// segment under the segment extension.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".flush-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return nil
}

// Schema returns the immutable schema the buffer was built with.
func (mt *MemTable) Schema() *schema.Schema { return mt.schema }
