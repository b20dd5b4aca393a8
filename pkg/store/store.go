// Package store composes the write buffer and the flushed segments into one
// engine. Writes land in the buffer; when it signals capacity the store
// flushes it to a new segment. Reads consult the buffer first, then the
// segments from newest to oldest, stopping at the first hit.
package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hadro-db/hadro/pkg/config"
	"github.com/hadro-db/hadro/pkg/keys"
	"github.com/hadro-db/hadro/pkg/logging"
	"github.com/hadro-db/hadro/pkg/memtable"
	"github.com/hadro-db/hadro/pkg/metrics"
	"github.com/hadro-db/hadro/pkg/schema"
	"github.com/hadro-db/hadro/pkg/sstable"
	"github.com/hadro-db/hadro/pkg/wal"
)

// walFilename is the write-ahead log's name under the data directory.
const walFilename = "wal.log"

// Options carries the store's optional collaborators.
type Options struct {
	// Logger receives the store's structured log output; nil means none.
	Logger logging.Logger
	// Metrics receives the store's counters and gauges; nil means none.
	Metrics *metrics.Registry
}

// segment is one loaded immutable segment and where it came from.
type segment struct {
	path   string
	reader *sstable.Reader
}

// Store is the engine: one mutable buffer in front of immutable segments.
// All methods are safe for concurrent use.
type Store struct {
	mu       sync.RWMutex
	cfg      config.Config
	schema   *schema.Schema
	mt       *memtable.MemTable
	segments []segment // newest first
	wal      *wal.WAL
	log      logging.Logger
	metrics  *metrics.Registry
}

// Open builds a Store from cfg: it creates the data directory, loads every
// existing segment newest first, opens the write-ahead log when enabled, and
// replays it into a fresh buffer.
func Open(cfg config.Config, opts Options) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log := opts.Logger
	if log == nil {
		log = logging.Nop()
	}
	log = log.With(logging.Component("store"))

	s, err := schema.New(cfg.PrimaryKey, cfg.Columns)
	if err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("store: create data dir: %w", err)
	}

	segments, err := loadSegments(cfg.DataDir)
	if err != nil {
		return nil, err
	}

	var w *wal.WAL
	if cfg.EnableWAL {
		w, err = wal.Open(filepath.Join(cfg.DataDir, walFilename))
		if err != nil {
			return nil, fmt.Errorf("store: open wal: %w", err)
		}
	}

	mt, err := memtable.New(s, memtable.Options{
		MaxRecords:              cfg.MaxRecords,
		DataDir:                 cfg.DataDir,
		WAL:                     w,
		FilterFalsePositiveRate: cfg.BloomFalsePositiveRate,
	})
	if err != nil {
		if w != nil {
			_ = w.Close()
		}
		return nil, err
	}

	st := &Store{
		cfg:      cfg,
		schema:   s,
		mt:       mt,
		segments: segments,
		wal:      w,
		log:      log,
		metrics:  opts.Metrics,
	}
	st.metrics.SetSegmentsOpen(len(segments))
	st.metrics.SetBufferState(mt.Len(), mt.Size())

	log.Info("store opened",
		logging.String("data_dir", cfg.DataDir),
		logging.Int("segments", len(segments)),
		logging.Records(mt.Len()))
	return st, nil
}

// loadSegments opens every segment file in dir, newest first. Segment names
// are zero-padded hex flush timestamps, so reverse lexical order is reverse
// chronological order.
func loadSegments(dir string) ([]segment, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("store: read data dir: %w", err)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), memtable.SegmentExt) {
			names = append(names, e.Name())
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(names)))

	segments := make([]segment, 0, len(names))
	for _, name := range names {
		path := filepath.Join(dir, name)
		r, err := sstable.OpenFile(path)
		if err != nil {
			return nil, fmt.Errorf("store: load segment %s: %w", name, err)
		}
		segments = append(segments, segment{path: path, reader: r})
	}
	return segments, nil
}

// Put appends one record. When the buffer reports capacity the store flushes
// it before returning, so a successful Put always leaves room for the next.
func (s *Store) Put(rec memtable.Fielder) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	status, err := s.mt.Append(rec)
	if err != nil {
		s.metrics.ObserveAppend("rejected")
		return err
	}
	s.metrics.ObserveAppend("inserted")
	s.metrics.SetBufferState(s.mt.Len(), s.mt.Size())
	if s.wal != nil {
		appends, _, compressed := s.wal.Stats()
		s.metrics.SetWALStats(appends, compressed)
	}

	if status == memtable.InsertedAndAtCapacity {
		s.log.Debug("buffer at capacity", logging.Records(s.mt.Len()))
		if err := s.flushLocked(); err != nil {
			return err
		}
	}
	return nil
}

// Get returns the latest payload for key. The buffer is consulted first,
// then each segment newest to oldest; the first hit wins.
func (s *Store) Get(key keys.Key) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if e, ok := s.mt.Get(key); ok {
		s.metrics.ObserveLookup("buffer", "hit")
		return e.Payload, true
	}
	for _, seg := range s.segments {
		if !seg.reader.FilterMayContain(key) {
			s.metrics.ObserveBloomNegative()
			continue
		}
		if payload, ok := seg.reader.LookupEq(key); ok {
			s.metrics.ObserveLookup("segment", "hit")
			return payload, true
		}
	}
	s.metrics.ObserveLookup("store", "miss")
	return nil, false
}

// GetIn performs batched point lookup. Keys not present anywhere are omitted
// from the result; each found key maps to its newest payload.
func (s *Store) GetIn(ks []keys.Key) map[keys.Key][]byte {
	out := make(map[keys.Key][]byte, len(ks))
	for _, k := range ks {
		if payload, ok := s.Get(k); ok {
			out[k] = payload
		}
	}
	return out
}

// Flush forces the buffer into a new segment. Flushing an empty buffer still
// produces a valid empty segment.
func (s *Store) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flushLocked()
}

func (s *Store) flushLocked() error {
	start := time.Now()
	records := s.mt.Len()

	path, err := s.mt.Flush()
	if errors.Is(err, memtable.ErrStaleWAL) {
		// The segment is on disk and the buffer is clear; the stale log only
		// costs a redundant replay on the next recovery.
		s.log.Warn("write-ahead log not truncated after flush", logging.Error(err))
		err = nil
	}
	if err != nil {
		s.metrics.ObserveFlush("error", 0, 0)
		s.log.Error("flush failed", logging.Error(err))
		return fmt.Errorf("store: flush: %w", err)
	}

	r, err := sstable.OpenFile(path)
	if err != nil {
		// The segment was just written and validated by Create; failing to
		// reopen it means the filesystem is lying to us.
		s.metrics.ObserveFlush("error", 0, 0)
		return fmt.Errorf("store: reopen flushed segment: %w", err)
	}

	info, statErr := os.Stat(path)
	size := 0
	if statErr == nil {
		size = int(info.Size())
	}

	s.segments = append([]segment{{path: path, reader: r}}, s.segments...)
	s.metrics.ObserveFlush("ok", time.Since(start).Seconds(), size)
	s.metrics.SetSegmentsOpen(len(s.segments))
	s.metrics.SetBufferState(s.mt.Len(), s.mt.Size())

	s.log.Info("buffer flushed",
		logging.SegmentPath(path),
		logging.Records(records),
		logging.Bytes(size),
		logging.Latency(time.Since(start)))
	return nil
}

// BufferLen returns the number of records currently buffered.
func (s *Store) BufferLen() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mt.Len()
}

// SegmentCount returns the number of loaded segments.
func (s *Store) SegmentCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.segments)
}

// Segments returns the paths of the loaded segments, newest first.
func (s *Store) Segments() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	paths := make([]string, len(s.segments))
	for i, seg := range s.segments {
		paths[i] = seg.path
	}
	return paths
}

// Schema returns the store's immutable schema.
func (s *Store) Schema() *schema.Schema { return s.schema }

// Close releases the write-ahead log. Buffered records that were not flushed
// stay recoverable through the log when it is enabled.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.wal != nil {
		if err := s.wal.Close(); err != nil {
			return fmt.Errorf("store: close wal: %w", err)
		}
	}
	s.log.Info("store closed", logging.Records(s.mt.Len()))
	return nil
}
