// Package wal implements the optional write-ahead log in front of a
// MemTable. Every accepted append is recorded with a snappy-compressed
// payload and a per-entry checksum; after a crash the buffer is rebuilt by
// replaying the log, and after a successful flush the log is truncated.
package wal

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/golang/snappy"
)

// maxEntrySize bounds a single log entry; anything larger is treated as a
// corrupt length prefix during replay.
const maxEntrySize = 256 << 20

// ErrClosed reports use of a closed log.
var ErrClosed = errors.New("wal: closed")

// Entry is one replayed log record.
type Entry struct {
	EncodedKey     []byte
	Payload        []byte
	TimestampNanos int64
}

// WAL is an append-only log file. Append and Truncate serialize internally;
// one WAL belongs to one MemTable.
type WAL struct {
	mu     sync.Mutex
	path   string
	file   *os.File
	writer *bufio.Writer

	appends           uint64
	bytesUncompressed uint64
	bytesCompressed   uint64
}

// Open creates or opens the log file at path.
func Open(path string) (*WAL, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("wal: create directory: %w", err)
	}
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("wal: open %s: %w", path, err)
	}
	return &WAL{path: path, file: file, writer: bufio.NewWriter(file)}, nil
}

// Append logs one record and flushes it to the file.
//
// Entry format, little-endian:
//
//	[keyLen u32][encodedKey][compLen u32][snappy payload][timestamp i64][crc u32]
//
// The checksum covers everything before it except the leading key length.
func (w *WAL) Append(encodedKey, payload []byte, timestampNanos int64) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return ErrClosed
	}

	compressed := snappy.Encode(nil, payload)

	buf := make([]byte, 0, 4+len(encodedKey)+4+len(compressed)+8+4)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(encodedKey)))
	buf = append(buf, encodedKey...)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(compressed)))
	buf = append(buf, compressed...)
	buf = binary.LittleEndian.AppendUint64(buf, uint64(timestampNanos))
	buf = binary.LittleEndian.AppendUint32(buf, crc32.ChecksumIEEE(buf[4:]))

	if _, err := w.writer.Write(buf); err != nil {
		return fmt.Errorf("wal: append: %w", err)
	}
	if err := w.writer.Flush(); err != nil {
		return fmt.Errorf("wal: flush: %w", err)
	}

	w.appends++
	w.bytesUncompressed += uint64(len(payload))
	w.bytesCompressed += uint64(len(compressed))
	return nil
}

// Replay reads the log from the start and returns its entries in append
// order; callers apply last-write-wins per key. A corrupt or truncated tail
// stops replay without failing it: everything before the damage is returned.
func Replay(path string) ([]Entry, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("wal: open for replay: %w", err)
	}
	defer file.Close()

	reader := bufio.NewReader(file)
	var entries []Entry

	for {
		entry, ok := readEntry(reader)
		if !ok {
			break
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// readEntry decodes one entry; ok=false on EOF or any damage.
func readEntry(r *bufio.Reader) (Entry, bool) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return Entry{}, false
	}
	keyLen := binary.LittleEndian.Uint32(lenBuf[:])
	if keyLen == 0 || keyLen > maxEntrySize {
		return Entry{}, false
	}

	key := make([]byte, keyLen)
	if _, err := io.ReadFull(r, key); err != nil {
		return Entry{}, false
	}

	var compLenBuf [4]byte
	if _, err := io.ReadFull(r, compLenBuf[:]); err != nil {
		return Entry{}, false
	}
	compLen := binary.LittleEndian.Uint32(compLenBuf[:])
	if compLen > maxEntrySize {
		return Entry{}, false
	}

	compressed := make([]byte, compLen)
	if _, err := io.ReadFull(r, compressed); err != nil {
		return Entry{}, false
	}

	var tsBuf [8]byte
	if _, err := io.ReadFull(r, tsBuf[:]); err != nil {
		return Entry{}, false
	}

	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return Entry{}, false
	}
	storedCRC := binary.LittleEndian.Uint32(lenBuf[:])

	check := crc32.NewIEEE()
	check.Write(key)
	check.Write(compLenBuf[:])
	check.Write(compressed)
	check.Write(tsBuf[:])
	if check.Sum32() != storedCRC {
		return Entry{}, false
	}

	payload, err := snappy.Decode(nil, compressed)
	if err != nil {
		return Entry{}, false
	}

	return Entry{
		EncodedKey:     key,
		Payload:        payload,
		TimestampNanos: int64(binary.LittleEndian.Uint64(tsBuf[:])),
	}, true
}

// Truncate empties the log, called after the buffer it protects has been
// flushed to a durable segment.
func (w *WAL) Truncate() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return ErrClosed
	}
	if err := w.writer.Flush(); err != nil {
		return fmt.Errorf("wal: flush before truncate: %w", err)
	}
	if err := w.file.Truncate(0); err != nil {
		return fmt.Errorf("wal: truncate: %w", err)
	}
	if _, err := w.file.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("wal: rewind: %w", err)
	}
	w.writer.Reset(w.file)
	return nil
}

// Path returns the log file path.
func (w *WAL) Path() string { return w.path }

// Stats returns the append count and byte totals before and after
// compression.
func (w *WAL) Stats() (appends, uncompressed, compressed uint64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.appends, w.bytesUncompressed, w.bytesCompressed
}

// Close flushes and closes the log file.
func (w *WAL) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return nil
	}
	flushErr := w.writer.Flush()
	closeErr := w.file.Close()
	w.file = nil
	if flushErr != nil {
		return flushErr
	}
	return closeErr
}
